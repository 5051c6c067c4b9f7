package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/leaklook/leaklook/internal/feed"
)

// omegaParser reads the 0mega table layout: one tr.trow per victim with the
// title in the first cell and the description in the third.
type omegaParser struct{}

func (omegaParser) Source() string { return "0mega" }

func (omegaParser) Extract(data []byte) (Result, error) {
	doc, err := newDocument(data)
	if err != nil {
		return Result{}, err
	}
	var res Result
	doc.Find("tr.trow").Each(func(_ int, s *goquery.Selection) {
		cells := s.Find("td")
		if cells.Length() < 3 {
			res.Skipped++
			return
		}
		res.Records = append(res.Records, feed.RawRecord{
			Title:       strings.TrimSpace(cells.Eq(0).Text()),
			Description: strings.TrimSpace(cells.Eq(2).Text()),
		})
	})
	return res, nil
}
