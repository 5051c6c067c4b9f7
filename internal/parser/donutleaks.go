package parser

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/leaklook/leaklook/internal/feed"
)

// donutleaksParser reads the DonutLeaks post-box layout.
type donutleaksParser struct{}

func (donutleaksParser) Source() string { return "donutleaks" }

func (donutleaksParser) Extract(data []byte) (Result, error) {
	doc, err := newDocument(data)
	if err != nil {
		return Result{}, err
	}
	var res Result
	doc.Find("div.box.post-box").Each(func(_ int, s *goquery.Selection) {
		title, err := requiredText(s, "h2")
		if err != nil {
			res.Skipped++
			return
		}
		desc, err := requiredText(s, "p")
		if err != nil {
			res.Skipped++
			return
		}
		res.Records = append(res.Records, feed.RawRecord{Title: title, Description: desc})
	})
	return res, nil
}
