package parser

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/leaklook/leaklook/internal/feed"
)

// stormousParser reads the Stormous blog layout: one <center> block per
// victim with an h1-styled title paragraph and a description paragraph.
type stormousParser struct{}

func (stormousParser) Source() string { return "stormous" }

func (stormousParser) Extract(data []byte) (Result, error) {
	doc, err := newDocument(data)
	if err != nil {
		return Result{}, err
	}
	var res Result
	doc.Find("center").Each(func(_ int, s *goquery.Selection) {
		title, err := requiredText(s, "p.h1")
		if err != nil {
			res.Skipped++
			return
		}
		desc, err := requiredText(s, "p.description")
		if err != nil {
			res.Skipped++
			return
		}
		res.Records = append(res.Records, feed.RawRecord{Title: title, Description: desc})
	})
	return res, nil
}
