package parser

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/leaklook/leaklook/internal/feed"
)

// cryptbbParser reads the CryptBB forum list layout. Each announcement is a
// bootstrap list-group item whose anchor carries both title and link.
type cryptbbParser struct{}

func (cryptbbParser) Source() string { return "cryptbb" }

func (cryptbbParser) Extract(data []byte) (Result, error) {
	doc, err := newDocument(data)
	if err != nil {
		return Result{}, err
	}
	var res Result
	doc.Find("div.list-group-item.position-relative").Each(func(_ int, s *goquery.Selection) {
		title, err := requiredText(s, "a")
		if err != nil {
			res.Skipped++
			return
		}
		desc, err := requiredText(s, "div.small.opacity-50")
		if err != nil {
			res.Skipped++
			return
		}
		link, err := requiredAttr(s, "a", "href")
		if err != nil {
			res.Skipped++
			return
		}
		res.Records = append(res.Records, feed.RawRecord{
			Title:       title,
			Description: desc,
			Link:        link,
		})
	})
	return res, nil
}
