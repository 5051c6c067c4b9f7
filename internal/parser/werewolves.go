package parser

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/leaklook/leaklook/internal/feed"
)

// werewolvesParser reads the Werewolves card layout. The per-card anchor is
// optional: cards without one still yield a record, just without a link.
type werewolvesParser struct{}

func (werewolvesParser) Source() string { return "werewolves" }

func (werewolvesParser) Extract(data []byte) (Result, error) {
	doc, err := newDocument(data)
	if err != nil {
		return Result{}, err
	}
	var res Result
	doc.Find("div.carts-section__item").Each(func(_ int, s *goquery.Selection) {
		title, err := requiredText(s, "h2")
		if err != nil {
			res.Skipped++
			return
		}
		desc, err := requiredText(s, "div.cart-block__content")
		if err != nil {
			res.Skipped++
			return
		}
		rec := feed.RawRecord{Title: title, Description: desc}
		if link, err := requiredAttr(s, "a", "href"); err == nil {
			rec.Link = link
		}
		res.Records = append(res.Records, rec)
	})
	return res, nil
}
