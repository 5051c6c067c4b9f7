package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/leaklook/leaklook/internal/feed"
)

// hellcatParser reads the Hellcat modal layout. The description spans
// several paragraphs which are joined newline-separated.
type hellcatParser struct{}

func (hellcatParser) Source() string { return "hellcat" }

func (hellcatParser) Extract(data []byte) (Result, error) {
	doc, err := newDocument(data)
	if err != nil {
		return Result{}, err
	}
	var res Result
	doc.Find("div.modal").Each(func(_ int, s *goquery.Selection) {
		title, err := requiredText(s, "h2")
		if err != nil {
			res.Skipped++
			return
		}
		var parts []string
		s.Find("p").Each(func(_ int, p *goquery.Selection) {
			parts = append(parts, strings.TrimSpace(p.Text()))
		})
		res.Records = append(res.Records, feed.RawRecord{
			Title:       title,
			Description: strings.Join(parts, "\n"),
		})
	})
	return res, nil
}
