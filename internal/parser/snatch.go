package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/leaklook/leaklook/internal/feed"
)

// snatchParser reads the Snatch announcement blocks. The per-record link is
// buried in a button's onclick handler as the first single-quoted argument.
type snatchParser struct{}

func (snatchParser) Source() string { return "snatch" }

func (snatchParser) Extract(data []byte) (Result, error) {
	doc, err := newDocument(data)
	if err != nil {
		return Result{}, err
	}
	var res Result
	doc.Find("div.ann-block").Each(func(_ int, s *goquery.Selection) {
		title, err := requiredText(s, "div.a-b-n-name")
		if err != nil {
			res.Skipped++
			return
		}
		desc, err := requiredText(s, "div.a-b-text")
		if err != nil {
			res.Skipped++
			return
		}
		onclick, err := requiredAttr(s, "button", "onclick")
		if err != nil {
			res.Skipped++
			return
		}
		link, err := onclickTarget(onclick)
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

func onclickTarget(onclick string) (string, error) {
	parts := strings.Split(onclick, "'")
	if len(parts) < 2 || parts[1] == "" {
		return "", fmt.Errorf("no quoted target in onclick %q", onclick)
	}
	return parts[1], nil
}
