// Package links pulls candidate URLs out of a page for batch scanning.
package links

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

const defaultLimit = 50

var webURL = regexp.MustCompile(`(?i)^https?://`)

// Extract returns the unique absolute http(s) targets of a[href] elements in
// document order, resolved against pageURL, capped at limit (50 when <= 0).
func Extract(pageURL, html string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, eris.Wrapf(err, "links: parse page url %q", pageURL)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "links: parse html")
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = b
		}
	}

	seen := make(map[string]struct{})
	out := []string{}
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		ref, err := base.Parse(strings.TrimSpace(href))
		if err != nil {
			return true
		}
		abs := ref.String()
		if !webURL.MatchString(abs) {
			return true
		}
		if _, dup := seen[abs]; dup {
			return true
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
		return len(out) < limit
	})
	return out, nil
}
