package scrape

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var (
	asinExpr   = regexp.MustCompile(`/dp/([A-Z0-9]{10})`)
	ratingExpr = regexp.MustCompile(`([\d.]+) out of 5`)
	numberExpr = regexp.MustCompile(`[\d,]+`)
)

// ParseRankPage extracts the ranked entries from a best-sellers listing page.
// Entries without a resolvable ASIN are skipped; rank falls back to list
// position when the badge is missing.
func ParseRankPage(html, category string, now time.Time) ([]RankedItem, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse rank page: %w", err)
	}

	var items []RankedItem
	doc.Find(".zg-grid-general-faceout, [data-asin][data-component-type=\"zg-item\"]").Each(func(i int, s *goquery.Selection) {
		asin := itemASIN(s)
		if asin == "" {
			return
		}

		rank := i + 1
		badge := strings.TrimSpace(s.Find(".zg-bdg-text").First().Text())
		if n, err := strconv.Atoi(strings.TrimPrefix(badge, "#")); err == nil && n > 0 {
			rank = n
		}

		name := strings.TrimSpace(s.Find("a.a-link-normal span > div").First().Text())
		if name == "" {
			name = strings.TrimSpace(s.Find("a.a-link-normal img").First().AttrOr("alt", ""))
		}

		items = append(items, RankedItem{
			ASIN:        asin,
			Rank:        rank,
			Name:        name,
			Category:    category,
			Price:       parsePrice(s.Find(".a-price .a-offscreen, ._cDEzb_p13n-sc-price_3mJ9Z").First().Text()),
			Rating:      parseRating(s.Find(".a-icon-alt").First().Text()),
			ReviewCount: parseCount(s.Find(".a-size-small").First().Text()),
			ScrapedAt:   now,
		})
	})

	if len(items) == 0 {
		return nil, fmt.Errorf("rank page for %s: no items found", category)
	}
	return items, nil
}

func itemASIN(s *goquery.Selection) string {
	if asin := strings.TrimSpace(s.AttrOr("data-asin", "")); asin != "" {
		return asin
	}
	href := s.Find("a.a-link-normal").First().AttrOr("href", "")
	if m := asinExpr.FindStringSubmatch(href); m != nil {
		return m[1]
	}
	return ""
}

func parsePrice(text string) *float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	cleaned := strings.NewReplacer("$", "", "£", "", "€", "", ",", "").Replace(text)
	v, err := strconv.ParseFloat(strings.TrimSpace(cleaned), 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseRating(text string) *float64 {
	m := ratingExpr.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseCount(text string) *int {
	m := numberExpr.FindString(text)
	if m == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
	if err != nil {
		return nil
	}
	return &n
}
