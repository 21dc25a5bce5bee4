package scrape

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// ParseDetailPage extracts the enriched product view from a detail page.
func ParseDetailPage(html, asin, pageURL string, now time.Time) (*ItemDetail, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse detail page %s: %w", asin, err)
	}

	title := strings.TrimSpace(doc.Find("#productTitle").First().Text())
	if title == "" {
		return nil, fmt.Errorf("detail page %s: no product title", asin)
	}

	detail := &ItemDetail{
		ASIN:        asin,
		Name:        title,
		Brand:       parseBrand(doc),
		Price:       parsePrice(doc.Find("#corePrice_feature_div .a-offscreen, .a-price .a-offscreen").First().Text()),
		Rating:      parseRating(doc.Find("#acrPopover .a-icon-alt, span[data-hook=\"rating-out-of-text\"]").First().Text()),
		ReviewCount: parseCount(doc.Find("#acrCustomerReviewText").First().Text()),
		ScrapedAt:   now,
	}

	doc.Find("#wayfinding-breadcrumbs_feature_div ul li a").Each(func(_ int, s *goquery.Selection) {
		if crumb := strings.TrimSpace(s.Text()); crumb != "" {
			detail.Breadcrumb = append(detail.Breadcrumb, crumb)
		}
	})

	doc.Find("#feature-bullets ul li span.a-list-item").Each(func(_ int, s *goquery.Selection) {
		if bullet := strings.TrimSpace(s.Text()); bullet != "" {
			detail.Features = append(detail.Features, bullet)
		}
	})

	doc.Find("#altImages img, #imageBlock img").Each(func(_ int, s *goquery.Selection) {
		src := s.AttrOr("src", "")
		if src == "" || strings.Contains(src, "sprite") {
			return
		}
		detail.Images = append(detail.Images, src)
	})

	detail.Description = strings.TrimSpace(doc.Find("#productDescription").First().Text())
	if detail.Description == "" {
		detail.Description = extractDescription(html, pageURL)
	}

	return detail, nil
}

func parseBrand(doc *goquery.Document) string {
	byline := strings.TrimSpace(doc.Find("#bylineInfo").First().Text())
	for _, prefix := range []string{"Visit the ", "Brand: "} {
		byline = strings.TrimPrefix(byline, prefix)
	}
	return strings.TrimSuffix(byline, " Store")
}

// extractDescription falls back to readability extraction of the main article
// body when the dedicated description block is absent.
func extractDescription(html, pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(strings.NewReader(html), u)
	if err != nil {
		return ""
	}
	text := strings.TrimSpace(article.TextContent)
	if len(text) > 2000 {
		text = text[:2000]
	}
	return text
}
