package scrape

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ParseReviews extracts the rating summary and the customer reviews visible
// on a product page. A page with a summary but no review blocks is valid.
func ParseReviews(html string) (*ReviewSet, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse review page: %w", err)
	}

	set := &ReviewSet{
		Summary: ReviewSummary{
			AverageRating: parseRating(doc.Find("#acrPopover .a-icon-alt, span[data-hook=\"rating-out-of-text\"]").First().Text()),
			TotalReviews:  parseCount(doc.Find("#acrCustomerReviewText, div[data-hook=\"total-review-count\"]").First().Text()),
		},
	}

	doc.Find("div[data-hook=\"review\"]").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Find("span[data-hook=\"review-body\"] span").First().Text())
		if text == "" {
			text = strings.TrimSpace(s.Find("span[data-hook=\"review-body\"]").First().Text())
		}
		if text == "" {
			return
		}

		set.Reviews = append(set.Reviews, Review{
			Title:    strings.TrimSpace(s.Find("a[data-hook=\"review-title\"] span").Last().Text()),
			Text:     text,
			Rating:   parseRating(s.Find("i[data-hook=\"review-star-rating\"] .a-icon-alt, i[data-hook=\"cmps-review-star-rating\"] .a-icon-alt").First().Text()),
			Date:     strings.TrimSpace(s.Find("span[data-hook=\"review-date\"]").First().Text()),
			Verified: s.Find("span[data-hook=\"avp-badge\"]").Length() > 0,
		})
	})

	set.Count = len(set.Reviews)
	return set, nil
}
