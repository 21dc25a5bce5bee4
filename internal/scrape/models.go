// Package scrape extracts structured marketplace data from rendered listing,
// detail, and review pages.
package scrape

import "time"

// RankedItem is one entry in a best-sellers listing.
type RankedItem struct {
	ASIN        string    `json:"asin"`
	Rank        int       `json:"rank"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Price       *float64  `json:"price,omitempty"`
	Rating      *float64  `json:"rating,omitempty"`
	ReviewCount *int      `json:"review_count,omitempty"`
	ScrapedAt   time.Time `json:"scraped_at"`
}

// ItemDetail is the enriched view of one product.
type ItemDetail struct {
	ASIN        string    `json:"asin"`
	Name        string    `json:"name"`
	Brand       string    `json:"brand,omitempty"`
	Price       *float64  `json:"price,omitempty"`
	Rating      *float64  `json:"rating,omitempty"`
	ReviewCount *int      `json:"review_count,omitempty"`
	Breadcrumb  []string  `json:"breadcrumb,omitempty"`
	Features    []string  `json:"features,omitempty"`
	Images      []string  `json:"images,omitempty"`
	Description string    `json:"description,omitempty"`
	ScrapedAt   time.Time `json:"scraped_at"`
}

// Review is one customer review visible on a product detail page.
type Review struct {
	Title    string   `json:"title,omitempty"`
	Text     string   `json:"text"`
	Rating   *float64 `json:"rating,omitempty"`
	Date     string   `json:"date,omitempty"`
	Verified bool     `json:"verified"`
}

// ReviewSummary aggregates the rating header of a product page.
type ReviewSummary struct {
	AverageRating *float64 `json:"average_rating,omitempty"`
	TotalReviews  *int     `json:"total_reviews,omitempty"`
}

// ReviewSet is everything review collection gathers for one item.
type ReviewSet struct {
	Summary ReviewSummary `json:"summary"`
	Reviews []Review      `json:"reviews"`
	Count   int           `json:"count"`
}
