package scrape

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"marketscout/internal/config"
	"marketscout/internal/fetch"
	"marketscout/internal/retry"
)

// Fetcher is the page-retrieval dependency; satisfied by *fetch.Client.
type Fetcher interface {
	FetchPage(ctx context.Context, pageURL string) (string, error)
}

// Scraper turns marketplace pages into structured records, retrying
// transient fetch failures per the configured policy.
type Scraper struct {
	fetcher Fetcher
	policy  *retry.Policy
	baseURL string

	now func() time.Time
}

func NewScraper(fetcher Fetcher, policy *retry.Policy, baseURL string) *Scraper {
	return &Scraper{
		fetcher: fetcher,
		policy:  policy,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		now:     time.Now,
	}
}

// CollectRanks fetches a category listing and returns its ranked entries,
// truncated to the category's tracked depth.
func (s *Scraper) CollectRanks(ctx context.Context, cat config.Category) ([]RankedItem, error) {
	var items []RankedItem
	err := s.policy.Do(ctx, "rank:"+cat.Name, func(ctx context.Context) error {
		html, err := s.fetcher.FetchPage(ctx, cat.URL)
		if err != nil {
			return err
		}
		items, err = ParseRankPage(html, cat.Name, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}

	if cat.TrackTop > 0 && len(items) > cat.TrackTop {
		items = items[:cat.TrackTop]
	}
	log.Printf("collected %d ranked items for %s", len(items), cat.Name)
	return items, nil
}

// FetchDetail retrieves and parses the detail page for one item.
func (s *Scraper) FetchDetail(ctx context.Context, asin string) (*ItemDetail, error) {
	pageURL := s.detailURL(asin)
	var detail *ItemDetail
	err := s.policy.Do(ctx, "detail:"+asin, func(ctx context.Context) error {
		html, err := s.fetcher.FetchPage(ctx, pageURL)
		if err != nil {
			return err
		}
		detail, err = ParseDetailPage(html, asin, pageURL, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// FetchReviews retrieves the reviews visible on an item's detail page,
// truncated to maxReviews when positive.
func (s *Scraper) FetchReviews(ctx context.Context, asin string, maxReviews int) (*ReviewSet, error) {
	var set *ReviewSet
	err := s.policy.Do(ctx, "reviews:"+asin, func(ctx context.Context) error {
		html, err := s.fetcher.FetchPage(ctx, s.detailURL(asin))
		if err != nil {
			return err
		}
		set, err = ParseReviews(html)
		return err
	})
	if err != nil {
		return nil, err
	}

	if maxReviews > 0 && len(set.Reviews) > maxReviews {
		set.Reviews = set.Reviews[:maxReviews]
		set.Count = len(set.Reviews)
	}
	return set, nil
}

func (s *Scraper) detailURL(asin string) string {
	return fmt.Sprintf("%s/dp/%s", s.baseURL, asin)
}

var _ Fetcher = (*fetch.Client)(nil)
