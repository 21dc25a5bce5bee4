// Package enrich runs the detail-enrichment stage: bounded-concurrency
// fetching of per-item detail pages with a cache-first policy.
package enrich

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"marketscout/internal/cache"
	"marketscout/internal/scrape"
)

// DetailFetcher retrieves the enriched view of one item; satisfied by
// *scrape.Scraper.
type DetailFetcher interface {
	FetchDetail(ctx context.Context, asin string) (*scrape.ItemDetail, error)
}

// Result summarizes one enrichment run.
type Result struct {
	Items    map[string]*scrape.ItemDetail
	Enriched int
	Cached   int
	Failed   int
	Errors   map[string]error
	Elapsed  time.Duration
}

// BatchEnricher fetches item details in consecutive groups. Group n+1 never
// starts before every member of group n has settled, and a single failing
// item never aborts its siblings.
type BatchEnricher struct {
	fetcher     DetailFetcher
	store       *cache.Store
	concurrency int
	batchDelay  time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewBatchEnricher(fetcher DetailFetcher, store *cache.Store, concurrency int, batchDelay time.Duration) *BatchEnricher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchEnricher{
		fetcher:     fetcher,
		store:       store,
		concurrency: concurrency,
		batchDelay:  batchDelay,
		now:         time.Now,
		sleep:       sleepContext,
	}
}

// Enrich resolves details for every ASIN. Cached entries are served without a
// fetch; misses go through the fetcher and successful results are written
// back. Returns per-item outcomes; only a cancelled context is an error.
func (b *BatchEnricher) Enrich(ctx context.Context, asins []string) (*Result, error) {
	start := b.now()
	res := &Result{
		Items:  make(map[string]*scrape.ItemDetail, len(asins)),
		Errors: make(map[string]error),
	}

	var pending []string
	for _, asin := range asins {
		if detail := b.fromCache(asin); detail != nil {
			res.Items[asin] = detail
			res.Cached++
			continue
		}
		pending = append(pending, asin)
	}
	log.Printf("enrichment: %d cached, %d to fetch", res.Cached, len(pending))

	sem := semaphore.NewWeighted(int64(b.concurrency))
	var mu sync.Mutex

	for batchStart := 0; batchStart < len(pending); batchStart += b.concurrency {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		batchEnd := batchStart + b.concurrency
		if batchEnd > len(pending) {
			batchEnd = len(pending)
		}

		var wg sync.WaitGroup
		for _, asin := range pending[batchStart:batchEnd] {
			if err := sem.Acquire(ctx, 1); err != nil {
				wg.Wait()
				return res, err
			}
			wg.Add(1)
			go func(asin string) {
				defer wg.Done()
				defer sem.Release(1)

				detail, err := b.fetcher.FetchDetail(ctx, asin)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					res.Failed++
					res.Errors[asin] = err
					log.Printf("enrichment: %s failed: %v", asin, err)
					return
				}
				res.Items[asin] = detail
				res.Enriched++
				b.toCache(asin, detail)
			}(asin)
		}
		wg.Wait()

		done := batchEnd
		if done < len(pending) {
			elapsed := b.now().Sub(start)
			eta := time.Duration(float64(elapsed) / float64(done) * float64(len(pending)-done))
			log.Printf("enrichment: %d/%d done, eta %.0fs", done, len(pending), eta.Seconds())
			if err := b.sleep(ctx, b.batchDelay); err != nil {
				return res, err
			}
		}
	}

	res.Elapsed = b.now().Sub(start)
	log.Printf("enrichment: done in %.1fs (%d enriched, %d cached, %d failed)",
		res.Elapsed.Seconds(), res.Enriched, res.Cached, res.Failed)
	return res, nil
}

func (b *BatchEnricher) fromCache(asin string) *scrape.ItemDetail {
	raw, ok := b.store.Get(asin)
	if !ok {
		return nil
	}
	var detail scrape.ItemDetail
	if err := json.Unmarshal(raw, &detail); err != nil {
		return nil
	}
	return &detail
}

func (b *BatchEnricher) toCache(asin string, detail *scrape.ItemDetail) {
	raw, err := json.Marshal(detail)
	if err != nil {
		return
	}
	b.store.Set(asin, raw)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
