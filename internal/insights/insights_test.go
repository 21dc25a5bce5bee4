package insights

import (
	"math"
	"testing"
	"time"

	"marketscout/internal/scrape"
)

func TestEstimateTraffic(t *testing.T) {
	shares := EstimateTraffic(map[string]int{
		"lip care":   1,
		"face masks": 4,
	})
	// 1/1 and 1/4 normalize to 80% and 20%.
	if got := shares["lip care"]; math.Abs(got-80) > 0.01 {
		t.Errorf("lip care share = %v, want 80", got)
	}
	if got := shares["face masks"]; math.Abs(got-20) > 0.01 {
		t.Errorf("face masks share = %v, want 20", got)
	}

	var total float64
	for _, s := range shares {
		total += s
	}
	if math.Abs(total-100) > 0.01 {
		t.Errorf("shares sum to %v, want 100", total)
	}

	if got := EstimateTraffic(nil); len(got) != 0 {
		t.Errorf("empty input produced %v", got)
	}
}

func snapshot(items ...scrape.RankedItem) []scrape.RankedItem { return items }

func ranked(asin, name string, rank int) scrape.RankedItem {
	return scrape.RankedItem{ASIN: asin, Name: name, Rank: rank}
}

func TestCalculateVolatility(t *testing.T) {
	stable := CalculateVolatility("lip care", [][]scrape.RankedItem{
		snapshot(ranked("A1", "LANEIGE Lip Mask", 1), ranked("A2", "COSRX Snail Mucin", 2)),
		snapshot(ranked("A1", "LANEIGE Lip Mask", 1), ranked("A2", "COSRX Snail Mucin", 2)),
	})
	if stable.Index != 0 || stable.Status != "low_volatility" {
		t.Errorf("stable category: index %v status %q", stable.Index, stable.Status)
	}

	churning := CalculateVolatility("lip care", [][]scrape.RankedItem{
		snapshot(ranked("A1", "LANEIGE Lip Mask", 1), ranked("A2", "COSRX Snail Mucin", 20)),
		snapshot(ranked("A1", "LANEIGE Lip Mask", 15), ranked("A2", "COSRX Snail Mucin", 2)),
	})
	if churning.Index <= stable.Index {
		t.Errorf("churn index %v should exceed stable %v", churning.Index, stable.Index)
	}
	if churning.AvgRankChange != 16 {
		t.Errorf("avg rank change = %v, want 16", churning.AvgRankChange)
	}
}

func TestCalculateVolatilityNeedsTwoSnapshots(t *testing.T) {
	v := CalculateVolatility("lip care", [][]scrape.RankedItem{
		snapshot(ranked("A1", "LANEIGE Lip Mask", 1)),
	})
	if v.Status != "unknown" {
		t.Errorf("status = %q, want unknown", v.Status)
	}
}

func TestBrandMovements(t *testing.T) {
	v := CalculateVolatility("lip care", [][]scrape.RankedItem{
		snapshot(ranked("A1", "LANEIGE Lip Mask", 1), ranked("A2", "COSRX Snail Mucin", 2)),
		snapshot(ranked("A1", "LANEIGE Lip Mask", 1), ranked("A3", "Burt's Bees Balm", 2)),
	})
	if len(v.BrandsEntering) != 1 || v.BrandsEntering[0] != "Burt's" {
		t.Errorf("entering = %v", v.BrandsEntering)
	}
	if len(v.BrandsExiting) != 1 || v.BrandsExiting[0] != "COSRX" {
		t.Errorf("exiting = %v", v.BrandsExiting)
	}
}

func TestBrandOf(t *testing.T) {
	cases := map[string]string{
		"LANEIGE Lip Sleeping Mask": "LANEIGE",
		"Summer Fridays Tinted Lip": "Summer",
		"lowercase product name":    "",
		"":                          "",
	}
	for name, want := range cases {
		if got := BrandOf(name); got != want {
			t.Errorf("BrandOf(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestExtractUsageContexts(t *testing.T) {
	reviews := []scrape.Review{
		{Title: "Great overnight", Text: "Perfect overnight hydration for dry lips"},
		{Title: "Hydration win", Text: "Best hydration I found, use it overnight"},
		{Title: "Meh", Text: "Sticky texture"},
	}
	contexts := ExtractUsageContexts(reviews, 3)
	if len(contexts) == 0 {
		t.Fatal("expected at least one context")
	}
	top := contexts[0]
	if top.Keyword != "hydration" && top.Keyword != "overnight" {
		t.Errorf("top keyword = %q", top.Keyword)
	}
	if top.Mentions < 2 {
		t.Errorf("top mentions = %d", top.Mentions)
	}
	for _, c := range contexts {
		if c.Keyword == "sticky" {
			t.Error("single-mention keyword should be dropped")
		}
	}
}

func TestBuild(t *testing.T) {
	history := map[string][][]scrape.RankedItem{
		"lip care": {
			snapshot(ranked("A1", "LANEIGE Lip Mask", 2)),
			snapshot(ranked("A1", "LANEIGE Lip Mask", 1), ranked("A2", "COSRX Snail Mucin", 2)),
		},
		"face masks": {
			snapshot(ranked("A1", "LANEIGE Lip Mask", 4)),
			snapshot(ranked("A1", "LANEIGE Lip Mask", 4)),
		},
	}
	reviews := map[string][]scrape.Review{
		"A1": {
			{Text: "amazing hydration results"},
			{Text: "hydration all day"},
		},
	}

	m := Build(history, reviews, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	if len(m.Volatility) != 2 {
		t.Fatalf("volatility entries = %d, want 2", len(m.Volatility))
	}

	shares, ok := m.Traffic["A1"]
	if !ok {
		t.Fatal("missing traffic share for A1")
	}
	// Rank 1 in lip care vs 4 in face masks: 80/20 split.
	if math.Abs(shares["lip care"]-80) > 0.01 {
		t.Errorf("lip care share = %v", shares["lip care"])
	}

	if brands := m.EmergingBrands["lip care"]; len(brands) != 1 || brands[0] != "COSRX" {
		t.Errorf("emerging brands = %v", brands)
	}
	if _, ok := m.UsageContexts["A1"]; !ok {
		t.Error("missing usage contexts for A1")
	}
}
