// Package insights derives market metrics from collected ranking and review
// snapshots: traffic share estimates, rank volatility, brand movements, and
// review usage contexts.
package insights

import (
	"math"
	"sort"
	"strings"
	"time"

	"marketscout/internal/scrape"
)

// volatilityScale converts the rank-change standard deviation into an index.
const volatilityScale = 10.0

// EstimateTraffic distributes a product's traffic across the categories it
// ranks in, using inverse-rank weighting: share = (1/rank) / sum(1/rank).
// Percentages sum to 100 for a non-empty input.
func EstimateTraffic(ranks map[string]int) map[string]float64 {
	var total float64
	for _, rank := range ranks {
		if rank > 0 {
			total += 1.0 / float64(rank)
		}
	}
	if total == 0 {
		return map[string]float64{}
	}

	shares := make(map[string]float64, len(ranks))
	for category, rank := range ranks {
		if rank > 0 {
			shares[category] = (1.0 / float64(rank)) / total * 100
		}
	}
	return shares
}

// Volatility summarizes rank churn within one category across snapshots.
type Volatility struct {
	Category       string   `json:"category"`
	Index          float64  `json:"volatility_index"`
	Status         string   `json:"status"`
	AvgRankChange  float64  `json:"avg_rank_change"`
	Trend          string   `json:"trend"`
	BrandsEntering []string `json:"brands_entering"`
	BrandsExiting  []string `json:"brands_exiting"`
	Snapshots      int      `json:"snapshots"`
}

// CalculateVolatility measures rank churn over consecutive snapshots ordered
// oldest first. Fewer than two snapshots yields an unknown result.
func CalculateVolatility(category string, snapshots [][]scrape.RankedItem) Volatility {
	v := Volatility{Category: category, Status: "unknown", Trend: "stable", Snapshots: len(snapshots)}
	if len(snapshots) < 2 {
		return v
	}

	ranksByASIN := make(map[string][]int)
	for _, snapshot := range snapshots {
		for _, item := range snapshot {
			if item.ASIN != "" && item.Rank > 0 {
				ranksByASIN[item.ASIN] = append(ranksByASIN[item.ASIN], item.Rank)
			}
		}
	}

	var changes []float64
	for _, ranks := range ranksByASIN {
		for i := 0; i+1 < len(ranks); i++ {
			changes = append(changes, math.Abs(float64(ranks[i+1]-ranks[i])))
		}
	}
	if len(changes) == 0 {
		return v
	}

	v.Index = round1(stddev(changes) * volatilityScale)
	v.AvgRankChange = round1(mean(changes))
	v.Status = classifyVolatility(v.Index)
	v.Trend = volatilityTrend(snapshots)
	v.BrandsEntering, v.BrandsExiting = brandMovements(snapshots[0], snapshots[len(snapshots)-1])
	return v
}

func classifyVolatility(index float64) string {
	switch {
	case index < 25:
		return "low_volatility"
	case index < 40:
		return "moderate_volatility"
	case index < 50:
		return "high_volatility"
	default:
		return "very_high_volatility"
	}
}

// volatilityTrend compares churn in the first half of the snapshots against
// the second half.
func volatilityTrend(snapshots [][]scrape.RankedItem) string {
	if len(snapshots) < 3 {
		return "stable"
	}
	mid := len(snapshots) / 2
	first := CalculateVolatility("", snapshots[:mid+1]).Index
	second := CalculateVolatility("", snapshots[mid:]).Index
	switch {
	case second > first*1.2:
		return "increasing"
	case second < first*0.8:
		return "decreasing"
	default:
		return "stable"
	}
}

// brandMovements diffs the brand sets of the earliest and latest snapshots.
func brandMovements(first, last []scrape.RankedItem) (entering, exiting []string) {
	firstBrands := brandSet(first)
	lastBrands := brandSet(last)
	for brand := range lastBrands {
		if _, ok := firstBrands[brand]; !ok {
			entering = append(entering, brand)
		}
	}
	for brand := range firstBrands {
		if _, ok := lastBrands[brand]; !ok {
			exiting = append(exiting, brand)
		}
	}
	sort.Strings(entering)
	sort.Strings(exiting)
	return entering, exiting
}

func brandSet(items []scrape.RankedItem) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		if brand := BrandOf(item.Name); brand != "" {
			set[brand] = struct{}{}
		}
	}
	return set
}

// BrandOf extracts a brand from a product name when no explicit brand field
// is available: the first capitalized word.
func BrandOf(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	first := fields[0]
	if r := rune(first[0]); r >= 'A' && r <= 'Z' {
		return first
	}
	return ""
}

// UsageContext is a recurring theme in review texts.
type UsageContext struct {
	Keyword       string   `json:"keyword"`
	Mentions      int      `json:"mentions"`
	SampleReviews []string `json:"sample_reviews,omitempty"`
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "a": {}, "an": {}, "is": {}, "it": {}, "its": {},
	"this": {}, "that": {}, "for": {}, "with": {}, "was": {}, "are": {},
	"but": {}, "not": {}, "you": {}, "your": {}, "have": {}, "has": {},
	"had": {}, "they": {}, "them": {}, "very": {}, "i": {}, "my": {},
	"of": {}, "to": {}, "in": {}, "on": {}, "so": {}, "as": {}, "be": {},
	"or": {}, "at": {}, "if": {}, "we": {}, "me": {}, "just": {},
}

// ExtractUsageContexts finds the most mentioned non-trivial keywords across
// review texts, each with up to two sample review titles.
func ExtractUsageContexts(reviews []scrape.Review, top int) []UsageContext {
	if top <= 0 {
		top = 5
	}

	counts := make(map[string]int)
	samples := make(map[string][]string)
	for _, review := range reviews {
		seen := make(map[string]struct{})
		for _, word := range strings.Fields(strings.ToLower(review.Text)) {
			word = strings.Trim(word, ".,!?;:\"'()")
			if len(word) < 4 {
				continue
			}
			if _, stop := stopwords[word]; stop {
				continue
			}
			counts[word]++
			if _, dup := seen[word]; dup {
				continue
			}
			seen[word] = struct{}{}
			if review.Title != "" && len(samples[word]) < 2 {
				samples[word] = append(samples[word], review.Title)
			}
		}
	}

	contexts := make([]UsageContext, 0, len(counts))
	for word, n := range counts {
		if n < 2 {
			continue
		}
		contexts = append(contexts, UsageContext{Keyword: word, Mentions: n, SampleReviews: samples[word]})
	}
	sort.Slice(contexts, func(i, j int) bool {
		if contexts[i].Mentions != contexts[j].Mentions {
			return contexts[i].Mentions > contexts[j].Mentions
		}
		return contexts[i].Keyword < contexts[j].Keyword
	})
	if len(contexts) > top {
		contexts = contexts[:top]
	}
	return contexts
}

// Metrics is the derived-metrics artifact for one run.
type Metrics struct {
	GeneratedAt    time.Time                     `json:"generated_at"`
	Volatility     []Volatility                  `json:"volatility"`
	Traffic        map[string]map[string]float64 `json:"traffic_share"`
	EmergingBrands map[string][]string           `json:"emerging_brands"`
	UsageContexts  map[string][]UsageContext     `json:"usage_contexts"`
}

// Build assembles the full metrics artifact. history maps category name to
// rank snapshots ordered oldest first (the latest run last); reviews maps
// ASIN to collected reviews.
func Build(history map[string][][]scrape.RankedItem, reviews map[string][]scrape.Review, now time.Time) *Metrics {
	m := &Metrics{
		GeneratedAt:    now,
		Traffic:        make(map[string]map[string]float64),
		EmergingBrands: make(map[string][]string),
		UsageContexts:  make(map[string][]UsageContext),
	}

	// Per-ASIN category ranks from each category's latest snapshot.
	latestRanks := make(map[string]map[string]int)
	categories := make([]string, 0, len(history))
	for category := range history {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		snapshots := history[category]
		v := CalculateVolatility(category, snapshots)
		m.Volatility = append(m.Volatility, v)
		if len(v.BrandsEntering) > 0 {
			m.EmergingBrands[category] = v.BrandsEntering
		}
		if len(snapshots) == 0 {
			continue
		}
		for _, item := range snapshots[len(snapshots)-1] {
			if latestRanks[item.ASIN] == nil {
				latestRanks[item.ASIN] = make(map[string]int)
			}
			latestRanks[item.ASIN][category] = item.Rank
		}
	}

	for asin, ranks := range latestRanks {
		m.Traffic[asin] = EstimateTraffic(ranks)
	}
	for asin, rs := range reviews {
		if contexts := ExtractUsageContexts(rs, 5); len(contexts) > 0 {
			m.UsageContexts[asin] = contexts
		}
	}
	return m
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	m := mean(xs)
	var sq float64
	for _, x := range xs {
		sq += (x - m) * (x - m)
	}
	return math.Sqrt(sq / float64(len(xs)))
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
