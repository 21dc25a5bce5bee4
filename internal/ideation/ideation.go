// Package ideation runs the final pipeline stage: per-category product-gap
// prompts that turn extracted attributes and derived metrics into concrete
// product ideas.
package ideation

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"marketscout/internal/budget"
	"marketscout/internal/extract"
	"marketscout/internal/insights"
	"marketscout/internal/llm"
	"marketscout/internal/scrape"
)

// Idea is one generated product concept.
type Idea struct {
	ProductName          string   `json:"product_name"`
	Tagline              string   `json:"tagline"`
	CoreConcept          string   `json:"core_concept"`
	PrimaryBenefit       string   `json:"primary_benefit"`
	TargetAudience       string   `json:"target_audience"`
	PriceTier            string   `json:"price_tier"`
	OpportunityScore     float64  `json:"market_opportunity_score"`
	Rationale            string   `json:"rationale"`
	CompetitiveAdvantage string   `json:"competitive_advantage"`
	RiskLevel            string   `json:"risk_level"`
	KeyAttributes        []string `json:"key_attributes"`

	Category    string    `json:"category"`
	GeneratedAt time.Time `json:"generated_at"`
	GeneratedBy string    `json:"generated_by"`
}

// Report is the ideation artifact across all categories.
type Report struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Ideas       map[string][]Idea `json:"ideas_by_category"`
	Partial     bool              `json:"partial,omitempty"`
}

// CategoryInput is everything the engine knows about one category.
type CategoryInput struct {
	Name       string
	Items      []scrape.RankedItem
	Attributes map[string]*extract.Attributes
	Volatility *insights.Volatility
}

// Engine generates product ideas for categories with collected market data.
type Engine struct {
	provider llm.Provider
	tracker  *budget.Tracker
	numIdeas int

	now func() time.Time
}

func NewEngine(provider llm.Provider, tracker *budget.Tracker, numIdeas int) *Engine {
	if numIdeas <= 0 {
		numIdeas = 5
	}
	return &Engine{provider: provider, tracker: tracker, numIdeas: numIdeas, now: time.Now}
}

// Run generates ideas per category. A budget hard stop marks the report
// partial and skips remaining categories; a single category failure does not
// abort the others.
func (e *Engine) Run(ctx context.Context, inputs []CategoryInput) (*Report, error) {
	report := &Report{GeneratedAt: e.now(), Ideas: make(map[string][]Idea)}

	for _, input := range inputs {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if !e.tracker.CanProceed() {
			report.Partial = true
			log.Printf("ideation: budget exhausted, skipping remaining categories")
			return report, nil
		}

		ideas, err := e.generateForCategory(ctx, input)
		if err != nil {
			log.Printf("ideation: %s failed: %v", input.Name, err)
			continue
		}
		report.Ideas[input.Name] = ideas
		log.Printf("ideation: generated %d ideas for %s", len(ideas), input.Name)
	}
	return report, nil
}

func (e *Engine) generateForCategory(ctx context.Context, input CategoryInput) ([]Idea, error) {
	completion, err := e.provider.Complete(ctx, e.buildPrompt(input), 4096, 0.7)
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}
	e.tracker.RecordUsage(e.provider.Model(), "product_ideation", completion.InputTokens, completion.OutputTokens)

	var ideas []Idea
	if err := llm.DecodeJSON(completion.Text, &ideas); err != nil {
		return nil, fmt.Errorf("decode ideas: %w", err)
	}

	now := e.now()
	for i := range ideas {
		ideas[i].Category = input.Name
		ideas[i].GeneratedAt = now
		ideas[i].GeneratedBy = e.provider.Model()
	}
	return ideas, nil
}

func (e *Engine) buildPrompt(input CategoryInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a product innovation strategist. Generate %d innovative, market-ready product ideas for the %q category based on this market analysis.\n\n",
		e.numIdeas, input.Name)

	b.WriteString("Current top sellers:\n")
	top := input.Items
	if len(top) > 10 {
		top = top[:10]
	}
	for _, item := range top {
		fmt.Fprintf(&b, "- #%d %s", item.Rank, item.Name)
		if item.Price != nil {
			fmt.Fprintf(&b, " ($%.2f)", *item.Price)
		}
		b.WriteString("\n")
	}

	if summary := attributeSummary(input.Attributes); summary != "" {
		b.WriteString("\nDominant attributes among ranked products:\n")
		b.WriteString(summary)
	}

	if v := input.Volatility; v != nil {
		fmt.Fprintf(&b, "\nMarket dynamics: volatility index %.1f (%s), trend %s.\n", v.Index, v.Status, v.Trend)
		if len(v.BrandsEntering) > 0 {
			fmt.Fprintf(&b, "Brands recently entering the top ranks: %s.\n", strings.Join(v.BrandsEntering, ", "))
		}
	}

	fmt.Fprintf(&b, `
Generate %d ideas that target underserved attribute combinations the current top sellers leave open. For each idea provide a JSON object with:

{
  "product_name": "Creative, marketable product name",
  "tagline": "Compelling 1-sentence description",
  "core_concept": "2-3 sentence explanation of what makes this unique",
  "primary_benefit": "Main benefit to the buyer",
  "target_audience": "Who this is for",
  "price_tier": "budget/affordable/mid_range/premium/luxury",
  "market_opportunity_score": 7.5,
  "rationale": "Why this will succeed, citing the specific gap it addresses",
  "competitive_advantage": "What makes this better than existing products",
  "risk_level": "Low/Medium/High",
  "key_attributes": ["2-4 defining attributes"]
}

Each idea must be distinctly different from the others. Return ONLY a valid JSON array of %d idea objects. No other text.

JSON Array:`, e.numIdeas, e.numIdeas)
	return b.String()
}

// attributeSummary condenses extracted attributes into benefit and audience
// frequency lines for the prompt.
func attributeSummary(attrs map[string]*extract.Attributes) string {
	if len(attrs) == 0 {
		return ""
	}
	benefits := make(map[string]int)
	audiences := make(map[string]int)
	for _, a := range attrs {
		if a.PrimaryBenefit != "" && a.PrimaryBenefit != "Unknown" {
			benefits[a.PrimaryBenefit]++
		}
		if a.TargetAudience != "" && a.TargetAudience != "Unknown" {
			audiences[a.TargetAudience]++
		}
	}

	var b strings.Builder
	if line := frequencyLine(benefits); line != "" {
		fmt.Fprintf(&b, "- Benefits: %s\n", line)
	}
	if line := frequencyLine(audiences); line != "" {
		fmt.Fprintf(&b, "- Audiences: %s\n", line)
	}
	return b.String()
}

func frequencyLine(counts map[string]int) string {
	type freq struct {
		value string
		n     int
	}
	sorted := make([]freq, 0, len(counts))
	for value, n := range counts {
		sorted = append(sorted, freq{value, n})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].n != sorted[j].n {
			return sorted[i].n > sorted[j].n
		}
		return sorted[i].value < sorted[j].value
	})
	if len(sorted) > 5 {
		sorted = sorted[:5]
	}

	parts := make([]string, len(sorted))
	for i, f := range sorted {
		parts[i] = fmt.Sprintf("%s (x%d)", f.value, f.n)
	}
	return strings.Join(parts, ", ")
}
