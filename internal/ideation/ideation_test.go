package ideation

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"marketscout/internal/budget"
	"marketscout/internal/extract"
	"marketscout/internal/llm"
	"marketscout/internal/scrape"
)

type stubProvider struct {
	response string
	err      error
	prompts  []string
	tokens   int
}

func (p *stubProvider) Complete(_ context.Context, prompt string, _ int, _ float64) (*llm.Completion, error) {
	p.prompts = append(p.prompts, prompt)
	if p.err != nil {
		return nil, p.err
	}
	return &llm.Completion{Text: p.response, InputTokens: p.tokens, OutputTokens: p.tokens}, nil
}

func (p *stubProvider) Model() string      { return "claude-3-5-haiku-20241022" }
func (p *stubProvider) IsConfigured() bool { return true }

const ideasJSON = `[
  {
    "product_name": "ChefGrip Pro Press",
    "tagline": "A press that never slips",
    "primary_benefit": "effortless crushing",
    "price_tier": "mid_range",
    "market_opportunity_score": 8.1,
    "risk_level": "Low",
    "key_attributes": ["ergonomic", "dishwasher safe"]
  },
  {
    "product_name": "MiniMince Travel Press",
    "tagline": "Full crush, half the size",
    "price_tier": "budget",
    "market_opportunity_score": 6.4,
    "risk_level": "Medium"
  }
]`

func openTracker(t *testing.T, ceiling float64) *budget.Tracker {
	t.Helper()
	tracker, err := budget.Open(filepath.Join(t.TempDir(), "budget.json"), ceiling)
	if err != nil {
		t.Fatalf("open tracker: %v", err)
	}
	return tracker
}

func sampleInput(name string) CategoryInput {
	price := 14.99
	return CategoryInput{
		Name: name,
		Items: []scrape.RankedItem{
			{ASIN: "B0TESTASIN", Rank: 1, Name: "Stainless Garlic Press", Price: &price},
			{ASIN: "B0OTHERITM", Rank: 2, Name: "Silicone Spatula Set"},
		},
		Attributes: map[string]*extract.Attributes{
			"B0TESTASIN": {PrimaryBenefit: "effortless crushing", TargetAudience: "home cooks"},
			"B0OTHERITM": {PrimaryBenefit: "effortless crushing", TargetAudience: "Unknown"},
		},
	}
}

func TestRunGeneratesIdeas(t *testing.T) {
	provider := &stubProvider{response: ideasJSON, tokens: 200}
	e := NewEngine(provider, openTracker(t, 150), 2)

	report, err := e.Run(context.Background(), []CategoryInput{sampleInput("kitchen")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	ideas := report.Ideas["kitchen"]
	if len(ideas) != 2 {
		t.Fatalf("ideas = %d, want 2", len(ideas))
	}
	if ideas[0].ProductName != "ChefGrip Pro Press" {
		t.Errorf("first idea = %q", ideas[0].ProductName)
	}
	if ideas[0].Category != "kitchen" || ideas[0].GeneratedBy != provider.Model() {
		t.Errorf("metadata not stamped: %+v", ideas[0])
	}
	if report.Partial {
		t.Error("report should not be partial")
	}
}

func TestPromptCarriesMarketContext(t *testing.T) {
	provider := &stubProvider{response: ideasJSON}
	e := NewEngine(provider, openTracker(t, 150), 2)

	if _, err := e.Run(context.Background(), []CategoryInput{sampleInput("kitchen")}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(provider.prompts) != 1 {
		t.Fatalf("prompts = %d", len(provider.prompts))
	}
	prompt := provider.prompts[0]
	for _, want := range []string{"Stainless Garlic Press", "effortless crushing (x2)", "home cooks"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "Unknown") {
		t.Error("prompt should not carry Unknown attribute values")
	}
}

func TestRunContinuesPastCategoryFailure(t *testing.T) {
	provider := &stubProvider{response: "no json here"}
	e := NewEngine(provider, openTracker(t, 150), 2)

	report, err := e.Run(context.Background(), []CategoryInput{sampleInput("kitchen"), sampleInput("garden")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Ideas) != 0 {
		t.Errorf("ideas = %v, want none", report.Ideas)
	}
	if len(provider.prompts) != 2 {
		t.Errorf("prompts = %d, want 2 (second category still attempted)", len(provider.prompts))
	}
}

func TestRunStopsOnBudgetExhaustion(t *testing.T) {
	provider := &stubProvider{response: ideasJSON, tokens: 100_000}
	e := NewEngine(provider, openTracker(t, 0.01), 2)

	var inputs []CategoryInput
	for i := 0; i < 3; i++ {
		inputs = append(inputs, sampleInput(fmt.Sprintf("cat%d", i)))
	}
	report, err := e.Run(context.Background(), inputs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Partial {
		t.Fatal("expected partial report")
	}
	if len(report.Ideas) != 1 {
		t.Errorf("ideas for %d categories, want 1", len(report.Ideas))
	}
}
