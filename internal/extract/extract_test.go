package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"marketscout/internal/budget"
	"marketscout/internal/llm"
	"marketscout/internal/scrape"
)

type stubProvider struct {
	responses []string
	err       error
	calls     int
	tokens    int
}

func (p *stubProvider) Complete(_ context.Context, _ string, _ int, _ float64) (*llm.Completion, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	text := p.responses[0]
	if len(p.responses) > 1 {
		p.responses = p.responses[1:]
	}
	return &llm.Completion{Text: text, InputTokens: p.tokens, OutputTokens: p.tokens}, nil
}

func (p *stubProvider) Model() string      { return "claude-3-5-haiku-20241022" }
func (p *stubProvider) IsConfigured() bool { return true }

const attrsJSON = `{
  "key_features": ["rust-proof"],
  "materials": ["stainless steel"],
  "primary_benefit": "effortless crushing",
  "target_audience": "home cooks",
  "use_cases": ["meal prep"],
  "differentiator": "heavier gauge handle"
}`

func openTracker(t *testing.T, ceiling float64) *budget.Tracker {
	t.Helper()
	tracker, err := budget.Open(filepath.Join(t.TempDir(), "budget.json"), ceiling)
	if err != nil {
		t.Fatalf("open tracker: %v", err)
	}
	return tracker
}

func products(n int) []*scrape.ItemDetail {
	var out []*scrape.ItemDetail
	for i := 0; i < n; i++ {
		out = append(out, &scrape.ItemDetail{
			ASIN: fmt.Sprintf("B0EXTRACT%d", i),
			Name: fmt.Sprintf("Product %d", i),
		})
	}
	return out
}

func TestRunExtractsAll(t *testing.T) {
	provider := &stubProvider{responses: []string{attrsJSON}, tokens: 100}
	e := New(provider, openTracker(t, 150))

	res, err := e.Run(context.Background(), products(3))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Extracted != 3 || res.Failed != 0 || res.Partial {
		t.Fatalf("result = %+v", res)
	}

	attrs := res.Attributes["B0EXTRACT0"]
	if attrs == nil || attrs.PrimaryBenefit != "effortless crushing" {
		t.Errorf("attributes = %+v", attrs)
	}
	if len(attrs.Materials) != 1 || attrs.Materials[0] != "stainless steel" {
		t.Errorf("materials = %v", attrs.Materials)
	}
}

func TestRunCountsDecodeFailures(t *testing.T) {
	provider := &stubProvider{responses: []string{"not json at all"}, tokens: 10}
	e := New(provider, openTracker(t, 150))

	res, err := e.Run(context.Background(), products(2))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Failed != 2 || res.Extracted != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestRunStopsOnBudgetExhaustion(t *testing.T) {
	// Ceiling of one cent: the first recorded charge crosses the hard stop.
	provider := &stubProvider{responses: []string{attrsJSON}, tokens: 100_000}
	e := New(provider, openTracker(t, 0.01))

	res, err := e.Run(context.Background(), products(5))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Partial {
		t.Fatal("expected partial result after budget exhaustion")
	}
	if res.Extracted != 1 {
		t.Errorf("extracted = %d, want 1", res.Extracted)
	}
	if res.Skipped != 4 {
		t.Errorf("skipped = %d, want 4", res.Skipped)
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls)
	}
}

func TestRunCancelledContext(t *testing.T) {
	provider := &stubProvider{responses: []string{attrsJSON}}
	e := New(provider, openTracker(t, 150))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Run(ctx, products(1)); err == nil {
		t.Fatal("expected context error")
	}
}
