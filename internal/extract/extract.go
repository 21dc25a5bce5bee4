// Package extract runs the attribute-extraction stage: per-product prompts
// against the configured AI provider, with spend gating through the budget
// tracker.
package extract

import (
	"context"
	"fmt"
	"log"
	"strings"

	"marketscout/internal/budget"
	"marketscout/internal/llm"
	"marketscout/internal/scrape"
)

// Attributes is the structured view the model returns for one product.
type Attributes struct {
	KeyFeatures    []string `json:"key_features"`
	Materials      []string `json:"materials"`
	PrimaryBenefit string   `json:"primary_benefit"`
	TargetAudience string   `json:"target_audience"`
	UseCases       []string `json:"use_cases"`
	Differentiator string   `json:"differentiator"`
}

// Result summarizes one extraction run. Partial is set when the budget hard
// stop interrupted the run before every product was processed.
type Result struct {
	Attributes map[string]*Attributes
	Extracted  int
	Skipped    int
	Failed     int
	Partial    bool
}

// Extractor drives attribute extraction for enriched products.
type Extractor struct {
	provider  llm.Provider
	tracker   *budget.Tracker
	maxTokens int
}

func New(provider llm.Provider, tracker *budget.Tracker) *Extractor {
	return &Extractor{provider: provider, tracker: tracker, maxTokens: 1024}
}

// Run extracts attributes for each product in order. A budget hard stop ends
// the run early with Partial set; per-product failures are counted and the
// remaining products still run.
func (e *Extractor) Run(ctx context.Context, products []*scrape.ItemDetail) (*Result, error) {
	res := &Result{Attributes: make(map[string]*Attributes, len(products))}

	for _, product := range products {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if !e.tracker.CanProceed() {
			res.Partial = true
			res.Skipped = len(products) - res.Extracted - res.Failed
			log.Printf("extraction: budget exhausted, %d products skipped", res.Skipped)
			return res, nil
		}

		attrs, err := e.extractOne(ctx, product)
		if err != nil {
			res.Failed++
			log.Printf("extraction: %s failed: %v", product.ASIN, err)
			continue
		}
		res.Attributes[product.ASIN] = attrs
		res.Extracted++
	}
	return res, nil
}

func (e *Extractor) extractOne(ctx context.Context, product *scrape.ItemDetail) (*Attributes, error) {
	completion, err := e.provider.Complete(ctx, buildPrompt(product), e.maxTokens, 0.2)
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}
	e.tracker.RecordUsage(e.provider.Model(), "attribute_extraction", completion.InputTokens, completion.OutputTokens)

	var attrs Attributes
	if err := llm.DecodeJSON(completion.Text, &attrs); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	return &attrs, nil
}

func buildPrompt(product *scrape.ItemDetail) string {
	var b strings.Builder
	b.WriteString("You are a marketplace product analyst. Extract structured attributes from this product information.\n\n")
	b.WriteString("Product Information:\n")
	fmt.Fprintf(&b, "- Name: %s\n", product.Name)
	if product.Brand != "" {
		fmt.Fprintf(&b, "- Brand: %s\n", product.Brand)
	}
	if len(product.Breadcrumb) > 0 {
		fmt.Fprintf(&b, "- Category: %s\n", strings.Join(product.Breadcrumb, " > "))
	}
	if product.Price != nil {
		fmt.Fprintf(&b, "- Price: $%.2f\n", *product.Price)
	}
	if len(product.Features) > 0 {
		fmt.Fprintf(&b, "- Features: %s\n", strings.Join(product.Features, "; "))
	}
	if product.Description != "" {
		desc := product.Description
		if len(desc) > 1000 {
			desc = desc[:1000]
		}
		fmt.Fprintf(&b, "- Description: %s\n", desc)
	}

	b.WriteString(`
Return ONLY a valid JSON object (no other text):

{
  "key_features": ["distinguishing features"],
  "materials": ["materials or key components"],
  "primary_benefit": "main benefit to the buyer",
  "target_audience": "who this is for",
  "use_cases": ["typical usage scenarios"],
  "differentiator": "what sets it apart from category rivals"
}

Rules:
1. Only include information explicitly stated or strongly implied
2. Use "Unknown" for single values if not determinable
3. Use empty arrays [] for lists if no matches
4. Be conservative, do not guess beyond what is clear
5. Return ONLY the JSON object, no other text

JSON:`)
	return b.String()
}
