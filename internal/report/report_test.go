package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func sampleSummary() *Summary {
	start := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	return &Summary{
		RunID:      "run-001",
		Status:     "succeeded",
		StartedAt:  start,
		FinishedAt: start.Add(42 * time.Second),
		Categories: []string{"kitchen", "garden"},
		Stages: []StageLine{
			{Name: "rank_collection", Status: "succeeded", ItemCount: 100, Elapsed: 12 * time.Second},
			{Name: "attribute_extraction", Status: "skipped", Message: "no AI credential configured"},
		},
		ItemsCollected: 100,
		ItemsEnriched:  80,
		ItemsCached:    15,
		ItemsFailed:    5,
		BudgetSpent:    1.25,
		BudgetCeiling:  150,
	}
}

func TestMarkdown(t *testing.T) {
	out := Markdown(sampleSummary())
	for _, want := range []string{
		"# Run run-001",
		"**Status**: succeeded",
		"| rank_collection | succeeded | 100 | 12.0s |",
		"attribute_extraction: no AI credential configured",
		"Enriched: 80 (plus 15 served from cache)",
		"$1.25 of $150.00",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestWriteHTML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "run-001.html")
	if err := WriteHTML(sampleSummary(), path); err != nil {
		t.Fatalf("WriteHTML: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	html := string(data)
	if !strings.Contains(html, "<table>") {
		t.Error("expected rendered markdown table")
	}
	if !strings.Contains(html, "<h1") {
		t.Error("expected rendered heading")
	}
	if !strings.Contains(html, "<title>Run run-001</title>") {
		t.Error("expected page title")
	}
}
