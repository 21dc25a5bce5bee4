// Package report renders the run summary as a markdown document and a
// browsable HTML artifact.
package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
)

var md = goldmark.New()

// StageLine is one stage row of the run summary.
type StageLine struct {
	Name      string
	Status    string
	ItemCount int
	Elapsed   time.Duration
	Message   string
}

// Summary describes one finished pipeline run.
type Summary struct {
	RunID      string
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
	Categories []string
	Stages     []StageLine

	ItemsCollected int
	ItemsEnriched  int
	ItemsCached    int
	ItemsFailed    int

	BudgetSpent   float64
	BudgetCeiling float64
}

// Markdown renders the summary as a markdown document.
func Markdown(s *Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Run %s\n\n", s.RunID)
	fmt.Fprintf(&b, "**Status**: %s  \n", s.Status)
	fmt.Fprintf(&b, "**Started**: %s  \n", s.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "**Elapsed**: %.0fs  \n", s.FinishedAt.Sub(s.StartedAt).Seconds())
	if len(s.Categories) > 0 {
		fmt.Fprintf(&b, "**Categories**: %s  \n", strings.Join(s.Categories, ", "))
	}

	b.WriteString("\n## Stages\n\n")
	b.WriteString("| Stage | Status | Items | Elapsed |\n")
	b.WriteString("|-------|--------|-------|--------|\n")
	for _, stage := range s.Stages {
		fmt.Fprintf(&b, "| %s | %s | %d | %.1fs |\n",
			stage.Name, stage.Status, stage.ItemCount, stage.Elapsed.Seconds())
	}

	var messages []string
	for _, stage := range s.Stages {
		if stage.Message != "" {
			messages = append(messages, fmt.Sprintf("- %s: %s", stage.Name, stage.Message))
		}
	}
	if len(messages) > 0 {
		b.WriteString("\n## Notes\n\n")
		b.WriteString(strings.Join(messages, "\n"))
		b.WriteString("\n")
	}

	b.WriteString("\n## Totals\n\n")
	fmt.Fprintf(&b, "- Collected: %d\n", s.ItemsCollected)
	fmt.Fprintf(&b, "- Enriched: %d (plus %d served from cache)\n", s.ItemsEnriched, s.ItemsCached)
	fmt.Fprintf(&b, "- Failed: %d\n", s.ItemsFailed)
	if s.BudgetCeiling > 0 {
		fmt.Fprintf(&b, "- AI spend this month: $%.2f of $%.2f\n", s.BudgetSpent, s.BudgetCeiling)
	}
	return b.String()
}

const htmlShell = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: sans-serif; max-width: 52rem; margin: 2rem auto; padding: 0 1rem; color: #222; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 0.3rem 0.7rem; text-align: left; }
</style>
</head>
<body>
%s
</body>
</html>
`

// WriteHTML renders the summary to an HTML file at path, creating parent
// directories as needed.
func WriteHTML(s *Summary, path string) error {
	var buf bytes.Buffer
	if err := md.Convert([]byte(Markdown(s)), &buf); err != nil {
		return fmt.Errorf("rendering summary markdown: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	html := fmt.Sprintf(htmlShell, "Run "+s.RunID, buf.String())
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
