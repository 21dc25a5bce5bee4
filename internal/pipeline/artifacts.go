package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"marketscout/internal/scrape"
)

const snapshotStamp = "2006-01-02_150405"

// writeJSON persists an artifact atomically via a temp file rename.
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func snapshotPath(dir, prefix string, at time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.json", prefix, at.Format(snapshotStamp)))
}

// loadRankHistory reads every ranks snapshot in dir, oldest first, keyed by
// category. Unreadable snapshots are skipped.
func loadRankHistory(dir string) map[string][][]scrape.RankedItem {
	paths, err := filepath.Glob(filepath.Join(dir, "ranks_*.json"))
	if err != nil {
		return nil
	}
	sort.Strings(paths)

	history := make(map[string][][]scrape.RankedItem)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var snapshot map[string][]scrape.RankedItem
		if err := json.Unmarshal(data, &snapshot); err != nil {
			continue
		}
		for category, items := range snapshot {
			history[category] = append(history[category], items)
		}
	}
	return history
}

// mergeCategoryProducts updates the rolling per-category product index with
// this run's rankings. Categories not collected this run keep their previous
// entries.
func mergeCategoryProducts(path string, ranks map[string][]scrape.RankedItem) error {
	merged := make(map[string][]scrape.RankedItem)
	if data, err := os.ReadFile(path); err == nil {
		// A corrupt index is rebuilt from this run alone.
		_ = json.Unmarshal(data, &merged)
	}
	for category, items := range ranks {
		merged[category] = items
	}
	return writeJSON(path, merged)
}
