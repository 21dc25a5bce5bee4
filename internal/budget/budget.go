// Package budget tracks estimated AI spend against a monthly ceiling and
// halts further calls once the hard-stop threshold is crossed.
package budget

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	warnFraction = 0.80
	stopFraction = 0.95
)

// Pricing is USD per million tokens.
type Pricing struct {
	Input  float64
	Output float64
}

var modelPricing = map[string]Pricing{
	"claude-3-5-haiku-20241022":  {Input: 0.80, Output: 4.0},
	"claude-3-5-sonnet-20241022": {Input: 3.0, Output: 15.0},
	"claude-3-haiku-20240307":    {Input: 0.25, Output: 1.25},
	"gpt-4o-mini":                {Input: 0.15, Output: 0.60},
	"gpt-4o":                     {Input: 2.50, Output: 10.0},
}

var fallbackPricing = Pricing{Input: 1.0, Output: 5.0}

// monthUsage is the per-month ledger section persisted to disk.
type monthUsage struct {
	TotalCost     float64               `json:"total_cost"`
	TotalRequests int                   `json:"total_requests"`
	InputTokens   int64                 `json:"total_input_tokens"`
	OutputTokens  int64                 `json:"total_output_tokens"`
	ByTask        map[string]*taskUsage `json:"by_task_type,omitempty"`
}

type taskUsage struct {
	Cost     float64 `json:"cost"`
	Requests int     `json:"requests"`
}

// Tracker is the mutex-serialized budget ledger. Serializing RecordUsage
// prevents concurrent AI calls from overshooting the hard stop.
type Tracker struct {
	mu      sync.Mutex
	path    string
	ceiling float64
	months  map[string]*monthUsage

	now func() time.Time
}

// Charge summarizes the effect of one recorded call.
type Charge struct {
	Cost        float64
	MonthTotal  float64
	Remaining   float64
	UsedPercent float64
}

// Stats is a read-only view of the current month.
type Stats struct {
	Month        string  `json:"month"`
	TotalCost    float64 `json:"total_cost"`
	Requests     int     `json:"total_requests"`
	InputTokens  int64   `json:"total_input_tokens"`
	OutputTokens int64   `json:"total_output_tokens"`
	Ceiling      float64 `json:"budget_limit"`
	Remaining    float64 `json:"budget_remaining"`
	UsedPercent  float64 `json:"budget_used_percent"`
}

// Open loads the ledger file, starting fresh if it is missing or corrupt.
func Open(path string, ceiling float64) (*Tracker, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	t := &Tracker{
		path:    path,
		ceiling: ceiling,
		months:  make(map[string]*monthUsage),
		now:     time.Now,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Cannot read budget ledger %s: %v (starting fresh)", path, err)
		}
		return t, nil
	}
	if err := json.Unmarshal(data, &t.months); err != nil {
		log.Printf("Budget ledger %s is corrupt: %v (starting fresh)", path, err)
		t.months = make(map[string]*monthUsage)
	}
	return t, nil
}

// RecordUsage charges the ledger for one AI call and persists it.
func (t *Tracker) RecordUsage(model, task string, inputTokens, outputTokens int) Charge {
	pricing, ok := modelPricing[model]
	if !ok {
		log.Printf("Unknown model %q, charging fallback pricing", model)
		pricing = fallbackPricing
	}
	cost := float64(inputTokens)/1e6*pricing.Input + float64(outputTokens)/1e6*pricing.Output

	t.mu.Lock()
	defer t.mu.Unlock()

	m := t.monthLocked()
	m.TotalCost += cost
	m.TotalRequests++
	m.InputTokens += int64(inputTokens)
	m.OutputTokens += int64(outputTokens)

	if m.ByTask == nil {
		m.ByTask = make(map[string]*taskUsage)
	}
	tu := m.ByTask[task]
	if tu == nil {
		tu = &taskUsage{}
		m.ByTask[task] = tu
	}
	tu.Cost += cost
	tu.Requests++

	t.saveLocked()
	t.warnLocked(m.TotalCost)

	return Charge{
		Cost:        cost,
		MonthTotal:  m.TotalCost,
		Remaining:   t.ceiling - m.TotalCost,
		UsedPercent: percent(m.TotalCost, t.ceiling),
	}
}

// RecordCost adds a raw estimated amount to the ledger.
func (t *Tracker) RecordCost(task string, amount float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := t.monthLocked()
	m.TotalCost += amount
	m.TotalRequests++
	if m.ByTask == nil {
		m.ByTask = make(map[string]*taskUsage)
	}
	tu := m.ByTask[task]
	if tu == nil {
		tu = &taskUsage{}
		m.ByTask[task] = tu
	}
	tu.Cost += amount
	tu.Requests++

	t.saveLocked()
	t.warnLocked(m.TotalCost)
}

// CanProceed reports whether another AI call fits under the hard-stop
// threshold. Once it turns false it stays false for the rest of the month.
func (t *Tracker) CanProceed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.monthLocked().TotalCost < t.ceiling*stopFraction
}

// IsWarning reports whether spend has passed the warning threshold.
func (t *Tracker) IsWarning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.monthLocked().TotalCost >= t.ceiling*warnFraction
}

// MonthStats returns the current month's totals.
func (t *Tracker) MonthStats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := t.monthLocked()
	return Stats{
		Month:        t.monthKey(),
		TotalCost:    m.TotalCost,
		Requests:     m.TotalRequests,
		InputTokens:  m.InputTokens,
		OutputTokens: m.OutputTokens,
		Ceiling:      t.ceiling,
		Remaining:    t.ceiling - m.TotalCost,
		UsedPercent:  percent(m.TotalCost, t.ceiling),
	}
}

func (t *Tracker) monthKey() string {
	return t.now().Format("2006-01")
}

// monthLocked returns the current month's section, creating it if absent.
// Caller holds mu.
func (t *Tracker) monthLocked() *monthUsage {
	key := t.monthKey()
	m := t.months[key]
	if m == nil {
		m = &monthUsage{}
		t.months[key] = m
	}
	return m
}

// saveLocked persists the ledger. Caller holds mu. Ledger write failures are
// logged, not fatal: the in-memory ledger still enforces the ceiling.
func (t *Tracker) saveLocked() {
	data, err := json.MarshalIndent(t.months, "", "  ")
	if err != nil {
		log.Printf("Cannot marshal budget ledger: %v", err)
		return
	}
	if err := os.WriteFile(t.path, data, 0o644); err != nil {
		log.Printf("Cannot save budget ledger: %v", err)
	}
}

func (t *Tracker) warnLocked(total float64) {
	used := percent(total, t.ceiling)
	switch {
	case used >= stopFraction*100:
		log.Printf("AI BUDGET CRITICAL: %.1f%% used ($%.2f / $%.2f)", used, total, t.ceiling)
	case used >= warnFraction*100:
		log.Printf("AI budget warning: %.1f%% used ($%.2f / $%.2f)", used, total, t.ceiling)
	}
}

func percent(total, ceiling float64) float64 {
	if ceiling <= 0 {
		return 100
	}
	return total / ceiling * 100
}
