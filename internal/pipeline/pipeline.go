// Package pipeline orchestrates the staged collection run: rank collection,
// enrichment, review collection, artifact persistence, derived metrics, and
// the optional AI stages.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"marketscout/internal/budget"
	"marketscout/internal/cache"
	"marketscout/internal/config"
	"marketscout/internal/database"
	"marketscout/internal/enrich"
	"marketscout/internal/extract"
	"marketscout/internal/fetch"
	"marketscout/internal/ideation"
	"marketscout/internal/insights"
	"marketscout/internal/llm"
	"marketscout/internal/ratelimit"
	"marketscout/internal/report"
	"marketscout/internal/retry"
	"marketscout/internal/scrape"
)

// Stage names as recorded in the run log.
const (
	StageRankCollection      = "rank_collection"
	StageEnrichment          = "enrichment"
	StageReviewCollection    = "review_collection"
	StageRawSave             = "raw_save"
	StageMetricsGeneration   = "metrics_generation"
	StageAttributeExtraction = "attribute_extraction"
	StageIdeation            = "ideation"
)

// Stage statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
	StatusPartial   = "partial"
)

// Collector retrieves the ranked entries of one category listing.
type Collector interface {
	CollectRanks(ctx context.Context, cat config.Category) ([]scrape.RankedItem, error)
}

// ReviewFetcher retrieves the reviews of one item.
type ReviewFetcher interface {
	FetchReviews(ctx context.Context, asin string, maxReviews int) (*scrape.ReviewSet, error)
}

// Enricher resolves item details for a set of ASINs.
type Enricher interface {
	Enrich(ctx context.Context, asins []string) (*enrich.Result, error)
}

// AttributeRunner extracts structured attributes from enriched products.
type AttributeRunner interface {
	Run(ctx context.Context, products []*scrape.ItemDetail) (*extract.Result, error)
}

// IdeaRunner generates product ideas per category.
type IdeaRunner interface {
	Run(ctx context.Context, inputs []ideation.CategoryInput) (*ideation.Report, error)
}

// StageOutcome is one stage row of a run result.
type StageOutcome struct {
	Name      string
	Status    string
	ItemCount int
	Elapsed   time.Duration
	Message   string
	Err       error
}

// Result holds the outcome of a full pipeline run.
type Result struct {
	RunID  string
	Status string
	Stages []StageOutcome
}

// Pipeline drives one collection run end to end.
type Pipeline struct {
	cfg      *config.Config
	db       *database.DB
	tracker  *budget.Tracker
	provider llm.Provider

	collector Collector
	reviewer  ReviewFetcher
	enricher  Enricher
	extractor AttributeRunner
	ideator   IdeaRunner

	dataDir   string
	outputDir string
	now       func() time.Time
	newRunID  func() string
}

// New wires a pipeline from configuration: rate-limited fetch client, retry
// policy, scraper, batch enricher, and the AI components when a provider is
// configured.
func New(cfg *config.Config, db *database.DB, store *cache.Store, tracker *budget.Tracker) *Pipeline {
	limiter := ratelimit.New(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.RequestsPerHour)
	nav := fetch.NewHTTPNavigator(cfg.RequestTimeout())
	client := fetch.NewClient(nav, limiter)
	policy := retry.New(
		cfg.Retry.MaxAttempts,
		time.Duration(cfg.Retry.BaseDelaySec)*time.Second,
		time.Duration(cfg.Retry.MaxDelaySec)*time.Second,
		time.Duration(cfg.Retry.BlockedCooldownMin)*time.Second,
		time.Duration(cfg.Retry.BlockedCooldownMax)*time.Second,
	)
	scraper := scrape.NewScraper(client, policy, cfg.Site.BaseURL)

	p := &Pipeline{
		cfg:       cfg,
		db:        db,
		tracker:   tracker,
		provider:  llm.CreateProvider(cfg.AI),
		collector: scraper,
		reviewer:  scraper,
		enricher: enrich.NewBatchEnricher(scraper, store, cfg.Enrichment.Concurrency,
			time.Duration(cfg.Enrichment.InterBatchDelaySec)*time.Second),
		dataDir:   cfg.GetDataDir(),
		outputDir: cfg.GetOutputDir(),
		now:       time.Now,
		newRunID:  uuid.NewString,
	}
	if p.provider != nil {
		p.extractor = extract.New(p.provider, tracker)
		p.ideator = ideation.NewEngine(p.provider, tracker, cfg.AI.IdeasPerCategory)
	}
	return p
}

// runState carries data between stages within one run.
type runState struct {
	runID      string
	startedAt  time.Time
	ranks      map[string][]scrape.RankedItem
	details    map[string]*scrape.ItemDetail
	reviews    map[string]*scrape.ReviewSet
	enrichRes  *enrich.Result
	attributes map[string]*extract.Attributes
}

// Run executes every stage in order. A fatal stage marks the run failed and
// stops advancing; skipped and partial stages let the run continue.
func (p *Pipeline) Run(ctx context.Context) *Result {
	runID := p.newRunID()
	res := &Result{RunID: runID, Status: StatusSucceeded}
	state := &runState{
		runID:     runID,
		startedAt: p.now(),
		ranks:     make(map[string][]scrape.RankedItem),
		details:   make(map[string]*scrape.ItemDetail),
		reviews:   make(map[string]*scrape.ReviewSet),
	}

	if err := p.db.StartRun(runID, len(p.cfg.Categories)); err != nil {
		res.Status = StatusFailed
		res.Stages = append(res.Stages, StageOutcome{Name: "init", Status: StatusFailed, Err: err})
		return res
	}
	log.Printf("run %s: %d categories", runID, len(p.cfg.Categories))

	stages := []struct {
		name string
		fn   func(ctx context.Context, state *runState) StageOutcome
	}{
		{StageRankCollection, p.runRankCollection},
		{StageEnrichment, p.runEnrichment},
		{StageReviewCollection, p.runReviewCollection},
		{StageRawSave, p.runRawSave},
		{StageMetricsGeneration, p.runMetrics},
		{StageAttributeExtraction, p.runExtraction},
		{StageIdeation, p.runIdeation},
	}

	for i, stage := range stages {
		log.Printf("stage %d/%d: %s", i+1, len(stages), stage.name)
		outcome := p.runStage(ctx, stage.name, state, stage.fn)
		res.Stages = append(res.Stages, outcome)

		switch outcome.Status {
		case StatusFailed:
			res.Status = StatusFailed
		case StatusPartial:
			if res.Status != StatusFailed {
				res.Status = StatusPartial
			}
		}
		if outcome.Status == StatusFailed {
			break
		}
	}

	p.finish(res, state)
	return res
}

// runStage applies the stage wall-clock budget, times the stage, and records
// its outcome in the run log.
func (p *Pipeline) runStage(ctx context.Context, name string, state *runState, fn func(ctx context.Context, state *runState) StageOutcome) StageOutcome {
	stageCtx, cancel := context.WithTimeout(ctx, p.cfg.StageTimeout())
	defer cancel()

	start := p.now()
	outcome := fn(stageCtx, state)
	outcome.Name = name
	outcome.Elapsed = p.now().Sub(start)

	var msg *string
	if outcome.Err != nil {
		s := outcome.Err.Error()
		msg = &s
	} else if outcome.Message != "" {
		msg = &outcome.Message
	}
	if err := p.db.RecordStage(state.runID, name, outcome.Status, outcome.ItemCount, msg); err != nil {
		log.Printf("run log: recording %s failed: %v", name, err)
	}
	return outcome
}

func (p *Pipeline) runRankCollection(ctx context.Context, state *runState) StageOutcome {
	var collected, failedCategories int
	for _, cat := range p.cfg.Categories {
		items, err := p.collector.CollectRanks(ctx, cat)
		if err != nil {
			failedCategories++
			log.Printf("rank collection: %s failed: %v", cat.Name, err)
			continue
		}
		state.ranks[cat.Name] = items
		collected += len(items)
	}

	if len(state.ranks) == 0 {
		return StageOutcome{Status: StatusFailed, Err: fmt.Errorf("all %d categories failed", len(p.cfg.Categories))}
	}

	// Rankings persist before any later stage runs.
	if err := writeJSON(snapshotPath(p.dataDir, "ranks", state.startedAt), state.ranks); err != nil {
		return StageOutcome{Status: StatusFailed, Err: err}
	}
	if err := mergeCategoryProducts(filepath.Join(p.dataDir, "category_products.json"), state.ranks); err != nil {
		return StageOutcome{Status: StatusFailed, Err: err}
	}

	outcome := StageOutcome{Status: StatusSucceeded, ItemCount: collected}
	if failedCategories > 0 {
		outcome.Status = StatusPartial
		outcome.Message = fmt.Sprintf("%d categories failed", failedCategories)
	}
	return outcome
}

func (p *Pipeline) runEnrichment(ctx context.Context, state *runState) StageOutcome {
	asins := p.enrichmentTargets(state)
	if len(asins) == 0 {
		return StageOutcome{Status: StatusSkipped, Message: "enrichment disabled"}
	}

	res, err := p.enricher.Enrich(ctx, asins)
	if res != nil {
		state.enrichRes = res
		for asin, detail := range res.Items {
			state.details[asin] = detail
		}
	}
	if err != nil {
		return StageOutcome{Status: StatusFailed, Err: err}
	}

	outcome := StageOutcome{Status: StatusSucceeded, ItemCount: res.Enriched + res.Cached}
	if res.Failed > 0 {
		outcome.Message = fmt.Sprintf("%d items failed", res.Failed)
	}
	return outcome
}

// enrichmentTargets applies the configured strategy to this run's rankings.
func (p *Pipeline) enrichmentTargets(state *runState) []string {
	if !p.cfg.Enrichment.Enabled || p.cfg.Enrichment.Strategy == "none" {
		return nil
	}

	seen := make(map[string]struct{})
	var asins []string
	for _, items := range state.ranks {
		limit := len(items)
		if p.cfg.Enrichment.Strategy == "top_n" && p.cfg.Enrichment.TopNPerCategory < limit {
			limit = p.cfg.Enrichment.TopNPerCategory
		}
		for _, item := range items[:limit] {
			if _, dup := seen[item.ASIN]; dup {
				continue
			}
			seen[item.ASIN] = struct{}{}
			asins = append(asins, item.ASIN)
		}
	}
	return asins
}

func (p *Pipeline) runReviewCollection(ctx context.Context, state *runState) StageOutcome {
	if !p.cfg.Reviews.Enabled {
		return StageOutcome{Status: StatusSkipped, Message: "review collection disabled"}
	}

	var collected, failed int
	for _, items := range state.ranks {
		limit := len(items)
		if p.cfg.Reviews.TopPerCategory < limit {
			limit = p.cfg.Reviews.TopPerCategory
		}
		for _, item := range items[:limit] {
			if _, done := state.reviews[item.ASIN]; done {
				continue
			}
			set, err := p.reviewer.FetchReviews(ctx, item.ASIN, p.cfg.Reviews.MaxPerProduct)
			if err != nil {
				failed++
				log.Printf("review collection: %s failed: %v", item.ASIN, err)
				continue
			}
			state.reviews[item.ASIN] = set
			collected += set.Count
		}
	}

	outcome := StageOutcome{Status: StatusSucceeded, ItemCount: collected}
	if failed > 0 {
		outcome.Message = fmt.Sprintf("%d items failed", failed)
	}
	return outcome
}

func (p *Pipeline) runRawSave(_ context.Context, state *runState) StageOutcome {
	if err := writeJSON(snapshotPath(p.dataDir, "products", state.startedAt), state.details); err != nil {
		return StageOutcome{Status: StatusFailed, Err: err}
	}
	if len(state.reviews) > 0 {
		if err := writeJSON(snapshotPath(p.dataDir, "reviews", state.startedAt), state.reviews); err != nil {
			return StageOutcome{Status: StatusFailed, Err: err}
		}
	}
	return StageOutcome{Status: StatusSucceeded, ItemCount: len(state.details)}
}

func (p *Pipeline) runMetrics(_ context.Context, state *runState) StageOutcome {
	history := loadRankHistory(p.dataDir)
	reviews := make(map[string][]scrape.Review, len(state.reviews))
	for asin, set := range state.reviews {
		reviews[asin] = set.Reviews
	}

	metrics := insights.Build(history, reviews, p.now())
	if err := writeJSON(snapshotPath(p.dataDir, "metrics", state.startedAt), metrics); err != nil {
		return StageOutcome{Status: StatusFailed, Err: err}
	}
	return StageOutcome{Status: StatusSucceeded, ItemCount: len(metrics.Volatility)}
}

func (p *Pipeline) runExtraction(ctx context.Context, state *runState) StageOutcome {
	if p.extractor == nil {
		log.Printf("attribute extraction: no AI credential configured, skipping")
		return StageOutcome{Status: StatusSkipped, Message: "no AI credential configured"}
	}

	products := make([]*scrape.ItemDetail, 0, len(state.details))
	for _, items := range p.sortedCategories(state) {
		for _, item := range items {
			if detail, ok := state.details[item.ASIN]; ok {
				products = append(products, detail)
			}
		}
	}

	res, err := p.extractor.Run(ctx, products)
	if err != nil {
		return StageOutcome{Status: StatusFailed, Err: err}
	}
	state.attributes = res.Attributes

	if err := writeJSON(snapshotPath(p.dataDir, "attributes", state.startedAt), res.Attributes); err != nil {
		return StageOutcome{Status: StatusFailed, Err: err}
	}

	outcome := StageOutcome{Status: StatusSucceeded, ItemCount: res.Extracted}
	if res.Partial {
		outcome.Status = StatusPartial
		outcome.Message = fmt.Sprintf("budget exhausted, %d products skipped", res.Skipped)
	}
	return outcome
}

func (p *Pipeline) runIdeation(ctx context.Context, state *runState) StageOutcome {
	if p.ideator == nil {
		log.Printf("ideation: no AI credential configured, skipping")
		return StageOutcome{Status: StatusSkipped, Message: "no AI credential configured"}
	}
	if !p.tracker.CanProceed() {
		return StageOutcome{Status: StatusSkipped, Message: "budget exhausted"}
	}

	history := loadRankHistory(p.dataDir)
	var inputs []ideation.CategoryInput
	for category, items := range state.ranks {
		input := ideation.CategoryInput{Name: category, Items: items}
		if len(state.attributes) > 0 {
			input.Attributes = make(map[string]*extract.Attributes)
			for _, item := range items {
				if attrs, ok := state.attributes[item.ASIN]; ok {
					input.Attributes[item.ASIN] = attrs
				}
			}
		}
		if snapshots := history[category]; len(snapshots) >= 2 {
			v := insights.CalculateVolatility(category, snapshots)
			input.Volatility = &v
		}
		inputs = append(inputs, input)
	}

	rep, err := p.ideator.Run(ctx, inputs)
	if err != nil {
		return StageOutcome{Status: StatusFailed, Err: err}
	}
	if err := writeJSON(snapshotPath(p.dataDir, "ideas", state.startedAt), rep); err != nil {
		return StageOutcome{Status: StatusFailed, Err: err}
	}

	var ideas int
	for _, categoryIdeas := range rep.Ideas {
		ideas += len(categoryIdeas)
	}
	outcome := StageOutcome{Status: StatusSucceeded, ItemCount: ideas}
	if rep.Partial {
		outcome.Status = StatusPartial
		outcome.Message = "budget exhausted before all categories"
	}
	return outcome
}

// sortedCategories returns this run's rankings in stable category order.
func (p *Pipeline) sortedCategories(state *runState) [][]scrape.RankedItem {
	var out [][]scrape.RankedItem
	for _, cat := range p.cfg.Categories {
		if items, ok := state.ranks[cat.Name]; ok {
			out = append(out, items)
		}
	}
	return out
}

// finish closes the run log entry and writes the browsable run summary.
func (p *Pipeline) finish(res *Result, state *runState) {
	finishedAt := p.now()

	var collected, enriched, cached, failed int
	for _, items := range state.ranks {
		collected += len(items)
	}
	if state.enrichRes != nil {
		enriched = state.enrichRes.Enriched
		cached = state.enrichRes.Cached
		failed = state.enrichRes.Failed
	}

	var notes *string
	for _, stage := range res.Stages {
		if stage.Status == StatusSkipped || stage.Status == StatusPartial {
			s := fmt.Sprintf("%s %s", stage.Name, stage.Status)
			notes = &s
			break
		}
	}
	if err := p.db.FinishRun(res.RunID, res.Status, collected, enriched, failed, notes); err != nil {
		log.Printf("run log: finishing run failed: %v", err)
	}

	summary := &report.Summary{
		RunID:          res.RunID,
		Status:         res.Status,
		StartedAt:      state.startedAt,
		FinishedAt:     finishedAt,
		ItemsCollected: collected,
		ItemsEnriched:  enriched,
		ItemsCached:    cached,
		ItemsFailed:    failed,
	}
	for _, cat := range p.cfg.Categories {
		summary.Categories = append(summary.Categories, cat.Name)
	}
	for _, stage := range res.Stages {
		line := report.StageLine{
			Name:      stage.Name,
			Status:    stage.Status,
			ItemCount: stage.ItemCount,
			Elapsed:   stage.Elapsed,
			Message:   stage.Message,
		}
		if stage.Err != nil {
			line.Message = stage.Err.Error()
		}
		summary.Stages = append(summary.Stages, line)
	}
	stats := p.tracker.MonthStats()
	summary.BudgetSpent = stats.TotalCost
	summary.BudgetCeiling = stats.Ceiling

	reportPath := filepath.Join(p.outputDir, "reports", fmt.Sprintf("run_%s.html", res.RunID))
	if err := report.WriteHTML(summary, reportPath); err != nil {
		log.Printf("run summary: %v", err)
	} else {
		log.Printf("run summary written to %s", reportPath)
	}
	log.Printf("run %s finished: %s (%d collected, %d enriched, %d failed)",
		res.RunID, res.Status, collected, enriched, failed)
}
