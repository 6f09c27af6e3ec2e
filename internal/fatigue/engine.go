package fatigue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/AngelCh415/flare-go/internal/models"
)

// Pipeline stage names, as reported in errors and metrics.
const (
	StageLoad       = "loadData"
	StagePreprocess = "preprocess"
	StageCompute    = "computeFatigueScores"
)

// Source produces the raw dataset. Loading is the caller's I/O; the engine
// itself never touches files or the network.
type Source interface {
	Load(ctx context.Context) (models.Dataset, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (models.Dataset, error)

func (f SourceFunc) Load(ctx context.Context) (models.Dataset, error) { return f(ctx) }

// Observer receives pipeline telemetry.
type Observer interface {
	ObserveStage(stage string, took time.Duration, err error)
	ObserveSummary(sum models.PortfolioSummary)
}

type nopObserver struct{}

func (nopObserver) ObserveStage(string, time.Duration, error) {}
func (nopObserver) ObserveSummary(models.PortfolioSummary)    {}

type campaign struct {
	id          string
	series      []models.EnrichedObservation
	assessments []models.FatigueAssessment
	totalSpend  float64
}

// Engine runs the staged fatigue pipeline and serves consistent reads of its
// latest results. It is safe for concurrent readers.
type Engine struct {
	thresholds Thresholds
	workers    int
	log        zerolog.Logger
	obs        Observer

	mu        sync.RWMutex
	runID     string
	data      *models.Dataset
	rows      []models.EnrichedObservation
	withROI   bool
	withCPA   bool
	campaigns []campaign
	skipped   []models.SkippedCampaign
	scored    bool
}

type Option func(*Engine)

func WithThresholds(t Thresholds) Option { return func(e *Engine) { e.thresholds = t } }
func WithLogger(l zerolog.Logger) Option { return func(e *Engine) { e.log = l } }
func WithObserver(o Observer) Option     { return func(e *Engine) { e.obs = o } }

// WithWorkers bounds per-campaign parallelism. Values below one mean serial.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n < 1 {
			n = 1
		}
		e.workers = n
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		thresholds: DefaultThresholds(),
		workers:    1,
		log:        zerolog.Nop(),
		obs:        nopObserver{},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Thresholds() Thresholds { return e.thresholds }

// LoadData replaces the dataset and invalidates every downstream stage.
func (e *Engine) LoadData(ctx context.Context, src Source) error {
	start := time.Now()
	ds, err := src.Load(ctx)
	e.obs.ObserveStage(StageLoad, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("load data: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.runID = uuid.NewString()
	e.data = &ds
	e.rows = nil
	e.campaigns = nil
	e.skipped = nil
	e.scored = false
	e.log.Info().Str("run_id", e.runID).Int("rows", len(ds.Rows)).Strs("columns", ds.Columns).Msg("data loaded")
	return nil
}

// Preprocess validates the schema and derives efficiency metrics.
func (e *Engine) Preprocess() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.data == nil {
		return &NotReadyError{Stage: StagePreprocess, Missing: StageLoad}
	}

	start := time.Now()
	rows, err := Normalize(*e.data)
	e.obs.ObserveStage(StagePreprocess, time.Since(start), err)
	if err != nil {
		e.log.Error().Err(err).Str("run_id", e.runID).Msg("preprocess failed")
		return err
	}
	e.rows = rows
	e.withROI = e.data.HasColumn(models.ColRevenue) || e.data.HasColumn(models.ColROI)
	e.withCPA = e.data.HasColumn(models.ColConversions) || e.data.HasColumn(models.ColCPA)
	e.campaigns = nil
	e.skipped = nil
	e.scored = false
	e.log.Info().Str("run_id", e.runID).Int("rows", len(rows)).Bool("roi", e.withROI).Bool("cpa", e.withCPA).Msg("preprocess complete")
	return nil
}

// ComputeFatigueScores scores every campaign independently. A campaign that
// fails is reported in the skipped list and does not affect the others.
func (e *Engine) ComputeFatigueScores(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rows == nil {
		return &NotReadyError{Stage: StageCompute, Missing: StagePreprocess}
	}

	start := time.Now()
	ids, series := GroupSeries(e.rows)
	results := make([]campaign, len(ids))
	failures := make([]error, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i], failures[i] = e.scoreCampaign(id, series[id])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.obs.ObserveStage(StageCompute, time.Since(start), err)
		e.log.Warn().Str("run_id", e.runID).Err(err).Bool("previous_kept", e.scored).Msg("fatigue scoring cancelled")
		return fmt.Errorf("compute fatigue scores: %w", err)
	}

	e.campaigns = make([]campaign, 0, len(ids))
	e.skipped = nil
	for i, id := range ids {
		if failures[i] != nil {
			e.skipped = append(e.skipped, models.SkippedCampaign{CampaignID: id, Reason: failures[i].Error()})
			e.log.Warn().Str("run_id", e.runID).Str("campaign_id", id).Err(failures[i]).Msg("campaign skipped")
			continue
		}
		e.campaigns = append(e.campaigns, results[i])
	}
	e.scored = true

	e.obs.ObserveStage(StageCompute, time.Since(start), nil)
	e.obs.ObserveSummary(e.summarize())
	ev := e.log.Info().Str("run_id", e.runID).Int("campaigns", len(e.campaigns)).Int("skipped", len(e.skipped))
	if len(e.campaigns) == 0 {
		ev = ev.AnErr("warning", ErrEmptyDataset)
	}
	ev.Dur("took", time.Since(start)).Msg("fatigue scores computed")
	return nil
}

// Run executes the three pipeline stages in order.
func (e *Engine) Run(ctx context.Context, src Source) error {
	if err := e.LoadData(ctx, src); err != nil {
		return err
	}
	if err := e.Preprocess(); err != nil {
		return err
	}
	return e.ComputeFatigueScores(ctx)
}

func (e *Engine) scoreCampaign(id string, series []models.EnrichedObservation) (c campaign, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Str("campaign_id", id).Bytes("stack", debug.Stack()).Msg("panic while scoring campaign")
			err = fmt.Errorf("scoring panicked: %v", r)
		}
	}()

	for _, o := range series {
		if o.Impressions < 0 || o.Clicks < 0 || o.Spend < 0 {
			return campaign{}, fmt.Errorf("negative metric values on %s", o.Date.Format("2006-01-02"))
		}
	}

	ratios, roi := Decay(series, e.withROI)
	c = campaign{id: id, series: series, assessments: make([]models.FatigueAssessment, len(series))}
	for i, o := range series {
		r := ratios[i]
		stage := models.StageHealthy
		fri := 0.0
		if len(series) > 1 {
			stage = e.thresholds.Classify(r, roi)
			fri = Score(r, roi)
		}
		a := models.FatigueAssessment{
			CampaignID:  id,
			Date:        o.Date,
			CTRDecay:    optional(r.CTRDecay),
			CPAIncrease: optional(r.CPAIncrease),
			Stage:       stage,
			RatioStage:  stage,
			FRIScore:    fri,
			Spend:       o.Spend,
			CampaignAge: o.CampaignAge,
		}
		if roi {
			a.ROIDrop = optional(r.ROIDrop)
		}
		c.assessments[i] = a
		c.totalSpend += o.Spend
	}
	return c, nil
}

func (e *Engine) ready(stage string) error {
	if !e.scored {
		return &NotReadyError{Stage: stage, Missing: StageCompute}
	}
	return nil
}

func (c campaign) latest() models.FatigueAssessment {
	return Reconcile(c.assessments[len(c.assessments)-1])
}

func (c campaign) result() CampaignResult {
	latest := c.latest()
	return CampaignResult{
		CampaignID: c.id,
		Latest:     latest,
		Waste:      EstimateWaste(latest.Stage, latest.FRIScore, c.totalSpend),
	}
}

func (e *Engine) find(id string) (campaign, bool) {
	for _, c := range e.campaigns {
		if c.id == id {
			return c, true
		}
	}
	return campaign{}, false
}

// Assessments returns every (campaign, date) record in campaign/date order.
// The latest record of each campaign is reconciled with its score.
func (e *Engine) Assessments() ([]models.FatigueAssessment, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.ready("getFatigueAssessments"); err != nil {
		return nil, err
	}
	out := make([]models.FatigueAssessment, 0, len(e.rows))
	for _, c := range e.campaigns {
		out = append(out, c.assessments[:len(c.assessments)-1]...)
		out = append(out, c.latest())
	}
	return out, nil
}

// History returns one campaign's assessments with the latest reconciled.
func (e *Engine) History(campaignID string) ([]models.FatigueAssessment, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.ready("getHistory"); err != nil {
		return nil, err
	}
	c, ok := e.find(campaignID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCampaignNotFound, campaignID)
	}
	out := append([]models.FatigueAssessment(nil), c.assessments...)
	out[len(out)-1] = c.latest()
	return out, nil
}

func (e *Engine) recommend(c campaign) models.Recommendation {
	return Recommend(RecommendInput{
		CampaignID:   c.id,
		Series:       c.series,
		Latest:       c.latest(),
		CPAAvailable: e.withCPA,
	})
}

// Recommendation returns the recommendation set for one campaign.
func (e *Engine) Recommendation(campaignID string) (models.Recommendation, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.ready("getRecommendations"); err != nil {
		return models.Recommendation{}, err
	}
	c, ok := e.find(campaignID)
	if !ok {
		return models.Recommendation{}, fmt.Errorf("%w: %s", ErrCampaignNotFound, campaignID)
	}
	return e.recommend(c), nil
}

// Recommendations returns recommendation sets keyed by campaign id.
func (e *Engine) Recommendations() (map[string]models.Recommendation, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.ready("getRecommendations"); err != nil {
		return nil, err
	}
	out := make(map[string]models.Recommendation, len(e.campaigns))
	for _, c := range e.campaigns {
		out[c.id] = e.recommend(c)
	}
	return out, nil
}

// WasteEstimates returns current-state waste per campaign.
func (e *Engine) WasteEstimates() (map[string]models.WasteEstimate, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.ready("getWasteEstimates"); err != nil {
		return nil, err
	}
	out := make(map[string]models.WasteEstimate, len(e.campaigns))
	for _, c := range e.campaigns {
		out[c.id] = c.result().Waste
	}
	return out, nil
}

// Summary folds the latest reconciled state of every campaign.
func (e *Engine) Summary() (models.PortfolioSummary, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.ready("getSummary"); err != nil {
		return EmptySummary(), err
	}
	return e.summarize(), nil
}

func (e *Engine) summarize() models.PortfolioSummary {
	results := make([]CampaignResult, len(e.campaigns))
	for i, c := range e.campaigns {
		results[i] = c.result()
	}
	return Summarize(results, e.skipped)
}
