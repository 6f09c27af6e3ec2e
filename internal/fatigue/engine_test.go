package fatigue

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/flare-go/internal/models"
)

type recorder struct {
	mu     sync.Mutex
	stages []string
	errs   []error
	sums   int
}

func (r *recorder) ObserveStage(stage string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
	r.errs = append(r.errs, err)
}

func (r *recorder) ObserveSummary(models.PortfolioSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sums++
}

func static(ds models.Dataset) Source {
	return SourceFunc(func(context.Context) (models.Dataset, error) { return ds, nil })
}

func runEngine(t *testing.T, ds models.Dataset, opts ...Option) *Engine {
	t.Helper()
	e := NewEngine(opts...)
	require.NoError(t, e.Run(context.Background(), static(ds)))
	return e
}

func TestEngineStageOrdering(t *testing.T) {
	e := NewEngine()

	var nr *NotReadyError
	err := e.Preprocess()
	require.True(t, errors.As(err, &nr))
	assert.Equal(t, StagePreprocess, nr.Stage)
	assert.Equal(t, StageLoad, nr.Missing)

	err = e.ComputeFatigueScores(context.Background())
	require.True(t, errors.As(err, &nr))
	assert.Equal(t, StagePreprocess, nr.Missing)

	sum, err := e.Summary()
	require.True(t, errors.As(err, &nr))
	assert.Equal(t, StageCompute, nr.Missing)
	assert.Equal(t, EmptySummary(), sum)

	_, err = e.Assessments()
	assert.True(t, errors.As(err, &nr))
	_, err = e.Recommendations()
	assert.True(t, errors.As(err, &nr))
	_, err = e.WasteEstimates()
	assert.True(t, errors.As(err, &nr))

	require.NoError(t, e.LoadData(context.Background(), static(dataset(decliningCTR("c1")))))
	err = e.ComputeFatigueScores(context.Background())
	assert.True(t, errors.As(err, &nr), "compute needs preprocess after a fresh load")
	require.NoError(t, e.Preprocess())
	require.NoError(t, e.ComputeFatigueScores(context.Background()))
	_, err = e.Summary()
	assert.NoError(t, err)

	// a new load invalidates the scores
	require.NoError(t, e.LoadData(context.Background(), static(dataset(decliningCTR("c1")))))
	_, err = e.Summary()
	assert.True(t, errors.As(err, &nr))
}

func TestEngineSchemaError(t *testing.T) {
	e := NewEngine()
	ds := models.Dataset{Columns: cols(models.ColDate, models.ColCampaignID, models.ColImpressions, models.ColClicks)}
	require.NoError(t, e.LoadData(context.Background(), static(ds)))

	var se *SchemaError
	require.True(t, errors.As(e.Preprocess(), &se))
	assert.Equal(t, []string{models.ColSpend}, se.Missing)

	var nr *NotReadyError
	assert.True(t, errors.As(e.ComputeFatigueScores(context.Background()), &nr))
}

func TestEngineLoadFailure(t *testing.T) {
	boom := errors.New("boom")
	e := NewEngine()
	err := e.LoadData(context.Background(), SourceFunc(func(context.Context) (models.Dataset, error) {
		return models.Dataset{}, boom
	}))
	assert.ErrorIs(t, err, boom)
}

func TestEnginePortfolio(t *testing.T) {
	obs := &recorder{}
	e := runEngine(t, dataset(decliningCTR("c1"), collapsed("c2")), WithWorkers(4), WithObserver(obs))

	rows, err := e.Assessments()
	require.NoError(t, err)
	require.Len(t, rows, 24)

	c1Last := rows[9]
	assert.Equal(t, "c1", c1Last.CampaignID)
	assert.Equal(t, models.StageHealthy, c1Last.Stage)
	assert.Equal(t, models.StageFriction, c1Last.RatioStage)
	assert.InDelta(t, 9.2308, c1Last.FRIScore, 1e-4)
	require.NotNil(t, c1Last.CTRDecay)
	assert.InDelta(t, 60.0/390.0, *c1Last.CTRDecay, 1e-9)
	assert.Nil(t, c1Last.ROIDrop)
	assert.Equal(t, models.StageFriction, rows[8].Stage, "only the latest row is reconciled")
	assert.Equal(t, models.StageHealthy, rows[7].Stage)

	c2Last := rows[23]
	assert.Equal(t, "c2", c2Last.CampaignID)
	assert.Equal(t, 100.0, c2Last.FRIScore)
	assert.Equal(t, models.StageFailure, c2Last.Stage)
	assert.Equal(t, models.StageFatigue, c2Last.RatioStage)

	for _, a := range rows {
		assert.GreaterOrEqual(t, a.FRIScore, 0.0)
		assert.LessOrEqual(t, a.FRIScore, 100.0)
	}

	waste, err := e.WasteEstimates()
	require.NoError(t, err)
	assert.Equal(t, 0.0, waste["c1"].WastedSpend)
	assert.InDelta(t, 980, waste["c2"].WastedSpend, 1e-9)
	assert.InDelta(t, 70, waste["c2"].WastePercentage, 1e-9)

	sum, err := e.Summary()
	require.NoError(t, err)
	assert.Equal(t, 2, sum.TotalCampaigns)
	assert.Equal(t, 1, sum.CampaignStages[models.StageHealthy])
	assert.Equal(t, 1, sum.CampaignStages[models.StageFailure])
	assert.InDelta(t, 2400, sum.TotalSpend, 1e-9)
	assert.InDelta(t, 980, sum.EstimatedWaste, 1e-9)
	assert.InDelta(t, 980.0/2400.0*100, sum.WastePercentage, 1e-9)
	require.Len(t, sum.HighRiskCampaigns, 1)
	assert.Equal(t, "c2", sum.HighRiskCampaigns[0].CampaignID)
	assert.Empty(t, sum.Skipped)

	assert.Equal(t, []string{StageLoad, StagePreprocess, StageCompute}, obs.stages)
	assert.Equal(t, 1, obs.sums)
}

func TestEngineRecommendations(t *testing.T) {
	e := runEngine(t, dataset(decliningCTR("c1"), collapsed("c2")))

	rec, err := e.Recommendation("c1")
	require.NoError(t, err)
	assert.Equal(t, models.StageHealthy, rec.Status)
	assert.Equal(t, models.RiskMinimal, rec.RiskLevel)
	assert.Equal(t, []string{"Continue current campaign strategy", "Monitor performance weekly"}, rec.Actions)
	assert.Equal(t, "Campaign is performing well with FRI score of 9.2", rec.ActionsWithReasons[0].Reason)
	assert.Equal(t, 9, rec.Metrics.CampaignAge)
	assert.Equal(t, -32.6, rec.Metrics.CTRChange)
	require.NotNil(t, rec.Metrics.CPAChange)
	assert.Equal(t, 0.0, *rec.Metrics.CPAChange)

	rec, err = e.Recommendation("c2")
	require.NoError(t, err)
	assert.Equal(t, models.StageFailure, rec.Status)
	assert.Equal(t, models.PriorityHigh, rec.Priority)
	assert.Contains(t, rec.Actions, "Reallocate at least 50% of budget to healthier campaigns")

	_, err = e.Recommendation("nope")
	assert.ErrorIs(t, err, ErrCampaignNotFound)
	_, err = e.History("nope")
	assert.ErrorIs(t, err, ErrCampaignNotFound)

	all, err := e.Recommendations()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestEngineHistory(t *testing.T) {
	e := runEngine(t, dataset(collapsed("c2")))
	hist, err := e.History("c2")
	require.NoError(t, err)
	require.Len(t, hist, 14)
	assert.Equal(t, models.StageFailure, hist[13].Stage)
	assert.Equal(t, 13, hist[13].CampaignAge)

	// mutating the copy must not leak into the engine
	hist[0].FRIScore = 99
	again, _ := e.History("c2")
	assert.NotEqual(t, 99.0, again[0].FRIScore)
}

func TestEngineSkipsInvalidCampaign(t *testing.T) {
	bad := []models.CampaignObservation{
		{Date: dayN(0), CampaignID: "bad", Impressions: 100, Clicks: 10, Spend: 10},
		{Date: dayN(1), CampaignID: "bad", Impressions: 100, Clicks: 10, Spend: -5},
	}
	e := runEngine(t, dataset(decliningCTR("c1"), bad))

	sum, err := e.Summary()
	require.NoError(t, err)
	assert.Equal(t, 1, sum.TotalCampaigns)
	require.Len(t, sum.Skipped, 1)
	assert.Equal(t, "bad", sum.Skipped[0].CampaignID)
	assert.Contains(t, sum.Skipped[0].Reason, "negative")

	_, err = e.Recommendation("bad")
	assert.ErrorIs(t, err, ErrCampaignNotFound)
}

func TestEngineSingleObservation(t *testing.T) {
	e := runEngine(t, dataset(decliningCTR("solo")[:1]))
	rows, err := e.Assessments()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.StageHealthy, rows[0].Stage)
	assert.Equal(t, 0.0, rows[0].FRIScore)

	rec, err := e.Recommendation("solo")
	require.NoError(t, err)
	assert.Equal(t, models.StageUnknown, rec.Status)
	assert.Equal(t, models.RiskUnknown, rec.RiskLevel)
	assert.Equal(t, []string{"Insufficient data to generate recommendations"}, rec.Actions)
}

func TestEngineWithoutConversions(t *testing.T) {
	ds := models.Dataset{Columns: cols(
		models.ColDate, models.ColCampaignID, models.ColImpressions, models.ColClicks, models.ColSpend,
	)}
	for i := 0; i < 10; i++ {
		ds.Rows = append(ds.Rows, models.CampaignObservation{
			Date: dayN(i), CampaignID: "flat", Impressions: 9000, Clicks: 450, Spend: 100,
		})
	}
	e := runEngine(t, ds)

	rows, err := e.Assessments()
	require.NoError(t, err)
	require.Len(t, rows, 10)
	for _, a := range rows {
		assert.Equal(t, models.StageHealthy, a.RatioStage, a.Date.String())
		assert.Equal(t, models.StageHealthy, a.Stage, a.Date.String())
		assert.Equal(t, 0.0, a.FRIScore)
		assert.Nil(t, a.CPAIncrease)
	}
}

func TestEngineEmptyDataset(t *testing.T) {
	e := runEngine(t, dataset())

	sum, err := e.Summary()
	require.NoError(t, err)
	assert.Equal(t, EmptySummary(), sum)

	recs, err := e.Recommendations()
	require.NoError(t, err)
	assert.Empty(t, recs)

	rows, err := e.Assessments()
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestEngineIdempotent(t *testing.T) {
	ds := dataset(decliningCTR("c1"), collapsed("c2"))
	a := runEngine(t, ds, WithWorkers(1))
	b := runEngine(t, ds, WithWorkers(8))

	ra, err := a.Assessments()
	require.NoError(t, err)
	rb, err := b.Assessments()
	require.NoError(t, err)
	assert.Equal(t, ra, rb)

	sa, _ := a.Summary()
	sb, _ := b.Summary()
	assert.Equal(t, sa, sb)
}

func TestEngineCancelledCompute(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.LoadData(context.Background(), static(dataset(decliningCTR("c1")))))
	require.NoError(t, e.Preprocess())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, e.ComputeFatigueScores(ctx), context.Canceled)
}

func TestEngineCancelledRerunKeepsPreviousResults(t *testing.T) {
	var buf bytes.Buffer
	e := runEngine(t, dataset(decliningCTR("c1")), WithLogger(zerolog.New(&buf)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, e.ComputeFatigueScores(ctx), context.Canceled)
	assert.Contains(t, buf.String(), "fatigue scoring cancelled")

	sum, err := e.Summary()
	require.NoError(t, err)
	assert.Equal(t, 1, sum.TotalCampaigns)
}

func TestEngineConcurrentReaders(t *testing.T) {
	e := runEngine(t, dataset(decliningCTR("c1"), collapsed("c2")), WithWorkers(2))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sum, err := e.Summary()
			assert.NoError(t, err)
			assert.Equal(t, 2, sum.TotalCampaigns)
		}()
	}
	wg.Wait()
}
