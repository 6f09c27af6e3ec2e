package fatigue

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/flare-go/internal/models"
)

func TestDecayDecliningCTR(t *testing.T) {
	series := enriched(t, decliningCTR("c1"))
	ratios, roi := Decay(series, false)
	require.Len(t, ratios, 10)
	assert.False(t, roi)

	// days 0..6 sit inside the baseline window
	assert.InDelta(t, 1-450.0/390.0, ratios[0].CTRDecay, 1e-9)
	assert.InDelta(t, 40.0/390.0, ratios[8].CTRDecay, 1e-9)
	assert.InDelta(t, 60.0/390.0, ratios[9].CTRDecay, 1e-9)
	for _, r := range ratios {
		assert.InDelta(t, 0, r.CPAIncrease, 1e-12)
		assert.Equal(t, 0.0, r.ROIDrop)
	}
}

func TestDecaySingleRow(t *testing.T) {
	series := enriched(t, decliningCTR("c1")[:1])
	ratios, roi := Decay(series, true)
	assert.Equal(t, []Ratios{{}}, ratios)
	assert.False(t, roi)
}

func TestDecayShortSeriesUsesAllRowsAsBaseline(t *testing.T) {
	series := enriched(t, decliningCTR("c1")[:3])
	ratios, _ := Decay(series, false)
	// baseline = mean(450,430,410) = 430, smoothed day 2 = 430
	assert.InDelta(t, 0, ratios[2].CTRDecay, 1e-9)
}

func TestDecayMissingMetricsAreUndefined(t *testing.T) {
	series := []models.EnrichedObservation{
		{CampaignID: "x", Date: dayN(0)},
		{CampaignID: "x", Date: dayN(1)},
	}
	ratios, roi := Decay(series, true)
	assert.False(t, roi, "no row carries ROI")
	for _, r := range ratios {
		assert.True(t, math.IsNaN(r.CTRDecay))
		assert.True(t, math.IsNaN(r.CPAIncrease))
	}
	assert.Equal(t, 0.0, Score(ratios[1], roi))
	assert.Equal(t, models.StageHealthy, DefaultThresholds().Classify(ratios[1], roi))
}

func TestDecayROI(t *testing.T) {
	series := []models.EnrichedObservation{
		{CampaignID: "x", Date: dayN(0), CTR: f64(0.02), CPA: f64(10), ROI: f64(4)},
		{CampaignID: "x", Date: dayN(1), CTR: f64(0.02), CPA: f64(10), ROI: f64(2)},
	}
	ratios, roi := Decay(series, true)
	require.True(t, roi)
	// baseline 3, smoothed day 1 = 3
	assert.InDelta(t, 0, ratios[1].ROIDrop, 1e-12)
	assert.InDelta(t, 1-4.0/3.0, ratios[0].ROIDrop, 1e-12)

	_, roi = Decay(series, false)
	assert.False(t, roi, "dataset without revenue never uses ROI")
}

func TestRollingMeanSkipsNaN(t *testing.T) {
	got := rollingMean([]float64{1, math.NaN(), 3, 5}, 2)
	assert.Equal(t, 1.0, got[0])
	assert.Equal(t, 1.0, got[1])
	assert.Equal(t, 3.0, got[2])
	assert.Equal(t, 4.0, got[3])
	assert.True(t, math.IsNaN(rollingMean([]float64{math.NaN()}, 7)[0]))
}
