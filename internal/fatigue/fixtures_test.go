package fatigue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/flare-go/internal/models"
)

var day0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func i64(v int64) *int64        { return &v }
func f64(v float64) *float64    { return &v }
func dayN(n int) time.Time      { return day0.AddDate(0, 0, n) }
func cols(c ...string) []string { return c }

// decliningCTR is ten days of steadily falling clicks at constant CPA.
// Baseline CTR is 390/9000; the last smoothed CTR is 330/9000.
func decliningCTR(id string) []models.CampaignObservation {
	rows := make([]models.CampaignObservation, 10)
	for i := range rows {
		rows[i] = models.CampaignObservation{
			Date:        dayN(i),
			CampaignID:  id,
			Impressions: 9000,
			Clicks:      int64(450 - 20*i),
			Spend:       100,
			Conversions: i64(4),
		}
	}
	return rows
}

// collapsed is fourteen days where clicks and conversions drop fivefold
// after the first week.
func collapsed(id string) []models.CampaignObservation {
	rows := make([]models.CampaignObservation, 14)
	for i := range rows {
		clicks, conv := int64(500), int64(10)
		if i >= 7 {
			clicks, conv = 100, 2
		}
		rows[i] = models.CampaignObservation{
			Date:        dayN(i),
			CampaignID:  id,
			Impressions: 10000,
			Clicks:      clicks,
			Spend:       100,
			Conversions: i64(conv),
		}
	}
	return rows
}

func dataset(rows ...[]models.CampaignObservation) models.Dataset {
	ds := models.Dataset{Columns: cols(
		models.ColDate, models.ColCampaignID, models.ColImpressions,
		models.ColClicks, models.ColSpend, models.ColConversions,
	)}
	for _, r := range rows {
		ds.Rows = append(ds.Rows, r...)
	}
	return ds
}

func enriched(t testing.TB, rows []models.CampaignObservation) []models.EnrichedObservation {
	t.Helper()
	out, err := Normalize(dataset(rows))
	require.NoError(t, err)
	return out
}
