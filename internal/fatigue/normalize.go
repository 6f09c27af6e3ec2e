package fatigue

import (
	"sort"
	"time"

	"github.com/AngelCh415/flare-go/internal/models"
)

// Normalize validates the dataset schema and derives CTR, CPC, CPA and ROI.
// Precomputed metric columns are passed through untouched. Rows come back
// sorted by (campaign_id, date); equal dates keep their input order.
func Normalize(ds models.Dataset) ([]models.EnrichedObservation, error) {
	var missing []string
	for _, col := range models.RequiredColumns {
		if !ds.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}

	hasCTR := ds.HasColumn(models.ColCTR)
	hasCPC := ds.HasColumn(models.ColCPC)
	hasCPA := ds.HasColumn(models.ColCPA)
	hasROI := ds.HasColumn(models.ColROI)

	out := make([]models.EnrichedObservation, len(ds.Rows))
	for i, r := range ds.Rows {
		e := models.EnrichedObservation{
			Date:        calendarDay(r.Date),
			CampaignID:  r.CampaignID,
			Impressions: r.Impressions,
			Clicks:      r.Clicks,
			Spend:       r.Spend,
			Conversions: r.Conversions,
			Revenue:     r.Revenue,
		}
		if hasCTR {
			e.CTR = r.CTR
		} else {
			e.CTR = safeDiv(float64(r.Clicks), float64(r.Impressions))
		}
		if hasCPC {
			e.CPC = r.CPC
		} else {
			e.CPC = safeDiv(r.Spend, float64(r.Clicks))
		}
		if hasCPA {
			e.CPA = r.CPA
		} else if r.Conversions != nil {
			e.CPA = safeDiv(r.Spend, float64(*r.Conversions))
		}
		if hasROI {
			e.ROI = r.ROI
		} else if r.Revenue != nil {
			e.ROI = safeDiv(*r.Revenue, r.Spend)
		}
		out[i] = e
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CampaignID != out[j].CampaignID {
			return out[i].CampaignID < out[j].CampaignID
		}
		return out[i].Date.Before(out[j].Date)
	})

	start := map[string]time.Time{}
	for _, e := range out {
		if s, ok := start[e.CampaignID]; !ok || e.Date.Before(s) {
			start[e.CampaignID] = e.Date
		}
	}
	for i := range out {
		out[i].CampaignAge = int(out[i].Date.Sub(start[out[i].CampaignID]).Hours() / 24)
	}
	return out, nil
}

// GroupSeries splits sorted enriched rows into one contiguous series per
// campaign, preserving campaign order.
func GroupSeries(rows []models.EnrichedObservation) (ids []string, series map[string][]models.EnrichedObservation) {
	series = make(map[string][]models.EnrichedObservation)
	for _, r := range rows {
		if _, ok := series[r.CampaignID]; !ok {
			ids = append(ids, r.CampaignID)
		}
		series[r.CampaignID] = append(series[r.CampaignID], r)
	}
	return ids, series
}

// safeDiv never divides by zero: the metric becomes missing instead.
func safeDiv(a, b float64) *float64 {
	if b == 0 {
		return nil
	}
	v := a / b
	return &v
}

// calendarDay keeps the date as written in the timestamp's own zone.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
