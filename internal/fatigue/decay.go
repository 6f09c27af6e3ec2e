package fatigue

import (
	"math"

	"github.com/AngelCh415/flare-go/internal/models"
)

const (
	smoothingWindow = 7
	baselinePeriod  = 7
)

// Ratios are the per-row decay signals relative to the campaign baseline.
// Positive means degrading. NaN means the ratio is undefined for the row.
type Ratios struct {
	CTRDecay    float64
	CPAIncrease float64
	ROIDrop     float64
}

// Decay computes smoothed decay ratios for one campaign series. The series
// must be date-ordered. Series shorter than two rows get zero ratios.
// roiAvailable reports whether ROI participated for this campaign.
func Decay(series []models.EnrichedObservation, withROI bool) (ratios []Ratios, roiAvailable bool) {
	ratios = make([]Ratios, len(series))
	if len(series) < 2 {
		return ratios, false
	}

	ctr := values(series, func(o models.EnrichedObservation) *float64 { return o.CTR })
	cpa := values(series, func(o models.EnrichedObservation) *float64 { return o.CPA })
	roi := values(series, func(o models.EnrichedObservation) *float64 { return o.ROI })
	roiAvailable = withROI && anyDefined(roi)

	ctrSmooth := rollingMean(ctr, smoothingWindow)
	cpaSmooth := rollingMean(cpa, smoothingWindow)
	var roiSmooth []float64
	if roiAvailable {
		roiSmooth = rollingMean(roi, smoothingWindow)
	}

	n := baselinePeriod
	if len(series) < n {
		n = len(series)
	}
	ctrBase := mean(ctr[:n])
	cpaBase := mean(cpa[:n])
	roiBase := math.NaN()
	if roiAvailable {
		roiBase = mean(roi[:n])
	}

	for i := range series {
		r := Ratios{
			CTRDecay:    1 - ratio(ctrSmooth[i], ctrBase),
			CPAIncrease: ratio(cpaSmooth[i], cpaBase) - 1,
		}
		if roiAvailable {
			r.ROIDrop = 1 - ratio(roiSmooth[i], roiBase)
		}
		ratios[i] = r
	}
	return ratios, roiAvailable
}

func values(series []models.EnrichedObservation, get func(models.EnrichedObservation) *float64) []float64 {
	out := make([]float64, len(series))
	for i, o := range series {
		if v := get(o); v != nil && !math.IsInf(*v, 0) {
			out[i] = *v
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// rollingMean is a trailing mean over up to window values, ignoring NaN.
// A window with no defined value yields NaN.
func rollingMean(xs []float64, window int) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		lo := i - window + 1
		if lo < 0 {
			lo = 0
		}
		out[i] = mean(xs[lo : i+1])
	}
	return out
}

func mean(xs []float64) float64 {
	sum, n := 0.0, 0
	for _, x := range xs {
		if math.IsNaN(x) {
			continue
		}
		sum += x
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

func ratio(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) || b == 0 {
		return math.NaN()
	}
	return a / b
}

func anyDefined(xs []float64) bool {
	for _, x := range xs {
		if !math.IsNaN(x) {
			return true
		}
	}
	return false
}

// fill treats an undefined ratio as no change.
func fill(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}

func optional(x float64) *float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil
	}
	return &x
}
