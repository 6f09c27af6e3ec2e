package fatigue

import (
	"github.com/shopspring/decimal"

	"github.com/AngelCh415/flare-go/internal/models"
)

const (
	projectedWasteMin = 0.10
	projectedWasteMax = 0.70
)

// StageWasteFraction estimates the share of spend currently wasted given the
// campaign's stage and FRI score.
func StageWasteFraction(stage models.Stage, fri float64) float64 {
	switch stage {
	case models.StageHealthy:
		return 0
	case models.StageFriction:
		return 0.20 + (fri/100)*0.30
	case models.StageFatigue:
		return 0.40 + (fri/100)*0.30
	case models.StageFailure:
		return 0.70
	default:
		return 0.10
	}
}

// ProjectedWasteFraction is the score-only mapping used for forward-looking
// estimates: 10% at FRI 0 up to 70% at FRI 100. It ignores stage on purpose
// and must stay separate from StageWasteFraction.
func ProjectedWasteFraction(fri float64) float64 {
	fri = clamp(fill(fri), 0, 100)
	return clamp(projectedWasteMin+(fri/100)*(projectedWasteMax-projectedWasteMin), projectedWasteMin, projectedWasteMax)
}

// EstimateWaste converts the stage waste fraction into currency amounts.
// WastePercentage is expressed in percent (0-100).
func EstimateWaste(stage models.Stage, fri, totalSpend float64) models.WasteEstimate {
	frac := StageWasteFraction(stage, fri)
	spend := decimal.NewFromFloat(totalSpend)
	wasted := spend.Mul(decimal.NewFromFloat(frac))
	w, _ := wasted.Float64()
	return models.WasteEstimate{
		TotalSpend:       totalSpend,
		WastePercentage:  frac * 100,
		WastedSpend:      w,
		RecoverableSpend: w,
	}
}
