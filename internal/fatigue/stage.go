package fatigue

import (
	"fmt"

	"github.com/AngelCh415/flare-go/internal/models"
)

// Thresholds drive the ratio-based stage rules.
type Thresholds struct {
	Friction float64 `yaml:"threshold_friction"`
	Fatigue  float64 `yaml:"threshold_fatigue"`
	Failure  float64 `yaml:"threshold_failure"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Friction: 0.10, Fatigue: 0.20, Failure: 0.30}
}

func (t Thresholds) Validate() error {
	if t.Friction <= 0 || t.Failure > 1 {
		return fmt.Errorf("thresholds must lie in (0,1]: %+v", t)
	}
	if !(t.Friction < t.Fatigue && t.Fatigue < t.Failure) {
		return fmt.Errorf("thresholds must be strictly increasing: %+v", t)
	}
	return nil
}

// Score thresholds used when re-deriving the stage of the latest point.
const (
	ScoreFriction = 20.0
	ScoreFatigue  = 50.0
	ScoreFailure  = 75.0
)

// Classify applies the ordered stage rules; the first match wins.
// Undefined ratios count as 0.
func (t Thresholds) Classify(r Ratios, roiAvailable bool) models.Stage {
	r = Ratios{CTRDecay: fill(r.CTRDecay), CPAIncrease: fill(r.CPAIncrease), ROIDrop: fill(r.ROIDrop)}
	switch {
	case r.CTRDecay < t.Friction && r.CPAIncrease < t.Friction:
		return models.StageHealthy
	case r.CTRDecay >= t.Friction && r.CTRDecay < t.Fatigue:
		return models.StageFriction
	case (r.CTRDecay >= t.Fatigue || r.CPAIncrease >= t.Fatigue) &&
		(!roiAvailable || r.ROIDrop < t.Failure):
		return models.StageFatigue
	case roiAvailable && r.ROIDrop >= t.Failure:
		return models.StageFailure
	default:
		return models.StageUnknown
	}
}

// StageFromScore maps an FRI score onto a stage.
func StageFromScore(fri float64) models.Stage {
	switch {
	case fri >= ScoreFailure:
		return models.StageFailure
	case fri >= ScoreFatigue:
		return models.StageFatigue
	case fri >= ScoreFriction:
		return models.StageFriction
	default:
		return models.StageHealthy
	}
}

// Reconcile makes the stage agree with the FRI score. The ratio-based label
// stays available in RatioStage.
func Reconcile(a models.FatigueAssessment) models.FatigueAssessment {
	if a.RatioStage == "" {
		a.RatioStage = a.Stage
	}
	a.Stage = StageFromScore(a.FRIScore)
	return a
}
