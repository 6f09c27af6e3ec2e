package fatigue

import (
	"fmt"
	"math"

	"github.com/AngelCh415/flare-go/internal/models"
)

const trendWindow = 5

// RecommendInput is everything the rule table looks at for one campaign.
type RecommendInput struct {
	CampaignID   string
	Series       []models.EnrichedObservation
	Latest       models.FatigueAssessment
	CPAAvailable bool
}

// RiskLevelFor buckets an FRI score.
func RiskLevelFor(fri float64) models.RiskLevel {
	switch {
	case fri >= 85:
		return models.RiskCritical
	case fri >= 60:
		return models.RiskHigh
	case fri >= 30:
		return models.RiskMedium
	case fri >= 10:
		return models.RiskLow
	default:
		return models.RiskMinimal
	}
}

func priorityForRisk(r models.RiskLevel) models.Priority {
	switch r {
	case models.RiskCritical, models.RiskHigh:
		return models.PriorityHigh
	case models.RiskLow:
		return models.PriorityLow
	default:
		return models.PriorityMedium
	}
}

func priorityForRank(i int) models.Priority {
	switch {
	case i < 2:
		return models.PriorityHigh
	case i < 4:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

// Trend compares the mean of the first and last min(5, n/3) rows and returns
// percentage changes. cpaChange is nil when CPA cannot be compared.
func Trend(series []models.EnrichedObservation, cpaAvailable bool) (ctrChange float64, cpaChange *float64) {
	w := len(series) / 3
	if w > trendWindow {
		w = trendWindow
	}
	if w == 0 {
		return 0, nil
	}
	ctr := values(series, func(o models.EnrichedObservation) *float64 { return o.CTR })
	ctrChange = fill(pctChange(mean(ctr[:w]), mean(ctr[len(ctr)-w:])))

	if !cpaAvailable {
		return ctrChange, nil
	}
	change := 0.0
	cpa := values(series, func(o models.EnrichedObservation) *float64 { return o.CPA })
	early, late := mean(cpa[:w]), mean(cpa[len(cpa)-w:])
	if !math.IsNaN(early) && !math.IsNaN(late) {
		change = fill(pctChange(early, late))
	}
	return ctrChange, &change
}

func pctChange(early, late float64) float64 {
	if !(early > 0) {
		return 0
	}
	return (late - early) / early * 100
}

// Recommend runs the rule table for one campaign. Fewer than two
// observations get the insufficient-data set.
func Recommend(in RecommendInput) models.Recommendation {
	if len(in.Series) < 2 {
		const a = "Insufficient data to generate recommendations"
		return models.Recommendation{
			CampaignID: in.CampaignID,
			Status:     models.StageUnknown,
			RiskLevel:  models.RiskUnknown,
			Priority:   models.PriorityMedium,
			Actions:    []string{a},
			ActionsWithReasons: []models.Action{{
				Action:   a,
				Reason:   "Unable to analyze campaign performance without data",
				Priority: models.PriorityHigh,
			}},
		}
	}

	stage := in.Latest.Stage
	fri := in.Latest.FRIScore
	age := in.Latest.CampaignAge
	ctrChange, cpaChange := Trend(in.Series, in.CPAAvailable)
	risk := RiskLevelFor(fri)

	var rules []models.Action
	add := func(action, reason string) {
		rules = append(rules, models.Action{Action: action, Reason: reason})
	}

	if age > 21 {
		add("Implement a regular creative rotation schedule",
			fmt.Sprintf("Campaign has been running for %d days which exceeds optimal creative lifespan", age))
	}

	switch stage {
	case models.StageHealthy:
		add("Continue current campaign strategy",
			fmt.Sprintf("Campaign is performing well with FRI score of %.1f", fri))
		add("Monitor performance weekly", "Maintain oversight to catch early signs of fatigue")
		if age > 14 {
			add("Plan next creative rotation within 7-14 days",
				fmt.Sprintf("Proactive refresh recommended for campaigns running %d days", age))
		}

	case models.StageFriction:
		add("Plan creative refresh within 7 days",
			fmt.Sprintf("Early signs of fatigue detected with FRI score of %.1f", fri))
		add("Review frequency caps and adjust if necessary", "Reduce exposure to prevent further fatigue progression")
		if ctrChange < -10 {
			add("A/B test new messaging variants",
				fmt.Sprintf("CTR has declined by %.1f%% since campaign start", math.Abs(ctrChange)))
		}
		if fri > 40 {
			add("Monitor performance every 2 days", "Higher FRI score requires closer monitoring")
		} else {
			add("Monitor performance weekly", "Standard monitoring for early-stage fatigue")
		}

	case models.StageFatigue:
		add("Implement creative refresh immediately",
			fmt.Sprintf("Significant fatigue detected with FRI score of %.1f", fri))
		add(fmt.Sprintf("Reduce frequency caps by %d%%", FrequencyCapReduction(fri)),
			"Prevent audience overexposure to current creative")
		if cpaChange != nil && *cpaChange > 15 {
			add("Refine audience targeting to higher-converting segments",
				fmt.Sprintf("CPA has increased by %.1f%% since campaign start", *cpaChange))
		}
		add("Consider platform or format diversification", "Reduce dependence on fatigued channels")
		add("Monitor performance daily", "Close monitoring required at fatigue stage")

	case models.StageFailure:
		add("Pause current creative execution",
			fmt.Sprintf("Critical fatigue detected with FRI score of %.1f", fri))
		add("Complete creative overhaul required", "Minor refreshes insufficient at failure stage")
		if age > 30 {
			add("Consider campaign restructure with new objectives",
				fmt.Sprintf("Campaign has been running for %d days with declining results", age))
		}
		if fri > 75 {
			add("Reallocate at least 50% of budget to healthier campaigns", "Critical performance deterioration detected")
		} else {
			add("Temporarily reduce budget by 30-40%", "Conserve budget while implementing fixes")
		}
		add("Reassess targeting strategy and platform mix", "Current approach is experiencing significant fatigue")

	default:
		add("Collect additional campaign data", "Insufficient data to classify fatigue stage")
		add("Implement standard creative rotation schedule", "Preventative measure while gathering more data")
		add("Set up regular performance monitoring", "Establish baseline for fatigue detection")
	}

	actions := make([]string, len(rules))
	for i := range rules {
		rules[i].Priority = priorityForRank(i)
		actions[i] = rules[i].Action
	}

	metrics := models.RecommendationMetrics{CampaignAge: age, CTRChange: round1(ctrChange)}
	if cpaChange != nil {
		v := round1(*cpaChange)
		metrics.CPAChange = &v
	}

	return models.Recommendation{
		CampaignID:         in.CampaignID,
		Status:             stage,
		RiskLevel:          risk,
		Priority:           priorityForRisk(risk),
		FRIScore:           round1(fri),
		Actions:            actions,
		ActionsWithReasons: rules,
		Metrics:            metrics,
	}
}

// FrequencyCapReduction is the cap cut, in percent, advised at the Fatigue
// stage: 70% of the FRI score, at most 50.
func FrequencyCapReduction(fri float64) int {
	n := int(math.Floor(fri * 0.7))
	if n > 50 {
		return 50
	}
	return n
}

func round1(f float64) float64 { return math.Round(f*10) / 10 }
