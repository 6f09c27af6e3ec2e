package models

import "time"

// Column names understood by the fatigue pipeline.
const (
	ColDate        = "date"
	ColCampaignID  = "campaign_id"
	ColImpressions = "impressions"
	ColClicks      = "clicks"
	ColSpend       = "spend"
	ColConversions = "conversions"
	ColRevenue     = "revenue"
	ColCTR         = "ctr"
	ColCPC         = "cpc"
	ColCPA         = "cpa"
	ColROI         = "roi"
)

// RequiredColumns must be present in every dataset handed to the core.
var RequiredColumns = []string{ColDate, ColCampaignID, ColImpressions, ColClicks, ColSpend}

// CampaignObservation is one raw day of campaign delivery.
// Optional columns are nil when the source did not carry them for the row.
type CampaignObservation struct {
	Date        time.Time
	CampaignID  string
	Impressions int64
	Clicks      int64
	Spend       float64
	Conversions *int64
	Revenue     *float64

	// precomputed efficiency metrics, passed through when the dataset has them
	CTR *float64
	CPC *float64
	CPA *float64
	ROI *float64
}

// Dataset is a tabular batch of observations plus the set of columns the
// source actually provided.
type Dataset struct {
	Columns []string
	Rows    []CampaignObservation
}

func (d Dataset) HasColumn(name string) bool {
	for _, c := range d.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// EnrichedObservation carries the derived efficiency metrics. A nil metric
// means it could not be computed (zero or missing denominator).
type EnrichedObservation struct {
	Date        time.Time `json:"date"`
	CampaignID  string    `json:"campaign_id"`
	Impressions int64     `json:"impressions"`
	Clicks      int64     `json:"clicks"`
	Spend       float64   `json:"spend"`
	Conversions *int64    `json:"conversions"`
	Revenue     *float64  `json:"revenue"`
	CTR         *float64  `json:"ctr"`
	CPC         *float64  `json:"cpc"`
	CPA         *float64  `json:"cpa"`
	ROI         *float64  `json:"roi"`
	CampaignAge int       `json:"campaign_age"`
}

type Stage string

const (
	StageHealthy  Stage = "Healthy"
	StageFriction Stage = "Friction"
	StageFatigue  Stage = "Fatigue"
	StageFailure  Stage = "Failure"
	StageUnknown  Stage = "Unknown"
)

// Stages is the fixed key set used for portfolio groupings.
var Stages = []Stage{StageHealthy, StageFriction, StageFatigue, StageFailure, StageUnknown}

type RiskLevel string

const (
	RiskMinimal  RiskLevel = "Minimal"
	RiskLow      RiskLevel = "Low"
	RiskMedium   RiskLevel = "Medium"
	RiskHigh     RiskLevel = "High"
	RiskCritical RiskLevel = "Critical"
	RiskUnknown  RiskLevel = "Unknown"
)

type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// FatigueAssessment is the per (campaign, date) fatigue record.
// Ratio fields are nil when the baseline or smoothed value was undefined.
type FatigueAssessment struct {
	CampaignID  string    `json:"campaign_id"`
	Date        time.Time `json:"date"`
	CTRDecay    *float64  `json:"ctr_decay"`
	CPAIncrease *float64  `json:"cpa_increase"`
	ROIDrop     *float64  `json:"roi_drop"`
	Stage       Stage     `json:"fatigue_stage"`
	RatioStage  Stage     `json:"ratio_stage"`
	FRIScore    float64   `json:"fri_score"`
	Spend       float64   `json:"spend"`
	CampaignAge int       `json:"campaign_age"`
}

type WasteEstimate struct {
	TotalSpend       float64 `json:"total_spend"`
	WastePercentage  float64 `json:"waste_percentage"`
	WastedSpend      float64 `json:"wasted_spend"`
	RecoverableSpend float64 `json:"recoverable_spend"`
}

type Action struct {
	Action   string   `json:"action"`
	Reason   string   `json:"reason"`
	Priority Priority `json:"priority"`
}

type RecommendationMetrics struct {
	CampaignAge int      `json:"campaign_age"`
	CTRChange   float64  `json:"ctr_change"`
	CPAChange   *float64 `json:"cpa_change"`
}

type Recommendation struct {
	CampaignID         string                `json:"campaign_id"`
	Status             Stage                 `json:"status"`
	RiskLevel          RiskLevel             `json:"risk_level"`
	Priority           Priority              `json:"priority"`
	FRIScore           float64               `json:"fri_score"`
	Actions            []string              `json:"actions"`
	ActionsWithReasons []Action              `json:"actions_with_reasons"`
	Metrics            RecommendationMetrics `json:"metrics"`
}

type HighRiskCampaign struct {
	CampaignID string  `json:"campaign_id"`
	FRIScore   float64 `json:"fri_score"`
	Stage      Stage   `json:"stage"`
}

type SkippedCampaign struct {
	CampaignID string `json:"campaign_id"`
	Reason     string `json:"reason"`
}

type PortfolioSummary struct {
	TotalCampaigns    int                `json:"total_campaigns"`
	CampaignStages    map[Stage]int      `json:"campaign_stages"`
	TotalSpend        float64            `json:"total_spend"`
	EstimatedWaste    float64            `json:"estimated_waste"`
	WastePercentage   float64            `json:"waste_percentage"`
	HighRiskCampaigns []HighRiskCampaign `json:"high_risk_campaigns"`
	CampaignsByStage  map[Stage][]string `json:"campaigns_by_stage"`
	Skipped           []SkippedCampaign  `json:"skipped"`
}

// Opportunity is a CRM record; closed_won deals are attributed to the
// campaign named by UTMCampaign on the day they were created.
type Opportunity struct {
	OpportunityID string
	ContactEmail  string
	Stage         string // lead, opportunity, closed_won, closed_lost
	Amount        float64
	CreatedAt     time.Time
	UTMCampaign   string
}
