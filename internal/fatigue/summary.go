package fatigue

import (
	"github.com/shopspring/decimal"

	"github.com/AngelCh415/flare-go/internal/models"
)

const highRiskScore = 50.0

// CampaignResult is the latest reconciled state of one campaign.
type CampaignResult struct {
	CampaignID string
	Latest     models.FatigueAssessment
	Waste      models.WasteEstimate
}

// EmptySummary is the zeroed portfolio with every stage key present.
func EmptySummary() models.PortfolioSummary {
	byStage := make(map[models.Stage][]string, len(models.Stages))
	for _, s := range models.Stages {
		byStage[s] = []string{}
	}
	return models.PortfolioSummary{
		CampaignStages:    map[models.Stage]int{},
		HighRiskCampaigns: []models.HighRiskCampaign{},
		CampaignsByStage:  byStage,
		Skipped:           []models.SkippedCampaign{},
	}
}

// Summarize folds campaign results into portfolio statistics. Results are
// expected in a stable campaign order; the output is a pure function of them.
func Summarize(results []CampaignResult, skipped []models.SkippedCampaign) models.PortfolioSummary {
	sum := EmptySummary()
	sum.TotalCampaigns = len(results)
	if skipped != nil {
		sum.Skipped = append(sum.Skipped, skipped...)
	}

	spend, waste := decimal.Zero, decimal.Zero
	for _, r := range results {
		latest := Reconcile(r.Latest)
		stage := latest.Stage

		sum.CampaignStages[stage]++
		sum.CampaignsByStage[stage] = append(sum.CampaignsByStage[stage], r.CampaignID)
		if latest.FRIScore >= highRiskScore {
			sum.HighRiskCampaigns = append(sum.HighRiskCampaigns, models.HighRiskCampaign{
				CampaignID: r.CampaignID,
				FRIScore:   latest.FRIScore,
				Stage:      stage,
			})
		}
		spend = spend.Add(decimal.NewFromFloat(r.Waste.TotalSpend))
		waste = waste.Add(decimal.NewFromFloat(r.Waste.WastedSpend))
	}

	sum.TotalSpend, _ = spend.Float64()
	sum.EstimatedWaste, _ = waste.Float64()
	if spend.IsPositive() {
		sum.WastePercentage, _ = waste.Div(spend).Mul(decimal.NewFromInt(100)).Float64()
	}
	return sum
}
