package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/AngelCh415/flare-go/internal/config"
	"github.com/AngelCh415/flare-go/internal/fatigue"
	"github.com/AngelCh415/flare-go/internal/ingest"
	"github.com/AngelCh415/flare-go/internal/models"
)

type report struct {
	Summary         models.PortfolioSummary          `json:"summary"`
	Waste           map[string]models.WasteEstimate  `json:"waste"`
	Recommendations map[string]models.Recommendation `json:"recommendations"`
}

func runReport(cmd *cobra.Command, _ []string) error {
	input, _ := cmd.Flags().GetString("input")
	thFile, _ := cmd.Flags().GetString("thresholds")
	only, _ := cmd.Flags().GetString("campaign")

	cfg := config.FromEnv()
	// Logs go to stderr so stdout stays valid JSON.
	cfg.LogFormat = "console"
	logger := newLogger(cfg)
	if thFile == "" {
		thFile = cfg.ThresholdsFile
	}
	th, err := config.LoadThresholds(thFile)
	if err != nil {
		return err
	}

	eng := fatigue.NewEngine(
		fatigue.WithThresholds(th),
		fatigue.WithWorkers(cfg.Workers),
		fatigue.WithLogger(logger),
	)
	if err := eng.Run(cmd.Context(), ingest.NewCSVFileSource(input)); err != nil {
		logger.Error().Err(err).Str("input", input).Msg("pipeline failed")
		return err
	}

	var out report
	if out.Summary, err = eng.Summary(); err != nil {
		return err
	}
	if out.Waste, err = eng.WasteEstimates(); err != nil {
		return err
	}
	if only != "" {
		rec, err := eng.Recommendation(only)
		if err != nil {
			return err
		}
		out.Recommendations = map[string]models.Recommendation{only: rec}
	} else if out.Recommendations, err = eng.Recommendations(); err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
