package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/AngelCh415/flare-go/internal/config"
	"github.com/AngelCh415/flare-go/internal/fatigue"
	"github.com/AngelCh415/flare-go/internal/forecast"
	"github.com/AngelCh415/flare-go/internal/httpx"
	"github.com/AngelCh415/flare-go/internal/ingest"
	"github.com/AngelCh415/flare-go/internal/metrics"
	"github.com/AngelCh415/flare-go/internal/observability"
	"github.com/AngelCh415/flare-go/internal/store"
)

const version = "v0.3.0"

func main() {
	rootCmd := &cobra.Command{
		Use:     "flare",
		Short:   "Ad fatigue detection and waste estimation",
		Version: version,
		RunE:    runServe,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Score a CSV export and print the portfolio report as JSON",
		RunE:  runReport,
	}
	reportCmd.Flags().String("input", "", "CSV file with campaign daily rows (required)")
	reportCmd.Flags().String("thresholds", "", "YAML thresholds file (defaults to FLARE_THRESHOLDS_FILE)")
	reportCmd.Flags().String("campaign", "", "Only print recommendations for this campaign")
	_ = reportCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(serveCmd, reportCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	var logger zerolog.Logger
	if cfg.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(cfg.LogLevel).With().Timestamp().Logger()
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.FromEnv()
	logger := newLogger(cfg)

	th, err := config.LoadThresholds(cfg.ThresholdsFile)
	if err != nil {
		logger.Error().Err(err).Msg("thresholds")
		return err
	}

	obs := observability.NewMetrics()
	eng := fatigue.NewEngine(
		fatigue.WithThresholds(th),
		fatigue.WithWorkers(cfg.Workers),
		fatigue.WithLogger(logger.With().Str("component", "fatigue").Logger()),
		fatigue.WithObserver(obs),
	)
	st := store.NewMemoryStore()

	var etl *ingest.ETL
	if cfg.AdsURL != "" {
		cl := ingest.NewHTTPClient(cfg.HTTPTimeout)
		etl = ingest.NewETL(cl, st, logger.With().Str("component", "ingest").Logger(), cfg)
	} else {
		logger.Warn().Msg("ADS_API_URL not set, ingestion disabled")
	}

	r := httpx.NewRouter(httpx.Deps{
		Log:       logger,
		Engine:    eng,
		Source:    st,
		ETL:       etl,
		Query:     metrics.NewService(eng),
		Forecast:  forecast.NewSimulator(),
		Metrics:   obs,
		Origins:   cfg.CORSOrigins,
		RateRPS:   cfg.RateLimitRPS,
		RateBurst: cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
	}()

	logger.Info().Str("port", cfg.Port).Str("version", version).Msg("starting server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("server error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
