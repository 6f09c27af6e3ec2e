package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/AngelCh415/flare-go/internal/fatigue"
)

type Config struct {
	AdsURL         string
	CrmURL         string
	SinkURL        string
	SinkSecret     string
	Port           string
	HTTPTimeout    time.Duration
	LogLevel       zerolog.Level
	LogFormat      string
	Workers        int
	RateLimitRPS   float64
	RateLimitBurst int
	CORSOrigins    []string
	ThresholdsFile string
}

// FromEnv reads configuration from the environment. A .env file in the
// working directory is loaded first when present.
func FromEnv() Config {
	_ = godotenv.Load()

	to := 15 * time.Second
	if v := os.Getenv("HTTP_TIMEOUT_SECONDS"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			to = d
		}
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL")))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return Config{
		AdsURL:         os.Getenv("ADS_API_URL"),
		CrmURL:         os.Getenv("CRM_API_URL"),
		SinkURL:        os.Getenv("SINK_URL"),
		SinkSecret:     os.Getenv("SINK_SECRET"),
		Port:           envOr("PORT", "8080"),
		HTTPTimeout:    to,
		LogLevel:       lvl,
		LogFormat:      envOr("LOG_FORMAT", "json"),
		Workers:        atoiOr("FLARE_WORKERS", 4),
		RateLimitRPS:   atofOr("RATE_LIMIT_RPS", 20),
		RateLimitBurst: atoiOr("RATE_LIMIT_BURST", 40),
		CORSOrigins:    csv(envOr("CORS_ORIGINS", "http://localhost:8501,http://localhost:5173")),
		ThresholdsFile: os.Getenv("FLARE_THRESHOLDS_FILE"),
	}
}

// LoadThresholds reads stage thresholds from a YAML file. An empty path
// yields the defaults; keys absent from the file keep their default value.
func LoadThresholds(path string) (fatigue.Thresholds, error) {
	t := fatigue.DefaultThresholds()
	if path == "" {
		return t, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read thresholds: %w", err)
	}
	if err := yaml.Unmarshal(b, &t); err != nil {
		return t, fmt.Errorf("parse thresholds %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func atoiOr(k string, def int) int {
	v, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return def
	}
	return v
}

func atofOr(k string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(k), 64)
	if err != nil {
		return def
	}
	return v
}

func csv(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
