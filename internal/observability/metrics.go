// Package observability exposes Prometheus metrics for the fatigue pipeline
// and the HTTP surface.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AngelCh415/flare-go/internal/models"
)

const namespace = "flare"

// Metrics holds every collector on a private registry, so several instances
// can live in one process (tests, embedded use).
type Metrics struct {
	reg *prometheus.Registry

	// Pipeline
	StageRuns     *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec

	// Portfolio
	CampaignsByStage *prometheus.GaugeVec
	TotalSpend       prometheus.Gauge
	EstimatedWaste   prometheus.Gauge
	SkippedCampaigns prometheus.Gauge

	// HTTP
	RequestDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		StageRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_runs_total",
			Help:      "Pipeline stage executions by stage and result",
		}, []string{"stage", "result"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		CampaignsByStage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "campaigns",
			Help:      "Campaigns per reconciled fatigue stage",
		}, []string{"stage"}),
		TotalSpend: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "total_spend",
			Help:      "Total spend across scored campaigns",
		}),
		EstimatedWaste: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "estimated_waste",
			Help:      "Estimated wasted spend across scored campaigns",
		}),
		SkippedCampaigns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "skipped_campaigns",
			Help:      "Campaigns skipped in the last scoring run",
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration by route and status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(
		m.StageRuns,
		m.StageDuration,
		m.CampaignsByStage,
		m.TotalSpend,
		m.EstimatedWaste,
		m.SkippedCampaigns,
		m.RequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveStage(stage string, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.StageRuns.WithLabelValues(stage, result).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(took.Seconds())
}

func (m *Metrics) ObserveSummary(sum models.PortfolioSummary) {
	for _, s := range models.Stages {
		m.CampaignsByStage.WithLabelValues(string(s)).Set(float64(sum.CampaignStages[s]))
	}
	m.TotalSpend.Set(sum.TotalSpend)
	m.EstimatedWaste.Set(sum.EstimatedWaste)
	m.SkippedCampaigns.Set(float64(len(sum.Skipped)))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Instrument records request latency labelled by the matched chi route
// pattern rather than the raw path.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		m.RequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
