package observability

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/flare-go/internal/models"
)

func TestObserveStage(t *testing.T) {
	m := NewMetrics()
	m.ObserveStage("preprocess", 20*time.Millisecond, nil)
	m.ObserveStage("preprocess", time.Millisecond, errors.New("schema"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageRuns.WithLabelValues("preprocess", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageRuns.WithLabelValues("preprocess", "error")))
}

func TestObserveSummary(t *testing.T) {
	m := NewMetrics()
	m.ObserveSummary(models.PortfolioSummary{
		CampaignStages: map[models.Stage]int{models.StageFailure: 2},
		TotalSpend:     1000,
		EstimatedWaste: 400,
		Skipped:        []models.SkippedCampaign{{CampaignID: "x"}},
	})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CampaignsByStage.WithLabelValues("Failure")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CampaignsByStage.WithLabelValues("Healthy")))
	assert.Equal(t, 400.0, testutil.ToFloat64(m.EstimatedWaste))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SkippedCampaigns))
}

func TestInstrumentAndHandler(t *testing.T) {
	m := NewMetrics()
	r := chi.NewRouter()
	r.Use(m.Instrument)
	r.Get("/fatigue/recommendations/{campaignID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fatigue/recommendations/abc", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `flare_http_request_duration_seconds_count{method="GET",route="/fatigue/recommendations/{campaignID}",status="404"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestMetricsInstancesAreIndependent(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.ObserveStage("loadData", time.Millisecond, nil)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.StageRuns.WithLabelValues("loadData", "ok")))
}
