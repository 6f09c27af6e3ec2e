package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/AngelCh415/flare-go/internal/fatigue"
	"github.com/AngelCh415/flare-go/internal/forecast"
	"github.com/AngelCh415/flare-go/internal/ingest"
	"github.com/AngelCh415/flare-go/internal/metrics"
	"github.com/AngelCh415/flare-go/internal/observability"
	"github.com/AngelCh415/flare-go/internal/utils"
)

type Deps struct {
	Log       zerolog.Logger
	Engine    *fatigue.Engine
	Source    fatigue.Source
	ETL       *ingest.ETL
	Query     *metrics.Service
	Forecast  *forecast.Simulator
	Metrics   *observability.Metrics
	Origins   []string
	RateRPS   float64
	RateBurst int
}

func NewRouter(d Deps) http.Handler {
	mux := chi.NewRouter()
	mux.Use(utils.RequestID)
	mux.Use(utils.Logger(d.Log))
	if d.Metrics != nil {
		mux.Use(d.Metrics.Instrument)
	}
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.Origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	mux.Use(utils.RateLimit(d.RateRPS, d.RateBurst))

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := d.Engine.Summary(); err != nil {
			writeErr(w, r, err)
			return
		}
		w.WriteHeader(200)
		w.Write([]byte("ready"))
	})
	if d.Metrics != nil {
		mux.Handle("/metrics", d.Metrics.Handler())
	}

	mux.Post("/ingest/run", func(w http.ResponseWriter, r *http.Request) {
		if d.ETL == nil {
			writeErr(w, r, errIngestDisabled)
			return
		}
		q := r.URL.Query().Get("since")
		var since *time.Time
		if q != "" {
			t, err := time.Parse("2006-01-02", q)
			if err != nil {
				http.Error(w, "bad since (YYYY-MM-DD)", 400)
				return
			}
			since = &t
		}
		stats, err := d.ETL.Run(r.Context(), since)
		if err != nil {
			writeErr(w, r, &upstreamError{err})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(202)
		json.NewEncoder(w).Encode(stats)
	})

	mux.Route("/fatigue", func(fr chi.Router) {
		fr.Post("/run", func(w http.ResponseWriter, r *http.Request) {
			if err := d.Engine.Run(r.Context(), d.Source); err != nil {
				writeErr(w, r, err)
				return
			}
			sum, err := d.Engine.Summary()
			if err != nil {
				writeErr(w, r, err)
				return
			}
			writeJSON(w, sum)
		})

		fr.Get("/assessments", func(w http.ResponseWriter, r *http.Request) {
			rows, err := d.Query.QueryAssessments(r.URL.Query())
			if err != nil {
				writeErr(w, r, err)
				return
			}
			writeJSON(w, rows)
		})
		fr.Get("/assessments/{campaignID}", func(w http.ResponseWriter, r *http.Request) {
			rows, err := d.Engine.History(chi.URLParam(r, "campaignID"))
			if err != nil {
				writeErr(w, r, err)
				return
			}
			writeJSON(w, rows)
		})

		fr.Get("/recommendations", func(w http.ResponseWriter, r *http.Request) {
			recs, err := d.Engine.Recommendations()
			if err != nil {
				writeErr(w, r, err)
				return
			}
			writeJSON(w, recs)
		})
		fr.Get("/recommendations/{campaignID}", func(w http.ResponseWriter, r *http.Request) {
			rec, err := d.Engine.Recommendation(chi.URLParam(r, "campaignID"))
			if err != nil {
				writeErr(w, r, err)
				return
			}
			writeJSON(w, rec)
		})
		fr.Get("/priorities", func(w http.ResponseWriter, r *http.Request) {
			rows, err := d.Query.QueryRecommendations(r.URL.Query())
			if err != nil {
				writeErr(w, r, err)
				return
			}
			writeJSON(w, rows)
		})

		fr.Get("/waste", func(w http.ResponseWriter, r *http.Request) {
			est, err := d.Engine.WasteEstimates()
			if err != nil {
				writeErr(w, r, err)
				return
			}
			writeJSON(w, est)
		})
		fr.Get("/summary", func(w http.ResponseWriter, r *http.Request) {
			sum, err := d.Engine.Summary()
			if err != nil {
				writeErr(w, r, err)
				return
			}
			writeJSON(w, sum)
		})

		fr.Get("/forecast/{campaignID}", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "campaignID")
			hist, err := d.Engine.History(id)
			if err != nil {
				writeErr(w, r, err)
				return
			}
			days := forecast.DefaultDays
			if q := r.URL.Query().Get("days"); q != "" {
				n, err := strconv.Atoi(q)
				if err != nil || n < 1 || n > 90 {
					http.Error(w, "days must be 1..90", 400)
					return
				}
				days = n
			}
			writeJSON(w, d.Forecast.Project(id, hist[len(hist)-1].FRIScore, days))
		})
	})

	mux.Post("/export/run", func(w http.ResponseWriter, r *http.Request) {
		if d.ETL == nil {
			writeErr(w, r, errIngestDisabled)
			return
		}
		q := r.URL.Query().Get("date")
		if q == "" {
			http.Error(w, "date required (YYYY-MM-DD)", 400)
			return
		}
		t, err := time.Parse("2006-01-02", q)
		if err != nil {
			http.Error(w, "bad date", 400)
			return
		}
		n, err := d.ETL.ExportDay(r.Context(), t, d.Engine)
		if err != nil {
			var ce *fatigue.NotReadyError
			if !errors.As(err, &ce) && !errors.Is(err, ingest.ErrSinkNotConfigured) {
				err = &upstreamError{err}
			}
			writeErr(w, r, err)
			return
		}
		writeJSON(w, map[string]any{"exported": n})
	})

	return mux
}

var errIngestDisabled = errors.New("ingestion is not configured")

// upstreamError marks failures of an external collaborator.
type upstreamError struct{ err error }

func (e *upstreamError) Error() string { return e.err.Error() }
func (e *upstreamError) Unwrap() error { return e.err }

func statusFor(err error) int {
	var (
		se *fatigue.SchemaError
		nr *fatigue.NotReadyError
		ue *upstreamError
	)
	switch {
	case errors.As(err, &se):
		return http.StatusUnprocessableEntity
	case errors.As(err, &nr):
		return http.StatusConflict
	case errors.Is(err, fatigue.ErrCampaignNotFound):
		return http.StatusNotFound
	case errors.Is(err, metrics.ErrBadQuery):
		return http.StatusBadRequest
	case errors.Is(err, ingest.ErrSinkNotConfigured), errors.Is(err, errIngestDisabled):
		return http.StatusServiceUnavailable
	case errors.As(err, &ue):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(err))
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error(), "rid": utils.RID(r.Context())})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.Encode(v)
}
