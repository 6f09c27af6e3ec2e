package ingest

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/AngelCh415/flare-go/internal/config"
	"github.com/AngelCh415/flare-go/internal/models"
	"github.com/AngelCh415/flare-go/internal/store"
)

var ErrSinkNotConfigured = errors.New("sink not configured")

// AssessmentReader is the read side of the fatigue engine used for exports.
type AssessmentReader interface {
	Assessments() ([]models.FatigueAssessment, error)
}

type ETL struct {
	c     HTTPClient
	st    *store.MemoryStore
	log   zerolog.Logger
	cfg   config.Config
	adsCB *gobreaker.CircuitBreaker
	crmCB *gobreaker.CircuitBreaker
}

func NewETL(c HTTPClient, st *store.MemoryStore, log zerolog.Logger, cfg config.Config) *ETL {
	return &ETL{
		c:     c,
		st:    st,
		log:   log,
		cfg:   cfg,
		adsCB: NewBreaker("ads"),
		crmCB: NewBreaker("crm"),
	}
}

type adsResp []struct {
	Date        string   `json:"date"`
	CampaignID  string   `json:"campaign_id"`
	Impressions int64    `json:"impressions"`
	Clicks      int64    `json:"clicks"`
	Spend       *float64 `json:"spend"`
	Cost        *float64 `json:"cost"`
	Conversions *int64   `json:"conversions"`
	Revenue     *float64 `json:"revenue"`
}

type crmResp []struct {
	OpportunityID string  `json:"opportunity_id"`
	ContactEmail  string  `json:"contact_email"`
	Stage         string  `json:"stage"`
	Amount        float64 `json:"amount"`
	CreatedAt     string  `json:"created_at"`
	UTMCampaign   string  `json:"utm_campaign"`
}

// RunStats counts what one ingestion run added to the store.
type RunStats struct {
	Ads     int `json:"ads"`
	CRM     int `json:"crm"`
	Skipped int `json:"skipped"`
}

// Run pulls ads delivery (and CRM deals when configured) into the store.
// Records already ingested are ignored.
func (e *ETL) Run(ctx context.Context, since *time.Time) (RunStats, error) {
	var stats RunStats

	var aResp adsResp
	if err := GetJSONWithRetry(ctx, e.c, e.adsCB, e.cfg.AdsURL, &aResp); err != nil {
		return stats, fmt.Errorf("fetch ads: %w", err)
	}
	var cResp crmResp
	if e.cfg.CrmURL != "" {
		if err := GetJSONWithRetry(ctx, e.c, e.crmCB, e.cfg.CrmURL, &cResp); err != nil {
			return stats, fmt.Errorf("fetch crm: %w", err)
		}
	}

	for _, r := range aResp {
		d, err := time.Parse("2006-01-02", strings.TrimSpace(r.Date))
		if err != nil || strings.TrimSpace(r.CampaignID) == "" {
			stats.Skipped++
			continue
		}
		if since != nil && calendarDay(d).Before(calendarDay(*since)) {
			continue
		}
		k := "ads|" + d.Format("2006-01-02") + "|" + strings.TrimSpace(r.CampaignID)
		if !e.st.MarkSeen(k) {
			continue
		} // idempotencia
		spend := r.Spend
		if spend == nil {
			spend = r.Cost
		}
		o := models.CampaignObservation{
			Date:        d,
			CampaignID:  strings.TrimSpace(r.CampaignID),
			Impressions: r.Impressions,
			Clicks:      r.Clicks,
			Conversions: r.Conversions,
			Revenue:     r.Revenue,
		}
		if spend != nil {
			o.Spend = *spend
		}
		e.st.UpsertAds(o)
		stats.Ads++
	}

	for _, r := range cResp {
		if r.CreatedAt == "" {
			stats.Skipped++
			continue
		}
		d, err := time.Parse(time.RFC3339, r.CreatedAt)
		if err != nil {
			stats.Skipped++
			continue
		}
		if since != nil && calendarDay(d).Before(calendarDay(*since)) {
			continue
		}
		k := "crm|" + r.OpportunityID
		if r.OpportunityID == "" {
			k = "crm|" + d.Format(time.RFC3339) + "|" + r.ContactEmail
		}
		if !e.st.MarkSeen(k) {
			continue
		}
		e.st.UpsertCRM(models.Opportunity{
			OpportunityID: r.OpportunityID,
			ContactEmail:  strings.ToLower(strings.TrimSpace(r.ContactEmail)),
			Stage:         strings.ToLower(strings.TrimSpace(r.Stage)),
			Amount:        r.Amount,
			CreatedAt:     d,
			UTMCampaign:   coalesce(r.UTMCampaign, "unknown"),
		})
		stats.CRM++
	}

	e.log.Info().Int("ads", stats.Ads).Int("crm", stats.CRM).Int("skipped", stats.Skipped).Int("observations", e.st.Len()).Msg("ingest complete")
	return stats, nil
}

// ExportDay posts the assessments dated on date to the sink, signed with
// HMAC-SHA256 of the body in X-Signature.
func (e *ETL) ExportDay(ctx context.Context, date time.Time, src AssessmentReader) (int, error) {
	if e.cfg.SinkURL == "" || e.cfg.SinkSecret == "" {
		return 0, ErrSinkNotConfigured
	}
	all, err := src.Assessments()
	if err != nil {
		return 0, err
	}
	d := calendarDay(date)
	rows := make([]models.FatigueAssessment, 0)
	for _, a := range all {
		if calendarDay(a.Date).Equal(d) {
			rows = append(rows, a)
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.SinkURL, bytes.NewReader(b))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", Sign(b, e.cfg.SinkSecret))
	resp, err := e.c.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, &StatusError{Code: resp.StatusCode}
	}
	e.log.Info().Time("date", d).Int("rows", len(rows)).Msg("export complete")
	return len(rows), nil
}

// Sign is the hex HMAC-SHA256 of body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func coalesce(s, def string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	return s
}
// calendarDay keeps the date as written in the timestamp's own zone.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
