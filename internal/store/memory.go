package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AngelCh415/flare-go/internal/models"
)

type key struct {
	Date       time.Time
	CampaignID string
}

type crmAgg struct {
	conversions int64
	revenue     float64
}

// MemoryStore accumulates daily campaign observations across ingestion runs.
type MemoryStore struct {
	mu   sync.RWMutex
	ads  map[key]*models.CampaignObservation
	crm  map[key]*crmAgg
	seen map[string]struct{} // idempotencia por-record

	hasConversions bool
	hasRevenue     bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ads:  make(map[key]*models.CampaignObservation),
		crm:  make(map[key]*crmAgg),
		seen: make(map[string]struct{}),
	}
}

func (s *MemoryStore) MarkSeen(k string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[k]; ok {
		return false
	}
	s.seen[k] = struct{}{}
	return true
}

// UpsertAds adds a delivery row to the (campaign, day) aggregate.
func (s *MemoryStore) UpsertAds(o models.CampaignObservation) {
	k := key{Date: day(o.Date), CampaignID: o.CampaignID}
	s.mu.Lock()
	defer s.mu.Unlock()
	agg, ok := s.ads[k]
	if !ok {
		agg = &models.CampaignObservation{Date: k.Date, CampaignID: k.CampaignID}
		s.ads[k] = agg
	}
	agg.Impressions += max0(o.Impressions)
	agg.Clicks += max0(o.Clicks)
	agg.Spend += maxf(o.Spend)
	if o.Conversions != nil {
		s.hasConversions = true
		agg.Conversions = addInt(agg.Conversions, max0(*o.Conversions))
	}
	if o.Revenue != nil {
		s.hasRevenue = true
		agg.Revenue = addFloat(agg.Revenue, maxf(*o.Revenue))
	}
}

// UpsertCRM attributes a closed_won deal to its campaign and day.
func (s *MemoryStore) UpsertCRM(o models.Opportunity) {
	if o.Stage != "closed_won" {
		return
	}
	k := key{Date: day(o.CreatedAt), CampaignID: o.UTMCampaign}
	s.mu.Lock()
	defer s.mu.Unlock()
	agg, ok := s.crm[k]
	if !ok {
		agg = &crmAgg{}
		s.crm[k] = agg
	}
	agg.conversions++
	agg.revenue += maxf(o.Amount)
	s.hasConversions = true
	s.hasRevenue = true
}

// All returns the merged observations ordered by campaign and date. CRM
// deals without a matching delivery row are not reported.
func (s *MemoryStore) All() []models.CampaignObservation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.CampaignObservation, 0, len(s.ads))
	for k, v := range s.ads {
		o := *v
		if c, ok := s.crm[k]; ok {
			o.Conversions = addInt(o.Conversions, c.conversions)
			o.Revenue = addFloat(o.Revenue, c.revenue)
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CampaignID != out[j].CampaignID {
			return out[i].CampaignID < out[j].CampaignID
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// Load exposes the store as a pipeline source.
func (s *MemoryStore) Load(ctx context.Context) (models.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return models.Dataset{}, err
	}
	rows := s.All()
	cols := append([]string(nil), models.RequiredColumns...)
	s.mu.RLock()
	if s.hasConversions {
		cols = append(cols, models.ColConversions)
	}
	if s.hasRevenue {
		cols = append(cols, models.ColRevenue)
	}
	s.mu.RUnlock()
	return models.Dataset{Columns: cols, Rows: rows}, nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ads)
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
func max0(i int64) int64 {
	if i < 0 {
		return 0
	}
	return i
}
func maxf(f float64) float64 {
	if f < 0 {
		return 0
	}
	return f
}
func addInt(p *int64, v int64) *int64 {
	if p != nil {
		v += *p
	}
	return &v
}
func addFloat(p *float64, v float64) *float64 {
	if p != nil {
		v += *p
	}
	return &v
}
