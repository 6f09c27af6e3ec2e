package metrics

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/AngelCh415/flare-go/internal/models"
)

// ErrBadQuery marks malformed query parameters.
var ErrBadQuery = errors.New("bad query")

// Source is the read side of the fatigue engine.
type Source interface {
	Assessments() ([]models.FatigueAssessment, error)
	Recommendations() (map[string]models.Recommendation, error)
}

// Service answers filtered, paginated queries over the latest pipeline run.
type Service struct{ src Source }

func NewService(src Source) *Service { return &Service{src: src} }
func norm(s string) string           { return strings.ToLower(strings.TrimSpace(s)) }

func csvSet(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, p := range strings.Split(s, ",") {
		p = norm(p)
		if p != "" {
			out[p] = struct{}{}
		}
	}
	return out
}

// QueryAssessments filters by campaign_id and stage (comma lists) and by an
// inclusive from/to date range, then paginates with limit/offset.
func (s *Service) QueryAssessments(v url.Values) ([]models.FatigueAssessment, error) {
	from, to, err := dateRange(v)
	if err != nil {
		return nil, err
	}
	idSet := csvSet(v.Get("campaign_id"))
	stSet := csvSet(v.Get("stage"))
	limit := atoiDef(v.Get("limit"), 100)
	offset := atoiDef(v.Get("offset"), 0)

	all, err := s.src.Assessments()
	if err != nil {
		return nil, err
	}
	rows := make([]models.FatigueAssessment, 0, len(all))
	for _, a := range all {
		if len(idSet) > 0 {
			if _, ok := idSet[norm(a.CampaignID)]; !ok {
				continue
			}
		}
		if len(stSet) > 0 {
			if _, ok := stSet[norm(string(a.Stage))]; !ok {
				continue
			}
		}
		if !from.IsZero() && a.Date.Before(from) {
			continue
		}
		if !to.IsZero() && a.Date.After(to) {
			continue
		}
		rows = append(rows, a)
	}

	// orden determinista
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.Before(rows[j].Date)
		}
		return rows[i].CampaignID < rows[j].CampaignID
	})

	limit, offset = clampLimitOffset(limit, offset, len(rows))
	return paginate(rows, limit, offset), nil
}

// QueryRecommendations lists recommendation sets ordered by descending FRI,
// optionally filtered by risk_level and priority.
func (s *Service) QueryRecommendations(v url.Values) ([]models.Recommendation, error) {
	riskSet := csvSet(v.Get("risk_level"))
	prSet := csvSet(v.Get("priority"))
	limit := atoiDef(v.Get("limit"), 100)
	offset := atoiDef(v.Get("offset"), 0)

	recs, err := s.src.Recommendations()
	if err != nil {
		return nil, err
	}
	rows := make([]models.Recommendation, 0, len(recs))
	for _, r := range recs {
		if len(riskSet) > 0 {
			if _, ok := riskSet[norm(string(r.RiskLevel))]; !ok {
				continue
			}
		}
		if len(prSet) > 0 {
			if _, ok := prSet[norm(string(r.Priority))]; !ok {
				continue
			}
		}
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].FRIScore != rows[j].FRIScore {
			return rows[i].FRIScore > rows[j].FRIScore
		}
		return rows[i].CampaignID < rows[j].CampaignID
	})

	limit, offset = clampLimitOffset(limit, offset, len(rows))
	return paginate(rows, limit, offset), nil
}

func dateRange(v url.Values) (from, to time.Time, err error) {
	if s := v.Get("from"); s != "" {
		if from, err = time.Parse("2006-01-02", s); err != nil {
			return from, to, fmt.Errorf("%w: from date %q", ErrBadQuery, s)
		}
	}
	if s := v.Get("to"); s != "" {
		if to, err = time.Parse("2006-01-02", s); err != nil {
			return from, to, fmt.Errorf("%w: to date %q", ErrBadQuery, s)
		}
	}
	return from, to, nil
}

func paginate[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return []T{}
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}

func atoiDef(s string, d int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}
func clampLimitOffset(limit, offset, n int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = n
	}
	if limit > 1000 {
		limit = 1000
	} // tope sano
	if offset > n {
		offset = n
	}
	return limit, offset
}
