package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AngelCh415/flare-go/internal/models"
)

// headerAliases maps lowercase header names onto pipeline columns.
var headerAliases = map[string]string{
	"date":             models.ColDate,
	"day":              models.ColDate,
	"campaign_id":      models.ColCampaignID,
	"campaign":         models.ColCampaignID,
	"campaignid":       models.ColCampaignID,
	"impressions":      models.ColImpressions,
	"imps":             models.ColImpressions,
	"clicks":           models.ColClicks,
	"spend":            models.ColSpend,
	"cost":             models.ColSpend,
	"conversions":      models.ColConversions,
	"conv":             models.ColConversions,
	"revenue":          models.ColRevenue,
	"conversion_value": models.ColRevenue,
	"ctr":              models.ColCTR,
	"cpc":              models.ColCPC,
	"cpa":              models.ColCPA,
	"roi":              models.ColROI,
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05", "01/02/2006"}

// CSVSource reads a campaign table with a header row. Unknown columns are
// ignored; missing required columns are left for the pipeline to report.
type CSVSource struct {
	open func() (io.ReadCloser, error)
}

func NewCSVFileSource(path string) *CSVSource {
	return &CSVSource{open: func() (io.ReadCloser, error) { return os.Open(path) }}
}

func NewCSVReaderSource(r io.Reader) *CSVSource {
	return &CSVSource{open: func() (io.ReadCloser, error) { return io.NopCloser(r), nil }}
}

func (s *CSVSource) Load(ctx context.Context) (models.Dataset, error) {
	rc, err := s.open()
	if err != nil {
		return models.Dataset{}, err
	}
	defer rc.Close()

	cr := csv.NewReader(rc)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return models.Dataset{}, errors.New("csv: empty input")
		}
		return models.Dataset{}, fmt.Errorf("csv header: %w", err)
	}

	idx := map[string]int{}
	var cols []string
	for i, h := range header {
		col, ok := headerAliases[strings.ToLower(strings.TrimSpace(h))]
		if !ok {
			continue
		}
		if _, dup := idx[col]; dup {
			continue
		}
		idx[col] = i
		cols = append(cols, col)
	}

	ds := models.Dataset{Columns: cols}
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return models.Dataset{}, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return models.Dataset{}, fmt.Errorf("csv line %d: %w", line, err)
		}
		o, err := parseRecord(rec, idx)
		if err != nil {
			return models.Dataset{}, fmt.Errorf("csv line %d: %w", line, err)
		}
		ds.Rows = append(ds.Rows, o)
	}
	return ds, nil
}

func parseRecord(rec []string, idx map[string]int) (models.CampaignObservation, error) {
	get := func(col string) (string, bool) {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return "", false
		}
		v := strings.TrimSpace(rec[i])
		return v, v != ""
	}

	var o models.CampaignObservation
	var err error
	if v, ok := get(models.ColDate); ok {
		if o.Date, err = parseDate(v); err != nil {
			return o, err
		}
	}
	o.CampaignID, _ = get(models.ColCampaignID)
	if o.Impressions, err = intCol(get(models.ColImpressions)); err != nil {
		return o, fmt.Errorf("impressions: %w", err)
	}
	if o.Clicks, err = intCol(get(models.ColClicks)); err != nil {
		return o, fmt.Errorf("clicks: %w", err)
	}
	if o.Spend, err = floatCol(get(models.ColSpend)); err != nil {
		return o, fmt.Errorf("spend: %w", err)
	}

	optInt := func(col string, dst **int64) error {
		v, ok := get(col)
		if !ok {
			return nil
		}
		n, err := intCol(v, true)
		if err != nil {
			return fmt.Errorf("%s: %w", col, err)
		}
		*dst = &n
		return nil
	}
	optFloat := func(col string, dst **float64) error {
		v, ok := get(col)
		if !ok {
			return nil
		}
		f, err := floatCol(v, true)
		if err != nil {
			return fmt.Errorf("%s: %w", col, err)
		}
		*dst = &f
		return nil
	}
	for _, step := range []error{
		optInt(models.ColConversions, &o.Conversions),
		optFloat(models.ColRevenue, &o.Revenue),
		optFloat(models.ColCTR, &o.CTR),
		optFloat(models.ColCPC, &o.CPC),
		optFloat(models.ColCPA, &o.CPA),
		optFloat(models.ColROI, &o.ROI),
	} {
		if step != nil {
			return o, step
		}
	}
	return o, nil
}

func parseDate(v string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", v)
}

// intCol accepts integral floats such as "12.0" from spreadsheet exports.
func intCol(v string, ok bool) (int64, error) {
	if !ok {
		return 0, nil
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

func floatCol(v string, ok bool) (float64, error) {
	if !ok {
		return 0, nil
	}
	return strconv.ParseFloat(strings.TrimPrefix(v, "$"), 64)
}
