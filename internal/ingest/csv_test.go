package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/flare-go/internal/models"
)

func TestCSVSourceAliasesAndOptionals(t *testing.T) {
	in := `Day,Campaign,Imps,Clicks,Cost,Conv,Notes
2025-03-01,alpha,1000,50,$20.5,3,first
2025-03-02,alpha,1000,40,20,,second
`
	ds, err := NewCSVReaderSource(strings.NewReader(in)).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		models.ColDate, models.ColCampaignID, models.ColImpressions,
		models.ColClicks, models.ColSpend, models.ColConversions,
	}, ds.Columns)
	require.Len(t, ds.Rows, 2)

	r := ds.Rows[0]
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), r.Date)
	assert.Equal(t, "alpha", r.CampaignID)
	assert.Equal(t, int64(1000), r.Impressions)
	assert.Equal(t, 20.5, r.Spend)
	require.NotNil(t, r.Conversions)
	assert.Equal(t, int64(3), *r.Conversions)
	assert.Nil(t, ds.Rows[1].Conversions, "blank cell is missing, not zero")
}

func TestCSVSourceMissingRequiredColumn(t *testing.T) {
	in := "date,campaign_id,clicks\n2025-03-01,a,1\n"
	ds, err := NewCSVReaderSource(strings.NewReader(in)).Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ds.HasColumn(models.ColSpend))
}

func TestCSVSourceBadValues(t *testing.T) {
	cases := map[string]string{
		"date":   "date,campaign_id,impressions,clicks,spend\nyesterday,a,1,1,1\n",
		"clicks": "date,campaign_id,impressions,clicks,spend\n2025-03-01,a,1,many,1\n",
		"roi":    "date,campaign_id,impressions,clicks,spend,roi\n2025-03-01,a,1,1,1,high\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewCSVReaderSource(strings.NewReader(in)).Load(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "line 2")
		})
	}

	_, err := NewCSVReaderSource(strings.NewReader("")).Load(context.Background())
	assert.Error(t, err)
}

func TestCSVFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campaigns.csv")
	require.NoError(t, os.WriteFile(path, []byte("date,campaign_id,impressions,clicks,spend,revenue\n03/05/2025,b,10.0,2,1,4.5\n"), 0o644))

	ds, err := NewCSVFileSource(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, ds.Rows, 1)
	assert.Equal(t, time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC), ds.Rows[0].Date)
	assert.Equal(t, int64(10), ds.Rows[0].Impressions)
	require.NotNil(t, ds.Rows[0].Revenue)
	assert.Equal(t, 4.5, *ds.Rows[0].Revenue)

	_, err = NewCSVFileSource(filepath.Join(t.TempDir(), "nope.csv")).Load(context.Background())
	assert.Error(t, err)
}
