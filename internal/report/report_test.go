package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdavidhalljr/weekly-allocator/internal/allocator"
	"github.com/rdavidhalljr/weekly-allocator/internal/refresh"
	"github.com/rdavidhalljr/weekly-allocator/pkg/model"
)

func series(n int, start, step float64) model.PriceSeries {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := make(model.PriceSeries, n)
	for i := range s {
		s[i] = model.PricePoint{Date: base.AddDate(0, 0, i), Close: start + float64(i)*step}
	}
	return s
}

func snapshot(seriesBy map[string]model.PriceSeries, failures map[string]string) *refresh.Snapshot {
	instruments := []model.Instrument{
		{Symbol: "VOO", Name: "Vanguard S&P 500 ETF"},
		{Symbol: "BRK.B", Name: "Berkshire Hathaway B"},
		{Symbol: "NVDA", Name: "NVIDIA"},
	}
	return &refresh.Snapshot{
		ID:          uuid.New(),
		StartedAt:   time.Date(2026, 10, 19, 14, 0, 0, 0, time.UTC),
		FinishedAt:  time.Date(2026, 10, 19, 14, 0, 2, 0, time.UTC),
		Provider:    "stooq",
		Instruments: instruments,
		Weights:     model.DefaultWeights(),
		Result: allocator.Evaluate(allocator.Input{
			Instruments: instruments,
			Series:      seriesBy,
			Weights:     model.DefaultWeights(),
		}),
		Failures: failures,
	}
}

func TestRowsOrder(t *testing.T) {
	snap := snapshot(map[string]model.PriceSeries{
		"VOO":  series(30, 300, -1),
		"NVDA": series(30, 100, 2),
	}, nil)

	rows := Rows(snap)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{"1", "NVDA"}, rows[0][:2])
	assert.Equal(t, []string{"2", "VOO"}, rows[1][:2])

	// no history: listed last with placeholders
	last := rows[2]
	assert.Equal(t, Missing, last[0])
	assert.Equal(t, "BRK.B", last[1])
	assert.Equal(t, "Berkshire Hathaway B", last[2])
	for _, cell := range last[3:] {
		assert.Equal(t, Missing, cell)
	}

	assert.Equal(t, "158.00", rows[0][3])
	assert.Equal(t, "close", rows[0][4])
	assert.Equal(t, "2024-01-30", rows[0][5])
}

func TestTableOutput(t *testing.T) {
	snap := snapshot(map[string]model.PriceSeries{
		"VOO":  series(30, 100, 1),
		"NVDA": series(30, 200, -1),
	}, map[string]string{"BRK.B": "series: upstream request failed"})

	var buf bytes.Buffer
	require.NoError(t, Table(&buf, snap))
	out := buf.String()

	assert.Contains(t, out, "NVIDIA")
	assert.Contains(t, out, "This week: buy VOO, Vanguard S&P 500 ETF")
	assert.Contains(t, out, "! BRK.B: series: upstream request failed")
	assert.Less(t, strings.Index(out, "VOO"), strings.Index(out, "NVDA"))
	assert.Less(t, strings.Index(out, "NVDA"), strings.Index(out, "BRK.B"))
}

func TestTableNoData(t *testing.T) {
	snap := snapshot(nil, nil)

	var buf bytes.Buffer
	require.NoError(t, Table(&buf, snap))
	assert.Contains(t, buf.String(), "No data yet")
}

func TestJSON(t *testing.T) {
	snap := snapshot(map[string]model.PriceSeries{"VOO": series(30, 100, 1)}, nil)

	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, snap))

	var decoded struct {
		ID     string `json:"id"`
		Result struct {
			Recommendation string              `json:"recommendation"`
			Scores         []model.ScoreResult `json:"scores"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, snap.ID.String(), decoded.ID)
	assert.Equal(t, "VOO", decoded.Result.Recommendation)
	require.Len(t, decoded.Result.Scores, 3)
	assert.False(t, decoded.Result.Scores[1].Scoreable())
	assert.Contains(t, buf.String(), "\n  \"id\"")
}
