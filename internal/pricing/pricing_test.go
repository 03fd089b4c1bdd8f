package pricing

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdavidhalljr/weekly-allocator/pkg/model"
)

var (
	day   = time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	stamp = time.Date(2024, 5, 13, 14, 30, 0, 0, time.UTC)
)

func closingAt100() model.PriceSeries {
	return model.PriceSeries{
		{Date: day.AddDate(0, 0, -1), Close: 98},
		{Date: day, Close: 100},
	}
}

func TestResolveQuoteWins(t *testing.T) {
	dp := Resolve("VOO", closingAt100(), model.NewQuote(105, stamp))

	require.True(t, dp.HasValue())
	assert.Equal(t, 105.0, *dp.Value)
	assert.Equal(t, model.SourceQuote, dp.Source)
	require.NotNil(t, dp.AsOf)
	assert.Equal(t, stamp, *dp.AsOf)
}

func TestResolveFallsBackToClose(t *testing.T) {
	dp := Resolve("VOO", closingAt100(), model.NoQuote())

	require.True(t, dp.HasValue())
	assert.Equal(t, 100.0, *dp.Value)
	assert.Equal(t, model.SourceClose, dp.Source)
	require.NotNil(t, dp.AsOf)
	assert.Equal(t, day, *dp.AsOf)
}

func TestResolveNonFiniteQuoteIgnored(t *testing.T) {
	nan := math.NaN()
	dp := Resolve("VOO", closingAt100(), model.Quote{Price: &nan, Timestamp: &stamp})

	assert.Equal(t, model.SourceClose, dp.Source)
	assert.Equal(t, 100.0, *dp.Value)
}

func TestResolveEmpty(t *testing.T) {
	dp := Resolve("NVDA", nil, model.NoQuote())

	assert.False(t, dp.HasValue())
	assert.Nil(t, dp.AsOf)
	assert.Equal(t, model.SourceClose, dp.Source)
	assert.Equal(t, "NVDA", dp.Symbol)
}

func TestResolveQuoteWithoutTimestamp(t *testing.T) {
	dp := Resolve("BRK.B", nil, model.NewQuote(410.5, time.Time{}))

	assert.Equal(t, model.SourceQuote, dp.Source)
	assert.Equal(t, 410.5, *dp.Value)
	assert.Nil(t, dp.AsOf)
}

func TestResolveAll(t *testing.T) {
	instruments := []model.Instrument{{Symbol: "VOO"}, {Symbol: "NVDA"}}
	prices := ResolveAll(instruments,
		map[string]model.PriceSeries{"VOO": closingAt100()},
		map[string]model.Quote{"NVDA": model.NewQuote(900, stamp)})

	require.Len(t, prices, 2)
	assert.Equal(t, model.SourceClose, prices[0].Source)
	assert.Equal(t, model.SourceQuote, prices[1].Source)
}
