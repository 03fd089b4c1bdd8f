package refresh

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rdavidhalljr/weekly-allocator/internal/logger"
	"github.com/rdavidhalljr/weekly-allocator/internal/provider"
	"github.com/rdavidhalljr/weekly-allocator/pkg/model"
)

// ProgressCallback is called with progress updates
type ProgressCallback func(done, total int)

// Batch is the fetched data for one cycle. Every requested symbol has a series entry
// (possibly empty) and a quote entry (possibly absent).
type Batch struct {
	Series   map[string]model.PriceSeries
	Quotes   map[string]model.Quote
	Failures map[string]string
}

type fetchResult struct {
	symbol string
	series model.PriceSeries
	quote  model.Quote
	failed []string
}

// Fetcher pulls series and quotes for many symbols in parallel
type Fetcher struct {
	provider     provider.Provider
	workers      int
	log          *logger.Logger
	progressFunc ProgressCallback
}

// NewFetcher creates a new fetcher
func NewFetcher(p provider.Provider, workers int, log *logger.Logger) *Fetcher {
	if workers < 1 {
		workers = 1
	}
	return &Fetcher{
		provider: p,
		workers:  workers,
		log:      log,
	}
}

// SetProgressCallback sets the progress callback function
func (f *Fetcher) SetProgressCallback(fn ProgressCallback) {
	f.progressFunc = fn
}

// FetchAll fetches every instrument. A failure for one symbol never affects another:
// the failing symbol gets an empty series or absent quote and a Failures entry.
func (f *Fetcher) FetchAll(ctx context.Context, instruments []model.Instrument) Batch {
	batch := Batch{
		Series:   make(map[string]model.PriceSeries, len(instruments)),
		Quotes:   make(map[string]model.Quote, len(instruments)),
		Failures: make(map[string]string),
	}
	if len(instruments) == 0 {
		return batch
	}

	jobChan := make(chan string, len(instruments))
	resultChan := make(chan fetchResult, len(instruments))

	for _, inst := range instruments {
		jobChan <- inst.Symbol
	}
	close(jobChan)

	var done int64
	total := len(instruments)

	var wg sync.WaitGroup
	for i := 0; i < f.workers && i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobChan {
				resultChan <- f.fetchOne(ctx, symbol)

				count := atomic.AddInt64(&done, 1)
				if f.progressFunc != nil {
					f.progressFunc(int(count), total)
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	for res := range resultChan {
		batch.Series[res.symbol] = res.series
		batch.Quotes[res.symbol] = res.quote
		if len(res.failed) > 0 {
			batch.Failures[res.symbol] = strings.Join(res.failed, "; ")
		}
	}
	return batch
}

func (f *Fetcher) fetchOne(ctx context.Context, symbol string) fetchResult {
	res := fetchResult{symbol: symbol, series: model.PriceSeries{}, quote: model.NoQuote()}

	if err := ctx.Err(); err != nil {
		res.failed = append(res.failed, fmt.Sprintf("skipped: %v", err))
		return res
	}

	series, err := f.provider.FetchSeries(ctx, symbol)
	if err != nil {
		f.log.WithError(err).WithField("symbol", symbol).Warn("series fetch failed")
		res.failed = append(res.failed, fmt.Sprintf("series: %v", err))
	} else if series != nil {
		res.series = series
	}

	quote, err := f.provider.FetchQuote(ctx, symbol)
	if err != nil {
		f.log.WithError(err).WithField("symbol", symbol).Warn("quote fetch failed")
		res.failed = append(res.failed, fmt.Sprintf("quote: %v", err))
	} else {
		res.quote = quote
	}

	return res
}
