package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/rdavidhalljr/weekly-allocator/internal/allocator"
	"github.com/rdavidhalljr/weekly-allocator/internal/config"
	"github.com/rdavidhalljr/weekly-allocator/internal/logger"
	"github.com/rdavidhalljr/weekly-allocator/internal/market"
	"github.com/rdavidhalljr/weekly-allocator/internal/provider"
	"github.com/rdavidhalljr/weekly-allocator/pkg/model"
)

// Recorder archives finished cycles
type Recorder interface {
	RecordCycle(snap *Snapshot) error
}

// Options tunes a Runner
type Options struct {
	Workers         int
	Timeout         time.Duration // per cycle
	MarketHoursOnly bool          // skip scheduled cycles while the market is closed
}

// OptionsFromConfig maps the refresh section of cfg
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Workers:         cfg.Refresh.Workers,
		Timeout:         cfg.Refresh.Timeout,
		MarketHoursOnly: cfg.Refresh.MarketHoursOnly,
	}
}

// Runner owns the mutable state of the refresh loop: the current weights and the
// selected provider. Every cycle reads a copy of the weights taken when it starts.
type Runner struct {
	provider    provider.Provider
	instruments []model.Instrument
	fetcher     *Fetcher
	recorder    Recorder
	log         *logger.Logger
	opts        Options

	mu      sync.RWMutex
	weights model.Weights

	cycleMu sync.Mutex
	latest  Latest

	subMu       sync.Mutex
	subscribers map[int]chan *Snapshot
	nextSubID   int

	now         func() time.Time
	minInterval time.Duration
}

// NewRunner creates a runner. rec may be nil.
func NewRunner(p provider.Provider, instruments []model.Instrument, weights model.Weights, opts Options, rec Recorder, log *logger.Logger) *Runner {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	insts := make([]model.Instrument, len(instruments))
	copy(insts, instruments)

	return &Runner{
		provider:    p,
		instruments: insts,
		fetcher:     NewFetcher(p, opts.Workers, log),
		recorder:    rec,
		log:         log,
		opts:        opts,
		weights:     weights,
		subscribers: make(map[int]chan *Snapshot),
		now:         time.Now,
		minInterval: config.MinRefreshInterval,
	}
}

// Provider returns the provider the runner fetches from
func (r *Runner) Provider() provider.Provider {
	return r.provider
}

// Instruments returns a copy of the tracked instruments
func (r *Runner) Instruments() []model.Instrument {
	out := make([]model.Instrument, len(r.instruments))
	copy(out, r.instruments)
	return out
}

// Weights returns the current weights
func (r *Runner) Weights() model.Weights {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.weights
}

// SetWeights replaces the weights. A cycle already running keeps its snapshot.
func (r *Runner) SetWeights(w model.Weights) error {
	if err := w.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.weights = w
	r.mu.Unlock()
	r.log.WithFields(map[string]interface{}{
		"slope":    w.Slope,
		"momentum": w.Momentum,
		"recent":   w.Recent,
	}).Info("weights updated")
	return nil
}

// SetProgressCallback reports per-symbol fetch progress
func (r *Runner) SetProgressCallback(fn ProgressCallback) {
	r.fetcher.SetProgressCallback(fn)
}

// Latest returns the most recent snapshot, false before the first cycle
func (r *Runner) Latest() (*Snapshot, bool) {
	return r.latest.Get()
}

// Subscribe returns a channel receiving every published snapshot and a function that
// unsubscribes. Slow subscribers miss snapshots rather than blocking the loop.
func (r *Runner) Subscribe(buffer int) (<-chan *Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan *Snapshot, buffer)

	r.subMu.Lock()
	id := r.nextSubID
	r.nextSubID++
	r.subscribers[id] = ch
	r.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.subMu.Lock()
			delete(r.subscribers, id)
			r.subMu.Unlock()
			close(ch)
		})
	}
}

// Cycle runs one fetch, score and publish pass. Cycles never overlap.
func (r *Runner) Cycle(ctx context.Context) *Snapshot {
	r.cycleMu.Lock()
	defer r.cycleMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	started := r.now()
	weights := r.Weights()
	snap := &Snapshot{
		ID:          uuid.New(),
		StartedAt:   started,
		Provider:    r.provider.Name(),
		Market:      market.StatusAt(started, market.DefaultSchedule()).Reason,
		Weights:     weights,
		Instruments: r.Instruments(),
	}

	log := r.log.WithField("cycle", snap.ID.String())
	log.Debugf("cycle started: %d instruments via %s", len(r.instruments), snap.Provider)

	batch := r.fetcher.FetchAll(ctx, r.instruments)
	snap.Result = allocator.Evaluate(allocator.Input{
		Instruments: r.instruments,
		Series:      batch.Series,
		Quotes:      batch.Quotes,
		Weights:     weights,
	})
	if len(batch.Failures) > 0 {
		snap.Failures = batch.Failures
	}
	snap.FinishedAt = r.now()

	if snap.Result.HasRecommendation {
		log.Infof("cycle finished in %s: recommend %s (%d failures)",
			snap.Duration().Round(time.Millisecond), snap.Result.Recommendation, len(batch.Failures))
	} else {
		log.Warnf("cycle finished in %s: no data yet (%d failures)",
			snap.Duration().Round(time.Millisecond), len(batch.Failures))
	}

	if r.recorder != nil {
		if err := r.recorder.RecordCycle(snap); err != nil {
			log.WithError(err).Error("recording cycle failed")
		}
	}

	r.publish(snap)
	return snap
}

func (r *Runner) publish(snap *Snapshot) {
	r.latest.Set(snap)

	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
}

// tick runs a scheduled cycle. The cycle is detached from ctx so that cancelling the
// loop stops future ticks without cutting one short; the cycle timeout still applies.
func (r *Runner) tick(ctx context.Context, scheduled bool) {
	if ctx.Err() != nil {
		return
	}
	if scheduled && r.opts.MarketHoursOnly {
		if status := market.StatusAt(r.now(), market.DefaultSchedule()); !status.IsOpen {
			r.log.Debugf("skipping cycle: market %s, opens in %s", status.Reason, market.FormatDuration(status.TimeToOpen))
			return
		}
	}
	r.Cycle(context.WithoutCancel(ctx))
}

// Run runs a cycle immediately and then every interval until ctx is cancelled.
// Intervals below 30 seconds are raised to 30 seconds.
func (r *Runner) Run(ctx context.Context, interval time.Duration) error {
	if interval < r.minInterval {
		r.log.Warnf("refresh interval %s below minimum, using %s", interval, r.minInterval)
		interval = r.minInterval
	}
	r.log.Infof("refresh loop started: every %s", interval)

	r.tick(ctx, false)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("refresh loop stopped")
			return nil
		case <-ticker.C:
			r.tick(ctx, true)
		}
	}
}

// RunCron runs a cycle immediately and then on the six-field cron spec until ctx is
// cancelled. A firing that overlaps a running cycle is skipped.
func (r *Runner) RunCron(ctx context.Context, spec string) error {
	c := cron.New(
		cron.WithParser(config.CronParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(spec, func() { r.tick(ctx, true) }); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}

	r.log.Infof("refresh schedule started: %s", spec)
	r.tick(ctx, false)

	c.Start()
	<-ctx.Done()

	// waits for a running cycle to finish
	<-c.Stop().Done()
	r.log.Info("refresh schedule stopped")
	return nil
}
