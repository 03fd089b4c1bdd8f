package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/rdavidhalljr/weekly-allocator/internal/config"
	"github.com/rdavidhalljr/weekly-allocator/internal/logger"
	"github.com/rdavidhalljr/weekly-allocator/internal/market"
	"github.com/rdavidhalljr/weekly-allocator/internal/provider"
	"github.com/rdavidhalljr/weekly-allocator/internal/recorder"
	"github.com/rdavidhalljr/weekly-allocator/internal/refresh"
	"github.com/rdavidhalljr/weekly-allocator/internal/report"
	"github.com/rdavidhalljr/weekly-allocator/internal/symbols"
)

var (
	cfgFile      string
	providerName string
	symbolList   string
	universe     string
	slope        float64
	momentum     float64
	recent       float64
	format       string
	interval     time.Duration
	cronSpec     string
	port         int
	verbose      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "allocator",
		Short: "Weekly allocator: rank instruments by a composite technical score",
		Long: `Allocator fetches daily closes for a small set of instruments, scores each on
trend, momentum and 5-day return, and names the top-ranked symbol as this week's buy.

Providers:
  stooq         - daily CSV, no key, no live quotes (default)
  finnhub       - candles and live quotes, needs FINNHUB_API_KEY
  alphavantage  - daily adjusted and global quote, needs ALPHAVANTAGE_API_KEY

Examples:
  allocator rank
  allocator rank --symbols VOO,QQQ,NVDA --format json
  allocator watch --interval 5m
  allocator serve --port 8080 --cron "0 */15 9-16 * * MON-FRI"`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "config.yaml", "config file path")
	flags.StringVar(&providerName, "provider", "", "price provider: stooq, finnhub, alphavantage")
	flags.StringVar(&symbolList, "symbols", "", "comma-separated symbols (default: configured instruments)")
	flags.StringVar(&universe, "universe", "", "predefined instrument set: default, etf, mega")
	flags.Float64Var(&slope, "slope", 0, "trend weight in [0,1]")
	flags.Float64Var(&momentum, "momentum", 0, "momentum weight in [0,1]")
	flags.Float64Var(&recent, "recent", 0, "5-day return weight in [0,1]")
	flags.StringVar(&format, "format", "table", "output format: table, json")
	flags.BoolVar(&verbose, "verbose", false, "debug logging")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-rank on a schedule and print every cycle",
		RunE:  runWatch,
	}
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API with a background refresh loop",
		RunE:  runServe,
	}
	for _, c := range []*cobra.Command{watchCmd, serveCmd} {
		c.Flags().DurationVar(&interval, "interval", 0, "refresh interval (minimum 30s)")
		c.Flags().StringVar(&cronSpec, "cron", "", "six-field cron schedule, replaces --interval")
	}
	serveCmd.Flags().IntVar(&port, "port", 0, "HTTP port")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "rank",
			Short: "Run one ranking cycle and print the result",
			RunE:  runRank,
		},
		watchCmd,
		serveCmd,
		&cobra.Command{
			Use:   "providers",
			Short: "List price providers and their availability",
			RunE:  runProviders,
		},
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is the wiring shared by every subcommand
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	runner *refresh.Runner
	rec    recorder.Recorder
	sqlite *recorder.SQLiteRecorder
}

func (a *app) Close() {
	if err := a.rec.Close(); err != nil {
		a.log.WithError(err).Warn("closing recorder")
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	// Override config with CLI flags
	if providerName != "" {
		cfg.Provider = providerName
	}
	if cmd.Flags().Changed("slope") {
		cfg.Weights.Slope = slope
	}
	if cmd.Flags().Changed("momentum") {
		cfg.Weights.Momentum = momentum
	}
	if cmd.Flags().Changed("recent") {
		cfg.Weights.Recent = recent
	}
	if cmd.Flags().Changed("interval") {
		cfg.Refresh.Interval = interval
	}
	if cronSpec != "" {
		cfg.Refresh.Cron = cronSpec
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	instruments, err := symbols.Resolve(symbolList, universe, cfg.Instruments)
	if err != nil {
		return nil, err
	}
	cfg.Instruments = instruments

	switch format {
	case "table", "json":
	default:
		return nil, fmt.Errorf("unknown format %q (use table or json)", format)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	p, err := provider.Select(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("selecting provider: %w", err)
	}

	a := &app{cfg: cfg, log: log}
	if cfg.Storage.SQLitePath != "" {
		a.sqlite, err = recorder.NewSQLiteRecorder(cfg.Storage.SQLitePath, log)
		if err != nil {
			return nil, fmt.Errorf("opening recorder: %w", err)
		}
		a.rec = a.sqlite
	} else {
		a.rec = recorder.NewNoopRecorder()
	}

	a.runner = refresh.NewRunner(p, cfg.Instruments, cfg.Weights, refresh.OptionsFromConfig(cfg), a.rec, log)
	log.WithFields(map[string]interface{}{
		"provider":    p.Name(),
		"instruments": len(cfg.Instruments),
	}).Debug("allocator ready")
	return a, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func render(snap *refresh.Snapshot) error {
	if format == "json" {
		return report.JSON(os.Stdout, snap)
	}
	return report.Table(os.Stdout, snap)
}

func runRank(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	var bar *progressbar.ProgressBar
	if format == "table" {
		bar = progressbar.NewOptions(len(a.cfg.Instruments),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("Fetching"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]█[reset]",
				SaucerHead:    "[green]█[reset]",
				SaucerPadding: "░",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
		a.runner.SetProgressCallback(func(done, total int) {
			bar.Set(done)
		})
	}

	snap := a.runner.Cycle(ctx)

	if bar != nil {
		bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("interrupted")
	}
	return render(snap)
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	snaps, unsubscribe := a.runner.Subscribe(4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for snap := range snaps {
			if format == "table" {
				status := market.StatusAt(snap.StartedAt, market.DefaultSchedule())
				fmt.Printf("\n== %s | market %s ==\n", snap.StartedAt.Format("2006-01-02 15:04:05"), status.Reason)
			}
			if err := render(snap); err != nil {
				a.log.WithError(err).Error("rendering cycle")
			}
		}
	}()

	err = runLoop(ctx, a)
	unsubscribe()
	<-done
	return err
}

func runLoop(ctx context.Context, a *app) error {
	if a.cfg.Refresh.Cron != "" {
		return a.runner.RunCron(ctx, a.cfg.Refresh.Cron)
	}
	return a.runner.Run(ctx, a.cfg.Refresh.Interval)
}

func runProviders(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Provider", "Key", "Available", "Rate/min", "Selected"}),
	)
	for _, name := range provider.Names() {
		key := "-"
		available := "yes"
		if provider.RequiresKey(name) {
			key = config.KeyEnv(name)
			if cfg.KeyFor(name) == "" {
				available = "no"
			}
		}
		rate := "-"
		if p, err := provider.New(name, cfg); err == nil {
			rate = fmt.Sprintf("%d", p.RateLimit())
		}
		selected := ""
		if name == cfg.Provider {
			selected = "*"
		}
		if err := table.Append([]string{name, key, available, rate, selected}); err != nil {
			return err
		}
	}
	return table.Render()
}
