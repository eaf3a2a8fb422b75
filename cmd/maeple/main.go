// Command maeple is the ingestion and resilience daemon for the Maeple
// health journal: it runs analyses against the configured LLM provider,
// validates every response before anything is stored, and drains the offline
// sync queue in the background.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/0Reliance/maeple/internal/breaker"
	"github.com/0Reliance/maeple/internal/config"
	"github.com/0Reliance/maeple/internal/journal"
	"github.com/0Reliance/maeple/internal/logging"
	"github.com/0Reliance/maeple/internal/parse"
	"github.com/0Reliance/maeple/internal/provider"
	"github.com/0Reliance/maeple/internal/storage"
	"github.com/0Reliance/maeple/internal/syncq"
)

var (
	verbose bool
	dataDir string

	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "maeple",
	Short: "Maeple - health journal AI ingestion and resilience layer",
	Long: `Maeple turns free-form health journal entries into validated, typed
records using an LLM provider, without ever trusting the provider:
responses are normalized and schema-checked before storage, provider
outages trip a circuit breaker, and entries written while offline are
queued and synced in the background.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if dataDir == "" {
			dataDir = config.DefaultDataDir()
		}

		// Initialize logger
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if err := logging.Initialize(dataDir); err != nil {
			logger.Warn("Debug logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// initCmd writes a default config file.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config.yaml to the data directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(dataDir, "config.yaml")
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		cfg := config.DefaultConfig()
		cfg.Storage.DatabasePath = filepath.Join(dataDir, "maeple.db")
		if err := cfg.Save(path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

// workerCmd runs the background sync worker until interrupted.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background sync worker",
	Long: `Runs the sync queue drain loop: every interval, stale entries are
purged and pending entries are synced in arrival order. The config file is
watched; threshold and interval edits apply without a restart.`,
	RunE: runWorker,
}

// statusCmd prints queue and breaker health.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print queue and breaker status as JSON",
	RunE:  runStatus,
}

// analyzeCmd runs one analysis over text from the arguments or stdin.
var analyzeCmd = &cobra.Command{
	Use:   "analyze [entry text]",
	Short: "Analyze a single journal entry",
	RunE:  runAnalyze,
}

// parseCmd runs a raw response through the parse pipeline without touching
// the provider. Operator aid for diagnosing rejected responses.
var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Validate a raw provider response against a journal schema",
	Long: `Reads a raw provider response from the given file (or stdin) and runs
it through normalization and schema validation, printing either the typed
record or every schema violation. No provider call is made.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runParse,
}

// purgeCmd evicts stale queue entries once.
var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Evict sync entries older than the staleness window",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(false)
		if err != nil {
			return err
		}
		defer app.Close()

		purged, err := app.Queue.PurgeStale()
		if err != nil {
			return err
		}
		fmt.Printf("Purged %d stale entries\n", purged)
		return nil
	},
}

var analyzeKind string

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "Data directory (default: ~/.maeple)")

	kindUsage := fmt.Sprintf("Analysis kind: %s, %s, or %s",
		journal.KindMood, journal.KindObservation, journal.KindActionUnits)
	analyzeCmd.Flags().StringVarP(&analyzeKind, "kind", "k", journal.KindMood, kindUsage)
	parseCmd.Flags().StringVarP(&analyzeKind, "kind", "k", journal.KindMood, kindUsage)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(purgeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app bundles the wired components for one command invocation.
type app struct {
	Config   *config.Config
	Store    *storage.Store
	Breaker  *breaker.Breaker
	Reporter *parse.ThresholdReporter
	Client   provider.Client
	Queue    *syncq.Queue
	Analyzer *journal.Analyzer
}

func (a *app) Close() {
	if a.Store != nil {
		_ = a.Store.Close()
	}
}

// buildApp loads config and wires the full pipeline. When requireKey is
// false (status, purge) no provider client is constructed and a missing API
// key is tolerated; those commands never call the provider. Client and
// Analyzer are nil in that mode.
func buildApp(requireKey bool) (*app, error) {
	cfg, err := config.Load(filepath.Join(dataDir, "config.yaml"))
	if err != nil {
		return nil, err
	}
	if requireKey {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if cfg.Provider.APIKey == "" {
			return nil, fmt.Errorf("no API key configured (set ANTHROPIC_API_KEY or GEMINI_API_KEY, or edit config.yaml)")
		}
	}

	store, err := storage.NewStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}

	reporter := parse.NewThresholdReporter(cfg.Thresholds(), func(alert parse.Alert) {
		fields := []zap.Field{
			zap.String("context", alert.Context),
			zap.Float64("failure_rate", alert.FailureRate),
			zap.Int("consecutive_failures", alert.ConsecutiveFailures),
		}
		switch alert.Level {
		case parse.AlertCritical, parse.AlertBreaker:
			logger.Error("Parse health alert", append(fields, zap.String("level", string(alert.Level)))...)
		default:
			logger.Warn("Parse health alert", append(fields, zap.String("level", string(alert.Level)))...)
		}
	})

	bcfg := cfg.BreakerSettings()
	bcfg.OnStateChange = func(from, to breaker.State) {
		reporter.StateChange("provider-breaker", from.String(), to.String())
		logger.Warn("Circuit breaker transition",
			zap.String("from", from.String()), zap.String("to", to.String()))
	}
	cb := breaker.New(bcfg)

	if !requireKey {
		// Status and purge never reach the provider, so none is
		// constructed: a missing or half-configured key must not keep an
		// operator from inspecting or pruning the queue.
		queue := syncq.New(store, syncq.ApplierFunc(func(context.Context, storage.SyncEntry) error {
			return fmt.Errorf("no provider wired for this command")
		}), cfg.SyncSettings())
		return &app{
			Config:   cfg,
			Store:    store,
			Breaker:  cb,
			Reporter: reporter,
			Queue:    queue,
		}, nil
	}

	var client provider.Client
	switch cfg.Provider.Provider {
	case "gemini":
		client, err = provider.NewGeminiClient(cfg.Provider.APIKey, cfg.Provider.Model)
		if err != nil {
			store.Close()
			return nil, err
		}
	default:
		hcfg := provider.DefaultHTTPConfig(cfg.Provider.APIKey)
		if cfg.Provider.Model != "" {
			hcfg.Model = cfg.Provider.Model
		}
		if cfg.Provider.BaseURL != "" {
			hcfg.BaseURL = cfg.Provider.BaseURL
		}
		hcfg.Timeout = cfg.GetProviderTimeout()
		client = provider.NewHTTPClientWithConfig(hcfg)
	}
	guarded := provider.NewGuardedClient(client, cb)

	// The drain-side analyzer has no queue: a failed replay stays put
	// instead of re-enqueueing itself.
	drainAnalyzer := journal.NewAnalyzer(guarded, store, nil, reporter)
	queue := syncq.New(store, journal.NewApplier(drainAnalyzer), cfg.SyncSettings())
	analyzer := journal.NewAnalyzer(guarded, store, queue, reporter)

	return &app{
		Config:   cfg,
		Store:    store,
		Breaker:  cb,
		Reporter: reporter,
		Client:   guarded,
		Queue:    queue,
		Analyzer: analyzer,
	}, nil
}

func runWorker(cmd *cobra.Command, args []string) error {
	app, err := buildApp(true)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Queue.Recover(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	watcher, err := config.NewWatcher(filepath.Join(dataDir, "config.yaml"), app.Config)
	if err != nil {
		return err
	}
	watcher.OnReload(func(cfg *config.Config) {
		app.Reporter.SetThresholds(cfg.Thresholds())
		logger.Info("Applied reloaded thresholds")
	})

	worker := syncq.NewWorker(app.Queue, app.Config.DrainInterval())

	logger.Info("Worker starting",
		zap.String("data_dir", dataDir),
		zap.Duration("drain_interval", app.Config.DrainInterval()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Worker stopped")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	app, err := buildApp(false)
	if err != nil {
		return err
	}
	defer app.Close()

	queueStatus, err := app.Queue.Status()
	if err != nil {
		return err
	}

	status := struct {
		Queue   syncq.Status     `json:"queue"`
		Breaker breaker.Snapshot `json:"breaker"`
	}{
		Queue:   queueStatus,
		Breaker: app.Breaker.Snapshot(),
	}

	out, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	app, err := buildApp(true)
	if err != nil {
		return err
	}
	defer app.Close()

	entry := strings.TrimSpace(strings.Join(args, " "))
	if entry == "" {
		data, err := readStdin()
		if err != nil {
			return err
		}
		entry = strings.TrimSpace(data)
	}
	if entry == "" {
		return fmt.Errorf("no entry text given (pass as arguments or on stdin)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), app.Config.GetProviderTimeout())
	defer cancel()

	var record interface{}
	switch analyzeKind {
	case journal.KindMood:
		record, err = app.Analyzer.AnalyzeMood(ctx, entry)
	case journal.KindObservation:
		record, err = app.Analyzer.AnalyzeObservation(ctx, entry)
	case journal.KindActionUnits:
		record, err = app.Analyzer.AnalyzeExpression(ctx, entry)
	default:
		return fmt.Errorf("unknown analysis kind %q", analyzeKind)
	}
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runParse(cmd *cobra.Command, args []string) error {
	var raw string
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		raw = string(data)
	} else {
		data, err := readStdin()
		if err != nil {
			return err
		}
		raw = data
	}
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("no response text given (pass a file or pipe on stdin)")
	}

	opts := parse.Options{Context: analyzeKind}
	var record interface{}
	var perr *parse.ParseError
	switch analyzeKind {
	case journal.KindMood:
		res := parse.SafeParse[journal.MoodRecord](raw, journal.MoodSchema(), opts)
		record, perr = res.Data, res.Err
	case journal.KindObservation:
		res := parse.SafeParse[journal.ObservationRecord](raw, journal.ObservationSchema(), opts)
		record, perr = res.Data, res.Err
	case journal.KindActionUnits:
		res := parse.SafeParse[journal.ActionUnitsRecord](raw, journal.ActionUnitsSchema(), opts)
		record, perr = res.Data, res.Err
	default:
		return fmt.Errorf("unknown analysis kind %q", analyzeKind)
	}
	if perr != nil {
		return perr
	}

	out, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func readStdin() (string, error) {
	info, err := os.Stdin.Stat()
	if err != nil {
		return "", err
	}
	if info.Mode()&os.ModeCharDevice != 0 {
		return "", nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
