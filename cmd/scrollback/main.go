package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"scrollback/internal/browser"
	"scrollback/internal/config"
	"scrollback/internal/jobs"
	"scrollback/internal/logging"
	"scrollback/internal/scrape"
	"scrollback/internal/store"
)

var (
	// Global flags
	verbose   bool
	workspace string
	timeout   time.Duration

	// Logger
	logger *zap.Logger

	// One job at a time across every command in this process.
	gate = jobs.NewGate()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "scrollback",
	Short: "scrollback - recover full chat transcripts from virtualized web UIs",
	Long: `scrollback drives a real Chromium instance against a single-page chat
application and recovers the complete conversation history, even though
the UI recycles message nodes as you scroll and never announces where
history ends.

It works two angles at once: a scroll driver provokes the page into
loading older history, while a network interceptor captures structured
message records straight off the wire. When intercepted records exist
they win; otherwise a heuristic DOM reader takes over.

Start with 'scrollback browser launch', log into the target site in the
opened window, then run 'scrollback scrape <chat-url>'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if err := logging.Initialize(resolveWorkspace()); err != nil {
			logger.Warn("file logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 15*time.Minute, "Operation timeout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveWorkspace returns the --workspace flag or the current
// directory.
func resolveWorkspace() string {
	if workspace != "" {
		return workspace
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

// loadConfig reads and validates the workspace config, falling back to
// defaults when no file exists.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.DefaultPath(resolveWorkspace()))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openStore builds the workspace store using the configured export
// directory.
func openStore(cfg *config.Config) *store.Store {
	return store.New(resolveWorkspace(), cfg.Export.Dir)
}

// browserOptions maps config onto the browser manager.
func browserOptions(cfg *config.Config) browser.Options {
	controlFile := cfg.Browser.ControlFile
	if controlFile != "" && !filepath.IsAbs(controlFile) {
		controlFile = filepath.Join(resolveWorkspace(), controlFile)
	}
	return browser.Options{
		BinPath:     cfg.Browser.BinPath,
		Headless:    cfg.Browser.Headless,
		Width:       cfg.Browser.WindowWidth,
		Height:      cfg.Browser.WindowHeight,
		NavTimeout:  cfg.GetNavTimeout(),
		ControlFile: controlFile,
	}
}

// driverOptions maps config onto the scroll driver.
func driverOptions(cfg *config.Config) scrape.DriverOptions {
	opts := scrape.DefaultDriverOptions()
	opts.MaxCycles = cfg.Scrape.MaxCycles
	opts.SettleMin = cfg.GetSettleMin()
	opts.SettleMax = cfg.GetSettleMax()
	opts.AggressiveSettle = cfg.GetAggressiveSettle()
	opts.AggressiveAfter = cfg.Scrape.AggressiveAfter
	opts.InterventionAfter = cfg.Scrape.InterventionAfter
	opts.LowConfidenceMin = cfg.Intercept.LowConfidenceMin
	opts.LowConfidenceWait = cfg.GetLowConfidenceWait()
	return opts
}

// newManager builds a browser manager from config.
func newManager(cfg *config.Config) *browser.Manager {
	return browser.NewManager(browserOptions(cfg))
}

// startPage launches or reuses the browser and returns its page.
func startPage(cfg *config.Config) (*browser.Manager, scrape.Page, error) {
	mgr := newManager(cfg)
	if err := mgr.Start(); err != nil {
		return nil, nil, err
	}
	page, err := mgr.OpenPage()
	if err != nil {
		return nil, nil, err
	}
	return mgr, page, nil
}

// connectPage attaches to an already running browser; it never launches
// one.
func connectPage(cfg *config.Config) (*browser.Manager, scrape.Page, error) {
	mgr := newManager(cfg)
	if err := mgr.ConnectOnly(); err != nil {
		return nil, nil, fmt.Errorf("%w (run 'scrollback browser launch' first)", err)
	}
	page, err := mgr.OpenPage()
	if err != nil {
		return nil, nil, err
	}
	return mgr, page, nil
}

// commandContext returns a context bounded by --timeout that also ends
// on Ctrl+C.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
