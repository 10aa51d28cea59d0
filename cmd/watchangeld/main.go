package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haukened/watchangel/internal/watch/common/clock"
	"github.com/haukened/watchangel/internal/watch/common/log"
	"github.com/haukened/watchangel/internal/watch/common/wait"
	"github.com/haukened/watchangel/internal/watch/config"
	"github.com/haukened/watchangel/internal/watch/domain"
	"github.com/haukened/watchangel/internal/watch/gateways/cdpbrowser"
	"github.com/haukened/watchangel/internal/watch/gateways/fakebrowser"
	"github.com/haukened/watchangel/internal/watch/gateways/thumbnail"
	"github.com/haukened/watchangel/internal/watch/repos/blockstate"
	"github.com/haukened/watchangel/internal/watch/repos/blockstate/bolt"
	"github.com/haukened/watchangel/internal/watch/repos/rules"
	"github.com/haukened/watchangel/internal/watch/services/channel"
	"github.com/haukened/watchangel/internal/watch/services/decision"
	"github.com/haukened/watchangel/internal/watch/services/matcher"
	"github.com/haukened/watchangel/internal/watch/services/remover"
	"github.com/haukened/watchangel/internal/watch/services/scanner"
	"github.com/haukened/watchangel/internal/watch/services/undo"
	"github.com/haukened/watchangel/internal/watch/services/watcher"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "watchangeld"
)

// browserSession is a FeedBrowser owning a live session.
type browserSession interface {
	domain.FeedBrowser
	Close() error
}

// Application holds all the components of the watch daemon
type Application struct {
	config  *config.AppConfig
	browser browserSession
	loop    *watcher.Loop
	changes *rules.Watcher
	closers []func() error
}

func main() {
	cleanup := flag.Bool("cleanup", false, "reconcile undo entries, run a single cleanup pass and exit")
	flag.Parse()

	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Configure global logging
	err = log.Configure(cfg.Env, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":    version,
		"app":        appName,
		"env":        cfg.Env,
		"log_level":  cfg.Log.Level,
		"config_dir": cfg.Paths.ConfigDir,
		"state_dir":  cfg.Paths.StateDir,
		"backend":    cfg.State.Backend,
		"driver":     cfg.Browser.Driver,
		"cleanup":    *cleanup,
	}, "Starting watchangel")

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	// Build application with all dependencies
	app, err := buildApplication(ctx, cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	runErr := app.Run(ctx, *cleanup)
	app.Close()
	if runErr != nil {
		log.Fatal(map[string]any{"error": runErr}, "Watch daemon failed")
	}

	log.Info(nil, "watchangel stopped gracefully")
}

// newBrowser opens the configured automation driver. It is a variable so
// tests can substitute the session.
var newBrowser = func(ctx context.Context, cfg *config.AppConfig, logger log.Logger) (browserSession, error) {
	switch cfg.Browser.Driver {
	case "fake":
		b, err := fakebrowser.LoadFixture(cfg.Browser.Fixture)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		b, err := cdpbrowser.New(ctx, cdpbrowser.Options{
			Headless:    cfg.Browser.Headless,
			UserDataDir: cfg.Browser.UserDataDir,
			ExecPath:    cfg.Browser.ExecPath,
			Timeout:     cfg.Timeouts.Navigate,
			Logger:      log.WithComponent(logger, "browser"),
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

// repositories holds all repository implementations
type repositories struct {
	blockLog domain.BlockLog
	undo     domain.LineList
	state    *blockstate.Store
	rules    *rules.Store
	changes  *rules.Watcher
	closers  []func() error
}

// buildApplication constructs all components and wires them together
func buildApplication(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	// Create shared clock for consistent time across all components
	clk := clock.RealClock{}

	// Initialize logger (already configured globally)
	logger := log.GetLogger()

	// Build repository layer
	repos, err := buildRepositories(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build repositories: %w", err)
	}

	// Build gateway layer; a session that cannot be opened is fatal
	browser, err := newBrowser(ctx, cfg, logger)
	if err != nil {
		repos.close()
		return nil, fmt.Errorf("failed to open browser session: %w", err)
	}
	thumbs := thumbnail.New(thumbnail.Options{
		BaseURL: cfg.Thumbnails.BaseURL,
		Dir:     cfg.Thumbnails.Dir,
		Logger:  log.WithComponent(logger, "thumbnail"),
	})

	// Build service layer
	waiter := wait.New(wait.Options{Browser: browser, Interval: cfg.Timeouts.Poll})

	engine := decision.New(decision.Options{Logger: log.WithComponent(logger, "decision")})
	decider, err := decision.NewCached(engine, cfg.Rules.CacheSize)
	if err != nil {
		repos.close()
		_ = browser.Close()
		return nil, fmt.Errorf("failed to create decision cache: %w", err)
	}

	pipeline := matcher.New(decider, log.WithComponent(logger, "matcher"))
	feed := scanner.New(scanner.Options{
		Browser:       browser,
		FeedURL:       cfg.Scan.FeedURL,
		MaxRounds:     cfg.Scan.MaxRounds,
		MaxIdleRounds: cfg.Scan.MaxIdleRounds,
		Pause:         disabledIfZero(cfg.Scan.Pause),
		Clock:         clk,
		Logger:        log.WithComponent(logger, "scanner"),
	})
	exec := remover.New(remover.Options{
		Browser:       browser,
		Waiter:        waiter,
		Recorder:      repos.state,
		Sweeper:       feed,
		Matcher:       pipeline,
		ButtonTimeout: cfg.Timeouts.Button,
		Pause:         disabledIfZero(cfg.Watch.RemovalPause),
		Clock:         clk,
		Logger:        log.WithComponent(logger, "remover"),
	})
	ctl := channel.New(channel.Options{
		Browser: browser,
		Waiter:  waiter,
		Timeouts: channel.Timeouts{
			Marker:   cfg.Timeouts.Marker,
			Report:   cfg.Timeouts.Report,
			Menu:     cfg.Timeouts.Menu,
			Submit:   cfg.Timeouts.Submit,
			Continue: cfg.Timeouts.Continue,
			Toggle:   cfg.Timeouts.Toggle,
			Done:     cfg.Timeouts.Done,
		},
		Clock:  clk,
		Logger: log.WithComponent(logger, "channel"),
	})
	reconciler, err := undo.New(undo.Options{
		Log:     repos.blockLog,
		Undo:    repos.undo,
		Unhider: ctl,
		Logger:  log.WithComponent(logger, "undo"),
	})
	if err != nil {
		repos.close()
		_ = browser.Close()
		return nil, fmt.Errorf("failed to create undo reconciler: %w", err)
	}

	seen, err := watcher.NewSeenSet(cfg.Watch.SeenCapacity)
	if err != nil {
		repos.close()
		_ = browser.Close()
		return nil, fmt.Errorf("failed to create seen set: %w", err)
	}

	var changes watcher.ChangeDetector
	if repos.changes != nil {
		changes = repos.changes
	}
	loop, err := watcher.New(watcher.Options{
		State:      repos.state,
		Rules:      repos.rules,
		Changes:    changes,
		Languages:  cfg.Rules.Languages,
		Scanner:    feed,
		Decider:    decider,
		Matcher:    pipeline,
		Remover:    exec,
		Blocker:    ctl,
		Archiver:   thumbs,
		Seen:       seen,
		Reconciler: reconciler,
		EntryPause: disabledIfZero(cfg.Watch.EntryPause),
		Settle:     disabledIfZero(cfg.Watch.Settle),
		Cooldown:   cfg.Watch.Cooldown,
		Clock:      clk,
		Logger:     log.WithComponent(logger, "watcher"),
	})
	if err != nil {
		repos.close()
		_ = browser.Close()
		return nil, fmt.Errorf("failed to create watch loop: %w", err)
	}

	return &Application{
		config:  cfg,
		browser: browser,
		loop:    loop,
		changes: repos.changes,
		closers: repos.closers,
	}, nil
}

// disabledIfZero maps a configured zero pause onto the component
// convention, where zero selects the default and a negative value disables.
func disabledIfZero(d time.Duration) time.Duration {
	if d == 0 {
		return -1
	}
	return d
}

// buildRepositories creates and configures all repository implementations
func buildRepositories(cfg *config.AppConfig, logger log.Logger) (*repositories, error) {
	if err := os.MkdirAll(cfg.Paths.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	repos := &repositories{}

	// Create block log backend
	switch cfg.State.Backend {
	case "bolt":
		db, err := bolt.New(cfg.StatePath(cfg.State.BoltFile), log.WithComponent(logger, "blocklog"))
		if err != nil {
			return nil, fmt.Errorf("failed to open bolt block log: %w", err)
		}
		repos.blockLog = db
		repos.closers = append(repos.closers, db.Close)
	default:
		repos.blockLog = blockstate.NewJSONLLog(cfg.StatePath(blockstate.LogFile), log.WithComponent(logger, "blocklog"))
	}

	listLogger := log.WithComponent(logger, "rules")
	repos.undo = rules.NewFileList(cfg.ConfigPath(rules.UndoFile), listLogger)

	state, err := blockstate.New(blockstate.Options{
		Log:       repos.blockLog,
		Undo:      repos.undo,
		Whitelist: rules.NewFileList(cfg.ConfigPath(rules.WhitelistFile), listLogger),
		Patterns:  rules.NewFileList(cfg.ConfigPath(rules.WhitelistPatternsFile), listLogger),
		Logger:    log.WithComponent(logger, "blockstate"),
	})
	if err != nil {
		repos.close()
		return nil, fmt.Errorf("failed to create block state: %w", err)
	}
	repos.state = state

	repos.rules = rules.NewStore(rules.Options{
		Dir:          cfg.Paths.ConfigDir,
		KeywordsFile: cfg.Rules.KeywordsFile,
		PhrasesFile:  cfg.Rules.PhrasesFile,
		ChannelsFile: cfg.Rules.ChannelsFile,
		Logger:       listLogger,
	})

	if cfg.Rules.Watch {
		w, err := rules.NewWatcher(cfg.Paths.ConfigDir, repos.rules.Files(), listLogger)
		if err != nil {
			// hot reload is optional; rules are still read on startup
			log.Warn(map[string]any{"error": err, "dir": cfg.Paths.ConfigDir}, "Rule file watching disabled")
		} else {
			repos.changes = w
			repos.closers = append(repos.closers, w.Close)
		}
	}

	log.Info(map[string]any{
		"config_dir": cfg.Paths.ConfigDir,
		"backend":    cfg.State.Backend,
		"languages":  cfg.Rules.Languages,
		"hot_reload": repos.changes != nil,
	}, "Repositories initialized")

	return repos, nil
}

func (r *repositories) close() {
	for _, c := range r.closers {
		_ = c()
	}
}

// Run runs either one cleanup pass or the watch loop until ctx is
// cancelled. Both reconcile undo entries before touching the feed.
func (app *Application) Run(ctx context.Context, cleanup bool) error {
	if app.changes != nil {
		go app.changes.Run(ctx)
	}

	if cleanup {
		sum, err := app.loop.Cleanup(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrSessionUnavailable) || ctx.Err() == nil {
				return fmt.Errorf("cleanup pass failed: %w", err)
			}
			return nil
		}
		log.Info(map[string]any{
			"removed":  sum.Removed,
			"failed":   sum.Failed,
			"skipped":  sum.Skipped,
			"recorded": sum.Recorded,
		}, "Cleanup pass completed")
		return nil
	}

	log.Info(map[string]any{"cooldown": app.config.Watch.Cooldown}, "Watch loop started")
	if err := app.loop.Run(ctx); err != nil {
		return fmt.Errorf("watch loop failed: %w", err)
	}
	log.Info(nil, "Watch loop stopped")
	return nil
}

// Close releases the browser session and the repositories.
func (app *Application) Close() {
	if err := app.browser.Close(); err != nil {
		log.Warn(map[string]any{"error": err}, "Error closing browser session")
	}
	for _, c := range app.closers {
		if err := c(); err != nil {
			log.Warn(map[string]any{"error": err}, "Error closing repository")
		}
	}
}
