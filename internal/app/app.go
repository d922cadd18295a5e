// Package app wires configuration, the Gmail client and the batch pipeline
// into the one-shot and scheduled run modes.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/altafino/invoice-fetcher/internal/batch"
	"github.com/altafino/invoice-fetcher/internal/config"
	"github.com/altafino/invoice-fetcher/internal/errorlog"
	"github.com/altafino/invoice-fetcher/internal/gmail"
	"github.com/altafino/invoice-fetcher/internal/ledger"
	"github.com/altafino/invoice-fetcher/internal/lot"
	"github.com/altafino/invoice-fetcher/internal/query"
	"github.com/altafino/invoice-fetcher/internal/scheduler"
	"github.com/altafino/invoice-fetcher/internal/types"
)

const (
	processedFile = "processed.jsonl"
	anomalyFile   = "anomalies.jsonl"
	dateLayout    = "2006-01-02"
)

// RunFlags selects which side effects a run produces.
type RunFlags struct {
	Download bool
	Zip      bool
	Send     bool
}

// App represents the main application
type App struct {
	logger  *slog.Logger
	cfg     *types.Config
	cfgPath string
	flags   RunFlags

	mu     sync.Mutex
	client *gmail.Client

	sched   *scheduler.Scheduler
	watcher *config.Watcher
	wg      sync.WaitGroup
}

// New creates a new application instance
func New(cfg *types.Config, cfgPath string, logger *slog.Logger, flags RunFlags) *App {
	return &App{
		logger:  logger,
		cfg:     cfg,
		cfgPath: cfgPath,
		flags:   flags,
	}
}

// RunOnce executes a single batch over [dateFrom, dateTo], both YYYY-MM-DD.
func (a *App) RunOnce(ctx context.Context, dateFrom, dateTo string) error {
	return a.runRange(ctx, dateFrom, dateTo)
}

// RunRange implements scheduler.Runner.
func (a *App) RunRange(dateFrom, dateTo string) error {
	return a.runRange(context.Background(), dateFrom, dateTo)
}

func (a *App) runRange(ctx context.Context, dateFrom, dateTo string) error {
	df, err := time.Parse(dateLayout, dateFrom)
	if err != nil {
		return fmt.Errorf("invalid from date %q: %w", dateFrom, err)
	}
	dt, err := time.Parse(dateLayout, dateTo)
	if err != nil {
		return fmt.Errorf("invalid to date %q: %w", dateTo, err)
	}

	cfg := a.currentConfig()
	q := query.Build(cfg.Search.Keywords, df, dt, cfg.Search.Label, cfg.Output.Extensions)
	a.logger.Info("gmail query", "query", q)

	client, err := a.gmailClient(ctx, cfg)
	if err != nil {
		return err
	}

	var lt *lot.Lot
	lotDir := ""
	if a.flags.Download || a.flags.Zip || a.flags.Send {
		lt, err = lot.Open(cfg.Output.BaseDir, dateFrom, dateTo, a.logger)
		if err != nil {
			return err
		}
		lotDir = lt.Dir()
		a.logger.Info("lot directory", "path", lotDir)
	}

	led, err := ledger.Open(filepath.Join(cfg.Output.StateDir, processedFile), lotDir, a.logger)
	if err != nil {
		return err
	}
	anomalies := errorlog.NewFileLogger(filepath.Join(cfg.Output.StateDir, anomalyFile), a.logger)

	asm := batch.New(client, client, led, lt, anomalies, a.logger, batch.Options{
		Query:         q,
		PageSize:      cfg.Search.MaxResults,
		Extensions:    cfg.Output.Extensions,
		DateFrom:      dateFrom,
		DateTo:        dateTo,
		Download:      a.flags.Download,
		Zip:           a.flags.Zip,
		Send:          a.flags.Send,
		ForwardTo:     cfg.Forward.To,
		SubjectPrefix: cfg.Forward.SubjectPrefix,
	})

	_, err = asm.Run(ctx)
	return err
}

// Start runs the scheduled mode: periodic sliding-window fetches plus config
// reload on file changes. It returns immediately; Stop shuts everything down.
func (a *App) Start() error {
	watcher, err := config.StartWatcher(a.cfgPath, a.logger)
	if err != nil {
		return fmt.Errorf("failed to start config watcher: %w", err)
	}
	a.watcher = watcher

	a.sched = scheduler.New(a.logger)
	if err := a.sched.UpdateJob(a.currentConfig(), a); err != nil {
		return err
	}
	a.sched.Start()

	a.wg.Add(1)
	go a.watchConfig()

	return nil
}

// Stop gracefully stops the scheduled mode.
func (a *App) Stop() {
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			a.logger.Error("failed to stop config watcher", "error", err)
		}
	}
	if a.sched != nil {
		a.sched.Stop()
	}
	a.wg.Wait()
}

func (a *App) watchConfig() {
	defer a.wg.Done()

	for range a.watcher.ReloadChan() {
		cfg, err := config.Load(a.cfgPath)
		if err != nil {
			a.logger.Error("failed to reload config", "error", err)
			continue
		}

		a.mu.Lock()
		a.cfg = cfg
		a.mu.Unlock()

		if err := a.sched.UpdateJob(cfg, a); err != nil {
			a.logger.Error("failed to update scheduled job", "error", err)
		}
	}
}

func (a *App) currentConfig() *types.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

func (a *App) gmailClient(ctx context.Context, cfg *types.Config) (*gmail.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client == nil {
		client, err := gmail.NewClient(ctx, cfg.Gmail.CredentialsFile, cfg.Gmail.TokenFile, a.logger)
		if err != nil {
			return nil, err
		}
		a.client = client
	}
	return a.client, nil
}
