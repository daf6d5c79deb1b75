package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/franksops/vmshift/api"
	"github.com/franksops/vmshift/config"
	"github.com/franksops/vmshift/engine"
	"github.com/franksops/vmshift/logging"
	"github.com/franksops/vmshift/metrics"
	"github.com/franksops/vmshift/store"
	"github.com/franksops/vmshift/ui"
)

// JournalFile is the bbolt database inside the state directory.
const JournalFile = "journal.db"

// runtime is everything a vm subcommand needs, built from config and flags.
type runtime struct {
	cfg     *config.Config
	log     *slog.Logger
	client  api.Client
	metrics *metrics.Collector
	tracker *engine.JobTracker

	closers []func() error
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if stateDir != "" {
		cfg.StateDir = stateDir
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
	return cfg, nil
}

func newRuntime() (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Credentials(); err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: "stderr"})
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:     cfg,
		log:     logger,
		client:  api.NewHTTPClient(cfg.BaseURL, cfg.Username, cfg.APIToken, api.WithVerifyCerts(cfg.VerifyCerts), api.WithUserAgent("vmshift/"+Version)),
		closers: []func() error{closeLog},
	}

	if cfg.MetricsAddr != "" {
		rt.serveMetrics(cfg.MetricsAddr)
	}

	if cfg.StateDir != "" {
		if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
		journal, err := store.NewBoltStore(filepath.Join(cfg.StateDir, JournalFile))
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		rt.closers = append(rt.closers, journal.Close)
		rt.tracker = engine.NewJobTracker(journal, engine.DefaultCheckpointConfig)
	}

	return rt, nil
}

func (rt *runtime) serveMetrics(addr string) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rt.metrics = metrics.NewCollector(reg)

	srv := &http.Server{
		Addr:              addr,
		Handler:           metrics.Handler(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.log.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	rt.log.Info("serving metrics", "addr", addr)
	rt.closers = append(rt.closers, srv.Close)
}

// Close releases the journal, metrics server and log file.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i]()
	}
}

// options builds controller options from configuration.
func (rt *runtime) options() engine.Options {
	return engine.Options{
		MaxConcurrency:      rt.cfg.MaxConcurrency,
		CheckPeriod:         rt.cfg.CheckPeriod,
		CapacityRetryPeriod: rt.cfg.CapacityRetryPeriod,
		PollInterval:        rt.cfg.PollInterval,
		MaxWait:             rt.cfg.MaxWait,
		Logger:              rt.log,
		Metrics:             rt.metrics,
		Tracker:             rt.tracker,
	}
}

// orchestration runs one orchestrator, writing status blocks to out and
// snapshots to onProgress.
type orchestration func(ctx context.Context, out io.Writer, onProgress func(engine.View)) engine.Response

// run executes fn either against stdout or behind the dashboard.
func (rt *runtime) run(ctx context.Context, title string, fn orchestration) error {
	var resp engine.Response
	if tuiEnabled {
		resp = rt.runWithTUI(ctx, title, fn)
		if resp.Error {
			fmt.Fprintln(os.Stderr, resp.Summary)
		} else {
			fmt.Println("Summary\n" + resp.Summary)
		}
	} else {
		resp = fn(ctx, os.Stdout, nil)
	}

	if resp.Error {
		return ErrNothingSucceeded
	}
	return nil
}

func (rt *runtime) runWithTUI(ctx context.Context, title string, fn orchestration) engine.Response {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(ui.NewTUIModel(title), tea.WithAltScreen(), tea.WithContext(ctx))

	var resp engine.Response
	done := make(chan struct{})
	go func() {
		defer close(done)
		resp = fn(ctx, io.Discard, ui.ProgressFunc(p))
		p.Send(ui.DoneMsg{Response: resp})
	}()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		rt.log.Error("dashboard failed", "error", err)
	}
	// Quitting the dashboard early abandons the remaining work.
	cancel()
	<-done
	return resp
}
