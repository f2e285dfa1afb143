package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/five82/immersive/host"
	"github.com/five82/immersive/internal/config"
	"github.com/five82/immersive/internal/prefs"
	"github.com/five82/immersive/internal/tasks"
	"github.com/five82/immersive/internal/ui"
	"github.com/five82/immersive/internal/watch"
	"github.com/five82/immersive/observability"
	"github.com/five82/immersive/state"
)

// Options configure the tasks application. Non-empty fields override the
// config file.
type Options struct {
	ConfigPath   string
	PrefsPath    string // empty uses ~/.config/immersive/prefs.toml
	TasksFile    string
	LogFile      string
	MetricsAddr  string
	AutosaveSecs int
}

// Run boots the tasks TUI until the user quits or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := applyOverrides(&cfg, opts); err != nil {
		return err
	}

	userPrefs, _ := prefs.Load(opts.PrefsPath)

	logger, closeLog, err := openLogger(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer closeLog()

	initial, err := tasks.Load(cfg.TasksFile)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	logger.Info("starting", slog.String("tasks_file", cfg.TasksFile), slog.Int("tasks", len(initial.Tasks)))

	reg := prometheus.NewRegistry()
	sched := host.New(host.WithLogger(logger))
	defer sched.Close()

	stateOpts := append(cfg.StateOptions(),
		state.WithScheduler(sched),
		state.WithObserver(observability.NewMetricsObserver(reg)),
		state.WithLogger(logger),
	)
	taskCtx := tasks.NewContext(initial, stateOpts...)
	mounted, provider := taskCtx.Provide(ctx)
	defer provider.Close()

	st := newStore(cfg.TasksFile, provider, logger)

	var metricsLn net.Listener
	if cfg.MetricsAddr != "" {
		metricsLn, err = net.Listen("tcp", cfg.MetricsAddr)
		if err != nil {
			return fmt.Errorf("listen metrics: %w", err)
		}
	}
	closeMetrics := func() {
		if metricsLn != nil {
			_ = metricsLn.Close()
		}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.TasksFile), 0o755); err != nil {
		closeMetrics()
		return fmt.Errorf("create tasks dir: %w", err)
	}
	watcher, err := watch.New(cfg.TasksFile, st.Reload, watch.Options{Logger: logger})
	if err != nil {
		closeMetrics()
		return fmt.Errorf("watch tasks: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()

	g.Go(func() error { return watcher.Run(runCtx) })
	if metricsLn != nil {
		g.Go(func() error { return serveMetrics(runCtx, metricsLn, reg, logger) })
	}
	if cfg.AutosaveSecs > 0 {
		interval := time.Duration(cfg.AutosaveSecs) * time.Second
		g.Go(func() error { return runAutosave(runCtx, st, interval, logger) })
	}
	g.Go(func() error {
		defer stop()
		return ui.Run(runCtx, ui.Options{
			Context:   mounted,
			Tasks:     taskCtx,
			Save:      st.Save,
			LogPath:   cfg.LogFile,
			Prefs:     userPrefs,
			PrefsPath: opts.PrefsPath,
		})
	})

	err = g.Wait()
	logger.Info("stopped", slog.Uint64("version", provider.Version()))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func applyOverrides(cfg *config.Config, opts Options) error {
	for _, o := range []struct {
		value string
		dst   *string
	}{
		{opts.TasksFile, &cfg.TasksFile},
		{opts.LogFile, &cfg.LogFile},
	} {
		if o.value == "" {
			continue
		}
		expanded, err := config.ExpandPath(o.value)
		if err != nil {
			return fmt.Errorf("resolve %q: %w", o.value, err)
		}
		*o.dst = expanded
	}
	if opts.MetricsAddr != "" {
		cfg.MetricsAddr = opts.MetricsAddr
	}
	if opts.AutosaveSecs > 0 {
		cfg.AutosaveSecs = opts.AutosaveSecs
	}
	return nil
}
