// Package app wires configuration into the watcher's components and runs
// them in one-shot or watch mode.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"slotwatch/internal/config"
	"slotwatch/internal/dispatch"
	"slotwatch/internal/fetch"
	"slotwatch/internal/pipeline"
	"slotwatch/internal/runtime/supervisor"
	"slotwatch/internal/schedule"
	"slotwatch/internal/slot"
	"slotwatch/internal/storage"
	kit "slotwatch/internal/transport"
	logx "slotwatch/pkg/logx"
)

// stopGrace bounds how long watch mode waits for a run in flight on shutdown.
const stopGrace = 30 * time.Second

type Options struct {
	// ConfigPath is optional; without it everything comes from the environment.
	ConfigPath string
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
	DryRun bool
	// LogLevel overrides logging.level when set.
	LogLevel string
}

type App struct {
	opts Options
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	// mu is held for reading during a run and for writing while components
	// are swapped after a config reload.
	mu   sync.RWMutex
	cfg  *config.Config
	comp *components
}

type components struct {
	extractor *slot.Extractor
	fetcher   *fetch.Fetcher
	store     storage.Store
	pusher    kit.Pusher
	pipe      *pipeline.Pipeline
}

func (c *components) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if cl, ok := c.pusher.(io.Closer); ok {
		errs = append(errs, cl.Close())
	}
	if c.store != nil {
		errs = append(errs, c.store.Close())
	}
	return errors.Join(errs...)
}

func New(opts Options) (*App, error) {
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	cfgm := config.NewManager(opts.ConfigPath, opts.Getenv)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	a := &App{opts: opts, cfgm: cfgm, cfg: cfg}
	a.logs, a.log = logx.New(a.logConfig(cfg))
	a.log = a.log.Named("app")

	comp, err := a.build(cfg)
	if err != nil {
		_ = a.logs.Close()
		return nil, err
	}
	a.comp = comp
	return a, nil
}

func (a *App) logConfig(cfg *config.Config) logx.Config {
	lc := mapLogConfig(cfg)
	if lvl := strings.TrimSpace(a.opts.LogLevel); lvl != "" {
		lc.Level = lvl
	}
	return lc
}

func (a *App) Logger() logx.Logger { return a.log }

func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

func (a *App) build(cfg *config.Config) (*components, error) {
	fc, err := mapFetchConfig(cfg)
	if err != nil {
		return nil, err
	}
	dc, err := mapDispatchConfig(cfg)
	if err != nil {
		return nil, err
	}
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	pusher, err := newPusher(cfg, a.log)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, a.log.Named("storage"))
	if err != nil {
		return nil, fmt.Errorf("snapshot store: %w", err)
	}

	c := &components{
		extractor: slot.NewExtractor(mapExtractOptions(cfg)),
		fetcher:   fetch.New(fc),
		store:     store,
		pusher:    pusher,
	}
	d := dispatch.New(dc, pusher, a.log.Named("dispatch").With(logx.String("transport", pusher.Name())))
	c.pipe = pipeline.New(mapPipelineConfig(cfg, a.opts.DryRun), c.fetcher, c.extractor, store, d,
		a.log.Named("pipeline"))
	a.log.Debug("components built",
		logx.String("snapshot.driver", sc.Driver),
		logx.String("snapshot.path", sc.Path),
		logx.String("transport", pusher.Name()),
		logx.Bool("dry_run", a.opts.DryRun),
	)
	return c, nil
}

// RunOnce executes a single watch cycle.
func (a *App) RunOnce(ctx context.Context) (pipeline.Report, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.comp.pipe.Run(ctx)
}

// Extract reads the slot set from a local file, or from the live page when
// file is empty.
func (a *App) Extract(ctx context.Context, file string) (slot.Result, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var body []byte
	if strings.TrimSpace(file) != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return slot.Result{}, err
		}
		body = b
	} else {
		doc, err := a.comp.fetcher.Fetch(ctx, a.cfg.Source.URL)
		if err != nil {
			return slot.Result{}, err
		}
		body = doc.Body
	}
	return a.comp.extractor.Extract(body), nil
}

// ClosedMarker is the glyph the extractor treats as "closed".
func (a *App) ClosedMarker() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.comp.extractor.ClosedMarker()
}

// History returns up to limit recorded runs, newest first.
func (a *App) History(ctx context.Context, limit int) ([]storage.RunRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	lister, ok := a.comp.store.(storage.RunLister)
	if !ok {
		return nil, fmt.Errorf("snapshot driver %q keeps no run history", a.cfg.Snapshot.Driver)
	}
	return lister.Runs(ctx, limit)
}

// Watch runs the scheduler until ctx is cancelled, hot-reloading the config
// file. It returns the first fatal error, if any.
func (a *App) Watch(ctx context.Context) error {
	cfg := a.Config()
	sc, err := mapScheduleConfig(cfg)
	if err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	runner, err := schedule.NewRunner(sc, a.scheduledRun, a.log.Named("scheduler"))
	if err != nil {
		return fmt.Errorf("schedule: %w", err)
	}

	sup := supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.Named("config"))
	a.cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		if _, err := mapFetchConfig(c); err != nil {
			return err
		}
		if _, err := mapDispatchConfig(c); err != nil {
			return err
		}
		if _, err := mapStorageConfig(c); err != nil {
			return err
		}
		_, err := newPusher(c, logx.Nop())
		return err
	})

	sub := a.cfgm.Subscribe(8)
	sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub, runner)
	})
	sup.GoRestart("config.watch", a.cfgm.Watch, 250*time.Millisecond, 30*time.Second)
	sup.Go("scheduler", func(c context.Context) error { return runner.Run(c, stopGrace) })

	a.log.Info("watching",
		logx.String("url", cfg.Source.URL),
		logx.String("schedule", cfg.Schedule.Spec),
		logx.String("config", a.cfgm.Path()),
	)

	<-sup.Context().Done()
	reason := StopSignal
	if sup.Err() != nil {
		reason = StopFatalError
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	wctx, cancel := context.WithTimeout(context.Background(), stopGrace+5*time.Second)
	defer cancel()
	if err := sup.Wait(wctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	a.log.Info("stopped")
	return nil
}

func (a *App) scheduledRun(ctx context.Context) error {
	rep, err := a.RunOnce(ctx)
	if err != nil {
		return err
	}
	a.log.Info("run finished",
		logx.Bool("first_run", rep.FirstRun),
		logx.Int("added", len(rep.Added)),
		logx.Int("notified", len(rep.Notifiable)),
		logx.Int("failed_chunks", rep.Failed()),
	)
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config, runner *schedule.Runner) {
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}
			a.applyConfig(newCfg, runner)
		}
	}
}

func (a *App) applyConfig(newCfg *config.Config, runner *schedule.Runner) {
	oldCfg := a.Config()
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(a.logConfig(newCfg))

	if config.RequiresRebuild(oldCfg, newCfg) {
		comp, err := a.build(newCfg)
		if err != nil {
			a.log.Warn("config reload failed; keeping previous components", logx.Err(err))
			return
		}
		a.mu.Lock()
		old := a.comp
		a.comp = comp
		a.cfg = newCfg
		a.mu.Unlock()
		if err := old.Close(); err != nil {
			a.log.Warn("closing previous components", logx.Err(err))
		}
	} else {
		a.mu.Lock()
		a.cfg = newCfg
		a.mu.Unlock()
	}

	if sc, err := mapScheduleConfig(newCfg); err != nil {
		a.log.Warn("schedule not applied; keeping previous", logx.Err(err))
	} else if err := runner.Apply(sc); err != nil {
		a.log.Warn("schedule not applied; keeping previous", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Close releases the store, transport and log sinks.
func (a *App) Close() error {
	a.mu.Lock()
	comp := a.comp
	a.comp = nil
	a.mu.Unlock()
	err := comp.Close()
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}
