package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	_ "time/tzdata" // timezone names must resolve on minimal hosts

	"github.com/robfig/cron/v3"

	logx "slotwatch/pkg/logx"
)

// Config drives a Runner.
type Config struct {
	Spec       string
	Timezone   string // IANA name; empty means local time
	RunOnStart bool
	// RunTimeout bounds a single run. 0 means no limit.
	RunTimeout time.Duration
}

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

var ErrNotStarted = errors.New("schedule: runner not started")

type Runner struct {
	job Job
	log logx.Logger

	mu      sync.Mutex
	cfg     Config
	spec    Spec
	loc     *time.Location
	c       *cron.Cron
	entry   cron.EntryID
	baseCtx context.Context
	cancel  context.CancelFunc

	running atomic.Bool
	wg      sync.WaitGroup

	runs    atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64
}

func NewRunner(cfg Config, job Job, log logx.Logger) (*Runner, error) {
	if job == nil {
		return nil, errors.New("schedule: job required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	spec, loc, err := resolve(cfg)
	if err != nil {
		return nil, err
	}
	return &Runner{job: job, log: log, cfg: cfg, spec: spec, loc: loc}, nil
}

func resolve(cfg Config) (Spec, *time.Location, error) {
	spec, err := ParseSchedule(cfg.Spec)
	if err != nil {
		return Spec{}, nil, err
	}
	loc := time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return Spec{}, nil, fmt.Errorf("timezone %q: %w", tz, err)
		}
		loc = l
	}
	return spec, loc, nil
}

// Start begins triggering. Runs get a context derived from ctx, so
// cancelling ctx interrupts the run in flight.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c != nil {
		return
	}
	r.baseCtx, r.cancel = context.WithCancel(ctx)
	r.startCronLocked()
	r.log.Info("scheduler started",
		logx.String("schedule", r.spec.String()),
		logx.String("tz", r.loc.String()),
		logx.Time("next", r.nextLocked()),
	)
	if r.cfg.RunOnStart {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.fire("start")
		}()
	}
}

func (r *Runner) startCronLocked() {
	r.c = cron.New(cron.WithParser(parser), cron.WithLocation(r.loc))
	r.entry = r.c.Schedule(r.spec.Schedule(), cron.FuncJob(func() {
		r.wg.Add(1)
		defer r.wg.Done()
		r.fire("schedule")
	}))
	r.c.Start()
}

// Apply swaps schedule and timezone. An invalid config is rejected and the
// current schedule stays in effect.
func (r *Runner) Apply(cfg Config) error {
	spec, loc, err := resolve(cfg)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := spec.String() != r.spec.String() || loc.String() != r.loc.String()
	r.cfg, r.spec, r.loc = cfg, spec, loc
	if r.c == nil || !changed {
		return nil
	}
	// Do not wait for a run in flight here: it needs r.mu to finish, and
	// the running flag already keeps the new cron from overlapping it.
	r.c.Stop()
	r.startCronLocked()
	r.log.Info("scheduler restarted",
		logx.String("schedule", spec.String()),
		logx.String("tz", loc.String()),
		logx.Time("next", r.nextLocked()),
	)
	return nil
}

// Trigger runs the job now in the background. It reports false when a run
// is already in flight or the runner is not started.
func (r *Runner) Trigger() bool {
	r.mu.Lock()
	if r.c == nil || r.running.Load() {
		r.mu.Unlock()
		return false
	}
	r.wg.Add(1)
	r.mu.Unlock()
	go func() {
		defer r.wg.Done()
		r.fire("manual")
	}()
	return true
}

func (r *Runner) fire(reason string) {
	if !r.running.CompareAndSwap(false, true) {
		r.skipped.Add(1)
		r.log.Warn("previous run still in flight; tick skipped", logx.String("reason", reason))
		return
	}
	defer r.running.Store(false)

	r.mu.Lock()
	ctx, timeout := r.baseCtx, r.cfg.RunTimeout
	r.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	n := r.runs.Add(1)
	err := r.job(ctx)
	took := time.Since(start)
	if err != nil {
		r.failed.Add(1)
		r.log.Error("run failed", logx.Int64("run", n), logx.String("reason", reason),
			logx.Duration("took", took), logx.Err(err))
	} else {
		r.log.Debug("run finished", logx.Int64("run", n), logx.String("reason", reason), logx.Duration("took", took))
	}
	if next := r.Next(); !next.IsZero() {
		r.log.Debug("next run", logx.Time("at", next))
	}
}

// Next is the next scheduled time, zero when stopped.
func (r *Runner) Next() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextLocked()
}

func (r *Runner) nextLocked() time.Time {
	if r.c == nil {
		return time.Time{}
	}
	return r.spec.Schedule().Next(time.Now().In(r.loc))
}

// Stats is a snapshot of run counters.
type Stats struct {
	Runs    int64
	Skipped int64
	Failed  int64
	Running bool
}

func (r *Runner) Stats() Stats {
	return Stats{
		Runs:    r.runs.Load(),
		Skipped: r.skipped.Load(),
		Failed:  r.failed.Load(),
		Running: r.running.Load(),
	}
}

// Stop halts triggering and waits for the run in flight, bounded by ctx.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	c := r.c
	r.c = nil
	cancel := r.cancel
	r.mu.Unlock()
	if c == nil {
		return ErrNotStarted
	}
	<-c.Stop().Done()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		// Give up waiting and interrupt the run.
		cancel()
		<-done
	}
	cancel()
	st := r.Stats()
	r.log.Info("scheduler stopped", logx.Int64("runs", st.Runs), logx.Int64("skipped", st.Skipped), logx.Int64("failed", st.Failed))
	return nil
}

// Run starts the runner, reports readiness to systemd, and blocks until ctx
// is cancelled. It then stops within grace.
func (r *Runner) Run(ctx context.Context, grace time.Duration) error {
	// Runs keep their own context so a signal lets the run in flight finish
	// within grace instead of dropping it mid-dispatch.
	r.Start(context.WithoutCancel(ctx))
	notifyReady(r.log)
	go watchdog(ctx, r.log)

	<-ctx.Done()
	notifyStopping(r.log)
	sctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return r.Stop(sctx)
}
