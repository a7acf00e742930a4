// Package supervisor runs the long-lived loops of watch mode under one
// context: panics become errors, the first error can stop everything, and
// loops that may fail transiently are restarted with backoff.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"time"

	logx "slotwatch/pkg/logx"
)

// stableRun is how long a restarted loop must survive before its backoff
// starts over from the minimum.
const stableRun = 30 * time.Second

type Supervisor struct {
	ctx         context.Context
	cancel      context.CancelFunc
	log         logx.Logger
	cancelOnErr bool

	mu       sync.Mutex
	firstErr error

	wg   sync.WaitGroup
	done chan struct{}
	once sync.Once
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option { return func(s *Supervisor) { s.log = log } }

// WithCancelOnError cancels the shared context on the first error.
func WithCancelOnError(on bool) Option { return func(s *Supervisor) { s.cancelOnErr = on } }

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{ctx: ctx, cancel: cancel, done: make(chan struct{})}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Context is cancelled by Stop, by the parent, or by the first error when
// WithCancelOnError is set.
func (s *Supervisor) Context() context.Context { return s.ctx }

// Err returns the first error reported by any goroutine.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstErr
}

func (s *Supervisor) fail(err error) {
	s.mu.Lock()
	if s.firstErr == nil {
		s.firstErr = err
	}
	s.mu.Unlock()
	if s.cancelOnErr {
		s.cancel()
	}
}

// Go runs fn in its own goroutine. context.Canceled is a clean exit.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Debug("goroutine started", logx.String("name", name))
		err := s.call(name, fn)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.fail(fmt.Errorf("%s: %w", name, err))
		}
		s.log.Debug("goroutine stopped", logx.String("name", name))
	}()
}

// Go0 is Go for loops that cannot fail.
func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	s.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// GoRestart keeps fn running until it returns nil or the context ends. After
// an error or panic it waits between minWait and maxWait, doubling each time.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, minWait, maxWait time.Duration) {
	if minWait <= 0 {
		minWait = 250 * time.Millisecond
	}
	maxWait = max(maxWait, minWait)
	s.Go0(name, func(ctx context.Context) {
		wait := minWait
		for restarts := 1; ; restarts++ {
			began := time.Now()
			err := s.call(name, fn)
			if err == nil || ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			if time.Since(began) >= stableRun {
				wait = minWait
			}
			d := wait + rand.N(wait/5+1)
			s.log.Warn("goroutine restarting", logx.String("name", name),
				logx.Int("restarts", restarts), logx.Duration("backoff", d), logx.Err(err))
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			wait = min(wait*2, maxWait)
		}
	})
}

// call runs fn, turning a panic into an error.
func (s *Supervisor) call(name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("goroutine panicked", logx.String("name", name),
				logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic in %s: %v", name, r)
		}
	}()
	return fn(s.ctx)
}

// Stop cancels the context and waits, bounded by ctx.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

// Wait blocks until every goroutine has returned or ctx ends. It returns the
// first goroutine error, or ctx's error on timeout.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.once.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.done)
		}()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return s.Err()
	}
}
