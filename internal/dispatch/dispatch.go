// Package dispatch delivers packed message bodies through a transport,
// respecting the transport's per-call item ceiling.
//
// Delivery is best-effort: every chunk gets exactly one call, a failed chunk
// is reported and never retried, and later chunks are still attempted.
package dispatch

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	kit "slotwatch/internal/transport"
	logx "slotwatch/pkg/logx"
)

var ErrNoTransport = errors.New("dispatch: no transport configured")

// Config controls chunk pacing.
type Config struct {
	// MaxItems caps messages per call. 0 uses the transport's own ceiling;
	// a larger value than the transport's ceiling is clamped down.
	MaxItems int
	// RatePerSec limits chunk calls per second. 0 disables pacing.
	RatePerSec float64
	// CallTimeout bounds a single transport call. Default: 20s.
	CallTimeout time.Duration
}

// Outcome reports one chunk.
type Outcome struct {
	Chunk      int // 0-based
	Messages   int
	StatusCode int
	Body       string
	Err        error
}

func (o Outcome) OK() bool { return o.Err == nil }

// Dispatcher sends chunks sequentially.
type Dispatcher struct {
	pusher  kit.Pusher
	log     logx.Logger
	cfg     Config
	limiter *rate.Limiter
}

func New(cfg Config, pusher kit.Pusher, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 20 * time.Second
	}
	d := &Dispatcher{pusher: pusher, log: log, cfg: cfg}
	if cfg.RatePerSec > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return d
}

// MaxItems is the effective per-call ceiling.
func (d *Dispatcher) MaxItems() int {
	n := d.cfg.MaxItems
	if d.pusher != nil {
		if lim := d.pusher.MaxItems(); lim > 0 && (n <= 0 || n > lim) {
			n = lim
		}
	}
	if n <= 0 {
		n = 1
	}
	return n
}

// Ready reports whether the transport can send.
func (d *Dispatcher) Ready() error {
	if d.pusher == nil {
		return ErrNoTransport
	}
	return d.pusher.Ready()
}

// Chunk groups messages into consecutive slices of at most n items.
func Chunk(messages []string, n int) [][]string {
	if n <= 0 {
		n = 1
	}
	out := make([][]string, 0, (len(messages)+n-1)/n)
	for i := 0; i < len(messages); i += n {
		end := i + n
		if end > len(messages) {
			end = len(messages)
		}
		out = append(out, messages[i:end])
	}
	return out
}

// Dispatch sends messages in order, one transport call per chunk, and
// returns one Outcome per chunk. No messages means no calls.
func (d *Dispatcher) Dispatch(ctx context.Context, messages []string) []Outcome {
	if len(messages) == 0 {
		return nil
	}
	chunks := Chunk(messages, d.MaxItems())
	out := make([]Outcome, 0, len(chunks))

	for i, chunk := range chunks {
		o := Outcome{Chunk: i, Messages: len(chunk)}
		if d.pusher == nil {
			o.Err = ErrNoTransport
			out = append(out, o)
			continue
		}

		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				o.Err = err
				out = append(out, o)
				continue
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
		start := time.Now()
		res, err := d.pusher.Push(callCtx, chunk)
		cancel()

		o.StatusCode, o.Body, o.Err = res.StatusCode, res.Body, err
		fields := []logx.Field{
			logx.String("transport", d.pusher.Name()),
			logx.Int("chunk", i+1),
			logx.Int("chunks", len(chunks)),
			logx.Int("messages", len(chunk)),
			logx.Int("status", res.StatusCode),
			logx.String("body", res.Body),
			logx.Duration("took", time.Since(start)),
		}
		if err != nil {
			d.log.Warn("delivery failed", append(fields, logx.Err(err))...)
		} else {
			d.log.Info("delivered", fields...)
		}
		out = append(out, o)
	}
	return out
}

// Failed counts outcomes with an error.
func Failed(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if !o.OK() {
			n++
		}
	}
	return n
}
