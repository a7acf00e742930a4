// Package transport defines the push-messaging boundary.
//
// A Pusher delivers one chunk of pre-rendered message bodies in a single call.
// Implementations live in subpackages (line, telegram, natspub); the core only
// sees this interface.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	logx "slotwatch/pkg/logx"
)

// ErrMissingCredential is returned by Ready when the transport cannot
// authenticate.
var ErrMissingCredential = errors.New("notification credential is not set")

// Result is the transport's answer to one Push call.
type Result struct {
	StatusCode int
	Body       string
}

type Pusher interface {
	// Name identifies the transport in logs ("line", "telegram", ...).
	Name() string
	// MaxItems is the per-call item ceiling of the transport.
	MaxItems() int
	// Ready reports whether the transport is usable (credentials present).
	Ready() error
	// Push sends texts in one call. A non-nil error means the chunk was not
	// (fully) delivered; Result still carries whatever the remote returned.
	Push(ctx context.Context, texts []string) (Result, error)
}

// HTTPError is a non-2xx answer from an HTTP transport.
type HTTPError struct {
	Transport  string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: http %d: %s", e.Transport, e.StatusCode, truncate(strings.TrimSpace(e.Body), 300))
}

// LogPusher writes messages to the logger instead of sending them.
// It backs dry runs and the "log" transport.
type LogPusher struct {
	Log   logx.Logger
	Items int
}

func (p *LogPusher) Name() string { return "log" }

func (p *LogPusher) MaxItems() int {
	if p.Items <= 0 {
		return 5
	}
	return p.Items
}

func (p *LogPusher) Ready() error { return nil }

func (p *LogPusher) Push(ctx context.Context, texts []string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	for i, t := range texts {
		p.Log.Info("notification", logx.Int("item", i), logx.String("text", t))
	}
	return Result{StatusCode: 200}, nil
}

func truncate(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	if maxN < 10 {
		return s[:maxN]
	}
	return s[:maxN-3] + "..."
}
