// Package natspub publishes notification chunks on a NATS subject so other
// services (bridges, archivers) can fan them out.
package natspub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	kit "slotwatch/internal/transport"
)

const (
	DefaultSubject = "slotwatch.notifications"
	MaxItems       = 5
)

type Config struct {
	URL     string
	Subject string
	Timeout time.Duration // connect + flush timeout. Default: 10s.
}

// Envelope is the JSON payload of one published chunk.
type Envelope struct {
	Texts  []string  `json:"texts"`
	SentAt time.Time `json:"sent_at"`
}

// Pusher connects lazily on the first Push and keeps the connection for
// later calls. It is not safe for concurrent Push calls.
type Pusher struct {
	cfg Config
	nc  *nats.Conn
}

func New(cfg Config) *Pusher {
	cfg.URL = strings.TrimSpace(cfg.URL)
	if strings.TrimSpace(cfg.Subject) == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Pusher{cfg: cfg}
}

func (p *Pusher) Name() string  { return "nats" }
func (p *Pusher) MaxItems() int { return MaxItems }

func (p *Pusher) Ready() error {
	if p.cfg.URL == "" {
		return fmt.Errorf("nats: url is not set (set NATS_URL): %w", kit.ErrMissingCredential)
	}
	if strings.ContainsAny(p.cfg.Subject, " \t\r\n") {
		return fmt.Errorf("nats: invalid subject %q", p.cfg.Subject)
	}
	return nil
}

func (p *Pusher) connect() (*nats.Conn, error) {
	if p.nc != nil && !p.nc.IsClosed() {
		return p.nc, nil
	}
	nc, err := nats.Connect(p.cfg.URL,
		nats.Name("slotwatch"),
		nats.Timeout(p.cfg.Timeout),
	)
	if err != nil {
		return nil, err
	}
	p.nc = nc
	return nc, nil
}

func (p *Pusher) Push(ctx context.Context, texts []string) (kit.Result, error) {
	if err := p.Ready(); err != nil {
		return kit.Result{}, err
	}
	data, err := Encode(texts, time.Now())
	if err != nil {
		return kit.Result{}, err
	}
	nc, err := p.connect()
	if err != nil {
		return kit.Result{}, fmt.Errorf("nats: connect: %w", err)
	}
	if err := nc.Publish(p.cfg.Subject, data); err != nil {
		return kit.Result{}, fmt.Errorf("nats: publish: %w", err)
	}
	fctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	if err := nc.FlushWithContext(fctx); err != nil {
		return kit.Result{}, fmt.Errorf("nats: flush: %w", err)
	}
	return kit.Result{Body: p.cfg.Subject}, nil
}

// Close drains the connection, if any.
func (p *Pusher) Close() error {
	if p.nc == nil {
		return nil
	}
	err := p.nc.Drain()
	p.nc = nil
	return err
}

// Encode renders the published payload.
func Encode(texts []string, at time.Time) ([]byte, error) {
	return json.Marshal(Envelope{Texts: texts, SentAt: at.UTC()})
}
