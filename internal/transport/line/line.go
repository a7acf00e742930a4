// Package line pushes messages through the LINE Messaging API broadcast
// endpoint.
package line

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	kit "slotwatch/internal/transport"
)

const (
	DefaultEndpoint = "https://api.line.me/v2/bot/message/broadcast"
	// MaxMessages is the API's per-request message ceiling.
	MaxMessages = 5
)

type Config struct {
	// Token is the channel access token. Never logged.
	Token    string
	Endpoint string
	Timeout  time.Duration // Default: 20s.
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type broadcastRequest struct {
	Messages []textMessage `json:"messages"`
}

type Pusher struct {
	cfg    Config
	client *resty.Client
}

func New(cfg Config) *Pusher {
	cfg.Token = strings.TrimSpace(cfg.Token)
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	c := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.Token != "" {
		c.SetAuthToken(cfg.Token)
	}
	return &Pusher{cfg: cfg, client: c}
}

func (p *Pusher) Name() string  { return "line" }
func (p *Pusher) MaxItems() int { return MaxMessages }

func (p *Pusher) Ready() error {
	if p.cfg.Token == "" {
		return fmt.Errorf("line: %w (set LINE_TOKEN to the channel access token)", kit.ErrMissingCredential)
	}
	return nil
}

func (p *Pusher) Push(ctx context.Context, texts []string) (kit.Result, error) {
	if err := p.Ready(); err != nil {
		return kit.Result{}, err
	}
	if len(texts) > MaxMessages {
		return kit.Result{}, fmt.Errorf("line: %d messages exceed the per-request limit of %d", len(texts), MaxMessages)
	}

	req := broadcastRequest{Messages: make([]textMessage, 0, len(texts))}
	for _, t := range texts {
		req.Messages = append(req.Messages, textMessage{Type: "text", Text: t})
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(req).
		Post(p.cfg.Endpoint)
	if err != nil {
		return kit.Result{}, fmt.Errorf("line: broadcast: %w", err)
	}

	res := kit.Result{StatusCode: resp.StatusCode(), Body: resp.String()}
	if !resp.IsSuccess() {
		return res, &kit.HTTPError{Transport: "line", StatusCode: res.StatusCode, Body: res.Body}
	}
	return res, nil
}
