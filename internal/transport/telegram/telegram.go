// Package telegram pushes messages to a Telegram chat through the Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "slotwatch/internal/transport"
)

// MaxItems mirrors the LINE ceiling so chunking stays identical across transports.
const MaxItems = 5

type Config struct {
	Token    string
	ChatID   int64
	ThreadID int // forum topic (0 if none)
	// APIURL overrides the Bot API base URL (tests, self-hosted API servers).
	APIURL  string
	Timeout time.Duration // Default: 20s.
}

type Pusher struct {
	cfg Config
	bot *tele.Bot
	err error // construction error, surfaced by Ready
}

func New(cfg Config) *Pusher {
	cfg.Token = strings.TrimSpace(cfg.Token)
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	p := &Pusher{cfg: cfg}
	if cfg.Token == "" {
		return p
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     strings.TrimSpace(cfg.APIURL),
		Token:   cfg.Token,
		Client:  &http.Client{Timeout: cfg.Timeout},
		Offline: true, // send-only; never calls getMe or polls
	})
	if err != nil {
		p.err = err
		return p
	}
	p.bot = b
	return p
}

func (p *Pusher) Name() string  { return "telegram" }
func (p *Pusher) MaxItems() int { return MaxItems }

func (p *Pusher) Ready() error {
	if p.cfg.Token == "" {
		return fmt.Errorf("telegram: %w (set TELEGRAM_TOKEN)", kit.ErrMissingCredential)
	}
	if p.cfg.ChatID == 0 {
		return errors.New("telegram: chat_id is not set")
	}
	if p.err != nil {
		return fmt.Errorf("telegram: %w", p.err)
	}
	return nil
}

// Push sends every text as its own message, splitting any text over the
// Bot API's length limit. It stops at the first failed send.
func (p *Pusher) Push(ctx context.Context, texts []string) (kit.Result, error) {
	if err := p.Ready(); err != nil {
		return kit.Result{}, err
	}

	chat := &tele.Chat{ID: p.cfg.ChatID}
	opt := &tele.SendOptions{DisableWebPagePreview: true, ThreadID: p.cfg.ThreadID}

	ids := make([]string, 0, len(texts))
	for _, text := range texts {
		for _, part := range splitText(text, textLimit) {
			if err := ctx.Err(); err != nil {
				return kit.Result{Body: strings.Join(ids, ",")}, err
			}
			msg, err := p.bot.Send(chat, part, opt)
			if err != nil {
				return kit.Result{Body: strings.Join(ids, ",")}, fmt.Errorf("telegram: send: %w", err)
			}
			ids = append(ids, strconv.Itoa(msg.ID))
		}
	}
	return kit.Result{StatusCode: http.StatusOK, Body: strings.Join(ids, ",")}, nil
}

const textLimit = 4000

// splitText splits long messages into chunks that are safe to send to Telegram.
// It prefers newline boundaries so bullet lines stay intact.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}

		// Prefer splitting on a newline near the end of the window.
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				// Avoid extremely small chunks.
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		chunk := strings.TrimRight(string(rs[start:end]), "\n")
		out = append(out, chunk)

		start = end
		// Skip leading newlines to avoid empty chunks.
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
