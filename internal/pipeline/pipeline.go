// Package pipeline runs one watch cycle: fetch the page, compare it with the
// stored snapshot, notify about new open slots, and store the page.
//
// The snapshot is replaced only after dispatch has finished, so a run that
// dies midway leaves the previous snapshot in place and the next run detects
// the same additions again.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"slotwatch/internal/batch"
	"slotwatch/internal/dispatch"
	"slotwatch/internal/fetch"
	"slotwatch/internal/slot"
	"slotwatch/internal/storage"
	kit "slotwatch/internal/transport"
	logx "slotwatch/pkg/logx"
)

// DefaultHeader opens every notification message.
const DefaultHeader = "📅 新規枠が追加されました"

var (
	// ErrMissingCredential aborts a run that has notifications due but no
	// usable transport credential. The snapshot is left untouched.
	ErrMissingCredential = errors.New("notifications are due but the transport credential is missing")
	// ErrTransportNotReady aborts a run whose transport is misconfigured.
	ErrTransportNotReady = errors.New("notifications are due but the transport is not ready")
)

// Config holds the per-run settings.
type Config struct {
	URL        string
	Header     string
	BatchLimit int
	// DryRun computes notifications but neither sends them nor saves the snapshot.
	DryRun bool
}

// Fetcher retrieves the raw page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (fetch.Document, error)
}

// Sender is the delivery side of the pipeline.
type Sender interface {
	Ready() error
	Dispatch(ctx context.Context, messages []string) []dispatch.Outcome
}

// Report summarizes one run.
type Report struct {
	FirstRun  bool
	Unchanged bool // document identical to the snapshot
	DryRun    bool

	OldSlots   int
	NewSlots   int
	Added      []slot.Key
	Notifiable []slot.Key
	Messages   []string
	Outcomes   []dispatch.Outcome
	Saved      bool
	Warnings   []string
}

// Failed counts chunks that were not delivered.
func (r Report) Failed() int { return dispatch.Failed(r.Outcomes) }

type Pipeline struct {
	cfg       Config
	fetcher   Fetcher
	extractor *slot.Extractor
	store     storage.Store
	sender    Sender
	log       logx.Logger
	now       func() time.Time
}

func New(cfg Config, f Fetcher, x *slot.Extractor, st storage.Store, s Sender, log logx.Logger) *Pipeline {
	if strings.TrimSpace(cfg.Header) == "" {
		cfg.Header = DefaultHeader
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = batch.DefaultLimit
	}
	if x == nil {
		x = slot.NewExtractor(slot.ExtractOptions{})
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pipeline{cfg: cfg, fetcher: f, extractor: x, store: st, sender: s, log: log, now: time.Now}
}

// Run executes one cycle.
//
// Errors: a fetch failure returns before anything is written. A missing
// credential with notifications due returns ErrMissingCredential without
// saving. Delivery failures are not errors; they show up in Report.Outcomes.
func (p *Pipeline) Run(ctx context.Context) (rep Report, err error) {
	start := p.now()
	rep.DryRun = p.cfg.DryRun
	var docHash string
	defer func() {
		p.record(ctx, start, docHash, rep, err)
	}()

	doc, err := p.fetcher.Fetch(ctx, p.cfg.URL)
	if err != nil {
		p.log.Error("fetch failed; nothing changed", logx.String("url", p.cfg.URL), logx.Err(err))
		return rep, fmt.Errorf("fetch: %w", err)
	}
	docHash = doc.Hash

	cur := p.extract(doc.Body, "current", &rep)
	rep.NewSlots = len(cur)

	exists, err := p.store.Exists(ctx)
	if err != nil {
		return rep, fmt.Errorf("snapshot exists: %w", err)
	}
	if !exists {
		rep.FirstRun = true
		if err := p.save(ctx, doc.Body, &rep); err != nil {
			return rep, err
		}
		p.log.Info("first run; snapshot saved without notifying", logx.Int("slots", rep.NewSlots))
		return rep, nil
	}

	old, err := p.store.Load(ctx)
	if err != nil {
		return rep, fmt.Errorf("snapshot load: %w", err)
	}

	var prev slot.Set
	if fetch.Hash(old) == doc.Hash {
		rep.Unchanged = true
		prev = cur
	} else {
		prev = p.extract(old, "snapshot", &rep)
	}
	rep.OldSlots = len(prev)

	rep.Added = slot.Added(prev, cur)
	rep.Notifiable = slot.Notifiable(rep.Added, cur, p.extractor.ClosedMarker())
	p.log.Info("compared",
		logx.Int("old", rep.OldSlots),
		logx.Int("new", rep.NewSlots),
		logx.Int("added", len(rep.Added)),
		logx.Int("notifiable", len(rep.Notifiable)),
		logx.Bool("unchanged", rep.Unchanged),
	)

	if len(rep.Notifiable) == 0 {
		if p.sender != nil {
			if rerr := p.sender.Ready(); rerr != nil {
				p.log.Debug("transport not ready; nothing to notify", logx.Err(rerr))
			}
		}
		p.log.Info("no new open slots")
	} else if err := p.notify(ctx, &rep); err != nil {
		return rep, err
	}

	if ctx.Err() != nil {
		// Interrupted: keep the old snapshot so the next run re-detects.
		return rep, ctx.Err()
	}
	if err := p.save(ctx, doc.Body, &rep); err != nil {
		return rep, err
	}
	return rep, nil
}

func (p *Pipeline) notify(ctx context.Context, rep *Report) error {
	rep.Messages = batch.Pack(p.cfg.Header, rep.Notifiable, p.cfg.BatchLimit)

	if p.cfg.DryRun {
		for i, m := range rep.Messages {
			p.log.Info("dry run: would send", logx.Int("message", i+1), logx.String("text", m))
		}
		return nil
	}

	if p.sender == nil {
		p.log.Error("notifications due but no transport configured", logx.Int("slots", len(rep.Notifiable)))
		return ErrTransportNotReady
	}
	if err := p.sender.Ready(); err != nil {
		p.log.Error("notifications due but transport is not ready; snapshot kept for the next run",
			logx.Int("slots", len(rep.Notifiable)), logx.Err(err))
		if errors.Is(err, kit.ErrMissingCredential) {
			return fmt.Errorf("%w: %v", ErrMissingCredential, err)
		}
		return fmt.Errorf("%w: %v", ErrTransportNotReady, err)
	}

	rep.Outcomes = p.sender.Dispatch(ctx, rep.Messages)
	if failed := rep.Failed(); failed > 0 {
		p.log.Warn("some chunks were not delivered",
			logx.Int("failed", failed), logx.Int("chunks", len(rep.Outcomes)))
	}
	return nil
}

func (p *Pipeline) extract(doc []byte, which string, rep *Report) slot.Set {
	res := p.extractor.Extract(doc)
	if res.Warning != "" {
		p.log.Warn("schedule table unreadable; treating as empty", logx.String("doc", which), logx.String("reason", res.Warning))
		rep.Warnings = append(rep.Warnings, which+": "+res.Warning)
	}
	return res.Set
}

func (p *Pipeline) save(ctx context.Context, doc []byte, rep *Report) error {
	if p.cfg.DryRun {
		return nil
	}
	if err := p.store.Save(ctx, doc); err != nil {
		p.log.Error("snapshot save failed", logx.Err(err))
		return fmt.Errorf("snapshot save: %w", err)
	}
	rep.Saved = true
	return nil
}

func (p *Pipeline) record(ctx context.Context, start time.Time, hash string, rep Report, err error) {
	if p.store == nil {
		return
	}
	r := storage.RunRecord{
		At:         start,
		TookMS:     p.now().Sub(start).Milliseconds(),
		FirstRun:   rep.FirstRun,
		DryRun:     rep.DryRun,
		DocHash:    hash,
		OldSlots:   rep.OldSlots,
		NewSlots:   rep.NewSlots,
		Added:      len(rep.Added),
		Notifiable: len(rep.Notifiable),
		Messages:   len(rep.Messages),
		Chunks:     len(rep.Outcomes),
		Failed:     rep.Failed(),
		Saved:      rep.Saved,
	}
	if err != nil {
		r.Error = err.Error()
	}
	// The run context may already be cancelled; the record is still worth keeping.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if aerr := p.store.AppendRun(rctx, r); aerr != nil {
		p.log.Debug("run record not written", logx.Err(aerr))
	}
}
