package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"slotwatch/internal/dispatch"
	"slotwatch/internal/fetch"
	"slotwatch/internal/slot"
	"slotwatch/internal/storage"
	kit "slotwatch/internal/transport"
	logx "slotwatch/pkg/logx"
)

type fakeFetcher struct {
	body []byte
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (fetch.Document, error) {
	if f.err != nil {
		return fetch.Document{}, f.err
	}
	return fetch.Document{Body: f.body, StatusCode: 200, Hash: fetch.Hash(f.body)}, nil
}

type fakePusher struct {
	ready  error
	fail   bool
	onPush func()
	calls  [][]string
}

func (p *fakePusher) Name() string  { return "fake" }
func (p *fakePusher) MaxItems() int { return 5 }
func (p *fakePusher) Ready() error  { return p.ready }

func (p *fakePusher) Push(ctx context.Context, texts []string) (kit.Result, error) {
	p.calls = append(p.calls, append([]string(nil), texts...))
	if p.onPush != nil {
		p.onPush()
	}
	if p.fail {
		return kit.Result{StatusCode: 500, Body: "down"}, &kit.HTTPError{Transport: "fake", StatusCode: 500, Body: "down"}
	}
	return kit.Result{StatusCode: 200, Body: "{}"}, nil
}

func page(rows ...[2]string) []byte {
	var b strings.Builder
	b.WriteString(`<html><body><table id="listtable"><tr><th>日程</th><th>状況</th></tr>`)
	for _, r := range rows {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td></tr>", r[0], r[1])
	}
	b.WriteString(`</table></body></html>`)
	return []byte(b.String())
}

type harness struct {
	fetcher *fakeFetcher
	pusher  *fakePusher
	store   storage.Store
	p       *Pipeline
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "prev.html")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	h := &harness{fetcher: &fakeFetcher{}, pusher: &fakePusher{}, store: st}
	d := dispatch.New(dispatch.Config{}, h.pusher, logx.Nop())
	h.p = New(cfg, h.fetcher, nil, st, d, logx.Nop())
	return h
}

func (h *harness) seed(t *testing.T, doc []byte) {
	t.Helper()
	if err := h.store.Save(context.Background(), doc); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func (h *harness) snapshot(t *testing.T) []byte {
	t.Helper()
	b, err := h.store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return b
}

func TestRunFirstRunSavesWithoutNotifying(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	h.fetcher.body = page([2]string{"A", "○"}, [2]string{"B", "×"})

	rep, err := h.p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rep.FirstRun || !rep.Saved || rep.NewSlots != 2 {
		t.Fatalf("report = %+v", rep)
	}
	if len(h.pusher.calls) != 0 {
		t.Fatalf("first run dispatched %d calls", len(h.pusher.calls))
	}
	if string(h.snapshot(t)) != string(h.fetcher.body) {
		t.Fatalf("snapshot not saved")
	}
}

func TestRunNotifiesAddedOpenSlots(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	h.seed(t, page([2]string{"A", "○"}, [2]string{"B", "×"}))
	h.fetcher.body = page([2]string{"A", "×"}, [2]string{"B", "×"}, [2]string{"C", "○"}, [2]string{"D", "×"})

	rep, err := h.p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]slot.Key{"C", "D"}, rep.Added); diff != "" {
		t.Fatalf("Added mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]slot.Key{"C"}, rep.Notifiable); diff != "" {
		t.Fatalf("Notifiable mismatch (-want +got):\n%s", diff)
	}
	want := [][]string{{DefaultHeader + "\n・C"}}
	if diff := cmp.Diff(want, h.pusher.calls); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
	if !rep.Saved || string(h.snapshot(t)) != string(h.fetcher.body) {
		t.Fatalf("snapshot not replaced")
	}
}

func TestRunIsIdempotentOnSamePage(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	h.seed(t, page([2]string{"A", "○"}))
	h.fetcher.body = page([2]string{"A", "○"}, [2]string{"B", "○"})

	if _, err := h.p.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	rep, err := h.p.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !rep.Unchanged || len(rep.Added) != 0 {
		t.Fatalf("second report = %+v", rep)
	}
	if len(h.pusher.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(h.pusher.calls))
	}
}

func TestRunOnlyClosedAdditionsSendNothing(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	h.seed(t, page([2]string{"A", "○"}))
	h.fetcher.body = page([2]string{"A", "○"}, [2]string{"Z", "× 満席"})

	rep, err := h.p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rep.Added) != 1 || len(rep.Notifiable) != 0 || len(h.pusher.calls) != 0 {
		t.Fatalf("report = %+v calls = %v", rep, h.pusher.calls)
	}
	if !rep.Saved {
		t.Fatalf("snapshot should still be saved")
	}
}

func TestRunMissingCredentialKeepsSnapshot(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	old := page([2]string{"A", "○"})
	h.seed(t, old)
	h.fetcher.body = page([2]string{"A", "○"}, [2]string{"B", "○"})
	h.pusher.ready = fmt.Errorf("fake: %w", kit.ErrMissingCredential)

	rep, err := h.p.Run(context.Background())
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("err = %v, want ErrMissingCredential", err)
	}
	if rep.Saved || len(h.pusher.calls) != 0 {
		t.Fatalf("report = %+v calls = %v", rep, h.pusher.calls)
	}
	if string(h.snapshot(t)) != string(old) {
		t.Fatalf("snapshot changed despite missing credential")
	}

	// Once the credential shows up the same additions go out.
	h.pusher.ready = nil
	rep, err = h.p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]slot.Key{"B"}, rep.Notifiable); diff != "" {
		t.Fatalf("Notifiable mismatch (-want +got):\n%s", diff)
	}
}

func TestRunCancelledAfterDispatchKeepsSnapshot(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	old := page([2]string{"A", "○"})
	h.seed(t, old)
	h.fetcher.body = page([2]string{"A", "○"}, [2]string{"B", "○"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.pusher.onPush = cancel

	rep, err := h.p.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if rep.Saved || len(h.pusher.calls) != 1 {
		t.Fatalf("report = %+v calls = %v", rep, h.pusher.calls)
	}
	if string(h.snapshot(t)) != string(old) {
		t.Fatalf("interrupted run replaced the snapshot")
	}
}

func TestRunTransportNotReadyKeepsSnapshot(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	old := page([2]string{"A", "○"})
	h.seed(t, old)
	h.fetcher.body = page([2]string{"A", "○"}, [2]string{"B", "○"})
	h.pusher.ready = errors.New("telegram: chat id required")

	rep, err := h.p.Run(context.Background())
	if !errors.Is(err, ErrTransportNotReady) || errors.Is(err, ErrMissingCredential) {
		t.Fatalf("err = %v, want ErrTransportNotReady", err)
	}
	if rep.Saved || len(h.pusher.calls) != 0 {
		t.Fatalf("report = %+v calls = %v", rep, h.pusher.calls)
	}
	if string(h.snapshot(t)) != string(old) {
		t.Fatalf("snapshot changed while transport was not ready")
	}
}

func TestRunWithoutSenderKeepsSnapshot(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	old := page([2]string{"A", "○"})
	h.seed(t, old)
	h.fetcher.body = page([2]string{"A", "○"}, [2]string{"B", "○"})
	p := New(Config{}, h.fetcher, nil, h.store, nil, logx.Nop())

	rep, err := p.Run(context.Background())
	if !errors.Is(err, ErrTransportNotReady) {
		t.Fatalf("err = %v, want ErrTransportNotReady", err)
	}
	if rep.Saved || string(h.snapshot(t)) != string(old) {
		t.Fatalf("snapshot changed without a sender")
	}
}

func TestRunMissingCredentialWithNothingDueIsFine(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	h.seed(t, page([2]string{"A", "○"}))
	h.fetcher.body = page([2]string{"A", "×"})
	h.pusher.ready = kit.ErrMissingCredential

	rep, err := h.p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rep.Saved {
		t.Fatalf("snapshot not saved")
	}
}

func TestRunDeliveryFailureStillSaves(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	h.seed(t, page([2]string{"A", "○"}))
	h.fetcher.body = page([2]string{"A", "○"}, [2]string{"B", "○"})
	h.pusher.fail = true

	rep, err := h.p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Failed() != 1 || !rep.Saved {
		t.Fatalf("report = %+v", rep)
	}
	if rep.Outcomes[0].StatusCode != 500 {
		t.Fatalf("outcome = %+v", rep.Outcomes[0])
	}
}

func TestRunFetchFailureChangesNothing(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	old := page([2]string{"A", "○"})
	h.seed(t, old)
	h.fetcher.err = errors.New("connection refused")

	rep, err := h.p.Run(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	if rep.Saved || len(h.pusher.calls) != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if string(h.snapshot(t)) != string(old) {
		t.Fatalf("snapshot changed on fetch failure")
	}
}

func TestRunUnreadableSnapshotNotifiesEverything(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	h.seed(t, []byte("<html><body>maintenance</body></html>"))
	h.fetcher.body = page([2]string{"B", "○"}, [2]string{"A", "○"})

	rep, err := h.p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]slot.Key{"A", "B"}, rep.Notifiable); diff != "" {
		t.Fatalf("Notifiable mismatch (-want +got):\n%s", diff)
	}
	if len(rep.Warnings) != 1 {
		t.Fatalf("warnings = %v", rep.Warnings)
	}
}

func TestRunDryRunSendsAndSavesNothing(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{DryRun: true})
	old := page([2]string{"A", "○"})
	h.seed(t, old)
	h.fetcher.body = page([2]string{"A", "○"}, [2]string{"B", "○"})
	h.pusher.ready = kit.ErrMissingCredential

	rep, err := h.p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rep.Messages) != 1 || rep.Saved || len(h.pusher.calls) != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if string(h.snapshot(t)) != string(old) {
		t.Fatalf("dry run changed the snapshot")
	}
}

func TestRunBatchesAndChunksLargeAdditions(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{BatchLimit: 20})
	h.seed(t, page([2]string{"x", "○"}))
	var rows [][2]string
	for i := 0; i < 30; i++ {
		rows = append(rows, [2]string{fmt.Sprintf("slot%02d", i), "○"})
	}
	h.fetcher.body = page(rows...)

	rep, err := h.p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rep.Notifiable) != 30 {
		t.Fatalf("notifiable = %d", len(rep.Notifiable))
	}
	var sent []string
	for _, c := range h.pusher.calls {
		if len(c) > 5 {
			t.Fatalf("chunk of %d", len(c))
		}
		sent = append(sent, c...)
	}
	if diff := cmp.Diff(rep.Messages, sent); diff != "" {
		t.Fatalf("sent mismatch (-want +got):\n%s", diff)
	}
}

func TestRunRecordsHistory(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	h.fetcher.body = page([2]string{"A", "○"})
	if _, err := h.p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	lister, ok := h.store.(storage.RunLister)
	if !ok {
		t.Fatalf("store does not list runs")
	}
	runs, err := lister.Runs(context.Background(), 10)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 || !runs[0].FirstRun || runs[0].DocHash == "" {
		t.Fatalf("runs = %+v", runs)
	}
}
