package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "slotwatch/pkg/logx"
)

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Store{}
	for driver, name := range map[string]string{"file": "prev.html", "sqlite": "state.db"} {
		st, err := Open(Config{Driver: driver, Path: filepath.Join(dir, driver, name)}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%s): %v", driver, err)
		}
		t.Cleanup(func() { _ = st.Close() })
		out[driver] = st
	}
	return out
}

func TestStoreSnapshotLifecycle(t *testing.T) {
	ctx := context.Background()
	for driver, st := range openDrivers(t) {
		ok, err := st.Exists(ctx)
		if err != nil || ok {
			t.Fatalf("%s: Exists on empty store = %v, %v", driver, ok, err)
		}
		if _, err := st.Load(ctx); !errors.Is(err, ErrNoSnapshot) {
			t.Fatalf("%s: Load on empty store err = %v, want ErrNoSnapshot", driver, err)
		}

		if err := st.Save(ctx, []byte("<html>one</html>")); err != nil {
			t.Fatalf("%s: Save: %v", driver, err)
		}
		if err := st.Save(ctx, []byte("<html>two</html>")); err != nil {
			t.Fatalf("%s: Save: %v", driver, err)
		}

		ok, err = st.Exists(ctx)
		if err != nil || !ok {
			t.Fatalf("%s: Exists after save = %v, %v", driver, ok, err)
		}
		got, err := st.Load(ctx)
		if err != nil {
			t.Fatalf("%s: Load: %v", driver, err)
		}
		if string(got) != "<html>two</html>" {
			t.Fatalf("%s: Load = %q, want latest snapshot", driver, got)
		}
	}
}

func TestStoreRunHistory(t *testing.T) {
	ctx := context.Background()
	for driver, st := range openDrivers(t) {
		base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		for i := 0; i < 3; i++ {
			r := RunRecord{At: base.Add(time.Duration(i) * time.Minute), NewSlots: i, Saved: true}
			if err := st.AppendRun(ctx, r); err != nil {
				t.Fatalf("%s: AppendRun: %v", driver, err)
			}
		}
		lister, ok := st.(RunLister)
		if !ok {
			t.Fatalf("%s: store does not implement RunLister", driver)
		}
		runs, err := lister.Runs(ctx, 2)
		if err != nil {
			t.Fatalf("%s: Runs: %v", driver, err)
		}
		if len(runs) != 2 {
			t.Fatalf("%s: got %d runs, want 2", driver, len(runs))
		}
		if runs[0].NewSlots != 2 || runs[1].NewSlots != 1 {
			t.Fatalf("%s: runs not newest-first: %+v", driver, runs)
		}
		if !runs[0].At.Equal(base.Add(2 * time.Minute)) {
			t.Fatalf("%s: At = %v", driver, runs[0].At)
		}
		if !runs[0].Saved {
			t.Fatalf("%s: Saved flag lost", driver)
		}
	}
}

func TestFileStoreSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(Config{Path: filepath.Join(dir, "prev.html")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	if err := st.Save(context.Background(), []byte("x")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name()] = true
	}
	if len(names) != 2 || !names["prev.html"] || !names["prev.runs.jsonl"] {
		t.Fatalf("unexpected files: %v", names)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "redis", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
