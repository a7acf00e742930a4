package storage

import (
	"context"
	"errors"
	"strings"

	logx "slotwatch/pkg/logx"
)

// Store is the snapshot persistence API used by the pipeline.
type Store interface {
	// Exists reports whether a snapshot has been saved.
	Exists(ctx context.Context) (bool, error)
	// Load returns the saved snapshot, or ErrNoSnapshot.
	Load(ctx context.Context) ([]byte, error)
	// Save replaces the snapshot with doc.
	Save(ctx context.Context, doc []byte) error
	// AppendRun records a run summary. Best-effort for callers.
	AppendRun(ctx context.Context, r RunRecord) error
	Close() error
}

// RunLister is implemented by stores that can read back their run history.
type RunLister interface {
	// Runs returns up to limit records, newest first.
	Runs(ctx context.Context, limit int) ([]RunRecord, error)
}

// Open initializes the configured store. An empty driver selects "file".
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = "file"
	}
	if strings.TrimSpace(cfg.Path) == "" {
		cfg.Path = DefaultPath
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
