package storage

import (
	"errors"
	"time"
)

var (
	// ErrNoSnapshot is returned by Load when nothing has been saved yet.
	ErrNoSnapshot = errors.New("no snapshot saved")
	ErrClosed     = errors.New("store closed")
)

// DefaultPath matches the file name the watcher has always used.
const DefaultPath = "prev.html"

// Config configures storage.
//
// Driver values:
//   - "file": snapshot file at Path, run log next to it (default)
//   - "sqlite": SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RunRecord summarizes one pipeline run.
// Keep it compact and schema-stable.
type RunRecord struct {
	At         time.Time `json:"at"`
	TookMS     int64     `json:"took_ms"`
	FirstRun   bool      `json:"first_run,omitempty"`
	DryRun     bool      `json:"dry_run,omitempty"`
	DocHash    string    `json:"doc_hash,omitempty"`
	OldSlots   int       `json:"old_slots"`
	NewSlots   int       `json:"new_slots"`
	Added      int       `json:"added"`
	Notifiable int       `json:"notifiable"`
	Messages   int       `json:"messages"`
	Chunks     int       `json:"chunks"`
	Failed     int       `json:"failed"`
	Saved      bool      `json:"saved"`
	Error      string    `json:"error,omitempty"`
}
