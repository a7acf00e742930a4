// Package storage persists the last-seen schedule page (the snapshot) and a
// small history of pipeline runs.
//
// It currently supports:
//   - "file": one snapshot file, replaced atomically, plus a JSON Lines run log
//   - "sqlite": a single-row snapshot table and a runs table
//
// A store holds at most one snapshot. Save replaces it wholesale.
package storage
