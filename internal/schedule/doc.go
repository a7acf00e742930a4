// Package schedule triggers watcher runs on a cron or interval schedule.
//
// The Runner never overlaps runs: a tick that arrives while the previous run
// is still in flight is skipped and logged. Schedule and timezone can be
// swapped at runtime with Apply, which restarts the underlying cron.
//
// When the process runs under systemd (Type=notify), the runner reports
// READY/STOPPING and feeds the watchdog if one is configured.
package schedule
