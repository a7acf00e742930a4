package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"slotwatch/internal/schedule"
	logx "slotwatch/pkg/logx"
)

var validTransports = map[string]bool{"line": true, "telegram": true, "nats": true, "log": true}

// Validate reports every problem it finds, joined. Credentials are not
// checked here: a missing token only matters once there is something to send.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if c.Source.URL == "" {
		add("source.url: required (or set %s)", EnvURL)
	} else if u, err := url.Parse(c.Source.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("source.url: must be an absolute http(s) URL, got %q", c.Source.URL)
	}
	if c.Source.MaxBytes < 0 {
		add("source.max_bytes: must be >= 0")
	}
	durations := []struct{ path, raw string }{
		{"source.timeout", c.Source.Timeout},
		{"snapshot.busy_timeout", c.Snapshot.BusyTimeout},
		{"notify.timeout", c.Notify.Timeout},
		{"schedule.run_timeout", c.Schedule.RunTimeout},
	}
	for _, d := range durations {
		if _, err := parseDuration(d.path, d.raw); err != nil {
			errs = append(errs, err)
		}
	}

	switch c.Snapshot.Driver {
	case "", "file", "sqlite":
	default:
		add("snapshot.driver: unknown driver %q (use file or sqlite)", c.Snapshot.Driver)
	}

	if !validTransports[c.Notify.Transport] && c.Notify.Transport != "" {
		add("notify.transport: unknown transport %q (use line, telegram, nats or log)", c.Notify.Transport)
	}
	if c.Notify.MaxChars < 0 {
		add("notify.max_chars: must be > 0")
	}
	if c.Notify.MaxItems < 0 {
		add("notify.max_items: must be >= 0")
	}
	if c.Notify.RatePerSec < 0 {
		add("notify.rate_per_sec: must be >= 0")
	}
	if ep := strings.TrimSpace(c.Notify.Line.Endpoint); ep != "" {
		if u, err := url.Parse(ep); err != nil || u.Host == "" {
			add("notify.line.endpoint: invalid URL %q", ep)
		}
	}

	if lvl := strings.TrimSpace(c.Logging.Level); lvl != "" && !logx.ValidLevel(lvl) {
		add("logging.level: unknown level %q", lvl)
	}

	if strings.TrimSpace(c.Schedule.Spec) != "" {
		if _, err := schedule.ParseSchedule(c.Schedule.Spec); err != nil {
			add("schedule.spec: %v", err)
		}
	}
	if tz := strings.TrimSpace(c.Schedule.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add("schedule.timezone: %v", err)
		}
	}

	return errors.Join(errs...)
}
