package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// parseDuration reads a Go duration ("1m30s") or a bare number of seconds
// ("20"). Empty means zero. field prefixes the error.
func parseDuration(field, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	var d time.Duration
	if n, err := strconv.Atoi(s); err == nil {
		d = time.Duration(n) * time.Second
	} else if d, err = time.ParseDuration(s); err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", field, raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative", field)
	}
	return d, nil
}

// DurationOr parses raw and falls back to def when it is empty or zero.
func DurationOr(field, raw string, def time.Duration) (time.Duration, error) {
	d, err := parseDuration(field, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
