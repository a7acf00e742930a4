// Package batch folds notification lines into size-bounded message bodies.
package batch

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultLimit is the per-message character budget. It leaves headroom
	// under the LINE text message limit (5000).
	DefaultLimit = 4700
	// Bullet prefixes every line inside a message body.
	Bullet = "\n・"
)

// Pack greedily appends lines to the current message and starts a new one,
// prefixed with header, whenever the next line would push it over limit.
//
// Every message starts with header and lines keep their order. A single line
// that does not fit even in a fresh message is emitted on its own, oversized,
// rather than truncated; a header-only message is never emitted ahead of it. Length is counted in runes. limit <= 0 selects
// DefaultLimit.
func Pack(header string, lines []string, limit int) []string {
	if limit <= 0 {
		limit = DefaultLimit
	}

	var (
		out     []string
		current = header
		n       = utf8.RuneCountInString(header)
		filled  bool // current holds at least one line
	)
	for _, line := range lines {
		add := utf8.RuneCountInString(Bullet) + utf8.RuneCountInString(line)
		if filled && n+add > limit {
			out = append(out, current)
			current = header + Bullet + line
			n = utf8.RuneCountInString(header) + add
			continue
		}
		current += Bullet + line
		n += add
		filled = true
	}
	if strings.TrimSpace(current) != "" {
		out = append(out, current)
	}
	return out
}
