package slot

import (
	"sort"
	"strings"
)

const (
	// DefaultTableSelector locates the schedule table on the page.
	DefaultTableSelector = "#listtable"
	// DefaultClosedMarker is the glyph the page uses for "no longer available".
	DefaultClosedMarker = "×"
)

// Key identifies one schedule row, e.g. "13日(水)14:00～".
type Key = string

// Status is the normalized text of a row's last cell. A closed row always
// carries exactly the closed marker; any other text means open.
type Status string

// Set maps a slot key to its status.
type Set map[Key]Status

// Closed reports whether s is the closed status for marker.
func (s Status) Closed(marker string) bool {
	return marker != "" && string(s) == marker
}

// Keys returns the keys of s in ascending lexicographic order.
func (s Set) Keys() []Key {
	out := make([]Key, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Normalize collapses whitespace runs (including full-width spaces) into a
// single space and trims the ends.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// isSeparator reports whether s is a decoration row label such as "------".
func isSeparator(s string) bool {
	return s != "" && strings.Trim(s, "-") == ""
}
