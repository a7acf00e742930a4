package slot

import "sort"

// Added returns the keys present in cur but absent from prev, sorted
// lexicographically. Status changes on existing keys are not additions.
//
// An empty prev makes every key of cur an addition.
func Added(prev, cur Set) []Key {
	out := make([]Key, 0)
	for k := range cur {
		if _, ok := prev[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Notifiable drops the keys whose status in cur is closed, preserving order.
func Notifiable(added []Key, cur Set, closedMarker string) []Key {
	out := make([]Key, 0, len(added))
	for _, k := range added {
		if cur[k].Closed(closedMarker) {
			continue
		}
		out = append(out, k)
	}
	return out
}
