package slot

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAddedAndNotifiable(t *testing.T) {
	t.Parallel()
	prev := Set{"3日(月)10:00": "○"}
	cur := Set{
		"3日(月)10:00": "○",
		"4日(火)14:00": "○",
		"5日(水)9:00":  "×",
	}

	added := Added(prev, cur)
	if diff := cmp.Diff([]Key{"4日(火)14:00", "5日(水)9:00"}, added); diff != "" {
		t.Fatalf("Added mismatch (-want +got):\n%s", diff)
	}

	notify := Notifiable(added, cur, DefaultClosedMarker)
	if diff := cmp.Diff([]Key{"4日(火)14:00"}, notify); diff != "" {
		t.Fatalf("Notifiable mismatch (-want +got):\n%s", diff)
	}
}

func TestAddedIsSetDifference(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		prev Set
		cur  Set
		want []Key
	}{
		{name: "unchanged", prev: Set{"a": "○", "b": "×"}, cur: Set{"a": "○", "b": "×"}, want: []Key{}},
		{name: "empty prev", prev: Set{}, cur: Set{"b": "○", "a": "○"}, want: []Key{"a", "b"}},
		{name: "nil prev", prev: nil, cur: Set{"c": "○"}, want: []Key{"c"}},
		{name: "removed only", prev: Set{"a": "○", "b": "○"}, cur: Set{"a": "○"}, want: []Key{}},
		{name: "status change is not an addition", prev: Set{"a": "○"}, cur: Set{"a": "×"}, want: []Key{}},
		{name: "mixed", prev: Set{"a": "○", "z": "○"}, cur: Set{"y": "○", "a": "○", "b": "○"}, want: []Key{"b", "y"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Added(tt.prev, tt.cur)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Added mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNotifiablePreservesOrder(t *testing.T) {
	t.Parallel()
	cur := Set{"c": "○", "a": "×", "b": "△"}
	got := Notifiable([]Key{"c", "a", "b"}, cur, DefaultClosedMarker)
	if diff := cmp.Diff([]Key{"c", "b"}, got); diff != "" {
		t.Fatalf("Notifiable mismatch (-want +got):\n%s", diff)
	}
}

func TestSetKeysAreSorted(t *testing.T) {
	t.Parallel()
	s := Set{"c": "○", "a": "×", "b": "○"}
	if diff := cmp.Diff([]Key{"a", "b", "c"}, s.Keys()); diff != "" {
		t.Fatalf("Keys mismatch (-want +got):\n%s", diff)
	}
}
