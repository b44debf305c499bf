package idgen

import (
	"testing"
	"time"
)

func TestEventIDsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id := NewEventID()
		if seen[id] {
			t.Fatalf("duplicate event id %s", id)
		}
		seen[id] = true
	}
}

func TestSortableIDsRoughlyTrackTime(t *testing.T) {
	first := MustNewSortableID()
	time.Sleep(2 * time.Millisecond)
	second := MustNewSortableID()
	if !(first < second) {
		t.Fatalf("expected %s < %s", first, second)
	}
	if len(first) != 26 {
		t.Fatalf("ULIDs are 26 chars, got %d", len(first))
	}
}
