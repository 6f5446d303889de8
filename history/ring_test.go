package history

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewRing(t *testing.T) {
	r := NewRing()
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
	if r.Cursor() != 0 {
		t.Errorf("Cursor() = %d, want 0", r.Cursor())
	}
	if r.Current() != "" {
		t.Errorf("Current() = %q, want empty sentinel", r.Current())
	}
}

func TestRecordEmptyIsNoop(t *testing.T) {
	r := NewRing()
	r.Record("foo")
	r.Cycle(Older)

	lenBefore, cursorBefore := r.Len(), r.Cursor()
	r.Record("")

	if r.Len() != lenBefore {
		t.Errorf("Len() changed from %d to %d", lenBefore, r.Len())
	}
	if r.Cursor() != cursorBefore {
		t.Errorf("Cursor() changed from %d to %d", cursorBefore, r.Cursor())
	}
}

func TestRecordOrder(t *testing.T) {
	r := NewRing()
	r.Record("foo")
	r.Record("bar")

	if diff := cmp.Diff([]string{"", "bar", "foo"}, r.Entries()); diff != "" {
		t.Errorf("Entries() mismatch (-want +got):\n%s", diff)
	}
	if r.Cursor() != 0 {
		t.Errorf("Cursor() = %d, want 0", r.Cursor())
	}
}

func TestRecordResetsCursor(t *testing.T) {
	r := NewRing()
	r.Record("one")
	r.Record("two")
	r.Cycle(Older)
	r.Cycle(Older)

	r.Record("three")
	if r.Cursor() != 0 {
		t.Errorf("Cursor() = %d after Record, want 0", r.Cursor())
	}
}

func TestCycleSingleEntryIsNoop(t *testing.T) {
	r := NewRing()
	got, ok := r.Cycle(Older)
	if ok || got != "" {
		t.Errorf("Cycle on empty ring = (%q, %v), want (\"\", false)", got, ok)
	}
	if r.Cursor() != 0 {
		t.Errorf("Cursor() = %d, want 0", r.Cursor())
	}
}

func TestCycleWraps(t *testing.T) {
	r := NewRing()
	r.Record("foo")
	r.Record("bar")

	steps := []struct {
		dir        Direction
		want       string
		wantCursor int
	}{
		{Older, "bar", 1},
		{Older, "foo", 2},
		{Older, "", 0},    // past the oldest wraps to the sentinel
		{Newer, "foo", 2}, // before the sentinel wraps to the oldest
		{Newer, "bar", 1},
		{Newer, "", 0},
	}

	for i, s := range steps {
		got, ok := r.Cycle(s.dir)
		if !ok {
			t.Fatalf("step %d: Cycle(%v) reported no-op", i, s.dir)
		}
		if got != s.want || r.Cursor() != s.wantCursor {
			t.Errorf("step %d: Cycle(%v) = %q cursor %d, want %q cursor %d",
				i, s.dir, got, r.Cursor(), s.want, s.wantCursor)
		}
	}
}

func TestCycleRoundTrip(t *testing.T) {
	r := NewRing()
	for _, p := range []string{"a", "b", "c", "d"} {
		r.Record(p)
	}
	r.Cycle(Older)

	for n := 0; n < r.Len(); n++ {
		startCursor, startText := r.Cursor(), r.Current()
		for i := 0; i < n; i++ {
			r.Cycle(Older)
		}
		for i := 0; i < n; i++ {
			r.Cycle(Newer)
		}
		if r.Cursor() != startCursor || r.Current() != startText {
			t.Errorf("n=%d: round trip ended at cursor %d %q, want %d %q",
				n, r.Cursor(), r.Current(), startCursor, startText)
		}
	}
}

func TestCycleInvalidDirection(t *testing.T) {
	r := NewRing()
	r.Record("x")
	if _, ok := r.Cycle(Direction(3)); ok {
		t.Error("Cycle with invalid direction should report false")
	}
	if r.Cursor() != 0 {
		t.Errorf("Cursor() = %d, want 0", r.Cursor())
	}
}

func TestEntriesIsCopy(t *testing.T) {
	r := NewRing()
	r.Record("x")
	e := r.Entries()
	e[1] = "mutated"
	if r.Entries()[1] != "x" {
		t.Error("Entries() should return a copy")
	}
}
