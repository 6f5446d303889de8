// Package history implements per-session prompt recall.
package history

// Direction selects which way Cycle moves through the ring.
type Direction int

const (
	// Older moves toward earlier prompts.
	Older Direction = 1
	// Newer moves back toward the most recent prompt and the empty sentinel.
	Newer Direction = -1
)

// String returns a human-readable name for the direction.
func (d Direction) String() string {
	switch d {
	case Older:
		return "older"
	case Newer:
		return "newer"
	default:
		return "unknown"
	}
}

// Ring holds submitted prompts, most recent first, behind a permanent empty
// sentinel at index 0. The cursor always indexes a valid entry.
//
// Ring is not safe for concurrent use; the owning session serializes access.
type Ring struct {
	entries []string
	cursor  int
}

// NewRing returns a ring holding only the sentinel.
func NewRing() *Ring {
	return &Ring{entries: []string{""}}
}

// Record stores text as the most recent prompt and rewinds the cursor to the
// sentinel. Empty text is ignored.
func (r *Ring) Record(text string) {
	if text == "" {
		return
	}
	r.entries = append(r.entries, "")
	copy(r.entries[2:], r.entries[1:])
	r.entries[1] = text
	r.cursor = 0
}

// Cycle moves the cursor one step in direction d, wrapping at both ends, and
// returns the entry now under the cursor. With no recorded prompts it returns
// ("", false) and leaves the cursor alone.
func (r *Ring) Cycle(d Direction) (string, bool) {
	n := len(r.entries)
	if n == 1 {
		return "", false
	}
	switch d {
	case Older, Newer:
	default:
		return r.entries[r.cursor], false
	}
	r.cursor = ((r.cursor+int(d))%n + n) % n
	return r.entries[r.cursor], true
}

// Current returns the entry under the cursor.
func (r *Ring) Current() string {
	return r.entries[r.cursor]
}

// Cursor returns the cursor index.
func (r *Ring) Cursor() int {
	return r.cursor
}

// Len returns the number of entries including the sentinel.
func (r *Ring) Len() int {
	return len(r.entries)
}

// Entries returns a copy of all entries, sentinel first.
func (r *Ring) Entries() []string {
	out := make([]string, len(r.entries))
	copy(out, r.entries)
	return out
}
