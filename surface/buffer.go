// Package surface provides the in-memory transcript surface a session renders
// into and a host UI binds to.
//
// A Buffer is a sequence of runes, each carrying a style Tag. The runes in
// [0, Locked()) are history the operator may not edit; the live tail begins at
// the most recent prompt marker, a run of runes tagged TagPrompt spelling the
// marker literal. All positions are rune offsets.
//
// Renderer operations (Insert, Append, DeleteRange) are privileged and ignore
// the lock; operator edits go through package guard, which enforces it.
package surface

import "unicode/utf8"

// Tag is the style attached to a run of text.
type Tag string

const (
	TagPlain       Tag = ""
	TagUser        Tag = "user"
	TagAssistant   Tag = "assistant"
	TagError       Tag = "error"
	TagWarning     Tag = "warning"
	TagToolHeader  Tag = "tool-header"
	TagToolArg     Tag = "tool-arg"
	TagToolPending Tag = "tool-pending"
	TagToolFooter  Tag = "tool-footer"
	TagCompletion  Tag = "completion"
	TagPrompt      Tag = "prompt"
	TagInput       Tag = "input"
)

// Segment is a maximal run of text sharing one tag.
type Segment struct {
	Text string
	Tag  Tag
}

// Buffer is a tagged text surface with a locked prefix and a caret.
// It is not safe for concurrent use.
type Buffer struct {
	runes  []rune
	tags   []Tag
	locked int
	caret  int
	marker []rune
}

// New returns an empty buffer whose prompt marker literal is marker.
func New(marker string) *Buffer {
	return &Buffer{marker: []rune(marker)}
}

// Marker returns the prompt marker literal.
func (b *Buffer) Marker() string {
	return string(b.marker)
}

// Len returns the length in runes.
func (b *Buffer) Len() int {
	return len(b.runes)
}

// String returns the full text.
func (b *Buffer) String() string {
	return string(b.runes)
}

// Slice returns the text in [start, end), clamped to the buffer.
func (b *Buffer) Slice(start, end int) string {
	start, end = b.clampRange(start, end)
	return string(b.runes[start:end])
}

// TagAt returns the tag of the rune at pos, or TagPlain out of range.
func (b *Buffer) TagAt(pos int) Tag {
	if pos < 0 || pos >= len(b.tags) {
		return TagPlain
	}
	return b.tags[pos]
}

// Segments groups the buffer into runs of equal tags.
func (b *Buffer) Segments() []Segment {
	var segs []Segment
	start := 0
	for i := 1; i <= len(b.runes); i++ {
		if i == len(b.runes) || b.tags[i] != b.tags[start] {
			segs = append(segs, Segment{Text: string(b.runes[start:i]), Tag: b.tags[start]})
			start = i
		}
	}
	return segs
}

// Insert places text at pos with the given tag. Positions at or after pos
// shift right, including the caret; the lock boundary shifts only when pos
// lies strictly inside the locked prefix.
func (b *Buffer) Insert(pos int, text string, tag Tag) {
	if text == "" {
		return
	}
	pos = b.clamp(pos)
	ins := []rune(text)
	n := len(ins)

	b.runes = append(b.runes[:pos], append(ins, b.runes[pos:]...)...)
	tags := make([]Tag, n)
	for i := range tags {
		tags[i] = tag
	}
	b.tags = append(b.tags[:pos], append(tags, b.tags[pos:]...)...)

	if b.caret >= pos {
		b.caret += n
	}
	if b.locked > pos {
		b.locked += n
	}
}

// Append adds text at the end of the buffer.
func (b *Buffer) Append(text string, tag Tag) {
	b.Insert(len(b.runes), text, tag)
}

// DeleteRange removes [start, end). The caret and lock boundary are pulled
// back so they keep pointing at the same surrounding text.
func (b *Buffer) DeleteRange(start, end int) {
	start, end = b.clampRange(start, end)
	if start == end {
		return
	}
	n := end - start
	b.runes = append(b.runes[:start], b.runes[end:]...)
	b.tags = append(b.tags[:start], b.tags[end:]...)
	b.caret = shiftForDelete(b.caret, start, end, n)
	b.locked = shiftForDelete(b.locked, start, end, n)
}

func shiftForDelete(p, start, end, n int) int {
	switch {
	case p >= end:
		return p - n
	case p > start:
		return start
	default:
		return p
	}
}

// Locked returns the end of the immutable prefix.
func (b *Buffer) Locked() int {
	return b.locked
}

// LockUpTo makes [0, pos) immutable history.
func (b *Buffer) LockUpTo(pos int) {
	b.locked = b.clamp(pos)
}

// FindMarker returns the start of the most recent prompt marker.
func (b *Buffer) FindMarker() (int, bool) {
	m := len(b.marker)
	if m == 0 {
		return 0, false
	}
	for start := len(b.runes) - m; start >= 0; start-- {
		if b.markerAt(start) {
			return start, true
		}
	}
	return 0, false
}

func (b *Buffer) markerAt(start int) bool {
	for i, r := range b.marker {
		if b.runes[start+i] != r || b.tags[start+i] != TagPrompt {
			return false
		}
	}
	return true
}

// MarkerSpan returns [start, end) of the most recent prompt marker. Without a
// marker the span collapses onto the lock boundary.
func (b *Buffer) MarkerSpan() (start, end int, ok bool) {
	start, ok = b.FindMarker()
	if !ok {
		return b.locked, b.locked, false
	}
	return start, start + len(b.marker), true
}

// WritePrompt appends a fresh prompt marker.
func (b *Buffer) WritePrompt() {
	b.Append(string(b.marker), TagPrompt)
}

// Tail returns the operator's uncommitted input after the marker.
func (b *Buffer) Tail() string {
	_, end, _ := b.MarkerSpan()
	return string(b.runes[b.clamp(end):])
}

// ReplaceTail swaps the text after the marker for text and parks the caret at
// the end.
func (b *Buffer) ReplaceTail(text string) {
	_, end, _ := b.MarkerSpan()
	b.DeleteRange(end, len(b.runes))
	b.Append(text, TagInput)
	b.caret = len(b.runes)
}

// Reset empties the buffer, including the lock and caret.
func (b *Buffer) Reset() {
	b.runes = nil
	b.tags = nil
	b.locked = 0
	b.caret = 0
}

// Caret returns the caret position.
func (b *Buffer) Caret() int {
	return b.caret
}

// SetCaret moves the caret, clamped to the buffer.
func (b *Buffer) SetCaret(pos int) {
	b.caret = b.clamp(pos)
}

// BackwardFind returns the start of the last occurrence of s that ends at or
// before from, or -1.
func (b *Buffer) BackwardFind(s string, from int) int {
	needle := []rune(s)
	from = b.clamp(from)
	for start := from - len(needle); start >= 0; start-- {
		if hasPrefixAt(b.runes, needle, start) {
			return start
		}
	}
	return -1
}

// ForwardFind returns the start of the first occurrence of s at or after
// from, or -1.
func (b *Buffer) ForwardFind(s string, from int) int {
	needle := []rune(s)
	for start := b.clamp(from); start+len(needle) <= len(b.runes); start++ {
		if hasPrefixAt(b.runes, needle, start) {
			return start
		}
	}
	return -1
}

func hasPrefixAt(hay, needle []rune, start int) bool {
	for i, r := range needle {
		if hay[start+i] != r {
			return false
		}
	}
	return true
}

// InsertText inserts operator input at pos, tagged TagInput.
func (b *Buffer) InsertText(pos int, text string) {
	b.Insert(pos, text, TagInput)
}

// RuneCount is a convenience for callers that track positions in runes.
func RuneCount(s string) int {
	return utf8.RuneCountInString(s)
}

func (b *Buffer) clamp(pos int) int {
	if pos < 0 {
		return 0
	}
	if pos > len(b.runes) {
		return len(b.runes)
	}
	return pos
}

func (b *Buffer) clampRange(start, end int) (int, int) {
	start, end = b.clamp(start), b.clamp(end)
	if end < start {
		end = start
	}
	return start, end
}
