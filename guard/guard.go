// Package guard enforces the locked-history boundary for operator edits.
//
// Renderers write to the surface directly. Anything the operator types goes
// through a Guard, which refuses to touch the locked prefix or the prompt
// marker.
package guard

import (
	"errors"
)

// ErrBoundaryViolation is returned when an edit would reach into the locked
// prefix or the prompt marker. The surface is left untouched.
var ErrBoundaryViolation = errors.New("edit crosses the locked boundary")

// Editable is the caret and text capability a Guard edits through.
type Editable interface {
	Caret() int
	SetCaret(pos int)
	Len() int
	Slice(start, end int) string
	InsertText(pos int, text string)
	DeleteRange(start, end int)
	BackwardFind(s string, from int) int
	ForwardFind(s string, from int) int
}

// Boundary reports where the live tail begins.
type Boundary interface {
	// MarkerSpan returns the most recent prompt marker. Without one, start and
	// end both equal the lock boundary.
	MarkerSpan() (start, end int, ok bool)
	Locked() int
}

// Surface is the combined capability; surface.Buffer implements it.
type Surface interface {
	Editable
	Boundary
}

// Guard applies operator editing commands to a surface.
type Guard struct {
	ed Editable
	bd Boundary
}

// New returns a Guard over s.
func New(s Surface) *Guard {
	return &Guard{ed: s, bd: s}
}

// editStart is the first position the operator may change.
func (g *Guard) editStart() int {
	_, end, _ := g.bd.MarkerSpan()
	if locked := g.bd.Locked(); locked > end {
		return locked
	}
	return end
}

func (g *Guard) lineStart(pos int) int {
	return g.ed.BackwardFind("\n", pos) + 1
}

func (g *Guard) lineEnd(pos int) int {
	if i := g.ed.ForwardFind("\n", pos); i >= 0 {
		return i
	}
	return g.ed.Len()
}

// MoveToLineStart moves the caret to just after the marker when it sits on
// the prompt line, and to column 0 otherwise.
func (g *Guard) MoveToLineStart() {
	caret := g.ed.Caret()
	start, end, ok := g.bd.MarkerSpan()
	ls := g.lineStart(caret)
	if ok && caret >= start && g.lineStart(start) == ls {
		g.ed.SetCaret(end)
		return
	}
	g.ed.SetCaret(ls)
}

// DeleteCharBefore removes the character before the caret.
func (g *Guard) DeleteCharBefore() error {
	caret := g.ed.Caret()
	if caret <= g.editStart() {
		return ErrBoundaryViolation
	}
	g.ed.DeleteRange(caret-1, caret)
	return nil
}

// KillToLineEnd deletes from the caret to the end of its line and returns the
// removed text. At the end of a line the whole editable part of that line is
// removed together with its trailing newline.
func (g *Guard) KillToLineEnd() (string, error) {
	caret := g.ed.Caret()
	mStart, mEnd, _ := g.bd.MarkerSpan()
	if caret >= mStart && caret < mEnd {
		return "", ErrBoundaryViolation
	}
	if caret < g.editStart() {
		return "", ErrBoundaryViolation
	}

	eol := g.lineEnd(caret)
	from, to := caret, eol
	if caret == eol {
		from = max(g.lineStart(caret), g.editStart())
		if eol < g.ed.Len() {
			to = eol + 1
		}
	}
	if from == to {
		return "", nil
	}
	killed := g.ed.Slice(from, to)
	g.ed.DeleteRange(from, to)
	g.ed.SetCaret(from)
	return killed, nil
}

// InsertAtCaret types text at the caret.
func (g *Guard) InsertAtCaret(text string) error {
	caret := g.ed.Caret()
	if caret < g.editStart() {
		return ErrBoundaryViolation
	}
	g.ed.InsertText(caret, text)
	return nil
}

// MoveCaret shifts the caret by delta runes. Moving left stops at the start
// of the editable tail.
func (g *Guard) MoveCaret(delta int) {
	pos := g.ed.Caret() + delta
	if delta < 0 && pos < g.editStart() {
		pos = min(g.editStart(), g.ed.Caret())
	}
	g.ed.SetCaret(pos)
}
