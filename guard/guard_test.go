package guard

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhubert/parley/surface"
)

const marker = "parley> "

// prompted builds "<history>parley> <tail>" with the lock at the marker.
func prompted(t *testing.T, history, tail string) *surface.Buffer {
	t.Helper()
	b := surface.New(marker)
	b.Append(history, surface.TagAssistant)
	b.WritePrompt()
	start, ok := b.FindMarker()
	require.True(t, ok)
	b.LockUpTo(start)
	b.InsertText(b.Len(), tail)
	b.SetCaret(b.Len())
	return b
}

func markerEnd(b *surface.Buffer) int {
	_, end, _ := b.MarkerSpan()
	return end
}

func TestDeleteCharBeforeAtBoundary(t *testing.T) {
	b := prompted(t, "done\n", "ab")
	g := New(b)

	b.SetCaret(markerEnd(b))
	before := b.String()
	err := g.DeleteCharBefore()
	require.ErrorIs(t, err, ErrBoundaryViolation)
	require.Equal(t, before, b.String())

	b.SetCaret(markerEnd(b) + 1)
	tailBefore := len([]rune(b.Tail()))
	require.NoError(t, g.DeleteCharBefore())
	require.Equal(t, "b", b.Tail())
	require.Equal(t, tailBefore-1, len([]rune(b.Tail())))
	require.Equal(t, markerEnd(b), b.Caret())
}

func TestDeleteCharBeforeInsideLockedPrefix(t *testing.T) {
	b := prompted(t, "done\n", "")
	g := New(b)
	b.SetCaret(3)
	require.ErrorIs(t, g.DeleteCharBefore(), ErrBoundaryViolation)
	require.Equal(t, "done\nparley> ", b.String())
}

func TestMoveToLineStart(t *testing.T) {
	b := prompted(t, "one\ntwo\n", "first\nsecond")
	g := New(b)

	g.MoveToLineStart()
	require.Equal(t, b.Len()-len("second"), b.Caret(), "second input line goes to column 0")

	b.SetCaret(markerEnd(b) + 3)
	g.MoveToLineStart()
	require.Equal(t, markerEnd(b), b.Caret(), "prompt line stops after the marker")

	b.SetCaret(5)
	g.MoveToLineStart()
	require.Equal(t, 4, b.Caret(), "history line goes to column 0")
}

func TestKillToLineEnd(t *testing.T) {
	b := prompted(t, "h\n", "hello world")
	g := New(b)

	b.SetCaret(markerEnd(b) + 5)
	killed, err := g.KillToLineEnd()
	require.NoError(t, err)
	require.Equal(t, " world", killed)
	require.Equal(t, "hello", b.Tail())
}

func TestKillToLineEndAtEndOfLineTakesNewline(t *testing.T) {
	b := prompted(t, "h\n", "first\nsecond")
	g := New(b)

	b.SetCaret(markerEnd(b) + len("first"))
	killed, err := g.KillToLineEnd()
	require.NoError(t, err)
	require.Equal(t, "first\n", killed)
	require.Equal(t, "second", b.Tail())
	require.Equal(t, "h\nparley> second", b.String())
}

func TestKillToLineEndInsideMarker(t *testing.T) {
	b := prompted(t, "h\n", "abc")
	g := New(b)

	start, _, _ := b.MarkerSpan()
	b.SetCaret(start + 2)
	_, err := g.KillToLineEnd()
	require.ErrorIs(t, err, ErrBoundaryViolation)
	require.Equal(t, "abc", b.Tail())

	b.SetCaret(0)
	_, err = g.KillToLineEnd()
	require.ErrorIs(t, err, ErrBoundaryViolation)
	require.Equal(t, "h\nparley> abc", b.String())
}

func TestKillToLineEndEmptyTail(t *testing.T) {
	b := prompted(t, "h\n", "")
	g := New(b)
	killed, err := g.KillToLineEnd()
	require.NoError(t, err)
	require.Empty(t, killed)
	require.Equal(t, "h\nparley> ", b.String())
}

func TestInsertAtCaret(t *testing.T) {
	b := prompted(t, "h\n", "ac")
	g := New(b)

	b.SetCaret(markerEnd(b) + 1)
	require.NoError(t, g.InsertAtCaret("b"))
	require.Equal(t, "abc", b.Tail())
	require.Equal(t, markerEnd(b)+2, b.Caret())

	b.SetCaret(1)
	require.ErrorIs(t, g.InsertAtCaret("x"), ErrBoundaryViolation)
	require.Equal(t, "h\nparley> abc", b.String())
}

func TestMoveCaretStopsAtTail(t *testing.T) {
	b := prompted(t, "h\n", "ab")
	g := New(b)

	g.MoveCaret(-10)
	require.Equal(t, markerEnd(b), b.Caret())
	g.MoveCaret(1)
	require.Equal(t, markerEnd(b)+1, b.Caret())
	g.MoveCaret(10)
	require.Equal(t, b.Len(), b.Caret())
}
