package tui

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/zhubert/parley/backend"
	"github.com/zhubert/parley/engine"
	"github.com/zhubert/parley/event"
	"github.com/zhubert/parley/session"
	"github.com/zhubert/parley/surface"
)

func plainStyles() Styles {
	r := lipgloss.NewRenderer(io.Discard)
	r.SetColorProfile(termenv.Ascii)
	return NewStyles(DefaultTheme, r)
}

func TestRenderSegments(t *testing.T) {
	segs := []surface.Segment{
		{Text: "ab\ncd\n", Tag: surface.TagAssistant},
		{Text: "parley> ", Tag: surface.TagPrompt},
		{Text: "x", Tag: surface.TagInput},
	}

	tests := []struct {
		name  string
		caret int
		want  string
	}{
		{"caret at end", 15, "ab\ncd\nparley> x "},
		{"caret on newline", 2, "ab \ncd\nparley> x"},
		{"caret inside input", 14, "ab\ncd\nparley> x"},
		{"caret out of range", -1, "ab\ncd\nparley> x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderSegments(plainStyles(), segs, tt.caret); got != tt.want {
				t.Errorf("RenderSegments() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStyleFallback(t *testing.T) {
	s := plainStyles()
	if got := s.Style("no-such-tag").Render("x"); got != "x" {
		t.Errorf("unknown tag rendered %q", got)
	}
}

func newTestModel(t *testing.T) (Model, *engine.Engine, *backend.MockClient, *session.Session) {
	t.Helper()
	t.Setenv("PARLEY_HOME", t.TempDir())
	mock := backend.NewMockClient()
	eng, err := engine.New(nil, mock, engine.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { eng.Close() })

	sess, err := eng.Open("/nonexistent/proj")
	if err != nil {
		t.Fatal(err)
	}
	m := NewModel(eng, sess)
	m.styles = plainStyles()
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return updated.(Model), eng, mock, sess
}

func press(t *testing.T, m Model, msg tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	return updated.(Model), cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModelTyping(t *testing.T) {
	m, _, _, sess := newTestModel(t)

	m, _ = press(t, m, runes("hi"))
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeySpace})
	m, _ = press(t, m, runes("there"))
	if got := sess.Snapshot().Tail; got != "hi there" {
		t.Fatalf("Tail = %q", got)
	}
	if !strings.Contains(m.View(), "parley> hi there") {
		t.Errorf("View missing input:\n%s", m.View())
	}

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyBackspace})
	if got := sess.Snapshot().Tail; got != "hi ther" {
		t.Errorf("Tail after backspace = %q", got)
	}

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlA})
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlK})
	if got := sess.Snapshot().Tail; got != "" {
		t.Errorf("Tail after kill = %q", got)
	}
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlY})
	if got := sess.Snapshot().Tail; got != "hi ther" {
		t.Errorf("Tail after yank = %q", got)
	}
}

func TestModelBoundaryViolation(t *testing.T) {
	m, _, _, sess := newTestModel(t)

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyBackspace})
	if !strings.Contains(m.status, "Read-only") {
		t.Errorf("status = %q, want read-only notice", m.status)
	}
	if sess.Snapshot().Text != "parley> " {
		t.Errorf("surface changed: %q", sess.Snapshot().Text)
	}
}

func TestModelSubmitAndHistory(t *testing.T) {
	m, eng, mock, sess := newTestModel(t)

	m, _ = press(t, m, runes("explain this"))
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter should return a command")
	}
	updated, _ := m.Update(cmd())
	m = updated.(Model)
	if m.status != "Sent" {
		t.Errorf("status = %q", m.status)
	}

	calls := mock.Calls()
	if len(calls) != 1 || calls[0].Arg != "explain this" {
		t.Fatalf("calls = %+v", calls)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := eng.Sync(ctx, sess); err != nil {
		t.Fatal(err)
	}
	sess.Apply(event.Finished{Key: sess.Key(), Status: "success"})

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'p'}, Alt: true})
	if got := sess.Snapshot().Tail; got != "explain this" {
		t.Errorf("Tail after alt+p = %q", got)
	}
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'n'}, Alt: true})
	if got := sess.Snapshot().Tail; got != "" {
		t.Errorf("Tail after alt+n = %q", got)
	}
}

func TestModelCancelWhenIdle(t *testing.T) {
	m, _, _, _ := newTestModel(t)

	_, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("ctrl+c should return a command")
	}
	if msg, ok := cmd().(statusMsg); !ok || msg.text != "Nothing to cancel" {
		t.Errorf("cmd() = %#v", msg)
	}
}

func TestModelHeaderShowsChatFiles(t *testing.T) {
	m, _, _, sess := newTestModel(t)

	sess.Apply(event.ChatFilesInfo{Key: sess.Key(), Summary: "3 files [900 tokens]"})
	updated, _ := m.Update(updatedMsg{})
	m = updated.(Model)
	if !strings.Contains(m.View(), "3 files [900 tokens]") {
		t.Errorf("header missing chat files:\n%s", m.View())
	}
}

func TestModelQuit(t *testing.T) {
	m, _, _, _ := newTestModel(t)

	_, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if cmd == nil {
		t.Fatal("esc should return a command")
	}
	if _, isQuit := cmd().(tea.QuitMsg); !isQuit {
		t.Error("expected QuitMsg")
	}
}

func TestModelSessionClosedQuits(t *testing.T) {
	m, _, _, _ := newTestModel(t)

	_, cmd := m.Update(sessionClosedMsg{})
	if _, isQuit := cmd().(tea.QuitMsg); !isQuit {
		t.Error("closing the session should quit")
	}
}
