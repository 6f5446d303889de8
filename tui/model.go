// Package tui binds one session's transcript surface to a terminal.
//
// The model never writes the surface directly: operator edits go through the
// session's boundary guard and prompts through the engine, so the locked
// history stays read-only.
package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zhubert/parley/engine"
	"github.com/zhubert/parley/guard"
	"github.com/zhubert/parley/history"
	"github.com/zhubert/parley/session"
)

// chatFilesTimeout bounds the header's chat-file refresh.
const chatFilesTimeout = 5 * time.Second

// Messages for async operations.
type updatedMsg struct{}
type sessionClosedMsg struct{}
type statusMsg struct {
	text string
	err  error
}

// Model is the bubbletea model for one session.
type Model struct {
	eng    *engine.Engine
	sess   *session.Session
	keys   keyMap
	styles Styles

	viewport viewport.Model
	width    int
	height   int
	ready    bool

	killed string // Last text removed by ctrl+k
	status string
}

// NewModel creates a model showing sess.
func NewModel(eng *engine.Engine, sess *session.Session) Model {
	m := Model{
		eng:      eng,
		sess:     sess,
		keys:     newKeyMap(),
		styles:   NewStyles(DefaultTheme, nil),
		viewport: viewport.New(0, 0),
	}
	return m
}

// waitForUpdate blocks until the session signals a change.
func waitForUpdate(sess *session.Session) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-sess.Updates(); !ok {
			return sessionClosedMsg{}
		}
		return updatedMsg{}
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.sess), refreshChatFiles(m.eng, m.sess))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-2, 1) // header and status lines
		m.ready = true
		m.refresh(true)
		return m, nil

	case updatedMsg:
		m.refresh(m.viewport.AtBottom())
		return m, waitForUpdate(m.sess)

	case sessionClosedMsg:
		return m, tea.Quit

	case statusMsg:
		switch {
		case msg.err != nil:
			m.status = msg.err.Error()
		default:
			m.status = msg.text
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.status = ""
	var cmd tea.Cmd
	var err error

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		cmd = m.cancelCmd()

	case key.Matches(msg, m.keys.Submit):
		cmd = m.submitCmd()

	case key.Matches(msg, m.keys.LineStart):
		err = m.sess.Edit(func(g *guard.Guard) error { g.MoveToLineStart(); return nil })

	case key.Matches(msg, m.keys.Backspace):
		err = m.sess.Edit(func(g *guard.Guard) error { return g.DeleteCharBefore() })

	case key.Matches(msg, m.keys.Kill):
		err = m.sess.Edit(func(g *guard.Guard) error {
			text, err := g.KillToLineEnd()
			if err == nil && text != "" {
				m.killed = text
			}
			return err
		})

	case key.Matches(msg, m.keys.Yank):
		if m.killed != "" {
			err = m.sess.Edit(func(g *guard.Guard) error { return g.InsertAtCaret(m.killed) })
		}

	case key.Matches(msg, m.keys.Left):
		err = m.sess.Edit(func(g *guard.Guard) error { g.MoveCaret(-1); return nil })

	case key.Matches(msg, m.keys.Right):
		err = m.sess.Edit(func(g *guard.Guard) error { g.MoveCaret(1); return nil })

	case key.Matches(msg, m.keys.Older):
		m.sess.CycleHistory(history.Older)

	case key.Matches(msg, m.keys.Newer):
		m.sess.CycleHistory(history.Newer)

	case key.Matches(msg, m.keys.ScrollUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.ScrollDn):
		m.viewport.HalfViewDown()
		return m, nil

	case msg.Type == tea.KeySpace:
		err = m.sess.Edit(func(g *guard.Guard) error { return g.InsertAtCaret(" ") })

	case msg.Type == tea.KeyRunes && !msg.Alt:
		text := string(msg.Runes)
		err = m.sess.Edit(func(g *guard.Guard) error { return g.InsertAtCaret(text) })

	default:
		return m, nil
	}

	if errors.Is(err, guard.ErrBoundaryViolation) {
		m.status = "Read-only: history above the prompt cannot be edited"
	}
	m.refresh(true)
	return m, cmd
}

func (m Model) submitCmd() tea.Cmd {
	eng, sess := m.eng, m.sess
	return func() tea.Msg {
		err := eng.Submit(sess)
		switch {
		case errors.Is(err, engine.ErrEmptyPrompt):
			return statusMsg{}
		case errors.Is(err, engine.ErrBusy):
			return statusMsg{text: "Busy: press ctrl+c to cancel the running interaction"}
		case err != nil:
			return statusMsg{err: err}
		}
		return statusMsg{text: "Sent"}
	}
}

func (m Model) cancelCmd() tea.Cmd {
	eng, sess := m.eng, m.sess
	return func() tea.Msg {
		if err := eng.Cancel(sess); err != nil {
			if errors.Is(err, engine.ErrNotRunning) {
				return statusMsg{text: "Nothing to cancel"}
			}
			return statusMsg{err: err}
		}
		return statusMsg{text: "Cancelled"}
	}
}

// refreshChatFiles asks the backend for the chat files and reports them in
// the status bar.
func refreshChatFiles(eng *engine.Engine, sess *session.Session) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), chatFilesTimeout)
		defer cancel()
		files, err := eng.ChatFiles(ctx, sess)
		if err != nil {
			return statusMsg{err: fmt.Errorf("chat files: %w", err)}
		}
		return statusMsg{text: fmt.Sprintf("%d chat files", len(files))}
	}
}

// refresh redraws the viewport from a fresh snapshot.
func (m *Model) refresh(follow bool) {
	if !m.ready {
		return
	}
	snap := m.sess.Snapshot()
	m.viewport.SetContent(RenderSegments(m.styles, snap.Segments, snap.Caret))
	if follow {
		m.viewport.GotoBottom()
	}
}

func (m Model) header() string {
	snap := m.sess.Snapshot()
	text := snap.Key
	if snap.ChatFiles != "" {
		text += "  " + snap.ChatFiles
	}
	if snap.Busy {
		text += "  ● working"
		if snap.Tool != "" {
			text += " (" + snap.Tool + ")"
		}
	}
	return m.styles.header.Width(max(m.width, 0)).Render(text)
}

func (m Model) statusLine() string {
	if m.status != "" {
		return m.styles.busy.Render(m.status)
	}
	return m.styles.status.Render(m.keys.helpLine())
}

func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.header(), m.viewport.View(), m.statusLine())
}

// Run starts a full-screen program for sess and blocks until it exits.
func Run(eng *engine.Engine, sess *session.Session) error {
	p := tea.NewProgram(NewModel(eng, sess), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
