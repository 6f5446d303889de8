// Package session binds one project path to its transcript, renderer and
// prompt history.
//
// A Session is the unit the registry hands out. Backend events reach it
// through the dispatcher (one worker per session) and operator input reaches
// it from the host UI; the session mutex serializes both.
package session

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/zhubert/parley/config"
	"github.com/zhubert/parley/event"
	"github.com/zhubert/parley/guard"
	"github.com/zhubert/parley/history"
	"github.com/zhubert/parley/logger"
	"github.com/zhubert/parley/surface"
	"github.com/zhubert/parley/transcript"
)

// Options configures a new Session.
type Options struct {
	Marker string
	Render transcript.Options
}

// DefaultOptions returns options matching config.Default.
func DefaultOptions() Options {
	return Options{Marker: config.DefaultPromptMarker, Render: transcript.DefaultOptions()}
}

// Session holds all per-project conversation state.
//
// Thread Safety:
// All exported methods are safe for concurrent use. Use WithSurface for
// multi-step reads of the surface that must see one consistent state.
type Session struct {
	mu sync.Mutex // Protects all fields below

	key      string
	buf      *surface.Buffer
	ring     *history.Ring
	renderer *transcript.Renderer
	guard    *guard.Guard

	chatFiles     string // Backend summary, e.g. "2 files [1520 tokens]"
	busy          bool   // An interaction is in flight
	interactionID string
	closed        bool

	updates chan struct{}
	log     *slog.Logger
}

// New creates a session for an already canonical key and writes the first
// prompt marker.
func New(key string, opts Options) *Session {
	if opts.Marker == "" {
		opts.Marker = config.DefaultPromptMarker
	}
	log := logger.WithSession(key)
	if opts.Render.Logger == nil {
		opts.Render.Logger = log.With("component", "transcript")
	}

	buf := surface.New(opts.Marker)
	s := &Session{
		key:      key,
		buf:      buf,
		ring:     history.NewRing(),
		renderer: transcript.NewRenderer(buf, opts.Render),
		guard:    guard.New(buf),
		updates:  make(chan struct{}, 1),
		log:      log,
	}
	s.freshPrompt()
	return s
}

// freshPrompt writes a marker, locks history before it and parks the caret
// at the end. Caller must hold mu.
func (s *Session) freshPrompt() {
	s.buf.WritePrompt()
	s.renderer.Relock()
	s.buf.SetCaret(s.buf.Len())
}

// notify wakes a listener without blocking. Caller must hold mu.
func (s *Session) notify() {
	if s.closed {
		return
	}
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

// Key returns the canonical project path.
func (s *Session) Key() string {
	return s.key
}

// Updates delivers a signal after each change to the transcript. Signals
// coalesce; read Snapshot for the current state. The channel is closed by
// Close.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

// Apply handles one event routed to this session.
// Thread-safe.
func (s *Session) Apply(ev event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.log.Debug("event for closed session dropped")
		return
	}

	switch e := ev.(type) {
	case event.ContentEvent:
		s.renderer.Apply(e)
	case event.Finished:
		s.busy = false
		s.renderer.EndInteraction()
		if e.Succeeded() {
			s.log.Info("interaction finished", "interaction", s.interactionID)
		} else {
			s.log.Warn("interaction ended abnormally",
				"interaction", s.interactionID, "status", e.Status, "message", e.Message)
		}
		s.interactionID = ""
	case event.ChatFilesInfo:
		s.chatFiles = e.Summary
	default:
		s.log.Warn("unhandled event type", "type", fmt.Sprintf("%T", ev))
		return
	}
	s.notify()
}

// Begin marks an interaction as in flight and returns its ID. It reports
// false if one is already running.
// Thread-safe.
func (s *Session) Begin() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return "", false
	}
	s.busy = true
	s.interactionID = uuid.NewString()
	s.notify()
	return s.interactionID, true
}

// Abort clears the busy flag without waiting for the backend, for when the
// prompt could not be sent at all.
// Thread-safe.
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	s.interactionID = ""
	s.notify()
}

// Busy reports whether an interaction is in flight.
// Thread-safe.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// TakePrompt removes the operator's input from the live tail, records it in
// the prompt history and returns it. Empty input returns "".
// Thread-safe.
func (s *Session) TakePrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	text := s.buf.Tail()
	if text == "" {
		return ""
	}
	s.ring.Record(text)
	s.buf.ReplaceTail("")
	s.notify()
	return text
}

// RecordPrompt adds text to the prompt history without touching the tail.
// Thread-safe.
func (s *Session) RecordPrompt(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring.Record(text)
}

// CycleHistory replaces the live tail with the next entry in direction d.
// It reports false when there is nothing to recall.
// Thread-safe.
func (s *Session) CycleHistory(d history.Direction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	text, ok := s.ring.Cycle(d)
	if !ok {
		return false
	}
	s.buf.ReplaceTail(text)
	s.notify()
	return true
}

// PromptHistory returns the recorded prompts, empty sentinel first.
// Thread-safe.
func (s *Session) PromptHistory() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.Entries()
}

// Edit runs an operator editing command through the boundary guard.
// A guard.ErrBoundaryViolation leaves the surface unchanged.
// Thread-safe.
func (s *Session) Edit(fn func(g *guard.Guard) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := fn(s.guard)
	s.notify()
	return err
}

// WithSurface runs fn with the surface locked. fn must not retain buf.
func (s *Session) WithSurface(fn func(buf *surface.Buffer)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.buf)
}

// Snapshot is a copy of the state a host needs to draw a session.
type Snapshot struct {
	Key       string
	Segments  []surface.Segment
	Text      string
	Caret     int
	Locked    int
	Tail      string
	ChatFiles string
	Busy      bool
	Tool      string // Tool call currently streaming, if any
}

// Snapshot copies the current state.
// Thread-safe.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	tool, _ := s.renderer.ActiveTool()
	return Snapshot{
		Key:       s.key,
		Segments:  s.buf.Segments(),
		Text:      s.buf.String(),
		Caret:     s.buf.Caret(),
		Locked:    s.buf.Locked(),
		Tail:      s.buf.Tail(),
		ChatFiles: s.chatFiles,
		Busy:      s.busy,
		Tool:      tool,
	}
}

// ChatFiles returns the backend's chat-file summary.
// Thread-safe.
func (s *Session) ChatFiles() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatFiles
}

// ResetTranscript clears the transcript to a fresh prompt. Prompt history
// and the chat-file summary are kept.
// Thread-safe.
func (s *Session) ResetTranscript() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Reset()
	s.renderer.Reset()
	s.freshPrompt()
	s.notify()
}

// Close disposes the session locally. Later events are dropped.
// Thread-safe.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.updates)
	s.log.Debug("session closed")
}

// Closed reports whether Close has been called.
// Thread-safe.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
