// Package engine is the process-scoped context object that ties the session
// registry, the dispatcher and the backend client together.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/zhubert/parley/backend"
	"github.com/zhubert/parley/config"
	"github.com/zhubert/parley/event"
	"github.com/zhubert/parley/logger"
	"github.com/zhubert/parley/manager"
	"github.com/zhubert/parley/session"
	"github.com/zhubert/parley/transcript"
)

var (
	// ErrBusy is returned when a session already has an interaction running.
	ErrBusy = errors.New("interaction already running")
	// ErrNotRunning is returned by Cancel when the session is idle.
	ErrNotRunning = errors.New("no interaction running")
	// ErrEmptyPrompt is returned when there is nothing to send.
	ErrEmptyPrompt = errors.New("empty prompt")
	// ErrNotStarted is returned by calls that need Start first.
	ErrNotStarted = errors.New("engine not started")
)

// CancelNotice is rendered as a warning when the operator cancels.
const CancelNotice = "\n[Interaction cancelled by user.]\n"

// Options configures an Engine beyond what config.Config carries.
type Options struct {
	// Stages run after the built-in final-answer stage for every session.
	Stages []transcript.Stage
}

// Engine owns the registry, the dispatcher and the backend client.
type Engine struct {
	cfg    *config.Config
	client backend.Client
	reg    *manager.SessionRegistry
	log    *slog.Logger

	mu     sync.Mutex // Guards disp, cancel and closed
	disp   *manager.Dispatcher
	cancel context.CancelFunc
	pump   sync.WaitGroup
	closed bool
}

// SessionOptions derives per-session options from cfg. Tool profiles are
// read from the configured tools.yaml, falling back to the embedded defaults.
func SessionOptions(cfg *config.Config, stages []transcript.Stage) (session.Options, error) {
	profilesPath, err := cfg.GetToolProfilesPath()
	if err != nil {
		return session.Options{}, err
	}
	profiles, err := config.LoadToolProfiles(profilesPath)
	if err != nil {
		return session.Options{}, fmt.Errorf("load tool profiles: %w", err)
	}

	tool, field := cfg.GetFinalAnswer()
	width, lines := cfg.GetArgLimits()
	return session.Options{
		Marker: cfg.GetPromptMarker(),
		Render: transcript.Options{
			FinalAnswerTool:  tool,
			FinalAnswerField: field,
			Profiles:         profiles,
			Stages:           stages,
			ArgWidth:         width,
			ArgLines:         lines,
		},
	}, nil
}

// New builds an engine from cfg.
func New(cfg *config.Config, client backend.Client, opts Options) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sessOpts, err := SessionOptions(cfg, opts.Stages)
	if err != nil {
		return nil, err
	}
	factory := func(key string) *session.Session {
		return session.New(key, sessOpts)
	}

	return &Engine{
		cfg:    cfg,
		client: client,
		reg:    manager.NewSessionRegistry(factory),
		log:    logger.WithComponent("engine"),
	}, nil
}

// Start launches the dispatcher and the pump that feeds it backend events.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return errors.New("engine closed")
	}
	if e.disp != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.disp = manager.NewDispatcher(ctx, e.reg, e.cfg.GetQueueSize())

	disp := e.disp
	events := e.client.Events()
	e.pump.Go(func() {
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					e.log.Info("backend event stream closed")
					return
				}
				// Failures are logged by the dispatcher
				_ = disp.Dispatch(ev)
			case <-ctx.Done():
				return
			}
		}
	})
	e.log.Info("engine started")
	return nil
}

// Close stops the pump, the backend client and all workers, then disposes
// every session.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	disp, cancel := e.disp, e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.pump.Wait()

	var errs []error
	if err := e.client.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close backend: %w", err))
	}
	if disp != nil {
		if err := disp.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.reg.Shutdown()
	e.log.Info("engine closed")
	return errors.Join(errs...)
}

func (e *Engine) dispatcher() (*manager.Dispatcher, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disp == nil || e.closed {
		return nil, ErrNotStarted
	}
	return e.disp, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Open returns the session for exactly path, creating it if needed.
func (e *Engine) Open(path string) (*session.Session, error) {
	return e.reg.Open(path)
}

// Lookup returns the session covering path: its own or its nearest
// ancestor's. It never creates one.
func (e *Engine) Lookup(path string) (*session.Session, error) {
	return e.reg.Resolve(path, manager.ResolveOptions{})
}

// Sessions returns the keys of the live sessions.
func (e *Engine) Sessions() []string {
	return e.reg.Keys()
}

// CloseSession disposes the session at exactly path and stops its worker.
// The backend keeps its history for the path.
func (e *Engine) CloseSession(path string) error {
	sess, ok := e.reg.Get(path)
	if !ok {
		key, err := manager.Canonical(path)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", manager.ErrSessionNotFound, key)
	}
	// Closed first so the dispatcher refuses to start a new worker for it.
	if err := e.reg.Close(path); err != nil {
		return err
	}
	if disp, err := e.dispatcher(); err == nil {
		disp.Stop(sess)
	}
	return nil
}

// local routes an event produced on this side through the session's worker
// so it is ordered with backend events.
func (e *Engine) local(ev event.Event) error {
	disp, err := e.dispatcher()
	if err != nil {
		return err
	}
	return disp.Dispatch(ev)
}

// Sync waits until every event queued for sess has been applied.
func (e *Engine) Sync(ctx context.Context, sess *session.Session) error {
	disp, err := e.dispatcher()
	if err != nil {
		return err
	}
	return disp.Sync(ctx, sess.Key())
}

// Submit takes the operator's input from the session's live tail and sends
// it. Blank input returns ErrEmptyPrompt.
func (e *Engine) Submit(sess *session.Session) error {
	if sess.Busy() {
		return ErrBusy
	}
	prompt := sess.TakePrompt()
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}
	return e.start(sess, prompt, func() error {
		return e.client.StartInteraction(sess.Key(), prompt)
	})
}

// Send sends prompt in sess as if the operator had typed it, recording it
// in the prompt history.
func (e *Engine) Send(sess *session.Session, prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}
	if sess.Busy() {
		return ErrBusy
	}
	sess.RecordPrompt(prompt)
	return e.start(sess, prompt, func() error {
		return e.client.StartInteraction(sess.Key(), prompt)
	})
}

// ResendEdited replaces the backend's history for sess with prior and sends
// prompt as the next user turn.
func (e *Engine) ResendEdited(sess *session.Session, prior []config.Message, prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}
	for i, m := range prior {
		if m.Role == "" {
			return fmt.Errorf("history message %d: missing role", i)
		}
	}
	return e.start(sess, prompt, func() error {
		return e.client.SetHistoryAndSend(sess.Key(), prior, prompt)
	})
}

// start marks sess busy, echoes the prompt and runs send. A send failure
// clears busy and is rendered as an error.
func (e *Engine) start(sess *session.Session, prompt string, send func() error) error {
	id, ok := sess.Begin()
	if !ok {
		return ErrBusy
	}
	log := logger.WithSession(sess.Key()).With("interaction", id)

	if err := e.local(event.ContentEvent{
		Key:     sess.Key(),
		Role:    event.RoleUser,
		Content: fmt.Sprintf("\n\nUser:\n%s\n", prompt),
	}); err != nil {
		sess.Abort()
		return err
	}

	if err := send(); err != nil {
		log.Error("failed to send prompt", "error", err)
		sess.Abort()
		e.local(event.ContentEvent{
			Key:     sess.Key(),
			Role:    event.RoleError,
			Content: fmt.Sprintf("[Error: Failed to send message to backend (%v)]", err),
		})
		return err
	}
	log.Info("interaction started", "promptLen", len(prompt))
	return nil
}

// Cancel stops the running interaction in sess. The partial transcript is
// left as rendered.
func (e *Engine) Cancel(sess *session.Session) error {
	if !sess.Busy() {
		return ErrNotRunning
	}
	if err := e.client.CancelInteraction(sess.Key()); err != nil {
		return err
	}
	e.local(event.ContentEvent{Key: sess.Key(), Role: event.RoleWarning, Content: CancelNotice})
	e.local(event.Finished{Key: sess.Key(), Status: event.StatusCancelled})
	return nil
}

// AddFile adds path to the chat context of sess.
func (e *Engine) AddFile(sess *session.Session, path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: empty file path", manager.ErrInvalidPath)
	}
	return e.client.AddFile(sess.Key(), path)
}

// RemoveFile removes path from the chat context of sess.
func (e *Engine) RemoveFile(sess *session.Session, path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: empty file path", manager.ErrInvalidPath)
	}
	return e.client.RemoveFile(sess.Key(), path)
}

// ChatFiles asks the backend which files are in the chat context of sess.
func (e *Engine) ChatFiles(ctx context.Context, sess *session.Session) ([]string, error) {
	return e.client.GetChatFiles(ctx, sess.Key())
}

// History fetches the backend's message history for sess.
func (e *Engine) History(ctx context.Context, sess *session.Session) ([]config.HistoryEntry, error) {
	return e.client.GetHistory(ctx, sess.Key())
}

// ExportHistory writes the history of sess to w as JSON.
func (e *Engine) ExportHistory(ctx context.Context, sess *session.Session, w io.Writer) error {
	entries, err := e.History(ctx, sess)
	if err != nil {
		return err
	}
	return config.WriteHistory(w, entries)
}

// ClearHistory asks the backend to drop the history of sess. When it does,
// the local transcript is reset to a fresh prompt.
func (e *Engine) ClearHistory(ctx context.Context, sess *session.Session) (bool, error) {
	ok, err := e.client.ClearHistory(ctx, sess.Key())
	if err != nil || !ok {
		return ok, err
	}
	if err := e.Sync(ctx, sess); err != nil && !errors.Is(err, ErrNotStarted) {
		return true, err
	}
	sess.ResetTranscript()
	logger.WithSession(sess.Key()).Info("history cleared")
	return true, nil
}
