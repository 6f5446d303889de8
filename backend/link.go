package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhubert/parley/config"
	"github.com/zhubert/parley/event"
	"github.com/zhubert/parley/logger"
)

// Link constants
const (
	// DefaultEventBuffer is the length of the Events channel.
	DefaultEventBuffer = 256

	// maxLineSize bounds a single inbound line. Tool payloads can be large.
	maxLineSize = 16 * 1024 * 1024
)

// LinkOptions configures a Link.
type LinkOptions struct {
	// CallTimeout bounds synchronous calls whose context has no deadline.
	CallTimeout time.Duration
	EventBuffer int
	// StreamLog, when set, receives every raw inbound line.
	StreamLog io.Writer
}

type reply struct {
	result json.RawMessage
	err    error
}

// Link is a Client over one io.ReadWriteCloser carrying JSON lines.
//
// Thread Safety:
// All methods are safe for concurrent use. Writes are serialized by wmu and
// never happen under mu, so a slow peer cannot hold up reply delivery.
type Link struct {
	wmu sync.Mutex // Serializes writes to conn; taken before mu, never after

	mu      sync.Mutex // Guards conn, pending, calls and closed
	conn    io.ReadWriteCloser
	pending *Request // Most recent fire-and-forget call made while detached
	calls   map[string]chan reply
	closed  bool

	opts   LinkOptions
	events chan event.Event
	done   chan struct{}
	wg     sync.WaitGroup
	log    *slog.Logger
}

// NewLink creates a detached link.
func NewLink(opts LinkOptions) *Link {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = config.DefaultCallTimeout
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	return &Link{
		calls:  make(map[string]chan reply),
		opts:   opts,
		events: make(chan event.Event, opts.EventBuffer),
		done:   make(chan struct{}),
		log:    logger.WithComponent("backend"),
	}
}

// Attach starts reading from conn and flushes the pending call, if any.
// The link takes ownership of conn.
func (l *Link) Attach(conn io.ReadWriteCloser) error {
	// Held across the flush so later sends are written after the pending call.
	l.wmu.Lock()
	defer l.wmu.Unlock()

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrBackendUnavailable
	}
	if l.conn != nil {
		l.mu.Unlock()
		return ErrAlreadyAttached
	}
	l.conn = conn
	req := l.pending
	l.pending = nil
	l.wg.Add(1)
	l.mu.Unlock()

	l.log.Info("attached")
	go l.readLoop(conn)

	if req != nil {
		l.log.Debug("flushing pending call", "method", req.Method, "session", req.Session)
		if err := writeRequest(conn, req); err != nil {
			l.log.Error("failed to flush pending call", "method", req.Method, "error", err)
		}
	}
	return nil
}

// Attached reports whether a connection is live.
func (l *Link) Attached() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

// Events delivers inbound events in arrival order. It is closed by Close.
func (l *Link) Events() <-chan event.Event {
	return l.events
}

func (l *Link) readLoop(conn io.ReadWriteCloser) {
	defer l.wg.Done()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		if l.opts.StreamLog != nil {
			fmt.Fprintln(l.opts.StreamLog, line)
		}
		l.handleLine(line)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		l.log.Warn("read error", "error", err)
	}
	l.detach(conn)
}

func (l *Link) handleLine(line string) {
	msg, err := ParseLine(line)
	if err != nil {
		l.log.Warn("skipping malformed line", "error", err, "line", truncateForLog(line))
		return
	}
	if msg == nil {
		return
	}

	if msg.Type == MessageTypeReply {
		l.deliverReply(msg)
		return
	}

	for _, ev := range msg.ToEvents(l.log) {
		select {
		case l.events <- ev:
		case <-l.done:
			return
		}
	}
}

func (l *Link) deliverReply(msg *Inbound) {
	l.mu.Lock()
	ch, ok := l.calls[msg.ID]
	delete(l.calls, msg.ID)
	l.mu.Unlock()

	if !ok {
		l.log.Warn("reply for unknown call", "id", msg.ID)
		return
	}
	r := reply{result: msg.Result}
	if msg.Error != "" {
		r.err = fmt.Errorf("%w: %s", ErrCallFailed, msg.Error)
	}
	ch <- r
}

// detach forgets conn and fails every outstanding call.
func (l *Link) detach(conn io.ReadWriteCloser) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != conn {
		return
	}
	conn.Close()
	l.conn = nil
	for id, ch := range l.calls {
		ch <- reply{err: ErrBackendUnavailable}
		delete(l.calls, id)
	}
	if !l.closed {
		l.log.Warn("backend disconnected")
	}
}

// write encodes req as one line on conn. Caller must not hold mu.
func (l *Link) write(conn io.Writer, req *Request) error {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	return writeRequest(conn, req)
}

func writeRequest(w io.Writer, req *Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write %s request: %w", req.Method, err)
	}
	return nil
}

// send writes a fire-and-forget call, or parks it in the pending slot while
// detached. A newer call displaces an older pending one.
func (l *Link) send(method, key string, params any) error {
	req := &Request{ID: uuid.New().String(), Method: method, Session: key, Params: params}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrBackendUnavailable
	}
	conn := l.conn
	if conn == nil {
		if prev := l.pending; prev != nil {
			l.log.Warn("pending call displaced before attach",
				"dropped", prev.Method, "droppedSession", prev.Session,
				"method", method, "session", key)
		}
		l.pending = req
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	return l.write(conn, req)
}

// call performs a synchronous request and decodes the result into out.
func (l *Link) call(ctx context.Context, method, key string, out any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.CallTimeout)
		defer cancel()
	}

	req := &Request{ID: uuid.New().String(), Method: method, Session: key}
	ch := make(chan reply, 1)

	l.mu.Lock()
	if l.closed || l.conn == nil {
		l.mu.Unlock()
		return ErrBackendUnavailable
	}
	l.calls[req.ID] = ch
	conn := l.conn
	l.mu.Unlock()

	if err := l.write(conn, req); err != nil {
		l.forget(req.ID)
		return err
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return fmt.Errorf("%s: %w", method, r.err)
		}
		if out == nil || len(r.result) == 0 {
			return nil
		}
		if err := json.Unmarshal(r.result, out); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		l.forget(req.ID)
		l.log.Warn("call timed out", "method", method, "session", key, "error", ctx.Err())
		return fmt.Errorf("%s: %w", method, ctx.Err())
	case <-l.done:
		return ErrBackendUnavailable
	}
}

func (l *Link) forget(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.calls, id)
}

// StartInteraction asks the backend to answer prompt in session key.
func (l *Link) StartInteraction(key, prompt string) error {
	return l.send(MethodStartInteraction, key, promptParams{Prompt: prompt})
}

// CancelInteraction asks the backend to stop the running interaction.
func (l *Link) CancelInteraction(key string) error {
	return l.send(MethodCancelInteraction, key, nil)
}

// AddFile adds path to the session's chat context.
func (l *Link) AddFile(key, path string) error {
	return l.send(MethodAddFile, key, pathParams{Path: path})
}

// RemoveFile removes path from the session's chat context.
func (l *Link) RemoveFile(key, path string) error {
	return l.send(MethodRemoveFile, key, pathParams{Path: path})
}

// SetHistoryAndSend replaces the session's history with prior and then sends
// prompt as a new user turn.
func (l *Link) SetHistoryAndSend(key string, prior []config.Message, prompt string) error {
	if prior == nil {
		prior = []config.Message{}
	}
	return l.send(MethodSetHistoryAndSend, key, historyParams{History: prior, Prompt: prompt})
}

// GetChatFiles returns the paths in the session's chat context.
func (l *Link) GetChatFiles(ctx context.Context, key string) ([]string, error) {
	var files []string
	if err := l.call(ctx, MethodGetChatFiles, key, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// GetHistory returns the session's message history.
func (l *Link) GetHistory(ctx context.Context, key string) ([]config.HistoryEntry, error) {
	var entries []config.HistoryEntry
	if err := l.call(ctx, MethodGetHistory, key, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ClearHistory asks the backend to drop the session's history. It reports
// whether the backend did so.
func (l *Link) ClearHistory(ctx context.Context, key string) (bool, error) {
	var ok bool
	if err := l.call(ctx, MethodClearHistory, key, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

// Close detaches, fails outstanding calls, waits for the reader and closes
// Events. The pending call, if any, is discarded.
func (l *Link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.done)
	conn := l.conn
	if l.pending != nil {
		l.log.Debug("discarding pending call", "method", l.pending.Method)
		l.pending = nil
	}
	l.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	l.wg.Wait()
	close(l.events)
	l.log.Info("closed")
	return err
}
