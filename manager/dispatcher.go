package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/zhubert/parley/event"
	"github.com/zhubert/parley/logger"
	"github.com/zhubert/parley/session"
)

// ErrDispatcherClosed is returned by Dispatch after Close.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// DefaultQueueSize is the per-session queue length when none is given.
const DefaultQueueSize = 256

// Dispatcher routes events to sessions. Each live session gets one worker
// goroutine that applies its events in arrival order; different sessions
// proceed concurrently.
type Dispatcher struct {
	reg       *SessionRegistry
	queueSize int
	log       *slog.Logger

	mu      sync.Mutex
	workers map[*session.Session]*worker
	g       *errgroup.Group
	ctx     context.Context
	cancel  context.CancelFunc
	closed  bool
}

type worker struct {
	sess  *session.Session
	queue chan event.Event
	done  chan struct{}
}

// barrier is queued by Sync; the worker closes it instead of applying it.
type barrier struct {
	key string
	ch  chan struct{}
}

func (b barrier) SessionKey() string { return b.key }

// NewDispatcher creates a dispatcher over reg. Workers run under ctx.
func NewDispatcher(ctx context.Context, reg *SessionRegistry, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	return &Dispatcher{
		reg:       reg,
		queueSize: queueSize,
		log:       logger.WithComponent("dispatcher"),
		workers:   make(map[*session.Session]*worker),
		g:         g,
		ctx:       gctx,
		cancel:    cancel,
	}
}

// Dispatch queues ev for its session. Events for a key no live session covers
// are dropped with a warning and ErrSessionNotFound. Dispatch blocks while the
// session's queue is full: events are never dropped for a live session, so a
// caller feeding several sessions from one loop stalls with the slowest.
func (d *Dispatcher) Dispatch(ev event.Event) error {
	sess, err := d.reg.Resolve(ev.SessionKey(), ResolveOptions{})
	if err != nil {
		d.log.Warn("dropping event", "session", ev.SessionKey(), "error", err)
		return err
	}

	w, err := d.workerFor(sess)
	if err != nil {
		return err
	}

	select {
	case w.queue <- ev:
		return nil
	default:
	}

	d.log.Warn("session queue full, waiting", "session", sess.Key(), "size", d.queueSize)
	select {
	case w.queue <- ev:
		return nil
	case <-w.done:
		d.log.Warn("dropping event for stopped session", "session", sess.Key())
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sess.Key())
	case <-d.ctx.Done():
		return ErrDispatcherClosed
	}
}

// workerFor returns the worker for sess, starting one if needed. Stop runs
// after the session is closed, so checking Closed under mu means no worker
// outlives its session.
func (d *Dispatcher) workerFor(sess *session.Session) (*worker, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrDispatcherClosed
	}
	if w, ok := d.workers[sess]; ok {
		return w, nil
	}
	// A session closed after Resolve found it must not get a worker that
	// Stop has already run for.
	if sess.Closed() {
		d.log.Warn("dropping event for closed session", "session", sess.Key())
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sess.Key())
	}

	w := &worker{
		sess:  sess,
		queue: make(chan event.Event, d.queueSize),
		done:  make(chan struct{}),
	}
	d.workers[sess] = w
	d.g.Go(func() error {
		d.run(w)
		return nil
	})
	d.log.Debug("worker started", "session", sess.Key())
	return w, nil
}

func (d *Dispatcher) run(w *worker) {
	for {
		select {
		case ev := <-w.queue:
			if b, ok := ev.(barrier); ok {
				close(b.ch)
				continue
			}
			w.sess.Apply(ev)
		case <-w.done:
			return
		case <-d.ctx.Done():
			return
		}
	}
}

// Sync blocks until every event queued for key before the call has been
// applied, or ctx ends.
func (d *Dispatcher) Sync(ctx context.Context, key string) error {
	b := barrier{key: key, ch: make(chan struct{})}
	if err := d.Dispatch(b); err != nil {
		return err
	}
	select {
	case <-b.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop ends the worker for sess. Events still queued are discarded.
func (d *Dispatcher) Stop(sess *session.Session) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if w, ok := d.workers[sess]; ok {
		close(w.done)
		delete(d.workers, sess)
		d.log.Debug("worker stopped", "session", sess.Key())
	}
}

// Workers returns the number of running workers.
func (d *Dispatcher) Workers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.workers)
}

// Close stops all workers and waits for them to exit.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.workers = make(map[*session.Session]*worker)
	d.mu.Unlock()

	d.cancel()
	return d.g.Wait()
}
