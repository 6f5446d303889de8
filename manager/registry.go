// Package manager owns the live sessions: the registry mapping project paths
// to sessions, and the dispatcher that feeds each session its events.
package manager

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/zhubert/parley/logger"
	"github.com/zhubert/parley/session"
)

var (
	// ErrInvalidPath is returned for an empty or unresolvable path.
	ErrInvalidPath = errors.New("invalid session path")
	// ErrSessionNotFound is returned when no session covers a path.
	ErrSessionNotFound = errors.New("session not found")
)

// SessionFactory creates the session for a canonical key.
// This allows tests and hosts to choose session options.
type SessionFactory func(key string) *session.Session

// ResolveOptions controls Resolve.
type ResolveOptions struct {
	// CreateIfMissing creates a session at the path when neither it nor any
	// ancestor has one.
	CreateIfMissing bool
}

// Canonical returns the session key for path: absolute, cleaned, with a
// leading ~ expanded and symlinks resolved when the path exists.
func Canonical(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidPath, path, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return filepath.Clean(abs), nil
}

// isAncestor reports whether dir is a proper ancestor of path. Both must be
// canonical.
func isAncestor(dir, path string) bool {
	if dir == path {
		return false
	}
	if dir == string(filepath.Separator) {
		return strings.HasPrefix(path, dir)
	}
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}

// SessionRegistry maps canonical project paths to sessions.
// This is safe to call concurrently from multiple goroutines.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
	factory  SessionFactory
	log      *slog.Logger
}

// NewSessionRegistry creates an empty registry. A nil factory creates
// sessions with session.DefaultOptions.
func NewSessionRegistry(factory SessionFactory) *SessionRegistry {
	if factory == nil {
		factory = func(key string) *session.Session {
			return session.New(key, session.DefaultOptions())
		}
	}
	return &SessionRegistry{
		sessions: make(map[string]*session.Session),
		factory:  factory,
		log:      logger.WithComponent("registry"),
	}
}

// lookupLocked finds the session for key by exact match, then by the deepest
// ancestor. Caller must hold mu.
func (r *SessionRegistry) lookupLocked(key string) (*session.Session, bool) {
	if sess, ok := r.sessions[key]; ok {
		return sess, true
	}
	best := ""
	for k := range r.sessions {
		if isAncestor(k, key) && len(k) > len(best) {
			best = k
		}
	}
	if best == "" {
		return nil, false
	}
	return r.sessions[best], true
}

// Resolve returns the session for path: an exact match, else the session of
// the deepest ancestor directory, else a new session when
// opts.CreateIfMissing is set.
// Uses double-checked locking so concurrent first access creates one session.
func (r *SessionRegistry) Resolve(path string, opts ResolveOptions) (*session.Session, error) {
	key, err := Canonical(path)
	if err != nil {
		return nil, err
	}

	// Fast path: check with read lock
	r.mu.RLock()
	sess, ok := r.lookupLocked(key)
	r.mu.RUnlock()
	if ok {
		return sess, nil
	}

	if !opts.CreateIfMissing {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}

	// Slow path: acquire write lock and double-check before creating
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.lookupLocked(key); ok {
		return sess, nil
	}
	return r.createLocked(key), nil
}

// Open returns the session whose key is exactly canonical(path), creating it
// if needed. Unlike Resolve it never falls back to an ancestor.
func (r *SessionRegistry) Open(path string) (*session.Session, error) {
	key, err := Canonical(path)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	sess, ok := r.sessions[key]
	r.mu.RUnlock()
	if ok {
		return sess, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[key]; ok {
		return sess, nil
	}
	return r.createLocked(key), nil
}

// createLocked registers a new session. Caller must hold mu for writing.
func (r *SessionRegistry) createLocked(key string) *session.Session {
	sess := r.factory(key)
	r.sessions[key] = sess
	r.log.Info("session created", "session", key, "count", len(r.sessions))
	return sess
}

// Get returns the session registered exactly at path.
func (r *SessionRegistry) Get(path string) (*session.Session, bool) {
	key, err := Canonical(path)
	if err != nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[key]
	return sess, ok
}

// Keys returns the registered keys in sorted order.
func (r *SessionRegistry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.sessions))
	for k := range r.sessions {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close removes the session registered exactly at path and disposes it. The
// backend is not told; its history for the path survives.
func (r *SessionRegistry) Close(path string) error {
	key, err := Canonical(path)
	if err != nil {
		return err
	}

	r.mu.Lock()
	sess, ok := r.sessions[key]
	if ok {
		delete(r.sessions, key)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	sess.Close()
	r.log.Info("session closed", "session", key)
	return nil
}

// Shutdown disposes every session.
func (r *SessionRegistry) Shutdown() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*session.Session)
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
	r.log.Debug("registry shut down", "closed", len(sessions))
}
