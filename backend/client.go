// Package backend speaks to the agent backend over a JSON-lines link.
//
// The backend streams transcript fragments tagged with a session key and
// answers a small set of synchronous queries. Calls made before a connection
// is attached are held in a single pending slot and flushed on Attach.
package backend

import (
	"context"
	"errors"

	"github.com/zhubert/parley/config"
	"github.com/zhubert/parley/event"
)

var (
	// ErrBackendUnavailable is returned by synchronous calls while no
	// connection is attached, or when the connection drops mid-call.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrAlreadyAttached is returned by Attach when a connection is live.
	ErrAlreadyAttached = errors.New("backend already attached")
	// ErrCallFailed wraps an error string returned in a reply.
	ErrCallFailed = errors.New("backend call failed")
)

// Client is the set of calls a host makes against the backend.
// This allows for mock implementations in tests.
type Client interface {
	// Fire-and-forget
	StartInteraction(key, prompt string) error
	CancelInteraction(key string) error
	AddFile(key, path string) error
	RemoveFile(key, path string) error
	SetHistoryAndSend(key string, prior []config.Message, prompt string) error

	// Synchronous
	GetChatFiles(ctx context.Context, key string) ([]string, error)
	GetHistory(ctx context.Context, key string) ([]config.HistoryEntry, error)
	ClearHistory(ctx context.Context, key string) (bool, error)

	// Events delivers inbound events in arrival order.
	Events() <-chan event.Event

	Close() error
}

// Ensure Link implements Client at compile time.
var _ Client = (*Link)(nil)
