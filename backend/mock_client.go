package backend

import (
	"context"
	"slices"
	"sync"

	"github.com/zhubert/parley/config"
	"github.com/zhubert/parley/event"
)

// Call records one fire-and-forget call made on a MockClient.
type Call struct {
	Method string
	Key    string
	Arg    string           // prompt or path
	Prior  []config.Message // set_history_and_send only
}

// MockClient is a test double for Client that never touches a connection.
// Tests emit events with Emit and preload synchronous answers.
type MockClient struct {
	mu sync.RWMutex

	calls     []Call
	chatFiles map[string][]string
	history   map[string][]config.HistoryEntry
	cleared   bool

	// Err, when set, is returned by every call.
	Err error

	events  chan event.Event
	stopped bool
}

// NewMockClient creates a mock client whose ClearHistory reports true.
func NewMockClient() *MockClient {
	return &MockClient{
		chatFiles: make(map[string][]string),
		history:   make(map[string][]config.HistoryEntry),
		cleared:   true,
		events:    make(chan event.Event, DefaultEventBuffer),
	}
}

// Emit delivers ev as if the backend had sent it. Ignored after Close.
func (m *MockClient) Emit(ev event.Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.stopped {
		return
	}
	m.events <- ev
}

// SetChatFiles sets the answer to GetChatFiles for key.
func (m *MockClient) SetChatFiles(key string, files []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chatFiles[key] = files
}

// SetHistory sets the answer to GetHistory for key.
func (m *MockClient) SetHistory(key string, entries []config.HistoryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[key] = entries
}

// SetClearResult sets what ClearHistory reports.
func (m *MockClient) SetClearResult(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared = ok
}

// Calls returns the fire-and-forget calls made so far.
func (m *MockClient) Calls() []Call {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.calls)
}

func (m *MockClient) record(c Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.calls = append(m.calls, c)
	return nil
}

func (m *MockClient) StartInteraction(key, prompt string) error {
	return m.record(Call{Method: MethodStartInteraction, Key: key, Arg: prompt})
}

func (m *MockClient) CancelInteraction(key string) error {
	return m.record(Call{Method: MethodCancelInteraction, Key: key})
}

func (m *MockClient) AddFile(key, path string) error {
	return m.record(Call{Method: MethodAddFile, Key: key, Arg: path})
}

func (m *MockClient) RemoveFile(key, path string) error {
	return m.record(Call{Method: MethodRemoveFile, Key: key, Arg: path})
}

func (m *MockClient) SetHistoryAndSend(key string, prior []config.Message, prompt string) error {
	return m.record(Call{Method: MethodSetHistoryAndSend, Key: key, Arg: prompt, Prior: slices.Clone(prior)})
}

func (m *MockClient) GetChatFiles(ctx context.Context, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return slices.Clone(m.chatFiles[key]), nil
}

func (m *MockClient) GetHistory(ctx context.Context, key string) ([]config.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return slices.Clone(m.history[key]), nil
}

func (m *MockClient) ClearHistory(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	if m.cleared {
		delete(m.history, key)
	}
	return m.cleared, nil
}

func (m *MockClient) Events() <-chan event.Event {
	return m.events
}

func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.stopped {
		m.stopped = true
		close(m.events)
	}
	return nil
}

// Ensure MockClient implements Client at compile time.
var _ Client = (*MockClient)(nil)
