package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zhubert/parley/config"
	"github.com/zhubert/parley/event"
)

// peer is the backend side of a net.Pipe.
type peer struct {
	conn net.Conn
	reqs chan Request
}

func (p *peer) read() {
	defer close(p.reqs)
	scanner := bufio.NewScanner(p.conn)
	for scanner.Scan() {
		var req Request
		if json.Unmarshal(scanner.Bytes(), &req) == nil {
			p.reqs <- req
		}
	}
}

func (p *peer) writeLine(t *testing.T, line string) {
	t.Helper()
	_, err := p.conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func (p *peer) next(t *testing.T) Request {
	t.Helper()
	select {
	case req, ok := <-p.reqs:
		require.True(t, ok, "connection closed before request")
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for request")
		return Request{}
	}
}

func newPeer() (net.Conn, *peer) {
	a, b := net.Pipe()
	p := &peer{conn: b, reqs: make(chan Request, 16)}
	go p.read()
	return a, p
}

// attached returns a link attached to a fresh peer and a func that closes both.
func attached(t *testing.T) (*Link, *peer, func()) {
	t.Helper()
	conn, p := newPeer()
	l := NewLink(LinkOptions{CallTimeout: 2 * time.Second})
	require.NoError(t, l.Attach(conn))
	return l, p, func() {
		l.Close()
		p.conn.Close()
	}
}

func nextEvent(t *testing.T, l *Link) event.Event {
	t.Helper()
	select {
	case ev := <-l.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestPendingSlotLastWriteWins(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := NewLink(LinkOptions{})
	require.NoError(t, l.StartInteraction("/p", "first"))
	require.NoError(t, l.AddFile("/p", "main.go"))

	conn, p := newPeer()
	defer p.conn.Close()
	defer l.Close()
	require.NoError(t, l.Attach(conn))

	req := p.next(t)
	assert.Equal(t, MethodAddFile, req.Method)
	assert.Equal(t, "/p", req.Session)
	assert.NotEmpty(t, req.ID)

	require.NoError(t, l.StartInteraction("/p", "second"))
	req = p.next(t)
	assert.Equal(t, MethodStartInteraction, req.Method)
	assert.Equal(t, map[string]any{"prompt": "second"}, req.Params)
}

func TestAttachTwice(t *testing.T) {
	defer goleak.VerifyNone(t)

	l, _, done := attached(t)
	defer done()

	other, p2 := newPeer()
	defer p2.conn.Close()
	defer other.Close()
	assert.ErrorIs(t, l.Attach(other), ErrAlreadyAttached)
}

func TestSyncCallWhileDetached(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := NewLink(LinkOptions{})
	defer l.Close()

	_, err := l.GetChatFiles(context.Background(), "/p")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	_, err = l.GetHistory(context.Background(), "/p")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	_, err = l.ClearHistory(context.Background(), "/p")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestSyncCallRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)

	l, p, done := attached(t)
	defer done()

	go func() {
		req := <-p.reqs
		p.conn.Write([]byte(`{"type":"reply","id":"` + req.ID + `","result":["a.go","b.go"]}` + "\n"))
		req = <-p.reqs
		p.conn.Write([]byte(`{"type":"reply","id":"` + req.ID + `","result":[[1700000000.5,{"role":"user","content":"hi"}]]}` + "\n"))
		req = <-p.reqs
		p.conn.Write([]byte(`{"type":"reply","id":"` + req.ID + `","result":true}` + "\n"))
	}()

	files, err := l.GetChatFiles(context.Background(), "/p")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go", "b.go"}, files)

	hist, err := l.GetHistory(context.Background(), "/p")
	require.NoError(t, err)
	assert.Equal(t, []config.HistoryEntry{{Timestamp: 1700000000.5, Role: "user", Content: "hi"}}, hist)

	ok, err := l.ClearHistory(context.Background(), "/p")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSyncCallReplyError(t *testing.T) {
	defer goleak.VerifyNone(t)

	l, p, done := attached(t)
	defer done()

	go func() {
		req := <-p.reqs
		p.conn.Write([]byte(`{"type":"reply","id":"` + req.ID + `","error":"no such session"}` + "\n"))
	}()

	_, err := l.GetHistory(context.Background(), "/p")
	assert.ErrorIs(t, err, ErrCallFailed)
	assert.Contains(t, err.Error(), "no such session")
}

func TestSyncCallTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	l, _, done := attached(t)
	defer done()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := l.GetChatFiles(ctx, "/p")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDisconnectFailsOutstandingCalls(t *testing.T) {
	defer goleak.VerifyNone(t)

	l, p, done := attached(t)
	defer done()

	go func() {
		<-p.reqs
		p.conn.Close()
	}()

	_, err := l.ClearHistory(context.Background(), "/p")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.False(t, l.Attached())
}

func TestInboundEvents(t *testing.T) {
	defer goleak.VerifyNone(t)

	l, p, done := attached(t)
	defer done()

	p.writeLine(t, `not json at all`)
	p.writeLine(t, `{"type":"stream","session":"/p","role":"tool_json_start","tool_name":"read_file","tool_id":"t1"}`)
	p.writeLine(t, `{"type":"stream","session":"/p","role":"llm","content":"hello"}`)
	p.writeLine(t, `{"type":"stream","session":"/p","role":"???","content":"dropped"}`)
	p.writeLine(t, `{"type":"error","session":"/p","message":"boom"}`)
	p.writeLine(t, `{"type":"chat_files","session":"/p","info":"2 files [1520 tokens]"}`)
	p.writeLine(t, `{"type":"finished","session":"/p","status":"llm_error","message":"rate limited"}`)

	want := []event.Event{
		event.ContentEvent{Key: "/p", Role: event.RoleToolJSONStart, ToolName: "read_file", ToolID: "t1"},
		event.ContentEvent{Key: "/p", Role: event.RoleAssistant, Content: "hello"},
		event.ContentEvent{Key: "/p", Role: event.RoleError, Content: "[Backend Error: boom]"},
		event.Finished{Key: "/p", Status: event.StatusError, Message: "boom"},
		event.ChatFilesInfo{Key: "/p", Summary: "2 files [1520 tokens]"},
		event.Finished{Key: "/p", Status: "llm_error", Message: "rate limited"},
	}
	for _, w := range want {
		assert.Equal(t, w, nextEvent(t, l))
	}
}

func TestStreamLogCapturesLines(t *testing.T) {
	defer goleak.VerifyNone(t)

	var log strings.Builder
	conn, p := newPeer()
	l := NewLink(LinkOptions{StreamLog: &log})
	require.NoError(t, l.Attach(conn))

	p.writeLine(t, `{"type":"stream","session":"/p","role":"user","content":"x"}`)
	nextEvent(t, l)
	l.Close()
	p.conn.Close()

	assert.Equal(t, `{"type":"stream","session":"/p","role":"user","content":"x"}`+"\n", log.String())
}

func TestCloseIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	l, p, _ := attached(t)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	p.conn.Close()

	_, open := <-l.Events()
	assert.False(t, open)
	assert.ErrorIs(t, l.StartInteraction("/p", "late"), ErrBackendUnavailable)
}

func TestSetHistoryAndSendParams(t *testing.T) {
	defer goleak.VerifyNone(t)

	l, p, done := attached(t)
	defer done()

	prior := []config.Message{{Role: "user", Content: "q"}, {Role: "assistant", Content: "a"}}
	require.NoError(t, l.SetHistoryAndSend("/p", prior, "again"))

	req := p.next(t)
	assert.Equal(t, MethodSetHistoryAndSend, req.Method)
	params := req.Params.(map[string]any)
	assert.Equal(t, "again", params["prompt"])
	assert.Len(t, params["history"], 2)
}

func TestBlockedWriteDoesNotDelayReplies(t *testing.T) {
	defer goleak.VerifyNone(t)

	conn, backendSide := net.Pipe()
	l := NewLink(LinkOptions{CallTimeout: 2 * time.Second})
	require.NoError(t, l.Attach(conn))
	defer backendSide.Close()
	defer l.Close()

	reader := bufio.NewReader(backendSide)

	type result struct {
		files []string
		err   error
	}
	got := make(chan result, 1)
	go func() {
		files, err := l.GetChatFiles(context.Background(), "/p")
		got <- result{files, err}
	}()

	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	var req Request
	require.NoError(t, json.Unmarshal([]byte(line), &req))
	require.Equal(t, MethodGetChatFiles, req.Method)

	// Nobody reads the backend side now, so this write blocks.
	sent := make(chan error, 1)
	go func() { sent <- l.StartInteraction("/p", "hello") }()
	time.Sleep(50 * time.Millisecond)

	_, err = backendSide.Write([]byte(`{"type":"reply","id":"` + req.ID + `","result":["a.go"]}` + "\n"))
	require.NoError(t, err)

	select {
	case r := <-got:
		require.NoError(t, r.err)
		assert.Equal(t, []string{"a.go"}, r.files)
	case <-time.After(time.Second):
		t.Fatal("reply was held up by a blocked write")
	}

	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, MethodStartInteraction)
	require.NoError(t, <-sent)
}
