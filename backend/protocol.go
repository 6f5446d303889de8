package backend

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zhubert/parley/config"
	"github.com/zhubert/parley/event"
)

// Method names for outbound requests.
const (
	MethodStartInteraction  = "start_interaction"
	MethodCancelInteraction = "cancel_interaction"
	MethodAddFile           = "add_file"
	MethodRemoveFile        = "remove_file"
	MethodSetHistoryAndSend = "set_history_and_send"
	MethodGetChatFiles      = "get_chat_files"
	MethodGetHistory        = "get_history"
	MethodClearHistory      = "clear_history"
)

// MessageType identifies an inbound message.
type MessageType string

const (
	MessageTypeStream    MessageType = "stream"
	MessageTypeFinished  MessageType = "finished"
	MessageTypeError     MessageType = "error"
	MessageTypeChatFiles MessageType = "chat_files"
	MessageTypeReply     MessageType = "reply"
)

// Request is one outbound line.
type Request struct {
	ID      string `json:"id"`
	Method  string `json:"method"`
	Session string `json:"session"`
	Params  any    `json:"params,omitempty"`
}

// Inbound is one line from the backend. Which fields are set depends on Type.
type Inbound struct {
	Type    MessageType `json:"type"`
	Session string      `json:"session,omitempty"`

	// stream
	Role     string `json:"role,omitempty"`
	Content  string `json:"content,omitempty"`
	ToolID   string `json:"tool_id,omitempty"`
	ToolName string `json:"tool_name,omitempty"`

	// finished, error
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`

	// chat_files
	Info string `json:"info,omitempty"`

	// reply
	ID     string          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type promptParams struct {
	Prompt string `json:"prompt"`
}

type pathParams struct {
	Path string `json:"path"`
}

type historyParams struct {
	History []config.Message `json:"history"`
	Prompt  string           `json:"prompt"`
}

// ParseLine decodes one inbound line. Blank and non-JSON lines yield nil
// without error.
func ParseLine(line string) (*Inbound, error) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "{") {
		return nil, nil
	}
	var msg Inbound
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		return nil, fmt.Errorf("parse backend message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("parse backend message: missing type")
	}
	return &msg, nil
}

// ToEvents converts a non-reply message into the events routed to its
// session. A backend error ends the running interaction, so it yields the
// error text followed by a Finished with status "error". Replies and messages
// that cannot be routed yield nil.
func (m *Inbound) ToEvents(log *slog.Logger) []event.Event {
	switch m.Type {
	case MessageTypeStream:
		role, ok := event.ParseRole(m.Role)
		if !ok {
			log.Warn("unknown stream role", "role", m.Role, "session", m.Session)
			return nil
		}
		return []event.Event{event.ContentEvent{
			Key:      m.Session,
			Role:     role,
			Content:  m.Content,
			ToolID:   m.ToolID,
			ToolName: m.ToolName,
		}}
	case MessageTypeFinished:
		return []event.Event{event.Finished{Key: m.Session, Status: m.Status, Message: m.Message}}
	case MessageTypeError:
		return []event.Event{
			event.ContentEvent{
				Key:     m.Session,
				Role:    event.RoleError,
				Content: fmt.Sprintf("[Backend Error: %s]", m.Message),
			},
			event.Finished{Key: m.Session, Status: event.StatusError, Message: m.Message},
		}
	case MessageTypeChatFiles:
		return []event.Event{event.ChatFilesInfo{Key: m.Session, Summary: m.Info}}
	case MessageTypeReply:
		return nil
	}
	log.Warn("unrecognized message type", "type", m.Type)
	return nil
}

// truncateForLog truncates long strings for log messages
func truncateForLog(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
