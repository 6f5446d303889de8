// Package event defines the messages the backend streams to sessions.
package event

import "strings"

// Role identifies how a ContentEvent is rendered.
type Role string

const (
	RoleUser          Role = "user"
	RoleAssistant     Role = "llm"
	RoleError         Role = "error"
	RoleWarning       Role = "warning"
	RoleToolJSONStart Role = "tool_json_start"
	RoleToolJSONArgs  Role = "tool_json_args"
	RoleToolJSONEnd   Role = "tool_json_end"
)

// ParseRole maps a wire role name to a Role. Unknown names report false.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return RoleUser, true
	case "llm", "assistant":
		return RoleAssistant, true
	case "error":
		return RoleError, true
	case "warning":
		return RoleWarning, true
	case "tool_json_start":
		return RoleToolJSONStart, true
	case "tool_json_args":
		return RoleToolJSONArgs, true
	case "tool_json_end":
		return RoleToolJSONEnd, true
	}
	return "", false
}

// IsTool reports whether the role belongs to a streamed tool call.
func (r Role) IsTool() bool {
	return r == RoleToolJSONStart || r == RoleToolJSONArgs || r == RoleToolJSONEnd
}

// Event is anything the dispatcher can route to a session.
type Event interface {
	SessionKey() string
}

// ContentEvent is one streamed fragment of a session's transcript.
type ContentEvent struct {
	Key      string
	Role     Role
	Content  string
	ToolID   string // set for tool roles when the backend provides one
	ToolName string // set for tool_json_start, optional afterwards
}

// SessionKey implements Event.
func (e ContentEvent) SessionKey() string { return e.Key }

// Finished statuses. The backend may send others; only StatusSuccess counts
// as a normal end.
const (
	StatusSuccess   = "success"
	StatusCancelled = "cancelled"
	StatusError     = "error" // the backend reported an error message
)

// Finished marks the end of one interaction.
type Finished struct {
	Key     string
	Status  string // "success", "llm_error", "critical_error", "cancelled", "error"
	Message string
}

// SessionKey implements Event.
func (e Finished) SessionKey() string { return e.Key }

// Succeeded reports whether the interaction completed normally.
func (e Finished) Succeeded() bool { return e.Status == StatusSuccess }

// ChatFilesInfo carries the backend's summary of files attached to a session,
// e.g. "2 files [1520 tokens]".
type ChatFilesInfo struct {
	Key     string
	Summary string
}

// SessionKey implements Event.
func (e ChatFilesInfo) SessionKey() string { return e.Key }
