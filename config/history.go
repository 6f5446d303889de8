package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Message is one chat message as the backend stores it.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HistoryEntry is a timestamped message from a session's backend history.
// Timestamp is seconds since the Unix epoch, UTC.
type HistoryEntry struct {
	Timestamp float64 `json:"timestamp"`
	Role      string  `json:"role"`
	Content   string  `json:"content"`
}

// UnmarshalJSON accepts both the backend's [timestamp, {role, content}] tuple
// and the exported {timestamp, role, content} object.
func (h *HistoryEntry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var tuple []json.RawMessage
		if err := json.Unmarshal(data, &tuple); err != nil {
			return err
		}
		if len(tuple) != 2 {
			return fmt.Errorf("history tuple has %d elements, want 2", len(tuple))
		}
		var msg Message
		if err := json.Unmarshal(tuple[0], &h.Timestamp); err != nil {
			return fmt.Errorf("history timestamp: %w", err)
		}
		if err := json.Unmarshal(tuple[1], &msg); err != nil {
			return fmt.Errorf("history message: %w", err)
		}
		h.Role, h.Content = msg.Role, msg.Content
		return nil
	}

	type plain HistoryEntry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*h = HistoryEntry(p)
	return nil
}

// Time returns the entry's timestamp as a UTC time.
func (h HistoryEntry) Time() time.Time {
	sec := int64(h.Timestamp)
	nsec := int64((h.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// Message drops the timestamp.
func (h HistoryEntry) Message() Message {
	return Message{Role: h.Role, Content: h.Content}
}

// Messages strips timestamps from a history, keeping order.
func Messages(entries []HistoryEntry) []Message {
	out := make([]Message, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Message())
	}
	return out
}

// WriteHistory writes entries as an indented JSON array of objects.
func WriteHistory(w io.Writer, entries []HistoryEntry) error {
	if entries == nil {
		entries = []HistoryEntry{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

// ReadHistory parses a JSON array in either entry form.
func ReadHistory(r io.Reader) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to parse history: %w", err)
	}
	return entries, nil
}

// FormatTranscript renders a history as plain text, one block per message
// with blank lines between blocks. Turns get a heading ("User:", "Assistant:",
// "Tool result:"); error and warning notes are bracketed on a single line, the
// way they appear in a live session. Messages with no content are skipped.
func FormatTranscript(messages []Message) string {
	blocks := make([]string, 0, len(messages))
	for _, msg := range messages {
		text := strings.TrimRight(msg.Content, "\n")
		if strings.TrimSpace(text) == "" {
			continue
		}
		blocks = append(blocks, transcriptBlock(msg.Role, text))
	}
	return strings.Join(blocks, "\n\n")
}

func transcriptBlock(role, text string) string {
	switch role {
	case "user":
		return "User:\n" + text
	case "assistant", "llm":
		return "Assistant:\n" + text
	case "tool":
		return "Tool result:\n" + text
	case "error", "warning":
		if strings.HasPrefix(text, "[") {
			return text
		}
		return "[" + strings.ToUpper(role[:1]) + role[1:] + ": " + text + "]"
	}
	return role + ":\n" + text
}
