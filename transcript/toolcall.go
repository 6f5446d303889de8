package transcript

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/zhubert/parley/config"
)

// ErrMalformedToolPayload is reported when a tool call's JSON cannot be
// parsed at ToolJsonEnd. The call is rendered from its raw text instead.
var ErrMalformedToolPayload = errors.New("malformed tool payload")

// Block drawing.
const (
	headerPrefix = "╭─ "
	argPrefix    = "│ "
	contPrefix   = "│   "
	footerLine   = "╰─"
)

// Arg is one top-level argument of a tool call, in payload order.
type Arg struct {
	Key   string
	Value string // strings unquoted, everything else compact JSON
}

// partialCall is the tool call currently streaming in.
type partialCall struct {
	name string
	id   string
	raw  strings.Builder

	profile config.ToolProfile

	// Provisional region [start, end) holding the header and placeholder.
	// hasRegion is false when a stage vetoed the preview.
	hasRegion  bool
	start, end int
	// Placeholder line [phStart, phEnd) inside the region.
	phStart, phEnd int
	phValue        string
}

// parseArgs decodes a JSON object, keeping key order.
func parseArgs(raw string) ([]Arg, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToolPayload, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%w: payload is not an object", ErrMalformedToolPayload)
	}

	var args []Arg
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedToolPayload, err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected token %v", ErrMalformedToolPayload, tok)
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: value of %q: %v", ErrMalformedToolPayload, key, err)
		}
		args = append(args, Arg{Key: key, Value: displayValue(v)})
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToolPayload, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after object", ErrMalformedToolPayload)
	}
	return args, nil
}

// lookupArg returns the value of key from a complete payload, or false if the
// payload does not parse yet or lacks the key.
func lookupArg(raw, key string) (string, bool) {
	if key == "" || !json.Valid([]byte(raw)) {
		return "", false
	}
	args, err := parseArgs(raw)
	if err != nil {
		return "", false
	}
	for _, a := range args {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

func displayValue(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return string(v)
	}
	return buf.String()
}

// blockFormat controls how argument values are clipped.
type blockFormat struct {
	width    int
	maxLines int
}

func (f blockFormat) clip(line string) string {
	if f.width <= 0 {
		return line
	}
	return ansi.Truncate(line, f.width, "…")
}

// header renders the first line of a tool block.
func (f blockFormat) header(label string) string {
	return f.clip(headerPrefix+label) + "\n"
}

// argLines renders one argument, continuing multi-line values on indented
// lines up to maxLines.
func (f blockFormat) argLines(key, value string) string {
	lines := strings.Split(value, "\n")
	var sb strings.Builder
	sb.WriteString(f.clip(argPrefix + key + ": " + lines[0]))
	sb.WriteString("\n")

	rest := lines[1:]
	shown := rest
	if f.maxLines > 0 && len(rest) > f.maxLines {
		shown = rest[:f.maxLines]
	}
	for _, l := range shown {
		sb.WriteString(f.clip(contPrefix + l))
		sb.WriteString("\n")
	}
	if hidden := len(rest) - len(shown); hidden > 0 {
		fmt.Fprintf(&sb, "%s… (%d more lines)\n", contPrefix, hidden)
	}
	return sb.String()
}

// placeholderLine renders the provisional argument line.
func (f blockFormat) placeholderLine(key, text string) string {
	if key == "" {
		return f.clip(argPrefix+text) + "\n"
	}
	first, _, _ := strings.Cut(text, "\n")
	return f.clip(argPrefix+key+": "+first) + "\n"
}

// rawLine renders an unparseable payload as a single line.
func (f blockFormat) rawLine(raw string) string {
	flat := strings.ReplaceAll(strings.TrimSpace(raw), "\n", " ")
	return f.clip(argPrefix+flat) + "\n"
}

func (f blockFormat) footer() string {
	return footerLine + "\n"
}
