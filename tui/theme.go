package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/zhubert/parley/surface"
)

// Theme defines the colors used for each transcript tag. All colors use
// lipgloss ANSI 256-color codes for broad terminal compatibility.
type Theme struct {
	User        lipgloss.Color
	Assistant   lipgloss.Color
	Error       lipgloss.Color
	Warning     lipgloss.Color
	ToolChrome  lipgloss.Color // Header and footer of tool blocks
	ToolArg     lipgloss.Color
	ToolPending lipgloss.Color
	Completion  lipgloss.Color
	Prompt      lipgloss.Color
	Input       lipgloss.Color

	HeaderForeground lipgloss.Color
	HeaderBackground lipgloss.Color
	StatusText       lipgloss.Color
	BusyText         lipgloss.Color
}

// DefaultTheme is the built-in dark-terminal color scheme.
var DefaultTheme = Theme{
	User:        lipgloss.Color("81"),
	Assistant:   lipgloss.Color("252"),
	Error:       lipgloss.Color("203"),
	Warning:     lipgloss.Color("214"),
	ToolChrome:  lipgloss.Color("242"),
	ToolArg:     lipgloss.Color("248"),
	ToolPending: lipgloss.Color("240"),
	Completion:  lipgloss.Color("114"),
	Prompt:      lipgloss.Color("141"),
	Input:       lipgloss.Color("255"),

	HeaderForeground: lipgloss.Color("255"),
	HeaderBackground: lipgloss.Color("60"),
	StatusText:       lipgloss.Color("245"),
	BusyText:         lipgloss.Color("214"),
}

// Styles maps each tag to a lipgloss style bound to one renderer.
type Styles struct {
	tags   map[surface.Tag]lipgloss.Style
	plain  lipgloss.Style
	caret  lipgloss.Style
	header lipgloss.Style
	status lipgloss.Style
	busy   lipgloss.Style
}

// NewStyles builds the styles for theme. A nil renderer uses the default
// lipgloss renderer.
func NewStyles(theme Theme, r *lipgloss.Renderer) Styles {
	if r == nil {
		r = lipgloss.DefaultRenderer()
	}
	fg := func(c lipgloss.Color) lipgloss.Style { return r.NewStyle().Foreground(c) }
	return Styles{
		tags: map[surface.Tag]lipgloss.Style{
			surface.TagUser:        fg(theme.User).Bold(true),
			surface.TagAssistant:   fg(theme.Assistant),
			surface.TagError:       fg(theme.Error).Bold(true),
			surface.TagWarning:     fg(theme.Warning).Italic(true),
			surface.TagToolHeader:  fg(theme.ToolChrome).Bold(true),
			surface.TagToolArg:     fg(theme.ToolArg),
			surface.TagToolPending: fg(theme.ToolPending).Italic(true),
			surface.TagToolFooter:  fg(theme.ToolChrome),
			surface.TagCompletion:  fg(theme.Completion),
			surface.TagPrompt:      fg(theme.Prompt).Bold(true),
			surface.TagInput:       fg(theme.Input),
		},
		plain:  r.NewStyle(),
		caret:  r.NewStyle().Reverse(true),
		header: r.NewStyle().Foreground(theme.HeaderForeground).Background(theme.HeaderBackground).Bold(true).Padding(0, 1),
		status: fg(theme.StatusText),
		busy:   fg(theme.BusyText).Bold(true),
	}
}

// Style returns the style for tag.
func (s Styles) Style(tag surface.Tag) lipgloss.Style {
	if st, ok := s.tags[tag]; ok {
		return st
	}
	return s.plain
}

// renderLines styles text one line at a time so lipgloss never pads lines
// to a common width.
func renderLines(st lipgloss.Style, text string) string {
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = st.Render(l)
		}
	}
	return strings.Join(lines, "\n")
}

// RenderSegments draws tagged segments. When caret is in range, the rune at
// the caret (or a trailing space at the end) is drawn reversed.
func RenderSegments(styles Styles, segs []surface.Segment, caret int) string {
	var b strings.Builder
	pos := 0
	drawn := false
	for _, seg := range segs {
		runes := []rune(seg.Text)
		st := styles.Style(seg.Tag)
		if drawn || caret < pos || caret >= pos+len(runes) {
			b.WriteString(renderLines(st, seg.Text))
			pos += len(runes)
			continue
		}

		i := caret - pos
		b.WriteString(renderLines(st, string(runes[:i])))
		if runes[i] == '\n' {
			b.WriteString(styles.caret.Render(" "))
			b.WriteString("\n")
		} else {
			b.WriteString(styles.caret.Render(string(runes[i])))
		}
		b.WriteString(renderLines(st, string(runes[i+1:])))
		drawn = true
		pos += len(runes)
	}
	if !drawn && caret == pos {
		b.WriteString(styles.caret.Render(" "))
	}
	return b.String()
}
