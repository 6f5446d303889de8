// Package transcript turns a session's ordered event stream into mutations of
// its transcript surface.
//
// Everything before the most recent prompt marker is history and is locked
// after every event; new output is inserted just before the marker so the
// operator's half-typed input is never disturbed. Tool calls arrive as
// streamed JSON fragments and are previewed in a provisional region that is
// replaced by the final block once the payload is complete.
package transcript

import (
	"log/slog"
	"strings"

	"github.com/zhubert/parley/config"
	"github.com/zhubert/parley/event"
	"github.com/zhubert/parley/logger"
	"github.com/zhubert/parley/surface"
)

// Surface is the part of the transcript surface the renderer writes through.
// surface.Buffer implements it.
type Surface interface {
	Len() int
	Slice(start, end int) string
	Insert(pos int, text string, tag surface.Tag)
	DeleteRange(start, end int)
	LockUpTo(pos int)
	FindMarker() (int, bool)
}

// Options configures a Renderer.
type Options struct {
	// FinalAnswerTool is rendered as plain completion text from its
	// FinalAnswerField instead of a boxed block. Empty disables it.
	FinalAnswerTool  string
	FinalAnswerField string

	Profiles config.ToolProfiles

	// Stages run after the built-in final-answer stage, in order.
	Stages []Stage

	ArgWidth int
	ArgLines int

	Logger *slog.Logger
}

// DefaultOptions mirrors config.Default.
func DefaultOptions() Options {
	return Options{
		FinalAnswerTool:  config.DefaultFinalAnswerTool,
		FinalAnswerField: config.DefaultFinalAnswerField,
		Profiles:         config.DefaultToolProfiles(),
		ArgWidth:         config.DefaultArgWidth,
		ArgLines:         config.DefaultArgLines,
	}
}

// Renderer applies ContentEvents to one session's surface. It is not safe
// for concurrent use; the owning session serializes calls.
type Renderer struct {
	surf     Surface
	stages   []Stage
	profiles config.ToolProfiles
	format   blockFormat
	log      *slog.Logger

	// Where the next assistant chunk goes, valid until a non-assistant
	// render or a new interaction.
	appendPos   int
	appendValid bool

	// A newline the renderer inserted so the marker starts its own line.
	sepActive bool

	partial      *partialCall
	lastToolName string
}

// NewRenderer returns a renderer writing to s.
func NewRenderer(s Surface, opts Options) *Renderer {
	log := opts.Logger
	if log == nil {
		log = logger.WithComponent("transcript")
	}
	profiles := opts.Profiles
	if profiles == nil {
		profiles = config.ToolProfiles{}
	}
	stages := []Stage{FinalAnswerStage{Tool: opts.FinalAnswerTool, Field: opts.FinalAnswerField}}
	stages = append(stages, opts.Stages...)

	return &Renderer{
		surf:     s,
		stages:   stages,
		profiles: profiles,
		format:   blockFormat{width: opts.ArgWidth, maxLines: opts.ArgLines},
		log:      log,
	}
}

// Apply renders one event and recomputes the lock boundary.
func (r *Renderer) Apply(ev event.ContentEvent) {
	r.detachSeparator()

	switch ev.Role {
	case event.RoleUser:
		r.appendValid = false
		r.renderText(ev.Role, ev.Content, surface.TagUser, false)
	case event.RoleAssistant:
		r.renderAssistant(ev.Content)
	case event.RoleError:
		r.appendValid = false
		r.renderText(ev.Role, ev.Content, surface.TagError, true)
	case event.RoleWarning:
		r.appendValid = false
		r.renderText(ev.Role, ev.Content, surface.TagWarning, true)
	case event.RoleToolJSONStart:
		r.appendValid = false
		r.startTool(ev)
	case event.RoleToolJSONArgs:
		r.appendValid = false
		r.toolArgs(ev)
	case event.RoleToolJSONEnd:
		r.appendValid = false
		r.endTool(ev)
	default:
		r.log.Warn("ignoring event with unknown role", "role", ev.Role)
	}

	r.attachSeparator()
	r.Relock()
}

// Relock moves the lock boundary to the start of the most recent prompt
// marker, or to the end of the surface when there is none.
func (r *Renderer) Relock() {
	if start, ok := r.surf.FindMarker(); ok {
		r.surf.LockUpTo(start)
		return
	}
	r.surf.LockUpTo(r.surf.Len())
}

// EndInteraction forgets the assistant append position so the next
// interaction starts fresh.
func (r *Renderer) EndInteraction() {
	r.appendValid = false
}

// Reset drops all per-interaction state. Call it after the surface itself
// has been cleared.
func (r *Renderer) Reset() {
	r.appendValid = false
	r.sepActive = false
	r.partial = nil
	r.lastToolName = ""
}

// ActiveTool returns the name of the tool call currently streaming.
func (r *Renderer) ActiveTool() (string, bool) {
	if r.partial == nil {
		return "", false
	}
	return r.lastToolName, true
}

func (r *Renderer) insertionPoint() int {
	if start, ok := r.surf.FindMarker(); ok {
		return start
	}
	return r.surf.Len()
}

func (r *Renderer) needsBreak(pos int) bool {
	return pos > 0 && r.surf.Slice(pos-1, pos) != "\n"
}

// write inserts text at pos and returns the position just after it.
func (r *Renderer) write(pos int, text string, tag surface.Tag) int {
	r.surf.Insert(pos, text, tag)
	return pos + surface.RuneCount(text)
}

func (r *Renderer) attachSeparator() {
	start, ok := r.surf.FindMarker()
	if ok && r.needsBreak(start) {
		r.surf.Insert(start, "\n", surface.TagPlain)
		r.sepActive = true
	}
}

func (r *Renderer) detachSeparator() {
	if !r.sepActive {
		return
	}
	r.sepActive = false
	start, ok := r.surf.FindMarker()
	if ok && start > 0 && r.surf.Slice(start-1, start) == "\n" {
		r.surf.DeleteRange(start-1, start)
	}
}

func (r *Renderer) renderText(role event.Role, text string, tag surface.Tag, ownLine bool) {
	f := &Fragment{Phase: PhaseText, Role: role, Text: text, Tag: tag}
	if !run(r.stages, f) || f.Text == "" {
		return
	}
	pos := r.insertionPoint()
	if ownLine {
		r.writeLine(pos, f.Text, f.Tag)
		return
	}
	r.write(pos, f.Text, f.Tag)
}

// writeLine inserts text so it occupies whole lines.
func (r *Renderer) writeLine(pos int, text string, tag surface.Tag) int {
	if r.needsBreak(pos) {
		pos = r.write(pos, "\n", surface.TagPlain)
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return r.write(pos, text, tag)
}

func (r *Renderer) renderAssistant(text string) {
	f := &Fragment{Phase: PhaseText, Role: event.RoleAssistant, Text: text, Tag: surface.TagAssistant}
	if !run(r.stages, f) || f.Text == "" {
		return
	}
	if !r.appendValid {
		r.appendPos = r.insertionPoint()
		r.appendValid = true
	}
	r.appendPos = r.write(r.appendPos, f.Text, f.Tag)
}

func (r *Renderer) startTool(ev event.ContentEvent) {
	name, raw := ev.ToolName, ev.Content
	if name == "" && !strings.HasPrefix(strings.TrimSpace(raw), "{") {
		name, raw = strings.TrimSpace(raw), ""
	}
	if name == "" {
		name = "tool"
	}

	if r.partial != nil {
		r.log.Warn("tool call superseded before it ended",
			"previous", r.partial.name, "next", name)
	}

	p := &partialCall{name: name, id: ev.ToolID, profile: r.profiles.Lookup(name)}
	p.raw.WriteString(raw)
	r.partial = p
	r.lastToolName = name

	f := &Fragment{
		Phase:    PhaseToolStart,
		Role:     ev.Role,
		ToolName: name,
		Label:    p.profile.Label,
		Boxed:    true,
		Tag:      surface.TagToolHeader,
	}
	if !run(r.stages, f) {
		return
	}

	pos := r.insertionPoint()
	p.hasRegion = true
	p.start = pos
	if !f.Boxed {
		p.end = r.writeLine(pos, f.Text, f.Tag)
		p.phStart, p.phEnd = -1, -1
		return
	}
	if r.needsBreak(pos) {
		pos = r.write(pos, "\n", surface.TagPlain)
	}
	pos = r.write(pos, r.format.header(f.Label), surface.TagToolHeader)
	p.phStart = pos
	pos = r.write(pos, r.format.placeholderLine(p.profile.Key, p.profile.Placeholder), surface.TagToolPending)
	p.phEnd = pos
	p.end = pos

	r.updatePlaceholder(p)
}

// activePartial returns the open call an args/end event belongs to.
func (r *Renderer) activePartial(ev event.ContentEvent) *partialCall {
	p := r.partial
	if p == nil {
		r.log.Warn("tool fragment without an open call", "role", ev.Role, "tool", ev.ToolName)
		return nil
	}
	if ev.ToolID != "" && p.id != "" && ev.ToolID != p.id {
		r.log.Warn("tool fragment for a different call",
			"role", ev.Role, "open_id", p.id, "event_id", ev.ToolID)
		return nil
	}
	return p
}

func (r *Renderer) toolArgs(ev event.ContentEvent) {
	p := r.activePartial(ev)
	if p == nil {
		return
	}
	p.raw.WriteString(ev.Content)
	r.updatePlaceholder(p)
}

// updatePlaceholder swaps the placeholder line for the live value of the
// tool's key once the buffer parses. Incomplete JSON is not an error.
func (r *Renderer) updatePlaceholder(p *partialCall) {
	if !p.hasRegion || p.phStart < 0 || p.profile.Key == "" {
		return
	}
	v, ok := lookupArg(p.raw.String(), p.profile.Key)
	if !ok || v == p.phValue {
		return
	}

	f := &Fragment{Phase: PhaseToolArgs, Role: event.RoleToolJSONArgs, ToolName: p.name, Text: v, Tag: surface.TagToolArg}
	if !run(r.stages, f) {
		return
	}

	r.surf.DeleteRange(p.phStart, p.phEnd)
	newEnd := r.write(p.phStart, r.format.placeholderLine(p.profile.Key, f.Text), f.Tag)
	p.end += newEnd - p.phEnd
	p.phEnd = newEnd
	p.phValue = v
}

func (r *Renderer) endTool(ev event.ContentEvent) {
	p := r.activePartial(ev)
	if p == nil {
		return
	}
	r.partial = nil
	r.lastToolName = ""

	p.raw.WriteString(ev.Content)
	raw := p.raw.String()
	args, err := parseArgs(raw)
	if err != nil {
		r.log.Warn("rendering tool call from raw payload", "tool", p.name, "error", err)
	}

	pos := r.insertionPoint()
	if p.hasRegion {
		r.surf.DeleteRange(p.start, p.end)
		pos = p.start
	}

	f := &Fragment{
		Phase:    PhaseToolEnd,
		Role:     ev.Role,
		ToolName: p.name,
		Label:    p.profile.Label,
		Boxed:    true,
		Args:     args,
		Raw:      raw,
		ParseErr: err,
	}
	if !run(r.stages, f) {
		return
	}
	if !f.Boxed {
		if f.Text != "" {
			r.writeLine(pos, f.Text, f.Tag)
		}
		return
	}

	if r.needsBreak(pos) {
		pos = r.write(pos, "\n", surface.TagPlain)
	}
	pos = r.write(pos, r.format.header(f.Label), surface.TagToolHeader)
	if f.ParseErr != nil {
		pos = r.write(pos, r.format.rawLine(f.Raw), surface.TagToolArg)
	} else {
		for _, a := range f.Args {
			pos = r.write(pos, r.format.argLines(a.Key, a.Value), surface.TagToolArg)
		}
	}
	r.write(pos, r.format.footer(), surface.TagToolFooter)
}
