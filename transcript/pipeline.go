package transcript

import (
	"github.com/zhubert/parley/event"
	"github.com/zhubert/parley/surface"
)

// Phase says which part of a render a Fragment describes.
type Phase int

const (
	// PhaseText is a plain user, assistant, error or warning fragment.
	PhaseText Phase = iota
	// PhaseToolStart is the provisional preview opened by ToolJsonStart.
	PhaseToolStart
	// PhaseToolArgs is a live update of the preview's placeholder.
	PhaseToolArgs
	// PhaseToolEnd is the final rendering of a complete tool call.
	PhaseToolEnd
)

// Action is a stage's verdict on a fragment.
type Action int

const (
	// Continue passes the fragment on to the next stage.
	Continue Action = iota
	// Handled stops the pipeline and renders the fragment as it now stands.
	Handled
	// Veto stops the pipeline and renders nothing.
	Veto
)

// Fragment is what a stage sees and may rewrite before it reaches the
// surface. When Boxed is set the renderer draws a tool block from Label and
// Args (or Raw if ParseErr is set); otherwise Text is inserted with Tag.
type Fragment struct {
	Phase    Phase
	Role     event.Role
	ToolName string
	Label    string

	Text string
	Tag  surface.Tag

	Boxed    bool
	Args     []Arg
	Raw      string
	ParseErr error
}

// Stage transforms or vetoes a fragment.
type Stage interface {
	Apply(f *Fragment) Action
}

// StageFunc adapts a function to Stage.
type StageFunc func(f *Fragment) Action

// Apply implements Stage.
func (fn StageFunc) Apply(f *Fragment) Action { return fn(f) }

// run passes f through stages in order and reports whether anything should
// be rendered.
func run(stages []Stage, f *Fragment) bool {
	for _, s := range stages {
		switch s.Apply(f) {
		case Handled:
			return true
		case Veto:
			return false
		}
	}
	return true
}

// FinalAnswerStage renders the terminal tool as plain completion text. Its
// preview is suppressed and, once complete, only the result field is shown.
type FinalAnswerStage struct {
	Tool  string
	Field string
}

// Apply implements Stage.
func (s FinalAnswerStage) Apply(f *Fragment) Action {
	if s.Tool == "" || f.ToolName != s.Tool {
		return Continue
	}
	switch f.Phase {
	case PhaseToolStart, PhaseToolArgs:
		return Veto
	case PhaseToolEnd:
		text, found := "", false
		if f.ParseErr == nil {
			for _, a := range f.Args {
				if a.Key == s.Field {
					text, found = a.Value, true
					break
				}
			}
		}
		if !found {
			text = f.Raw
		}
		f.Boxed = false
		f.Text = text
		f.Tag = surface.TagCompletion
		return Handled
	}
	return Continue
}
