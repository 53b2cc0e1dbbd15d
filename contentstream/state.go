package contentstream

import (
	"github.com/wudi/pdfredact/coords"
	"github.com/wudi/pdfredact/fonts"
	"github.com/wudi/pdfredact/ir/raw"
)

// GraphicsState is the part of the PDF graphics state that positions
// glyphs and images.
type GraphicsState struct {
	CTM  coords.Matrix
	Text TextState
}

// TextState holds the text state parameters. Scale is Tz/100.
type TextState struct {
	Font        *fonts.Font
	FontName    string
	FontRef     raw.ObjectRef
	Size        float64
	CharSpacing float64
	WordSpacing float64
	Scale       float64
	Leading     float64
	Rise        float64
	Render      int
}

func newGraphicsState(ctm coords.Matrix) GraphicsState {
	return GraphicsState{CTM: ctm, Text: TextState{Scale: 1}}
}

// stateStack implements q/Q.
type stateStack struct {
	cur   GraphicsState
	saved []GraphicsState
}

func (s *stateStack) Save() { s.saved = append(s.saved, s.cur) }

func (s *stateStack) Restore() bool {
	n := len(s.saved)
	if n == 0 {
		return false
	}
	s.cur = s.saved[n-1]
	s.saved = s.saved[:n-1]
	return true
}

// Depth is the number of unmatched q operators.
func (s *stateStack) Depth() int { return len(s.saved) }
