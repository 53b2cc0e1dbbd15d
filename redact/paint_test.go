package redact

import (
	"testing"

	"github.com/wudi/pdfredact/contentstream"
	"github.com/wudi/pdfredact/coords"
	"github.com/wudi/pdfredact/fonts"
)

func TestCaptionSizeShrinksToFit(t *testing.T) {
	emb, err := fonts.GoRegular()
	if err != nil {
		t.Fatalf("GoRegular: %v", err)
	}
	cf := &captionFont{emb: emb}
	glyphs := emb.Shape(DefaultImageCaption)
	e := &Engine{opts: DefaultOptions()}

	wide := coords.Rect{LLX: 0, LLY: 0, URX: 500, URY: 50}
	if got := e.captionSize(cf, glyphs, wide); got != 11 {
		t.Errorf("wide area size = %v, want 11", got)
	}
	tiny := coords.Rect{LLX: 0, LLY: 0, URX: 10, URY: 50}
	if got := e.captionSize(cf, glyphs, tiny); got != 4 {
		t.Errorf("tiny area size = %v, want 4", got)
	}
	full := cf.width(glyphs, 11)
	medium := coords.Rect{LLX: 0, LLY: 0, URX: full * 0.7, URY: 50}
	got := e.captionSize(cf, glyphs, medium)
	if got >= 11 || got <= 4 || cf.width(glyphs, got) > medium.Width()-2 {
		t.Errorf("medium area size = %v (width %v of %v)", got, cf.width(glyphs, got), medium.Width())
	}
	short := coords.Rect{LLX: 0, LLY: 0, URX: 500, URY: 6}
	if got := e.captionSize(cf, glyphs, short); got >= 11 {
		t.Errorf("short area size = %v", got)
	}
}

func TestOpenSaves(t *testing.T) {
	tests := []struct {
		ops  []string
		want int
	}{
		{[]string{"q", "Q"}, 0},
		{[]string{"q", "q", "Q"}, 1},
		{[]string{"Q", "q"}, 1},
	}
	for _, tt := range tests {
		var ops []contentstream.Op
		for _, n := range tt.ops {
			ops = append(ops, contentstream.NewOp(n))
		}
		if got := openSaves(ops); got != tt.want {
			t.Errorf("openSaves(%v) = %d, want %d", tt.ops, got, tt.want)
		}
	}
}
