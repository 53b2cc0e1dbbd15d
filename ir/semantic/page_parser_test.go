package semantic

import (
	"errors"
	"testing"

	"github.com/wudi/pdfredact/coords"
	"github.com/wudi/pdfredact/ir/raw"
)

func num(v float64) raw.NumberObj { return raw.NumberFloat(v) }

func box(a, b, c, d float64) *raw.ArrayObj { return raw.NewArray(num(a), num(b), num(c), num(d)) }

// buildTree returns Root(1) -> Pages(2) -> [Page(3), Pages(4) -> [Page(5)]].
func buildTree() *raw.Document {
	doc := raw.NewDocument()
	content := raw.NewStream(nil, []byte("BT ET"))
	doc.Objects[raw.ObjectRef{Num: 10}] = content
	doc.Objects[raw.ObjectRef{Num: 11}] = raw.NewStream(nil, []byte("q Q"))

	fonts := raw.Dict()
	fonts.Set("F1", raw.Ref(12, 0))
	res := raw.Dict()
	res.Set("Font", fonts)

	root := raw.Dict()
	root.Set("Type", raw.NameLiteral("Catalog"))
	root.Set("Pages", raw.Ref(2, 0))

	pages := raw.Dict()
	pages.Set("Type", raw.NameLiteral("Pages"))
	pages.Set("Kids", raw.NewArray(raw.Ref(3, 0), raw.Ref(4, 0)))
	pages.Set("MediaBox", box(0, 0, 595, 842))
	pages.Set("Resources", res)
	pages.Set("Rotate", raw.NumberInt(-90))

	p1 := raw.Dict()
	p1.Set("Type", raw.NameLiteral("Page"))
	p1.Set("Parent", raw.Ref(2, 0))
	p1.Set("Contents", raw.Ref(10, 0))

	mid := raw.Dict()
	mid.Set("Type", raw.NameLiteral("Pages"))
	mid.Set("Kids", raw.NewArray(raw.Ref(5, 0)))
	mid.Set("CropBox", box(10, 10, 300, 400))

	p2 := raw.Dict()
	p2.Set("Type", raw.NameLiteral("Page"))
	p2.Set("Rotate", raw.NumberInt(0))
	p2.Set("Resources", raw.Dict())
	p2.Set("Contents", raw.NewArray(raw.Ref(10, 0), raw.Ref(11, 0)))
	annot := raw.Dict()
	annot.Set("Subtype", raw.NameLiteral("Link"))
	annot.Set("Rect", box(50, 60, 10, 20))
	p2.Set("Annots", raw.NewArray(annot, raw.Ref(99, 0)))

	doc.Objects[raw.ObjectRef{Num: 1}] = root
	doc.Objects[raw.ObjectRef{Num: 2}] = pages
	doc.Objects[raw.ObjectRef{Num: 3}] = p1
	doc.Objects[raw.ObjectRef{Num: 4}] = mid
	doc.Objects[raw.ObjectRef{Num: 5}] = p2
	doc.Trailer.Set("Root", raw.Ref(1, 0))
	return doc
}

func TestPagesInheritance(t *testing.T) {
	doc := buildTree()
	pages, err := Pages(doc)
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	p1, p2 := pages[0], pages[1]
	if p1.Index != 0 || p1.Ref.Num != 3 || p2.Index != 1 || p2.Ref.Num != 5 {
		t.Fatalf("unexpected order: %+v %+v", p1.Ref, p2.Ref)
	}
	if p1.MediaBox != (coords.Rect{URX: 595, URY: 842}) || p1.CropBox != p1.MediaBox {
		t.Errorf("p1 boxes: %+v %+v", p1.MediaBox, p1.CropBox)
	}
	if p1.Rotate != 270 {
		t.Errorf("p1 rotate = %d, want 270", p1.Rotate)
	}
	if !p1.Inherited {
		t.Errorf("p1 resources should be inherited")
	}
	if _, ok := Resource(doc, p1.Resources, "Font", "F1"); !ok {
		t.Errorf("inherited font F1 missing")
	}
	if w, h := p1.Size(); w != 842 || h != 595 {
		t.Errorf("rotated size = %vx%v", w, h)
	}
	if len(p1.Contents) != 1 || p1.Contents[0].Num != 10 {
		t.Errorf("p1 contents: %v", p1.Contents)
	}

	if p2.CropBox != (coords.Rect{LLX: 10, LLY: 10, URX: 300, URY: 400}) {
		t.Errorf("p2 crop box: %+v", p2.CropBox)
	}
	if p2.Rotate != 0 || p2.Inherited {
		t.Errorf("p2 rotate=%d inherited=%v", p2.Rotate, p2.Inherited)
	}
	if len(p2.Contents) != 2 {
		t.Errorf("p2 contents: %v", p2.Contents)
	}
	annots := p2.Annotations(doc)
	if len(annots) != 1 || annots[0].Subtype != "Link" {
		t.Fatalf("annotations: %+v", annots)
	}
	if annots[0].Rect != (coords.Rect{LLX: 10, LLY: 20, URX: 50, URY: 60}) {
		t.Errorf("annotation rect not normalized: %+v", annots[0].Rect)
	}
}

func TestPagesCycle(t *testing.T) {
	doc := buildTree()
	mid, _ := doc.Dict(raw.Ref(4, 0))
	mid.Set("Kids", raw.NewArray(raw.Ref(2, 0)))
	if _, err := Pages(doc); !errors.Is(err, ErrPageCycle) {
		t.Fatalf("expected ErrPageCycle, got %v", err)
	}
}

func TestPagesWithoutTree(t *testing.T) {
	doc := raw.NewDocument()
	if _, err := Pages(doc); !errors.Is(err, ErrNoPageTree) {
		t.Fatalf("expected ErrNoPageTree, got %v", err)
	}
}

func TestMatrixFromObj(t *testing.T) {
	doc := raw.NewDocument()
	m, ok := MatrixFromObj(doc, raw.NewArray(num(2), num(0), num(0), num(2), num(5), num(6)))
	if !ok || m != (coords.Matrix{2, 0, 0, 2, 5, 6}) {
		t.Fatalf("got %v %v", m, ok)
	}
	if m, ok := MatrixFromObj(doc, raw.NullObj{}); ok || m != coords.Identity() {
		t.Fatalf("missing matrix must give identity, got %v", m)
	}
}
