package contentstream

import "github.com/wudi/pdfredact/ir/raw"

// OpKind identifies a content stream operator.
type OpKind uint8

const (
	OpUnknown OpKind = iota

	// General graphics state.
	OpSave
	OpRestore
	OpConcat
	OpLineWidth
	OpLineCap
	OpLineJoin
	OpMiterLimit
	OpDash
	OpIntent
	OpFlatness
	OpExtGState

	// Path construction and painting.
	OpMoveTo
	OpLineTo
	OpCurveTo
	OpCurveToV
	OpCurveToY
	OpClosePath
	OpRectangle
	OpStroke
	OpCloseStroke
	OpFill
	OpFillCompat
	OpFillEvenOdd
	OpFillStroke
	OpFillStrokeEvenOdd
	OpCloseFillStroke
	OpCloseFillStrokeEvenOdd
	OpEndPath
	OpClip
	OpClipEvenOdd

	// Text objects, state and positioning.
	OpBeginText
	OpEndText
	OpCharSpacing
	OpWordSpacing
	OpHorizScale
	OpLeading
	OpFont
	OpRenderMode
	OpRise
	OpMoveText
	OpMoveTextLeading
	OpTextMatrix
	OpNextLine

	// Text showing.
	OpShowText
	OpShowTextArray
	OpNextLineShow
	OpNextLineSpacingShow

	// Type 3 glyph metrics.
	OpGlyphWidth
	OpGlyphWidthBBox

	// Colour.
	OpStrokeColorSpace
	OpFillColorSpace
	OpStrokeColor
	OpStrokeColorN
	OpFillColor
	OpFillColorN
	OpStrokeGray
	OpFillGray
	OpStrokeRGB
	OpFillRGB
	OpStrokeCMYK
	OpFillCMYK

	// External objects and images.
	OpShading
	OpInlineImage
	OpXObject

	// Marked content and compatibility sections.
	OpMarkedPoint
	OpMarkedPointProps
	OpBeginMarked
	OpBeginMarkedProps
	OpEndMarked
	OpBeginCompat
	OpEndCompat
)

var opNames = [...]string{
	OpUnknown: "",
	OpSave:    "q", OpRestore: "Q", OpConcat: "cm", OpLineWidth: "w", OpLineCap: "J",
	OpLineJoin: "j", OpMiterLimit: "M", OpDash: "d", OpIntent: "ri", OpFlatness: "i",
	OpExtGState: "gs",
	OpMoveTo:    "m", OpLineTo: "l", OpCurveTo: "c", OpCurveToV: "v", OpCurveToY: "y",
	OpClosePath: "h", OpRectangle: "re", OpStroke: "S", OpCloseStroke: "s", OpFill: "f",
	OpFillCompat: "F", OpFillEvenOdd: "f*", OpFillStroke: "B", OpFillStrokeEvenOdd: "B*",
	OpCloseFillStroke: "b", OpCloseFillStrokeEvenOdd: "b*", OpEndPath: "n", OpClip: "W",
	OpClipEvenOdd: "W*",
	OpBeginText:   "BT", OpEndText: "ET", OpCharSpacing: "Tc", OpWordSpacing: "Tw",
	OpHorizScale: "Tz", OpLeading: "TL", OpFont: "Tf", OpRenderMode: "Tr", OpRise: "Ts",
	OpMoveText: "Td", OpMoveTextLeading: "TD", OpTextMatrix: "Tm", OpNextLine: "T*",
	OpShowText: "Tj", OpShowTextArray: "TJ", OpNextLineShow: "'", OpNextLineSpacingShow: "\"",
	OpGlyphWidth: "d0", OpGlyphWidthBBox: "d1",
	OpStrokeColorSpace: "CS", OpFillColorSpace: "cs", OpStrokeColor: "SC", OpStrokeColorN: "SCN",
	OpFillColor: "sc", OpFillColorN: "scn", OpStrokeGray: "G", OpFillGray: "g",
	OpStrokeRGB: "RG", OpFillRGB: "rg", OpStrokeCMYK: "K", OpFillCMYK: "k",
	OpShading: "sh", OpInlineImage: "BI", OpXObject: "Do",
	OpMarkedPoint: "MP", OpMarkedPointProps: "DP", OpBeginMarked: "BMC",
	OpBeginMarkedProps: "BDC", OpEndMarked: "EMC", OpBeginCompat: "BX", OpEndCompat: "EX",
}

var opKinds = func() map[string]OpKind {
	m := make(map[string]OpKind, len(opNames))
	for k, name := range opNames {
		if name != "" {
			m[name] = OpKind(k)
		}
	}
	return m
}()

// KindOf maps an operator keyword to its kind.
func KindOf(name string) OpKind { return opKinds[name] }

func (k OpKind) String() string {
	if int(k) < len(opNames) && opNames[k] != "" {
		return opNames[k]
	}
	return "unknown"
}

// ShowsText reports whether the operator paints glyphs.
func (k OpKind) ShowsText() bool {
	return k >= OpShowText && k <= OpNextLineSpacingShow
}

// arity is the operand count the interpreter relies on. Operators missing
// from the table take any number.
var arity = map[OpKind]int{
	OpConcat: 6, OpFont: 2, OpCharSpacing: 1, OpWordSpacing: 1, OpHorizScale: 1,
	OpLeading: 1, OpRise: 1, OpRenderMode: 1, OpMoveText: 2, OpMoveTextLeading: 2,
	OpTextMatrix: 6, OpShowText: 1, OpShowTextArray: 1, OpNextLineShow: 1,
	OpNextLineSpacingShow: 3, OpXObject: 1, OpSave: 0, OpRestore: 0,
	OpBeginText: 0, OpEndText: 0, OpNextLine: 0, OpRectangle: 4,
}

// Op is one operator with its operands. Start and End delimit the operator
// and its operands in the decoded stream.
type Op struct {
	Kind     OpKind
	Name     string
	Operands []raw.Object
	// Inline holds the image of a BI … ID … EI sequence.
	Inline     *InlineImage
	Start, End int64
}

// InlineImage is an image embedded in a content stream.
type InlineImage struct {
	Dict *raw.DictObj
	Data []byte
}

// NewOp builds an operator from its keyword.
func NewOp(name string, operands ...raw.Object) Op {
	return Op{Kind: KindOf(name), Name: name, Operands: operands}
}

func (op Op) number(i int) float64 {
	if i >= len(op.Operands) {
		return 0
	}
	if n, ok := op.Operands[i].(raw.NumberObj); ok {
		return n.Float()
	}
	return 0
}

func (op Op) name(i int) string {
	if i >= len(op.Operands) {
		return ""
	}
	if n, ok := op.Operands[i].(raw.NameObj); ok {
		return n.Val
	}
	return ""
}
