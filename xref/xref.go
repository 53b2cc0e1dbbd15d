package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/wudi/pdfredact/filters"
	"github.com/wudi/pdfredact/ir/raw"
	"github.com/wudi/pdfredact/observability"
	"github.com/wudi/pdfredact/recovery"
	"github.com/wudi/pdfredact/scanner"
)

var (
	// ErrMalformed reports an xref section or trailer that cannot be read.
	ErrMalformed = errors.New("malformed xref")
	// ErrNoObjects is returned when neither the xref nor a repair scan
	// finds any object.
	ErrNoObjects = errors.New("no objects found")
)

type EntryKind int

const (
	EntryFree EntryKind = iota
	EntryInUse
	EntryCompressed
)

// Entry locates one object. In-use entries carry a byte offset; compressed
// entries the object stream number and the index inside it.
type Entry struct {
	Kind   EntryKind
	Offset int64
	Gen    int
	Stream int
	Index  int
}

// Table is the merged index of every xref section of a file.
type Table struct {
	entries map[int]Entry
	trailer *raw.DictObj

	// StartXRef is the offset of the newest section, 0 after a repair.
	StartXRef int64
	// Repaired is set when the index was rebuilt by scanning the file.
	Repaired bool
	// Sections counts the xref sections that were merged.
	Sections int
}

func newTable() *Table { return &Table{entries: make(map[int]Entry)} }

// Lookup returns the entry for an object number. Free entries are reported
// as missing.
func (t *Table) Lookup(num int) (Entry, bool) {
	e, ok := t.entries[num]
	if !ok || e.Kind == EntryFree {
		return Entry{}, false
	}
	return e, true
}

// Objects lists the object numbers of all live entries in ascending order.
func (t *Table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for n, e := range t.entries {
		if e.Kind != EntryFree && n > 0 {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

func (t *Table) Trailer() *raw.DictObj { return t.trailer }
func (t *Table) Len() int              { return len(t.entries) }

// set records e unless a newer section already defined num.
func (t *Table) set(num int, e Entry) {
	if _, ok := t.entries[num]; ok {
		return
	}
	t.entries[num] = e
}

type ResolverConfig struct {
	MaxXRefDepth int
	Recovery     recovery.Strategy
	Logger       observability.Logger
	Filters      *filters.Pipeline
}

// Resolver locates and merges the xref sections of a file, falling back to a
// linear scan when they are missing or broken.
type Resolver struct {
	cfg ResolverConfig
}

func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.MaxXRefDepth <= 0 {
		cfg.MaxXRefDepth = 50
	}
	if cfg.Filters == nil {
		cfg.Filters = filters.NewDefaultPipeline(filters.Limits{})
	}
	cfg.Logger = observability.OrNop(cfg.Logger)
	return &Resolver{cfg: cfg}
}

// Resolve builds the table for data. Broken sections are reported to the
// recovery strategy; unless it fails the parse, the file is re-indexed by
// scanning for object headers.
func (r *Resolver) Resolve(ctx context.Context, data []byte) (*Table, error) {
	t, err := r.readChain(ctx, data)
	if err == nil {
		err = r.verifyOffsets(data, t)
	}
	if err == nil {
		return t, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	loc := recovery.Location{Component: "xref"}
	var se *sectionError
	if errors.As(err, &se) {
		loc.ByteOffset = se.offset
	}
	if herr := recovery.Handle(ctx, r.cfg.Recovery, err, loc); herr != nil {
		return nil, herr
	}
	r.cfg.Logger.Warn("rebuilding xref by linear scan", observability.Error("cause", err))
	return r.repair(ctx, data)
}

type sectionError struct {
	offset int64
	err    error
}

func (e *sectionError) Error() string {
	return fmt.Sprintf("xref section at offset %d: %v", e.offset, e.err)
}
func (e *sectionError) Unwrap() error { return e.err }

func malformed(offset int64, format string, args ...any) error {
	return &sectionError{offset: offset, err: fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrMalformed)}
}

// readChain follows startxref and every /Prev and /XRefStm link.
func (r *Resolver) readChain(ctx context.Context, data []byte) (*Table, error) {
	start, err := findStartXRef(data)
	if err != nil {
		return nil, err
	}
	t := newTable()
	t.StartXRef = start
	visited := make(map[int64]bool)
	queue := []int64{start}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		off := queue[0]
		queue = queue[1:]
		if visited[off] {
			continue
		}
		if len(visited) >= r.cfg.MaxXRefDepth {
			return nil, malformed(off, "xref chain longer than %d sections", r.cfg.MaxXRefDepth)
		}
		visited[off] = true

		trailer, err := r.readSection(ctx, data, off, t)
		if err != nil {
			return nil, err
		}
		t.Sections++
		if t.trailer == nil {
			t.trailer = trailer.Clone()
		}
		// A hybrid file's /XRefStm belongs to the same revision, so it
		// is merged before the previous revision.
		var next []int64
		if stm, ok := intEntry(trailer, "XRefStm"); ok {
			next = append(next, stm)
		}
		if prev, ok := intEntry(trailer, "Prev"); ok {
			next = append(next, prev)
		}
		queue = append(next, queue...)
	}
	if t.trailer == nil {
		return nil, malformed(start, "no trailer")
	}
	if _, ok := t.trailer.Get("Root"); !ok {
		return nil, malformed(start, "trailer has no /Root")
	}
	t.trailer.Delete("Prev")
	t.trailer.Delete("XRefStm")
	return t, nil
}

func findStartXRef(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, malformed(int64(len(data)), "startxref not found")
	}
	s := scanner.New(data, scanner.Config{})
	if err := s.SeekTo(int64(idx + len("startxref"))); err != nil {
		return 0, err
	}
	tok, err := s.Next()
	if err != nil || tok.Type != scanner.TokenNumber || !tok.IsInt {
		return 0, malformed(int64(idx), "startxref offset missing")
	}
	if tok.Int <= 0 || tok.Int >= int64(len(data)) {
		return 0, malformed(int64(idx), "startxref offset %d out of range", tok.Int)
	}
	return tok.Int, nil
}

// readSection merges the section at off into t and returns its trailer.
func (r *Resolver) readSection(ctx context.Context, data []byte, off int64, t *Table) (*raw.DictObj, error) {
	if off < 0 || off >= int64(len(data)) {
		return nil, malformed(off, "offset out of range")
	}
	s := scanner.New(data, scanner.Config{MaxArrayDepth: 64, MaxDictDepth: 64})
	if err := s.SeekTo(off); err != nil {
		return nil, malformed(off, "%v", err)
	}
	or := scanner.NewObjectReader(s)
	tok, err := or.Next()
	if err != nil {
		return nil, malformed(off, "%v", err)
	}
	if tok.IsKeyword("xref") {
		return readClassic(or, off, t)
	}
	or.Unread(tok)
	_, obj, err := or.ReadIndirect()
	if err != nil {
		return nil, malformed(off, "neither xref table nor xref stream: %v", err)
	}
	stm, ok := obj.(*raw.StreamObj)
	if !ok || stm.Dict.Name("Type") != "XRef" {
		return nil, malformed(off, "object is not an xref stream")
	}
	if err := r.readStream(ctx, stm, off, t); err != nil {
		return nil, err
	}
	return stm.Dict, nil
}

func readClassic(or *scanner.ObjectReader, off int64, t *Table) (*raw.DictObj, error) {
	for {
		tok, err := or.Next()
		if err != nil {
			return nil, malformed(off, "xref table not terminated by trailer")
		}
		if tok.IsKeyword("trailer") {
			break
		}
		cnt, err := or.Next()
		if err != nil || tok.Type != scanner.TokenNumber || cnt.Type != scanner.TokenNumber {
			return nil, malformed(tok.Pos, "bad subsection header")
		}
		first, count := int(tok.Int), int(cnt.Int)
		if first < 0 || count < 0 {
			return nil, malformed(tok.Pos, "negative subsection bounds")
		}
		for i := 0; i < count; i++ {
			o, err1 := or.Next()
			g, err2 := or.Next()
			k, err3 := or.Next()
			if err := errors.Join(err1, err2, err3); err != nil || o.Type != scanner.TokenNumber || g.Type != scanner.TokenNumber || k.Type != scanner.TokenKeyword {
				return nil, malformed(o.Pos, "bad entry %d of subsection %d", i, first)
			}
			num := first + i
			switch k.Str {
			case "n":
				t.set(num, Entry{Kind: EntryInUse, Offset: o.Int, Gen: int(g.Int)})
			case "f":
				t.set(num, Entry{Kind: EntryFree, Gen: int(g.Int)})
			default:
				return nil, malformed(k.Pos, "entry type %q", k.Str)
			}
		}
	}
	obj, err := or.ReadObject()
	if err != nil {
		return nil, malformed(off, "trailer: %v", err)
	}
	trailer, ok := obj.(*raw.DictObj)
	if !ok {
		return nil, malformed(off, "trailer is not a dictionary")
	}
	return trailer, nil
}

func (r *Resolver) readStream(ctx context.Context, stm *raw.StreamObj, off int64, t *Table) error {
	w, ok := stm.Dict.Get("W")
	warr, isArr := w.(*raw.ArrayObj)
	if !ok || !isArr || warr.Len() != 3 {
		return malformed(off, "xref stream /W must have three entries")
	}
	var widths [3]int
	rowLen := 0
	for i := range widths {
		n, _ := warr.Items[i].(raw.NumberObj)
		widths[i] = int(n.Int())
		if widths[i] < 0 || widths[i] > 8 {
			return malformed(off, "xref stream field width %d", widths[i])
		}
		rowLen += widths[i]
	}
	if rowLen == 0 {
		return malformed(off, "xref stream rows are empty")
	}
	names, params := filters.ExtractFilters(stm.Dict, nil)
	payload, err := r.cfg.Filters.Decode(ctx, stm.Data, names, params)
	if err != nil {
		return malformed(off, "decode xref stream: %v", err)
	}

	size, _ := intEntry(stm.Dict, "Size")
	index := []int64{0, size}
	if ix, ok := stm.Dict.Get("Index"); ok {
		if arr, ok := ix.(*raw.ArrayObj); ok && arr.Len()%2 == 0 {
			index = index[:0]
			for _, it := range arr.Items {
				n, _ := it.(raw.NumberObj)
				index = append(index, n.Int())
			}
		}
	}
	row := 0
	for i := 0; i+1 < len(index); i += 2 {
		first, count := int(index[i]), int(index[i+1])
		for j := 0; j < count; j++ {
			at := row * rowLen
			if at+rowLen > len(payload) {
				return malformed(off, "xref stream holds %d bytes, need %d", len(payload), at+rowLen)
			}
			rec := payload[at : at+rowLen]
			row++
			typ := int64(1)
			if widths[0] > 0 {
				typ = field(rec[:widths[0]])
			}
			f2 := field(rec[widths[0] : widths[0]+widths[1]])
			f3 := field(rec[widths[0]+widths[1]:])
			num := first + j
			switch typ {
			case 0:
				t.set(num, Entry{Kind: EntryFree, Gen: int(f3)})
			case 1:
				t.set(num, Entry{Kind: EntryInUse, Offset: f2, Gen: int(f3)})
			case 2:
				t.set(num, Entry{Kind: EntryCompressed, Stream: int(f2), Index: int(f3)})
			}
		}
	}
	return nil
}

func field(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

// verifyOffsets checks that in-use entries point at their object headers.
func (r *Resolver) verifyOffsets(data []byte, t *Table) error {
	for num, e := range t.entries {
		if e.Kind != EntryInUse || num == 0 {
			continue
		}
		if !headerAt(data, e.Offset, num) {
			return malformed(e.Offset, "entry for object %d does not point at its header", num)
		}
	}
	return nil
}

func headerAt(data []byte, off int64, num int) bool {
	if off < 0 || off >= int64(len(data)) {
		return false
	}
	p := int(off)
	for p < len(data) && isSpace(data[p]) {
		p++
	}
	want := strconv.Itoa(num)
	if !bytes.HasPrefix(data[p:], []byte(want)) {
		return false
	}
	p += len(want)
	return p < len(data) && isSpace(data[p])
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func intEntry(d *raw.DictObj, key string) (int64, bool) {
	v, ok := d.Get(key)
	if !ok {
		return 0, false
	}
	n, ok := v.(raw.NumberObj)
	if !ok {
		return 0, false
	}
	return n.Int(), true
}
