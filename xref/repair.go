package xref

import (
	"context"
	"errors"
	"io"

	"github.com/wudi/pdfredact/filters"
	"github.com/wudi/pdfredact/ir/raw"
	"github.com/wudi/pdfredact/scanner"
)

// repair scans the entire file to reconstruct the xref table. Every
// "<num> <gen> obj" header is indexed, later definitions winning. The trailer
// is the last "trailer" dictionary, else the last xref stream dictionary;
// a catalog found on the way stands in for a missing /Root.
func (r *Resolver) repair(ctx context.Context, data []byte) (*Table, error) {
	s := scanner.New(data, scanner.Config{MaxArrayDepth: 64, MaxDictDepth: 64})
	or := scanner.NewObjectReader(s)
	t := newTable()
	t.Repaired = true

	direct := make(map[int]Entry)
	var trailer, xrefDict *raw.DictObj
	var catalog raw.ObjectRef
	var objStreams []*raw.StreamObj
	var objStreamNums []int

	var prev [2]scanner.Token
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tok, err := or.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// Skip the offending byte and keep scanning.
			if s.SeekTo(s.Position()+1) != nil {
				break
			}
			prev = [2]scanner.Token{}
			continue
		}
		switch {
		case tok.IsKeyword("obj") && prev[0].Type == scanner.TokenNumber && prev[1].Type == scanner.TokenNumber && prev[0].IsInt && prev[1].IsInt:
			num, gen := int(prev[0].Int), int(prev[1].Int)
			if num <= 0 {
				break
			}
			direct[num] = Entry{Kind: EntryInUse, Offset: prev[0].Pos, Gen: gen}
			obj, ok := r.peekObject(or)
			if !ok {
				break
			}
			switch v := obj.(type) {
			case *raw.DictObj:
				if v.Name("Type") == "Catalog" {
					catalog = raw.ObjectRef{Num: num, Gen: gen}
				}
			case *raw.StreamObj:
				switch v.Dict.Name("Type") {
				case "XRef":
					xrefDict = v.Dict
				case "ObjStm":
					objStreams = append(objStreams, v)
					objStreamNums = append(objStreamNums, num)
				}
			}
		case tok.IsKeyword("trailer"):
			if obj, err := or.ReadObject(); err == nil {
				if d, ok := obj.(*raw.DictObj); ok {
					trailer = d
				}
			}
		}
		prev[0], prev[1] = prev[1], tok
	}

	for num, e := range direct {
		t.entries[num] = e
	}
	for i, stm := range objStreams {
		nums, err := r.objStmNumbers(ctx, stm)
		if err != nil {
			continue
		}
		for idx, num := range nums {
			t.set(num, Entry{Kind: EntryCompressed, Stream: objStreamNums[i], Index: idx})
		}
	}
	if len(t.entries) == 0 {
		return nil, ErrNoObjects
	}

	switch {
	case trailer != nil:
		t.trailer = trailer.Clone()
	case xrefDict != nil:
		t.trailer = xrefDict.Clone()
		for _, k := range []string{"Type", "W", "Index", "Filter", "DecodeParms", "Length"} {
			t.trailer.Delete(k)
		}
	default:
		t.trailer = raw.Dict()
	}
	t.trailer.Delete("Prev")
	t.trailer.Delete("XRefStm")
	if root, ok := t.trailer.Get("Root"); !ok || !t.live(root) {
		if catalog.Num == 0 {
			return nil, malformed(0, "repair found no document catalog")
		}
		t.trailer.Set("Root", raw.Ref(catalog.Num, catalog.Gen))
	}
	max := 0
	for n := range t.entries {
		if n > max {
			max = n
		}
	}
	t.trailer.Set("Size", raw.NumberInt(int64(max+1)))
	return t, nil
}

func (t *Table) live(o raw.Object) bool {
	ref, ok := o.(raw.RefObj)
	if !ok {
		return false
	}
	_, ok = t.Lookup(ref.R.Num)
	return ok
}

// peekObject reads the object body following an "obj" keyword. On failure
// the scan resumes right after the keyword.
func (r *Resolver) peekObject(or *scanner.ObjectReader) (raw.Object, bool) {
	s := or.Scanner()
	resume := s.Position()
	obj, err := or.ReadObject()
	if err != nil {
		_ = or.SeekTo(resume)
		return nil, false
	}
	if d, ok := obj.(*raw.DictObj); ok {
		tok, err := or.Next()
		if err == nil && tok.Type == scanner.TokenStream {
			return raw.NewStream(d, tok.Bytes), true
		}
		if err == nil {
			or.Unread(tok)
		}
	}
	return obj, true
}

// objStmNumbers lists the object numbers stored in an object stream, in
// index order.
func (r *Resolver) objStmNumbers(ctx context.Context, stm *raw.StreamObj) ([]int, error) {
	names, params := filters.ExtractFilters(stm.Dict, nil)
	data, err := r.cfg.Filters.Decode(ctx, stm.Data, names, params)
	if err != nil {
		return nil, err
	}
	n, _ := intEntry(stm.Dict, "N")
	first, _ := intEntry(stm.Dict, "First")
	pairs, err := ObjStmHeader(data, int(n), int(first))
	if err != nil {
		return nil, err
	}
	nums := make([]int, len(pairs))
	for i, p := range pairs {
		nums[i] = p.Num
	}
	return nums, nil
}

// ObjStmEntry is one object number / relative offset pair from an object
// stream header.
type ObjStmEntry struct {
	Num    int
	Offset int
}

// ObjStmHeader parses the n pairs preceding first in a decoded object stream.
func ObjStmHeader(data []byte, n, first int) ([]ObjStmEntry, error) {
	if n < 0 || first < 0 || first > len(data) {
		return nil, malformed(0, "object stream /N %d /First %d", n, first)
	}
	s := scanner.New(data[:first], scanner.Config{})
	out := make([]ObjStmEntry, 0, n)
	for len(out) < n {
		num, err1 := s.Next()
		off, err2 := s.Next()
		if err := errors.Join(err1, err2); err != nil {
			return out, malformed(0, "object stream header holds %d of %d entries", len(out), n)
		}
		if num.Type != scanner.TokenNumber || off.Type != scanner.TokenNumber {
			return out, malformed(num.Pos, "object stream header is not numeric")
		}
		out = append(out, ObjStmEntry{Num: int(num.Int), Offset: first + int(off.Int)})
	}
	return out, nil
}
