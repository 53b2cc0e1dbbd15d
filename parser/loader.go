package parser

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfredact/filters"
	"github.com/wudi/pdfredact/ir/raw"
	"github.com/wudi/pdfredact/recovery"
	"github.com/wudi/pdfredact/scanner"
	"github.com/wudi/pdfredact/security"
	"github.com/wudi/pdfredact/xref"
)

// objectLoader reads indirect objects located through the xref table and
// decrypts them. It is used by a single Parse call and is not shared.
type objectLoader struct {
	data     []byte
	table    *xref.Table
	security security.Handler
	limits   security.Limits
	pipeline *filters.Pipeline
	recovery recovery.Strategy

	// noDecrypt holds object numbers whose strings stay as stored: the
	// encryption dictionary itself.
	noDecrypt map[int]bool
	objstm    map[int]map[int]raw.Object
	lengths   map[int]int64
	loading   map[int]bool
}

func newObjectLoader(data []byte, table *xref.Table, limits security.Limits, pipeline *filters.Pipeline, rec recovery.Strategy) *objectLoader {
	return &objectLoader{
		data:      data,
		table:     table,
		security:  security.NoopHandler(),
		limits:    limits,
		pipeline:  pipeline,
		recovery:  rec,
		noDecrypt: make(map[int]bool),
		objstm:    make(map[int]map[int]raw.Object),
		lengths:   make(map[int]int64),
		loading:   make(map[int]bool),
	}
}

func (o *objectLoader) scannerConfig() scanner.Config {
	return scanner.Config{
		Recovery:        o.recovery,
		MaxStringLength: int64(o.limits.MaxStringLength),
		MaxArrayDepth:   o.limits.MaxNestingDepth,
		MaxDictDepth:    o.limits.MaxNestingDepth,
		MaxStreamLength: int64(o.limits.MaxStreamLength),
	}
}

// Load returns the object with the given number and its full id.
func (o *objectLoader) Load(ctx context.Context, num int) (raw.ObjectRef, raw.Object, error) {
	e, ok := o.table.Lookup(num)
	if !ok {
		return raw.ObjectRef{}, nil, fmt.Errorf("object %d not in xref", num)
	}
	if e.Kind == xref.EntryCompressed {
		obj, err := o.loadCompressed(ctx, num, e)
		return raw.ObjectRef{Num: num}, obj, err
	}
	ref, obj, err := o.loadAt(num, e.Offset)
	if err != nil {
		return ref, nil, err
	}
	if ref.Gen != e.Gen {
		ref.Gen = e.Gen
	}
	obj, err = o.decrypt(ref, obj)
	return ref, obj, err
}

func (o *objectLoader) loadAt(num int, offset int64) (raw.ObjectRef, raw.Object, error) {
	s := scanner.New(o.data, o.scannerConfig())
	if err := s.SeekTo(offset); err != nil {
		return raw.ObjectRef{Num: num}, nil, err
	}
	s.SetRecoveryLocation(recovery.Location{ObjectNum: num})
	or := scanner.NewObjectReader(s)
	or.StreamLength = o.streamLength
	ref, obj, err := or.ReadIndirect()
	if err != nil {
		return raw.ObjectRef{Num: num}, nil, err
	}
	if ref.Num != num {
		return raw.ObjectRef{Num: num}, nil, fmt.Errorf("offset %d holds object %d, want %d", offset, ref.Num, num)
	}
	return ref, obj, nil
}

// streamLength resolves an indirect /Length.
func (o *objectLoader) streamLength(v raw.Object) (int64, bool) {
	ref, ok := v.(raw.RefObj)
	if !ok {
		return 0, false
	}
	num := ref.R.Num
	if n, ok := o.lengths[num]; ok {
		return n, true
	}
	e, ok := o.table.Lookup(num)
	if !ok || e.Kind != xref.EntryInUse || o.loading[num] {
		return 0, false
	}
	o.loading[num] = true
	defer delete(o.loading, num)
	_, obj, err := o.loadAt(num, e.Offset)
	if err != nil {
		return 0, false
	}
	n, ok := obj.(raw.NumberObj)
	if !ok {
		return 0, false
	}
	o.lengths[num] = n.Int()
	return n.Int(), true
}

func (o *objectLoader) loadCompressed(ctx context.Context, num int, e xref.Entry) (raw.Object, error) {
	objs, ok := o.objstm[e.Stream]
	if !ok {
		var err error
		objs, err = o.readObjectStream(ctx, e.Stream)
		if err != nil {
			return nil, fmt.Errorf("object stream %d: %w", e.Stream, err)
		}
		o.objstm[e.Stream] = objs
	}
	obj, ok := objs[num]
	if !ok {
		return nil, fmt.Errorf("object %d missing from object stream %d", num, e.Stream)
	}
	return obj, nil
}

func (o *objectLoader) readObjectStream(ctx context.Context, num int) (map[int]raw.Object, error) {
	e, ok := o.table.Lookup(num)
	if !ok || e.Kind != xref.EntryInUse {
		return nil, errors.New("object stream is not a direct object")
	}
	ref, obj, err := o.loadAt(num, e.Offset)
	if err != nil {
		return nil, err
	}
	obj, err = o.decrypt(ref, obj)
	if err != nil {
		return nil, err
	}
	stm, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, errors.New("not a stream")
	}
	names, params := filters.ExtractFilters(stm.Dict, nil)
	data, err := o.pipeline.Decode(ctx, stm.Data, names, params)
	if err != nil {
		return nil, err
	}
	n, _ := stm.Dict.Get("N")
	first, _ := stm.Dict.Get("First")
	nv, _ := n.(raw.NumberObj)
	fv, _ := first.(raw.NumberObj)
	entries, err := xref.ObjStmHeader(data, int(nv.Int()), int(fv.Int()))
	if err != nil {
		return nil, err
	}
	out := make(map[int]raw.Object, len(entries))
	s := scanner.New(data, o.scannerConfig())
	or := scanner.NewObjectReader(s)
	for _, ent := range entries {
		if err := or.SeekTo(int64(ent.Offset)); err != nil {
			return nil, err
		}
		s.SetRecoveryLocation(recovery.Location{ObjectNum: ent.Num})
		item, err := or.ReadObject()
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", ent.Num, err)
		}
		out[ent.Num] = item
	}
	return out, nil
}

// decrypt replaces every string and stream payload of obj with its
// plaintext. Objects inside object streams are never passed here: the
// containing stream was decrypted as a whole.
func (o *objectLoader) decrypt(ref raw.ObjectRef, obj raw.Object) (raw.Object, error) {
	if !o.security.IsEncrypted() || o.noDecrypt[ref.Num] {
		return obj, nil
	}
	switch v := obj.(type) {
	case raw.StringObj:
		dec, err := o.security.Decrypt(ref, v.Bytes, security.DataClassString)
		if err != nil {
			return nil, err
		}
		return raw.StringObj{Bytes: dec, Hex: v.Hex}, nil
	case *raw.ArrayObj:
		for i, item := range v.Items {
			dec, err := o.decrypt(ref, item)
			if err != nil {
				return nil, err
			}
			v.Items[i] = dec
		}
		return v, nil
	case *raw.DictObj:
		for key, item := range v.KV {
			dec, err := o.decrypt(ref, item)
			if err != nil {
				return nil, err
			}
			v.KV[key] = dec
		}
		return v, nil
	case *raw.StreamObj:
		if v.Dict.Name("Type") == "XRef" {
			return v, nil
		}
		if _, err := o.decrypt(ref, v.Dict); err != nil {
			return nil, err
		}
		class := security.DataClassStream
		if v.Dict.Name("Type") == "Metadata" {
			class = security.DataClassMetadataStream
		}
		dec, err := o.security.DecryptWithFilter(ref, v.Data, class, cryptFilterName(v.Dict))
		if err != nil {
			return nil, err
		}
		v.SetData(dec)
		return v, nil
	}
	return obj, nil
}

// cryptFilterName returns the /Name of a Crypt filter in the chain, "" when
// the handler's default applies.
func cryptFilterName(d *raw.DictObj) string {
	names, params := filters.ExtractFilters(d, nil)
	for i, n := range names {
		if n != "Crypt" {
			continue
		}
		if params[i] != nil {
			if name := params[i].Name("Name"); name != "" {
				return name
			}
		}
		return "Identity"
	}
	return ""
}
