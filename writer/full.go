package writer

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/blake2b"

	"github.com/wudi/pdfredact/filters"
	"github.com/wudi/pdfredact/ir/raw"
	"github.com/wudi/pdfredact/observability"
)

// encodedStream is the output form of a reachable stream.
type encodedStream struct {
	dict *raw.DictObj
	data []byte
}

// plan numbers every object reachable from the trailer, breadth first, and
// fixes the payload each stream will be written with.
type plan struct {
	doc      *raw.Document
	cfg      Config
	pipeline *filters.Pipeline
	log      observability.Logger

	order   []raw.ObjectRef
	renum   map[raw.ObjectRef]int
	streams map[raw.ObjectRef]encodedStream

	recoded, verbatim int
}

func newPlan(doc *raw.Document, cfg Config, log observability.Logger) *plan {
	limits := cfg.Limits.Normalize()
	return &plan{
		doc: doc,
		cfg: cfg,
		pipeline: filters.NewDefaultPipeline(filters.Limits{
			MaxDecompressedSize: limits.MaxDecompressedSize,
			MaxDecodeTime:       limits.MaxDecodeTime,
		}),
		log:     log,
		renum:   make(map[raw.ObjectRef]int),
		streams: make(map[raw.ObjectRef]encodedStream),
	}
}

// canonical maps ref to the key the object is stored under. Generation
// mismatches fall back to the object number, as Lookup does.
func (p *plan) canonical(ref raw.ObjectRef) (raw.ObjectRef, bool) {
	if _, ok := p.doc.Objects[ref]; ok {
		return ref, true
	}
	best, found := raw.ObjectRef{}, false
	for r := range p.doc.Objects {
		if r.Num == ref.Num && (!found || r.Gen < best.Gen) {
			best, found = r, true
		}
	}
	return best, found
}

func (p *plan) build(ctx context.Context) error {
	var queue []raw.ObjectRef
	enqueue := func(o raw.Object, from raw.ObjectRef) error {
		return p.walk(o, from, &queue)
	}
	root, ok := p.doc.Trailer.Get("Root")
	if !ok {
		return &WriteError{Kind: KindUnresolvedReference, Err: errors.New("trailer has no /Root")}
	}
	if err := enqueue(root, raw.ObjectRef{}); err != nil {
		return err
	}
	if info, ok := p.doc.Trailer.Get("Info"); ok {
		if err := enqueue(info, raw.ObjectRef{}); err != nil {
			return err
		}
	}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		ref := queue[0]
		queue = queue[1:]
		obj := p.doc.Objects[ref]
		if stm, ok := obj.(*raw.StreamObj); ok {
			enc, err := p.encode(ctx, ref, stm)
			if err != nil {
				return err
			}
			p.streams[ref] = enc
			obj = enc.dict
		}
		if err := enqueue(obj, ref); err != nil {
			return err
		}
	}
	return nil
}

func (p *plan) walk(o raw.Object, from raw.ObjectRef, queue *[]raw.ObjectRef) error {
	switch v := o.(type) {
	case raw.RefObj:
		ref, ok := p.canonical(v.R)
		if !ok {
			return &WriteError{Kind: KindUnresolvedReference, Object: v.R, From: from}
		}
		if _, seen := p.renum[ref]; !seen {
			p.order = append(p.order, ref)
			p.renum[ref] = len(p.order)
			*queue = append(*queue, ref)
		}
	case *raw.ArrayObj:
		for _, it := range v.Items {
			if err := p.walk(it, from, queue); err != nil {
				return err
			}
		}
	case *raw.DictObj:
		for _, k := range v.Keys() {
			if err := p.walk(v.KV[k], from, queue); err != nil {
				return err
			}
		}
	case *raw.StreamObj:
		return p.walk(v.Dict, from, queue)
	}
	return nil
}

// encode decodes stm and re-encodes it with the configured filter. Streams
// the pipeline cannot decode keep their payload and filter chain.
func (p *plan) encode(ctx context.Context, ref raw.ObjectRef, stm *raw.StreamObj) (encodedStream, error) {
	dict := stm.Dict.Clone()
	if dict == nil {
		dict = raw.Dict()
	}
	dict.Delete("Length")
	names, _ := filters.ExtractFilters(stm.Dict, p.doc)
	if len(names) > 0 && !p.pipeline.Supports(names) {
		return p.keep(dict, stm), nil
	}
	data, err := filters.DecodeStream(ctx, p.pipeline, stm, p.doc)
	if err != nil {
		if ctx.Err() != nil {
			return encodedStream{}, ctx.Err()
		}
		p.log.Debug("stream copied undecoded", observability.String("object", ref.String()), observability.Error("error", err))
		return p.keep(dict, stm), nil
	}
	dict.Delete("Filter")
	dict.Delete("DecodeParms")
	dict.Delete("DL")
	if _, ok := stm.Dict.Get("Filter"); !ok && len(names) > 0 {
		// chain given under the abbreviated keys
		dict.Delete("F")
		dict.Delete("DP")
	}
	if enc := p.cfg.encoder(); enc != nil && dict.Name("Type") != "Metadata" {
		out, err := enc.Encode(data)
		if err != nil {
			return encodedStream{}, fmt.Errorf("encode object %s: %w", ref, err)
		}
		data = out
		dict.Set("Filter", raw.NameLiteral(enc.Name()))
	}
	p.recoded++
	dict.Set("Length", raw.NumberInt(int64(len(data))))
	return encodedStream{dict: dict, data: data}, nil
}

func (p *plan) keep(dict *raw.DictObj, stm *raw.StreamObj) encodedStream {
	p.verbatim++
	dict.Set("Length", raw.NumberInt(int64(len(stm.Data))))
	return encodedStream{dict: dict, data: stm.Data}
}

// remap copies o with every reference renumbered.
func (p *plan) remap(o raw.Object) raw.Object {
	switch v := o.(type) {
	case raw.RefObj:
		ref, _ := p.canonical(v.R)
		return raw.Ref(p.renum[ref], 0)
	case *raw.ArrayObj:
		out := raw.NewArray()
		out.Items = make([]raw.Object, len(v.Items))
		for i, it := range v.Items {
			out.Items[i] = p.remap(it)
		}
		return out
	case *raw.DictObj:
		out := raw.Dict()
		for k, val := range v.KV {
			out.KV[k] = p.remap(val)
		}
		return out
	}
	return o
}

func writeFull(ctx context.Context, doc *raw.Document, w io.Writer, cfg Config, log observability.Logger) error {
	p := newPlan(doc, cfg, log)
	if err := p.build(ctx); err != nil {
		return err
	}

	var h hash.Hash
	if cfg.Deterministic {
		h, _ = blake2b.New256(nil)
	}
	out := newSink(w, 0, h)
	out.header(version(doc, cfg))

	entries := make([]xrefEntry, 0, len(p.order)+1)
	entries = append(entries, xrefEntry{num: 0, gen: 65535, free: true})
	for i, ref := range p.order {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		num := i + 1
		var off int64
		if enc, ok := p.streams[ref]; ok {
			stm := raw.NewStream(p.remap(enc.dict).(*raw.DictObj), nil)
			off = out.object(num, 0, stm, enc.data)
		} else {
			off = out.object(num, 0, p.remap(doc.Objects[ref]), nil)
		}
		entries = append(entries, xrefEntry{num: num, offset: off})
	}
	if out.err != nil {
		return out.err
	}

	trailer := raw.Dict()
	trailer.Set("Size", raw.NumberInt(int64(len(p.order)+1)))
	root, _ := doc.Trailer.Get("Root")
	trailer.Set("Root", p.remap(root))
	if info, ok := doc.Trailer.Get("Info"); ok {
		trailer.Set("Info", p.remap(info))
	}
	trailer.Set("ID", fileID(doc, h, !cfg.Deterministic))

	startxref := out.xref(entries)
	out.trailer(trailer, startxref)
	if err := out.flush(); err != nil {
		return err
	}
	log.Debug("document written",
		observability.Int("objects", len(p.order)),
		observability.Int("dropped", len(doc.Objects)-len(p.order)),
		observability.Int("streams_recoded", p.recoded),
		observability.Int("streams_verbatim", p.verbatim),
		observability.Int64("bytes", out.off))
	return nil
}

// fileID renews the second identifier. The first is kept from the source
// when keepFirst is set and the source has one. With h set the new half is
// taken from the hash of the bytes written so far.
func fileID(doc *raw.Document, h hash.Hash, keepFirst bool) *raw.ArrayObj {
	var second []byte
	if h != nil {
		second = h.Sum(nil)[:16]
	} else {
		second = make([]byte, 16)
		if _, err := rand.Read(second); err != nil {
			sum := blake2b.Sum256(doc.Source)
			second = sum[:16]
		}
	}
	first := second
	if id := sourceID(doc); keepFirst && id != nil {
		first = id
	}
	return raw.NewArray(raw.HexStr(first), raw.HexStr(second))
}

func sourceID(doc *raw.Document) []byte {
	arr, ok := doc.Resolve(entry(doc.Trailer, "ID")).(*raw.ArrayObj)
	if !ok || arr.Len() == 0 {
		return nil
	}
	if s, ok := doc.Resolve(arr.Items[0]).(raw.StringObj); ok && len(s.Bytes) > 0 {
		return s.Bytes
	}
	return nil
}

func entry(d *raw.DictObj, key string) raw.Object {
	if o, ok := d.Get(key); ok {
		return o
	}
	return raw.NullObj{}
}
