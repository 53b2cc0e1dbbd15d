package writer

import (
	"context"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/blake2b"

	"github.com/wudi/pdfredact/ir/raw"
	"github.com/wudi/pdfredact/observability"
)

// writeIncremental copies the source and appends the changed objects with
// an xref section chained to the previous one through /Prev. Objects that
// were deleted get free entries.
func writeIncremental(ctx context.Context, doc *raw.Document, w io.Writer, cfg Config, log observability.Logger) error {
	dirty := doc.DirtyRefs()
	for _, ref := range dirty {
		if obj, ok := doc.Objects[ref]; ok {
			if err := checkRefs(doc, obj, ref); err != nil {
				return err
			}
		}
	}
	for _, key := range []string{"Root", "Info"} {
		if o, ok := doc.Trailer.Get(key); ok {
			if err := checkRefs(doc, o, raw.ObjectRef{}); err != nil {
				return err
			}
		}
	}

	var h hash.Hash
	if cfg.Deterministic {
		h, _ = blake2b.New256(nil)
	}
	out := newSink(w, 0, nil)
	out.write(doc.Source)
	if n := len(doc.Source); n > 0 && doc.Source[n-1] != '\n' && doc.Source[n-1] != '\r' {
		out.write([]byte{'\n'})
	}
	out.h = h

	entries := make([]xrefEntry, 0, len(dirty))
	enc := cfg.encoder()
	for _, ref := range dirty {
		if err := ctx.Err(); err != nil {
			return err
		}
		obj, ok := doc.Objects[ref]
		if !ok {
			entries = append(entries, xrefEntry{num: ref.Num, gen: ref.Gen + 1, free: true})
			continue
		}
		var off int64
		if stm, ok := obj.(*raw.StreamObj); ok {
			dict := stm.Dict.Clone()
			if dict == nil {
				dict = raw.Dict()
			}
			data := stm.Data
			if _, filtered := dict.Get("Filter"); !filtered && enc != nil {
				encoded, err := enc.Encode(data)
				if err != nil {
					return fmt.Errorf("encode object %s: %w", ref, err)
				}
				data = encoded
				dict.Set("Filter", raw.NameLiteral(enc.Name()))
			}
			dict.Set("Length", raw.NumberInt(int64(len(data))))
			off = out.object(ref.Num, ref.Gen, raw.NewStream(dict, nil), data)
		} else {
			off = out.object(ref.Num, ref.Gen, obj, nil)
		}
		entries = append(entries, xrefEntry{num: ref.Num, gen: ref.Gen, offset: off})
	}
	if out.err != nil {
		return out.err
	}

	trailer := raw.Dict()
	size := int64(doc.MaxObjectNumber() + 1)
	if prev, ok := doc.Int(entry(doc.Trailer, "Size")); ok && prev > size {
		size = prev
	}
	trailer.Set("Size", raw.NumberInt(size))
	root, _ := doc.Trailer.Get("Root")
	trailer.Set("Root", root)
	if info, ok := doc.Trailer.Get("Info"); ok {
		trailer.Set("Info", info)
	}
	trailer.Set("Prev", raw.NumberInt(doc.StartXRef))
	trailer.Set("ID", fileID(doc, h, true))

	startxref := out.xref(entries)
	out.trailer(trailer, startxref)
	if err := out.flush(); err != nil {
		return err
	}
	log.Debug("incremental update written",
		observability.Int("objects", len(entries)),
		observability.Int64("prev", doc.StartXRef),
		observability.Int64("bytes", out.off))
	return nil
}

func checkRefs(doc *raw.Document, o raw.Object, from raw.ObjectRef) error {
	switch v := o.(type) {
	case raw.RefObj:
		if _, ok := doc.Lookup(v.R); !ok {
			return &WriteError{Kind: KindUnresolvedReference, Object: v.R, From: from}
		}
	case *raw.ArrayObj:
		for _, it := range v.Items {
			if err := checkRefs(doc, it, from); err != nil {
				return err
			}
		}
	case *raw.DictObj:
		for _, k := range v.Keys() {
			if err := checkRefs(doc, v.KV[k], from); err != nil {
				return err
			}
		}
	case *raw.StreamObj:
		return checkRefs(doc, v.Dict, from)
	}
	return nil
}
