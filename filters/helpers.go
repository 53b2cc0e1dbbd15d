package filters

import (
	"context"

	"github.com/wudi/pdfredact/ir/raw"
)

// Resolver dereferences indirect objects found in stream dictionaries.
type Resolver interface {
	Resolve(o raw.Object) raw.Object
}

type identityResolver struct{}

func (identityResolver) Resolve(o raw.Object) raw.Object { return o }

// ExtractFilters reads Filter and DecodeParms entries from a stream dictionary.
// The params slice is aligned with names; missing entries are nil.
func ExtractFilters(dict *raw.DictObj, r Resolver) ([]string, []*raw.DictObj) {
	if r == nil {
		r = identityResolver{}
	}
	var names []string
	filterObj, ok := dict.Get("Filter")
	if !ok {
		filterObj, ok = dict.Get("F")
		if !ok {
			return nil, nil
		}
		if _, isName := r.Resolve(filterObj).(raw.NameObj); !isName {
			if _, isArr := r.Resolve(filterObj).(*raw.ArrayObj); !isArr {
				return nil, nil
			}
		}
	}
	switch f := r.Resolve(filterObj).(type) {
	case raw.NameObj:
		names = append(names, f.Val)
	case *raw.ArrayObj:
		for _, item := range f.Items {
			if n, ok := r.Resolve(item).(raw.NameObj); ok {
				names = append(names, n.Val)
			}
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	params := make([]*raw.DictObj, len(names))
	pObj, ok := dict.Get("DecodeParms")
	if !ok {
		pObj, ok = dict.Get("DP")
	}
	if ok {
		switch p := r.Resolve(pObj).(type) {
		case *raw.DictObj:
			params[0] = resolveParams(p, r)
		case *raw.ArrayObj:
			for i, item := range p.Items {
				if i >= len(params) {
					break
				}
				if d, ok := r.Resolve(item).(*raw.DictObj); ok {
					params[i] = resolveParams(d, r)
				}
			}
		}
	}
	return names, params
}

func resolveParams(d *raw.DictObj, r Resolver) *raw.DictObj {
	out := raw.Dict()
	for k, v := range d.KV {
		out.Set(k, r.Resolve(v))
	}
	return out
}

// IsImageCodec reports whether a filter is an image compression the
// pipeline never decodes.
func IsImageCodec(name string) bool {
	switch CanonicalName(name) {
	case "DCTDecode", "JPXDecode", "CCITTFaxDecode", "JBIG2Decode":
		return true
	}
	return false
}

// DecodeStream returns the decoded payload of s, memoized on the stream.
// The memoized result must not depend on one caller's cancellation, so only
// the pipeline's own decode deadline bounds the work.
func DecodeStream(ctx context.Context, p *Pipeline, s *raw.StreamObj, r Resolver) ([]byte, error) {
	ctx = context.WithoutCancel(ctx)
	return s.Memo(func(s *raw.StreamObj) ([]byte, error) {
		names, params := ExtractFilters(s.Dict, r)
		if len(names) == 0 {
			return s.Data, nil
		}
		return p.Decode(ctx, s.Data, names, params)
	})
}

func intParam(d *raw.DictObj, key string, def int) int {
	if d == nil {
		return def
	}
	if n, ok := d.KV[key].(raw.NumberObj); ok {
		return int(n.Int())
	}
	return def
}
