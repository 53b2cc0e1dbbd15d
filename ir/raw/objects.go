package raw

import (
	"sort"
	"sync"
)

// Name object
type NameObj struct{ Val string }

func (n NameObj) Type() string     { return "name" }
func (n NameObj) IsIndirect() bool { return false }
func (n NameObj) Value() string    { return n.Val }

// Number object
type NumberObj struct {
	I     int64
	F     float64
	IsInt bool
}

func (n NumberObj) Type() string     { return "number" }
func (n NumberObj) IsIndirect() bool { return false }
func (n NumberObj) Int() int64 {
	if n.IsInt {
		return n.I
	}
	return int64(n.F)
}
func (n NumberObj) Float() float64 {
	if n.IsInt {
		return float64(n.I)
	}
	return n.F
}

// Boolean object
type BoolObj struct{ V bool }

func (b BoolObj) Type() string     { return "boolean" }
func (b BoolObj) IsIndirect() bool { return false }

// Null object
type NullObj struct{}

func (n NullObj) Type() string     { return "null" }
func (n NullObj) IsIndirect() bool { return false }

// StringObj is a literal or hexadecimal string. Hex only affects how the
// writer spells it.
type StringObj struct {
	Bytes []byte
	Hex   bool
}

func (s StringObj) Type() string     { return "string" }
func (s StringObj) IsIndirect() bool { return false }
func (s StringObj) Value() []byte    { return s.Bytes }

// Array object
type ArrayObj struct{ Items []Object }

func (a *ArrayObj) Type() string     { return "array" }
func (a *ArrayObj) IsIndirect() bool { return false }
func (a *ArrayObj) Get(i int) (Object, bool) {
	if a == nil || i < 0 || i >= len(a.Items) {
		return nil, false
	}
	return a.Items[i], true
}
func (a *ArrayObj) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Items)
}
func (a *ArrayObj) Append(o ...Object) { a.Items = append(a.Items, o...) }

// Dictionary object
type DictObj struct{ KV map[string]Object }

func (d *DictObj) Type() string     { return "dict" }
func (d *DictObj) IsIndirect() bool { return false }
func (d *DictObj) Get(key string) (Object, bool) {
	if d == nil {
		return nil, false
	}
	o, ok := d.KV[key]
	return o, ok
}
func (d *DictObj) Set(key string, value Object) {
	if d.KV == nil {
		d.KV = make(map[string]Object)
	}
	d.KV[key] = value
}
func (d *DictObj) Delete(key string) bool {
	if d == nil {
		return false
	}
	_, ok := d.KV[key]
	delete(d.KV, key)
	return ok
}

// Keys returns the dictionary keys in sorted order.
func (d *DictObj) Keys() []string {
	if d == nil {
		return nil
	}
	keys := make([]string, 0, len(d.KV))
	for k := range d.KV {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
func (d *DictObj) Len() int {
	if d == nil {
		return 0
	}
	return len(d.KV)
}

// Name returns the value of a name entry, or "" when absent or not a name.
func (d *DictObj) Name(key string) string {
	if o, ok := d.Get(key); ok {
		if n, ok := o.(NameObj); ok {
			return n.Val
		}
	}
	return ""
}

// StreamObj is a stream dictionary plus its raw (still encoded) payload.
// The decoded payload is memoized and dropped whenever the data changes.
type StreamObj struct {
	Dict *DictObj
	Data []byte

	mu      sync.Mutex
	decoded []byte
	err     error
	cached  bool
}

func (s *StreamObj) Type() string     { return "stream" }
func (s *StreamObj) IsIndirect() bool { return false }

// Memo returns the cached decoded payload, calling decode on first use.
// Errors are cached too; they only go away when SetData replaces the payload.
func (s *StreamObj) Memo(decode func(*StreamObj) ([]byte, error)) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cached {
		s.decoded, s.err = decode(s)
		s.cached = true
	}
	return s.decoded, s.err
}

// SetData replaces the encoded payload and invalidates the decoded cache.
// The /Length entry follows the new payload.
func (s *StreamObj) SetData(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Data = data
	s.decoded, s.err, s.cached = nil, nil, false
	if s.Dict == nil {
		s.Dict = Dict()
	}
	s.Dict.Set("Length", NumberInt(int64(len(data))))
}

// Reference object
type RefObj struct{ R ObjectRef }

func (r RefObj) Type() string     { return "ref" }
func (r RefObj) IsIndirect() bool { return true }
func (r RefObj) Ref() ObjectRef   { return r.R }

// Helpers
func NameLiteral(v string) NameObj    { return NameObj{Val: v} }
func NumberInt(i int64) NumberObj     { return NumberObj{I: i, IsInt: true} }
func NumberFloat(f float64) NumberObj { return NumberObj{F: f, IsInt: false} }
func Bool(v bool) BoolObj             { return BoolObj{V: v} }
func Str(bytes []byte) StringObj      { return StringObj{Bytes: bytes} }
func HexStr(bytes []byte) StringObj   { return StringObj{Bytes: bytes, Hex: true} }
func NewArray(items ...Object) *ArrayObj {
	return &ArrayObj{Items: items}
}
func Dict() *DictObj { return &DictObj{KV: make(map[string]Object)} }
func NewStream(dict *DictObj, data []byte) *StreamObj {
	if dict == nil {
		dict = Dict()
	}
	return &StreamObj{Dict: dict, Data: data}
}
func Ref(num, gen int) RefObj { return RefObj{R: ObjectRef{Num: num, Gen: gen}} }

// Clone deep-copies direct objects. References are copied as ids, so the
// clone never shares indirect objects' storage.
func Clone(o Object) Object {
	switch v := o.(type) {
	case *ArrayObj:
		out := &ArrayObj{Items: make([]Object, len(v.Items))}
		for i, it := range v.Items {
			out.Items[i] = Clone(it)
		}
		return out
	case *DictObj:
		return v.Clone()
	case *StreamObj:
		data := make([]byte, len(v.Data))
		copy(data, v.Data)
		return &StreamObj{Dict: v.Dict.Clone(), Data: data}
	case StringObj:
		b := make([]byte, len(v.Bytes))
		copy(b, v.Bytes)
		return StringObj{Bytes: b, Hex: v.Hex}
	default:
		return o
	}
}

// Clone deep-copies the dictionary.
func (d *DictObj) Clone() *DictObj {
	if d == nil {
		return nil
	}
	out := &DictObj{KV: make(map[string]Object, len(d.KV))}
	for k, v := range d.KV {
		out.KV[k] = Clone(v)
	}
	return out
}
