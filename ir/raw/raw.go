package raw

import (
	"fmt"
	"sort"
)

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Object is the base interface for all raw PDF objects.
type Object interface {
	Type() string
	IsIndirect() bool
}

// MaxResolveDepth bounds chains of references to references.
const MaxResolveDepth = 32

// DocumentMetadata contains common PDF info fields.
type DocumentMetadata struct {
	Title        string
	Author       string
	Subject      string
	Keywords     string
	Creator      string
	Producer     string
	CreationDate string
	ModDate      string
}

// Document is the arena owning every indirect object of a loaded file.
// Objects link to each other through RefObj ids only.
type Document struct {
	Objects   map[ObjectRef]Object
	Trailer   *DictObj
	Version   string // header version, e.g. "1.7"
	Metadata  DocumentMetadata
	Encrypted bool
	Repaired  bool

	// Source is the original file; StartXRef the offset of its last xref
	// section. Both feed incremental updates.
	Source    []byte
	StartXRef int64

	// Redacted is set once content was removed. A redacted document must be
	// written in full so that no superseded object survives in the file.
	Redacted bool

	dirty map[ObjectRef]struct{}
}

// NewDocument returns an empty arena.
func NewDocument() *Document {
	return &Document{
		Objects: make(map[ObjectRef]Object),
		Trailer: Dict(),
		Version: "1.7",
		dirty:   make(map[ObjectRef]struct{}),
	}
}

// Lookup returns the object stored under ref.
func (d *Document) Lookup(ref ObjectRef) (Object, bool) {
	o, ok := d.Objects[ref]
	if ok {
		return o, true
	}
	// Generation mismatches are common in repaired files; fall back to the
	// object number alone.
	for r, o := range d.Objects {
		if r.Num == ref.Num {
			return o, true
		}
	}
	return nil, false
}

// Resolve follows references until it reaches a direct object. Unresolvable
// references resolve to NullObj, matching PDF semantics.
func (d *Document) Resolve(o Object) Object {
	for i := 0; i < MaxResolveDepth; i++ {
		ref, ok := o.(RefObj)
		if !ok {
			return o
		}
		target, ok := d.Lookup(ref.R)
		if !ok {
			return NullObj{}
		}
		o = target
	}
	return NullObj{}
}

func (d *Document) Dict(o Object) (*DictObj, bool) {
	switch v := d.Resolve(o).(type) {
	case *DictObj:
		return v, true
	case *StreamObj:
		return v.Dict, true
	}
	return nil, false
}

func (d *Document) Array(o Object) (*ArrayObj, bool) {
	a, ok := d.Resolve(o).(*ArrayObj)
	return a, ok
}

func (d *Document) Stream(o Object) (*StreamObj, bool) {
	s, ok := d.Resolve(o).(*StreamObj)
	return s, ok
}

func (d *Document) Number(o Object) (float64, bool) {
	n, ok := d.Resolve(o).(NumberObj)
	if !ok {
		return 0, false
	}
	return n.Float(), true
}

func (d *Document) Int(o Object) (int64, bool) {
	n, ok := d.Resolve(o).(NumberObj)
	if !ok {
		return 0, false
	}
	return n.Int(), true
}

// Catalog returns the document catalog.
func (d *Document) Catalog() (*DictObj, bool) {
	root, ok := d.Trailer.Get("Root")
	if !ok {
		return nil, false
	}
	return d.Dict(root)
}

// Set stores obj under ref and records the change.
func (d *Document) Set(ref ObjectRef, obj Object) {
	if d.Objects == nil {
		d.Objects = make(map[ObjectRef]Object)
	}
	d.Objects[ref] = obj
	d.MarkDirty(ref)
}

// Add stores obj under a fresh object number.
func (d *Document) Add(obj Object) ObjectRef {
	ref := ObjectRef{Num: d.MaxObjectNumber() + 1}
	d.Set(ref, obj)
	return ref
}

// MarkDirty records that the object under ref changed in memory.
func (d *Document) MarkDirty(ref ObjectRef) {
	if d.dirty == nil {
		d.dirty = make(map[ObjectRef]struct{})
	}
	d.dirty[ref] = struct{}{}
}

// IsDirty reports whether anything changed since the document was loaded.
func (d *Document) IsDirty() bool { return len(d.dirty) > 0 || d.Redacted }

// DirtyRefs returns the changed object ids in ascending order.
func (d *Document) DirtyRefs() []ObjectRef {
	refs := make([]ObjectRef, 0, len(d.dirty))
	for r := range d.dirty {
		refs = append(refs, r)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Num != refs[j].Num {
			return refs[i].Num < refs[j].Num
		}
		return refs[i].Gen < refs[j].Gen
	})
	return refs
}

// ClearDirty forgets recorded changes, e.g. after a save.
func (d *Document) ClearDirty() { d.dirty = make(map[ObjectRef]struct{}) }

// MaxObjectNumber returns the highest object number in use.
func (d *Document) MaxObjectNumber() int {
	max := 0
	for r := range d.Objects {
		if r.Num > max {
			max = r.Num
		}
	}
	if size, ok := d.Int(trailerSize(d.Trailer)); ok && int(size)-1 > max {
		max = int(size) - 1
	}
	return max
}

func trailerSize(t *DictObj) Object {
	if o, ok := t.Get("Size"); ok {
		return o
	}
	return NullObj{}
}
