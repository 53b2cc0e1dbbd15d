package semantic

import "github.com/wudi/pdfredact/ir/raw"

// Resource looks up name in the given category (Font, XObject, ...) of a
// resource dictionary. It returns the entry as stored, usually a reference.
func Resource(doc *raw.Document, res *raw.DictObj, category, name string) (raw.Object, bool) {
	cat, ok := doc.Dict(entry(res, category))
	if !ok {
		return nil, false
	}
	return cat.Get(name)
}

// Stream resolves a resource entry to a stream and its object id.
func Stream(doc *raw.Document, obj raw.Object) (*raw.StreamObj, raw.ObjectRef, bool) {
	var ref raw.ObjectRef
	if r, ok := obj.(raw.RefObj); ok {
		ref = r.R
	}
	s, ok := doc.Stream(obj)
	return s, ref, ok
}
