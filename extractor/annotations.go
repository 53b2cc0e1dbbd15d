package extractor

import (
	"github.com/wudi/pdfredact/coords"
	"github.com/wudi/pdfredact/ir/raw"
	"github.com/wudi/pdfredact/parser"
)

// AnnotationInfo summarizes a page annotation.
type AnnotationInfo struct {
	Page     int
	Subtype  string
	Rect     coords.Rect
	Contents string
	URI      string
	Flags    int
}

// Annotations returns the annotations of page i.
func (e *Extractor) Annotations(i int) ([]AnnotationInfo, error) {
	page, err := e.PageInfo(i)
	if err != nil {
		return nil, err
	}
	var annots []AnnotationInfo
	for _, a := range page.Annotations(e.doc) {
		info := AnnotationInfo{Page: i, Subtype: a.Subtype, Rect: a.Rect}
		if s, ok := e.doc.Resolve(entry(a.Dict, "Contents")).(raw.StringObj); ok {
			info.Contents = parser.DecodeTextString(s.Bytes)
		}
		if n, ok := e.doc.Int(entry(a.Dict, "F")); ok {
			info.Flags = int(n)
		}
		info.URI = annotationURI(e.doc, a.Dict)
		annots = append(annots, info)
	}
	return annots, nil
}

// LinkCount counts the Link annotations of page i.
func (e *Extractor) LinkCount(i int) (int, error) {
	annots, err := e.Annotations(i)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range annots {
		if a.Subtype == "Link" {
			n++
		}
	}
	return n, nil
}

func annotationURI(doc *raw.Document, dict *raw.DictObj) string {
	action, ok := doc.Dict(entry(dict, "A"))
	if !ok || action.Name("S") != "URI" {
		return ""
	}
	if s, ok := doc.Resolve(entry(action, "URI")).(raw.StringObj); ok {
		return string(s.Bytes)
	}
	return ""
}

func entry(d *raw.DictObj, key string) raw.Object {
	if d == nil {
		return raw.NullObj{}
	}
	if o, ok := d.Get(key); ok {
		return o
	}
	return raw.NullObj{}
}
