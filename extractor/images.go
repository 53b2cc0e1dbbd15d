package extractor

import (
	"context"

	"github.com/wudi/pdfredact/coords"
	"github.com/wudi/pdfredact/filters"
	"github.com/wudi/pdfredact/ir/raw"
)

// ImageAsset describes one image painted on a page.
type ImageAsset struct {
	Page             int
	ResourceName     string
	Ref              raw.ObjectRef
	Rect             coords.Rect
	Inline           bool
	Width            int
	Height           int
	BitsPerComponent int
	ColorSpace       string
	Filters          []string
	// Forms is the chain of form XObjects painting the image.
	Forms []string
}

// Images lists the images painted on page i, in paint order.
func (e *Extractor) Images(ctx context.Context, i int) ([]ImageAsset, error) {
	r, err := e.Page(ctx, i)
	if err != nil {
		return nil, err
	}
	assets := make([]ImageAsset, 0, len(r.Images))
	for _, img := range r.Images {
		asset := ImageAsset{
			Page:         i,
			ResourceName: img.Name,
			Ref:          img.Ref,
			Rect:         img.Rect,
			Inline:       img.Inline,
			Forms:        img.Forms,
		}
		var dict *raw.DictObj
		switch {
		case img.Inline && len(img.Forms) == 0 && img.Op < len(r.Ops) && r.Ops[img.Op].Inline != nil:
			dict = r.Ops[img.Op].Inline.Dict
		case img.Ref.Num > 0:
			if s, ok := e.res.Resolve(raw.RefObj{R: img.Ref}).(*raw.StreamObj); ok {
				dict = s.Dict
			}
		}
		if dict != nil {
			asset.Width = e.intEntry(dict, "Width", "W")
			asset.Height = e.intEntry(dict, "Height", "H")
			asset.BitsPerComponent = e.intEntry(dict, "BitsPerComponent", "BPC")
			asset.ColorSpace = e.nameEntry(dict, "ColorSpace", "CS")
			asset.Filters, _ = filters.ExtractFilters(dict, e.res)
		}
		assets = append(assets, asset)
	}
	return assets, nil
}

func (e *Extractor) intEntry(d *raw.DictObj, keys ...string) int {
	for _, k := range keys {
		if v, ok := d.Get(k); ok {
			if n, ok := e.res.Resolve(v).(raw.NumberObj); ok {
				return int(n.Int())
			}
		}
	}
	return 0
}

// nameEntry returns a name value, or the family name of an array colour
// space such as [/ICCBased 5 0 R].
func (e *Extractor) nameEntry(d *raw.DictObj, keys ...string) string {
	for _, k := range keys {
		v, ok := d.Get(k)
		if !ok {
			continue
		}
		switch x := e.res.Resolve(v).(type) {
		case raw.NameObj:
			return x.Val
		case *raw.ArrayObj:
			if len(x.Items) > 0 {
				if n, ok := x.Items[0].(raw.NameObj); ok {
					return n.Val
				}
			}
		}
	}
	return ""
}
