package contentstream

import "github.com/wudi/pdfredact/ir/raw"

// AppendOp writes op in content stream syntax followed by a newline.
func AppendOp(buf []byte, op Op) []byte {
	for _, o := range op.Operands {
		buf = raw.AppendObject(buf, o)
		buf = append(buf, ' ')
	}
	if op.Kind == OpInlineImage && op.Inline != nil {
		buf = append(buf, "BI"...)
		for _, k := range op.Inline.Dict.Keys() {
			buf = append(buf, ' ')
			buf = raw.AppendName(buf, k)
			buf = append(buf, ' ')
			buf = raw.AppendObject(buf, op.Inline.Dict.KV[k])
		}
		buf = append(buf, " ID "...)
		buf = append(buf, op.Inline.Data...)
		return append(buf, "\nEI\n"...)
	}
	buf = append(buf, op.Name...)
	return append(buf, '\n')
}

// Serialize writes ops as a content stream.
func Serialize(ops []Op) []byte {
	var buf []byte
	for _, op := range ops {
		buf = AppendOp(buf, op)
	}
	return buf
}
