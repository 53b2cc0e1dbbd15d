package filters

import (
	"fmt"

	"github.com/wudi/pdfredact/ir/raw"
)

// applyPredictor undoes TIFF (2) and PNG (10-15) predictors.
func applyPredictor(data []byte, params *raw.DictObj) ([]byte, error) {
	predictor := intParam(params, "Predictor", 1)
	if predictor <= 1 {
		return data, nil
	}
	colors := intParam(params, "Colors", 1)
	bpc := intParam(params, "BitsPerComponent", 8)
	columns := intParam(params, "Columns", 1)
	if colors < 1 || bpc < 1 || columns < 1 {
		return nil, fmt.Errorf("invalid predictor parameters colors=%d bpc=%d columns=%d", colors, bpc, columns)
	}
	bpp := (colors*bpc + 7) / 8
	rowLen := (columns*colors*bpc + 7) / 8
	switch {
	case predictor == 2:
		return tiffPredictor(data, rowLen, bpp, bpc), nil
	case predictor >= 10:
		return pngPredictor(data, rowLen, bpp)
	}
	return nil, fmt.Errorf("unsupported predictor %d", predictor)
}

func tiffPredictor(data []byte, rowLen, bpp, bpc int) []byte {
	if bpc != 8 {
		return data
	}
	out := append([]byte(nil), data...)
	for row := 0; row+rowLen <= len(out); row += rowLen {
		for i := bpp; i < rowLen; i++ {
			out[row+i] += out[row+i-bpp]
		}
	}
	return out
}

func pngPredictor(data []byte, rowLen, bpp int) ([]byte, error) {
	stride := rowLen + 1
	rows := len(data) / stride
	out := make([]byte, 0, rows*rowLen)
	prev := make([]byte, rowLen)
	cur := make([]byte, rowLen)
	for r := 0; r < rows; r++ {
		line := data[r*stride : (r+1)*stride]
		filter := line[0]
		copy(cur, line[1:])
		for i := 0; i < rowLen; i++ {
			var left, up, upLeft byte
			if i >= bpp {
				left = cur[i-bpp]
				upLeft = prev[i-bpp]
			}
			up = prev[i]
			switch filter {
			case 0:
			case 1:
				cur[i] += left
			case 2:
				cur[i] += up
			case 3:
				cur[i] += byte((int(left) + int(up)) / 2)
			case 4:
				cur[i] += paeth(left, up, upLeft)
			default:
				return nil, fmt.Errorf("invalid PNG filter type %d in row %d", filter, r)
			}
		}
		out = append(out, cur...)
		prev, cur = cur, prev
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
