package security

import "time"

// Limits bounds the resources a single document may consume while it is
// parsed, decoded and interpreted.
type Limits struct {
	// Maximum decompressed stream size. Default: 100 MB.
	MaxDecompressedSize int64

	// Maximum XRef chain depth (Prev entries). Default: 50.
	MaxXRefDepth int

	// Maximum form XObject nesting while interpreting content. Default: 20.
	MaxXObjectDepth int

	// Maximum nesting of arrays and dictionaries. Default: 256.
	MaxNestingDepth int

	// Maximum string length (bytes). Default: 10 MB.
	MaxStringLength int

	// Maximum raw stream length (bytes). Default: 50 MB.
	MaxStreamLength int

	// Maximum decode time per stream. Default: 30s.
	MaxDecodeTime time.Duration

	// Maximum total parse time. Zero disables the deadline. Default: 5m.
	MaxParseTime time.Duration
}

// DefaultLimits returns a Limits struct with safe default values.
func DefaultLimits() Limits {
	return Limits{
		MaxDecompressedSize: 100 * 1024 * 1024,
		MaxXRefDepth:        50,
		MaxXObjectDepth:     20,
		MaxNestingDepth:     256,
		MaxStringLength:     10 * 1024 * 1024,
		MaxStreamLength:     50 * 1024 * 1024,
		MaxDecodeTime:       30 * time.Second,
		MaxParseTime:        5 * time.Minute,
	}
}

// Normalize fills zero fields with their defaults.
func (l Limits) Normalize() Limits {
	d := DefaultLimits()
	if l.MaxDecompressedSize <= 0 {
		l.MaxDecompressedSize = d.MaxDecompressedSize
	}
	if l.MaxXRefDepth <= 0 {
		l.MaxXRefDepth = d.MaxXRefDepth
	}
	if l.MaxXObjectDepth <= 0 {
		l.MaxXObjectDepth = d.MaxXObjectDepth
	}
	if l.MaxNestingDepth <= 0 {
		l.MaxNestingDepth = d.MaxNestingDepth
	}
	if l.MaxStringLength <= 0 {
		l.MaxStringLength = d.MaxStringLength
	}
	if l.MaxStreamLength <= 0 {
		l.MaxStreamLength = d.MaxStreamLength
	}
	if l.MaxDecodeTime <= 0 {
		l.MaxDecodeTime = d.MaxDecodeTime
	}
	return l
}
