package writer

import (
	"bufio"
	"fmt"
	"hash"
	"io"
	"strconv"

	"github.com/wudi/pdfredact/ir/raw"
)

// sink tracks the file offset of everything written and remembers the first
// I/O error; later writes become no-ops.
type sink struct {
	w   *bufio.Writer
	h   hash.Hash
	off int64
	err error
	buf []byte
}

func newSink(w io.Writer, off int64, h hash.Hash) *sink {
	return &sink{w: bufio.NewWriterSize(w, 64<<10), off: off, h: h}
}

func (s *sink) write(b []byte) {
	if s.err != nil {
		return
	}
	n, err := s.w.Write(b)
	s.off += int64(n)
	if s.h != nil {
		s.h.Write(b[:n])
	}
	if err != nil {
		s.err = &WriteError{Kind: KindIOFailure, Err: err}
	}
}

func (s *sink) printf(format string, args ...any) {
	s.write(fmt.Appendf(s.buf[:0], format, args...))
}

func (s *sink) flush() error {
	if s.err != nil {
		return s.err
	}
	if err := s.w.Flush(); err != nil {
		s.err = &WriteError{Kind: KindIOFailure, Err: err}
	}
	return s.err
}

func (s *sink) header(version string) {
	s.printf("%%PDF-%s\n", version)
	s.write([]byte("%\xe2\xe3\xcf\xd3\n"))
}

// object writes one indirect object. For streams data is the payload and
// the dictionary must already carry the matching /Length.
func (s *sink) object(num, gen int, obj raw.Object, data []byte) int64 {
	off := s.off
	b := s.buf[:0]
	b = strconv.AppendInt(b, int64(num), 10)
	b = append(b, ' ')
	b = strconv.AppendInt(b, int64(gen), 10)
	b = append(b, " obj\n"...)
	b = raw.AppendObject(b, obj)
	if _, ok := obj.(*raw.StreamObj); ok {
		b = append(b, "\nstream\n"...)
		s.write(b)
		s.write(data)
		b = append(b[:0], "\nendstream"...)
	}
	b = append(b, "\nendobj\n"...)
	s.write(b)
	s.buf = b[:0]
	return off
}

type xrefEntry struct {
	num    int
	gen    int
	offset int64
	free   bool
}

// xref writes a classic cross-reference section. entries must be sorted by
// object number; consecutive numbers share a subsection.
func (s *sink) xref(entries []xrefEntry) int64 {
	start := s.off
	s.write([]byte("xref\n"))
	for i := 0; i < len(entries); {
		j := i + 1
		for j < len(entries) && entries[j].num == entries[j-1].num+1 {
			j++
		}
		s.printf("%d %d\n", entries[i].num, j-i)
		for _, e := range entries[i:j] {
			kind := 'n'
			if e.free {
				kind = 'f'
			}
			s.printf("%010d %05d %c \n", e.offset, e.gen, kind)
		}
		i = j
	}
	return start
}

func (s *sink) trailer(trailer *raw.DictObj, startxref int64) {
	b := append(s.buf[:0], "trailer\n"...)
	b = raw.AppendObject(b, trailer)
	b = append(b, "\nstartxref\n"...)
	b = strconv.AppendInt(b, startxref, 10)
	b = append(b, "\n%%EOF\n"...)
	s.write(b)
	s.buf = b[:0]
}
