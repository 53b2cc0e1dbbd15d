package parser

import (
	"context"
	"testing"

	"github.com/wudi/pdfredact/recovery"
)

func FuzzParse(f *testing.F) {
	f.Add(buildClassicPDF())
	f.Add(buildIncrementalPDF())
	f.Add([]byte("%PDF-1.7\n1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n..."))

	f.Fuzz(func(t *testing.T, data []byte) {
		for _, rec := range []recovery.Strategy{recovery.NewStrictStrategy(), recovery.NewLenientStrategy()} {
			cfg := DefaultConfig()
			cfg.Recovery = rec
			_, _ = Open(context.Background(), data, cfg)
		}
	})
}
