package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wudi/pdfredact/filters"
	"github.com/wudi/pdfredact/ir/raw"
	"github.com/wudi/pdfredact/observability"
	"github.com/wudi/pdfredact/recovery"
	"github.com/wudi/pdfredact/scanner"
	"github.com/wudi/pdfredact/security"
	"github.com/wudi/pdfredact/xref"
)

// Config controls high-level PDF parsing (xref resolution + object loading).
type Config struct {
	// Password is tried as user and as owner password. Encrypted files
	// opened without one fail with ErrEncrypted.
	Password string
	// Recovery decides what happens on malformed input. Nil selects a
	// lenient strategy that logs and skips broken objects.
	Recovery recovery.Strategy
	Limits   security.Limits
	Logger   observability.Logger
}

func DefaultConfig() Config {
	return Config{Limits: security.DefaultLimits()}
}

// DocumentParser builds a raw.Document using xref tables/streams and the object loader.
type DocumentParser struct {
	cfg Config
}

func NewDocumentParser(cfg Config) *DocumentParser {
	cfg.Limits = cfg.Limits.Normalize()
	cfg.Logger = observability.OrNop(cfg.Logger)
	if cfg.Recovery == nil {
		cfg.Recovery = recovery.NewLenientStrategy().WithLogger(cfg.Logger)
	}
	return &DocumentParser{cfg: cfg}
}

// SetPassword updates the password for decryption when parsing encrypted PDFs.
func (p *DocumentParser) SetPassword(pwd string) {
	p.cfg.Password = pwd
}

// Open parses data with cfg.
func Open(ctx context.Context, data []byte, cfg Config) (*raw.Document, error) {
	return NewDocumentParser(cfg).Parse(ctx, data)
}

// Parse indexes data, authenticates against the standard security handler
// when the file is encrypted, and loads every live object into the arena.
func (p *DocumentParser) Parse(ctx context.Context, data []byte) (*raw.Document, error) {
	if p.cfg.Limits.MaxParseTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Limits.MaxParseTime)
		defer cancel()
	}
	version, err := headerVersion(data)
	if err != nil {
		return nil, err
	}
	pipeline := filters.NewDefaultPipeline(filters.Limits{
		MaxDecompressedSize: p.cfg.Limits.MaxDecompressedSize,
		MaxDecodeTime:       p.cfg.Limits.MaxDecodeTime,
	})
	resolver := xref.NewResolver(xref.ResolverConfig{
		MaxXRefDepth: p.cfg.Limits.MaxXRefDepth,
		Recovery:     p.cfg.Recovery,
		Logger:       p.cfg.Logger,
		Filters:      pipeline,
	})
	table, err := resolver.Resolve(ctx, data)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, xrefError(data, err)
	}

	loader := newObjectLoader(data, table, p.cfg.Limits, pipeline, p.cfg.Recovery)
	trailer := table.Trailer().Clone()
	encrypted, err := p.selectSecurity(ctx, loader, trailer)
	if err != nil {
		return nil, err
	}

	doc := raw.NewDocument()
	doc.Trailer = trailer
	doc.Version = version
	doc.Encrypted = encrypted
	doc.Repaired = table.Repaired
	doc.Source = data
	doc.StartXRef = table.StartXRef

	for _, num := range table.Objects() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ref, obj, err := loader.Load(ctx, num)
		if err != nil {
			loc := recovery.Location{ObjectNum: num, Component: "parser"}
			if e, ok := table.Lookup(num); ok && e.Kind == xref.EntryInUse {
				loc.ByteOffset = e.Offset
			}
			if herr := recovery.Handle(ctx, p.cfg.Recovery, err, loc); herr != nil {
				return nil, objectError(num, loc.ByteOffset, herr)
			}
			continue
		}
		if stm, ok := obj.(*raw.StreamObj); ok {
			switch stm.Dict.Name("Type") {
			case "XRef", "ObjStm":
				continue
			}
		}
		doc.Objects[ref] = obj
	}
	if encrypted {
		if ref, ok := trailer.KV["Encrypt"].(raw.RefObj); ok {
			delete(doc.Objects, ref.R)
		}
		trailer.Delete("Encrypt")
	}
	if _, ok := doc.Catalog(); !ok {
		return nil, newError(KindMalformedXref, -1, errors.New("document catalog missing"))
	}
	if v := catalogVersion(doc); v > doc.Version {
		doc.Version = v
	}
	doc.Metadata = readMetadata(doc)
	doc.ClearDirty()

	p.cfg.Logger.Debug("parsed document",
		observability.Int("objects", len(doc.Objects)),
		observability.String("version", doc.Version),
		observability.Bool("encrypted", doc.Encrypted),
		observability.Bool("repaired", doc.Repaired),
		observability.Int("xref_sections", table.Sections))
	return doc, nil
}

// selectSecurity installs the decryption handler on loader. It reports
// whether the file was encrypted.
func (p *DocumentParser) selectSecurity(ctx context.Context, loader *objectLoader, trailer *raw.DictObj) (bool, error) {
	encObj, ok := trailer.Get("Encrypt")
	if !ok {
		return false, nil
	}
	var encDict *raw.DictObj
	switch v := encObj.(type) {
	case *raw.DictObj:
		encDict = v
	case raw.RefObj:
		loader.noDecrypt[v.R.Num] = true
		_, obj, err := loader.Load(ctx, v.R.Num)
		if err != nil {
			return true, newError(KindEncrypted, -1, fmt.Errorf("load encryption dictionary: %w", err))
		}
		encDict, _ = obj.(*raw.DictObj)
	}
	if encDict == nil {
		return true, newError(KindEncrypted, -1, errors.New("encryption dictionary is not a dictionary"))
	}
	handler, err := (&security.HandlerBuilder{}).WithEncryptDict(encDict).WithFileID(fileID(trailer)).Build()
	if err != nil {
		return true, newError(KindEncrypted, -1, err)
	}
	// An empty user password opens the file without being asked for.
	if err := handler.Authenticate(p.cfg.Password); err != nil {
		if p.cfg.Password == "" {
			return true, newError(KindEncrypted, -1, errors.New("a password is required"))
		}
		return true, newError(KindBadPassword, -1, err)
	}
	loader.security = handler
	return true, nil
}

func fileID(trailer *raw.DictObj) []byte {
	idObj, ok := trailer.Get("ID")
	if !ok {
		return nil
	}
	arr, ok := idObj.(*raw.ArrayObj)
	if !ok || arr.Len() == 0 {
		return nil
	}
	if s, ok := arr.Items[0].(raw.StringObj); ok {
		return s.Bytes
	}
	return nil
}

// headerVersion finds "%PDF-x.y" within the first KB, where some producers
// put junk before it.
func headerVersion(data []byte) (string, error) {
	if len(data) == 0 {
		return "", newError(KindTruncated, 0, errors.New("empty input"))
	}
	head := data[:min(len(data), 1024)]
	idx := bytes.Index(head, []byte("%PDF-"))
	if idx < 0 {
		return "", newError(KindMalformedXref, 0, errors.New("no %PDF header"))
	}
	v := head[idx+5:]
	end := 0
	for end < len(v) && (v[end] == '.' || (v[end] >= '0' && v[end] <= '9')) {
		end++
	}
	if end == 0 {
		return "1.4", nil
	}
	return string(v[:end]), nil
}

func catalogVersion(doc *raw.Document) string {
	cat, _ := doc.Catalog()
	if n, ok := doc.Resolve(catalogEntry(cat, "Version")).(raw.NameObj); ok {
		return n.Val
	}
	return ""
}

func catalogEntry(d *raw.DictObj, key string) raw.Object {
	if o, ok := d.Get(key); ok {
		return o
	}
	return raw.NullObj{}
}

// xrefError classifies a resolver failure. A file that lost its tail is
// reported as truncated rather than malformed.
func xrefError(data []byte, err error) error {
	kind := KindMalformedXref
	tail := data[max(0, len(data)-1024):]
	if !bytes.Contains(tail, []byte("%%EOF")) || errors.Is(err, scanner.ErrUnterminated) {
		kind = KindTruncated
	}
	return &ParseError{Kind: kind, Offset: int64(len(data)), Err: err}
}

func objectError(num int, offset int64, err error) error {
	kind := KindMalformedXref
	switch {
	case errors.Is(err, filters.ErrUnsupportedFilter):
		kind = KindUnsupportedFilter
	case errors.Is(err, scanner.ErrUnterminated):
		kind = KindTruncated
	}
	return &ParseError{Kind: kind, Offset: offset, Object: raw.ObjectRef{Num: num}, Err: err}
}

func readMetadata(doc *raw.Document) raw.DocumentMetadata {
	var md raw.DocumentMetadata
	info, ok := doc.Dict(catalogEntry(doc.Trailer, "Info"))
	if !ok {
		return md
	}
	get := func(key string) string {
		if s, ok := doc.Resolve(catalogEntry(info, key)).(raw.StringObj); ok {
			return strings.TrimRight(DecodeTextString(s.Bytes), "\x00")
		}
		return ""
	}
	md.Title = get("Title")
	md.Author = get("Author")
	md.Subject = get("Subject")
	md.Keywords = get("Keywords")
	md.Creator = get("Creator")
	md.Producer = get("Producer")
	md.CreationDate = get("CreationDate")
	md.ModDate = get("ModDate")
	return md
}
