// Package config loads the command line defaults from a YAML file under
// the XDG config directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/wudi/pdfredact/redact"
	"github.com/wudi/pdfredact/session"
	"github.com/wudi/pdfredact/writer"
)

const (
	AppName = "pdfredact"
	// FileName is looked up in XDGConfigDir.
	FileName = "config.yaml"

	DefaultConcurrency   = 4
	DefaultSearchTimeout = 2 * time.Second
)

var ErrConfigNotFound = errors.New("configuration file not found")

// Config mirrors config.yaml. Zero values keep the library defaults.
type Config struct {
	Redact RedactConfig `yaml:"redact"`
	Search SearchConfig `yaml:"search"`
	Writer WriterConfig `yaml:"writer"`
	Batch  BatchConfig  `yaml:"batch"`
	Audit  AuditConfig  `yaml:"audit"`
	Log    LogConfig    `yaml:"log"`
	Limits LimitsConfig `yaml:"limits"`
}

type RedactConfig struct {
	Fill           string  `yaml:"fill"`
	CaptionColor   string  `yaml:"caption_color"`
	Caption        string  `yaml:"caption"`
	CaptionSize    float64 `yaml:"caption_size"`
	MinCaptionSize float64 `yaml:"min_caption_size"`
}

type SearchConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type WriterConfig struct {
	Filter        string `yaml:"filter"`
	Compression   *int   `yaml:"compression"`
	Deterministic bool   `yaml:"deterministic"`
	Version       string `yaml:"version"`
}

type BatchConfig struct {
	Concurrency int `yaml:"concurrency"`
}

type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
	// Path defaults to audit.db in XDGDataDir.
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type LimitsConfig struct {
	MaxDecompressedSize int64         `yaml:"max_decompressed_size"`
	MaxXRefDepth        int           `yaml:"max_xref_depth"`
	MaxXObjectDepth     int           `yaml:"max_xobject_depth"`
	MaxDecodeTime       time.Duration `yaml:"max_decode_time"`
}

func Default() *Config {
	return &Config{
		Search: SearchConfig{Timeout: DefaultSearchTimeout},
		Batch:  BatchConfig{Concurrency: DefaultConcurrency},
		Log:    LogConfig{Level: "warn", Format: "text"},
	}
}

// XDGConfigDir is ~/.config/pdfredact on Linux.
func XDGConfigDir() string { return filepath.Join(xdg.ConfigHome, AppName) }

// XDGDataDir is ~/.local/share/pdfredact on Linux.
func XDGDataDir() string { return filepath.Join(xdg.DataHome, AppName) }

func DefaultPath() string { return filepath.Join(XDGConfigDir(), FileName) }

// Load reads path over Default. An empty path reads DefaultPath and
// tolerates its absence; an explicit path that does not exist returns
// ErrConfigNotFound.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if explicit {
				return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
			}
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Batch.Concurrency < 0 {
		return errors.New("batch.concurrency must not be negative")
	}
	if c.Redact.CaptionSize < 0 || c.Redact.MinCaptionSize < 0 {
		return errors.New("caption sizes must not be negative")
	}
	if c.Redact.MinCaptionSize > 0 && c.Redact.CaptionSize > 0 && c.Redact.MinCaptionSize > c.Redact.CaptionSize {
		return errors.New("redact.min_caption_size exceeds redact.caption_size")
	}
	if c.Writer.Compression != nil && (*c.Writer.Compression < -1 || *c.Writer.Compression > 9) {
		return fmt.Errorf("writer.compression %d is outside -1..9", *c.Writer.Compression)
	}
	if c.Writer.Filter != "" {
		if _, err := writer.ParseContentFilter(c.Writer.Filter); err != nil {
			return err
		}
	}
	for _, s := range []string{c.Redact.Fill, c.Redact.CaptionColor} {
		if s == "" {
			continue
		}
		if _, err := redact.ParseColor(s); err != nil {
			return err
		}
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format %q is not text or json", c.Log.Format)
	}
	return nil
}

// AuditPath is the journal location, or "" when auditing is off.
func (c *Config) AuditPath() string {
	if !c.Audit.Enabled {
		return ""
	}
	if c.Audit.Path != "" {
		return c.Audit.Path
	}
	return filepath.Join(XDGDataDir(), "audit.db")
}

// Style is the default appearance of search redactions.
func (c *Config) Style() redact.Style {
	return redact.Style{Caption: c.Redact.Caption}
}

// SessionOptions applies the file on top of session.DefaultOptions.
func (c *Config) SessionOptions() (session.Options, error) {
	opts := session.DefaultOptions()
	if c.Redact.Fill != "" {
		fill, err := redact.ParseColor(c.Redact.Fill)
		if err != nil {
			return opts, err
		}
		opts.Redact.Fill = &fill
	}
	if c.Redact.CaptionColor != "" {
		cc, err := redact.ParseColor(c.Redact.CaptionColor)
		if err != nil {
			return opts, err
		}
		opts.Redact.CaptionColor = &cc
	}
	if c.Redact.CaptionSize > 0 {
		opts.Redact.CaptionSize = c.Redact.CaptionSize
	}
	if c.Redact.MinCaptionSize > 0 {
		opts.Redact.MinCaptionSize = c.Redact.MinCaptionSize
	}

	if c.Writer.Filter != "" {
		f, err := writer.ParseContentFilter(c.Writer.Filter)
		if err != nil {
			return opts, err
		}
		opts.Writer.ContentFilter = f
	}
	if c.Writer.Compression != nil {
		opts.Writer.Compression = *c.Writer.Compression
	}
	opts.Writer.Deterministic = c.Writer.Deterministic
	opts.Writer.Version = writer.PDFVersion(c.Writer.Version)

	l := &opts.Limits
	if c.Limits.MaxDecompressedSize > 0 {
		l.MaxDecompressedSize = c.Limits.MaxDecompressedSize
	}
	if c.Limits.MaxXRefDepth > 0 {
		l.MaxXRefDepth = c.Limits.MaxXRefDepth
	}
	if c.Limits.MaxXObjectDepth > 0 {
		l.MaxXObjectDepth = c.Limits.MaxXObjectDepth
	}
	if c.Limits.MaxDecodeTime > 0 {
		l.MaxDecodeTime = c.Limits.MaxDecodeTime
	}
	opts.Writer.Limits = opts.Limits
	return opts, nil
}
