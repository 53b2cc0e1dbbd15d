package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wudi/pdfredact/report"
	"github.com/wudi/pdfredact/testpdf"
)

// env is a temp directory holding a config file and test documents.
type env struct {
	dir    string
	config string
}

func newEnv(t *testing.T, config string) *env {
	t.Helper()
	e := &env{dir: t.TempDir()}
	e.config = filepath.Join(e.dir, "config.yaml")
	if err := os.WriteFile(e.config, []byte(config), 0o600); err != nil {
		t.Fatal(err)
	}
	return e
}

func (e *env) file(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func (e *env) run(args ...string) (string, error) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config", e.config}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInfoCommand(t *testing.T) {
	e := newEnv(t, "")
	pdf := e.file(t, "contact.pdf", testpdf.ContactDocument(t))

	out, err := e.run("info", pdf)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	var info report.InfoView
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if info.PageCount != 3 || info.Metadata.Author != "Finance" {
		t.Errorf("info = %+v", info)
	}

	out, err = e.run("info", "-f", "markdown", pdf)
	if err != nil {
		t.Fatalf("info markdown: %v", err)
	}
	if !strings.Contains(out, "## Pages") {
		t.Errorf("markdown output = %q", out)
	}
}

func TestSearchCommand(t *testing.T) {
	e := newEnv(t, "")
	pdf := e.file(t, "contact.pdf", testpdf.ContactDocument(t))

	out, err := e.run("search", pdf, "JANE@EXAMPLE.COM")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	var matches []report.MatchView
	if err := json.Unmarshal([]byte(out), &matches); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(matches) != 1 || matches[0].Page != 0 {
		t.Errorf("matches = %+v", matches)
	}

	out, err = e.run("search", "--case-sensitive", pdf, "JANE@EXAMPLE.COM")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Errorf("case-sensitive search = %s", out)
	}
}

func TestRedactCommandVerifies(t *testing.T) {
	e := newEnv(t, "")
	pdf := e.file(t, "contact.pdf", testpdf.ContactDocument(t))
	output := filepath.Join(e.dir, "out.pdf")

	out, err := e.run("redact", pdf, "-o", output, "--search", "jane@example.com", "--caption", "X", "--verify")
	if err != nil {
		t.Fatalf("redact: %v", err)
	}
	var res report.OutcomeView
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Matches) != 1 || res.Redaction.Applied != 1 || res.Redaction.Failed != 0 {
		t.Errorf("outcome = %+v", res)
	}
	if res.Verification == nil || !res.Verification.Passed {
		t.Errorf("verification = %+v", res.Verification)
	}
	if _, err := os.Stat(output); err != nil {
		t.Errorf("output missing: %v", err)
	}
}

func TestRedactCommandErrors(t *testing.T) {
	e := newEnv(t, "")
	pdf := e.file(t, "contact.pdf", testpdf.ContactDocument(t))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"nothing to do", []string{"redact", pdf, "-o", filepath.Join(e.dir, "a.pdf")}, "nothing to redact"},
		{"same file", []string{"redact", pdf, "-o", pdf, "--search", "x"}, "differ"},
		{"bad color", []string{"redact", pdf, "-o", filepath.Join(e.dir, "b.pdf"), "--search", "x", "--fill", "plaid"}, "plaid"},
		{"missing output", []string{"redact", pdf, "--search", "x"}, "output"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.run(tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestRedactImagesCommand(t *testing.T) {
	e := newEnv(t, "")
	pdf := e.file(t, "images.pdf", testpdf.ImageDocument(t))

	out, err := e.run("redact", pdf, "-o", filepath.Join(e.dir, "out.pdf"), "--images")
	if err != nil {
		t.Fatalf("redact: %v", err)
	}
	var res report.OutcomeView
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Redaction.Totals.ImagesRemoved != 1 {
		t.Errorf("totals = %+v", res.Redaction.Totals)
	}
}

func TestVerifyCommandFails(t *testing.T) {
	e := newEnv(t, "")
	pdf := e.file(t, "contact.pdf", testpdf.ContactDocument(t))

	out, err := e.run("verify", pdf, pdf, "--term", "jane@example.com", "--independent=false")
	if !errors.Is(err, errVerificationFailed) {
		t.Fatalf("error = %v", err)
	}
	var v report.VerificationView
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Verdict != "FAIL" || len(v.Terms) != 1 || !v.Terms[0].StillPresent {
		t.Errorf("verification = %+v", v)
	}
}

func TestBatchAndJournal(t *testing.T) {
	e := newEnv(t, "")
	journal := filepath.Join(e.dir, "audit.db")
	if err := os.WriteFile(e.config, []byte("audit:\n  enabled: true\n  path: "+journal+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	a := e.file(t, "a.pdf", testpdf.ContactDocument(t))
	b := e.file(t, "b.pdf", testpdf.ContactDocument(t))
	outDir := filepath.Join(e.dir, "out")

	out, err := e.run("batch", a, b, "--search", "555-0100", "--out-dir", outDir, "-j", "2")
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	var results []report.BatchView
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(results) != 2 || results[0].Name != a || results[1].Matches != 1 {
		t.Errorf("results = %+v", results)
	}
	for _, name := range []string{"a.redacted.pdf", "b.redacted.pdf"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}

	out, err = e.run("journal", a)
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	var runs []report.RunView
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Both files have the same content.
	if len(runs) != 2 || runs[0].Origin != "search" || runs[0].Applied != 1 {
		t.Errorf("runs = %+v", runs)
	}
}

func TestJournalDisabled(t *testing.T) {
	e := newEnv(t, "")
	if _, err := e.run("journal"); err == nil || !strings.Contains(err.Error(), "disabled") {
		t.Errorf("error = %v", err)
	}
}

func TestMissingConfig(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml"), "journal"})
	if err := cmd.ExecuteContext(context.Background()); err == nil {
		t.Error("missing config accepted")
	}
}
