package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wudi/pdfredact/redact"
	"github.com/wudi/pdfredact/report"
	"github.com/wudi/pdfredact/search"
	"github.com/wudi/pdfredact/session"
)

// errVerificationFailed makes the command exit non-zero after printing the
// report.
var errVerificationFailed = errors.New("verification failed")

func NewRedactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "redact <pdf>",
		Short: "Remove text, areas or images and write a new file",
		Long: `Redact removes the glyphs of every search match, everything painted inside
the given areas, or every image, then writes a full rewrite of the document.

Searches and areas come from flags, from a YAML plan given with --spec, or
both. Rectangles are [x0, y0, x1, y1] in PDF points with the origin at the
bottom left of the page. Pages are numbered from 0.

Examples:
  pdfredact redact in.pdf -o out.pdf --search 'jane@example.com'
  pdfredact redact in.pdf -o out.pdf --search '\d{3}-\d{4}' --regex --verify
  pdfredact redact in.pdf -o out.pdf --images --image-page 1
  pdfredact redact in.pdf -o out.pdf --spec plan.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: runRedact,
	}
	cmd.Flags().StringP("output", "o", "", "output file (required)")
	cmd.Flags().StringP("spec", "s", "", "YAML redaction plan")
	cmd.Flags().StringArrayP("search", "q", nil, "text or pattern to redact; repeatable")
	addQueryFlags(cmd)
	cmd.Flags().Bool("images", false, "remove images")
	cmd.Flags().IntSlice("image-page", nil, "0-based pages for --images; all pages when omitted")
	addStyleFlags(cmd)
	cmd.Flags().Bool("verify", false, "reopen the output and verify that the search terms are gone")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func addStyleFlags(cmd *cobra.Command) {
	cmd.Flags().String("fill", "", "box color: a name, #rrggbb or r,g,b in [0,1]")
	cmd.Flags().String("caption", "", "text drawn over each box")
	cmd.Flags().String("caption-color", "", "caption color")
}

// style reads the flags added by addStyleFlags over the configured default.
func style(cmd *cobra.Command, a *app) (redact.Style, error) {
	fill, _ := cmd.Flags().GetString("fill")
	cc, _ := cmd.Flags().GetString("caption-color")
	var caption *string
	if cmd.Flags().Changed("caption") {
		c, _ := cmd.Flags().GetString("caption")
		caption = &c
	}
	return applyStyle(a.cfg.Style(), fill, cc, caption)
}

func runRedact(cmd *cobra.Command, args []string) error {
	input := args[0]
	output, _ := cmd.Flags().GetString("output")
	if sameFile(input, output) {
		return errors.New("output must differ from the input file")
	}
	return run(cmd, func(ctx context.Context, a *app) error {
		p, err := redactPlan(cmd, a)
		if err != nil {
			return err
		}
		h, err := a.manager.OpenFile(ctx, input, a.password)
		if err != nil {
			return err
		}
		defer a.manager.Close(h)

		rep, matches, err := applyPlan(ctx, a.manager, h, p)
		if err != nil {
			return err
		}
		if err := a.manager.SaveFile(ctx, h, output, nil); err != nil {
			return err
		}
		a.log.Info("redacted document written")

		out := report.OutcomeView{
			Input:     input,
			Output:    output,
			Matches:   report.NewMatches(matches),
			Redaction: report.NewRedaction(rep),
		}
		var verifyErr error
		if verify, _ := cmd.Flags().GetBool("verify"); verify {
			v, err := verifyFiles(ctx, a, input, output, literalTerms(p.Queries), true)
			if err != nil {
				return err
			}
			view := report.NewVerification(v)
			out.Verification = &view
			if !v.Passed {
				verifyErr = errVerificationFailed
			}
		}
		if err := a.writer(cmd.OutOrStdout()).Outcome(out); err != nil {
			return err
		}
		return verifyErr
	})
}

// redactPlan merges the --spec plan with the flags.
func redactPlan(cmd *cobra.Command, a *app) (*plan, error) {
	base, err := style(cmd, a)
	if err != nil {
		return nil, err
	}
	p := &plan{Style: base}
	if path, _ := cmd.Flags().GetString("spec"); path != "" {
		if p, err = loadSpecFile(path, base); err != nil {
			return nil, err
		}
	}
	for i := range p.Queries {
		if p.Queries[i].Timeout == 0 {
			p.Queries[i].Timeout = a.cfg.Search.Timeout
		}
	}
	searches, _ := cmd.Flags().GetStringArray("search")
	for _, s := range searches {
		p.Queries = append(p.Queries, query(cmd, a, s))
	}
	if images, _ := cmd.Flags().GetBool("images"); images {
		p.Images = true
		p.ImagePages, _ = cmd.Flags().GetIntSlice("image-page")
		p.ImageStyle = base
		if !cmd.Flags().Changed("caption") {
			p.ImageStyle.Caption = ""
		}
	}
	if p.empty() {
		return nil, errors.New("nothing to redact: give --search, --images or --spec")
	}
	return p, nil
}

// applyPlan runs areas, then searches, then images, and merges the reports.
func applyPlan(ctx context.Context, m *session.Manager, h session.Handle, p *plan) (*redact.Report, []search.Match, error) {
	merged := &redact.Report{}
	add := func(r *redact.Report) {
		merged.Items = append(merged.Items, r.Items...)
		merged.Pages = append(merged.Pages, r.Pages...)
	}
	var matches []search.Match
	if len(p.Areas) > 0 {
		rep, err := m.Redact(ctx, h, p.Areas)
		if err != nil {
			return nil, nil, err
		}
		add(rep)
	}
	for _, q := range p.Queries {
		sr, err := m.RedactSearch(ctx, h, q, p.Style)
		if err != nil {
			return nil, nil, fmt.Errorf("redact %q: %w", q.Text, err)
		}
		matches = append(matches, sr.Matches...)
		add(sr.Report)
	}
	if p.Images {
		rep, err := m.RedactImages(ctx, h, p.ImagePages, p.ImageStyle)
		if err != nil {
			return nil, nil, err
		}
		add(rep)
	}
	return merged, matches, nil
}

// literalTerms are the queries verify can look for again.
func literalTerms(qs []search.Query) []string {
	var out []string
	for _, q := range qs {
		if !q.Pattern {
			out = append(out, q.Text)
		}
	}
	return out
}

func sameFile(a, b string) bool {
	fa, err := os.Stat(a)
	if err != nil {
		return false
	}
	fb, err := os.Stat(b)
	if err != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return os.SameFile(fa, fb)
}
