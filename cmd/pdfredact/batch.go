package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wudi/pdfredact/report"
	"github.com/wudi/pdfredact/session"
)

func NewBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <pdf>...",
		Short: "Redact the same searches in many files",
		Long: `Batch opens up to batch.concurrency files at a time, redacts every match of
each --search in them and writes <name>.redacted.pdf into --out-dir. A file
that fails is reported and does not stop the others.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runBatch,
	}
	cmd.Flags().StringArrayP("search", "q", nil, "text or pattern to redact; repeatable (required)")
	addQueryFlags(cmd)
	addStyleFlags(cmd)
	cmd.Flags().StringP("out-dir", "d", ".", "directory for the redacted files")
	cmd.Flags().IntP("concurrency", "j", 0, "files processed at once; batch.concurrency when 0")
	_ = cmd.MarkFlagRequired("search")
	return cmd
}

func runBatch(cmd *cobra.Command, args []string) error {
	outDir, _ := cmd.Flags().GetString("out-dir")
	return run(cmd, func(ctx context.Context, a *app) error {
		st, err := style(cmd, a)
		if err != nil {
			return err
		}
		searches, _ := cmd.Flags().GetStringArray("search")
		jobs := make([]session.Job, 0, len(args))
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			job := session.Job{Name: path, Data: data, Password: a.password, Style: st}
			for _, s := range searches {
				job.Queries = append(job.Queries, query(cmd, a, s))
			}
			jobs = append(jobs, job)
		}
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return err
		}

		concurrency, _ := cmd.Flags().GetInt("concurrency")
		if concurrency <= 0 {
			concurrency = a.cfg.Batch.Concurrency
		}
		results, err := a.manager.Batch(ctx, jobs, concurrency)
		if err != nil {
			return err
		}
		var failed int
		for i := range results {
			r := &results[i]
			if r.Err != nil {
				failed++
				continue
			}
			out := filepath.Join(outDir, redactedName(r.Name))
			if err := os.WriteFile(out, r.Output, 0o644); err != nil {
				r.Err = err
				failed++
			}
		}
		if err := a.writer(cmd.OutOrStdout()).Batch(report.NewBatch(results)); err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(results))
		}
		return nil
	})
}

// redactedName maps "dir/a.pdf" to "a.redacted.pdf".
func redactedName(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if !strings.EqualFold(ext, ".pdf") {
		return base + ".redacted.pdf"
	}
	return strings.TrimSuffix(base, ext) + ".redacted.pdf"
}
