package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/wudi/pdfredact/audit"
	"github.com/wudi/pdfredact/report"
)

func NewJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal [pdf]",
		Short: "List the redaction runs recorded in the audit journal",
		Long: `Journal lists recorded runs, oldest first. Given a file, only the runs
applied to a document with the same content are listed. Auditing is enabled
with audit.enabled in the configuration file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				if a.journal == nil {
					return errors.New("auditing is disabled; set audit.enabled in the configuration")
				}
				var doc string
				if len(args) == 1 {
					data, err := os.ReadFile(args[0])
					if err != nil {
						return err
					}
					doc = audit.Fingerprint(data)
				}
				runs, err := a.journal.Runs(ctx, doc)
				if err != nil {
					return err
				}
				return a.writer(cmd.OutOrStdout()).Runs(report.NewRuns(runs))
			})
		},
	}
	return cmd
}
