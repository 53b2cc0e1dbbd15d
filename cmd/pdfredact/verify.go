package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wudi/pdfredact/report"
	"github.com/wudi/pdfredact/validate"
)

func NewVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <original> <redacted>",
		Short: "Check that redacted terms are gone and pages survived",
		Long: `Verify compares a redacted file with its original. It fails when a term is
still found in the redacted text, when the page counts differ, or when the
independent reader cannot parse the redacted file or still finds a term.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			terms, _ := cmd.Flags().GetStringArray("term")
			independent, _ := cmd.Flags().GetBool("independent")
			return run(cmd, func(ctx context.Context, a *app) error {
				v, err := verifyFiles(ctx, a, args[0], args[1], terms, independent)
				if err != nil {
					return err
				}
				if err := a.writer(cmd.OutOrStdout()).Verification(report.NewVerification(v)); err != nil {
					return err
				}
				if !v.Passed {
					return errVerificationFailed
				}
				return nil
			})
		},
	}
	cmd.Flags().StringArrayP("term", "t", nil, "text that must no longer be found; repeatable")
	cmd.Flags().Bool("independent", true, "cross-check the redacted file with a second PDF reader")
	return cmd
}

// verifyFiles opens both files with the app password.
func verifyFiles(ctx context.Context, a *app, original, redacted string, terms []string, independent bool) (*validate.Verification, error) {
	oh, err := a.manager.OpenFile(ctx, original, a.password)
	if err != nil {
		return nil, err
	}
	defer a.manager.Close(oh)
	rh, err := a.manager.OpenFile(ctx, redacted, a.password)
	if err != nil {
		return nil, err
	}
	defer a.manager.Close(rh)
	v, err := a.manager.Verify(ctx, oh, rh, terms, independent)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	return v, nil
}
