package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/wudi/pdfredact/extractor"
	"github.com/wudi/pdfredact/report"
	"github.com/wudi/pdfredact/search"
)

func NewInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <pdf>",
		Short: "Show pages, images, encryption and metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				h, err := a.manager.OpenFile(ctx, args[0], a.password)
				if err != nil {
					return err
				}
				defer a.manager.Close(h)
				info, err := a.manager.Info(ctx, h)
				if err != nil {
					return err
				}
				return a.writer(cmd.OutOrStdout()).Info(report.NewInfo(info))
			})
		},
	}
}

func NewTextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "text <pdf>",
		Short: "Extract text by page, line or block",
		Long: `Extract text in reading order. With --granularity line or block every
span carries its bounding box in PDF points, origin at the bottom left.
Pages are numbered from 0.`,
		Args: cobra.ExactArgs(1),
		RunE: runText,
	}
	cmd.Flags().Int("page", -1, "0-based page; all pages when negative")
	cmd.Flags().StringP("granularity", "g", "page", "page, line or block")
	return cmd
}

func runText(cmd *cobra.Command, args []string) error {
	page, _ := cmd.Flags().GetInt("page")
	gname, _ := cmd.Flags().GetString("granularity")
	g, err := extractor.ParseGranularity(gname)
	if err != nil {
		return err
	}
	return run(cmd, func(ctx context.Context, a *app) error {
		h, err := a.manager.OpenFile(ctx, args[0], a.password)
		if err != nil {
			return err
		}
		defer a.manager.Close(h)
		pages, err := a.manager.ExtractText(ctx, h, page, g)
		if err != nil {
			return err
		}
		return a.writer(cmd.OutOrStdout()).Text(report.NewPageTexts(pages))
	})
}

func NewSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <pdf> <query>",
		Short: "Find text or a regular expression and print match rectangles",
		Args:  cobra.ExactArgs(2),
		RunE:  runSearch,
	}
	addQueryFlags(cmd)
	return cmd
}

func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("regex", "r", false, "treat queries as regular expressions")
	cmd.Flags().BoolP("case-sensitive", "c", false, "match case")
	cmd.Flags().Int("page", -1, "restrict to one 0-based page")
}

// query builds a search query from the flags added by addQueryFlags.
func query(cmd *cobra.Command, a *app, text string) search.Query {
	regex, _ := cmd.Flags().GetBool("regex")
	cs, _ := cmd.Flags().GetBool("case-sensitive")
	q := search.Query{Text: text, Pattern: regex, CaseSensitive: cs, Timeout: a.cfg.Search.Timeout}
	if page, _ := cmd.Flags().GetInt("page"); page >= 0 {
		q.Page = search.OnPage(page)
	}
	return q
}

func runSearch(cmd *cobra.Command, args []string) error {
	return run(cmd, func(ctx context.Context, a *app) error {
		h, err := a.manager.OpenFile(ctx, args[0], a.password)
		if err != nil {
			return err
		}
		defer a.manager.Close(h)
		matches, err := a.manager.Search(ctx, h, query(cmd, a, args[1]))
		if err != nil {
			return err
		}
		return a.writer(cmd.OutOrStdout()).Matches(report.NewMatches(matches))
	})
}
