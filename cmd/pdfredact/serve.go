package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/wudi/pdfredact/mcp"
)

func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the redaction tools over MCP on stdin and stdout",
		Long: `Serve speaks the Model Context Protocol as JSON-RPC lines on stdin and
stdout. Logs go to stderr. Relative pdf_path and output_path arguments are
resolved against --base-dir.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			baseDir, _ := cmd.Flags().GetString("base-dir")
			return run(cmd, func(ctx context.Context, a *app) error {
				s := mcp.NewServer(cmd.InOrStdin(), cmd.OutOrStdout(), getVersion(), a.log)
				tools := &mcp.Tools{Manager: a.manager, BaseDir: baseDir, Style: a.cfg.Style()}
				tools.Register(s)
				a.log.Info("mcp server started")
				return s.Run(ctx)
			})
		},
	}
	wd, _ := os.Getwd()
	cmd.Flags().String("base-dir", wd, "directory for relative paths")
	return cmd
}
