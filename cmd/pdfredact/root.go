package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wudi/pdfredact/audit"
	"github.com/wudi/pdfredact/config"
	"github.com/wudi/pdfredact/observability"
	"github.com/wudi/pdfredact/report"
	"github.com/wudi/pdfredact/session"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pdfredact",
		Short: "Redact text, images and annotations from PDF files",
		Long: `pdfredact removes content from PDF files for real: matched glyphs are
deleted from the page content, covered images are dropped from the file and
the result is rewritten without the previous revision.

Every command reads defaults from $XDG_CONFIG_HOME/pdfredact/config.yaml
unless --config names another file.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "configuration file (default $XDG_CONFIG_HOME/pdfredact/config.yaml)")
	cmd.PersistentFlags().StringP("format", "f", "json", "report format: json or markdown")
	cmd.PersistentFlags().StringP("password", "p", "", "password of encrypted input files")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "log at debug level")

	cmd.AddCommand(NewInfoCmd())
	cmd.AddCommand(NewTextCmd())
	cmd.AddCommand(NewSearchCmd())
	cmd.AddCommand(NewRedactCmd())
	cmd.AddCommand(NewBatchCmd())
	cmd.AddCommand(NewVerifyCmd())
	cmd.AddCommand(NewJournalCmd())
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewVersionCmd())
	return cmd
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "pdfredact:", err)
		os.Exit(1)
	}
}

// app is the state shared by the subcommands.
type app struct {
	cfg      *config.Config
	log      observability.Logger
	manager  *session.Manager
	journal  *audit.Journal
	format   report.Format
	password string
}

// newApp loads the configuration named by the persistent flags. The
// caller closes the app.
func newApp(cmd *cobra.Command) (*app, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	formatName, _ := flags.GetString("format")
	format, err := report.ParseFormat(formatName)
	if err != nil {
		return nil, err
	}
	level := cfg.Log.Level
	if verbose, _ := flags.GetBool("verbose"); verbose {
		level = "debug"
	}
	log, err := observability.NewMaskedLogger(cmd.ErrOrStderr(), level, cfg.Log.Format == "json")
	if err != nil {
		return nil, err
	}

	opts, err := cfg.SessionOptions()
	if err != nil {
		return nil, err
	}
	opts.Logger = log
	opts.Tracer = observability.LogTracer(log)
	a := &app{cfg: cfg, log: log, format: format}
	a.password, _ = flags.GetString("password")
	if p := cfg.AuditPath(); p != "" {
		if a.journal, err = audit.Open(p, audit.DefaultOptions()); err != nil {
			return nil, fmt.Errorf("open audit journal: %w", err)
		}
		opts.Journal = a.journal
	}
	a.manager = session.NewManager(opts)
	return a, nil
}

func (a *app) Close() error {
	if a.journal != nil {
		return a.journal.Close()
	}
	return nil
}

func (a *app) writer(out io.Writer) *report.Writer {
	return report.NewWriter(out, a.format, report.WithIndent())
}

// run builds the app, calls fn and closes the app.
func run(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}
