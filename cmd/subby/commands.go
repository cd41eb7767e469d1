package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/marcelocantos/subby/internal/cli"
	"github.com/marcelocantos/subby/pipeline"
)

func newRootCmd(app *cli.App) *cobra.Command {
	var configPath, logLevel string
	root := &cobra.Command{
		Use:           "subby",
		Short:         "Run pipelines of external commands without a shell",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(app, configPath, logLevel)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/subby/config.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	root.AddCommand(newRunCmd(app))
	root.AddCommand(newSubCmd(app))
	root.AddCommand(newAuditCmd(app))
	root.AddCommand(newMCPCmd(app))
	root.AddCommand(newScriptCmd(app))
	root.AddCommand(newVersionCmd(app))
	return root
}

func requireCommand(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return errors.New(`a command is required, e.g. subby run "grep foo | wc -l"`)
	}
	return nil
}

func newRunCmd(app *cli.App) *cobra.Command {
	var opts cli.RunOptions
	cmd := &cobra.Command{
		Use:   "run [flags] CMD [CMD...]",
		Short: "Run a pipeline and copy its output",
		Long: "Run a pipeline. A single argument is split on " + pipeline.OpPipe +
			"; several arguments are one stage each. The exit status is the pipeline's return code.",
		Args: requireCommand,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Run(cmd.Context(), app, args, opts)
		},
	}
	f := cmd.Flags()
	f.SetInterspersed(false)
	f.StringVar(&opts.In, "in", "", "read stdin of the first stage from `FILE`")
	f.StringVar(&opts.InText, "in-text", "", "feed `TEXT` to the first stage")
	f.BoolVar(&opts.InheritStdin, "inherit-stdin", false, "connect the first stage to this process's stdin")
	f.StringVar(&opts.Out, "out", "", "write the last stage's stdout to `FILE`")
	f.BoolVar(&opts.Append, "append", false, "append to --out instead of truncating")
	f.StringVar(&opts.Err, "err", "", "write every stage's stderr to `FILE`")
	f.BoolVar(&opts.Raw, "raw", false, "copy output bytes untouched")
	f.DurationVar(&opts.Timeout, "timeout", 0, "kill the pipeline after this long")
	f.IntSliceVar(&opts.Allow, "allow", nil, "exit codes treated as success (repeatable)")
	f.BoolVar(&opts.NoCapture, "no-capture-stderr", false, "let stages write stderr directly")
	f.BoolVar(&opts.Quiet, "quiet", false, "do not log the command line")
	f.StringVar(&opts.Shell, "shell", "", "run each stage with `PATH` -c")
	f.BoolVar(&opts.AllStderr, "all-stderr", false, "label captured stderr by stage")
	return cmd
}

func newSubCmd(app *cli.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sub CMD [CMD...]",
		Short: "Print the text output of a pipeline that must succeed",
		Args:  requireCommand,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Sub(cmd.Context(), app, args)
		},
	}
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func newAuditCmd(app *cli.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit log",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Check the audit log hash chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.AuditVerify(app.Stdout, app.Config.Audit.Path)
		},
	})

	var n int
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent audit entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.AuditTail(app.Stdout, app.Config.Audit.Path, n)
		},
	}
	tail.Flags().IntVarP(&n, "lines", "n", 20, "number of entries")
	cmd.AddCommand(tail)
	return cmd
}

func newMCPCmd(app *cli.App) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the run_pipeline tool over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Serve(cmd.Context(), app, version)
		},
	}
}

func newScriptCmd(app *cli.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "script FILE [ARG...]",
		Short: "Run a Starlark script with run() and sub() builtins",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Script(cmd.Context(), app, args[0], args[1:])
		},
	}
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func newVersionCmd(app *cli.App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			cli.Version(app.Stdout, version)
		},
	}
}
