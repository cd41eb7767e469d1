package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marcelocantos/subby/internal/audit"
	"github.com/marcelocantos/subby/internal/cli"
	"github.com/marcelocantos/subby/internal/config"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
	root := newRootCmd(app)
	root.SetArgs(os.Args[1:])
	return cli.ExitCode(root.ExecuteContext(ctx), os.Stderr)
}

// setup loads configuration and the shared logger and audit writer. The
// audit log is optional: failure to open it is reported and ignored.
func setup(app *cli.App, configPath, logLevel string) error {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFrom(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	app.Config = cfg

	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	if app.Log, err = cli.NewLogger(app.Stderr, level, cfg.Log.Format); err != nil {
		return err
	}

	if cfg.Audit.Enabled {
		logger, err := audit.NewLogger(cfg.Audit.Path)
		if err != nil {
			fmt.Fprintf(app.Stderr, "subby: audit: %v\n", err)
		} else {
			app.Audit = logger
		}
	}
	return nil
}
