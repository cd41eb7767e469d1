// Package cli implements the subby subcommands. Each entry point returns an
// error; a non-zero pipeline status surfaces as *ExitError so the binary can
// exit with it without printing anything further.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/marcelocantos/subby/internal/audit"
	"github.com/marcelocantos/subby/internal/config"
	"github.com/marcelocantos/subby/pipeline"
)

// ExitError carries the exit status of a pipeline that did not succeed.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// App bundles what every subcommand needs.
type App struct {
	Config *config.Config
	Audit  *audit.Logger // nil disables auditing
	Log    *slog.Logger

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewLogger builds the diagnostic logger described by the log config.
func NewLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log format: unknown format %q", format)
	}
}

// ExitCode maps an error from a subcommand to a process exit status.
// Errors other than *ExitError are reported on w.
func ExitCode(err error, w io.Writer) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	fmt.Fprintf(w, "subby: %v\n", err)
	return 2
}

// pipelineConfig starts from the library defaults and overlays the config
// file's run section.
func (a *App) pipelineConfig() (pipeline.Config, error) {
	cfg := pipeline.DefaultConfig()
	if a.Config != nil {
		if err := a.Config.Run.ApplyTo(&cfg); err != nil {
			return cfg, fmt.Errorf("config: %w", err)
		}
	}
	cfg.Logger = a.Log
	return cfg, nil
}

func (a *App) logAudit(source, text string, p *pipeline.Processes, runErr error, elapsed time.Duration) {
	if a.Audit == nil {
		return
	}
	// Best-effort: a broken audit log must not fail the command.
	if err := a.Audit.Log(audit.RecordOf(source, text, p, runErr, elapsed)); err != nil && a.Log != nil {
		a.Log.Warn("audit", "err", err)
	}
}

// commandsOf treats a single argument as a pipe-separated line and several
// as one command per stage.
func commandsOf(args []string) pipeline.Commands {
	if len(args) == 1 {
		return pipeline.Line(args[0])
	}
	return pipeline.Lines(args)
}
