package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/marcelocantos/subby/internal/mcpserver"
	"github.com/marcelocantos/subby/internal/script"
)

// Serve runs the MCP tool server on the app's stdin and stdout.
func Serve(ctx context.Context, app *App, version string) error {
	cfg, err := app.pipelineConfig()
	if err != nil {
		return err
	}
	// stdout carries the protocol.
	cfg.Echo = false
	app.Log.Info("mcp server starting", "version", version)
	return mcpserver.New(version, cfg, app.Audit, app.Log).Serve(ctx, app.Stdin, app.Stdout)
}

// Script executes a Starlark file. Extra arguments are visible to the script
// as argv.
func Script(ctx context.Context, app *App, path string, argv []string) error {
	cfg, err := app.pipelineConfig()
	if err != nil {
		return err
	}
	r := &script.Runner{Base: cfg, Audit: app.Audit, Log: app.Log, Out: app.Stdout}
	if _, err := r.ExecFile(ctx, path, nil, argv); err != nil {
		return fmt.Errorf("script %s: %w", path, err)
	}
	return nil
}

// Version prints the version banner.
func Version(w io.Writer, version string) {
	fmt.Fprintf(w, "subby %s\n", version)
}
