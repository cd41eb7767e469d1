// Package script runs Starlark programs that drive pipelines through the
// predeclared run and sub builtins.
package script

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"

	"github.com/marcelocantos/subby/internal/audit"
	"github.com/marcelocantos/subby/pipeline"
)

const ctxKey = "context"

// Runner executes scripts. Pipelines start from Base; stdout of print()
// goes to Out.
type Runner struct {
	Base  pipeline.Config
	Audit *audit.Logger // nil disables auditing
	Log   *slog.Logger
	Out   io.Writer
}

// ExecFile runs the script in src (or read from filename when src is nil)
// with argv bound to the predeclared list argv. It returns the script's
// globals.
func (r *Runner) ExecFile(ctx context.Context, filename string, src any, argv []string) (starlark.StringDict, error) {
	thread := &starlark.Thread{
		Name: "subby",
		Print: func(_ *starlark.Thread, msg string) {
			fmt.Fprintln(r.Out, msg)
		},
	}
	thread.SetLocal(ctxKey, ctx)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()

	args := make([]starlark.Value, len(argv))
	for i, a := range argv {
		args[i] = starlark.String(a)
	}
	predeclared := starlark.StringDict{
		"run":  starlark.NewBuiltin("run", r.run),
		"sub":  starlark.NewBuiltin("sub", r.sub),
		"argv": starlark.NewList(args),
	}
	return starlark.ExecFileOptions(&syntax.FileOptions{GlobalReassign: true}, thread, filename, src, predeclared)
}

// run(cmds, stdin=None, mode="text", allowed_return_codes=None, timeout=0,
// capture_stderr=True, check=True)
func (r *Runner) run(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var cmds starlark.Value
	var stdin, allowed starlark.Value = starlark.None, starlark.None
	var timeout starlark.Value = starlark.MakeInt(0)
	mode, captureStderr, check := "text", true, true
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"cmds", &cmds,
		"stdin?", &stdin,
		"mode?", &mode,
		"allowed_return_codes?", &allowed,
		"timeout?", &timeout,
		"capture_stderr?", &captureStderr,
		"check?", &check,
	); err != nil {
		return nil, err
	}

	cfg := r.config()
	var err error
	if cfg.Mode, err = pipeline.ParseMode(mode); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	if cfg.Stdin, err = stdinOf(stdin); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	if allowed != starlark.None {
		if cfg.AllowedReturnCodes, err = intsOf(allowed); err != nil {
			return nil, fmt.Errorf("%s: allowed_return_codes: %w", b.Name(), err)
		}
	}
	secs, ok := starlark.AsFloat(timeout)
	if !ok || secs < 0 {
		return nil, fmt.Errorf("%s: timeout must be a non-negative number", b.Name())
	}
	cfg.Timeout = time.Duration(secs * float64(time.Second))
	cfg.CaptureStderr = captureStderr
	cfg.RaiseOnError = check

	p, err := r.launch(thread, b, cmds, cfg)
	if err != nil {
		return nil, err
	}
	return resultOf(p, cfg.Mode)
}

// sub(cmds, stdin=None) returns the text output of a pipeline that must
// succeed.
func (r *Runner) sub(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var cmds starlark.Value
	var stdin starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "cmds", &cmds, "stdin?", &stdin); err != nil {
		return nil, err
	}
	cfg := r.config()
	cfg.Mode = pipeline.ModeText
	cfg.RaiseOnError = true
	var err error
	if cfg.Stdin, err = stdinOf(stdin); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}

	p, err := r.launch(thread, b, cmds, cfg)
	if err != nil {
		return nil, err
	}
	out, err := p.OutputText()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.String(out), nil
}

func (r *Runner) config() pipeline.Config {
	cfg := r.Base
	cfg.Block = true
	cfg.Stdin, cfg.Stdout, cfg.Stderr = nil, nil, nil
	cfg.Logger = r.Log
	return cfg
}

// launch runs cmds to completion and records the attempt.
func (r *Runner) launch(thread *starlark.Thread, b *starlark.Builtin, v starlark.Value, cfg pipeline.Config) (*pipeline.Processes, error) {
	cmds, err := commandsOf(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	ctx, _ := thread.Local(ctxKey).(context.Context)
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	p, err := pipeline.RunConfig(ctx, cmds, cfg)
	elapsed := time.Since(start)
	if p != nil && !p.Closed() {
		p.Close()
	}
	if r.Audit != nil {
		if aerr := r.Audit.Log(audit.RecordOf("script", v.String(), p, err, elapsed)); aerr != nil && r.Log != nil {
			r.Log.Warn("audit", "err", aerr)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return p, nil
}

func resultOf(p *pipeline.Processes, mode pipeline.Mode) (starlark.Value, error) {
	wrap := func(data []byte) starlark.Value {
		if mode == pipeline.ModeRaw {
			return starlark.Bytes(data)
		}
		return starlark.String(data)
	}

	fields := starlark.StringDict{
		"command": starlark.String(p.String()),
		"ok":      starlark.Bool(p.OK()),
	}
	if out, err := p.Output(); err == nil {
		fields["output"] = wrap(out)
	} else {
		return nil, fmt.Errorf("run: %w", err)
	}
	if errOut, err := p.ErrOutput(); err == nil {
		fields["error"] = wrap(errOut)
	} else {
		return nil, fmt.Errorf("run: %w", err)
	}

	all, err := p.AllStderr()
	if err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	stderr := make([]starlark.Value, len(all))
	for i, data := range all {
		stderr[i] = wrap(data)
	}
	fields["stderr"] = starlark.NewList(stderr)

	codes, _ := p.ExitCodes()
	vals := make([]starlark.Value, len(codes))
	for i, c := range codes {
		vals[i] = starlark.MakeInt(c)
	}
	fields["codes"] = starlark.NewList(vals)

	return starlarkstruct.FromStringDict(starlarkstruct.Default, fields), nil
}
