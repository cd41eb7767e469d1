package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/marcelocantos/subby/pipeline"
)

// RunOptions are the command-line switches of `subby run`.
type RunOptions struct {
	In           string
	InText       string
	InheritStdin bool
	Out          string
	Append       bool
	Err          string
	Raw          bool
	Timeout      time.Duration
	Allow        []int
	NoCapture    bool
	Quiet        bool
	Shell        string
	AllStderr    bool
}

func (o RunOptions) apply(cfg *pipeline.Config) error {
	inputs := 0
	if o.In != "" {
		cfg.Stdin = pipeline.File{Path: o.In}
		inputs++
	}
	if o.InText != "" {
		cfg.Stdin = pipeline.Text(o.InText)
		inputs++
	}
	if o.InheritStdin {
		cfg.Stdin = pipeline.Inherit{}
		inputs++
	}
	if inputs > 1 {
		return fmt.Errorf("%w: --in, --in-text and --inherit-stdin are exclusive", pipeline.ErrInvalidOption)
	}
	if o.Append && o.Out == "" {
		return fmt.Errorf("%w: --append needs --out", pipeline.ErrInvalidOption)
	}
	if o.Out != "" {
		cfg.Stdout = pipeline.File{Path: o.Out, Append: o.Append}
	}
	if o.Err != "" {
		cfg.Stderr = pipeline.File{Path: o.Err}
	}
	if o.AllStderr && (o.Err != "" || o.NoCapture) {
		return fmt.Errorf("%w: --all-stderr needs captured stderr", pipeline.ErrInvalidOption)
	}
	if o.Raw {
		cfg.Mode = pipeline.ModeRaw
	}
	if o.Timeout > 0 {
		cfg.Timeout = o.Timeout
	}
	if len(o.Allow) > 0 {
		cfg.AllowedReturnCodes = append([]int(nil), o.Allow...)
	}
	if o.NoCapture {
		cfg.CaptureStderr = false
	}
	if o.Quiet {
		cfg.Echo = false
	}
	if o.Shell != "" {
		cfg.Shell = o.Shell
	}
	// The exit status is the report; Block never raises here.
	cfg.RaiseOnError = false
	cfg.Block = true
	return nil
}

// Run launches the pipeline described by args, copies its captured output
// to the app's streams and returns *ExitError for a non-zero return code.
func Run(ctx context.Context, app *App, args []string, opts RunOptions) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", pipeline.ErrInvalidCommand)
	}
	cfg, err := app.pipelineConfig()
	if err != nil {
		return err
	}
	if err := opts.apply(&cfg); err != nil {
		return err
	}

	text := strings.Join(args, " "+pipeline.OpPipe+" ")
	start := time.Now()
	p, err := pipeline.RunConfig(ctx, commandsOf(args), cfg)
	elapsed := time.Since(start)
	if p != nil && !p.Closed() {
		p.Close()
	}
	app.logAudit("cli", text, p, err, elapsed)
	if err != nil {
		return err
	}

	if opts.Out == "" {
		out, err := p.Output()
		if err != nil {
			return err
		}
		writeOutput(app.Stdout, out, cfg.Mode)
	}
	if err := copyStderr(app.Stderr, p, cfg, opts.AllStderr); err != nil {
		return err
	}

	if code, _ := p.ReturnCode(); !p.OK() {
		return &ExitError{Code: shellStatus(code)}
	}
	return nil
}

// shellStatus maps a return code to what a shell would report: 128+N for a
// stage killed by signal N, and never 0 for a failed pipeline.
func shellStatus(code int) int {
	switch {
	case code < 0:
		return 128 - code
	case code == 0:
		return 1
	default:
		return code
	}
}

// Sub prints the text output of a pipeline that must succeed.
func Sub(ctx context.Context, app *App, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", pipeline.ErrInvalidCommand)
	}
	cfg, err := app.pipelineConfig()
	if err != nil {
		return err
	}
	cfg.Mode = pipeline.ModeText

	start := time.Now()
	p, err := pipeline.RunConfig(ctx, commandsOf(args), cfg)
	elapsed := time.Since(start)
	if p != nil && !p.Closed() {
		p.Close()
	}
	app.logAudit("cli", strings.Join(args, " "+pipeline.OpPipe+" "), p, err, elapsed)

	var cpe *pipeline.CalledProcessError
	if errors.As(err, &cpe) {
		app.Stderr.Write(cpe.Stderr)
		return &ExitError{Code: shellStatus(cpe.ExitCode)}
	}
	if err != nil {
		return err
	}
	out, err := p.OutputText()
	if err != nil {
		return err
	}
	writeOutput(app.Stdout, []byte(out), pipeline.ModeText)
	return nil
}

func writeOutput(w io.Writer, out []byte, mode pipeline.Mode) {
	w.Write(out)
	if mode == pipeline.ModeText && len(out) > 0 {
		io.WriteString(w, "\n")
	}
}

func copyStderr(w io.Writer, p *pipeline.Processes, cfg pipeline.Config, perStage bool) error {
	if !cfg.CaptureStderr {
		return nil
	}
	if _, ok := cfg.Stderr.(pipeline.File); ok {
		return nil
	}
	all, err := p.AllStderr()
	if err != nil {
		return err
	}
	stages := p.Stages()
	for i, b := range all {
		if len(b) == 0 {
			continue
		}
		if perStage {
			fmt.Fprintf(w, "[%d %s]\n", i, filepath.Base(stages[i].Argv[0]))
		}
		writeOutput(w, b, cfg.Mode)
	}
	return nil
}
