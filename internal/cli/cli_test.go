package cli

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marcelocantos/subby/internal/audit"
	"github.com/marcelocantos/subby/internal/config"
	"github.com/marcelocantos/subby/pipeline"
)

type harness struct {
	app       *App
	stdout    bytes.Buffer
	stderr    bytes.Buffer
	auditPath string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{auditPath: filepath.Join(t.TempDir(), "audit.jsonl")}
	logger, err := audit.NewLogger(h.auditPath)
	if err != nil {
		t.Fatal(err)
	}
	h.app = &App{
		Config: config.DefaultConfig(),
		Audit:  logger,
		Log:    slog.New(slog.DiscardHandler),
		Stdin:  strings.NewReader(""),
		Stdout: &h.stdout,
		Stderr: &h.stderr,
	}
	return h
}

func TestRunWritesOutput(t *testing.T) {
	h := newHarness(t)
	err := Run(context.Background(), h.app, []string{"grep foo", "wc -l"}, RunOptions{InText: "foo\nbar\n"})
	if err != nil {
		t.Fatal(err)
	}
	if got := h.stdout.String(); got != "1\n" {
		t.Errorf("stdout = %q", got)
	}

	entries, err := audit.Tail(h.auditPath, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Source != "cli" || entries[0].Pipeline != "grep foo | wc -l" {
		t.Errorf("unexpected audit %+v", entries)
	}
}

func TestRunExitStatus(t *testing.T) {
	h := newHarness(t)
	err := Run(context.Background(), h.app, []string{"echo foo | grep bar"}, RunOptions{})
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 1 {
		t.Fatalf("expected exit 1, got %v", err)
	}
	if ExitCode(err, &h.stderr) != 1 {
		t.Error("ExitCode should pass the status through")
	}

	err = Run(context.Background(), h.app, []string{"echo foo | grep bar"}, RunOptions{Allow: []int{0, 1}})
	if err != nil {
		t.Errorf("allowed code should succeed: %v", err)
	}
}

func TestRunStderrPerStage(t *testing.T) {
	h := newHarness(t)
	err := Run(context.Background(), h.app, []string{"echo -n hi | tee /dev/stderr"}, RunOptions{AllStderr: true, Raw: true})
	if err != nil {
		t.Fatal(err)
	}
	if got := h.stderr.String(); got != "[1 tee]\nhi" {
		t.Errorf("stderr = %q", got)
	}
	if got := h.stdout.String(); got != "hi" {
		t.Errorf("stdout = %q", got)
	}
}

func TestRunToFile(t *testing.T) {
	h := newHarness(t)
	out := filepath.Join(t.TempDir(), "out.txt")
	if err := Run(context.Background(), h.app, []string{"echo one"}, RunOptions{Out: out}); err != nil {
		t.Fatal(err)
	}
	if err := Run(context.Background(), h.app, []string{"echo two"}, RunOptions{Out: out, Append: true}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "one\ntwo\n" {
		t.Errorf("file = %q", data)
	}
	if h.stdout.Len() != 0 {
		t.Errorf("stdout should be empty, got %q", h.stdout.String())
	}
}

func TestRunRejectsConflictingOptions(t *testing.T) {
	h := newHarness(t)
	cases := map[string]RunOptions{
		"two inputs":     {In: "x", InText: "y"},
		"append no out":  {Append: true},
		"all stderr off": {AllStderr: true, NoCapture: true},
	}
	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			err := Run(context.Background(), h.app, []string{"true"}, opts)
			if !errors.Is(err, pipeline.ErrInvalidOption) {
				t.Errorf("expected ErrInvalidOption, got %v", err)
			}
		})
	}
}

func TestRunLaunchFailure(t *testing.T) {
	h := newHarness(t)
	err := Run(context.Background(), h.app, []string{"/nonexistent/program"}, RunOptions{})
	if !errors.Is(err, pipeline.ErrLaunch) {
		t.Fatalf("expected ErrLaunch, got %v", err)
	}
	if code := ExitCode(err, &h.stderr); code != 2 {
		t.Errorf("exit code = %d", code)
	}
	if !strings.HasPrefix(h.stderr.String(), "subby: ") {
		t.Errorf("stderr = %q", h.stderr.String())
	}
}

func TestSub(t *testing.T) {
	h := newHarness(t)
	if err := Sub(context.Background(), h.app, []string{"echo hi | tr a-z A-Z"}); err != nil {
		t.Fatal(err)
	}
	if got := h.stdout.String(); got != "HI\n" {
		t.Errorf("stdout = %q", got)
	}

	err := Sub(context.Background(), h.app, []string{"sh -c 'echo nope >&2; exit 3'"})
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 3 {
		t.Fatalf("expected exit 3, got %v", err)
	}
	if got := h.stderr.String(); got != "nope\n" {
		t.Errorf("stderr = %q", got)
	}
}

func TestScript(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "hello.star")
	if err := os.WriteFile(path, []byte(`print(sub("echo " + argv[0]))`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := Script(context.Background(), h.app, path, []string{"world"}); err != nil {
		t.Fatal(err)
	}
	if got := h.stdout.String(); got != "world\n" {
		t.Errorf("stdout = %q", got)
	}
}

func TestAuditCommands(t *testing.T) {
	h := newHarness(t)
	if err := Run(context.Background(), h.app, []string{"true"}, RunOptions{}); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := AuditVerify(&buf, h.auditPath); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "verified") {
		t.Errorf("verify output = %q", buf.String())
	}
	buf.Reset()
	if err := AuditTail(&buf, h.auditPath, 5); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"pipeline": "true"`) {
		t.Errorf("tail output = %q", buf.String())
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger(&buf, "debug", "json")
	if err != nil {
		t.Fatal(err)
	}
	log.Debug("hello", "k", 1)
	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Errorf("log = %q", buf.String())
	}
	if _, err := NewLogger(&buf, "loud", "text"); err == nil {
		t.Error("expected level error")
	}
	if _, err := NewLogger(&buf, "info", "xml"); err == nil {
		t.Error("expected format error")
	}
}

func TestShellStatus(t *testing.T) {
	for code, want := range map[int]int{-9: 137, 0: 1, 3: 3} {
		if got := shellStatus(code); got != want {
			t.Errorf("shellStatus(%d) = %d, want %d", code, got, want)
		}
	}
}
