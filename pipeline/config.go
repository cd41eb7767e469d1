package pipeline

import (
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// DefaultKillGrace is how long Kill waits after SIGTERM before SIGKILL.
const DefaultKillGrace = 2 * time.Second

// Config is the full set of knobs for one pipeline run. Start from
// DefaultConfig; the zero value disables blocking, raising, stderr capture
// and echo.
type Config struct {
	// Stdin feeds the first stage. Nil means no input.
	Stdin Endpoint
	// Stdout receives the last stage's output. Nil means Buffered.
	Stdout Endpoint
	// Stderr receives every stage's diagnostics when CaptureStderr is set.
	// Nil means Buffered, one spool per stage.
	Stderr Endpoint

	// Mode governs decoding of captured output.
	Mode Mode

	// Block makes Run wait for completion (and close) before returning.
	// It cannot be combined with a Direct endpoint.
	Block bool
	// Timeout bounds Block. Zero waits forever.
	Timeout time.Duration
	// RaiseOnError makes Block report exit codes outside AllowedReturnCodes.
	RaiseOnError bool
	// AllowedReturnCodes are the exit codes treated as success. Empty means {0}.
	AllowedReturnCodes []int

	// CaptureStderr routes every stage's stderr to Stderr; otherwise stderr
	// is inherited.
	CaptureStderr bool

	// Echo logs the resolved command line at Info before launch.
	Echo bool
	// Logger receives echo and lifecycle records. Nil discards them.
	Logger *slog.Logger

	// Tokenizer splits string stages. Nil means ShellWords.
	Tokenizer Tokenizer
	// Shell, when set, runs each stage as Shell -c <stage text>.
	Shell string

	// Dir is the working directory of every stage. Empty inherits.
	Dir string
	// Env is the environment of every stage. Nil inherits.
	Env []string

	// KillGrace is the delay between SIGTERM and SIGKILL. Zero means
	// DefaultKillGrace.
	KillGrace time.Duration
}

// DefaultConfig returns the documented defaults: buffered stdout and
// stderr, text mode, blocking, raising on exit codes other than 0,
// per-stage stderr capture and echo.
func DefaultConfig() Config {
	return Config{
		Mode:               ModeText,
		Block:              true,
		RaiseOnError:       true,
		AllowedReturnCodes: []int{0},
		CaptureStderr:      true,
		Echo:               true,
		KillGrace:          DefaultKillGrace,
	}
}

// Validate returns an error if the Config is contradictory, filling in
// defaults for unset fields.
func (c *Config) Validate() error {
	c.setDefaults()
	if c.Mode != ModeText && c.Mode != ModeRaw {
		return fmt.Errorf("%w: mode %s", ErrInvalidOption, c.Mode)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout %s", ErrInvalidOption, c.Timeout)
	}
	if c.KillGrace < 0 {
		return fmt.Errorf("%w: negative kill grace %s", ErrInvalidOption, c.KillGrace)
	}
	// A Direct pipe must be fed or drained while the stages run, which the
	// caller cannot do until Run returns.
	if c.Block {
		for role, ep := range []Endpoint{c.Stdin, c.Stdout, c.Stderr} {
			if Role(role) == RoleStderr && !c.CaptureStderr {
				continue
			}
			if _, ok := ep.(Direct); ok {
				return fmt.Errorf("%w: direct %s needs Block disabled", ErrInvalidOption, Role(role))
			}
		}
	}
	return nil
}

func (c *Config) setDefaults() {
	if len(c.AllowedReturnCodes) == 0 {
		c.AllowedReturnCodes = []int{0}
	}
	if c.KillGrace == 0 {
		c.KillGrace = DefaultKillGrace
	}
	if c.Tokenizer == nil {
		c.Tokenizer = ShellWords
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

func (c *Config) allowed(code int) bool {
	return slices.Contains(c.AllowedReturnCodes, code)
}

// Option adjusts a Config.
type Option func(*Config)

func WithStdin(ep Endpoint) Option  { return func(c *Config) { c.Stdin = ep } }
func WithStdout(ep Endpoint) Option { return func(c *Config) { c.Stdout = ep } }
func WithStderr(ep Endpoint) Option { return func(c *Config) { c.Stderr = ep } }
func WithMode(m Mode) Option        { return func(c *Config) { c.Mode = m } }
func WithBlock(b bool) Option       { return func(c *Config) { c.Block = b } }

func WithTimeout(d time.Duration) Option { return func(c *Config) { c.Timeout = d } }
func WithRaiseOnError(b bool) Option     { return func(c *Config) { c.RaiseOnError = b } }
func WithCaptureStderr(b bool) Option    { return func(c *Config) { c.CaptureStderr = b } }
func WithEcho(b bool) Option             { return func(c *Config) { c.Echo = b } }
func WithLogger(l *slog.Logger) Option   { return func(c *Config) { c.Logger = l } }
func WithTokenizer(t Tokenizer) Option   { return func(c *Config) { c.Tokenizer = t } }
func WithShell(path string) Option       { return func(c *Config) { c.Shell = path } }
func WithDir(dir string) Option          { return func(c *Config) { c.Dir = dir } }
func WithEnv(env []string) Option        { return func(c *Config) { c.Env = env } }
func WithKillGrace(d time.Duration) Option {
	return func(c *Config) { c.KillGrace = d }
}

// WithAllowedReturnCodes replaces the allowed-success set.
func WithAllowedReturnCodes(codes ...int) Option {
	return func(c *Config) { c.AllowedReturnCodes = append([]int(nil), codes...) }
}
