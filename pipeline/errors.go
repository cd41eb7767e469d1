package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidCommand is returned when a command description is empty or
	// cannot be tokenized into stages.
	ErrInvalidCommand = errors.New("invalid command")
	// ErrUnsupportedEndpoint is returned when an endpoint cannot serve a role.
	ErrUnsupportedEndpoint = errors.New("unsupported endpoint")
	// ErrLaunch is returned when a stage fails to start.
	ErrLaunch = errors.New("pipeline launch failed")
	// ErrTimeout is returned when Block runs out of time.
	ErrTimeout = errors.New("timed out waiting for pipeline")
	// ErrCalledProcess is returned when a stage exits outside the allowed set.
	ErrCalledProcess = errors.New("command failed")
	// ErrNotCaptured is returned when reading a stream that was not captured.
	ErrNotCaptured = errors.New("stream not captured")
	// ErrNotDone is returned when reading results of a running pipeline.
	ErrNotDone = errors.New("pipeline not done")
	// ErrInvalidEncoding is returned when text-mode output is not valid UTF-8.
	ErrInvalidEncoding = errors.New("invalid text encoding")
	// ErrInvalidOption is returned for contradictory or unknown options.
	ErrInvalidOption = errors.New("invalid option")
)

// EndpointError reports an endpoint that is not valid for its role.
type EndpointError struct {
	Role     Role
	Endpoint Endpoint
	Reason   string
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("%s: %s for %s: %s", ErrUnsupportedEndpoint, describeEndpoint(e.Endpoint), e.Role, e.Reason)
}

func (e *EndpointError) Unwrap() error { return ErrUnsupportedEndpoint }

// LaunchError reports the stage that failed to start. Stages started before
// it were killed and reaped; their pids are listed in RolledBack.
type LaunchError struct {
	Index      int
	Argv       []string
	Err        error
	RolledBack []int
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("%s: stage %d (%s): %v", ErrLaunch, e.Index, strings.Join(e.Argv, " "), e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *LaunchError) Unwrap() []error { return []error{ErrLaunch, e.Err} }

// TimeoutError reports that Block gave up waiting. The pipeline keeps running.
type TimeoutError struct {
	Command string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s after %s: %s", ErrTimeout, e.Timeout, e.Command)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// CalledProcessError reports the first stage whose exit code fell outside the
// allowed-success set.
type CalledProcessError struct {
	Index    int
	Argv     []string
	ExitCode int
	Stderr   []byte
}

func (e *CalledProcessError) Error() string {
	msg := fmt.Sprintf("%s: stage %d (%s) exited with status %d", ErrCalledProcess, e.Index, strings.Join(e.Argv, " "), e.ExitCode)
	if s := strings.TrimSpace(string(e.Stderr)); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *CalledProcessError) Unwrap() error { return ErrCalledProcess }

// NotCapturedError reports a read of a stream whose endpoint does not capture.
type NotCapturedError struct {
	Stream string
}

func (e *NotCapturedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrNotCaptured, e.Stream)
}

func (e *NotCapturedError) Unwrap() error { return ErrNotCaptured }
