package pipeline

import (
	"fmt"
	"time"
)

// Separators recognised when a command line is split into stages.
const (
	OpPipe = "|" // stdout of the left stage feeds stdin of the right stage

	// Rendering only; never parsed.
	opRedirectIn     = "<"
	opRedirectOut    = ">"
	opRedirectAppend = ">>"
	opRedirectErr    = "2>"
)

// StageSpec is one normalized pipeline stage: the program and its arguments.
type StageSpec struct {
	Argv []string
}

// Name returns the program name of the stage.
func (s StageSpec) Name() string {
	if len(s.Argv) == 0 {
		return ""
	}
	return s.Argv[0]
}

// Mode selects how captured output is surfaced.
type Mode int

const (
	// ModeText validates captured bytes as UTF-8 and strips trailing newlines.
	ModeText Mode = iota
	// ModeRaw passes captured bytes through untouched.
	ModeRaw
)

func (m Mode) String() string {
	switch m {
	case ModeText:
		return "text"
	case ModeRaw:
		return "raw"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode converts a string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "text", "":
		return ModeText, nil
	case "raw", "bytes":
		return ModeRaw, nil
	default:
		return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidOption, s)
	}
}

// State is the lifecycle state of a launched pipeline.
type State int

const (
	// StateRunning means at least one stage has not exited yet.
	StateRunning State = iota
	// StateDone means every stage exited on its own.
	StateDone
	// StateKilled means a kill was requested and every stage has exited.
	StateKilled
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Role identifies which standard stream an endpoint is attached to.
type Role int

const (
	RoleStdin Role = iota
	RoleStdout
	RoleStderr
)

func (r Role) String() string {
	switch r {
	case RoleStdin:
		return "stdin"
	case RoleStdout:
		return "stdout"
	case RoleStderr:
		return "stderr"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// StageStatus is a point-in-time snapshot of one running stage.
type StageStatus struct {
	Argv      []string
	Pid       int
	StartTime time.Time
	EndTime   *time.Time
	ExitCode  *int
}
