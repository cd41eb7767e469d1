package pipeline

import (
	"fmt"
	"os"

	"github.com/marcelocantos/subby/internal/spool"
)

// Endpoint describes the source or sink of one pipeline-boundary stream.
// It is one of Inherit, Direct, Buffered, Literal, File or Stream.
type Endpoint interface {
	endpoint()
}

// Inherit connects the stream to the parent's corresponding stream.
type Inherit struct{}

// Direct connects the stream to an OS pipe whose other end is handed to the
// caller. The caller must drain (or feed and close) it; nothing is buffered.
type Direct struct{}

// Buffered captures the stream into spool storage that can be read once the
// pipeline is done.
type Buffered struct{}

// Literal feeds fixed content to the first stage's stdin.
type Literal struct {
	Data []byte
}

// File reads stdin from, or writes stdout/stderr to, a path on disk.
// Output written to a File is not captured.
type File struct {
	Path   string
	Append bool
}

// Stream attaches an already-open file. The caller keeps ownership of F.
type Stream struct {
	F *os.File
}

func (Inherit) endpoint()  {}
func (Direct) endpoint()   {}
func (Buffered) endpoint() {}
func (Literal) endpoint()  {}
func (File) endpoint()     {}
func (Stream) endpoint()   {}

// Text returns a Literal holding s.
func Text(s string) Literal { return Literal{Data: []byte(s)} }

// Bytes returns a Literal holding a copy of b.
func Bytes(b []byte) Literal { return Literal{Data: append([]byte(nil), b...)} }

// stream is the resolved form of an endpoint: what the process gets, what
// the caller gets, and what is kept for read-back.
type stream struct {
	endpoint Endpoint

	// proc is handed to the child; nil means the null device.
	proc *os.File
	// closeProc is set when the builder owns proc and must close its copy
	// once the consuming stage(s) have started.
	closeProc bool
	// caller is the caller-facing end of a Direct pipe.
	caller *os.File
	// capture is the spool read back after completion.
	capture *os.File
}

// release closes everything the stream owns. Used on launch failure and
// when the pipeline is closed.
func (s *stream) release() {
	if s == nil {
		return
	}
	if s.closeProc && s.proc != nil {
		s.proc.Close()
	}
	if s.caller != nil {
		s.caller.Close()
	}
	if s.capture != nil {
		s.capture.Close()
	}
}

// resolve turns an endpoint into a concrete stream for the given role.
func resolve(ep Endpoint, role Role) (*stream, error) {
	switch e := ep.(type) {
	case nil:
		if role == RoleStdin {
			return &stream{}, nil
		}
		return resolve(Buffered{}, role)

	case Inherit:
		s := &stream{endpoint: e}
		switch role {
		case RoleStdin:
			s.proc = os.Stdin
		case RoleStdout:
			s.proc = os.Stdout
		case RoleStderr:
			s.proc = os.Stderr
		}
		return s, nil

	case Direct:
		r, w, err := os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("create %s pipe: %w", role, err)
		}
		if role == RoleStdin {
			return &stream{endpoint: e, proc: r, closeProc: true, caller: w}, nil
		}
		return &stream{endpoint: e, proc: w, closeProc: true, caller: r}, nil

	case Buffered:
		if role == RoleStdin {
			return nil, &EndpointError{Role: role, Endpoint: e, Reason: "nothing to read back from an input"}
		}
		f, err := spool.New(role.String())
		if err != nil {
			return nil, err
		}
		return &stream{endpoint: e, proc: f, capture: f}, nil

	case Literal:
		if role != RoleStdin {
			return nil, &EndpointError{Role: role, Endpoint: e, Reason: "literal content can only feed stdin"}
		}
		f, err := spool.FromBytes(role.String(), e.Data)
		if err != nil {
			return nil, err
		}
		return &stream{endpoint: e, proc: f, closeProc: true}, nil

	case File:
		if e.Path == "" {
			return nil, &EndpointError{Role: role, Endpoint: e, Reason: "empty path"}
		}
		if role == RoleStdin {
			if e.Append {
				return nil, &EndpointError{Role: role, Endpoint: e, Reason: "append applies to outputs only"}
			}
			f, err := os.Open(e.Path)
			if err != nil {
				return nil, fmt.Errorf("open %s: %w", role, err)
			}
			return &stream{endpoint: e, proc: f, closeProc: true}, nil
		}
		flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		if e.Append {
			flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
		}
		f, err := os.OpenFile(e.Path, flags, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", role, err)
		}
		return &stream{endpoint: e, proc: f, closeProc: true}, nil

	case Stream:
		if e.F == nil {
			return nil, &EndpointError{Role: role, Endpoint: e, Reason: "nil file"}
		}
		return &stream{endpoint: e, proc: e.F}, nil

	default:
		return nil, &EndpointError{Role: role, Endpoint: ep, Reason: "unknown endpoint type"}
	}
}

func describeEndpoint(ep Endpoint) string {
	switch e := ep.(type) {
	case nil:
		return "default"
	case Inherit:
		return "inherit"
	case Direct:
		return "direct"
	case Buffered:
		return "buffered"
	case Literal:
		return fmt.Sprintf("literal(%d bytes)", len(e.Data))
	case File:
		return fmt.Sprintf("file(%s)", e.Path)
	case Stream:
		if e.F == nil {
			return "stream(nil)"
		}
		return fmt.Sprintf("stream(%s)", e.F.Name())
	default:
		return fmt.Sprintf("%T", ep)
	}
}

func isBuffered(ep Endpoint) bool {
	switch ep.(type) {
	case nil, Buffered:
		return true
	}
	return false
}

func isInherit(ep Endpoint) bool {
	_, ok := ep.(Inherit)
	return ok
}
