package pipeline

import (
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Commands describes the stages of a pipeline. It is one of Line, Lines or
// Argvs; Normalize turns any of them into a []StageSpec.
type Commands interface {
	segments() ([]segment, error)
}

// Line is a single command line whose stages are separated by OpPipe,
// e.g. "grep foo | wc -l".
type Line string

// Lines is one command string per stage, e.g. {"grep foo", "wc -l"}.
type Lines []string

// Argvs is one pre-tokenized argument vector per stage.
type Argvs [][]string

// segment is one stage before tokenization. Exactly one of text and argv
// is set.
type segment struct {
	text string
	argv []string
}

func (l Line) segments() ([]segment, error) {
	if strings.TrimSpace(string(l)) == "" {
		return nil, fmt.Errorf("%w: empty command line", ErrInvalidCommand)
	}
	parts := strings.Split(string(l), OpPipe)
	segs := make([]segment, 0, len(parts))
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("%w: empty segment %d in %q", ErrInvalidCommand, i, string(l))
		}
		segs = append(segs, segment{text: part})
	}
	return segs, nil
}

func (l Lines) segments() ([]segment, error) {
	if len(l) == 0 {
		return nil, fmt.Errorf("%w: no commands", ErrInvalidCommand)
	}
	segs := make([]segment, 0, len(l))
	for i, s := range l {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, fmt.Errorf("%w: empty command %d", ErrInvalidCommand, i)
		}
		segs = append(segs, segment{text: s})
	}
	return segs, nil
}

func (a Argvs) segments() ([]segment, error) {
	if len(a) == 0 {
		return nil, fmt.Errorf("%w: no commands", ErrInvalidCommand)
	}
	segs := make([]segment, 0, len(a))
	for i, argv := range a {
		if len(argv) == 0 {
			return nil, fmt.Errorf("%w: empty argument vector %d", ErrInvalidCommand, i)
		}
		segs = append(segs, segment{argv: append([]string(nil), argv...)})
	}
	return segs, nil
}

// Tokenizer splits one command string into an argument vector.
type Tokenizer interface {
	Split(s string) ([]string, error)
}

// TokenizerFunc adapts a function to the Tokenizer interface.
type TokenizerFunc func(s string) ([]string, error)

func (f TokenizerFunc) Split(s string) ([]string, error) { return f(s) }

// ShellWords splits using POSIX shell word rules: quotes and backslash
// escapes are honoured, nothing is expanded.
var ShellWords Tokenizer = TokenizerFunc(shellquote.Split)

// Normalize resolves cmds into stage specs, tokenizing string segments
// with tok (ShellWords when nil).
func Normalize(cmds Commands, tok Tokenizer) ([]StageSpec, error) {
	if cmds == nil {
		return nil, fmt.Errorf("%w: no commands", ErrInvalidCommand)
	}
	if tok == nil {
		tok = ShellWords
	}
	segs, err := cmds.segments()
	if err != nil {
		return nil, err
	}
	stages := make([]StageSpec, 0, len(segs))
	for i, seg := range segs {
		argv := seg.argv
		if argv == nil {
			argv, err = tok.Split(seg.text)
			if err != nil {
				return nil, fmt.Errorf("%w: segment %d %q: %v", ErrInvalidCommand, i, seg.text, err)
			}
			if len(argv) == 0 {
				return nil, fmt.Errorf("%w: segment %d %q has no arguments", ErrInvalidCommand, i, seg.text)
			}
		}
		stages = append(stages, StageSpec{Argv: argv})
	}
	return stages, nil
}

// NormalizeShell resolves cmds into stages that each run under shell -c.
// String segments are passed to the shell verbatim; argument vectors are
// quoted first.
func NormalizeShell(cmds Commands, shell string) ([]StageSpec, error) {
	if shell == "" {
		return nil, fmt.Errorf("%w: empty shell path", ErrInvalidOption)
	}
	if cmds == nil {
		return nil, fmt.Errorf("%w: no commands", ErrInvalidCommand)
	}
	segs, err := cmds.segments()
	if err != nil {
		return nil, err
	}
	stages := make([]StageSpec, 0, len(segs))
	for _, seg := range segs {
		text := seg.text
		if seg.argv != nil {
			text = shellquote.Join(seg.argv...)
		}
		stages = append(stages, StageSpec{Argv: []string{shell, "-c", text}})
	}
	return stages, nil
}
