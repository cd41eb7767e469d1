package script

import (
	"fmt"

	"go.starlark.net/starlark"

	"github.com/marcelocantos/subby/pipeline"
)

// commandsOf accepts a string, a list of strings or a list of lists of
// strings.
func commandsOf(v starlark.Value) (pipeline.Commands, error) {
	if s, ok := starlark.AsString(v); ok {
		return pipeline.Line(s), nil
	}
	items, err := elems(v)
	if err != nil {
		return nil, fmt.Errorf("cmds: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: cmds is empty", pipeline.ErrInvalidCommand)
	}

	if _, ok := starlark.AsString(items[0]); ok {
		lines := make(pipeline.Lines, len(items))
		for i, item := range items {
			s, ok := starlark.AsString(item)
			if !ok {
				return nil, fmt.Errorf("cmds[%d]: got %s, want string", i, item.Type())
			}
			lines[i] = s
		}
		return lines, nil
	}

	argvs := make(pipeline.Argvs, len(items))
	for i, item := range items {
		words, err := elems(item)
		if err != nil {
			return nil, fmt.Errorf("cmds[%d]: %w", i, err)
		}
		argv := make([]string, len(words))
		for j, w := range words {
			s, ok := starlark.AsString(w)
			if !ok {
				return nil, fmt.Errorf("cmds[%d][%d]: got %s, want string", i, j, w.Type())
			}
			argv[j] = s
		}
		argvs[i] = argv
	}
	return argvs, nil
}

func stdinOf(v starlark.Value) (pipeline.Endpoint, error) {
	switch x := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.String:
		return pipeline.Text(string(x)), nil
	case starlark.Bytes:
		return pipeline.Bytes([]byte(x)), nil
	default:
		return nil, fmt.Errorf("stdin: got %s, want string, bytes or None", v.Type())
	}
}

func intsOf(v starlark.Value) ([]int, error) {
	items, err := elems(v)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(items))
	for i, item := range items {
		n, err := starlark.AsInt32(item)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = n
	}
	return out, nil
}

func elems(v starlark.Value) ([]starlark.Value, error) {
	seq, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("got %s, want list or tuple", v.Type())
	}
	it := seq.Iterate()
	defer it.Done()
	var out []starlark.Value
	var x starlark.Value
	for it.Next(&x) {
		out = append(out, x)
	}
	return out, nil
}
