package pipeline

import (
	"bytes"
	"fmt"
	"unicode/utf8"
)

// Output returns the last stage's stdout, decoded according to the
// pipeline's mode. It is available once the pipeline is done and stdout was
// Buffered or Direct. For Direct, whatever the caller has not already read
// from StdoutPipe is returned.
func (p *Processes) Output() ([]byte, error) {
	if !p.Done() {
		return nil, ErrNotDone
	}
	if p.stdout.capture == nil && p.stdout.caller == nil {
		return nil, &NotCapturedError{Stream: "stdout (" + describeEndpoint(p.cfg.Stdout) + ")"}
	}
	if err := p.collect(); err != nil {
		return nil, err
	}
	return decode(p.out, p.cfg.Mode)
}

// OutputText is Output as a string.
func (p *Processes) OutputText() (string, error) {
	b, err := p.Output()
	return string(b), err
}

// ErrOutput returns the last stage's stderr. When stderr is Direct, the
// shared pipe's content is returned instead. With stderr capture disabled it
// is empty.
func (p *Processes) ErrOutput() ([]byte, error) {
	if !p.Done() {
		return nil, ErrNotDone
	}
	if !p.cfg.CaptureStderr {
		return []byte{}, nil
	}
	if err := p.collect(); err != nil {
		return nil, err
	}
	switch {
	case p.errs != nil:
		return decode(p.errs[len(p.errs)-1], p.cfg.Mode)
	case p.stderr[0].caller != nil:
		return decode(p.errShared, p.cfg.Mode)
	default:
		return nil, &NotCapturedError{Stream: "stderr (" + describeEndpoint(p.cfg.Stderr) + ")"}
	}
}

// ErrOutputText is ErrOutput as a string.
func (p *Processes) ErrOutputText() (string, error) {
	b, err := p.ErrOutput()
	return string(b), err
}

// AllStderr returns each stage's stderr in stage order. Every entry is empty
// when stderr capture is disabled; per-stage attribution needs Buffered
// stderr.
func (p *Processes) AllStderr() ([][]byte, error) {
	if !p.Done() {
		return nil, ErrNotDone
	}
	out := make([][]byte, len(p.stages))
	if !p.cfg.CaptureStderr {
		for i := range out {
			out[i] = []byte{}
		}
		return out, nil
	}
	if err := p.collect(); err != nil {
		return nil, err
	}
	if p.errs == nil {
		return nil, &NotCapturedError{Stream: "per-stage stderr (" + describeEndpoint(p.cfg.Stderr) + ")"}
	}
	for i, b := range p.errs {
		d, err := decode(b, p.cfg.Mode)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		out[i] = d
	}
	return out, nil
}

// AllStderrText is AllStderr as strings.
func (p *Processes) AllStderrText() ([]string, error) {
	all, err := p.AllStderr()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(all))
	for i, b := range all {
		out[i] = string(b)
	}
	return out, nil
}

// stageStderr is the undecoded stderr attributable to stage i, used when
// reporting a failed stage.
func (p *Processes) stageStderr(i int) []byte {
	if p.errs != nil {
		return p.errs[i]
	}
	return p.errShared
}

// decode applies mode to captured bytes. Text mode requires valid UTF-8 and
// strips trailing line terminators; raw mode passes bytes through.
func decode(b []byte, mode Mode) ([]byte, error) {
	if mode == ModeRaw {
		return b, nil
	}
	if !utf8.Valid(b) {
		return nil, ErrInvalidEncoding
	}
	return bytes.TrimRight(b, "\r\n"), nil
}
