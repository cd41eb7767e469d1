package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/marcelocantos/subby/internal/spool"
)

// Processes is a launched pipeline. It is safe for concurrent use; in
// particular Kill may be called while another goroutine is in Block.
type Processes struct {
	id      string
	cfg     Config
	command string

	stages []*stage
	stdin  *stream
	stdout *stream
	stderr []*stream // one per stage; shared unless stderr is Buffered

	// done is closed once every stage has exited.
	done chan struct{}

	mu      sync.Mutex
	state   State
	killing bool
	closed  bool

	collectOnce sync.Once
	collectErr  error
	out         []byte
	errs        [][]byte // per stage, Buffered stderr only
	errShared   []byte   // Direct stderr
}

type stage struct {
	spec  StageSpec
	cmd   *exec.Cmd
	group bool
	start time.Time
	end   *time.Time
	code  *int
}

// watch starts one reaper per stage and a collector that marks the
// pipeline terminal once all of them have returned.
func (p *Processes) watch() {
	var wg sync.WaitGroup
	wg.Add(len(p.stages))
	for i, st := range p.stages {
		go func() {
			defer wg.Done()
			p.reap(i, st)
		}()
	}
	go func() {
		wg.Wait()
		p.mu.Lock()
		if p.killing {
			p.state = StateKilled
		} else {
			p.state = StateDone
		}
		state := p.state
		p.mu.Unlock()
		close(p.done)
		p.cfg.Logger.Debug("pipeline finished", "id", p.id, "state", state)
	}()
}

func (p *Processes) reap(i int, st *stage) {
	err := st.cmd.Wait()
	code := -1
	if st.cmd.ProcessState != nil {
		code = exitCode(st.cmd.ProcessState)
	}
	now := time.Now()

	p.mu.Lock()
	st.end = &now
	st.code = &code
	p.mu.Unlock()

	p.cfg.Logger.Debug("stage exited", "id", p.id, "stage", i, "pid", st.cmd.Process.Pid, "code", code, "err", err)
}

// ID returns the unique identifier assigned at launch.
func (p *Processes) ID() string { return p.id }

// String renders the pipeline as a shell command line.
func (p *Processes) String() string { return p.command }

// Mode returns the decoding mode fixed at launch.
func (p *Processes) Mode() Mode { return p.cfg.Mode }

// Poll reports the current state without waiting.
func (p *Processes) Poll() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Done reports whether every stage has exited.
func (p *Processes) Done() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// OK reports whether the pipeline is done and every exit code is allowed.
// A killed pipeline is never OK unless its stages happened to exit with
// allowed codes anyway.
func (p *Processes) OK() bool {
	if !p.Done() {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, st := range p.stages {
		if !p.cfg.allowed(*st.code) {
			return false
		}
	}
	return true
}

// ExitCodes returns each stage's exit code in stage order. ok is false while
// any stage is still running.
func (p *Processes) ExitCodes() (codes []int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	codes = make([]int, 0, len(p.stages))
	for _, st := range p.stages {
		if st.code == nil {
			return nil, false
		}
		codes = append(codes, *st.code)
	}
	return codes, true
}

// ReturnCode summarises the pipeline as one exit code: the first code
// outside the allowed set, else the last stage's code.
func (p *Processes) ReturnCode() (int, bool) {
	codes, ok := p.ExitCodes()
	if !ok {
		return 0, false
	}
	for _, c := range codes {
		if !p.cfg.allowed(c) {
			return c, true
		}
	}
	return codes[len(codes)-1], true
}

// Stages returns a snapshot of every stage.
func (p *Processes) Stages() []StageStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]StageStatus, len(p.stages))
	for i, st := range p.stages {
		s := StageStatus{
			Argv:      append([]string(nil), st.spec.Argv...),
			Pid:       st.cmd.Process.Pid,
			StartTime: st.start,
		}
		if st.end != nil {
			t := *st.end
			s.EndTime = &t
		}
		if st.code != nil {
			c := *st.code
			s.ExitCode = &c
		}
		out[i] = s
	}
	return out
}

// StdinPipe returns the caller's write end when stdin is Direct, else nil.
// Close it to signal EOF to the first stage.
func (p *Processes) StdinPipe() *os.File { return p.stdin.caller }

// StdoutPipe returns the caller's read end when stdout is Direct, else nil.
func (p *Processes) StdoutPipe() *os.File { return p.stdout.caller }

// StderrPipe returns the caller's read end when stderr is Direct, else nil.
func (p *Processes) StderrPipe() *os.File {
	if len(p.stderr) == 0 {
		return nil
	}
	return p.stderr[0].caller
}

// BlockOption adjusts a single Block call.
type BlockOption func(*blockSettings)

type blockSettings struct {
	timeout time.Duration
	raise   bool
}

// Timeout overrides the pipeline's default timeout for one Block call.
// Zero waits forever.
func Timeout(d time.Duration) BlockOption {
	return func(s *blockSettings) { s.timeout = d }
}

// RaiseOnError overrides whether Block reports disallowed exit codes.
func RaiseOnError(b bool) BlockOption {
	return func(s *blockSettings) { s.raise = b }
}

// Block waits until every stage has exited, the timeout elapses, or ctx is
// done. A timeout returns a *TimeoutError and leaves the pipeline running.
// Once complete, a killed pipeline returns nil; otherwise, when raising, the
// first stage with a disallowed exit code is reported as a
// *CalledProcessError.
func (p *Processes) Block(ctx context.Context, opts ...BlockOption) error {
	s := blockSettings{timeout: p.cfg.Timeout, raise: p.cfg.RaiseOnError}
	for _, opt := range opts {
		opt(&s)
	}

	var expired <-chan time.Time
	if s.timeout > 0 {
		timer := time.NewTimer(s.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-p.done:
	case <-expired:
		return &TimeoutError{Command: p.command, Timeout: s.timeout}
	case <-ctx.Done():
		return ctx.Err()
	}
	return p.check(s.raise)
}

func (p *Processes) check(raise bool) error {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()
	if state == StateKilled || !raise {
		return nil
	}
	codes, _ := p.ExitCodes()
	for i, code := range codes {
		if p.cfg.allowed(code) {
			continue
		}
		var stderr []byte
		if err := p.collect(); err == nil {
			stderr = p.stageStderr(i)
		}
		return &CalledProcessError{
			Index:    i,
			Argv:     append([]string(nil), p.stages[i].spec.Argv...),
			ExitCode: code,
			Stderr:   stderr,
		}
	}
	return nil
}

// Kill asks every live stage to terminate, escalating to SIGKILL after the
// kill grace period. It returns immediately; Block (or Done) observes the
// outcome. Kill returns false, doing nothing, when the pipeline is already
// terminal or already being killed.
func (p *Processes) Kill() bool {
	p.mu.Lock()
	if p.state != StateRunning || p.killing {
		p.mu.Unlock()
		return false
	}
	var live []*stage
	for _, st := range p.stages {
		if st.code == nil {
			live = append(live, st)
		}
	}
	if len(live) == 0 {
		p.mu.Unlock()
		return false
	}
	p.killing = true
	grace := p.cfg.KillGrace
	p.mu.Unlock()

	log := p.cfg.Logger.With("id", p.id)
	log.Debug("killing pipeline", "live", len(live), "grace", grace)
	for _, st := range live {
		if err := terminate(st.cmd.Process, st.group); err != nil {
			log.Debug("terminate", "pid", st.cmd.Process.Pid, "err", err)
		}
	}

	go func() {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-p.done:
			return
		case <-timer.C:
		}
		p.mu.Lock()
		var stubborn []*stage
		for _, st := range p.stages {
			if st.code == nil {
				stubborn = append(stubborn, st)
			}
		}
		p.mu.Unlock()
		for _, st := range stubborn {
			log.Debug("force kill", "pid", st.cmd.Process.Pid)
			_ = forceKill(st.cmd.Process, st.group)
		}
	}()
	return true
}

// Close kills the pipeline if it is still running, waits for it, keeps the
// captured output in memory and releases every descriptor and spool.
// Results remain readable after Close. Close is idempotent.
func (p *Processes) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if !p.Done() {
		p.Kill()
		<-p.done
	}
	err := p.collect()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.release()
	return err
}

// Closed reports whether Close has completed.
func (p *Processes) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// release closes every stream owned by the pipeline.
func (p *Processes) release() {
	p.stdin.release()
	p.stdout.release()
	for _, s := range p.distinctStderr() {
		s.release()
	}
}

func (p *Processes) distinctStderr() []*stream {
	var out []*stream
	for i, s := range p.stderr {
		if i > 0 && s == p.stderr[i-1] {
			continue
		}
		out = append(out, s)
	}
	return out
}

// collect reads every capture into memory. Only valid once done; the
// result is computed once.
func (p *Processes) collect() error {
	p.collectOnce.Do(func() {
		var errs []error
		read := func(f *os.File, capture bool) []byte {
			var data []byte
			var err error
			if capture {
				data, err = spool.ReadAll(f)
			} else {
				data, err = io.ReadAll(f)
			}
			if err != nil && !errors.Is(err, os.ErrClosed) {
				errs = append(errs, err)
			}
			return data
		}

		switch {
		case p.stdout.capture != nil:
			p.out = read(p.stdout.capture, true)
		case p.stdout.caller != nil:
			p.out = read(p.stdout.caller, false)
		}

		if p.cfg.CaptureStderr && len(p.stderr) > 0 {
			if p.stderr[0].capture != nil {
				p.errs = make([][]byte, len(p.stderr))
				for i, s := range p.stderr {
					p.errs[i] = read(s.capture, true)
				}
			} else if p.stderr[0].caller != nil {
				p.errShared = read(p.stderr[0].caller, false)
			}
		}
		p.collectErr = errors.Join(errs...)
	})
	return p.collectErr
}
