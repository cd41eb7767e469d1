package pipeline

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"
)

// start resolves every boundary stream, then launches the stages left to
// right, connecting neighbours with OS pipes. Either every stage starts and
// a live *Processes is returned, or nothing is left running and every
// descriptor opened here is closed.
func start(specs []StageSpec, cfg Config) (*Processes, error) {
	p := &Processes{
		id:      uuid.NewString(),
		cfg:     cfg,
		command: render(specs, cfg),
		done:    make(chan struct{}),
		state:   StateRunning,
	}
	log := cfg.Logger.With("id", p.id)

	if cfg.Echo {
		log.Info("run", "cmd", p.command)
	}

	var err error
	if p.stdin, err = resolve(cfg.Stdin, RoleStdin); err != nil {
		return nil, err
	}
	if p.stdout, err = resolve(cfg.Stdout, RoleStdout); err != nil {
		p.release()
		return nil, err
	}
	if p.stderr, err = resolveStderr(cfg, len(specs)); err != nil {
		p.release()
		return nil, err
	}

	n := len(specs)
	p.stages = make([]*stage, 0, n)
	var upstream *os.File // read end of the pipe from the previous stage
	for i, spec := range specs {
		cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
		cmd.Dir = cfg.Dir
		cmd.Env = cfg.Env

		if i == 0 {
			if p.stdin.proc != nil {
				cmd.Stdin = p.stdin.proc
			}
		} else {
			cmd.Stdin = upstream
		}

		var downstream, w *os.File
		if i == n-1 {
			cmd.Stdout = p.stdout.proc
		} else {
			downstream, w, err = os.Pipe()
			if err != nil {
				closeFiles(upstream)
				return nil, p.rollback(i, spec, fmt.Errorf("create pipe: %w", err))
			}
			cmd.Stdout = w
		}
		cmd.Stderr = p.stderr[i].proc

		// A stage reading the terminal must stay in the foreground group.
		group := !(i == 0 && isInherit(cfg.Stdin))
		cmd.SysProcAttr = procAttr(group)

		if err := cmd.Start(); err != nil {
			closeFiles(upstream, downstream, w)
			return nil, p.rollback(i, spec, err)
		}
		log.Debug("stage started", "stage", i, "pid", cmd.Process.Pid, "argv", spec.Argv)

		p.stages = append(p.stages, &stage{
			spec:  spec,
			cmd:   cmd,
			group: group,
			start: time.Now(),
		})

		// The child holds its own copies now. Ours must go, or the
		// neighbours never see EOF.
		closeFiles(upstream, w)
		upstream = downstream
	}

	p.stdin.handOff()
	p.stdout.handOff()
	for _, s := range p.distinctStderr() {
		s.handOff()
	}

	p.watch()
	return p, nil
}

// resolveStderr gives each stage its stderr stream. Buffered capture gets a
// spool per stage so diagnostics can be attributed; other endpoints are
// resolved once and shared.
func resolveStderr(cfg Config, n int) ([]*stream, error) {
	streams := make([]*stream, n)
	if !cfg.CaptureStderr {
		s, err := resolve(Inherit{}, RoleStderr)
		if err != nil {
			return nil, err
		}
		for i := range streams {
			streams[i] = s
		}
		return streams, nil
	}
	if isBuffered(cfg.Stderr) {
		for i := range streams {
			s, err := resolve(Buffered{}, RoleStderr)
			if err != nil {
				for _, prev := range streams[:i] {
					prev.release()
				}
				return nil, err
			}
			streams[i] = s
		}
		return streams, nil
	}
	s, err := resolve(cfg.Stderr, RoleStderr)
	if err != nil {
		return nil, err
	}
	for i := range streams {
		streams[i] = s
	}
	return streams, nil
}

// rollback kills and reaps every stage started so far, releases all
// streams, and reports the stage that failed.
func (p *Processes) rollback(index int, spec StageSpec, cause error) error {
	log := p.cfg.Logger.With("id", p.id)
	var pids []int
	for i, st := range p.stages {
		pid := st.cmd.Process.Pid
		if err := forceKill(st.cmd.Process, st.group); err != nil {
			log.Debug("rollback kill", "stage", i, "pid", pid, "err", err)
		}
		_ = st.cmd.Wait()
		pids = append(pids, pid)
	}
	p.stages = nil
	p.release()
	log.Debug("launch failed", "stage", index, "err", cause)
	return &LaunchError{Index: index, Argv: spec.Argv, Err: cause, RolledBack: pids}
}

// handOff closes the builder's copy of a process-facing descriptor once the
// child has inherited it.
func (s *stream) handOff() {
	if s.closeProc && s.proc != nil {
		s.proc.Close()
	}
	s.closeProc = false
}

func closeFiles(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			f.Close()
		}
	}
}

// render formats the pipeline the way a shell user would type it. Literal
// stdin content is deliberately absent.
func render(specs []StageSpec, cfg Config) string {
	parts := make([]string, len(specs))
	for i, s := range specs {
		parts[i] = shellquote.Join(s.Argv...)
	}
	if f, ok := cfg.Stdin.(File); ok && len(parts) > 0 {
		parts[0] += " " + opRedirectIn + " " + shellquote.Join(f.Path)
	}
	line := strings.Join(parts, " "+OpPipe+" ")
	if f, ok := cfg.Stdout.(File); ok {
		op := opRedirectOut
		if f.Append {
			op = opRedirectAppend
		}
		line += " " + op + " " + shellquote.Join(f.Path)
	}
	if f, ok := cfg.Stderr.(File); ok && cfg.CaptureStderr {
		line += " " + opRedirectErr + " " + shellquote.Join(f.Path)
	}
	return line
}
