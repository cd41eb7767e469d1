//go:build unix

package pipeline

import (
	"errors"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// procAttr puts the stage in its own process group so that signals reach
// anything it spawns.
func procAttr(newGroup bool) *syscall.SysProcAttr {
	if !newGroup {
		return nil
	}
	return &syscall.SysProcAttr{Setpgid: true}
}

func signalStage(p *os.Process, group bool, sig unix.Signal) error {
	if group {
		err := unix.Kill(-p.Pid, sig)
		if err == nil || !errors.Is(err, unix.ESRCH) {
			return err
		}
		// Group already gone; fall through to the leader itself.
	}
	return p.Signal(sig)
}

func terminate(p *os.Process, group bool) error {
	return signalStage(p, group, unix.SIGTERM)
}

func forceKill(p *os.Process, group bool) error {
	return signalStage(p, group, unix.SIGKILL)
}

// exitCode reports the exit status, or minus the signal number for a stage
// that was terminated by a signal.
func exitCode(state *os.ProcessState) int {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -int(ws.Signal())
	}
	return state.ExitCode()
}
