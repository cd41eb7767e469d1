//go:build !unix

package pipeline

import (
	"os"
	"syscall"
)

func procAttr(bool) *syscall.SysProcAttr { return nil }

func terminate(p *os.Process, _ bool) error { return p.Kill() }

func forceKill(p *os.Process, _ bool) error { return p.Kill() }

func exitCode(state *os.ProcessState) int { return state.ExitCode() }
