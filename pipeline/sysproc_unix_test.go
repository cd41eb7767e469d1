//go:build unix

package pipeline

import "golang.org/x/sys/unix"

// alive reports whether pid still exists (including as a zombie).
func alive(pid int) bool {
	return unix.Kill(pid, 0) == nil
}
