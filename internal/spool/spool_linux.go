//go:build linux

package spool

import (
	"os"

	"golang.org/x/sys/unix"
)

func newMemory(name string) (*os.File, error) {
	fd, err := unix.MemfdCreate("subby-"+name, unix.MFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), "memfd:subby-"+name), nil
}
