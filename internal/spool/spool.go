// Package spool provides anonymous backing storage for captured process
// streams. A spool is an *os.File that can be handed to a child process
// directly, so no goroutine has to drain it while the child runs.
package spool

import (
	"fmt"
	"io"
	"os"
)

// New returns an empty, unnamed read/write file. On Linux it lives in
// memory (memfd); elsewhere it is an unlinked temp file.
func New(name string) (*os.File, error) {
	if f, err := newMemory(name); err == nil {
		return f, nil
	}
	return newDisk(name)
}

// FromBytes returns a spool holding data, positioned at offset 0.
func FromBytes(name string, data []byte) (*os.File, error) {
	f, err := New(name)
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, fmt.Errorf("fill spool %s: %w", name, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("rewind spool %s: %w", name, err)
	}
	return f, nil
}

// ReadAll returns the full contents of f regardless of its current offset.
func ReadAll(f *os.File) ([]byte, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat spool: %w", err)
	}
	return io.ReadAll(io.NewSectionReader(f, 0, info.Size()))
}

func newDisk(name string) (*os.File, error) {
	f, err := os.CreateTemp("", "subby-"+name+"-*")
	if err != nil {
		return nil, fmt.Errorf("create spool %s: %w", name, err)
	}
	// Unlink right away; the open descriptor keeps the data alive.
	if err := os.Remove(f.Name()); err != nil {
		f.Close()
		return nil, fmt.Errorf("unlink spool %s: %w", name, err)
	}
	return f, nil
}
