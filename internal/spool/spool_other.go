//go:build !linux

package spool

import (
	"errors"
	"os"
)

func newMemory(string) (*os.File, error) {
	return nil, errors.New("memory spool not supported on this platform")
}
