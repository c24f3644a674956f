//go:build !linux

package gpio

import (
	"fmt"
	"runtime"
)

// StubChip is a no-op chip for non-Linux systems
type StubChip struct{}

// NewChip creates a stub chip on non-Linux systems
func NewChip(name string) (Chip, error) {
	return &StubChip{}, nil
}

func (c *StubChip) Input(offset int) (Input, error) {
	return nil, fmt.Errorf("gpio not supported on %s", runtime.GOOS)
}

func (c *StubChip) Output(offset int) (Output, error) {
	return nil, fmt.Errorf("gpio not supported on %s", runtime.GOOS)
}

func (c *StubChip) Close() error {
	return nil
}
