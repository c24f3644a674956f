//go:build linux

package gpio

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/warthog618/go-gpiocdev"

	"github.com/waltr/flashstation/pkg/errors"
)

// LinuxChip implements Chip on the GPIO character device
type LinuxChip struct {
	name string

	mu    sync.Mutex
	lines []*gpiocdev.Line
}

// NewChip opens lines on the named chip (e.g. "gpiochip0")
func NewChip(name string) (Chip, error) {
	slog.Info("gpio_init", "chip", name, "platform", "linux")
	return &LinuxChip{name: name}, nil
}

func (c *LinuxChip) Input(offset int) (Input, error) {
	line, err := gpiocdev.RequestLine(c.name, offset, gpiocdev.AsInput, gpiocdev.WithPullDown)
	if err != nil {
		slog.Error("gpio_request_failed", "chip", c.name, "offset", offset, "direction", "input", "error", err)
		return nil, errors.Wrap(err, fmt.Sprintf("failed to request input %d", offset))
	}
	c.track(line)
	return &lineInput{line: line}, nil
}

func (c *LinuxChip) Output(offset int) (Output, error) {
	line, err := gpiocdev.RequestLine(c.name, offset, gpiocdev.AsOutput(0))
	if err != nil {
		slog.Error("gpio_request_failed", "chip", c.name, "offset", offset, "direction", "output", "error", err)
		return nil, errors.Wrap(err, fmt.Sprintf("failed to request output %d", offset))
	}
	c.track(line)
	return &lineOutput{line: line}, nil
}

func (c *LinuxChip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for _, line := range c.lines {
		if err := line.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.lines = nil
	return firstErr
}

func (c *LinuxChip) track(line *gpiocdev.Line) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

type lineInput struct {
	line *gpiocdev.Line
}

func (i *lineInput) Active() (bool, error) {
	v, err := i.line.Value()
	if err != nil {
		return false, err
	}
	return v == 1, nil
}

type lineOutput struct {
	line *gpiocdev.Line
}

func (o *lineOutput) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	return o.line.SetValue(v)
}
