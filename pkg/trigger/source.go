// Package trigger turns polled button inputs into selection events.
package trigger

import (
	"context"
	"log/slog"
	"time"

	"github.com/waltr/flashstation/pkg/gpio"
)

// DefaultPollInterval is used when NewSource is given a non-positive interval
const DefaultPollInterval = 100 * time.Millisecond

// Event is one input activation
type Event struct {
	Index int
	At    time.Time
}

// Source polls a fixed set of inputs. An input that fired must be observed
// released before it can fire again, so a held button yields one event.
type Source struct {
	inputs   []gpio.Input
	interval time.Duration
	latched  []bool
}

// NewSource creates a source over inputs, indexed in order
func NewSource(inputs []gpio.Input, interval time.Duration) *Source {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Source{
		inputs:   inputs,
		interval: interval,
		latched:  make([]bool, len(inputs)),
	}
}

// Wait blocks until an input fires or ctx is cancelled. When several inputs
// are active in the same poll the lowest index wins.
func (s *Source) Wait(ctx context.Context) (Event, error) {
	slog.Debug("trigger_wait_start", "inputs", len(s.inputs), "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if idx, ok := s.poll(); ok {
			slog.Info("trigger_fired", "index", idx)
			return Event{Index: idx, At: time.Now()}, nil
		}

		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// poll reads every input once and updates the release latches
func (s *Source) poll() (int, bool) {
	fired := -1
	for i, in := range s.inputs {
		active, err := in.Active()
		if err != nil {
			slog.Warn("trigger_read_failed", "index", i, "error", err)
			active = false
		}

		if !active {
			s.latched[i] = false
			continue
		}
		if fired < 0 && !s.latched[i] {
			fired = i
		}
	}

	if fired < 0 {
		return 0, false
	}
	s.latched[fired] = true
	return fired, true
}
