// Package indicator drives the status LED through the Idle, Busy, Success
// and Error states.
package indicator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/waltr/flashstation/pkg/gpio"
)

// State is an indicator mode
type State int

const (
	Idle State = iota
	Busy
	Success
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Busy:
		return "busy"
	case Success:
		return "success"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Timing holds the animation durations
type Timing struct {
	BusyInterval  time.Duration
	SuccessPulses int
	SuccessPulse  time.Duration
	ErrorHold     time.Duration
}

// DefaultTiming matches the appliance's stock LED behaviour
func DefaultTiming() Timing {
	return Timing{
		BusyInterval:  100 * time.Millisecond,
		SuccessPulses: 3,
		SuccessPulse:  200 * time.Millisecond,
		ErrorHold:     10 * time.Second,
	}
}

type animation struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Indicator owns the output line. Every animation runs in its own goroutine
// and is joined before the next one starts.
type Indicator struct {
	out    gpio.Output
	timing Timing

	mu    sync.Mutex
	state State
	anim  *animation
}

// New creates an indicator with the output off
func New(out gpio.Output, timing Timing) *Indicator {
	i := &Indicator{out: out, timing: timing}
	i.set(false)
	return i
}

// Enter switches to state. Idle and Busy return immediately; Success and
// Error block until their animation has finished or ctx is done, after which
// the indicator is Idle.
func (i *Indicator) Enter(ctx context.Context, state State) error {
	i.mu.Lock()
	i.stopLocked()
	i.state = state
	slog.Debug("indicator_enter", "state", state.String())

	var a *animation
	switch state {
	case Busy:
		a = i.startLocked(i.blink)
	case Success:
		a = i.startLocked(i.pulse)
	case Error:
		a = i.startLocked(i.hold)
	default:
		i.state = Idle
	}
	i.mu.Unlock()

	if state != Success && state != Error {
		return nil
	}

	select {
	case <-a.done:
	case <-ctx.Done():
		i.finish(a)
		return ctx.Err()
	}

	i.finish(a)
	return nil
}

// Stop cancels any running animation and turns the output off. Safe to call
// at any time, any number of times.
func (i *Indicator) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.stopLocked()
	i.state = Idle
}

// State returns the current state
func (i *Indicator) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Close stops the indicator and leaves the output off
func (i *Indicator) Close() error {
	i.Stop()
	return i.out.Set(false)
}

// finish returns to Idle unless another Enter already replaced a
func (i *Indicator) finish(a *animation) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.anim != a {
		return
	}
	i.stopLocked()
	i.state = Idle
}

func (i *Indicator) startLocked(run func(ctx context.Context)) *animation {
	ctx, cancel := context.WithCancel(context.Background())
	a := &animation{cancel: cancel, done: make(chan struct{})}
	i.anim = a

	go func() {
		defer close(a.done)
		run(ctx)
	}()
	return a
}

// stopLocked cancels and joins the current animation. The animation
// goroutine never takes mu, so waiting here cannot deadlock.
func (i *Indicator) stopLocked() {
	if i.anim != nil {
		i.anim.cancel()
		<-i.anim.done
		i.anim = nil
	}
	i.set(false)
}

func (i *Indicator) blink(ctx context.Context) {
	on := false
	for {
		on = !on
		i.set(on)
		if !sleep(ctx, i.timing.BusyInterval) {
			i.set(false)
			return
		}
	}
}

func (i *Indicator) pulse(ctx context.Context) {
	defer i.set(false)
	for n := 0; n < i.timing.SuccessPulses; n++ {
		i.set(true)
		if !sleep(ctx, i.timing.SuccessPulse) {
			return
		}
		i.set(false)
		if !sleep(ctx, i.timing.SuccessPulse) {
			return
		}
	}
}

func (i *Indicator) hold(ctx context.Context) {
	defer i.set(false)
	i.set(true)
	sleep(ctx, i.timing.ErrorHold)
}

func (i *Indicator) set(on bool) {
	if err := i.out.Set(on); err != nil {
		slog.Warn("indicator_output_failed", "on", on, "error", err)
	}
}

// sleep waits for d and reports false if ctx ended first
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
