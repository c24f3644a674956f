package trigger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/waltr/flashstation/pkg/gpio"
)

type fakeInput struct {
	mu     sync.Mutex
	active bool
	err    error
}

func (f *fakeInput) Active() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, f.err
}

func (f *fakeInput) set(active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = active
}

func newInputs(n int) ([]*fakeInput, []gpio.Input) {
	fakes := make([]*fakeInput, n)
	inputs := make([]gpio.Input, n)
	for i := range fakes {
		fakes[i] = &fakeInput{}
		inputs[i] = fakes[i]
	}
	return fakes, inputs
}

func TestWait_FiresOnActiveInput(t *testing.T) {
	fakes, inputs := newInputs(4)
	src := NewSource(inputs, time.Millisecond)

	go func() {
		time.Sleep(10 * time.Millisecond)
		fakes[2].set(true)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ev, err := src.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if ev.Index != 2 {
		t.Errorf("Index = %d, want 2", ev.Index)
	}
}

func TestWait_LowestIndexWins(t *testing.T) {
	fakes, inputs := newInputs(4)
	fakes[3].set(true)
	fakes[1].set(true)
	src := NewSource(inputs, time.Millisecond)

	ev, err := src.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if ev.Index != 1 {
		t.Errorf("Index = %d, want 1", ev.Index)
	}
}

func TestWait_HeldInputFiresOnce(t *testing.T) {
	fakes, inputs := newInputs(2)
	fakes[0].set(true)
	src := NewSource(inputs, time.Millisecond)

	if ev, err := src.Wait(context.Background()); err != nil || ev.Index != 0 {
		t.Fatalf("first Wait() = %+v, %v", ev, err)
	}

	// still held: the next wait must not fire until released and pressed again
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := src.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("held input fired again, err = %v", err)
	}

	fakes[0].set(false)
	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel2()
	if _, err := src.Wait(ctx2); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("input fired while released, err = %v", err)
	}

	fakes[0].set(true)
	ctx3, cancel3 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel3()
	ev, err := src.Wait(ctx3)
	if err != nil {
		t.Fatalf("Wait() after release error = %v", err)
	}
	if ev.Index != 0 {
		t.Errorf("Index = %d, want 0", ev.Index)
	}
}

func TestWait_HeldInputDoesNotBlockOthers(t *testing.T) {
	fakes, inputs := newInputs(3)
	fakes[0].set(true)
	src := NewSource(inputs, time.Millisecond)

	if ev, _ := src.Wait(context.Background()); ev.Index != 0 {
		t.Fatalf("Index = %d, want 0", ev.Index)
	}

	fakes[2].set(true)
	ev, err := src.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if ev.Index != 2 {
		t.Errorf("Index = %d, want 2", ev.Index)
	}
}

func TestWait_ReadErrorIsInactive(t *testing.T) {
	fakes, inputs := newInputs(2)
	fakes[0].active = true
	fakes[0].err = errors.New("line busy")
	fakes[1].set(true)
	src := NewSource(inputs, time.Millisecond)

	ev, err := src.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if ev.Index != 1 {
		t.Errorf("Index = %d, want 1", ev.Index)
	}
}

func TestWait_Cancelled(t *testing.T) {
	_, inputs := newInputs(2)
	src := NewSource(inputs, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := src.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
}

func TestNewSource_DefaultInterval(t *testing.T) {
	src := NewSource(nil, 0)
	if src.interval != DefaultPollInterval {
		t.Errorf("interval = %v, want %v", src.interval, DefaultPollInterval)
	}
}
