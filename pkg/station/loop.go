// Package station runs the appliance's control loop: refresh the cache,
// wait for a button, flash the bound variant, repeat.
package station

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/waltr/flashstation/pkg/catalog"
	"github.com/waltr/flashstation/pkg/db"
	"github.com/waltr/flashstation/pkg/errors"
	"github.com/waltr/flashstation/pkg/flasher"
	"github.com/waltr/flashstation/pkg/indicator"
	"github.com/waltr/flashstation/pkg/trigger"
)

// Refresher reconciles the cache with the catalog
type Refresher interface {
	Refresh(ctx context.Context) catalog.Outcome
}

// Trigger blocks until the operator selects a variant
type Trigger interface {
	Wait(ctx context.Context) (trigger.Event, error)
}

// Store looks up cached variants
type Store interface {
	Get(ctx context.Context, key string) (*db.Variant, error)
}

// Flasher writes a variant and drives the indicator while doing so
type Flasher interface {
	Flash(ctx context.Context, v db.Variant) flasher.Result
}

// Indicator is the status LED
type Indicator interface {
	Enter(ctx context.Context, state indicator.State) error
	Stop()
}

// History records flash attempts
type History interface {
	RecordFlash(ctx context.Context, attempt *db.FlashAttempt) error
}

// Loop is the control loop. Keys maps trigger index to variant key.
type Loop struct {
	refresher Refresher
	trigger   Trigger
	store     Store
	flasher   Flasher
	ind       Indicator
	history   History // optional

	keys   []string
	settle time.Duration
}

// NewLoop creates a control loop. history may be nil.
func NewLoop(refresher Refresher, trig Trigger, store Store, f Flasher, ind Indicator, history History, keys []string, settle time.Duration) *Loop {
	return &Loop{
		refresher: refresher,
		trigger:   trig,
		store:     store,
		flasher:   f,
		ind:       ind,
		history:   history,
		keys:      keys,
		settle:    settle,
	}
}

// Run iterates until ctx is cancelled and returns nil in that case. No
// per-cycle error stops the loop. The indicator is left off on return.
func (l *Loop) Run(ctx context.Context) error {
	slog.Info("station_start", "keys", l.keys, "settle", l.settle)
	defer func() {
		l.ind.Stop()
		slog.Info("station_stopped")
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := l.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("station_cycle_failed", "error", err)
		}
	}
}

// Cycle runs one refresh, wait and flash round. It only returns an error
// when waiting for the trigger failed.
func (l *Loop) Cycle(ctx context.Context) error {
	if err := l.ind.Enter(ctx, indicator.Idle); err != nil {
		slog.Warn("station_idle_failed", "error", err)
	}

	outcome := l.refresher.Refresh(ctx)
	slog.Info("station_refresh_done", "outcome", outcome.Kind.String(), "updated", outcome.Updated, "failed", outcome.Failed)

	ev, err := l.trigger.Wait(ctx)
	if err != nil {
		return errors.Wrap(err, "trigger wait failed")
	}

	l.handle(ctx, ev)

	select {
	case <-ctx.Done():
	case <-time.After(l.settle):
	}
	return nil
}

func (l *Loop) handle(ctx context.Context, ev trigger.Event) {
	key, v, err := l.resolve(ctx, ev.Index)
	if err != nil {
		slog.Warn("station_resolution_miss", "index", ev.Index, "key", key, "error", err)
		l.record(ctx, &db.FlashAttempt{Key: key, Outcome: db.OutcomeResolutionMiss, ExitCode: -1, Output: err.Error()})
		if err := l.ind.Enter(ctx, indicator.Error); err != nil {
			slog.Warn("station_error_indication_interrupted", "error", err)
		}
		return
	}

	result := l.flasher.Flash(ctx, *v)
	slog.Info("station_flash_done", "key", v.Key, "version", v.Version, "outcome", result.Outcome.String())

	l.record(ctx, &db.FlashAttempt{
		Key:        v.Key,
		Version:    v.Version,
		Outcome:    result.Outcome.String(),
		ExitCode:   result.ExitCode,
		Output:     result.Output,
		DurationMS: result.Duration.Milliseconds(),
	})
}

// resolve maps a trigger index to a cached variant. Every failure is marked
// ErrResolutionMiss.
func (l *Loop) resolve(ctx context.Context, index int) (string, *db.Variant, error) {
	if index < 0 || index >= len(l.keys) {
		return "", nil, errors.Mark(fmt.Errorf("no key bound to input %d", index), errors.ErrResolutionMiss)
	}
	key := l.keys[index]

	v, err := l.store.Get(ctx, key)
	if err != nil {
		return key, nil, errors.Mark(errors.Wrap(err, "lookup "+key), errors.ErrResolutionMiss)
	}
	if v == nil {
		return key, nil, errors.Mark(fmt.Errorf("no cached variant for %s", key), errors.ErrResolutionMiss)
	}
	return key, v, nil
}

// record persists attempt, best effort
func (l *Loop) record(ctx context.Context, attempt *db.FlashAttempt) {
	if l.history == nil {
		return
	}
	if err := l.history.RecordFlash(context.WithoutCancel(ctx), attempt); err != nil {
		slog.Warn("station_history_failed", "key", attempt.Key, "error", err)
	}
}
