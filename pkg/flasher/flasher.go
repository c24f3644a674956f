// Package flasher writes a cached firmware variant to the attached board with
// esptool and classifies the result.
package flasher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/waltr/flashstation/pkg/db"
	"github.com/waltr/flashstation/pkg/errors"
	"github.com/waltr/flashstation/pkg/indicator"
)

// Outcome classifies a flash attempt
type Outcome int

const (
	Verified Outcome = iota
	ToolFailure
	Timeout
)

func (o Outcome) String() string {
	switch o {
	case Verified:
		return db.OutcomeVerified
	case ToolFailure:
		return db.OutcomeToolFailure
	case Timeout:
		return db.OutcomeTimeout
	default:
		return "unknown"
	}
}

// Result is one flash attempt. Output is always the captured tool output,
// even on failure.
type Result struct {
	Outcome  Outcome
	Output   string
	ExitCode int
	Duration time.Duration
	Err      error
}

// Indicator is the part of the status LED the flasher drives
type Indicator interface {
	Enter(ctx context.Context, state indicator.State) error
	Stop()
}

// BootCheck confirms the board came up after a verified write
type BootCheck interface {
	WaitForBoot(ctx context.Context) (bool, error)
}

// Flasher runs esptool while the indicator shows Busy
type Flasher struct {
	cfg    Config
	runner Runner
	ind    Indicator
	boot   BootCheck
}

// New creates a new flasher
func New(cfg Config, runner Runner, ind Indicator) *Flasher {
	if len(cfg.Command) == 0 {
		cfg.Command = []string{"python3", "-m", "esptool"}
	}
	if cfg.Marker == "" {
		cfg.Marker = DefaultMarker
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Minute
	}
	return &Flasher{cfg: cfg, runner: runner, ind: ind}
}

// WithBootCheck makes a verified write also wait for b before counting as
// Verified
func (f *Flasher) WithBootCheck(b BootCheck) *Flasher {
	f.boot = b
	return f
}

// Flash writes v and then shows Success or Error, blocking for that
// indication. There is no automatic retry. The tool run is not cancelled by
// ctx; it ends on its own or at the configured timeout.
func (f *Flasher) Flash(ctx context.Context, v db.Variant) Result {
	result := f.run(ctx, v)

	final := indicator.Error
	if result.Outcome == Verified {
		final = indicator.Success
	}
	if err := f.ind.Enter(ctx, final); err != nil {
		slog.Warn("flash_indication_interrupted", "key", v.Key, "state", final.String(), "error", err)
	}

	return result
}

func (f *Flasher) run(ctx context.Context, v db.Variant) Result {
	slog.Info("flash_start", "key", v.Key, "version", v.Version, "path", v.Path, "is_idf", v.IsIDF)

	if _, err := os.Stat(v.Path); err != nil {
		slog.Error("flash_artifact_missing", "key", v.Key, "path", v.Path, "error", err)
		return Result{
			Outcome:  ToolFailure,
			ExitCode: -1,
			Err:      errors.Mark(errors.Wrap(err, "artifact unavailable"), errors.ErrToolFailure),
		}
	}

	if err := f.ind.Enter(ctx, indicator.Busy); err != nil {
		slog.Warn("flash_busy_indication_failed", "key", v.Key, "error", err)
	}
	defer f.ind.Stop()

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.cfg.Timeout)
	defer cancel()

	args := append(append([]string{}, f.cfg.Command[1:]...), f.cfg.Args(v)...)
	slog.Debug("flash_command", "name", f.cfg.Command[0], "args", args)

	start := time.Now()
	out, code, err := f.runner.Run(runCtx, f.cfg.Command[0], args...)
	duration := time.Since(start)

	result := f.classify(runCtx.Err(), string(out), code, err)
	result.Duration = duration

	if result.Outcome == Verified && f.boot != nil {
		f.checkBoot(ctx, v, &result)
	}
	f.ind.Stop()

	if result.Err != nil {
		slog.Error("flash_failed",
			"key", v.Key,
			"version", v.Version,
			"outcome", result.Outcome.String(),
			"exit_code", result.ExitCode,
			"duration_ms", duration.Milliseconds(),
			"output_tail", tail(result.Output, 512),
			"error", result.Err)
	} else {
		slog.Info("flash_complete", "key", v.Key, "version", v.Version, "duration_ms", duration.Milliseconds())
	}
	return result
}

// checkBoot downgrades r to ToolFailure when the board does not report the
// boot marker. The check is bounded by its line limit, not by ctx.
func (f *Flasher) checkBoot(ctx context.Context, v db.Variant, r *Result) {
	slog.Info("flash_boot_check_start", "key", v.Key)

	ok, err := f.boot.WaitForBoot(context.WithoutCancel(ctx))
	switch {
	case err != nil:
		r.Outcome = ToolFailure
		r.Err = errors.Mark(errors.Wrap(err, "boot check failed"), errors.ErrToolFailure)
	case !ok:
		r.Outcome = ToolFailure
		r.Err = errors.Mark(fmt.Errorf("board did not report boot marker"), errors.ErrToolFailure)
	}
}

// classify maps a finished run to an outcome. A zero exit without the
// verification marker is still a failure.
func (f *Flasher) classify(ctxErr error, output string, code int, err error) Result {
	r := Result{Output: output, ExitCode: code}

	switch {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		r.Outcome = Timeout
		r.Err = fmt.Errorf("esptool timed out after %s", f.cfg.Timeout)
	case err != nil:
		r.Outcome = ToolFailure
		r.Err = errors.Wrap(err, "esptool failed")
	case !strings.Contains(output, f.cfg.Marker):
		r.Outcome = ToolFailure
		r.Err = fmt.Errorf("esptool exited %d without %q", code, f.cfg.Marker)
	default:
		r.Outcome = Verified
		return r
	}

	r.Err = errors.Mark(r.Err, errors.ErrToolFailure)
	return r
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
