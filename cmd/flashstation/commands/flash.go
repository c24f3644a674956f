package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/waltr/flashstation/pkg/db"
	"github.com/waltr/flashstation/pkg/errors"
	"github.com/waltr/flashstation/pkg/gpio"
	"github.com/waltr/flashstation/pkg/indicator"
)

var flashDryLED bool

var flashCmd = &cobra.Command{
	Use:   "flash <key>",
	Short: "Flash one cached variant now, without waiting for a button",
	Args:  cobra.ExactArgs(1),
	RunE:  runFlash,
}

func init() {
	rootCmd.AddCommand(flashCmd)
	flashCmd.Flags().BoolVar(&flashDryLED, "dry-led", false, "Log LED changes instead of driving the GPIO line")
}

func runFlash(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	key := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	variant, err := repo.Get(ctx, key)
	if err != nil {
		return errors.Wrap(err, "lookup failed")
	}
	if variant == nil {
		return errors.Mark(fmt.Errorf("no cached variant for %s", key), errors.ErrResolutionMiss)
	}

	var led gpio.Output = &gpio.LogOutput{Name: "led"}
	if !flashDryLED {
		chip, err := gpio.NewChip(cfg.GPIOChip)
		if err != nil {
			return errors.Wrap(err, "gpio init failed")
		}
		defer chip.Close()

		if led, err = chip.Output(cfg.LEDPin); err != nil {
			return errors.Wrap(err, fmt.Sprintf("led on pin %d", cfg.LEDPin))
		}
	}

	ind := indicator.New(led, indicatorTiming(cfg))
	defer ind.Close()

	result := newFlasher(cfg, ind).Flash(ctx, *variant)

	attempt := &db.FlashAttempt{
		Key:        variant.Key,
		Version:    variant.Version,
		Outcome:    result.Outcome.String(),
		ExitCode:   result.ExitCode,
		Output:     result.Output,
		DurationMS: result.Duration.Milliseconds(),
	}
	if err := repo.RecordFlash(context.WithoutCancel(ctx), attempt); err != nil {
		slog.Warn("flash_history_failed", "key", key, "error", err)
	}

	if result.Err != nil {
		fmt.Print(result.Output)
		return result.Err
	}

	fmt.Printf("✅ Flashed %s %s in %s\n", variant.Key, variant.Version, result.Duration.Round(100*time.Millisecond))
	return nil
}
