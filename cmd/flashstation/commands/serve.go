package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/waltr/flashstation/pkg/errors"
	"github.com/waltr/flashstation/pkg/gpio"
	"github.com/waltr/flashstation/pkg/indicator"
	"github.com/waltr/flashstation/pkg/station"
	"github.com/waltr/flashstation/pkg/trigger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the station: sync, wait for a button, flash, repeat",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	syncer, closeSync, err := newSyncer(ctx, cfg, repo)
	if err != nil {
		return err
	}
	defer closeSync()

	chip, err := gpio.NewChip(cfg.GPIOChip)
	if err != nil {
		return errors.Wrap(err, "gpio init failed")
	}
	defer chip.Close()

	inputs := make([]gpio.Input, 0, len(cfg.ButtonPins))
	for _, pin := range cfg.ButtonPins {
		in, err := chip.Input(pin)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("button on pin %d", pin))
		}
		inputs = append(inputs, in)
	}

	led, err := chip.Output(cfg.LEDPin)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("led on pin %d", cfg.LEDPin))
	}

	ind := indicator.New(led, indicatorTiming(cfg))
	defer ind.Close()

	// Startup blink so the operator knows the station is up
	if err := ind.Enter(ctx, indicator.Success); err != nil {
		// interrupted before the loop started
		return nil
	}

	loop := station.NewLoop(
		syncer,
		trigger.NewSource(inputs, cfg.PollInterval),
		repo,
		newFlasher(cfg, ind),
		ind,
		repo,
		cfg.ButtonKeys,
		cfg.SettleDelay,
	)

	slog.Info("serve_start", "buttons", cfg.ButtonPins, "keys", cfg.ButtonKeys, "led", cfg.LEDPin, "durable_sync", cfg.DurableSync)
	return loop.Run(ctx)
}
