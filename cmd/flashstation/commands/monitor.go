package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/waltr/flashstation/pkg/console"
	"github.com/waltr/flashstation/pkg/errors"
)

var monitorBaud int

var monitorCmd = &cobra.Command{
	Use:   "monitor [port]",
	Short: "Print the board's serial console until interrupted",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().IntVar(&monitorBaud, "baud", 0, "Console baud rate (default boot-baud)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	name := cfg.SerialPort
	if len(args) == 1 {
		name = args[0]
	}
	baud := monitorBaud
	if baud <= 0 {
		baud = cfg.BootBaud
	}

	port, err := console.Open(name, baud, time.Second)
	if err != nil {
		return errors.Mark(err, errors.ErrToolFailure)
	}
	defer port.Close()

	slog.Info("monitor_started", "port", name, "baud", baud)
	if err := console.Monitor(ctx, port, os.Stdout); err != nil {
		return err
	}
	slog.Info("monitor_stopped", "port", name)
	return nil
}
