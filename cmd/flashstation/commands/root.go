package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// LogLevel is the level of the default logger, set from log-level once the
// config is loaded
var LogLevel = new(slog.LevelVar)

var rootCmd = &cobra.Command{
	Use:   "flashstation",
	Short: "Fleet programming station - keep firmware variants cached and flash them on a button press",
	Long: `Keeps a local cache of firmware variants in sync with the remote OTA catalog and
flashes the variant bound to a button onto the attached board with esptool.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("sqlite-path", ".artifacts/variants.db", "SQLite database path")
	rootCmd.PersistentFlags().String("fsm-db-path", ".artifacts/fsm", "FSM state directory")
	rootCmd.PersistentFlags().String("artifact-dir", "binfile", "Directory holding cached firmware")
	rootCmd.PersistentFlags().String("catalog-url", "https://api.waltr.in/v1/ota/latest", "Remote OTA catalog URL")
	rootCmd.PersistentFlags().Bool("durable-sync", true, "Apply catalog changes through the durable FSM workflow")
	rootCmd.PersistentFlags().String("serial-port", "/dev/ttyUSB0", "Serial port of the board")
	rootCmd.PersistentFlags().String("gpio-chip", "gpiochip0", "GPIO character device")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	viper.BindPFlag("sqlite-path", rootCmd.PersistentFlags().Lookup("sqlite-path"))
	viper.BindPFlag("fsm-db-path", rootCmd.PersistentFlags().Lookup("fsm-db-path"))
	viper.BindPFlag("artifact-dir", rootCmd.PersistentFlags().Lookup("artifact-dir"))
	viper.BindPFlag("catalog-url", rootCmd.PersistentFlags().Lookup("catalog-url"))
	viper.BindPFlag("durable-sync", rootCmd.PersistentFlags().Lookup("durable-sync"))
	viper.BindPFlag("serial-port", rootCmd.PersistentFlags().Lookup("serial-port"))
	viper.BindPFlag("gpio-chip", rootCmd.PersistentFlags().Lookup("gpio-chip"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}
