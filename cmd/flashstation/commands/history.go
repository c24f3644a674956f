package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/waltr/flashstation/pkg/errors"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent flash attempts",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of attempts to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	attempts, err := repo.ListFlashes(context.Background(), historyLimit)
	if err != nil {
		return errors.Wrap(err, "history failed")
	}

	if len(attempts) == 0 {
		fmt.Println("No flash attempts recorded")
		return nil
	}

	fmt.Printf("%-20s %-20s %-12s %-16s %-6s %-10s\n", "TIME", "KEY", "VERSION", "OUTCOME", "EXIT", "DURATION")
	fmt.Println("------------------------------------------------------------------------------------------")

	for _, a := range attempts {
		key := a.Key
		if key == "" {
			key = "-"
		}
		version := a.Version
		if version == "" {
			version = "-"
		}
		fmt.Printf("%-20s %-20s %-12s %-16s %-6d %-10s\n",
			a.CreatedAt, key, version, a.Outcome, a.ExitCode, fmt.Sprintf("%.1fs", float64(a.DurationMS)/1000))
	}

	return nil
}
