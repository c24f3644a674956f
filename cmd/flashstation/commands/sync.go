package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/waltr/flashstation/pkg/catalog"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh the local cache from the remote catalog once",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

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

	outcome := syncer.Refresh(ctx)

	switch outcome.Kind {
	case catalog.Unreachable:
		return fmt.Errorf("catalog unreachable: %s", outcome.Reason)
	case catalog.Updated:
		fmt.Printf("✅ Updated: %s\n", strings.Join(outcome.Updated, ", "))
	default:
		fmt.Println("Cache is up to date")
		if outcome.Reason != "" {
			fmt.Printf("⚠️  %s\n", outcome.Reason)
		}
	}

	if len(outcome.Failed) > 0 {
		fmt.Printf("⚠️  Failed: %s\n", strings.Join(outcome.Failed, ", "))
	}
	return nil
}
