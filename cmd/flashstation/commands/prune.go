package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/waltr/flashstation/pkg/errors"
	"github.com/waltr/flashstation/pkg/storage"
)

var pruneDryRun bool

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove cached artifacts the store no longer references",
	Long: `Scan the artifact directory and remove:
  - artifacts no stored variant points to
  - partial downloads left behind by an interrupted sync`,
	Args: cobra.NoArgs,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "Only print what would be removed")
}

func runPrune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	variants, err := repo.List(context.Background())
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	referenced := make(map[string]bool, len(variants))
	for _, v := range variants {
		referenced[v.Path] = true
	}

	fmt.Println("🔍 Scanning for orphaned artifacts...")

	orphans, err := storage.Orphans(cfg.ArtifactDir, referenced)
	if err != nil {
		return err
	}

	removed := 0
	for _, path := range orphans {
		name := filepath.Base(path)
		if pruneDryRun {
			fmt.Printf("Would remove: %s\n", name)
			continue
		}
		if err := os.Remove(path); err != nil {
			fmt.Printf("⚠️  Failed to remove %s: %v\n", name, err)
			continue
		}
		fmt.Printf("🗑️  Removed: %s\n", name)
		removed++
	}

	fmt.Printf("✅ Removed %d orphaned files\n", removed)
	return nil
}
