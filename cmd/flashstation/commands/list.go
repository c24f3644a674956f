package commands

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/waltr/flashstation/pkg/db"
	"github.com/waltr/flashstation/pkg/errors"
)

var listOutput string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached variants",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "table", "Output format (table, yaml)")
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	byKey, err := repo.List(context.Background())
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	variants := make([]*db.Variant, 0, len(byKey))
	for _, v := range byKey {
		variants = append(variants, v)
	}
	sort.Slice(variants, func(i, j int) bool { return variants[i].Key < variants[j].Key })

	switch listOutput {
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(variants)
	case "table":
	default:
		return fmt.Errorf("unknown output format %q", listOutput)
	}

	if len(variants) == 0 {
		fmt.Println("No variants cached")
		return nil
	}

	fmt.Printf("%-20s %-12s %-5s %-40s %-20s\n", "KEY", "VERSION", "IDF", "PATH", "UPDATED")
	fmt.Println("------------------------------------------------------------------------------------------------------")

	for _, v := range variants {
		idf := "no"
		if v.IsIDF {
			idf = "yes"
		}
		fmt.Printf("%-20s %-12s %-5s %-40s %-20s\n",
			v.Key, v.Version, idf, v.Path, v.UpdatedAt)
	}

	return nil
}
