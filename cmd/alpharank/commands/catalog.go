package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dkwon/alpharank/internal/catalog"
	"github.com/dkwon/alpharank/pkg/config"
)

// catalogCmd represents the catalog command
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the data source catalog",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered data sources",
	Long: `Load the data source catalog and print every registered source
with its fields, parameters and rate limit policy.

Example:
  go run ./cmd/alpharank catalog list`,
	RunE: listSources,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogListCmd)
}

func listSources(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	registry, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("load catalog %s: %w", cfg.Catalog.Path, err)
	}

	sources := registry.List()
	fmt.Printf("Catalog: %s (%d sources)\n\n", cfg.Catalog.Path, len(sources))

	for _, src := range sources {
		fmt.Printf("%s (%s)\n", src.Name, src.Kind)
		fmt.Printf("  Fields:     %s\n", strings.Join(src.Fields, ", "))
		if len(src.Params) > 0 {
			params := make([]string, 0, len(src.Params))
			for _, p := range src.Params {
				name := p.Name
				if p.Required {
					name += "*"
				}
				params = append(params, name)
			}
			fmt.Printf("  Params:     %s\n", strings.Join(params, ", "))
		}
		fmt.Printf("  Rate limit: %.1f qps (burst %d)\n", src.RateLimit.QPS, src.RateLimit.Burst)
		fmt.Printf("  Max batch:  %d\n", src.MaxBatch)
		fmt.Printf("  Cache TTL:  %v\n", src.TTL)
		fmt.Println()
	}

	return nil
}
