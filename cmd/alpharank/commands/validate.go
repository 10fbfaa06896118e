package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dkwon/alpharank/internal/contracts"
	"github.com/dkwon/alpharank/internal/sandbox"
	"github.com/dkwon/alpharank/pkg/config"
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate [factor.js]",
	Short: "Statically validate factor code",
	Long: `Statically validate a factor source file against a selection.

The validator checks the factor(data, params) contract, rejects
disallowed syntax and identifiers, and reports which declared fields
the code actually reads. No code is executed and no database is needed.

The selection file is YAML:

  selects:
    - source: valuation
      fields: [pe, pb]

Example:
  go run ./cmd/alpharank validate my_factor.js --selection selection.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

var selectionPath string

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&selectionPath, "selection", "", "selection spec YAML file (required)")
	validateCmd.MarkFlagRequired("selection")
}

func runValidate(cmd *cobra.Command, args []string) error {
	code, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read factor file: %w", err)
	}

	selData, err := os.ReadFile(selectionPath)
	if err != nil {
		return fmt.Errorf("read selection file: %w", err)
	}

	var selection contracts.SelectionSpec
	if err := yaml.Unmarshal(selData, &selection); err != nil {
		return fmt.Errorf("parse selection file: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	validator := sandbox.NewValidator(cfg.Sandbox)
	report := validator.Validate(string(code), selection)

	if report.OK {
		fmt.Println("OK")
		fmt.Printf("Fields used: %v\n", report.FieldsUsed)
		return nil
	}

	fmt.Printf("INVALID (%d violations)\n", len(report.Errors))
	for _, verr := range report.Errors {
		fmt.Printf("  - %s\n", verr.Error())
	}

	os.Exit(1)
	return nil
}
