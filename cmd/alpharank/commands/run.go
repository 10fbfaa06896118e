package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dkwon/alpharank/internal/contracts"
	"github.com/dkwon/alpharank/internal/engine"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [strategy_id]",
	Short: "Run a strategy once and print the ranked result",
	Long: `Run a strategy once, printing progress as the run advances
through its stages, then print the ranked top-N.

Example:
  go run ./cmd/alpharank run value_tilt
  go run ./cmd/alpharank run value_tilt --date 2024-01-02
  go run ./cmd/alpharank run value_tilt --codes 005930,000660
  go run ./cmd/alpharank run value_tilt --arg period=annual`,
	Args: cobra.ExactArgs(1),
	RunE: runStrategy,
}

var (
	runDate     string
	runCodes    []string
	runCategory string
	runArgs     []string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runDate, "date", "", "cross-section date (2006-01-02, default today)")
	runCmd.Flags().StringSliceVar(&runCodes, "codes", nil, "restrict the universe to these entity codes")
	runCmd.Flags().StringVar(&runCategory, "category", "", "restrict the universe to one category")
	runCmd.Flags().StringArrayVar(&runArgs, "arg", nil, "request-bound source parameter (key=value, repeatable)")
}

func runStrategy(cmd *cobra.Command, args []string) error {
	strategyID := args[0]

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	req := engine.RunRequest{
		StrategyID: strategyID,
		Filters: contracts.UniverseFilter{
			Codes:    runCodes,
			Category: runCategory,
		},
	}

	if runDate != "" {
		date, err := time.Parse("2006-01-02", runDate)
		if err != nil {
			return fmt.Errorf("parse --date: %w", err)
		}
		req.Date = date
	}

	if len(runArgs) > 0 {
		req.Args = make(map[string]string, len(runArgs))
		for _, kv := range runArgs {
			key, value, found := strings.Cut(kv, "=")
			if !found || key == "" {
				return fmt.Errorf("--arg %q must be key=value", kv)
			}
			req.Args[key] = value
		}
	}

	runID, err := app.engine.RunStrategy(context.Background(), req)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}

	fmt.Printf("Run %s started for strategy %s\n\n", runID, strategyID)

	snapshot, err := watchRun(app.engine, runID)
	if err != nil {
		return err
	}

	if snapshot.Status != contracts.RunCompleted {
		return fmt.Errorf("run ended with status %s: %s", snapshot.Status, snapshot.Error)
	}

	result, err := app.engine.Result(runID)
	if err != nil {
		return fmt.Errorf("fetch result: %w", err)
	}

	printResult(result)
	return nil
}

// watchRun polls progress and prints log entries until the run ends.
func watchRun(eng *engine.Engine, runID string) (contracts.ProgressSnapshot, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	printed := 0
	for {
		snapshot, err := eng.Progress(runID)
		if err != nil {
			return contracts.ProgressSnapshot{}, err
		}

		for ; printed < len(snapshot.Logs); printed++ {
			entry := snapshot.Logs[printed]
			line := fmt.Sprintf("[%5.1f%%] %-22s %s", snapshot.Percent, entry.Stage, entry.Message)
			if entry.Factor != "" {
				line += " factor=" + entry.Factor
			}
			if entry.Code != "" {
				line += " code=" + entry.Code
			}
			fmt.Println(line)
		}

		if snapshot.Status.Terminal() {
			return snapshot, nil
		}
		<-ticker.C
	}
}

func printResult(result *contracts.RunResult) {
	fmt.Printf("\nStrategy %s @ %s (run %s, %v)\n\n",
		result.StrategyID, result.Date, result.RunID, result.Duration.Round(time.Millisecond))

	fmt.Printf("%-6s %-12s %12s\n", "Rank", "Code", "Score")
	fmt.Println(strings.Repeat("-", 32))
	for _, row := range result.TopN {
		fmt.Printf("%-6d %-12s %12.4f\n", row.Rank, row.Code, row.Score)
	}
}
