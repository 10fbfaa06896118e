package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dkwon/alpharank/pkg/config"
	"github.com/dkwon/alpharank/pkg/logger"
)

// testLoggerCmd represents the test-logger command
var testLoggerCmd = &cobra.Command{
	Use:   "test-logger",
	Short: "Test the structured logger",
	Long: `Exercise structured logging in both output formats.

Example:
  go run ./cmd/alpharank test-logger`,
	RunE: runTestLogger,
}

func init() {
	rootCmd.AddCommand(testLoggerCmd)
}

func runTestLogger(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Alpharank Logger Test ===")

	fmt.Println("1. JSON Format (Production)")
	fmt.Println("--------------------------------")
	testLogFormat("production", "json")
	fmt.Println()

	fmt.Println("2. Console Format (Development)")
	fmt.Println("--------------------------------")
	testLogFormat("development", "console")
	fmt.Println()

	fmt.Println("3. Structured Fields and Errors")
	fmt.Println("--------------------------------")
	testStructuredLogging()
	fmt.Println()

	fmt.Println("All logger tests completed")
	return nil
}

func testLogFormat(env, format string) {
	cfg := &config.Config{
		Env:       env,
		LogLevel:  "debug",
		LogFormat: format,
	}

	log := logger.New(cfg)
	log.Debug("Resolving factor selections")
	log.Info("Run started")
	log.Warn("Factor failed for one entity, weights renormalized")
	log.Error("Fetch failed after retries")
}

func testStructuredLogging() {
	cfg := &config.Config{
		Env:       "production",
		LogLevel:  "info",
		LogFormat: "json",
	}

	log := logger.New(cfg)

	log.WithField("run_id", "d6f1c2a0").Info("Run completed")

	log.WithFields(map[string]interface{}{
		"factor": "neg_pe",
		"code":   "005930",
		"value":  -8.25,
	}).Info("Factor executed")

	err := errors.New("connection timeout")
	log.WithError(err).
		WithFields(map[string]interface{}{
			"source":      "valuation",
			"retry_count": 3,
		}).
		Error("Fetch failed after retries")
}
