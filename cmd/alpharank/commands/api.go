package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dkwon/alpharank/internal/api"
	"github.com/dkwon/alpharank/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long: `Start the REST API server.

Endpoints:
  GET  /health                    - Health check
  POST /api/factors/validate      - Validate factor code
  POST /api/factors/testrun       - Test-run a factor on a sample universe
  POST /api/strategies/{id}/run   - Start a strategy run
  GET  /api/runs/{id}/progress    - Run progress snapshot
  GET  /api/runs/{id}/result      - Ranked result of a completed run
  POST /api/runs/{id}/cancel      - Request cancellation
  GET  /api/runs/{id}/ws          - Progress stream (WebSocket)
  GET  /api/catalog/sources       - Registered data sources

Example:
  go run ./cmd/alpharank api
  go run ./cmd/alpharank api --port 8090`,
	RunE: runAPIServer,
}

var apiPort string

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (overrides PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Alpharank API Server ===")

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if apiPort != "" {
		app.cfg.Port = apiPort
	}

	app.log.WithFields(map[string]interface{}{
		"port": app.cfg.Port,
		"env":  app.cfg.Env,
	}).Info("Initializing API server")

	factorHandler := handlers.NewFactorHandler(app.engine, app.log)
	runHandler := handlers.NewRunHandler(app.engine, app.log)
	catalogHandler := handlers.NewCatalogHandler(app.registry, app.log)

	router := api.NewRouter(factorHandler, runHandler, catalogHandler, app.log)
	server := api.New(app.cfg, app.log, router)

	go func() {
		if err := server.Start(); err != nil {
			app.log.WithError(err).Fatal("Failed to start server")
		}
	}()

	fmt.Printf("\nServer running on http://localhost:%s\n", app.cfg.Port)
	fmt.Println("Press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	app.log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	app.log.Info("Server stopped")
	return nil
}
