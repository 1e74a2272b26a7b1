package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/certwatch-app/cw-certcheck/internal/agent"
	"github.com/certwatch-app/cw-certcheck/internal/state"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the certificate monitoring agent",
	Long: `Start cw-certcheck as a long-running agent. Every configured interval it
checks all targets, updates Prometheus metrics and sends webhook alerts for
targets whose status changed since the last alert.

HTTP endpoints on agent.metrics_port:
  /metrics  Prometheus metrics
  /healthz  liveness probe
  /readyz   ready once the first check has completed
  /report   latest report as JSON
  /version  build information

Example:
  cw-certcheck start -c /path/to/certcheck.yaml
  cw-certcheck start --config certcheck.yaml`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	defer logger.Sync() //nolint:errcheck // stderr sync errors are not actionable

	// Load state (alert de-duplication across restarts)
	stateManager := state.NewManager(cfg.Agent.StateDir)
	if loadErr := stateManager.Load(); loadErr != nil {
		// Don't fail on state load errors - we'll create new state
		logger.Warn("could not load state, starting fresh", zap.Error(loadErr))
	}
	if prev := stateManager.GetAgentName(); prev != "" && prev != cfg.Agent.Name {
		logger.Info("agent name changed", zap.String("previous", prev), zap.String("current", cfg.Agent.Name))
	}
	stateManager.SetAgentName(cfg.Agent.Name)

	a := agent.New(cfg, logger, stateManager)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("agent error: %w", err)
	}

	logger.Info("agent stopped gracefully")
	return nil
}
