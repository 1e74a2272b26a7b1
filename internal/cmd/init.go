package cmd

import (
	"github.com/spf13/cobra"

	"github.com/certwatch-app/cw-certcheck/internal/cmd/initcmd"
)

var (
	initOutputPath     string
	initNonInteractive bool
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new cw-certcheck configuration",
	Long: `Interactively create a new cw-certcheck configuration file.

The wizard will guide you through setting up:
  • Targets to check (hostnames, ports, display names)
  • Scan behavior (warning threshold, timeout, concurrency)
  • Agent settings (name, interval, metrics port)
  • Webhook alerts (Slack, Teams or generic JSON)

Examples:
  # Interactive mode (default)
  cw-certcheck init

  # Specify output path
  cw-certcheck init -o /etc/certwatch/certcheck.yaml

  # Non-interactive mode (for CI/scripting)
  CERTCHECK_INIT_TARGETS=api.example.com,db.example.com:8443 cw-certcheck init --non-interactive

Environment variables for non-interactive mode:
  CERTCHECK_INIT_TARGETS              (required) Comma-separated host or host:port entries
  CERTCHECK_AGENT_NAME                (optional) Agent name (default: default-checker)
  CERTCHECK_AGENT_INTERVAL            (optional) Check interval (default: 1h)
  CERTCHECK_AGENT_LOG_LEVEL           (optional) Log level (default: info)
  CERTCHECK_SCAN_WARN_THRESHOLD_DAYS  (optional) Warning threshold in days (default: 30)
  CERTCHECK_ALERTS_WEBHOOK_URL        (optional) Enables alerts to this webhook
  CERTCHECK_ALERTS_WEBHOOK_TYPE       (optional) slack, teams or generic (default: slack)`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVarP(&initOutputPath, "output", "o", "./certcheck.yaml",
		"Output path for the configuration file")
	initCmd.Flags().BoolVar(&initNonInteractive, "non-interactive", false,
		"Run in non-interactive mode using environment variables")
}

func runInit(_ *cobra.Command, _ []string) error {
	if initNonInteractive {
		return initcmd.RunNonInteractive(initOutputPath)
	}

	wizard := initcmd.NewWizard()
	wizard.SetOutputPath(initOutputPath)
	return wizard.Run()
}
