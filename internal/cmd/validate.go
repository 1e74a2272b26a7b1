package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/certwatch-app/cw-certcheck/internal/ui"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Validate the cw-certcheck configuration file without checking any certificates.

Example:
  cw-certcheck validate -c /path/to/certcheck.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	alerts := "disabled"
	if cfg.Alerts.Enabled {
		alerts = fmt.Sprintf("%s webhook on %v", cfg.Alerts.Webhook.Type, cfg.Alerts.NotifyOn)
	}
	if cfg.Alerts.Email.Enabled {
		email := fmt.Sprintf("email via %s to %d recipients", cfg.Alerts.Email.SMTPServer, len(cfg.Alerts.Email.To))
		if cfg.Alerts.Enabled {
			alerts += ", " + email
		} else {
			alerts = email
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, ui.RenderSuccess("Configuration is valid!"))
	fmt.Fprintf(out, "  Agent name:     %s\n", cfg.Agent.Name)
	fmt.Fprintf(out, "  Targets:        %d\n", len(cfg.Targets))
	fmt.Fprintf(out, "  Warn threshold: %d days\n", cfg.Scan.WarnThresholdDays)
	fmt.Fprintf(out, "  Critical at:    %d days\n", cfg.Scan.CriticalThresholdDays)
	fmt.Fprintf(out, "  Concurrency:    %d\n", cfg.Scan.Concurrency)
	fmt.Fprintf(out, "  Timeout:        %s\n", cfg.Scan.Timeout)
	fmt.Fprintf(out, "  Interval:       %s\n", cfg.Agent.Interval)
	fmt.Fprintf(out, "  Alerts:         %s\n", alerts)

	return nil
}
