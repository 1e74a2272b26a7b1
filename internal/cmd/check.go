package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/certwatch-app/cw-certcheck/internal/agent"
	"github.com/certwatch-app/cw-certcheck/internal/policy"
	"github.com/certwatch-app/cw-certcheck/internal/report"
	"github.com/certwatch-app/cw-certcheck/internal/scanner"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check all configured certificates once",
	Long: `Check every configured target once, print a report and exit.

The exit code reflects the worst result:
  0  all certificates are valid (warnings outside the critical window included)
  1  at least one target could not be checked
  2  at least one certificate has expired or expires within the critical threshold

Example:
  cw-certcheck check -c /path/to/certcheck.yaml
  cw-certcheck check --format json --warn-days 14 --critical-days 3`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().String("format", report.FormatTable, "output format (table, json)")
	checkCmd.Flags().BoolP("quiet", "q", false, "do not print the report, only set the exit code")
	checkCmd.Flags().Int("warn-days", policy.DefaultWarnThresholdDays, "warn when a certificate expires within this many days")
	checkCmd.Flags().Int("critical-days", policy.DefaultCriticalThresholdDays, "exit 2 when a certificate expires within this many days")
	checkCmd.Flags().Int("concurrency", scanner.DefaultConcurrency, "maximum number of targets checked at once")
	checkCmd.Flags().Duration("timeout", scanner.DefaultTimeout, "per-target connect and handshake timeout")

	// Bind flags to viper so they override the config file
	for key, flag := range map[string]string{
		"output.format":                "format",
		"output.quiet":                 "quiet",
		"scan.warn_threshold_days":     "warn-days",
		"scan.critical_threshold_days": "critical-days",
		"scan.concurrency":             "concurrency",
		"scan.timeout":                 "timeout",
	} {
		//nolint:errcheck // error is ignored because the flag is guaranteed to exist
		viper.BindPFlag(key, checkCmd.Flags().Lookup(flag))
	}
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	defer logger.Sync() //nolint:errcheck // stderr sync errors are not actionable

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rep, err := agent.New(cfg, logger, nil).RunOnce(ctx)
	if err != nil {
		return err
	}

	if !cfg.Output.Quiet {
		if err := report.Render(cmd.OutOrStdout(), rep, cfg.Output.Format, cfg.Scan.CriticalThresholdDays); err != nil {
			return fmt.Errorf("failed to render report: %w", err)
		}
	}

	if code := report.ExitCode(rep, cfg.Scan.CriticalThresholdDays); code != report.ExitOK {
		cmd.SilenceErrors = true
		cmd.SilenceUsage = true
		return &ExitError{Code: code}
	}

	return nil
}
