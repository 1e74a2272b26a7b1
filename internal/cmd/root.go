// Package cmd provides CLI commands for cw-certcheck.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/certwatch-app/cw-certcheck/internal/config"
	"github.com/certwatch-app/cw-certcheck/internal/logging"
	"github.com/certwatch-app/cw-certcheck/internal/version"
)

var (
	cfgFile string
	verbose bool

	// configReadErr is set when an explicitly requested config file
	// could not be read
	configReadErr error
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cw-certcheck",
	Short: "cw-certcheck - TLS certificate expiry checker",
	Long: `cw-certcheck connects to TLS endpoints, retrieves their certificates and
reports which ones are valid, expiring soon, expired or unreachable.

Configure targets in certcheck.yaml and run a single check:
  cw-certcheck check -c /path/to/certcheck.yaml

or keep checking on a schedule with metrics and webhook alerts:
  cw-certcheck start -c /path/to/certcheck.yaml`,
	Version: version.GetVersion(),
}

// ExitError carries a process exit code without an error message
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// ExitCode maps an error returned by Execute to a process exit code
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./certcheck.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	// Bind flags to viper
	//nolint:errcheck // error is ignored because the flag is guaranteed to exist
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in current directory
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/certwatch")
		viper.SetConfigType("yaml")
		viper.SetConfigName("certcheck")
	}

	// Read environment variables with CERTCHECK_ prefix, e.g.
	// CERTCHECK_SCAN_CONCURRENCY for scan.concurrency
	viper.SetEnvPrefix("CERTCHECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in
	err := viper.ReadInConfig()
	switch {
	case err == nil:
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	case cfgFile != "":
		configReadErr = fmt.Errorf("failed to read config file: %w", err)
	}
}

// loadConfig loads and validates the configuration
func loadConfig() (*config.Config, error) {
	if configReadErr != nil {
		return nil, configReadErr
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// newLogger builds the process logger, honouring --verbose
func newLogger(cfg *config.Config) *zap.Logger {
	level := cfg.Agent.LogLevel
	if viper.GetBool("verbose") {
		level = "debug"
	}
	return logging.New(level)
}

// GetVersion returns the version information
func GetVersion() string {
	return version.GetVersion()
}
