// Package config handles configuration loading and validation for cw-certcheck.
package config

import (
	"fmt"
	"net/mail"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/certwatch-app/cw-certcheck/internal/policy"
	"github.com/certwatch-app/cw-certcheck/internal/report"
	"github.com/certwatch-app/cw-certcheck/internal/scanner"
	"github.com/certwatch-app/cw-certcheck/internal/types"
)

// Webhook types
const (
	WebhookSlack   = "slack"
	WebhookTeams   = "teams"
	WebhookGeneric = "generic"
)

const maxTargets = 1000

// Config represents the complete checker configuration
type Config struct {
	Alerts  AlertsConfig   `mapstructure:"alerts"`
	Output  OutputConfig   `mapstructure:"output"`
	Agent   AgentConfig    `mapstructure:"agent"`
	Targets []TargetConfig `mapstructure:"targets"`
	Scan    ScanConfig     `mapstructure:"scan"`
}

// TargetConfig represents an endpoint to check
// Fields are ordered for optimal memory alignment
type TargetConfig struct {
	Host        string `mapstructure:"host" yaml:"host"`
	DisplayName string `mapstructure:"display_name" yaml:"display_name,omitempty"`
	ServerName  string `mapstructure:"server_name" yaml:"server_name,omitempty"`
	Port        int    `mapstructure:"port" yaml:"port"`
}

// ScanConfig contains scan settings
type ScanConfig struct {
	Timeout               time.Duration `mapstructure:"timeout"`
	RunTimeout            time.Duration `mapstructure:"run_timeout"`
	Concurrency           int           `mapstructure:"concurrency"`
	WarnThresholdDays     int           `mapstructure:"warn_threshold_days"`
	CriticalThresholdDays int           `mapstructure:"critical_threshold_days"`
}

// AgentConfig contains settings for the long-running `start` mode
// Fields are ordered for optimal memory alignment
type AgentConfig struct {
	Name        string        `mapstructure:"name"`
	LogLevel    string        `mapstructure:"log_level"`
	StateDir    string        `mapstructure:"state_dir"`
	Interval    time.Duration `mapstructure:"interval"`
	MetricsPort int           `mapstructure:"metrics_port"`
}

// OutputConfig controls how reports are rendered
type OutputConfig struct {
	Format string `mapstructure:"format"`
	Quiet  bool   `mapstructure:"quiet"`
}

// AlertsConfig controls alerting. Enabled switches the webhook on; email is
// switched on separately by Email.Enabled.
type AlertsConfig struct {
	NotifyOn []string      `mapstructure:"notify_on"`
	Webhook  WebhookConfig `mapstructure:"webhook"`
	Email    EmailConfig   `mapstructure:"email"`
	Enabled  bool          `mapstructure:"enabled"`
}

// WebhookConfig describes the alert destination
// Fields are ordered for optimal memory alignment
type WebhookConfig struct {
	Headers    map[string]string `mapstructure:"headers"`
	URL        string            `mapstructure:"url"`
	Type       string            `mapstructure:"type"`
	Timeout    time.Duration     `mapstructure:"timeout"`
	MaxRetries int               `mapstructure:"max_retries"`
}

// EmailConfig describes SMTP alert delivery
// Fields are ordered for optimal memory alignment
type EmailConfig struct {
	To         []string      `mapstructure:"to"`
	SMTPServer string        `mapstructure:"smtp_server"`
	Username   string        `mapstructure:"username"`
	Password   string        `mapstructure:"password"`
	From       string        `mapstructure:"from"`
	Subject    string        `mapstructure:"subject"`
	Timeout    time.Duration `mapstructure:"timeout"`
	SMTPPort   int           `mapstructure:"smtp_port"`
	UseTLS     bool          `mapstructure:"use_tls"`
	Enabled    bool          `mapstructure:"enabled"`
}

// Load reads configuration from viper
func Load(v *viper.Viper) (*Config, error) {
	// Set defaults
	setDefaults(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for target ports
	for i := range cfg.Targets {
		if cfg.Targets[i].Port == 0 {
			cfg.Targets[i].Port = types.DefaultPort
		}
	}

	// Alert state lives next to the config file unless configured
	if cfg.Agent.StateDir == "" {
		if used := v.ConfigFileUsed(); used != "" {
			cfg.Agent.StateDir = filepath.Dir(used)
		} else {
			cfg.Agent.StateDir = "."
		}
	}

	cfg.Output.Format = strings.ToLower(cfg.Output.Format)
	cfg.Alerts.Webhook.Type = strings.ToLower(cfg.Alerts.Webhook.Type)
	for i, s := range cfg.Alerts.NotifyOn {
		cfg.Alerts.NotifyOn[i] = strings.ToUpper(s)
	}

	return cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Scan defaults
	v.SetDefault("scan.concurrency", scanner.DefaultConcurrency)
	v.SetDefault("scan.timeout", scanner.DefaultTimeout.String())
	v.SetDefault("scan.run_timeout", "0s")
	v.SetDefault("scan.warn_threshold_days", policy.DefaultWarnThresholdDays)
	v.SetDefault("scan.critical_threshold_days", policy.DefaultCriticalThresholdDays)

	// Agent defaults
	v.SetDefault("agent.name", "default-checker")
	v.SetDefault("agent.log_level", "info")
	v.SetDefault("agent.interval", "1h")
	v.SetDefault("agent.metrics_port", 9402)

	// Output defaults
	v.SetDefault("output.format", report.FormatTable)
	v.SetDefault("output.quiet", false)

	// Alert defaults
	v.SetDefault("alerts.enabled", false)
	v.SetDefault("alerts.notify_on", []string{
		string(types.StatusWarnExpiring),
		string(types.StatusExpired),
		string(types.StatusError),
	})
	v.SetDefault("alerts.webhook.type", WebhookSlack)
	v.SetDefault("alerts.webhook.timeout", "10s")
	v.SetDefault("alerts.webhook.max_retries", 3)
	v.SetDefault("alerts.email.enabled", false)
	v.SetDefault("alerts.email.smtp_port", 587)
	v.SetDefault("alerts.email.use_tls", true)
	v.SetDefault("alerts.email.subject", "SSL Certificate Alert")
	v.SetDefault("alerts.email.timeout", "10s")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate targets
	if err := c.validateTargets(); err != nil {
		return fmt.Errorf("targets: %w", err)
	}

	// Validate scan config
	if err := c.validateScan(); err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	// Validate agent config
	if err := c.validateAgent(); err != nil {
		return fmt.Errorf("agent: %w", err)
	}

	if err := c.validateOutput(); err != nil {
		return fmt.Errorf("output: %w", err)
	}

	if err := c.validateAlerts(); err != nil {
		return fmt.Errorf("alerts: %w", err)
	}

	return nil
}

func (c *Config) validateTargets() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("at least one target is required")
	}

	if len(c.Targets) > maxTargets {
		return fmt.Errorf("maximum %d targets allowed", maxTargets)
	}

	seen := make(map[string]bool)
	for i, tc := range c.Targets {
		target, err := types.NewTarget(tc.Host, tc.Port, tc.DisplayName, tc.ServerName)
		if err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}

		if seen[target.Key()] {
			return fmt.Errorf("[%d]: duplicate host:port '%s'", i, target.Key())
		}
		seen[target.Key()] = true

		if len(tc.DisplayName) > 100 {
			return fmt.Errorf("[%d]: display_name must be at most 100 characters", i)
		}
	}

	return nil
}

func (c *Config) validateScan() error {
	if c.Scan.Concurrency < 1 || c.Scan.Concurrency > 100 {
		return fmt.Errorf("concurrency must be between 1 and 100")
	}

	if c.Scan.Timeout < 100*time.Millisecond {
		return fmt.Errorf("timeout must be at least 100ms")
	}

	if c.Scan.RunTimeout < 0 {
		return fmt.Errorf("run_timeout must not be negative")
	}

	if c.Scan.CriticalThresholdDays < 0 {
		return fmt.Errorf("critical_threshold_days must not be negative")
	}

	return nil
}

func (c *Config) validateAgent() error {
	if c.Agent.Name == "" {
		return fmt.Errorf("name is required")
	}

	if len(c.Agent.Name) > 100 {
		return fmt.Errorf("name must be at most 100 characters")
	}

	if c.Agent.Interval < time.Minute {
		return fmt.Errorf("interval must be at least 1 minute")
	}

	if c.Agent.MetricsPort < 0 || c.Agent.MetricsPort > 65535 {
		return fmt.Errorf("metrics_port must be between 0 and 65535")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Agent.LogLevel] {
		return fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}

	return nil
}

func (c *Config) validateOutput() error {
	if c.Output.Format != report.FormatTable && c.Output.Format != report.FormatJSON {
		return fmt.Errorf("format must be one of: %s, %s", report.FormatTable, report.FormatJSON)
	}
	return nil
}

func (c *Config) validateAlerts() error {
	for i, s := range c.Alerts.NotifyOn {
		if !slices.Contains(types.Statuses, types.Status(s)) {
			return fmt.Errorf("notify_on[%d]: unknown status '%s'", i, s)
		}
	}

	if c.Alerts.Email.Enabled {
		if err := c.validateEmail(); err != nil {
			return fmt.Errorf("email.%w", err)
		}
	}

	if !c.Alerts.Enabled {
		return nil
	}

	if c.Alerts.Webhook.URL == "" {
		return fmt.Errorf("webhook.url is required when alerts are enabled")
	}

	u, err := url.Parse(c.Alerts.Webhook.URL)
	if err != nil {
		return fmt.Errorf("invalid webhook.url: %w", err)
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("webhook.url must use http or https scheme")
	}

	switch c.Alerts.Webhook.Type {
	case WebhookSlack, WebhookTeams, WebhookGeneric:
	default:
		return fmt.Errorf("webhook.type must be one of: %s, %s, %s", WebhookSlack, WebhookTeams, WebhookGeneric)
	}

	if c.Alerts.Webhook.Timeout < time.Second {
		return fmt.Errorf("webhook.timeout must be at least 1 second")
	}

	if c.Alerts.Webhook.MaxRetries < 0 || c.Alerts.Webhook.MaxRetries > 10 {
		return fmt.Errorf("webhook.max_retries must be between 0 and 10")
	}

	return nil
}

func (c *Config) validateEmail() error {
	e := c.Alerts.Email

	if e.SMTPServer == "" {
		return fmt.Errorf("smtp_server is required when email alerts are enabled")
	}

	if e.SMTPPort < 1 || e.SMTPPort > 65535 {
		return fmt.Errorf("smtp_port must be between 1 and 65535")
	}

	if _, err := mail.ParseAddress(e.From); err != nil {
		return fmt.Errorf("from: invalid address '%s'", e.From)
	}

	if len(e.To) == 0 {
		return fmt.Errorf("to: at least one recipient is required")
	}
	for i, addr := range e.To {
		if _, err := mail.ParseAddress(addr); err != nil {
			return fmt.Errorf("to[%d]: invalid address '%s'", i, addr)
		}
	}

	if (e.Username == "") != (e.Password == "") {
		return fmt.Errorf("username and password must be set together")
	}

	if e.Timeout < time.Second {
		return fmt.Errorf("timeout must be at least 1 second")
	}

	return nil
}

// ScanTargets converts the configured targets into normalized scan targets.
// Call Validate first; invalid entries are skipped.
func (c *Config) ScanTargets() []types.Target {
	targets := make([]types.Target, 0, len(c.Targets))
	for _, tc := range c.Targets {
		target, err := types.NewTarget(tc.Host, tc.Port, tc.DisplayName, tc.ServerName)
		if err != nil {
			continue
		}
		targets = append(targets, target)
	}
	return targets
}

// ScanOptions returns the scanner options for this configuration
func (c *Config) ScanOptions() scanner.Options {
	return scanner.Options{
		Timeout:           c.Scan.Timeout,
		RunTimeout:        c.Scan.RunTimeout,
		Concurrency:       c.Scan.Concurrency,
		WarnThresholdDays: c.Scan.WarnThresholdDays,
	}
}

// NotifyStatuses returns the configured alert statuses
func (c *Config) NotifyStatuses() []types.Status {
	statuses := make([]types.Status, 0, len(c.Alerts.NotifyOn))
	for _, s := range c.Alerts.NotifyOn {
		statuses = append(statuses, types.Status(s))
	}
	return statuses
}
