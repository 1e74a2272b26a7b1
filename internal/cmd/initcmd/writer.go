package initcmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/certwatch-app/cw-certcheck/internal/config"
)

const fileHeader = `# cw-certcheck configuration
# Generated by 'cw-certcheck init'. Validate with 'cw-certcheck validate -c <file>'.
`

// configFile mirrors config.Config with YAML tags. Durations are written as
// strings so viper parses them back with its duration decode hook.
type configFile struct {
	Targets []config.TargetConfig `yaml:"targets"`
	Scan    scanFile              `yaml:"scan"`
	Agent   agentFile             `yaml:"agent"`
	Output  outputFile            `yaml:"output"`
	Alerts  alertsFile            `yaml:"alerts"`
}

type scanFile struct {
	Timeout               string `yaml:"timeout"`
	RunTimeout            string `yaml:"run_timeout,omitempty"`
	Concurrency           int    `yaml:"concurrency"`
	WarnThresholdDays     int    `yaml:"warn_threshold_days"`
	CriticalThresholdDays int    `yaml:"critical_threshold_days"`
}

type agentFile struct {
	Name        string `yaml:"name"`
	LogLevel    string `yaml:"log_level"`
	StateDir    string `yaml:"state_dir,omitempty"`
	Interval    string `yaml:"interval"`
	MetricsPort int    `yaml:"metrics_port"`
}

type outputFile struct {
	Format string `yaml:"format"`
	Quiet  bool   `yaml:"quiet,omitempty"`
}

type alertsFile struct {
	NotifyOn []string    `yaml:"notify_on"`
	Webhook  webhookFile `yaml:"webhook"`
	Email    *emailFile  `yaml:"email,omitempty"`
	Enabled  bool        `yaml:"enabled"`
}

type emailFile struct {
	To         []string `yaml:"to"`
	SMTPServer string   `yaml:"smtp_server"`
	Username   string   `yaml:"username,omitempty"`
	Password   string   `yaml:"password,omitempty"`
	From       string   `yaml:"from"`
	Subject    string   `yaml:"subject"`
	Timeout    string   `yaml:"timeout"`
	SMTPPort   int      `yaml:"smtp_port"`
	UseTLS     bool     `yaml:"use_tls"`
	Enabled    bool     `yaml:"enabled"`
}

type webhookFile struct {
	Headers    map[string]string `yaml:"headers,omitempty"`
	URL        string            `yaml:"url,omitempty"`
	Type       string            `yaml:"type"`
	Timeout    string            `yaml:"timeout"`
	MaxRetries int               `yaml:"max_retries"`
}

func toFile(cfg *config.Config) configFile {
	f := configFile{
		Targets: cfg.Targets,
		Scan: scanFile{
			Timeout:               cfg.Scan.Timeout.String(),
			Concurrency:           cfg.Scan.Concurrency,
			WarnThresholdDays:     cfg.Scan.WarnThresholdDays,
			CriticalThresholdDays: cfg.Scan.CriticalThresholdDays,
		},
		Agent: agentFile{
			Name:        cfg.Agent.Name,
			LogLevel:    cfg.Agent.LogLevel,
			StateDir:    cfg.Agent.StateDir,
			Interval:    cfg.Agent.Interval.String(),
			MetricsPort: cfg.Agent.MetricsPort,
		},
		Output: outputFile{
			Format: cfg.Output.Format,
			Quiet:  cfg.Output.Quiet,
		},
		Alerts: alertsFile{
			Enabled:  cfg.Alerts.Enabled,
			NotifyOn: cfg.Alerts.NotifyOn,
			Webhook: webhookFile{
				Headers:    cfg.Alerts.Webhook.Headers,
				URL:        cfg.Alerts.Webhook.URL,
				Type:       cfg.Alerts.Webhook.Type,
				Timeout:    cfg.Alerts.Webhook.Timeout.String(),
				MaxRetries: cfg.Alerts.Webhook.MaxRetries,
			},
		},
	}
	if cfg.Scan.RunTimeout > 0 {
		f.Scan.RunTimeout = cfg.Scan.RunTimeout.String()
	}
	if e := cfg.Alerts.Email; e.Enabled {
		f.Alerts.Email = &emailFile{
			Enabled:    true,
			SMTPServer: e.SMTPServer,
			SMTPPort:   e.SMTPPort,
			UseTLS:     e.UseTLS,
			Username:   e.Username,
			Password:   e.Password,
			From:       e.From,
			To:         e.To,
			Subject:    e.Subject,
			Timeout:    e.Timeout.String(),
		}
	}
	return f
}

// MarshalConfig renders cfg as a commented YAML document.
func MarshalConfig(cfg *config.Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(fileHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(toFile(cfg)); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteConfig writes cfg to path, creating parent directories as needed.
// The file may contain webhook URLs, so it is only readable by the owner.
func WriteConfig(cfg *config.Config, path string) error {
	data, err := MarshalConfig(cfg)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// FileExists reports whether path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
