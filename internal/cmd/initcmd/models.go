// Package initcmd provides the interactive init command wizard.
package initcmd

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/certwatch-app/cw-certcheck/internal/config"
	"github.com/certwatch-app/cw-certcheck/internal/policy"
	"github.com/certwatch-app/cw-certcheck/internal/report"
	"github.com/certwatch-app/cw-certcheck/internal/scanner"
	"github.com/certwatch-app/cw-certcheck/internal/types"
)

// WizardState holds all collected input during the wizard.
type WizardState struct {
	// Output configuration
	ConfigPath    string
	OverwriteFile bool

	// Agent configuration
	AgentName   string
	Interval    string
	LogLevel    string
	MetricsPort string

	// Scan configuration
	WarnDays    string
	Timeout     string
	Concurrency int

	// Alert configuration
	WebhookType  string
	WebhookURL   string
	EnableAlerts bool

	// Target configuration
	Targets       []TargetInput
	CurrentTarget TargetInput
	AddAnother    bool
}

// TargetInput represents user input for a target endpoint.
type TargetInput struct {
	Host        string
	PortStr     string
	DisplayName string
	ServerName  string
}

// NewWizardState creates a new WizardState with sensible defaults.
func NewWizardState() *WizardState {
	return &WizardState{
		ConfigPath:  "./certcheck.yaml",
		AgentName:   "",
		Interval:    "1h",
		LogLevel:    "info",
		MetricsPort: "9402",
		WarnDays:    "30",
		Timeout:     scanner.DefaultTimeout.String(),
		Concurrency: scanner.DefaultConcurrency,
		WebhookType: config.WebhookSlack,
		Targets:     make([]TargetInput, 0),
		CurrentTarget: TargetInput{
			PortStr: "443",
		},
	}
}

// ToConfig converts the wizard state to a config.Config struct.
func (s *WizardState) ToConfig() (*config.Config, error) {
	interval, err := time.ParseDuration(s.Interval)
	if err != nil {
		return nil, fmt.Errorf("invalid interval: %w", err)
	}

	timeout, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout: %w", err)
	}

	warnDays, err := strconv.Atoi(strings.TrimSpace(s.WarnDays))
	if err != nil {
		return nil, fmt.Errorf("invalid warning threshold: %w", err)
	}

	metricsPort := 0
	if s.MetricsPort != "" {
		if metricsPort, err = strconv.Atoi(s.MetricsPort); err != nil {
			return nil, fmt.Errorf("invalid metrics port: %w", err)
		}
	}

	targets := make([]config.TargetConfig, 0, len(s.Targets))
	for _, t := range s.Targets {
		port := types.DefaultPort
		if t.PortStr != "" {
			p, err := strconv.Atoi(t.PortStr)
			if err == nil {
				port = p
			}
		}

		targets = append(targets, config.TargetConfig{
			Host:        strings.TrimSpace(t.Host),
			Port:        port,
			DisplayName: strings.TrimSpace(t.DisplayName),
			ServerName:  strings.TrimSpace(t.ServerName),
		})
	}

	cfg := &config.Config{
		Targets: targets,
		Scan: config.ScanConfig{
			Timeout:               timeout,
			Concurrency:           s.Concurrency,
			WarnThresholdDays:     warnDays,
			CriticalThresholdDays: max(min(policy.DefaultCriticalThresholdDays, warnDays), 0),
		},
		Agent: config.AgentConfig{
			Name:        s.AgentName,
			LogLevel:    s.LogLevel,
			Interval:    interval,
			MetricsPort: metricsPort,
		},
		Output: config.OutputConfig{
			Format: report.FormatTable,
		},
		Alerts: config.AlertsConfig{
			NotifyOn: []string{
				string(types.StatusWarnExpiring),
				string(types.StatusExpired),
				string(types.StatusError),
			},
			Webhook: config.WebhookConfig{
				Type:       s.WebhookType,
				Timeout:    10 * time.Second,
				MaxRetries: 3,
			},
		},
	}
	if s.EnableAlerts {
		cfg.Alerts.Enabled = true
		cfg.Alerts.Webhook.URL = strings.TrimSpace(s.WebhookURL)
	}

	return cfg, nil
}

// ParseTargetList parses a comma-separated list of host or host:port entries.
func ParseTargetList(list string) []TargetInput {
	var targets []TargetInput
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		input := TargetInput{Host: entry, PortStr: "443"}
		if host, port, err := net.SplitHostPort(entry); err == nil {
			input.Host = host
			input.PortStr = port
		}
		targets = append(targets, input)
	}
	return targets
}

// ResetCurrentTarget resets the current target input for the next entry.
func (s *WizardState) ResetCurrentTarget() {
	s.CurrentTarget = TargetInput{
		PortStr: "443",
	}
	s.AddAnother = false
}

// SaveCurrentTarget saves the current target to the list.
func (s *WizardState) SaveCurrentTarget() {
	if s.CurrentTarget.Host != "" {
		s.Targets = append(s.Targets, s.CurrentTarget)
	}
}
