package initcmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/certwatch-app/cw-certcheck/internal/config"
	"github.com/certwatch-app/cw-certcheck/internal/ui"
)

// Wizard manages the interactive configuration wizard.
type Wizard struct {
	state      *WizardState
	outputPath string
}

// NewWizard creates a new wizard instance.
func NewWizard() *Wizard {
	return &Wizard{
		state: NewWizardState(),
	}
}

// SetOutputPath sets the output path (from command line flag).
func (w *Wizard) SetOutputPath(path string) {
	w.outputPath = path
	if path != "" {
		w.state.ConfigPath = path
	}
}

// Run executes the wizard flow.
func (w *Wizard) Run() error {
	// Setup signal handling for graceful Ctrl+C
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		fmt.Println()
		fmt.Println(ui.RenderWarning("Setup canceled by user"))
		os.Exit(0)
	}()

	fmt.Println()
	fmt.Println(ui.RenderHeader("cw-certcheck Setup"))
	fmt.Println()

	// Step 1: Welcome and file configuration
	if err := NewWelcomeForm(w.state).Run(); err != nil {
		return w.handleError(err)
	}

	// Step 2: Check for existing file
	if err := w.handleExistingFile(); err != nil {
		return err
	}

	// Step 3: Targets (loop)
	fmt.Println(ui.RenderSection("Targets to Check"))
	if err := w.runTargetForms(); err != nil {
		return w.handleError(err)
	}

	// Step 4: Scan settings
	fmt.Println(ui.RenderSection("Scan Settings"))
	if err := NewScanForm(w.state).Run(); err != nil {
		return w.handleError(err)
	}

	// Step 5: Agent configuration
	fmt.Println(ui.RenderSection("Agent Configuration"))
	if err := NewAgentForm(w.state).Run(); err != nil {
		return w.handleError(err)
	}

	// Step 6: Alerts
	fmt.Println(ui.RenderSection("Alerts"))
	if err := w.runAlertForms(); err != nil {
		return w.handleError(err)
	}

	// Step 7: Generate and validate config
	cfg, err := w.state.ToConfig()
	if err != nil {
		return w.handleError(fmt.Errorf("failed to create configuration: %w", err))
	}

	if err := cfg.Validate(); err != nil {
		return w.handleValidationError(err)
	}

	// Step 8: Write config file
	fmt.Println()
	if err := WriteConfig(cfg, w.state.ConfigPath); err != nil {
		return w.handleError(err)
	}

	w.showSuccess(cfg)

	return nil
}

func (w *Wizard) runTargetForms() error {
	targetNum := 1

	for {
		w.state.ResetCurrentTarget()

		if err := NewTargetForm(w.state, targetNum).Run(); err != nil {
			return err
		}

		w.state.SaveCurrentTarget()

		if !w.state.AddAnother {
			break
		}

		targetNum++
	}

	if len(w.state.Targets) == 0 {
		return fmt.Errorf("at least one target is required")
	}

	return nil
}

func (w *Wizard) runAlertForms() error {
	if err := NewAlertsForm(w.state).Run(); err != nil {
		return err
	}
	if !w.state.EnableAlerts {
		return nil
	}
	return NewWebhookForm(w.state).Run()
}

func (w *Wizard) handleExistingFile() error {
	if !FileExists(w.state.ConfigPath) {
		return nil
	}

	form := NewOverwriteConfirmForm(w.state, w.state.ConfigPath)
	if err := form.Run(); err != nil {
		return w.handleError(err)
	}

	if !w.state.OverwriteFile {
		fmt.Println(ui.RenderWarning("Setup canceled: file already exists"))
		os.Exit(0)
	}

	return nil
}

func (w *Wizard) handleError(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		fmt.Println()
		fmt.Println(ui.RenderWarning("Setup canceled"))
		os.Exit(0)
	}
	fmt.Println()
	fmt.Println(ui.RenderError(err.Error()))
	return err
}

func (w *Wizard) handleValidationError(err error) error {
	fmt.Println()
	fmt.Println(ui.RenderError("Configuration validation failed:"))
	fmt.Println(ui.RenderError("  " + err.Error()))
	fmt.Println()
	fmt.Println(ui.RenderInfo("Please run 'cw-certcheck init' again with corrected values."))
	return err
}

func (w *Wizard) showSuccess(cfg *config.Config) {
	fmt.Println()
	fmt.Println(ui.RenderSuccess("Config written to " + w.state.ConfigPath))
	fmt.Println(ui.RenderSuccess("Validated successfully"))
	fmt.Println()

	alerts := "disabled"
	if cfg.Alerts.Enabled {
		alerts = cfg.Alerts.Webhook.Type + " webhook"
	}

	summary := strings.Join([]string{
		ui.TitleStyle.Render("Configuration Summary"),
		ui.MutedStyle.Render("Agent:     ") + cfg.Agent.Name,
		ui.MutedStyle.Render("Targets:   ") + fmt.Sprintf("%d", len(cfg.Targets)),
		ui.MutedStyle.Render("Warn at:   ") + fmt.Sprintf("%d days", cfg.Scan.WarnThresholdDays),
		ui.MutedStyle.Render("Interval:  ") + cfg.Agent.Interval.String(),
		ui.MutedStyle.Render("Alerts:    ") + alerts,
	}, "\n")
	fmt.Println(ui.BoxStyle.Render(summary))
	fmt.Println()

	fmt.Println(ui.TitleStyle.Render("Next steps:"))
	fmt.Println()
	fmt.Println("  To validate your config:")
	fmt.Println("    " + ui.RenderCode("cw-certcheck validate -c "+w.state.ConfigPath))
	fmt.Println()
	fmt.Println("  To run a single check:")
	fmt.Println("    " + ui.RenderCode("cw-certcheck check -c "+w.state.ConfigPath))
	fmt.Println()
	fmt.Println("  To start monitoring:")
	fmt.Println("    " + ui.RenderCode("cw-certcheck start -c "+w.state.ConfigPath))
	fmt.Println()
}

// Environment variables read by RunNonInteractive
const (
	EnvTargets     = "CERTCHECK_INIT_TARGETS"
	EnvAgentName   = "CERTCHECK_AGENT_NAME"
	EnvInterval    = "CERTCHECK_AGENT_INTERVAL"
	EnvLogLevel    = "CERTCHECK_AGENT_LOG_LEVEL"
	EnvWarnDays    = "CERTCHECK_SCAN_WARN_THRESHOLD_DAYS"
	EnvWebhookURL  = "CERTCHECK_ALERTS_WEBHOOK_URL"
	EnvWebhookType = "CERTCHECK_ALERTS_WEBHOOK_TYPE"
)

// StateFromEnv builds wizard state from environment variables.
func StateFromEnv(outputPath string) (*WizardState, error) {
	state := NewWizardState()
	state.ConfigPath = outputPath

	if name := os.Getenv(EnvAgentName); name != "" {
		state.AgentName = name
	} else {
		state.AgentName = "default-checker"
	}

	if interval := os.Getenv(EnvInterval); interval != "" {
		state.Interval = interval
	}

	if level := os.Getenv(EnvLogLevel); level != "" {
		state.LogLevel = level
	}

	if days := os.Getenv(EnvWarnDays); days != "" {
		state.WarnDays = days
	}

	if webhook := os.Getenv(EnvWebhookURL); webhook != "" {
		state.EnableAlerts = true
		state.WebhookURL = webhook
		if t := os.Getenv(EnvWebhookType); t != "" {
			state.WebhookType = t
		}
	}

	state.Targets = ParseTargetList(os.Getenv(EnvTargets))
	if len(state.Targets) == 0 {
		return nil, fmt.Errorf("%s environment variable is required (comma-separated host or host:port)", EnvTargets)
	}

	return state, nil
}

// RunNonInteractive runs the wizard in non-interactive mode using environment variables.
func RunNonInteractive(outputPath string) error {
	state, err := StateFromEnv(outputPath)
	if err != nil {
		return err
	}

	// Convert and validate
	cfg, err := state.ToConfig()
	if err != nil {
		return fmt.Errorf("failed to create configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if err := WriteConfig(cfg, state.ConfigPath); err != nil {
		return err
	}

	fmt.Println(ui.RenderSuccess("Config written to " + state.ConfigPath))
	return nil
}
