package initcmd

import (
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/certwatch-app/cw-certcheck/internal/config"
	"github.com/certwatch-app/cw-certcheck/internal/ui"
)

// NewWelcomeForm creates the welcome and file configuration form.
func NewWelcomeForm(state *WizardState) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Welcome to cw-certcheck Setup!").
				Description("This wizard will help you create a configuration file for cw-certcheck.\n\n"+
					"You'll need:\n"+
					"  • Hostnames (and ports) of the TLS endpoints you want to check\n"+
					"  • Optionally, a Slack, Teams or generic webhook URL for alerts"),

			huh.NewInput().
				Title("Config file path").
				Description("Where to save the configuration file").
				Placeholder("./certcheck.yaml").
				Value(&state.ConfigPath).
				Validate(ValidateConfigPath),
		),
	).WithTheme(ui.CreateTheme())
}

// NewAgentForm creates the agent configuration form.
func NewAgentForm(state *WizardState) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Agent Configuration").
				Description("Settings used by 'cw-certcheck start'"),

			huh.NewInput().
				Title("Agent Name").
				Description("A unique name to identify this checker (e.g., production-edge)").
				Placeholder("my-checker").
				Value(&state.AgentName).
				Validate(ValidateAgentName),

			huh.NewSelect[string]().
				Title("Check Interval").
				Description("How often to check certificates in daemon mode").
				Options(
					huh.NewOption("15 minutes", "15m"),
					huh.NewOption("1 hour (recommended)", "1h"),
					huh.NewOption("6 hours", "6h"),
					huh.NewOption("24 hours", "24h"),
				).
				Value(&state.Interval),

			huh.NewSelect[string]().
				Title("Log Level").
				Description("Logging verbosity").
				Options(
					huh.NewOption("Debug (verbose)", "debug"),
					huh.NewOption("Info (recommended)", "info"),
					huh.NewOption("Warn", "warn"),
					huh.NewOption("Error (quiet)", "error"),
				).
				Value(&state.LogLevel),

			huh.NewSelect[string]().
				Title("Metrics Server Port").
				Description("Port for /metrics, /healthz and /report. Set to 0 to disable.").
				Options(
					huh.NewOption("9402 (default)", "9402"),
					huh.NewOption("8080", "8080"),
					huh.NewOption("9090", "9090"),
					huh.NewOption("Disabled", "0"),
				).
				Value(&state.MetricsPort),
		),
	).WithTheme(ui.CreateTheme())
}

// NewScanForm creates the scan settings form.
func NewScanForm(state *WizardState) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Scan Settings").
				Description("How certificates are retrieved and evaluated"),

			huh.NewInput().
				Title("Warning Threshold (days)").
				Description("Certificates expiring within this many days are reported as WARN_EXPIRING").
				Placeholder("30").
				Value(&state.WarnDays).
				Validate(ValidateWarnDays),

			huh.NewSelect[string]().
				Title("Connection Timeout").
				Description("Per-target limit for connect and TLS handshake").
				Options(
					huh.NewOption("3 seconds", "3s"),
					huh.NewOption("5 seconds (recommended)", "5s"),
					huh.NewOption("10 seconds", "10s"),
					huh.NewOption("30 seconds", "30s"),
				).
				Value(&state.Timeout),

			huh.NewSelect[int]().
				Title("Concurrency").
				Description("Maximum number of targets checked at the same time").
				Options(
					huh.NewOption("1 (sequential)", 1),
					huh.NewOption("5", 5),
					huh.NewOption("10 (recommended)", 10),
					huh.NewOption("25", 25),
				).
				Value(&state.Concurrency),
		),
	).WithTheme(ui.CreateTheme())
}

// NewTargetForm creates a target entry form.
func NewTargetForm(state *WizardState, targetNum int) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title(fmt.Sprintf("Target #%d", targetNum)).
				Description("Add a TLS endpoint to check"),

			huh.NewInput().
				Title("Hostname").
				Description("The hostname or IP address to check (e.g., api.example.com)").
				Placeholder("api.example.com").
				Value(&state.CurrentTarget.Host).
				Validate(ValidateHostname),

			huh.NewInput().
				Title("Port").
				Description("TLS port (default: 443)").
				Placeholder("443").
				Value(&state.CurrentTarget.PortStr).
				Validate(ValidatePort),

			huh.NewInput().
				Title("Display Name").
				Description("Optional label shown in reports and alerts").
				Placeholder("Public API").
				Value(&state.CurrentTarget.DisplayName).
				Validate(ValidateDisplayName),

			huh.NewInput().
				Title("Server Name").
				Description("Optional SNI and verification name, if different from the hostname").
				Value(&state.CurrentTarget.ServerName).
				Validate(ValidateServerName),

			huh.NewConfirm().
				Title("Add another target?").
				Value(&state.AddAnother).
				Affirmative("Yes").
				Negative("No"),
		),
	).WithTheme(ui.CreateTheme())
}

// NewAlertsForm asks whether webhook alerting should be enabled.
func NewAlertsForm(state *WizardState) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Alerts").
				Description("Send a webhook message when certificates need attention"),

			huh.NewConfirm().
				Title("Enable webhook alerts?").
				Value(&state.EnableAlerts).
				Affirmative("Yes").
				Negative("No"),
		),
	).WithTheme(ui.CreateTheme())
}

// NewWebhookForm creates the webhook destination form.
func NewWebhookForm(state *WizardState) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Webhook Type").
				Description("Payload format of the alert message").
				Options(
					huh.NewOption("Slack", config.WebhookSlack),
					huh.NewOption("Microsoft Teams", config.WebhookTeams),
					huh.NewOption("Generic JSON", config.WebhookGeneric),
				).
				Value(&state.WebhookType),

			huh.NewInput().
				Title("Webhook URL").
				Description("Incoming webhook URL").
				Placeholder("https://hooks.slack.com/services/...").
				Value(&state.WebhookURL).
				Validate(ValidateWebhookURL),
		),
	).WithTheme(ui.CreateTheme())
}

// NewOverwriteConfirmForm creates a form to confirm file overwrite.
func NewOverwriteConfirmForm(state *WizardState, path string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("File '%s' already exists. Overwrite?", path)).
				Description("The existing file will be replaced with the new configuration.").
				Value(&state.OverwriteFile).
				Affirmative("Yes, overwrite").
				Negative("No, cancel"),
		),
	).WithTheme(ui.CreateTheme())
}
