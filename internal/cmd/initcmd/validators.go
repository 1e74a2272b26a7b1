package initcmd

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/certwatch-app/cw-certcheck/internal/types"
)

// ValidateConfigPath validates the output file path.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is required")
	}

	// Check if directory exists or can be created
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		info, err := os.Stat(dir)
		if err != nil {
			if os.IsNotExist(err) {
				// Directory doesn't exist, check if we can create it
				return nil // We'll create it during write
			}
			return fmt.Errorf("cannot access directory: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("'%s' is not a directory", dir)
		}
	}

	return nil
}

// ValidateAgentName validates the agent name.
func ValidateAgentName(name string) error {
	if name == "" {
		return fmt.Errorf("agent name is required")
	}

	if len(name) > 100 {
		return fmt.Errorf("name must be at most 100 characters")
	}

	// Check for invalid characters
	if strings.ContainsAny(name, "\n\r\t") {
		return fmt.Errorf("name cannot contain newlines or tabs")
	}

	return nil
}

// ValidateHostname validates a target hostname or IP address.
func ValidateHostname(hostname string) error {
	if strings.Contains(hostname, " ") {
		return fmt.Errorf("hostname cannot contain spaces")
	}

	if strings.Contains(hostname, "://") {
		return fmt.Errorf("hostname should not include protocol (use 'example.com' not 'https://example.com')")
	}

	_, err := types.NormalizeHost(hostname)
	return err
}

// ValidateServerName validates the optional SNI override.
func ValidateServerName(name string) error {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	return ValidateHostname(name)
}

// ValidatePort validates a port number string.
func ValidatePort(portStr string) error {
	if portStr == "" {
		return nil // Will use default 443
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("port must be a number")
	}

	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}

	return nil
}

// ValidateDisplayName validates the optional display name.
func ValidateDisplayName(name string) error {
	if len(name) > 100 {
		return fmt.Errorf("display name must be at most 100 characters")
	}
	return nil
}

// ValidateWarnDays validates the expiry warning threshold.
func ValidateWarnDays(days string) error {
	n, err := strconv.Atoi(strings.TrimSpace(days))
	if err != nil {
		return fmt.Errorf("threshold must be a whole number of days")
	}

	if n < 0 || n > 3650 {
		return fmt.Errorf("threshold must be between 0 and 3650 days")
	}

	return nil
}

// ValidateDuration validates a Go duration string such as "5s" or "1h".
func ValidateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration (use e.g. 30s, 5m, 1h)")
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive")
	}
	return nil
}

// ValidateWebhookURL validates the alert webhook URL.
func ValidateWebhookURL(webhook string) error {
	if webhook == "" {
		return fmt.Errorf("webhook URL is required")
	}

	u, err := url.Parse(webhook)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("URL must use http or https")
	}

	if u.Host == "" {
		return fmt.Errorf("URL must include a host")
	}

	return nil
}
