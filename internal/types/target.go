package types

import (
	"fmt"
	"net"
	"strings"

	"golang.org/x/net/idna"
)

// hostProfile is the lookup profile without STD3 ASCII rules, so that
// underscores used by internal service names pass. checkLabels restores the
// remaining restrictions.
var hostProfile = idna.New(
	idna.MapForLookup(),
	idna.BidiRule(),
	idna.StrictDomainName(false),
)

const maxLabelLength = 63

// NewTarget builds a normalised Target. Hostnames are trimmed, lower-cased and
// converted to their ASCII (punycode) form; IP literals are kept as is.
func NewTarget(host string, port int, displayName, serverName string) (Target, error) {
	h, err := NormalizeHost(host)
	if err != nil {
		return Target{}, err
	}

	if port == 0 {
		port = DefaultPort
	}
	if port < 1 || port > 65535 {
		return Target{}, fmt.Errorf("port %d must be between 1 and 65535", port)
	}

	sn := strings.TrimSpace(serverName)
	if sn != "" {
		if sn, err = NormalizeHost(sn); err != nil {
			return Target{}, fmt.Errorf("server_name: %w", err)
		}
	}

	return Target{
		Host:        h,
		Port:        port,
		DisplayName: strings.TrimSpace(displayName),
		ServerName:  sn,
	}, nil
}

// NormalizeHost validates a hostname or IP literal and returns its canonical form
func NormalizeHost(host string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", fmt.Errorf("hostname is required")
	}
	if strings.Contains(host, "://") {
		return "", fmt.Errorf("hostname %q should not include a protocol", host)
	}

	// Bracketed IPv6 literals are accepted as a convenience
	trimmed := strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if ip := net.ParseIP(trimmed); ip != nil {
		return ip.String(), nil
	}

	ascii, err := hostProfile.ToASCII(strings.TrimSuffix(host, "."))
	if err != nil {
		return "", fmt.Errorf("invalid hostname %q: %w", host, err)
	}
	ascii = strings.ToLower(ascii)
	if err := checkLabels(ascii); err != nil {
		return "", fmt.Errorf("invalid hostname %q: %w", host, err)
	}
	return ascii, nil
}

// checkLabels accepts letters, digits, hyphens and underscores in non-empty
// labels of at most 63 bytes
func checkLabels(host string) error {
	for _, label := range strings.Split(host, ".") {
		if label == "" {
			return fmt.Errorf("empty label")
		}
		if len(label) > maxLabelLength {
			return fmt.Errorf("label %q is longer than %d bytes", label, maxLabelLength)
		}
		for _, c := range label {
			switch {
			case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
			default:
				return fmt.Errorf("disallowed character %q", c)
			}
		}
	}
	return nil
}
