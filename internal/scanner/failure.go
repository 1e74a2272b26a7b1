package scanner

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/certwatch-app/cw-certcheck/internal/types"
)

// phase identifies the step of an inspection that failed
type phase int

const (
	phaseDial phase = iota
	phaseHandshake
)

// classifyError maps a dial or handshake error to a failure kind.
// runCtx is the caller's context; targetCtx carries the per-target deadline.
func classifyError(runCtx, targetCtx context.Context, p phase, err error) types.FailureKind {
	// The run deadline (or cancellation) takes precedence over whatever the
	// network stack reported
	if runCtx.Err() != nil {
		return types.FailureTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout && targetCtx.Err() != nil {
			return types.FailureTimeout
		}
		return types.FailureDNS
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return types.FailureConnRefused
	}

	if isTimeout(err) || targetCtx.Err() != nil {
		if p == phaseDial {
			return types.FailureConnTimeout
		}
		return types.FailureTimeout
	}

	if p == phaseHandshake && isHandshakeError(err) {
		return types.FailureHandshake
	}

	return categorizeMessage(err.Error())
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isHandshakeError(err error) bool {
	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return true
	}
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}
	var parseErr x509.CertificateInvalidError
	if errors.As(err, &parseErr) {
		return true
	}
	// A server that hangs up mid-handshake usually does not speak TLS on this
	// port or rejected our hello
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	return strings.HasPrefix(err.Error(), "tls:") || strings.Contains(err.Error(), "remote error: tls")
}

// categorizeMessage is the last resort for errors that carry no usable type
func categorizeMessage(message string) types.FailureKind {
	lower := strings.ToLower(message)

	switch {
	case strings.Contains(lower, "no such host"),
		strings.Contains(lower, "server misbehaving"):
		return types.FailureDNS
	case strings.Contains(lower, "connection refused"):
		return types.FailureConnRefused
	case strings.Contains(lower, "i/o timeout"),
		strings.Contains(lower, "deadline exceeded"):
		return types.FailureTimeout
	case strings.Contains(lower, "tls:"),
		strings.Contains(lower, "handshake"),
		strings.Contains(lower, "x509:"):
		return types.FailureHandshake
	}
	return types.FailureUnknown
}
