// Package policy maps scan outcomes to health verdicts.
package policy

import (
	"fmt"
	"time"

	"github.com/certwatch-app/cw-certcheck/internal/types"
)

// Threshold defaults used when none are configured
const (
	DefaultWarnThresholdDays     = 30
	DefaultCriticalThresholdDays = 7
)

const secondsPerDay = 24 * 60 * 60

// Evaluate classifies outcome at time now.
//
// Failed scans are always ERROR. A certificate whose validity window has not
// started yet is ERROR as well, since that points at a misconfiguration rather
// than expiry. Otherwise the whole days left until NotAfter decide between
// EXPIRED (< 0), WARN_EXPIRING (0..warnThresholdDays) and OK. A negative
// threshold disables WARN_EXPIRING.
func Evaluate(outcome types.Outcome, now time.Time, warnThresholdDays int) types.Verdict {
	if !outcome.IsSuccess() {
		reason := "scan failed"
		if outcome.Failure != nil {
			reason = fmt.Sprintf("%s: %s", outcome.Failure.Kind, outcome.Failure.Message)
		}
		return types.Verdict{Status: types.StatusError, Reason: reason}
	}

	cert := outcome.Certificate
	days := DaysRemaining(cert.NotAfter, now)

	if now.Before(cert.NotBefore) {
		return types.Verdict{
			Status:        types.StatusError,
			DaysRemaining: days,
			Reason:        fmt.Sprintf("certificate not valid until %s", cert.NotBefore.UTC().Format(time.RFC3339)),
		}
	}

	switch {
	case days < 0:
		return types.Verdict{
			Status:        types.StatusExpired,
			DaysRemaining: days,
			Reason:        fmt.Sprintf("certificate expired on %s", cert.NotAfter.UTC().Format(time.RFC3339)),
		}
	case days <= warnThresholdDays:
		return types.Verdict{
			Status:        types.StatusWarnExpiring,
			DaysRemaining: days,
			Reason:        fmt.Sprintf("certificate expires in %d days", days),
		}
	default:
		return types.Verdict{Status: types.StatusOK, DaysRemaining: days}
	}
}

// IsCritical reports whether v needs urgent attention: the certificate has
// expired, or it is expiring within criticalDays.
func IsCritical(v types.Verdict, criticalDays int) bool {
	switch v.Status {
	case types.StatusExpired:
		return true
	case types.StatusWarnExpiring:
		return v.DaysRemaining <= criticalDays
	default:
		return false
	}
}

// DaysRemaining returns floor((notAfter - now) / 24h).
//
// Computed on Unix seconds since time.Duration saturates at about 292 years.
func DaysRemaining(notAfter, now time.Time) int {
	secs := notAfter.Unix() - now.Unix()
	if notAfter.Nanosecond() < now.Nanosecond() {
		secs--
	}
	days := secs / secondsPerDay
	if secs%secondsPerDay != 0 && secs < 0 {
		days--
	}
	return int(days)
}
