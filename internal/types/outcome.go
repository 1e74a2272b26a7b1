package types

import "time"

// FailureKind classifies why a scan did not produce a certificate
type FailureKind string

// FailureKind values
const (
	FailureDNS              FailureKind = "DNS_FAILURE"
	FailureConnRefused      FailureKind = "CONNECTION_REFUSED"
	FailureConnTimeout      FailureKind = "CONNECTION_TIMEOUT"
	FailureHandshake        FailureKind = "TLS_HANDSHAKE_FAILURE"
	FailureHostnameMismatch FailureKind = "HOSTNAME_MISMATCH"
	FailureTimeout          FailureKind = "TIMEOUT"
	FailureUnknown          FailureKind = "UNKNOWN"
)

// FailureKinds lists every failure kind, in a stable order
var FailureKinds = []FailureKind{
	FailureDNS,
	FailureConnRefused,
	FailureConnTimeout,
	FailureHandshake,
	FailureHostnameMismatch,
	FailureTimeout,
	FailureUnknown,
}

// Failure describes a failed scan
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// Outcome is either a certificate or a failure, never both.
// Use Succeeded and Failed to build one.
type Outcome struct {
	Certificate *CertificateInfo `json:"certificate,omitempty"`
	Failure     *Failure         `json:"failure,omitempty"`
}

// Succeeded returns a successful outcome carrying info
func Succeeded(info *CertificateInfo) Outcome {
	if info == nil {
		return Failed(FailureUnknown, "no certificate information")
	}
	return Outcome{Certificate: info}
}

// Failed returns a failed outcome
func Failed(kind FailureKind, message string) Outcome {
	return Outcome{Failure: &Failure{Kind: kind, Message: message}}
}

// IsSuccess reports whether the outcome carries a certificate
func (o Outcome) IsSuccess() bool {
	return o.Failure == nil && o.Certificate != nil
}

// Status is the policy classification of a scan result
type Status string

// Status values, ordered from healthy to failing
const (
	StatusOK           Status = "OK"
	StatusWarnExpiring Status = "WARN_EXPIRING"
	StatusExpired      Status = "EXPIRED"
	StatusError        Status = "ERROR"
)

// Statuses lists every status, in a stable order
var Statuses = []Status{StatusOK, StatusWarnExpiring, StatusExpired, StatusError}

// Verdict is the result of evaluating an outcome against policy.
// DaysRemaining is negative once the certificate has expired and zero
// when no certificate was retrieved.
type Verdict struct {
	Status        Status `json:"status"`
	Reason        string `json:"reason,omitempty"`
	DaysRemaining int    `json:"days_remaining"`
}

// ScanResult is the per-target unit of a Report
type ScanResult struct {
	ScannedAt time.Time     `json:"scanned_at"`
	Outcome   Outcome       `json:"outcome"`
	Target    Target        `json:"target"`
	Verdict   Verdict       `json:"verdict"`
	Duration  time.Duration `json:"duration_ns"`
}

// Report holds one ScanResult per input target, in input order
type Report struct {
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	RunID      string       `json:"run_id"`
	Results    []ScanResult `json:"results"`
}

// Summary returns the number of results per status
func (r *Report) Summary() map[Status]int {
	counts := make(map[Status]int, len(Statuses))
	for _, s := range Statuses {
		counts[s] = 0
	}
	for i := range r.Results {
		counts[r.Results[i].Verdict.Status]++
	}
	return counts
}

// Duration returns how long the run took
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
