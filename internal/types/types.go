// Package types holds the data model shared by the scanner, the policy
// evaluator and the reporters.
package types

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// DefaultPort is used when a target does not specify one
const DefaultPort = 443

// Target is one endpoint to check. Targets are identified by host and port.
type Target struct {
	Host        string `json:"host"`
	DisplayName string `json:"display_name,omitempty"`
	// ServerName overrides the name sent as SNI and verified against the
	// certificate. Empty means Host.
	ServerName string `json:"server_name,omitempty"`
	Port       int    `json:"port"`
}

// Key returns the host:port identity of the target
func (t Target) Key() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// Address returns the dialable address of the target
func (t Target) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// ExpectedName returns the name the certificate must cover
func (t Target) ExpectedName() string {
	if t.ServerName != "" {
		return t.ServerName
	}
	return t.Host
}

// Name returns the display name, falling back to host[:port]
func (t Target) Name() string {
	if t.DisplayName != "" {
		return t.DisplayName
	}
	if t.Port == DefaultPort {
		return t.Host
	}
	return t.Key()
}

// CertificateInfo contains the attributes extracted from a leaf certificate
type CertificateInfo struct {
	NotBefore          time.Time  `json:"not_before"`
	NotAfter           time.Time  `json:"not_after"`
	Chain              *ChainInfo `json:"chain,omitempty"`
	Subject            string     `json:"subject"`
	Issuer             string     `json:"issuer"`
	IssuerOrg          string     `json:"issuer_org,omitempty"`
	SerialNumber       string     `json:"serial_number"`
	FingerprintSHA256  string     `json:"fingerprint_sha256"`
	SignatureAlgorithm string     `json:"signature_algorithm,omitempty"`
	SANList            []string   `json:"san_list"`
}

// ChainInfo describes the certificates presented after the leaf.
// Issues are informational and do not affect the verdict.
type ChainInfo struct {
	Issues       []ChainIssue       `json:"issues"`
	Certificates []ChainCertificate `json:"certificates"`
}

// ChainIssue represents an issue with the presented certificate chain
type ChainIssue struct {
	Type             string `json:"type"`
	Message          string `json:"message"`
	CertificateIndex int    `json:"certificate_index,omitempty"`
}

// ChainCertificate represents a certificate in the chain
type ChainCertificate struct {
	Subject   string    `json:"subject"`
	Issuer    string    `json:"issuer"`
	NotBefore time.Time `json:"not_before"`
	NotAfter  time.Time `json:"not_after"`
}

// Chain issue types
const (
	ChainIssueExpired     = "expired"
	ChainIssueNotYetValid = "not_yet_valid"
	ChainIssueSelfSigned  = "self_signed"
	ChainIssueWeakCrypto  = "weak_crypto"
)
