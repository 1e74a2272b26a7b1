package scanner

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/certwatch-app/cw-certcheck/internal/types"
)

// Inspector retrieves the certificate served by a single target
type Inspector interface {
	Inspect(ctx context.Context, target types.Target, timeout time.Duration) types.Outcome
}

// TLSInspector performs one TLS handshake per call.
// Fields are ordered for optimal memory alignment
type TLSInspector struct {
	logger *zap.Logger
	dialer *net.Dialer
	now    func() time.Time
}

// NewTLSInspector creates a TLSInspector
func NewTLSInspector(logger *zap.Logger) *TLSInspector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TLSInspector{
		logger: logger,
		dialer: &net.Dialer{},
		now:    time.Now,
	}
}

// Inspect resolves, connects and handshakes with target within timeout.
// It never returns an error: every failure is reported as a failed Outcome.
func (i *TLSInspector) Inspect(ctx context.Context, target types.Target, timeout time.Duration) (outcome types.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = types.Failed(types.FailureUnknown, fmt.Sprintf("inspector panic: %v", r))
		}
	}()

	targetCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rawConn, err := i.dialer.DialContext(targetCtx, "tcp", target.Address())
	if err != nil {
		kind := classifyError(ctx, targetCtx, phaseDial, err)
		i.logger.Debug("connect failed",
			zap.String("target", target.Key()),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return types.Failed(kind, fmt.Sprintf("connection failed: %v", err))
	}

	// Chain trust is not verified here: expired or not yet valid
	// certificates must still be retrieved so the policy can classify them.
	expected := target.ExpectedName()
	conn := tls.Client(rawConn, &tls.Config{
		ServerName:         sniName(expected),
		InsecureSkipVerify: true, //nolint:gosec // certificate is inspected, not trusted
		MinVersion:         tls.VersionTLS10,
	})
	defer conn.Close()

	if err := conn.HandshakeContext(targetCtx); err != nil {
		kind := classifyError(ctx, targetCtx, phaseHandshake, err)
		i.logger.Debug("handshake failed",
			zap.String("target", target.Key()),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return types.Failed(kind, fmt.Sprintf("handshake failed: %v", err))
	}

	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return types.Failed(types.FailureHandshake, "no certificates received")
	}

	leaf := state.PeerCertificates[0]
	if err := leaf.VerifyHostname(expected); err != nil {
		return types.Failed(types.FailureHostnameMismatch, err.Error())
	}

	info := parseCertificate(leaf)
	info.Chain = parseChain(state.PeerCertificates, i.now())

	i.logger.Debug("scan successful",
		zap.String("target", target.Key()),
		zap.String("subject", info.Subject),
		zap.Time("not_after", info.NotAfter),
	)

	return types.Succeeded(info)
}

// sniName returns the SNI value for name; IP literals are not sent as SNI
func sniName(name string) string {
	if net.ParseIP(name) != nil {
		return ""
	}
	return name
}

func parseCertificate(cert *x509.Certificate) *types.CertificateInfo {
	fingerprint := sha256.Sum256(cert.Raw)

	issuerOrg := ""
	if len(cert.Issuer.Organization) > 0 {
		issuerOrg = cert.Issuer.Organization[0]
	}

	sanList := make([]string, 0, len(cert.DNSNames)+len(cert.IPAddresses)+len(cert.EmailAddresses)+len(cert.URIs))
	sanList = append(sanList, cert.DNSNames...)
	for _, ip := range cert.IPAddresses {
		sanList = append(sanList, ip.String())
	}
	sanList = append(sanList, cert.EmailAddresses...)
	for _, u := range cert.URIs {
		sanList = append(sanList, u.String())
	}

	serial := ""
	if cert.SerialNumber != nil {
		serial = cert.SerialNumber.String()
	}

	return &types.CertificateInfo{
		Subject:            cert.Subject.CommonName,
		Issuer:             cert.Issuer.CommonName,
		IssuerOrg:          issuerOrg,
		SerialNumber:       serial,
		FingerprintSHA256:  hex.EncodeToString(fingerprint[:]),
		SignatureAlgorithm: cert.SignatureAlgorithm.String(),
		NotBefore:          cert.NotBefore.UTC(),
		NotAfter:           cert.NotAfter.UTC(),
		SANList:            sanList,
	}
}

func parseChain(certs []*x509.Certificate, now time.Time) *types.ChainInfo {
	chain := &types.ChainInfo{
		Issues:       make([]types.ChainIssue, 0),
		Certificates: make([]types.ChainCertificate, 0, len(certs)),
	}

	for i, cert := range certs {
		chain.Certificates = append(chain.Certificates, types.ChainCertificate{
			Subject:   cert.Subject.CommonName,
			Issuer:    cert.Issuer.CommonName,
			NotBefore: cert.NotBefore.UTC(),
			NotAfter:  cert.NotAfter.UTC(),
		})

		// The leaf's own validity is the policy's concern
		if i > 0 && now.After(cert.NotAfter) {
			chain.Issues = append(chain.Issues, types.ChainIssue{
				Type:             types.ChainIssueExpired,
				Message:          fmt.Sprintf("Chain certificate expired on %s", cert.NotAfter.Format(time.RFC3339)),
				CertificateIndex: i,
			})
		}
		if i > 0 && now.Before(cert.NotBefore) {
			chain.Issues = append(chain.Issues, types.ChainIssue{
				Type:             types.ChainIssueNotYetValid,
				Message:          fmt.Sprintf("Chain certificate not valid until %s", cert.NotBefore.Format(time.RFC3339)),
				CertificateIndex: i,
			})
		}

		if i == 0 && cert.Subject.String() == cert.Issuer.String() {
			chain.Issues = append(chain.Issues, types.ChainIssue{
				Type:             types.ChainIssueSelfSigned,
				Message:          "Leaf certificate is self-signed",
				CertificateIndex: i,
			})
		}

		if isWeakSignature(cert.SignatureAlgorithm.String()) {
			chain.Issues = append(chain.Issues, types.ChainIssue{
				Type:             types.ChainIssueWeakCrypto,
				Message:          fmt.Sprintf("Weak signature algorithm: %s", cert.SignatureAlgorithm.String()),
				CertificateIndex: i,
			})
		}
	}

	return chain
}

func isWeakSignature(algo string) bool {
	weak := []string{"MD2", "MD5", "SHA1"}
	algo = strings.ToUpper(algo)
	for _, w := range weak {
		if strings.Contains(algo, w) {
			return true
		}
	}
	return false
}
