package scanner

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/certwatch-app/cw-certcheck/internal/types"
)

// newTestCertificate creates a self-signed certificate valid for
// localhost and 127.0.0.1
func newTestCertificate(t *testing.T, notBefore, notAfter time.Time) tls.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(4242),
		Subject:      pkix.Name{CommonName: "localhost", Organization: []string{"CertWatch Test"}},
		Issuer:       pkix.Name{CommonName: "localhost"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate() error = %v", err)
	}

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

// startTLSServer serves cert on a loopback port until the test ends
func startTLSServer(t *testing.T, cert tls.Certificate) types.Target {
	t.Helper()

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{cert}})
	if err != nil {
		t.Fatalf("tls.Listen() error = %v", err)
	}

	serve(t, ln, func(conn net.Conn) {
		//nolint:errcheck // the client decides how the handshake ends
		conn.(*tls.Conn).Handshake()
	})

	return targetFor(t, ln.Addr())
}

// startRawServer accepts TCP connections and hands them to handle
func startRawServer(t *testing.T, handle func(net.Conn)) types.Target {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}

	serve(t, ln, handle)
	return targetFor(t, ln.Addr())
}

// startHangingServer accepts connections and never answers the handshake
func startHangingServer(t *testing.T) types.Target {
	t.Helper()

	release := make(chan struct{})
	target := startRawServer(t, func(net.Conn) {
		<-release
	})
	// Registered after the server so it runs first
	t.Cleanup(func() { close(release) })

	return target
}

func serve(t *testing.T, ln net.Listener, handle func(net.Conn)) {
	var wg sync.WaitGroup
	t.Cleanup(func() {
		ln.Close()
		wg.Wait()
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer conn.Close()
				handle(conn)
			}()
		}
	}()
}

// closedPort returns a loopback target nothing listens on
func closedPort(t *testing.T) types.Target {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	target := targetFor(t, ln.Addr())
	ln.Close()
	return target
}

func targetFor(t *testing.T, addr net.Addr) types.Target {
	t.Helper()

	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		t.Fatalf("SplitHostPort() error = %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("Atoi() error = %v", err)
	}
	return types.Target{Host: host, Port: port}
}

// inspectorFunc adapts a function to the Inspector interface
type inspectorFunc func(ctx context.Context, target types.Target, timeout time.Duration) types.Outcome

func (f inspectorFunc) Inspect(ctx context.Context, target types.Target, timeout time.Duration) types.Outcome {
	return f(ctx, target, timeout)
}

func validCert(now time.Time, daysLeft int) types.Outcome {
	return types.Succeeded(&types.CertificateInfo{
		Subject:   "example.com",
		NotBefore: now.Add(-30 * 24 * time.Hour),
		NotAfter:  now.Add(time.Duration(daysLeft)*24*time.Hour + time.Hour),
		SANList:   []string{"example.com"},
	})
}

func makeTargets(n int) []types.Target {
	targets := make([]types.Target, n)
	for i := range targets {
		targets[i] = types.Target{Host: "host" + strconv.Itoa(i) + ".example", Port: 443}
	}
	return targets
}
