package notify

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"github.com/certwatch-app/cw-certcheck/internal/config"
	"github.com/certwatch-app/cw-certcheck/internal/types"
)

// smtpSession is one message received by fakeSMTP
type smtpSession struct {
	auth string
	from string
	rcpt []string
	data string
}

// fakeSMTP is a minimal plaintext SMTP server that records what it receives
type fakeSMTP struct {
	ln         net.Listener
	rejectRcpt string
	sessions   []smtpSession
	mu         sync.Mutex
	offerAuth  bool
}

func newFakeSMTP(t *testing.T, configure func(*fakeSMTP)) *fakeSMTP {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	s := &fakeSMTP{ln: ln}
	if configure != nil {
		configure(s)
	}
	go s.serve()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *fakeSMTP) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeSMTP) received() []smtpSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]smtpSession(nil), s.sessions...)
}

func (s *fakeSMTP) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeSMTP) handle(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	r := bufio.NewReader(conn)
	reply := func(line string) {
		fmt.Fprintf(conn, "%s\r\n", line)
	}

	var sess smtpSession
	reply("220 localhost ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		cmd := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			if s.offerAuth {
				reply("250-localhost")
				reply("250 AUTH PLAIN")
			} else {
				reply("250 localhost")
			}
		case strings.HasPrefix(cmd, "AUTH PLAIN"):
			sess.auth = strings.TrimSpace(line[len("AUTH PLAIN"):])
			reply("235 2.7.0 Authentication successful")
		case strings.HasPrefix(cmd, "MAIL FROM:"):
			sess.from = angleAddr(line)
			reply("250 OK")
		case strings.HasPrefix(cmd, "RCPT TO:"):
			addr := angleAddr(line)
			if addr == s.rejectRcpt {
				reply("550 5.1.1 no such user")
				continue
			}
			sess.rcpt = append(sess.rcpt, addr)
			reply("250 OK")
		case cmd == "DATA":
			reply("354 end data with <CR><LF>.<CR><LF>")
			var b strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if strings.TrimRight(l, "\r\n") == "." {
					break
				}
				b.WriteString(l)
			}
			sess.data = b.String()
			s.mu.Lock()
			s.sessions = append(s.sessions, sess)
			s.mu.Unlock()
			sess = smtpSession{auth: sess.auth}
			reply("250 OK queued")
		case cmd == "RSET":
			sess = smtpSession{auth: sess.auth}
			reply("250 OK")
		case cmd == "QUIT":
			reply("221 bye")
			return
		default:
			reply("250 OK")
		}
	}
}

func angleAddr(line string) string {
	start := strings.Index(line, "<")
	end := strings.Index(line, ">")
	if start < 0 || end < start {
		return ""
	}
	return line[start+1 : end]
}

// unfold removes quoted-printable soft line breaks
func unfold(data string) string {
	return strings.ReplaceAll(data, "=\r\n", "")
}

func testEmailConfig(port int) config.EmailConfig {
	return config.EmailConfig{
		Enabled:    true,
		SMTPServer: "127.0.0.1",
		SMTPPort:   port,
		From:       "certcheck@example.com",
		To:         []string{"ops@example.com", "oncall@example.com"},
		Subject:    "Certificates need attention",
		Timeout:    5 * time.Second,
	}
}

func TestEmailNotifier_Sends(t *testing.T) {
	srv := newFakeSMTP(t, nil)

	alert := sampleAlert()
	alert.CriticalDays = 7

	n := NewEmailNotifier(testEmailConfig(srv.port()), logr.Discard())
	if err := n.Notify(context.Background(), alert); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	got := srv.received()
	if len(got) != 1 {
		t.Fatalf("messages received = %v, want 1", len(got))
	}
	msg := got[0]

	if msg.from != "certcheck@example.com" {
		t.Errorf("MAIL FROM = %v, want certcheck@example.com", msg.from)
	}
	if len(msg.rcpt) != 2 || msg.rcpt[0] != "ops@example.com" || msg.rcpt[1] != "oncall@example.com" {
		t.Errorf("RCPT TO = %v", msg.rcpt)
	}
	if msg.auth != "" {
		t.Errorf("AUTH = %q, want none", msg.auth)
	}

	data := unfold(msg.data)
	for _, want := range []string{
		"Subject: Certificates need attention",
		"text/plain",
		"text/html",
		"SSL Certificate Alert",
		"expiring.example:443",
		"WARN_EXPIRING",
		"2026-02-08",
		"down.example:8443",
		"CONNECTION_REFUSED: connection refused",
		"color: #ff0000",
		"color: #cc0000",
	} {
		if !strings.Contains(data, want) {
			t.Errorf("message missing %q:\n%s", want, data)
		}
	}
}

func TestEmailNotifier_DefaultSubject(t *testing.T) {
	srv := newFakeSMTP(t, nil)

	cfg := testEmailConfig(srv.port())
	cfg.Subject = ""

	n := NewEmailNotifier(cfg, logr.Discard())
	if err := n.Notify(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	got := srv.received()
	if len(got) != 1 || !strings.Contains(got[0].data, "Subject: SSL Certificate Alert") {
		t.Errorf("received = %+v, want default subject", got)
	}
}

func TestEmailNotifier_Authenticates(t *testing.T) {
	srv := newFakeSMTP(t, func(s *fakeSMTP) { s.offerAuth = true })

	cfg := testEmailConfig(srv.port())
	cfg.Username = "mailer"
	cfg.Password = "hunter2"

	n := NewEmailNotifier(cfg, logr.Discard())
	if err := n.Notify(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	got := srv.received()
	if len(got) != 1 {
		t.Fatalf("messages received = %v, want 1", len(got))
	}
	creds, err := base64.StdEncoding.DecodeString(got[0].auth)
	if err != nil {
		t.Fatalf("DecodeString(%q) error = %v", got[0].auth, err)
	}
	if string(creds) != "\x00mailer\x00hunter2" {
		t.Errorf("AUTH PLAIN credentials = %q", creds)
	}
}

func TestEmailNotifier_RejectedRecipient(t *testing.T) {
	srv := newFakeSMTP(t, func(s *fakeSMTP) { s.rejectRcpt = "oncall@example.com" })

	n := NewEmailNotifier(testEmailConfig(srv.port()), logr.Discard())
	err := n.Notify(context.Background(), sampleAlert())
	if err == nil {
		t.Fatal("Notify() error = nil, want error for rejected recipient")
	}
	if len(srv.received()) != 0 {
		t.Errorf("messages received = %v, want 0", len(srv.received()))
	}
}

func TestEmailNotifier_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	n := NewEmailNotifier(testEmailConfig(port), logr.Discard())
	if err := n.Notify(context.Background(), sampleAlert()); err == nil {
		t.Error("Notify() error = nil, want error")
	}
}

func TestEmailNotifier_EmptyAlertIsNotSent(t *testing.T) {
	srv := newFakeSMTP(t, nil)

	n := NewEmailNotifier(testEmailConfig(srv.port()), logr.Discard())
	if err := n.Notify(context.Background(), Alert{}); err != nil {
		t.Errorf("Notify() error = %v", err)
	}
	if len(srv.received()) != 0 {
		t.Errorf("messages received = %v, want 0", len(srv.received()))
	}
}

func TestBuildEmailData(t *testing.T) {
	alert := sampleAlert()
	alert.Results = append(alert.Results, types.ScanResult{
		Target:  types.Target{Host: "gone.example", Port: 443},
		Outcome: types.Succeeded(&types.CertificateInfo{NotAfter: time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)}),
		Verdict: types.Verdict{Status: types.StatusExpired, DaysRemaining: -12, Reason: "certificate expired"},
	})

	tests := []struct {
		name     string
		critical int
		want     []string
	}{
		{"expiring outside critical window", 5, []string{colorWarning, colorError, colorCritical}},
		{"expiring inside critical window", 7, []string{colorCritical, colorError, colorCritical}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert.CriticalDays = tt.critical
			data := buildEmailData(alert)
			if len(data.Rows) != len(tt.want) {
				t.Fatalf("len(Rows) = %v, want %v", len(data.Rows), len(tt.want))
			}
			for i, want := range tt.want {
				if string(data.Rows[i].Color) != want {
					t.Errorf("Rows[%d].Color = %v, want %v", i, data.Rows[i].Color, want)
				}
			}
			if data.Rows[1].Days != "-" || data.Rows[1].Expires != "-" {
				t.Errorf("failed row = %+v, want placeholders", data.Rows[1])
			}
			if data.Rows[2].Days != "-12" || data.Rows[2].Expires != "2026-01-20" {
				t.Errorf("expired row = %+v", data.Rows[2])
			}
		})
	}
}

// countingNotifier records calls and returns err
type countingNotifier struct {
	err   error
	calls int
}

func (c *countingNotifier) Notify(context.Context, Alert) error {
	c.calls++
	return c.err
}

func TestMulti(t *testing.T) {
	errA := errors.New("webhook down")
	errB := errors.New("smtp down")

	tests := []struct {
		name    string
		errs    []error
		wantErr []error
	}{
		{"all succeed", []error{nil, nil}, nil},
		{"first fails", []error{errA, nil}, []error{errA}},
		{"all fail", []error{errA, errB}, []error{errA, errB}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var multi Multi
			var counters []*countingNotifier
			for _, err := range tt.errs {
				c := &countingNotifier{err: err}
				counters = append(counters, c)
				multi = append(multi, c)
			}

			err := multi.Notify(context.Background(), sampleAlert())
			for i, c := range counters {
				if c.calls != 1 {
					t.Errorf("notifier %d called %d times, want 1", i, c.calls)
				}
			}
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Errorf("Notify() error = %v, want nil", err)
				}
				return
			}
			for _, want := range tt.wantErr {
				if !errors.Is(err, want) {
					t.Errorf("Notify() error = %v, want it to wrap %v", err, want)
				}
			}
		})
	}
}
