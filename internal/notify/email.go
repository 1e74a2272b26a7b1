package notify

import (
	"context"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/wneessen/go-mail"

	"github.com/certwatch-app/cw-certcheck/internal/config"
	"github.com/certwatch-app/cw-certcheck/internal/policy"
	"github.com/certwatch-app/cw-certcheck/internal/types"
	"github.com/certwatch-app/cw-certcheck/internal/version"
)

const (
	defaultSubject = "SSL Certificate Alert"
	smtpsPort      = 465
)

// Row colours in the HTML body
const (
	colorCritical = "#ff0000"
	colorWarning  = "#ff9900"
	colorError    = "#cc0000"
)

var emailTemplate = template.Must(template.New("email").Parse(`<html>
<body>
<h2>SSL Certificate Alert</h2>
<p>{{.Source}}</p>
<table border="1" cellpadding="5" style="border-collapse: collapse;">
<tr>
<th>Website</th>
<th>Status</th>
<th>Days Until Expiry</th>
<th>Expiry Date</th>
<th>Details</th>
</tr>
{{range .Rows}}<tr>
<td>{{.Website}}</td>
<td style="color: {{.Color}};">
<b>{{.Status}}</b>
</td>
<td>{{.Days}}</td>
<td>{{.Expires}}</td>
<td>{{.Details}}</td>
</tr>
{{end}}</table>
</body>
</html>
`))

type emailRow struct {
	Website string
	Status  string
	Days    string
	Expires string
	Details string
	Color   template.CSS
}

type emailData struct {
	Source string
	Rows   []emailRow
}

// EmailNotifier sends alerts as HTML email over SMTP
type EmailNotifier struct {
	config config.EmailConfig
	logger logr.Logger
}

// NewEmailNotifier creates a new email notifier with the given configuration
func NewEmailNotifier(cfg config.EmailConfig, logger logr.Logger) *EmailNotifier {
	return &EmailNotifier{
		config: cfg,
		logger: logger.WithName("email"),
	}
}

// Notify sends one message listing every result to all recipients.
// An alert without results is not sent.
func (e *EmailNotifier) Notify(ctx context.Context, alert Alert) error {
	if len(alert.Results) == 0 {
		return nil
	}

	msg, err := e.buildMessage(alert)
	if err != nil {
		return err
	}

	client, err := e.newClient()
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	e.logger.V(1).Info("email sent",
		"server", e.config.SMTPServer,
		"recipients", len(e.config.To))
	return nil
}

func (e *EmailNotifier) newClient() (*mail.Client, error) {
	timeout := defaultTimeout
	if e.config.Timeout > 0 {
		timeout = e.config.Timeout
	}

	opts := []mail.Option{
		mail.WithPort(e.config.SMTPPort),
		mail.WithTimeout(timeout),
	}

	switch {
	case !e.config.UseTLS:
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	case e.config.SMTPPort == smtpsPort:
		opts = append(opts, mail.WithSSL())
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}

	if e.config.Username != "" {
		auth := mail.SMTPAuthPlain
		if !e.config.UseTLS {
			auth = mail.SMTPAuthPlainNoEnc
		}
		opts = append(opts,
			mail.WithSMTPAuth(auth),
			mail.WithUsername(e.config.Username),
			mail.WithPassword(e.config.Password),
		)
	}

	return mail.NewClient(e.config.SMTPServer, opts...)
}

func (e *EmailNotifier) buildMessage(alert Alert) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(e.config.From); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(e.config.To...); err != nil {
		return nil, fmt.Errorf("invalid to address: %w", err)
	}

	subject := e.config.Subject
	if subject == "" {
		subject = defaultSubject
	}
	msg.Subject(subject)
	msg.SetDate()
	msg.SetMessageID()
	msg.SetUserAgent(version.UserAgent())

	data := buildEmailData(alert)
	msg.SetBodyString(mail.TypeTextPlain, plainBody(data))
	if err := msg.AddAlternativeHTMLTemplate(emailTemplate, data); err != nil {
		return nil, fmt.Errorf("failed to render email body: %w", err)
	}

	return msg, nil
}

func buildEmailData(alert Alert) emailData {
	rows := make([]emailRow, 0, len(alert.Results))
	for i := range alert.Results {
		r := &alert.Results[i]

		row := emailRow{
			Website: r.Target.Key(),
			Status:  string(r.Verdict.Status),
			Days:    "-",
			Expires: "-",
			Details: r.Verdict.Reason,
			Color:   emailColor(r.Verdict, alert.CriticalDays),
		}
		if cert := r.Outcome.Certificate; cert != nil {
			row.Days = strconv.Itoa(r.Verdict.DaysRemaining)
			row.Expires = cert.NotAfter.UTC().Format("2006-01-02")
		}
		if row.Details == "" {
			row.Details = errorText(r)
		}
		rows = append(rows, row)
	}

	return emailData{Source: alert.Source, Rows: rows}
}

func emailColor(v types.Verdict, criticalDays int) template.CSS {
	switch {
	case policy.IsCritical(v, criticalDays):
		return colorCritical
	case v.Status == types.StatusError:
		return colorError
	default:
		return colorWarning
	}
}

func plainBody(data emailData) string {
	var b strings.Builder
	b.WriteString("SSL Certificate Alert\n")
	if data.Source != "" {
		b.WriteString(data.Source + "\n")
	}
	b.WriteString("\n")
	for _, r := range data.Rows {
		fmt.Fprintf(&b, "%s: %s (days: %s, expires: %s)", r.Website, r.Status, r.Days, r.Expires)
		if r.Details != "" {
			fmt.Fprintf(&b, " - %s", r.Details)
		}
		b.WriteString("\n")
	}
	return b.String()
}
