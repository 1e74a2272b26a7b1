// Package notify delivers certificate alerts to Slack, Microsoft Teams, a
// generic JSON webhook or SMTP email.
package notify

import (
	"fmt"
	"strconv"
	"time"

	"github.com/certwatch-app/cw-certcheck/internal/policy"
	"github.com/certwatch-app/cw-certcheck/internal/types"
)

const alertTitle = "⚠️ SSL Certificate Alert"

// Teams theme colours
const (
	teamsCritical = "FF0000"
	teamsWarning  = "FF9900"
)

// SlackPayload is an incoming-webhook message with one attachment per target
type SlackPayload struct {
	Text        string            `json:"text"`
	Attachments []SlackAttachment `json:"attachments"`
}

// SlackAttachment describes a single target
type SlackAttachment struct {
	Color  string       `json:"color"`
	Footer string       `json:"footer"`
	Fields []SlackField `json:"fields"`
	TS     int64        `json:"ts"`
}

// SlackField is a title/value pair inside an attachment
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// TeamsPayload is a legacy connector MessageCard
type TeamsPayload struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	Summary    string         `json:"summary"`
	ThemeColor string         `json:"themeColor"`
	Title      string         `json:"title"`
	Sections   []TeamsSection `json:"sections"`
}

// TeamsSection describes a single target
type TeamsSection struct {
	ActivityTitle string      `json:"activityTitle"`
	Facts         []TeamsFact `json:"facts"`
}

// TeamsFact is a name/value pair inside a section
type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// GenericPayload is the document posted to generic webhooks
// Fields are ordered for optimal memory alignment
type GenericPayload struct {
	SentAt  time.Time            `json:"sent_at"`
	Event   string               `json:"event"`
	Source  string               `json:"source"`
	RunID   string               `json:"run_id,omitempty"`
	Summary map[types.Status]int `json:"summary"`
	Alerts  []GenericAlert       `json:"alerts"`
}

// GenericAlert describes a single target
type GenericAlert struct {
	NotAfter      *time.Time        `json:"not_after,omitempty"`
	Failure       types.FailureKind `json:"failure,omitempty"`
	Target        string            `json:"target"`
	Name          string            `json:"name"`
	Status        types.Status      `json:"status"`
	Reason        string            `json:"reason,omitempty"`
	DaysRemaining int               `json:"days_remaining"`
	Critical      bool              `json:"critical"`
}

// Alert is what a notifier is asked to deliver. Expiring certificates with at
// most CriticalDays left are rendered as critical.
type Alert struct {
	SentAt       time.Time
	Source       string
	RunID        string
	Results      []types.ScanResult
	CriticalDays int
}

func slackColor(v types.Verdict, criticalDays int) string {
	if policy.IsCritical(v, criticalDays) {
		return "danger"
	}
	switch v.Status {
	case types.StatusError:
		return "danger"
	case types.StatusWarnExpiring:
		return "warning"
	case types.StatusOK:
		return "good"
	default:
		return "#808080"
	}
}

func errorText(r *types.ScanResult) string {
	if r.Outcome.Failure == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", r.Outcome.Failure.Kind, r.Outcome.Failure.Message)
}

// BuildSlack renders alert as a Slack message
func BuildSlack(alert Alert) SlackPayload {
	attachments := make([]SlackAttachment, 0, len(alert.Results))
	for i := range alert.Results {
		r := &alert.Results[i]

		fields := []SlackField{
			{Title: "Website", Value: r.Target.Key(), Short: true},
			{Title: "Status", Value: string(r.Verdict.Status), Short: true},
		}
		if r.Outcome.Certificate != nil {
			fields = append(fields, SlackField{
				Title: "Days Until Expiry",
				Value: strconv.Itoa(r.Verdict.DaysRemaining),
				Short: true,
			})
		}
		if msg := errorText(r); msg != "" {
			fields = append(fields, SlackField{Title: "Error", Value: msg})
		}

		attachments = append(attachments, SlackAttachment{
			Color:  slackColor(r.Verdict, alert.CriticalDays),
			Fields: fields,
			Footer: alert.Source,
			TS:     alert.SentAt.Unix(),
		})
	}

	return SlackPayload{Text: alertTitle, Attachments: attachments}
}

// BuildTeams renders alert as a Teams MessageCard
func BuildTeams(alert Alert) TeamsPayload {
	theme := teamsWarning
	sections := make([]TeamsSection, 0, len(alert.Results))
	for i := range alert.Results {
		r := &alert.Results[i]
		if r.Verdict.Status == types.StatusError || policy.IsCritical(r.Verdict, alert.CriticalDays) {
			theme = teamsCritical
		}

		facts := []TeamsFact{
			{Name: "Website", Value: r.Target.Key()},
			{Name: "Status", Value: string(r.Verdict.Status)},
		}
		if r.Outcome.Certificate != nil {
			facts = append(facts, TeamsFact{Name: "Days Until Expiry", Value: strconv.Itoa(r.Verdict.DaysRemaining)})
		}
		if msg := errorText(r); msg != "" {
			facts = append(facts, TeamsFact{Name: "Error", Value: msg})
		}

		sections = append(sections, TeamsSection{
			ActivityTitle: "Certificate Alert: " + r.Target.Name(),
			Facts:         facts,
		})
	}

	return TeamsPayload{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		Summary:    "SSL Certificate Alert",
		ThemeColor: theme,
		Title:      alertTitle,
		Sections:   sections,
	}
}

// BuildGeneric renders alert as a plain JSON document
func BuildGeneric(alert Alert) GenericPayload {
	summary := make(map[types.Status]int)
	alerts := make([]GenericAlert, 0, len(alert.Results))
	for i := range alert.Results {
		r := &alert.Results[i]
		summary[r.Verdict.Status]++

		a := GenericAlert{
			Target:        r.Target.Key(),
			Name:          r.Target.Name(),
			Status:        r.Verdict.Status,
			Reason:        r.Verdict.Reason,
			DaysRemaining: r.Verdict.DaysRemaining,
			Critical:      policy.IsCritical(r.Verdict, alert.CriticalDays),
		}
		if r.Outcome.Certificate != nil {
			notAfter := r.Outcome.Certificate.NotAfter
			a.NotAfter = &notAfter
		}
		if r.Outcome.Failure != nil {
			a.Failure = r.Outcome.Failure.Kind
		}
		alerts = append(alerts, a)
	}

	return GenericPayload{
		Event:   "certificate.alert",
		Source:  alert.Source,
		RunID:   alert.RunID,
		SentAt:  alert.SentAt.UTC(),
		Summary: summary,
		Alerts:  alerts,
	}
}
