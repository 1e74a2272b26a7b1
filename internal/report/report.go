// Package report renders scan reports and derives exit codes and alerts from them.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/certwatch-app/cw-certcheck/internal/policy"
	"github.com/certwatch-app/cw-certcheck/internal/types"
	"github.com/certwatch-app/cw-certcheck/internal/ui"
)

// Output formats
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// Process exit codes for a completed run
const (
	ExitOK       = 0
	ExitError    = 1
	ExitCritical = 2
)

// document is the JSON shape of a rendered report
type document struct {
	*types.Report
	Summary  map[types.Status]int `json:"summary"`
	ExitCode int                  `json:"exit_code"`
}

// Render writes report to w in the given format. criticalDays is the
// threshold used for the exit code embedded in JSON output.
func Render(w io.Writer, report *types.Report, format string, criticalDays int) error {
	switch strings.ToLower(format) {
	case FormatJSON:
		return renderJSON(w, report, criticalDays)
	case FormatTable, "":
		return renderTable(w, report)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func renderJSON(w io.Writer, report *types.Report, criticalDays int) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(document{
		Report:   report,
		Summary:  report.Summary(),
		ExitCode: ExitCode(report, criticalDays),
	}); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

func renderTable(w io.Writer, report *types.Report) error {
	statuses := make([]types.Status, len(report.Results))
	rows := make([][]string, 0, len(report.Results))
	for i := range report.Results {
		r := &report.Results[i]
		statuses[i] = r.Verdict.Status
		rows = append(rows, row(r))
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(ui.MutedStyle).
		Headers("TARGET", "STATUS", "DAYS", "EXPIRES", "ISSUER", "DETAIL").
		Rows(rows...).
		StyleFunc(func(r, c int) lipgloss.Style {
			if r == table.HeaderRow {
				return ui.HeaderCellStyle
			}
			if c == 1 && r >= 0 && r < len(statuses) {
				return ui.StatusStyle(statuses[r]).PaddingRight(2)
			}
			return ui.CellStyle
		})

	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, summaryLine(report))
	return err
}

func row(r *types.ScanResult) []string {
	days, expires, issuer := "-", "-", "-"
	if cert := r.Outcome.Certificate; cert != nil {
		days = strconv.Itoa(r.Verdict.DaysRemaining)
		expires = cert.NotAfter.Format("2006-01-02")
		issuer = cert.IssuerOrg
		if issuer == "" {
			issuer = cert.Issuer
		}
	}

	detail := r.Verdict.Reason
	if detail == "" && r.Outcome.Certificate != nil {
		detail = r.Outcome.Certificate.Subject
	}

	return []string{r.Target.Name(), string(r.Verdict.Status), days, expires, issuer, detail}
}

func summaryLine(report *types.Report) string {
	summary := report.Summary()
	parts := make([]string, 0, len(types.Statuses))
	for _, s := range types.Statuses {
		parts = append(parts, ui.StatusStyle(s).Render(fmt.Sprintf("%d %s", summary[s], s)))
	}
	return fmt.Sprintf("%d targets: %s (took %s)",
		len(report.Results), strings.Join(parts, ", "), report.Duration().Round(time.Millisecond))
}

// ExitCode returns the process exit code for a run: ExitCritical when any
// certificate has expired or expires within criticalDays, ExitError when any
// target could not be checked, ExitOK otherwise.
func ExitCode(report *types.Report, criticalDays int) int {
	code := ExitOK
	for i := range report.Results {
		v := report.Results[i].Verdict
		if policy.IsCritical(v, criticalDays) {
			return ExitCritical
		}
		if v.Status == types.StatusError {
			code = ExitError
		}
	}
	return code
}

// Alertable returns the results whose status is in notifyOn, in report order
func Alertable(report *types.Report, notifyOn []types.Status) []types.ScanResult {
	var out []types.ScanResult
	for i := range report.Results {
		if slices.Contains(notifyOn, report.Results[i].Verdict.Status) {
			out = append(out, report.Results[i])
		}
	}
	return out
}
