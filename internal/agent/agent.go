// Package agent runs certificate checks once or on a schedule and publishes
// the results as metrics, alerts and an HTTP status API.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/certwatch-app/cw-certcheck/internal/config"
	"github.com/certwatch-app/cw-certcheck/internal/logging"
	"github.com/certwatch-app/cw-certcheck/internal/metrics"
	"github.com/certwatch-app/cw-certcheck/internal/notify"
	"github.com/certwatch-app/cw-certcheck/internal/report"
	"github.com/certwatch-app/cw-certcheck/internal/scanner"
	"github.com/certwatch-app/cw-certcheck/internal/state"
	"github.com/certwatch-app/cw-certcheck/internal/types"
	"github.com/certwatch-app/cw-certcheck/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Agent orchestrates certificate scanning, metrics and alerting.
// Fields are ordered for optimal memory alignment
type Agent struct {
	config     *config.Config
	scanner    *scanner.Scanner
	notifier   notify.Notifier
	state      *state.Manager
	metrics    *metrics.Metrics
	logger     *zap.Logger
	lastReport *types.Report
	now        func() time.Time
	targets    []types.Target
	mu         sync.RWMutex
	ready      atomic.Bool
}

// New creates a new Agent. stateManager may be nil, in which case every
// alertable result is notified on every run.
func New(cfg *config.Config, logger *zap.Logger, stateManager *state.Manager) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Agent{
		config:  cfg,
		scanner: scanner.New(scanner.NewTLSInspector(logger.Named("inspector")), logger.Named("scanner")),
		state:   stateManager,
		metrics: metrics.New(),
		logger:  logger,
		now:     time.Now,
		targets: cfg.ScanTargets(),
	}

	a.notifier = newNotifier(cfg, logger.Named("notify"))

	a.metrics.SetAgentInfo(version.GetVersion(), cfg.Agent.Name)
	return a
}

// newNotifier returns the configured alert channels, or nil when none is enabled
func newNotifier(cfg *config.Config, logger *zap.Logger) notify.Notifier {
	log := logging.Logr(logger)

	var notifiers notify.Multi
	if cfg.Alerts.Enabled {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.Alerts.Webhook, log))
	}
	if cfg.Alerts.Email.Enabled {
		notifiers = append(notifiers, notify.NewEmailNotifier(cfg.Alerts.Email, log))
	}

	switch len(notifiers) {
	case 0:
		return nil
	case 1:
		return notifiers[0]
	default:
		return notifiers
	}
}

// Metrics returns the agent's metrics
func (a *Agent) Metrics() *metrics.Metrics {
	return a.metrics
}

// LastReport returns the most recent completed report, or nil
func (a *Agent) LastReport() *types.Report {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastReport
}

// Ready reports whether at least one run has completed
func (a *Agent) Ready() bool {
	return a.ready.Load()
}

// RunOnce performs a single scan, publishes metrics and sends alerts.
// Alert delivery failures are logged and do not fail the run.
func (a *Agent) RunOnce(ctx context.Context) (*types.Report, error) {
	a.logger.Info("starting certificate scan", zap.Int("targets", len(a.targets)))

	rep, err := a.scanner.Scan(ctx, a.targets, a.config.ScanOptions())
	if err != nil {
		a.metrics.ObserveRunError(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	a.metrics.ObserveReport(rep)

	a.mu.Lock()
	a.lastReport = rep
	a.mu.Unlock()
	a.ready.Store(true)

	summary := rep.Summary()
	a.logger.Info("scan complete",
		zap.String("run_id", rep.RunID),
		zap.Duration("duration", rep.Duration()),
		zap.Int("ok", summary[types.StatusOK]),
		zap.Int("warn_expiring", summary[types.StatusWarnExpiring]),
		zap.Int("expired", summary[types.StatusExpired]),
		zap.Int("error", summary[types.StatusError]),
	)

	a.alert(ctx, rep)

	if a.state != nil {
		a.state.RecordRun(rep.RunID, rep.FinishedAt)
		if err := a.state.Save(); err != nil {
			a.logger.Warn("failed to save state", zap.Error(err))
		}
	}

	return rep, nil
}

// alert notifies about alertable results, skipping targets already notified
// with the same status when a state manager is configured
func (a *Agent) alert(ctx context.Context, rep *types.Report) {
	if a.notifier == nil {
		return
	}

	notifyOn := a.config.NotifyStatuses()
	pending := report.Alertable(rep, notifyOn)
	if a.state != nil {
		if removed := a.state.Reconcile(rep, notifyOn); removed > 0 {
			a.logger.Debug("cleared recovered targets from alert state", zap.Int("count", removed))
		}
		pending = a.state.PendingAlerts(pending)
	}

	if len(pending) == 0 {
		a.logger.Debug("no new alerts")
		return
	}

	sentAt := a.now()
	err := a.notifier.Notify(ctx, notify.Alert{
		SentAt:       sentAt,
		Source:       fmt.Sprintf("cw-certcheck (%s)", a.config.Agent.Name),
		RunID:        rep.RunID,
		Results:      pending,
		CriticalDays: a.config.Scan.CriticalThresholdDays,
	})
	if err != nil {
		a.logger.Error("failed to send alert", zap.Int("targets", len(pending)), zap.Error(err))
		return
	}

	a.logger.Info("alert sent", zap.Int("targets", len(pending)))
	if a.state != nil {
		a.state.MarkNotified(pending, sentAt)
	}
}

// Run serves the HTTP endpoints and scans every agent.interval until ctx is done
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("agent starting",
		zap.String("name", a.config.Agent.Name),
		zap.Int("targets", len(a.targets)),
		zap.Duration("interval", a.config.Agent.Interval),
		zap.Int("metrics_port", a.config.Agent.MetricsPort),
	)

	var srvErr chan error
	var srv *http.Server
	if a.config.Agent.MetricsPort > 0 {
		ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(a.config.Agent.MetricsPort)))
		if err != nil {
			return fmt.Errorf("failed to listen on metrics port: %w", err)
		}
		srv = &http.Server{
			Handler:           a.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		srvErr = make(chan error, 1)
		go func() {
			srvErr <- srv.Serve(ln)
		}()
		a.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
	}

	err := a.loop(ctx, srvErr)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			a.logger.Warn("http server shutdown failed", zap.Error(shutdownErr))
		}
	}

	return err
}

func (a *Agent) loop(ctx context.Context, srvErr <-chan error) error {
	// Perform initial scan
	if _, err := a.RunOnce(ctx); err != nil && ctx.Err() == nil {
		a.logger.Error("initial scan failed", zap.Error(err))
		// Continue running even if the initial scan fails
	}

	ticker := time.NewTicker(a.config.Agent.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("agent stopping")
			return ctx.Err()

		case err := <-srvErr:
			return fmt.Errorf("http server failed: %w", err)

		case <-ticker.C:
			a.logger.Debug("scan interval triggered")
			if _, err := a.RunOnce(ctx); err != nil && ctx.Err() == nil {
				a.logger.Error("scan failed", zap.Error(err))
			}
		}
	}
}
