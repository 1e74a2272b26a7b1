package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/certwatch-app/cw-certcheck/internal/policy"
	"github.com/certwatch-app/cw-certcheck/internal/types"
)

// defaultGuardGrace is how long past its own timeout an inspection may run
// before the scanner gives up on it
const defaultGuardGrace = time.Second

// Scanner fans targets out to an Inspector with bounded concurrency and
// assembles the results into a Report. A Scanner keeps no state between
// Scan calls and is safe for concurrent use. An Inspector that ignores its
// context is abandoned when the guard timer fires and may outlive Scan.
// Fields are ordered for optimal memory alignment
type Scanner struct {
	inspector  Inspector
	logger     *zap.Logger
	now        func() time.Time
	newRunID   func() string
	guardGrace time.Duration
}

// New creates a new Scanner
func New(inspector Inspector, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		inspector:  inspector,
		logger:     logger,
		now:        time.Now,
		newRunID:   uuid.NewString,
		guardGrace: defaultGuardGrace,
	}
}

// Scan inspects every target and returns one result per target, in input order.
//
// At most opts.Concurrency inspections run at once. When opts.RunTimeout
// expires, inspections still in flight are abandoned and every unfinished
// target is reported as a TIMEOUT failure; the Report is still complete.
// If ctx itself is canceled, Scan returns ctx.Err() and no Report.
func (s *Scanner) Scan(ctx context.Context, targets []types.Target, opts Options) (*types.Report, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := validateTargets(targets); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if opts.RunTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.RunTimeout)
	}
	defer cancel()

	report := &types.Report{
		RunID:     s.newRunID(),
		StartedAt: s.now().UTC(),
		Results:   make([]types.ScanResult, len(targets)),
	}

	// One slot per target index, each written by exactly one worker
	done := make([]bool, len(targets))
	jobs := make(chan int)

	var g errgroup.Group

	g.Go(func() error {
		defer close(jobs)
		for i := range targets {
			select {
			case jobs <- i:
			case <-runCtx.Done():
				return nil
			}
		}
		return nil
	})

	workers := min(opts.Concurrency, len(targets))
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for idx := range jobs {
				report.Results[idx] = s.scanOne(runCtx, targets[idx], opts)
				done[idx] = true
			}
			return nil
		})
	}

	// Workers never return errors
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		s.logger.Info("scan canceled", zap.String("run_id", report.RunID), zap.Error(err))
		return nil, err
	}

	for i := range targets {
		if !done[i] {
			report.Results[i] = s.newResult(targets[i],
				types.Failed(types.FailureTimeout, "run deadline exceeded before scan started"),
				opts.WarnThresholdDays, 0)
		}
	}

	report.FinishedAt = s.now().UTC()
	return report, nil
}

// scanOne inspects a single target and evaluates the outcome on completion
func (s *Scanner) scanOne(runCtx context.Context, target types.Target, opts Options) types.ScanResult {
	if runCtx.Err() != nil {
		return s.newResult(target,
			types.Failed(types.FailureTimeout, "run deadline exceeded before scan started"),
			opts.WarnThresholdDays, 0)
	}

	start := s.now()
	outcome := s.inspect(runCtx, target, opts.Timeout)
	result := s.newResult(target, outcome, opts.WarnThresholdDays, s.now().Sub(start))

	fields := []zap.Field{
		zap.String("target", target.Key()),
		zap.String("status", string(result.Verdict.Status)),
		zap.Duration("duration", result.Duration),
	}
	if outcome.Failure != nil {
		fields = append(fields,
			zap.String("failure", string(outcome.Failure.Kind)),
			zap.String("error", outcome.Failure.Message),
		)
	} else {
		fields = append(fields, zap.Int("days_remaining", result.Verdict.DaysRemaining))
	}
	s.logger.Debug("target scanned", fields...)

	return result
}

// inspect runs the inspector under a guard timer so that an inspector which
// ignores its own timeout cannot hold a worker forever
func (s *Scanner) inspect(runCtx context.Context, target types.Target, timeout time.Duration) types.Outcome {
	ctx, cancel := context.WithCancel(runCtx)
	defer cancel()

	ch := make(chan types.Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- types.Failed(types.FailureUnknown, fmt.Sprintf("inspector panic: %v", r))
			}
		}()
		ch <- s.inspector.Inspect(ctx, target, timeout)
	}()

	guard := time.NewTimer(timeout + s.guardGrace)
	defer guard.Stop()

	select {
	case outcome := <-ch:
		return outcome
	case <-guard.C:
		s.logger.Warn("inspection did not return in time, abandoning",
			zap.String("target", target.Key()),
			zap.Duration("timeout", timeout),
		)
		return types.Failed(types.FailureTimeout, fmt.Sprintf("inspection did not complete within %s", timeout))
	case <-runCtx.Done():
		select {
		case outcome := <-ch:
			return outcome
		default:
		}
		return types.Failed(types.FailureTimeout, "run deadline exceeded during scan")
	}
}

func (s *Scanner) newResult(target types.Target, outcome types.Outcome, warnDays int, d time.Duration) types.ScanResult {
	now := s.now()
	return types.ScanResult{
		Target:    target,
		Outcome:   outcome,
		Verdict:   policy.Evaluate(outcome, now, warnDays),
		ScannedAt: now.UTC(),
		Duration:  d,
	}
}
