package scanner

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/certwatch-app/cw-certcheck/internal/types"
)

func defaultOptions() Options {
	return Options{
		Timeout:           time.Second,
		Concurrency:       4,
		WarnThresholdDays: 30,
	}
}

func TestScan_PreservesInputOrder(t *testing.T) {
	now := time.Now()
	inspector := inspectorFunc(func(_ context.Context, target types.Target, _ time.Duration) types.Outcome {
		time.Sleep(time.Duration(rand.IntN(20)) * time.Millisecond)
		return validCert(now, 90)
	})

	targets := makeTargets(25)
	report, err := New(inspector, zap.NewNop()).Scan(context.Background(), targets, defaultOptions())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	if len(report.Results) != len(targets) {
		t.Fatalf("len(Results) = %v, want %v", len(report.Results), len(targets))
	}
	for i, result := range report.Results {
		if result.Target != targets[i] {
			t.Errorf("Results[%d].Target = %v, want %v", i, result.Target, targets[i])
		}
		if result.Verdict.Status != types.StatusOK {
			t.Errorf("Results[%d].Status = %v, want OK", i, result.Verdict.Status)
		}
	}
	if report.RunID == "" {
		t.Error("RunID is empty")
	}
	if report.FinishedAt.Before(report.StartedAt) {
		t.Errorf("FinishedAt %v is before StartedAt %v", report.FinishedAt, report.StartedAt)
	}
}

func TestScan_ConcurrencyBound(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32

	inspector := inspectorFunc(func(_ context.Context, _ types.Target, _ time.Duration) types.Outcome {
		n := inFlight.Add(1)
		for {
			cur := maxInFlight.Load()
			if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return validCert(time.Now(), 90)
	})

	opts := defaultOptions()
	opts.Concurrency = 3

	if _, err := New(inspector, zap.NewNop()).Scan(context.Background(), makeTargets(20), opts); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	if got := maxInFlight.Load(); got > 3 {
		t.Errorf("max in-flight inspections = %v, want at most 3", got)
	}
	if got := maxInFlight.Load(); got < 1 {
		t.Errorf("max in-flight inspections = %v, want at least 1", got)
	}
}

func TestScan_Verdicts(t *testing.T) {
	now := time.Now()
	outcomes := map[string]types.Outcome{
		"host0.example": validCert(now, 90),
		"host1.example": validCert(now, 5),
		"host2.example": types.Succeeded(&types.CertificateInfo{
			NotBefore: now.Add(-90 * 24 * time.Hour),
			NotAfter:  now.Add(-36 * time.Hour),
		}),
		"host3.example": types.Failed(types.FailureConnRefused, "connection refused"),
	}
	inspector := inspectorFunc(func(_ context.Context, target types.Target, _ time.Duration) types.Outcome {
		return outcomes[target.Host]
	})

	report, err := New(inspector, zap.NewNop()).Scan(context.Background(), makeTargets(4), defaultOptions())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	want := []struct {
		status types.Status
		days   int
	}{
		{types.StatusOK, 90},
		{types.StatusWarnExpiring, 5},
		{types.StatusExpired, -2},
		{types.StatusError, 0},
	}
	for i, w := range want {
		got := report.Results[i].Verdict
		if got.Status != w.status {
			t.Errorf("Results[%d].Status = %v, want %v", i, got.Status, w.status)
		}
		if got.DaysRemaining != w.days {
			t.Errorf("Results[%d].DaysRemaining = %v, want %v", i, got.DaysRemaining, w.days)
		}
	}

	summary := report.Summary()
	for _, status := range types.Statuses {
		if summary[status] != 1 {
			t.Errorf("Summary()[%v] = %v, want 1", status, summary[status])
		}
	}
}

func TestScan_InspectorIgnoringTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	inspector := inspectorFunc(func(_ context.Context, target types.Target, _ time.Duration) types.Outcome {
		if target.Host == "host1.example" {
			<-release
		}
		return validCert(time.Now(), 90)
	})

	s := New(inspector, zap.NewNop())
	s.guardGrace = 50 * time.Millisecond

	opts := defaultOptions()
	opts.Timeout = 100 * time.Millisecond

	start := time.Now()
	report, err := s.Scan(context.Background(), makeTargets(3), opts)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Scan() took %v, want it bounded by the guard", elapsed)
	}

	got := report.Results[1]
	if got.Outcome.Failure == nil || got.Outcome.Failure.Kind != types.FailureTimeout {
		t.Fatalf("Results[1].Outcome = %+v, want TIMEOUT failure", got.Outcome)
	}
	if got.Verdict.Status != types.StatusError {
		t.Errorf("Results[1].Status = %v, want ERROR", got.Verdict.Status)
	}
	for _, i := range []int{0, 2} {
		if report.Results[i].Verdict.Status != types.StatusOK {
			t.Errorf("Results[%d].Status = %v, want OK", i, report.Results[i].Verdict.Status)
		}
	}
}

func TestScan_AbandonedInspectorOutlivesScan(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan struct{})

	inspector := inspectorFunc(func(_ context.Context, _ types.Target, _ time.Duration) types.Outcome {
		defer close(finished)
		<-release
		return validCert(time.Now(), 90)
	})

	s := New(inspector, zap.NewNop())
	s.guardGrace = 10 * time.Millisecond

	opts := defaultOptions()
	opts.Timeout = 50 * time.Millisecond

	report, err := s.Scan(context.Background(), makeTargets(1), opts)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if f := report.Results[0].Outcome.Failure; f == nil || f.Kind != types.FailureTimeout {
		t.Fatalf("Results[0].Outcome = %+v, want TIMEOUT failure", report.Results[0].Outcome)
	}

	// Scan has returned while the inspector is still blocked
	select {
	case <-finished:
		t.Fatal("inspector finished before release, want it still running after Scan")
	default:
	}

	// Releasing it lets the abandoned goroutine finish
	close(release)
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Error("abandoned inspector did not finish after release")
	}
}

func TestScan_InspectorPanicIsUnknown(t *testing.T) {
	inspector := inspectorFunc(func(_ context.Context, _ types.Target, _ time.Duration) types.Outcome {
		panic("boom")
	})

	report, err := New(inspector, zap.NewNop()).Scan(context.Background(), makeTargets(1), defaultOptions())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	failure := report.Results[0].Outcome.Failure
	if failure == nil || failure.Kind != types.FailureUnknown {
		t.Errorf("Failure = %+v, want UNKNOWN", failure)
	}
}

func TestScan_RunTimeoutProducesCompleteReport(t *testing.T) {
	inspector := inspectorFunc(func(ctx context.Context, _ types.Target, _ time.Duration) types.Outcome {
		<-ctx.Done()
		return types.Failed(types.FailureTimeout, ctx.Err().Error())
	})

	opts := defaultOptions()
	opts.Concurrency = 2
	opts.Timeout = 10 * time.Second
	opts.RunTimeout = 100 * time.Millisecond

	targets := makeTargets(6)
	start := time.Now()
	report, err := New(inspector, zap.NewNop()).Scan(context.Background(), targets, opts)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Scan() took %v, want it bounded by the run timeout", elapsed)
	}

	if len(report.Results) != len(targets) {
		t.Fatalf("len(Results) = %v, want %v", len(report.Results), len(targets))
	}
	for i, result := range report.Results {
		if result.Target != targets[i] {
			t.Errorf("Results[%d].Target = %v, want %v", i, result.Target, targets[i])
		}
		if result.Outcome.Failure == nil || result.Outcome.Failure.Kind != types.FailureTimeout {
			t.Errorf("Results[%d].Outcome = %+v, want TIMEOUT", i, result.Outcome)
		}
	}
}

func TestScan_CallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var once sync.Once
	inspector := inspectorFunc(func(ctx context.Context, _ types.Target, _ time.Duration) types.Outcome {
		once.Do(cancel)
		<-ctx.Done()
		return types.Failed(types.FailureTimeout, "canceled")
	})

	report, err := New(inspector, zap.NewNop()).Scan(ctx, makeTargets(5), defaultOptions())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Scan() error = %v, want context.Canceled", err)
	}
	if report != nil {
		t.Errorf("Scan() report = %+v, want nil", report)
	}
}

func TestScan_AlreadyCanceled(t *testing.T) {
	var calls atomic.Int32
	inspector := inspectorFunc(func(_ context.Context, _ types.Target, _ time.Duration) types.Outcome {
		calls.Add(1)
		return validCert(time.Now(), 90)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(inspector, zap.NewNop()).Scan(ctx, makeTargets(3), defaultOptions())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Scan() error = %v, want context.Canceled", err)
	}
	if calls.Load() != 0 {
		t.Errorf("inspector called %d times, want 0", calls.Load())
	}
}

func TestScan_InvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		targets []types.Target
		opts    Options
	}{
		{"no targets", nil, defaultOptions()},
		{"empty host", []types.Target{{Host: "", Port: 443}}, defaultOptions()},
		{"port zero", []types.Target{{Host: "a.example", Port: 0}}, defaultOptions()},
		{"port too large", []types.Target{{Host: "a.example", Port: 70000}}, defaultOptions()},
		{"duplicate", []types.Target{{Host: "a.example", Port: 443}, {Host: "a.example", Port: 443, DisplayName: "again"}}, defaultOptions()},
		{"zero concurrency", makeTargets(1), Options{Timeout: time.Second}},
		{"zero timeout", makeTargets(1), Options{Concurrency: 1}},
		{"negative run timeout", makeTargets(1), Options{Concurrency: 1, Timeout: time.Second, RunTimeout: -time.Second}},
	}

	var calls atomic.Int32
	inspector := inspectorFunc(func(_ context.Context, _ types.Target, _ time.Duration) types.Outcome {
		calls.Add(1)
		return validCert(time.Now(), 90)
	})
	s := New(inspector, zap.NewNop())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := s.Scan(context.Background(), tt.targets, tt.opts)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Scan() error = %v, want ErrInvalidInput", err)
			}
			if report != nil {
				t.Error("Scan() returned a report for invalid input")
			}
		})
	}

	if calls.Load() != 0 {
		t.Errorf("inspector called %d times, want 0", calls.Load())
	}
}

func TestScan_SamePortDifferentHostsAreDistinct(t *testing.T) {
	inspector := inspectorFunc(func(_ context.Context, _ types.Target, _ time.Duration) types.Outcome {
		return validCert(time.Now(), 90)
	})
	targets := []types.Target{
		{Host: "a.example", Port: 443},
		{Host: "a.example", Port: 8443},
	}

	if _, err := New(inspector, zap.NewNop()).Scan(context.Background(), targets, defaultOptions()); err != nil {
		t.Errorf("Scan() error = %v, want nil", err)
	}
}

func TestScan_EvaluatesAtCompletionTime(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := base

	inspector := inspectorFunc(func(_ context.Context, _ types.Target, _ time.Duration) types.Outcome {
		mu.Lock()
		clock = clock.Add(10 * 24 * time.Hour)
		mu.Unlock()
		return types.Succeeded(&types.CertificateInfo{
			NotBefore: base.Add(-24 * time.Hour),
			NotAfter:  base.Add(35 * 24 * time.Hour),
		})
	})

	s := New(inspector, zap.NewNop())
	s.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}

	report, err := s.Scan(context.Background(), makeTargets(1), defaultOptions())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	// 35 days at start, 25 days once the inspection has finished
	got := report.Results[0].Verdict
	if got.DaysRemaining != 25 {
		t.Errorf("DaysRemaining = %v, want 25", got.DaysRemaining)
	}
	if got.Status != types.StatusWarnExpiring {
		t.Errorf("Status = %v, want WARN_EXPIRING", got.Status)
	}
	if !report.Results[0].ScannedAt.Equal(base.Add(10 * 24 * time.Hour)) {
		t.Errorf("ScannedAt = %v, want %v", report.Results[0].ScannedAt, base.Add(10*24*time.Hour))
	}
}

func TestScan_SequentialRunBoundedByTimeouts(t *testing.T) {
	targets := []types.Target{startHangingServer(t), closedPort(t), startHangingServer(t)}

	opts := Options{Timeout: 150 * time.Millisecond, Concurrency: 1, WarnThresholdDays: 30}

	start := time.Now()
	report, err := New(NewTLSInspector(zap.NewNop()), zap.NewNop()).Scan(context.Background(), targets, opts)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	elapsed := time.Since(start)

	// N targets * timeout plus scheduling slack
	if limit := time.Duration(len(targets))*opts.Timeout + 2*time.Second; elapsed > limit {
		t.Errorf("Scan() took %v, want under %v", elapsed, limit)
	}
	for i, result := range report.Results {
		if result.Verdict.Status != types.StatusError {
			t.Errorf("Results[%d].Status = %v, want ERROR", i, result.Verdict.Status)
		}
	}
}

func TestScan_Idempotent(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	inspector := inspectorFunc(func(_ context.Context, target types.Target, _ time.Duration) types.Outcome {
		if target.Host == "host2.example" {
			return types.Failed(types.FailureDNS, "no such host")
		}
		return validCert(now, 10)
	})

	s := New(inspector, zap.NewNop())
	s.now = func() time.Time { return now }

	first, err := s.Scan(context.Background(), makeTargets(4), defaultOptions())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	second, err := s.Scan(context.Background(), makeTargets(4), defaultOptions())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	for i := range first.Results {
		if first.Results[i].Verdict != second.Results[i].Verdict {
			t.Errorf("Results[%d].Verdict = %+v then %+v, want equal", i, first.Results[i].Verdict, second.Results[i].Verdict)
		}
	}
}
