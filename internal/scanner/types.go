// Package scanner provides TLS certificate scanning functionality.
package scanner

import (
	"errors"
	"fmt"
	"time"

	"github.com/certwatch-app/cw-certcheck/internal/types"
)

// ErrInvalidInput is returned by Scan before any network activity when the
// targets or options cannot be used
var ErrInvalidInput = errors.New("invalid scan input")

// Defaults used by the configuration layer
const (
	DefaultConcurrency = 10
	DefaultTimeout     = 5 * time.Second
)

// Options controls a single Scan call.
// Fields are ordered for optimal memory alignment
type Options struct {
	// Timeout bounds resolve + connect + handshake for one target
	Timeout time.Duration
	// RunTimeout bounds the whole run; zero means no run deadline
	RunTimeout        time.Duration
	Concurrency       int
	WarnThresholdDays int
}

func (o Options) validate() error {
	if o.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be at least 1", ErrInvalidInput)
	}
	if o.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidInput)
	}
	if o.RunTimeout < 0 {
		return fmt.Errorf("%w: run timeout must not be negative", ErrInvalidInput)
	}
	return nil
}

func validateTargets(targets []types.Target) error {
	if len(targets) == 0 {
		return fmt.Errorf("%w: at least one target is required", ErrInvalidInput)
	}

	seen := make(map[string]int, len(targets))
	for i, t := range targets {
		if t.Host == "" {
			return fmt.Errorf("%w: target[%d]: hostname is required", ErrInvalidInput, i)
		}
		if t.Port < 1 || t.Port > 65535 {
			return fmt.Errorf("%w: target[%d]: port must be between 1 and 65535", ErrInvalidInput, i)
		}
		if prev, ok := seen[t.Key()]; ok {
			return fmt.Errorf("%w: target[%d]: duplicate of target[%d] '%s'", ErrInvalidInput, i, prev, t.Key())
		}
		seen[t.Key()] = i
	}
	return nil
}
