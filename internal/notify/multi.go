package notify

import (
	"context"
	"errors"
)

// Multi delivers an alert through every notifier in order. Every notifier is
// tried even when an earlier one fails; the failures are joined.
type Multi []Notifier

// Notify implements Notifier
func (m Multi) Notify(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
