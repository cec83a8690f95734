package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"
)

// Policy decides what a batch loop does when one unit fails.
type Policy string

const (
	// PolicyContinue logs the failing unit and moves on to the next one.
	PolicyContinue Policy = "continue"
	// PolicyFailFast stops the loop at the first failing unit.
	PolicyFailFast Policy = "fail-fast"
)

// ParsePolicy accepts "continue" or "fail-fast". An empty string selects continue.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyContinue, nil
	case PolicyContinue, PolicyFailFast:
		return p, nil
	default:
		return "", fmt.Errorf("unknown batch policy %q (want continue or fail-fast)", s)
	}
}

// UnitError records the failure of one named unit.
type UnitError struct {
	Unit string
	Err  error
}

func (e UnitError) Error() string {
	return e.Unit + ": " + e.Err.Error()
}

func (e UnitError) Unwrap() error {
	return e.Err
}

// Summary reports how a batch loop went.
type Summary struct {
	Succeeded int
	Failed    []UnitError
}

// Total is the number of units attempted.
func (s Summary) Total() int {
	return s.Succeeded + len(s.Failed)
}

// Err joins every unit failure, or returns nil when all units succeeded.
func (s Summary) Err() error {
	if len(s.Failed) == 0 {
		return nil
	}
	errs := make([]error, len(s.Failed))
	for i, f := range s.Failed {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// RunUnits calls fn for each unit in order and applies policy to failures.
// Under PolicyContinue failures are logged with the unit name and collected in
// the summary; the returned error is nil. Under PolicyFailFast the first
// failure is returned wrapped in a UnitError. Context cancellation stops the
// loop before the next unit and returns ctx.Err().
func RunUnits[T fmt.Stringer](ctx context.Context, policy Policy, logger *slog.Logger, units []T, fn func(context.Context, T) error) (Summary, error) {
	var sum Summary
	for _, u := range units {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		err := fn(ctx, u)
		if err == nil {
			sum.Succeeded++
			continue
		}
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		ue := UnitError{Unit: u.String(), Err: err}
		sum.Failed = append(sum.Failed, ue)
		if policy == PolicyFailFast {
			return sum, ue
		}
		logger.Error("unit failed, continuing", "unit", ue.Unit, "error", err)
	}
	return sum, nil
}

// Sleep waits for d on clock, returning false if ctx is cancelled first.
func Sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

// Backoff is a doubling retry delay capped at Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	current time.Duration
}

// Next returns the delay to wait before the next retry and advances the backoff.
func (b *Backoff) Next() time.Duration {
	if b.current == 0 {
		b.current = b.Initial
	}
	d := b.current
	b.current = retry.NextBackoff(b.current, b.Max)
	return d
}

// Reset restarts the sequence at Initial.
func (b *Backoff) Reset() {
	b.current = 0
}
