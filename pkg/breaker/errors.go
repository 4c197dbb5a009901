package breaker

import (
	"fmt"
	"time"

	apperrors "github.com/hellodd/orderflow/pkg/errors"
)

// ErrOpen matches every rejection produced by a breaker.
var ErrOpen = apperrors.ErrCircuitOpen

// OpenError is returned when a call was not attempted.
type OpenError struct {
	Name  string
	State State

	// RetryAfter is how long until the breaker will admit a trial. Zero
	// when the rejection was caused by a trial already in flight.
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	if e.State == StateHalfOpen {
		return fmt.Sprintf("circuit breaker %s: trial request in flight", e.Name)
	}
	return fmt.Sprintf("circuit breaker %s is open, retry after %s", e.Name, e.RetryAfter.Round(time.Millisecond))
}

// Is makes errors.Is(err, ErrOpen) hold.
func (e *OpenError) Is(target error) bool {
	return target == ErrOpen
}

// IsOpen reports whether err is a breaker rejection.
func IsOpen(err error) bool {
	return apperrors.KindOf(err) == apperrors.KindCircuitOpen
}
