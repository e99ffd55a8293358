package saga

import (
	"errors"
	"fmt"
)

var (
	// ErrSagaInFlight rejects a second confirm trigger while a saga is
	// running. The UI action that starts a saga can be double-clicked.
	ErrSagaInFlight = errors.New("a booking saga is already in flight")

	// ErrNoServices means the input carried an empty service selection.
	ErrNoServices = errors.New("no services selected")
)

// StepError is the terminal failure of a saga instance. The saga cannot be
// resumed; the caller starts a new one with fresh idempotency keys.
// SupportContact marks the charge-step ambiguity where the gateway may have
// charged but the response was lost: the user must contact support instead
// of retrying.
type StepError struct {
	Step           string
	Reason         string
	SupportContact bool
	Err            error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("saga failed at %s: %s", e.Step, e.Reason)
}

func (e *StepError) Unwrap() error { return e.Err }

// FailedStep extracts the failing step name from an error chain, or "".
func FailedStep(err error) string {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Step
	}
	return ""
}

// NeedsSupportContact reports whether the error chain carries the
// possible-charge-without-confirmation flag.
func NeedsSupportContact(err error) bool {
	var stepErr *StepError
	return errors.As(err, &stepErr) && stepErr.SupportContact
}
