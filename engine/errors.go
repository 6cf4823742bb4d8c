package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/flowbothq/flowbot/connector"
)

// ExecutionFailed reports the first step that broke a chain. StepIndex is
// 1-based so it reads naturally in run logs and error messages.
type ExecutionFailed struct {
	StepIndex int
	StepKind  connector.Kind
	Cause     error
}

func (e *ExecutionFailed) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", e.StepIndex, e.StepKind, e.Cause)
}

func (e *ExecutionFailed) Unwrap() error { return e.Cause }

// TimeoutError marks a step that ran out of its deadline.
type TimeoutError struct {
	StepIndex int
	StepKind  connector.Kind
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("step %d (%s) timed out", e.StepIndex, e.StepKind)
}

// IsTimeout reports whether an execution failure was caused by a deadline.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te) || errors.Is(err, context.DeadlineExceeded)
}
