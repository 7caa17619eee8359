package worker

import (
	"context"
	"errors"
	"net"

	"github.com/avi3tal/agentrunner/internal/patch"
)

// Failure error types attached to failed completion signals.
const (
	errTypeTransient  = "transient"
	errTypeValidation = "validation"
	errTypeConfig     = "configuration"
	errTypePermanent  = "permanent"
)

// retryable is implemented by transport errors whose Retryable method
// says whether a retry might succeed.
type retryable interface {
	Retryable() bool
}

// classify maps a job failure to an error type and retryability for
// signal metadata. It never decides to retry itself; that is the
// coordinator's call.
func classify(err error) (string, bool) {
	var r retryable
	if errors.As(err, &r) {
		if r.Retryable() {
			return errTypeTransient, true
		}
		return errTypePermanent, false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return errTypeTransient, true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errTypeTransient, true
	}

	var vErr *patch.ValidationError
	if errors.As(err, &vErr) {
		return errTypeValidation, false
	}

	var toolErr *UnknownToolError
	if errors.As(err, &toolErr) {
		return errTypeConfig, false
	}
	return errTypePermanent, false
}
