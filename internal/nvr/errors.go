package nvr

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies an NVR client failure. Connect and Auth failures are fatal
// for a whole run; Timeout and IncompleteTransfer are retried per job.
type Kind string

const (
	KindConnect            Kind = "connect"
	KindAuth               Kind = "auth"
	KindValidation         Kind = "validation"
	KindProtocol           Kind = "protocol"
	KindTimeout            Kind = "timeout"
	KindIncompleteTransfer Kind = "incomplete_transfer"
)

// Error is a classified failure of one NVR operation.
type Error struct {
	Kind Kind
	Op   string
	Host string
	Err  error
}

func (e *Error) Error() string {
	if e.Host != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Host, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the Kind of err, or "" if err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, op, host string, err error) *Error {
	return &Error{Kind: kind, Op: op, Host: host, Err: err}
}

func validationErrorf(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Err: fmt.Errorf(format, args...)}
}

// classifyTransport sorts a transport-level failure into timeout vs connect.
// A canceled context is an interrupt, not a device failure, and passes
// through unclassified.
func classifyTransport(op, host string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTimeout, op, host, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return newError(KindTimeout, op, host, err)
	}
	return newError(KindConnect, op, host, err)
}
