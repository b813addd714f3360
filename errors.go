package secureendpoint

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrShutdown is reported to an in-flight read whose completion fires
// after the endpoint has been destroyed.
var ErrShutdown = errors.New("secure endpoint shutdown")

// ErrDestroyed is returned by Read/Write when called on an endpoint that
// has already had Destroy invoked.
var ErrDestroyed = errors.New("secure endpoint already destroyed")

// framerError carries a message formatted as "Unwrap failed (<status>)" or
// "Wrap failed (<status>)" while still chaining to the underlying framer
// status for errors.Is/errors.As and for github.com/pkg/errors' Cause().
type framerError struct {
	msg   string
	cause error
}

func (e *framerError) Error() string { return e.msg }
func (e *framerError) Unwrap() error { return e.cause }
func (e *framerError) Cause() error  { return e.cause }

// wrapReadError wraps a transport error from the wrapped endpoint's read
// with the message "Secure read failed". Using pkg/errors.Wrap (rather
// than fmt.Errorf) attaches a stack trace at the point the secure endpoint
// noticed the failure.
func wrapReadError(err error) error {
	return errors.Wrap(err, "Secure read failed")
}

// wrapWriteError wraps a transport error from the wrapped endpoint's write,
// mirroring wrapReadError for the write direction.
func wrapWriteError(err error) error {
	return errors.Wrap(err, "Secure write failed")
}

// wrapUnprotectError wraps a non-nil framer status from Unprotect as
// "Unwrap failed (<status>)".
func wrapUnprotectError(status error) error {
	return &framerError{msg: fmt.Sprintf("Unwrap failed (%s)", status), cause: status}
}

// wrapProtectError wraps a non-nil framer status from Protect/Flush as
// "Wrap failed (<status>)".
func wrapProtectError(status error) error {
	return &framerError{msg: fmt.Sprintf("Wrap failed (%s)", status), cause: status}
}
