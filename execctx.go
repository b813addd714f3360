package secureendpoint

import "go.uber.org/zap"

// runInExecCtx is the Go stand-in for grpc-core's ambient execution
// context: ExecCtx batches closures scheduled during a call so they run on
// the same stack instead of bouncing through the scheduler one at a time.
// This package has no event loop to batch onto, so runInExecCtx instead
// gives every place that invokes a caller's
// completion a single, named choke point — one that guarantees the
// completion runs exactly once and that a panic inside it is recovered and
// logged rather than taking down whichever goroutine happened to be
// running the wrapped endpoint.
//
// It is used both for the "caller already holds a context on its stack"
// case (a leftover-buffer read completing synchronously inside Read) and
// the "establish a temporary context for a worker thread" case (onRead /
// onWrite firing from the wrapped endpoint's own goroutine) — in both cases
// the call site just calls runInExecCtx(logger, label, fn); there is no
// separate acquire/release pair to get wrong.
func runInExecCtx(logger *zap.Logger, label string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in secure endpoint completion",
				zap.String("label", label),
				zap.Any("recovered", r),
			)
		}
	}()
	fn()
}
