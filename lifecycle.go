package secureendpoint

import "go.uber.org/zap"

// Destroy tears the endpoint down exactly once: it is safe to call
// concurrently with an in-flight Read or Write, and safe to call more than
// once (every call after the first is a no-op).
//
// It takes both readMu and writeMu before touching the wrapped endpoint so
// that any completion already running for an in-flight read or write is
// either finished or blocked behind this call — never torn down out from
// under it — which is what lets onRead's post-destroy check turn a race
// into ErrShutdown instead of a data race. onWrite has no such check: a
// wrapped write that completes after Destroy reports its own result.
func (ep *SecureEndpoint) Destroy() {
	if !ep.destroyed.CompareAndSwap(false, true) {
		return
	}

	ep.readMu.Lock()
	ep.writeMu.Lock()

	ep.wrapped.Destroy()
	ep.memoryOwner.Reset()

	// Capture and nil out the reservations while still holding both locks,
	// the same locks a concurrent reclaimer sweep (reclaim.go's onReclaim)
	// takes with TryLock before touching these same fields. Releasing only
	// after unlocking would let a sweep that wins the TryLock race read and
	// clear a field this goroutine is also about to touch.
	selfRes := ep.selfReservation
	ep.selfReservation = nil
	readRes := ep.readStagingRes
	ep.readStagingRes = nil
	writeRes := ep.writeStagingRes
	ep.writeStagingRes = nil

	ep.writeMu.Unlock()
	ep.readMu.Unlock()

	selfRes.Release()
	readRes.Release()
	writeRes.Release()

	ep.logger.Debug("secure endpoint destroyed", zap.String("label", ep.label))
	ep.unref("destroy")
}

// The remaining methods are pure pass-throughs to the wrapped endpoint.
// None of them touch readMu/writeMu/framerMu: they carry no framing state
// of their own to protect.

func (ep *SecureEndpoint) AddToPollset(ps Pollset) { ep.wrapped.AddToPollset(ps) }

func (ep *SecureEndpoint) AddToPollsetSet(pss PollsetSet) { ep.wrapped.AddToPollsetSet(pss) }

func (ep *SecureEndpoint) DeleteFromPollsetSet(pss PollsetSet) { ep.wrapped.DeleteFromPollsetSet(pss) }

func (ep *SecureEndpoint) Peer() string { return ep.wrapped.Peer() }

func (ep *SecureEndpoint) LocalAddress() string { return ep.wrapped.LocalAddress() }

func (ep *SecureEndpoint) FD() int { return ep.wrapped.FD() }

func (ep *SecureEndpoint) CanTrackErr() bool { return ep.wrapped.CanTrackErr() }
