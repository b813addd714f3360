package secureendpoint

import "go.uber.org/zap"

// maybePostReclaimer registers a single benign reclaimer with the memory
// owner the first time write pressure causes a staging-buffer
// reallocation, guarding against posting a second one while the first is
// still outstanding. The extra reference it takes is dropped in onReclaim,
// whether the registration ultimately fires or is cancelled outright by a
// MemoryOwner.Reset.
func (ep *SecureEndpoint) maybePostReclaimer() {
	if !ep.hasPostedReclaimer.CompareAndSwap(false, true) {
		return
	}
	ep.ref("benign_reclaimer")
	ep.memoryOwner.PostReclaimer(ReclamationBenign, ep.onReclaim)
}

// onReclaim is the memory owner's callback for the registration made by
// maybePostReclaimer. A nil sweep means the registration was cancelled
// without ever running (e.g. the owner was reset around Destroy); either
// way the reference taken to keep the endpoint alive for the callback is
// released here.
//
// Reclaiming empties a staging buffer outright rather than shrinking it, on
// the invariant that a read or write only ever leaves its staging window
// dirty while holding readMu/writeMu — so whenever the reclaimer can take
// one of those locks, nothing is lost by discarding its current window.
// Each buffer is tried independently with TryLock rather than Lock: the
// very write whose staging reallocation triggered this sweep may itself be
// blocked inside MemoryOwner.Reserve while holding writeMu, and blocking
// here on the same mutex would deadlock against the reservation this sweep
// exists to unblock. Releasing the other buffer's reservation is still
// useful — both draw from the same quota — so a sweep that can only reach
// one of the two still makes progress.
func (ep *SecureEndpoint) onReclaim(sweep *ReclamationSweep) {
	if sweep != nil {
		ep.logger.Debug("secure endpoint reclaiming staging buffers", zap.String("label", ep.label))

		if ep.readMu.TryLock() {
			old := ep.readStagingRes
			ep.readStagingFull = nil
			ep.readStagingUsed = 0
			ep.readStagingRes = nil
			ep.readMu.Unlock()
			old.Release()
		}

		if ep.writeMu.TryLock() {
			old := ep.writeStagingRes
			ep.writeStagingFull = nil
			ep.writeStagingUsed = 0
			ep.writeStagingRes = nil
			ep.writeMu.Unlock()
			old.Release()
		}

		ep.hasPostedReclaimer.Store(false)
	}

	ep.unref("benign_reclaimer")
}
