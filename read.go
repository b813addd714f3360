package secureendpoint

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Read asks for plaintext into dst; it appends whatever the framer produces
// from the next batch of ciphertext, which may be nothing if no complete
// frame has arrived yet. dst is reset to empty immediately; cb fires
// exactly once, either with the plaintext appended to dst and a nil error,
// or with dst left as whatever partial plaintext was produced before the
// framer hit an error — that prefix is kept, not discarded, since it
// already decrypted successfully. On a transport error, or a completion
// that races with Destroy, dst is left empty.
//
// At most one Read may be outstanding at a time; callers must wait for cb
// before calling Read again.
func (ep *SecureEndpoint) Read(dst *Buffer, cb ReadCompletion, urgent bool) {
	if ep.destroyed.Load() {
		dst.Reset()
		runInExecCtx(ep.logger, ep.label, func() { cb(ErrDestroyed) })
		return
	}

	dst.Reset()
	ep.readDst = dst
	ep.readCB = cb
	ep.ref("read")

	if ep.leftoverBuf.Count() > 0 {
		ep.leftoverBuf.Swap(&ep.sourceBuf)
		ep.onRead(nil)
		return
	}

	mp := int(atomic.LoadInt32(&ep.minProgress))
	ep.wrapped.Read(&ep.sourceBuf, ep.onRead, urgent, mp)
}

// onRead is the completion passed to the wrapped endpoint's Read. It runs
// either synchronously from Read (the leftover fast path) or later, from
// whatever goroutine the wrapped endpoint completes on.
func (ep *SecureEndpoint) onRead(err error) {
	ep.readMu.Lock()

	// A destroy that completed while this read was in flight must be
	// observed here: a success that raced with shutdown becomes a
	// cancellation, never a silent post-destroy delivery.
	if ep.destroyed.Load() && err == nil {
		err = ErrShutdown
	}

	dst := ep.readDst
	var framerErr error

	switch {
	case err != nil:
		dst.Reset()
	case ep.framer.IsZeroCopy():
		mp, ferr := ep.framer.ZeroCopy.Unprotect(&ep.sourceBuf, dst)
		if ferr != nil {
			framerErr = ferr
			atomic.StoreInt32(&ep.minProgress, 1)
		} else {
			if mp < 1 {
				mp = 1
			}
			atomic.StoreInt32(&ep.minProgress, int32(mp))
		}
	default:
		framerErr = ep.drainCopyingUnprotect(dst)
	}

	ep.readMu.Unlock()

	ep.sourceBuf.Reset()

	var final error
	switch {
	case err != nil:
		final = wrapReadError(err)
	case framerErr != nil:
		final = wrapUnprotectError(framerErr)
	}

	ep.callReadCB(final)
}

// drainCopyingUnprotect feeds each source slice through the copying
// framer's Unprotect, spilling full (or, at the end, dirty-but-partial)
// staging windows into dst. Must be called with readMu held.
//
// The top-of-loop check ("is the staging window out of room?") runs before
// each Unprotect call rather than after, which is the one deliberate
// deviation from the original byte-pump's cur==end-checked-after-the-call
// structure: it means a staging window left empty by a reclaimer sweep is
// replenished before the framer is ever asked to write into zero bytes,
// instead of relying on the framer reporting zero progress first.
func (ep *SecureEndpoint) drainCopyingUnprotect(dst *Buffer) error {
	var ferr error

outer:
	for i := 0; i < ep.sourceBuf.Count(); i++ {
		msg := ep.sourceBuf.At(i)
		keepLooping := false

		for len(msg) > 0 || keepLooping {
			if ep.readStagingUsed >= len(ep.readStagingFull) {
				if err := ep.flushReadStaging(dst); err != nil {
					ferr = err
					break outer
				}
			}

			window := ep.readStagingFull[ep.readStagingUsed:]

			ep.framerMu.Lock()
			consumed, written, err := ep.framer.Copying.Unprotect(msg, window)
			ep.framerMu.Unlock()
			if err != nil {
				ferr = err
				break outer
			}

			msg = msg[consumed:]
			ep.readStagingUsed += written
			// Exit the drain loop only once a call produces zero output —
			// a full staging window alone is not a reason to stop, since
			// the framer may still be holding buffered plaintext.
			keepLooping = written > 0
		}
	}

	if err := ep.flushReadStaging(dst); err != nil && ferr == nil {
		ferr = err
	}
	return ferr
}

// flushReadStaging spills any dirty prefix of the read staging window into
// dst and shrinks the window to whatever capacity remains; if nothing
// remains, it reserves a fresh STAGING-byte slice, releasing the old
// reservation. Must be called with readMu held.
func (ep *SecureEndpoint) flushReadStaging(dst *Buffer) error {
	if ep.readStagingUsed > 0 {
		dst.Append(ep.readStagingFull[:ep.readStagingUsed])
		ep.readStagingFull = ep.readStagingFull[ep.readStagingUsed:]
		ep.readStagingUsed = 0
	}
	if len(ep.readStagingFull) > 0 {
		return nil
	}

	staging, res, err := ep.memoryOwner.MakeSlice(bgCtx, STAGING)
	if err != nil {
		return err
	}
	old := ep.readStagingRes
	ep.readStagingFull = staging
	ep.readStagingRes = res
	old.Release()
	return nil
}

// callReadCB hands final off to the caller's completion and drops the
// read-path strong reference, matching call_read_cb in the source system.
func (ep *SecureEndpoint) callReadCB(final error) {
	cb := ep.readCB
	ep.readCB = nil
	ep.readDst = nil
	ep.logger.Debug("secure endpoint read complete", zap.String("label", ep.label), zap.Error(final))
	runInExecCtx(ep.logger, ep.label, func() { cb(final) })
	ep.unref("read")
}
