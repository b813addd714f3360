package secureendpoint

import "go.uber.org/zap"

// Write frames src and hands the result to the wrapped endpoint. src must
// stay valid until cb fires. At most one Write may be outstanding at a
// time.
func (ep *SecureEndpoint) Write(src *Buffer, cb WriteCompletion, args WriteArgs) {
	if ep.destroyed.Load() {
		runInExecCtx(ep.logger, ep.label, func() { cb(ErrDestroyed) })
		return
	}

	ep.writeMu.Lock()
	ep.outputBuf.Reset()

	var ferr error
	if ep.framer.IsZeroCopy() {
		ferr = ep.protectZeroCopy(src, args)
		ep.framerStagingBuf.Reset()
	} else {
		ferr = ep.drainCopyingWrite(src)
	}

	if ferr != nil {
		ep.outputBuf.Reset()
		ep.writeMu.Unlock()
		runInExecCtx(ep.logger, ep.label, func() { cb(wrapProtectError(ferr)) })
		return
	}

	ep.writeCB = cb
	ep.ref("write")
	out := &ep.outputBuf
	ep.writeMu.Unlock()

	ep.wrapped.Write(out, ep.onWrite, args)
}

// onWrite is the completion passed to the wrapped endpoint's Write.
func (ep *SecureEndpoint) onWrite(err error) {
	cb := ep.writeCB
	ep.writeCB = nil

	var final error
	if err != nil {
		final = wrapWriteError(err)
	}

	ep.logger.Debug("secure endpoint write complete", zap.String("label", ep.label), zap.Error(final))
	runInExecCtx(ep.logger, ep.label, func() { cb(final) })
	ep.unref("write")
}

// protectZeroCopy chunks src into frames no larger than the smaller of
// args.MaxFrameSize (if set) and the framer's own MaxFrameSize, handing
// each chunk to the zero-copy framer's Protect. Must be called with
// writeMu held.
func (ep *SecureEndpoint) protectZeroCopy(src *Buffer, args WriteArgs) error {
	maxFrame := ep.framer.ZeroCopy.MaxFrameSize()
	if args.MaxFrameSize > 0 && args.MaxFrameSize < maxFrame {
		maxFrame = args.MaxFrameSize
	}

	for src.Len() > 0 {
		n := src.Len()
		if n > maxFrame {
			n = maxFrame
		}

		ep.framerStagingBuf.Reset()
		src.MoveFirstInto(n, &ep.framerStagingBuf)

		ep.framerMu.Lock()
		err := ep.framer.ZeroCopy.Protect(&ep.framerStagingBuf, &ep.outputBuf)
		ep.framerMu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// drainCopyingWrite feeds each slice of src through the copying framer's
// Protect, then drains Flush until no ciphertext remains buffered inside
// the framer. Must be called with writeMu held.
func (ep *SecureEndpoint) drainCopyingWrite(src *Buffer) error {
	var ferr error

outer:
	for i := 0; i < src.Count(); i++ {
		msg := src.At(i)
		keepLooping := false

		for len(msg) > 0 || keepLooping {
			if ep.writeStagingUsed >= len(ep.writeStagingFull) {
				if err := ep.flushWriteStaging(); err != nil {
					ferr = err
					break outer
				}
			}

			window := ep.writeStagingFull[ep.writeStagingUsed:]

			ep.framerMu.Lock()
			consumed, written, err := ep.framer.Copying.Protect(msg, window)
			ep.framerMu.Unlock()
			if err != nil {
				ferr = err
				break outer
			}

			msg = msg[consumed:]
			ep.writeStagingUsed += written
			keepLooping = written > 0
		}
	}

	if ferr == nil {
		ferr = ep.drainCopyingFlush()
	}
	if err := ep.flushWriteStaging(); err != nil && ferr == nil {
		ferr = err
	}
	return ferr
}

// drainCopyingFlush repeatedly calls the copying framer's Flush, spilling
// the write staging window as it fills, until Flush reports nothing
// pending. Must be called with writeMu held.
func (ep *SecureEndpoint) drainCopyingFlush() error {
	for {
		if ep.writeStagingUsed >= len(ep.writeStagingFull) {
			if err := ep.flushWriteStaging(); err != nil {
				return err
			}
		}

		window := ep.writeStagingFull[ep.writeStagingUsed:]

		ep.framerMu.Lock()
		written, pending, err := ep.framer.Copying.Flush(window)
		ep.framerMu.Unlock()
		if err != nil {
			return err
		}

		ep.writeStagingUsed += written
		if pending == 0 {
			return nil
		}
	}
}

// flushWriteStaging spills any dirty prefix of the write staging window
// into outputBuf and shrinks the window to whatever capacity remains; if
// nothing remains, it reserves a fresh STAGING-byte slice and posts a
// benign reclaimer, since repeated reallocation under write pressure is
// exactly the condition the reclaimer exists to relieve. A flush that only
// trims a dirty-but-not-full window never reallocates and so never posts
// one. Must be called with writeMu held.
func (ep *SecureEndpoint) flushWriteStaging() error {
	if ep.writeStagingUsed > 0 {
		ep.outputBuf.Append(ep.writeStagingFull[:ep.writeStagingUsed])
		ep.writeStagingFull = ep.writeStagingFull[ep.writeStagingUsed:]
		ep.writeStagingUsed = 0
	}
	if len(ep.writeStagingFull) > 0 {
		return nil
	}

	staging, res, err := ep.memoryOwner.MakeSlice(bgCtx, STAGING)
	if err != nil {
		return err
	}
	old := ep.writeStagingRes
	ep.writeStagingFull = staging
	ep.writeStagingRes = res
	old.Release()

	ep.maybePostReclaimer()
	return nil
}
