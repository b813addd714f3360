package secureendpoint

import "sync"

// CopyingFramer is a stateful byte-pump framer: it may buffer partial
// frames internally and exposes an explicit Flush to drain that buffering
// on write. This mirrors tsi_frame_protector's protect/protect_flush/
// unprotect triad.
type CopyingFramer interface {
	// Protect consumes a prefix of in, writing as many protected bytes as
	// fit into out. It returns the number of bytes consumed from in and
	// written to out.
	Protect(in, out []byte) (consumed, written int, err error)

	// Flush drains any output the framer is still holding onto into out.
	// pending reports how many bytes of drained output remain after this
	// call; the caller must keep calling Flush (with a fresh out each time
	// the previous one fills) until pending is zero.
	Flush(out []byte) (written int, pending int, err error)

	// Unprotect consumes a prefix of in, writing as many unprotected bytes
	// as fit into out.
	Unprotect(in, out []byte) (consumed, written int, err error)

	// ThreadSafe reports whether this framer may be called concurrently
	// from the read and write paths without external synchronization. When
	// false, SecureEndpoint serializes all calls to this framer under its
	// own mutex.
	ThreadSafe() bool
}

// ZeroCopyFramer operates directly on Buffers rather than pumping through
// caller-supplied scratch slices, and is bounded by a configured maximum
// output frame size on write.
type ZeroCopyFramer interface {
	// Protect encrypts the entirety of in, appending protected frames to
	// out. SecureEndpoint never passes more than MaxFrameSize plaintext
	// bytes in one call.
	Protect(in, out *Buffer) error

	// Unprotect decrypts as much of in as constitutes complete frames,
	// appending plaintext to out. minProgress estimates how many more
	// ciphertext bytes the framer needs to make further progress — it is
	// the basis for the min_progress hint passed to the wrapped endpoint's
	// next read.
	Unprotect(in, out *Buffer) (minProgress int, err error)

	// MaxFrameSize is the largest number of plaintext bytes SecureEndpoint
	// hands to a single Protect call. It does not include framing overhead:
	// the ciphertext frame Protect emits for that input can be longer.
	MaxFrameSize() int

	ThreadSafe() bool
}

// Framer is the tagged variant of the two framer capabilities: exactly one
// of Copying or ZeroCopy is set. Representing the choice as a struct with
// two optional fields (rather than, say, an interface{} + type switch)
// keeps the dispatch a single check made once per read/write call, not
// once per byte, per the design notes.
type Framer struct {
	Copying  CopyingFramer
	ZeroCopy ZeroCopyFramer
}

// IsZeroCopy reports which variant is active.
func (f Framer) IsZeroCopy() bool {
	return f.ZeroCopy != nil
}

func (f Framer) threadSafe() bool {
	if f.IsZeroCopy() {
		return f.ZeroCopy.ThreadSafe()
	}
	return f.Copying.ThreadSafe()
}

// framerLock is the type-level encoding of "optional mutex around the
// framer" from the design notes: a ThreadSafeFramer gets a no-op lock, a
// SerializedFramer gets a real one, and callers never branch on a bool at
// the call site — they just Lock/Unlock.
func newFramerLock(threadSafe bool) sync.Locker {
	if threadSafe {
		return noopLocker{}
	}
	return &sync.Mutex{}
}

type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}
