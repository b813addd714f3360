package secureendpoint

import "sync"

// fakeWrapped is an in-memory WrappedEndpoint used by every endpoint-level
// test in this package: it completes Read/Write synchronously (from the
// calling goroutine) with queued or captured data, unless overridden.
type fakeWrapped struct {
	mu          sync.Mutex
	readChunks  [][]byte
	readErr     error
	writes      [][]byte
	writeErr    error
	destroyed   bool
}

func (f *fakeWrapped) Read(dst *Buffer, cb ReadCompletion, urgent bool, minProgress int) {
	f.mu.Lock()
	if len(f.readChunks) == 0 {
		err := f.readErr
		f.mu.Unlock()
		cb(err)
		return
	}
	chunk := f.readChunks[0]
	f.readChunks = f.readChunks[1:]
	f.mu.Unlock()
	dst.Append(chunk)
	cb(nil)
}

func (f *fakeWrapped) Write(src *Buffer, cb WriteCompletion, args WriteArgs) {
	f.mu.Lock()
	for i := 0; i < src.Count(); i++ {
		b := make([]byte, len(src.At(i)))
		copy(b, src.At(i))
		f.writes = append(f.writes, b)
	}
	err := f.writeErr
	f.mu.Unlock()
	cb(err)
}

func (f *fakeWrapped) Destroy() {
	f.mu.Lock()
	f.destroyed = true
	f.mu.Unlock()
}

func (f *fakeWrapped) AddToPollset(Pollset)                   {}
func (f *fakeWrapped) AddToPollsetSet(PollsetSet)              {}
func (f *fakeWrapped) DeleteFromPollsetSet(PollsetSet)         {}
func (f *fakeWrapped) Peer() string                            { return "fake-peer" }
func (f *fakeWrapped) LocalAddress() string                    { return "fake-local" }
func (f *fakeWrapped) FD() int                                  { return -1 }
func (f *fakeWrapped) CanTrackErr() bool                        { return false }

// blockingWrapped behaves like fakeWrapped but defers its Read completion
// until release is closed, from a dedicated goroutine — for tests that need
// to observe an endpoint state change (e.g. Destroy) while a read is still
// in flight.
type blockingWrapped struct {
	fakeWrapped
	release chan struct{}
	payload []byte
}

func (b *blockingWrapped) Read(dst *Buffer, cb ReadCompletion, urgent bool, minProgress int) {
	go func() {
		<-b.release
		if len(b.payload) > 0 {
			dst.Append(b.payload)
		}
		cb(nil)
	}()
}

// identityCopyingFramer passes bytes through unchanged, with no internal
// buffering of its own, isolating the staging-buffer flush mechanics under
// test from any cryptographic transform.
type identityCopyingFramer struct {
	threadSafe bool
}

func (identityCopyingFramer) Protect(in, out []byte) (consumed, written int, err error) {
	n := copy(out, in)
	return n, n, nil
}

func (identityCopyingFramer) Flush(out []byte) (written, pending int, err error) {
	return 0, 0, nil
}

func (identityCopyingFramer) Unprotect(in, out []byte) (consumed, written int, err error) {
	n := copy(out, in)
	return n, n, nil
}

func (f identityCopyingFramer) ThreadSafe() bool { return f.threadSafe }

// failingCopyingFramer lets the first failUnprotectAfter calls to Unprotect
// succeed and fails every call after that, for exercising the "partial plaintext survives a framer error" behavior.
type failingCopyingFramer struct {
	identityCopyingFramer
	failUnprotectAfter int
	calls              int
	failErr            error
}

func (f *failingCopyingFramer) Unprotect(in, out []byte) (int, int, error) {
	f.calls++
	if f.calls > f.failUnprotectAfter {
		return 0, 0, f.failErr
	}
	return f.identityCopyingFramer.Unprotect(in, out)
}

// fakeZeroCopyFramer passes bytes through unchanged but counts Protect
// calls, for exercising max-frame-size chunking.
type fakeZeroCopyFramer struct {
	mu           sync.Mutex
	maxFrameSize int
	protectCalls int
	minProgress  int
}

func (f *fakeZeroCopyFramer) Protect(in, out *Buffer) error {
	f.mu.Lock()
	f.protectCalls++
	f.mu.Unlock()
	out.Append(in.Bytes())
	return nil
}

func (f *fakeZeroCopyFramer) Unprotect(in, out *Buffer) (int, error) {
	out.Append(in.Bytes())
	mp := f.minProgress
	if mp == 0 {
		mp = 1
	}
	return mp, nil
}

func (f *fakeZeroCopyFramer) MaxFrameSize() int { return f.maxFrameSize }
func (f *fakeZeroCopyFramer) ThreadSafe() bool  { return true }
