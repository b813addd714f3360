package secureendpoint

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLeftoverReplayedBeforeAnyWrappedRead(t *testing.T) {
	wrapped := &fakeWrapped{readChunks: [][]byte{[]byte("should-not-be-used")}}
	ep, err := New(Config{
		Wrapped:  wrapped,
		Framer:   Framer{Copying: identityCopyingFramer{}},
		Leftover: [][]byte{[]byte("left"), []byte("over")},
	})
	require.NoError(t, err)
	defer ep.Destroy()

	done := make(chan error, 1)
	dst := NewBuffer()
	ep.Read(dst, func(err error) { done <- err }, false)
	require.NoError(t, <-done)

	assert.Equal(t, []byte("leftover"), dst.Bytes())

	wrapped.mu.Lock()
	remaining := len(wrapped.readChunks)
	wrapped.mu.Unlock()
	assert.Equal(t, 1, remaining, "wrapped.Read must not have been called while leftover was pending")
}

func TestReadDestroyRaceConvertsSuccessToShutdown(t *testing.T) {
	wrapped := &blockingWrapped{release: make(chan struct{}), payload: []byte("late")}
	ep, err := New(Config{
		Wrapped: wrapped,
		Framer:  Framer{Copying: identityCopyingFramer{}},
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	dst := NewBuffer()
	ep.Read(dst, func(err error) { done <- err }, false)

	ep.Destroy()
	close(wrapped.release)

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrShutdown)
		assert.Equal(t, 0, dst.Len(), "plaintext must be discarded on a post-destroy race")
	case <-time.After(time.Second):
		t.Fatal("read completion never fired")
	}
}

func TestUnprotectErrorKeepsPartialPlaintext(t *testing.T) {
	boom := errors.New("boom")
	framer := &failingCopyingFramer{failUnprotectAfter: 1, failErr: boom}
	wrapped := &fakeWrapped{readChunks: [][]byte{[]byte("first-chunk"), []byte("second-chunk")}}
	ep, err := New(Config{
		Wrapped: wrapped,
		Framer:  Framer{Copying: framer},
	})
	require.NoError(t, err)
	defer ep.Destroy()

	done1 := make(chan error, 1)
	dst1 := NewBuffer()
	ep.Read(dst1, func(err error) { done1 <- err }, false)
	require.NoError(t, <-done1)
	assert.Equal(t, []byte("first-chunk"), dst1.Bytes())

	done2 := make(chan error, 1)
	dst2 := NewBuffer()
	ep.Read(dst2, func(err error) { done2 <- err }, false)
	err2 := <-done2
	require.Error(t, err2)
	assert.Contains(t, err2.Error(), "Unwrap failed")
	assert.Contains(t, err2.Error(), boom.Error())
}
