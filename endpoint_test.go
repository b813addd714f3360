package secureendpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresExactlyOneFramer(t *testing.T) {
	_, err := New(Config{Wrapped: &fakeWrapped{}})
	assert.Error(t, err)

	_, err = New(Config{
		Wrapped: &fakeWrapped{},
		Framer: Framer{
			Copying:  identityCopyingFramer{},
			ZeroCopy: &fakeZeroCopyFramer{maxFrameSize: 1024},
		},
	})
	assert.Error(t, err)
}

func TestNewCopyingFramerReservesStagingBuffers(t *testing.T) {
	ep, err := New(Config{
		Wrapped: &fakeWrapped{},
		Framer:  Framer{Copying: identityCopyingFramer{}},
	})
	require.NoError(t, err)
	assert.Len(t, ep.readStagingFull, STAGING)
	assert.Len(t, ep.writeStagingFull, STAGING)
	ep.Destroy()
}

func TestNewZeroCopyFramerSkipsStagingBuffers(t *testing.T) {
	ep, err := New(Config{
		Wrapped: &fakeWrapped{},
		Framer:  Framer{ZeroCopy: &fakeZeroCopyFramer{maxFrameSize: 1024}},
	})
	require.NoError(t, err)
	assert.Nil(t, ep.readStagingFull)
	assert.Nil(t, ep.writeStagingFull)
	ep.Destroy()
}

func TestDestroyIsIdempotentAndDestroysWrapped(t *testing.T) {
	wrapped := &fakeWrapped{}
	ep, err := New(Config{
		Wrapped: wrapped,
		Framer:  Framer{Copying: identityCopyingFramer{}},
	})
	require.NoError(t, err)

	ep.Destroy()
	ep.Destroy() // must not panic or double-release reservations

	wrapped.mu.Lock()
	destroyed := wrapped.destroyed
	wrapped.mu.Unlock()
	assert.True(t, destroyed)
}

func TestReadAfterDestroyReturnsErrDestroyed(t *testing.T) {
	ep, err := New(Config{
		Wrapped: &fakeWrapped{},
		Framer:  Framer{Copying: identityCopyingFramer{}},
	})
	require.NoError(t, err)
	ep.Destroy()

	done := make(chan error, 1)
	dst := NewBuffer()
	ep.Read(dst, func(err error) { done <- err }, false)
	assert.ErrorIs(t, <-done, ErrDestroyed)
}

func TestWriteAfterDestroyReturnsErrDestroyed(t *testing.T) {
	ep, err := New(Config{
		Wrapped: &fakeWrapped{},
		Framer:  Framer{Copying: identityCopyingFramer{}},
	})
	require.NoError(t, err)
	ep.Destroy()

	done := make(chan error, 1)
	src := NewBuffer()
	src.Append([]byte("x"))
	ep.Write(src, func(err error) { done <- err }, WriteArgs{})
	assert.ErrorIs(t, <-done, ErrDestroyed)
}

func TestPassThroughAccessorsHitWrapped(t *testing.T) {
	wrapped := &fakeWrapped{}
	ep, err := New(Config{
		Wrapped: wrapped,
		Framer:  Framer{Copying: identityCopyingFramer{}},
	})
	require.NoError(t, err)
	defer ep.Destroy()

	assert.Equal(t, "fake-peer", ep.Peer())
	assert.Equal(t, "fake-local", ep.LocalAddress())
	assert.Equal(t, -1, ep.FD())
	assert.False(t, ep.CanTrackErr())
}
