package secureendpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryOwnerReserveAndRelease(t *testing.T) {
	owner := NewMemoryOwner(100)

	res, err := owner.Reserve(context.Background(), 40)
	require.NoError(t, err)
	assert.Equal(t, int64(40), res.Size())

	res.Release()
	res.Release() // idempotent, must not panic or double-release the semaphore

	res2, err := owner.Reserve(context.Background(), 100)
	require.NoError(t, err)
	res2.Release()
}

func TestMemoryOwnerMakeSlice(t *testing.T) {
	owner := NewMemoryOwner(1024)
	s, res, err := owner.MakeSlice(context.Background(), 128)
	require.NoError(t, err)
	assert.Len(t, s, 128)
	defer res.Release()
}

func TestMemoryOwnerReservePressureFiresReclaimer(t *testing.T) {
	owner := NewMemoryOwner(10)

	held, err := owner.Reserve(context.Background(), 10)
	require.NoError(t, err)

	fired := make(chan *ReclamationSweep, 1)
	owner.PostReclaimer(ReclamationBenign, func(sweep *ReclamationSweep) {
		fired <- sweep
	})

	done := make(chan struct{})
	var blockedErr error
	go func() {
		_, blockedErr = owner.Reserve(context.Background(), 5)
		close(done)
	}()

	select {
	case sweep := <-fired:
		require.NotNil(t, sweep)
	case <-time.After(time.Second):
		t.Fatal("reclaimer never fired under pressure")
	}

	held.Release()

	select {
	case <-done:
		assert.NoError(t, blockedErr)
	case <-time.After(time.Second):
		t.Fatal("reserve never unblocked after reclaimer released memory")
	}
}

func TestMemoryOwnerResetCancelsPendingReclaimers(t *testing.T) {
	owner := NewMemoryOwner(100)

	cancelled := make(chan bool, 1)
	owner.PostReclaimer(ReclamationBenign, func(sweep *ReclamationSweep) {
		cancelled <- sweep == nil
	})

	owner.Reset()

	select {
	case wasCancelled := <-cancelled:
		assert.True(t, wasCancelled)
	case <-time.After(time.Second):
		t.Fatal("reclaimer was never cancelled by Reset")
	}

	// A registration made after Reset is cancelled immediately too.
	cancelled2 := make(chan bool, 1)
	owner.PostReclaimer(ReclamationBenign, func(sweep *ReclamationSweep) {
		cancelled2 <- sweep == nil
	})
	select {
	case wasCancelled := <-cancelled2:
		assert.True(t, wasCancelled)
	case <-time.After(time.Second):
		t.Fatal("post-Reset registration was never cancelled")
	}
}

func TestReservationReleaseOnNilIsNoop(t *testing.T) {
	var res *Reservation
	assert.NotPanics(t, func() { res.Release() })
}

func TestMemoryOwnerReserveContextCanceledPropagates(t *testing.T) {
	owner := NewMemoryOwner(1)
	held, err := owner.Reserve(context.Background(), 1)
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = owner.Reserve(ctx, 1)
	assert.Error(t, err)
}
