package secureendpoint

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ReclamationPass distinguishes how aggressively a reclaimer is allowed to
// free memory. This module only ever registers benign reclaimers — ones
// that give back memory they can regenerate cheaply, like a staging
// buffer — but the type is kept so a future destructive pass has somewhere
// to live without changing the MemoryOwner API.
type ReclamationPass int

const (
	ReclamationBenign ReclamationPass = iota
	ReclamationDestructive
)

// ReclamationSweep is handed to a reclaimer callback when the owner has
// decided it is that callback's turn to free memory. Its only purpose is
// to prove the callback was actually invoked for a sweep, as opposed to
// being cancelled (a cancelled reclaimer is called with a nil sweep).
type ReclamationSweep struct {
	owner *MemoryOwner
}

type reclaimerRegistration struct {
	pass ReclamationPass
	cb   func(*ReclamationSweep)
	once sync.Once
}

func (r *reclaimerRegistration) fire(sweep *ReclamationSweep) {
	r.once.Do(func() {
		r.cb(sweep)
	})
}

func (r *reclaimerRegistration) cancel() {
	r.once.Do(func() {
		r.cb(nil)
	})
}

// MemoryOwner issues sized byte reservations against a quota and lets
// callers register one-shot reclaimer callbacks that fire under memory
// pressure. It is the Go analogue of grpc-core's MemoryOwner /
// MemoryQuota pair, backed here by golang.org/x/sync/semaphore.Weighted
// rather than a hand-rolled quota counter: reserving n bytes is
// semaphore.Acquire(n), releasing is semaphore.Release(n), and "the quota
// is pressured" is exactly a TryAcquire that fails.
//
// All methods are safe for concurrent use; the underlying semaphore and
// the reclaimer queue are both independently thread-safe.
type MemoryOwner struct {
	sem *semaphore.Weighted

	mu         sync.Mutex
	reclaimers []*reclaimerRegistration
	closed     bool
}

// NewMemoryOwner creates a MemoryOwner backed by a quota of quotaBytes.
func NewMemoryOwner(quotaBytes int64) *MemoryOwner {
	return &MemoryOwner{sem: semaphore.NewWeighted(quotaBytes)}
}

// Reservation is a deduction from a MemoryOwner's quota. Dropping it (via
// Release) returns the bytes to the quota.
type Reservation struct {
	owner    *MemoryOwner
	size     int64
	released bool
	mu       sync.Mutex
}

// Release returns the reservation's bytes to the owning quota. It is safe
// to call more than once; only the first call has an effect.
func (r *Reservation) Release() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return
	}
	r.released = true
	r.owner.sem.Release(r.size)
}

// Size reports the number of bytes this reservation holds.
func (r *Reservation) Size() int64 {
	return r.size
}

// Reserve deducts n bytes from the quota, blocking until they are
// available. If the quota is immediately pressured, Reserve fires the
// oldest pending reclaimer registration on its own goroutine before
// waiting, so a reclaimer that frees a staging buffer unblocks this call
// without the caller doing anything special.
func (m *MemoryOwner) Reserve(ctx context.Context, n int64) (*Reservation, error) {
	if m.sem.TryAcquire(n) {
		return &Reservation{owner: m, size: n}, nil
	}
	m.firePressure()
	if err := m.sem.Acquire(ctx, n); err != nil {
		return nil, err
	}
	return &Reservation{owner: m, size: n}, nil
}

// MakeSlice reserves n bytes and returns them as an owned []byte along
// with the reservation backing it. The caller must Release the
// reservation when the slice is discarded.
func (m *MemoryOwner) MakeSlice(ctx context.Context, n int) ([]byte, *Reservation, error) {
	res, err := m.Reserve(ctx, int64(n))
	if err != nil {
		return nil, nil, err
	}
	return make([]byte, n), res, nil
}

// PostReclaimer registers a one-shot callback that fires the next time the
// quota is pressured. At most one registration per pass is meant to be
// outstanding from a given caller; enforcing that is the caller's
// responsibility (see SecureEndpoint.hasPostedReclaimer), matching the
// source system where the benign-reclaimer guard lives on the endpoint,
// not the quota.
func (m *MemoryOwner) PostReclaimer(pass ReclamationPass, cb func(*ReclamationSweep)) {
	reg := &reclaimerRegistration{pass: pass, cb: cb}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		reg.cancel()
		return
	}
	m.reclaimers = append(m.reclaimers, reg)
	m.mu.Unlock()
}

// firePressure pops the oldest reclaimer registration, if any, and runs it
// on a new goroutine with a live sweep token.
func (m *MemoryOwner) firePressure() {
	m.mu.Lock()
	if len(m.reclaimers) == 0 {
		m.mu.Unlock()
		return
	}
	reg := m.reclaimers[0]
	m.reclaimers = m.reclaimers[1:]
	m.mu.Unlock()
	go reg.fire(&ReclamationSweep{owner: m})
}

// Reset cancels every pending reclaimer registration (each fires with a nil
// sweep, i.e. cb(None)) and marks the owner closed. This is what breaks the
// reclaimer-to-endpoint reference cycle described in the design notes:
// the endpoint's destroy calls Reset, which drops the strong references
// reclaimer registrations were holding on its behalf.
func (m *MemoryOwner) Reset() {
	m.mu.Lock()
	pending := m.reclaimers
	m.reclaimers = nil
	m.closed = true
	m.mu.Unlock()
	for _, reg := range pending {
		reg.cancel()
	}
}
