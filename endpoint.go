// Package secureendpoint wraps a raw byte-transport endpoint with a
// pluggable cryptographic framer, turning plaintext writes into
// authenticated/encrypted frames on the wire and authenticated/encrypted
// inbound frames back into plaintext, while preserving the asynchronous
// callback contract of the underlying transport.
//
// It does not define a concrete cryptographic protocol, handle connection
// establishment, or speak any RPC framing above the byte stream — those
// are the caller's concern. See framer/aead for one concrete Framer
// implementation and internal/wrapped for a net.Conn-backed
// WrappedEndpoint.
package secureendpoint

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// bgCtx is used for the handful of reservations made during construction,
// none of which are expected to ever actually block: a freshly created
// MemoryOwner has its whole quota free.
var bgCtx = context.Background()

// STAGING is the fixed size, in bytes, of the read and write staging
// slices used by the copying-framer path.
const STAGING = 8192

// ReadCompletion is a single-shot callback reporting the outcome of a Read.
type ReadCompletion func(err error)

// WriteCompletion is a single-shot callback reporting the outcome of a
// Write.
type WriteCompletion func(err error)

// WriteArgs carries advisory parameters for a write, analogous to
// grpc_event_engine's WriteArgs.
type WriteArgs struct {
	// MaxFrameSize bounds how many plaintext bytes the zero-copy path hands
	// to a single framer Protect call (the smaller of this and the framer's
	// own MaxFrameSize applies). The bound is on the plaintext only: any
	// overhead the framer adds, such as a length prefix or an AEAD tag, is
	// not counted, so a ciphertext frame on the wire can be larger. It is
	// advisory — the copying framer path ignores it, since its frame size
	// is whatever the framer itself chooses.
	MaxFrameSize int
}

// Pollset and PollsetSet are opaque handles passed through to the wrapped
// endpoint unexamined; this package never constructs or inspects them, and
// defines them as empty interfaces purely so the pass-through methods have
// something concrete to take as a parameter. Polling/eventing mechanics
// belong to the underlying transport, not to the framing layer.
type Pollset interface{}
type PollsetSet interface{}

// WrappedEndpoint is the abstract byte-stream endpoint this package wraps.
// Implementations must guarantee at most one Read and at most one Write
// outstanding at a time (the same contract SecureEndpoint offers its own
// callers), and must eventually invoke the supplied completion exactly
// once per call, even on Destroy.
type WrappedEndpoint interface {
	// Read appends the bytes it receives to dst (SecureEndpoint always
	// passes an empty buffer). minProgress hints that the implementation should
	// avoid completing until at least that many bytes are available;
	// urgent asks it to ignore that hint and return whatever is available
	// now.
	Read(dst *Buffer, cb ReadCompletion, urgent bool, minProgress int)

	// Write sends the bytes in src, which must remain valid until cb
	// fires.
	Write(src *Buffer, cb WriteCompletion, args WriteArgs)

	// Destroy releases the underlying transport. No further Read or Write
	// calls will be made after Destroy.
	Destroy()

	AddToPollset(ps Pollset)
	AddToPollsetSet(pss PollsetSet)
	DeleteFromPollsetSet(pss PollsetSet)

	Peer() string
	LocalAddress() string
	FD() int
	CanTrackErr() bool
}

// Config supplies everything SecureEndpoint needs at construction: a single
// struct of knobs rather than a long parameter list or functional options.
type Config struct {
	// Exactly one of Framer.Copying or Framer.ZeroCopy must be set.
	Framer Framer

	// Wrapped is the transport this endpoint takes exclusive ownership of.
	Wrapped WrappedEndpoint

	// Leftover holds ciphertext delivered at handshake time that must be
	// unframed before the first wrapped read is issued.
	Leftover [][]byte

	// MemoryOwner supplies the quota staging slices (and the endpoint's own
	// self-reservation) are reserved from. If nil, NewMemoryOwner is called
	// with DefaultMemoryQuota.
	MemoryOwner *MemoryOwner

	// Logger receives structured diagnostics. If nil, the package default
	// logger is used (a no-op logger unless SetDefaultLogger was called).
	Logger *zap.Logger

	// Label identifies this endpoint in log lines.
	Label string
}

// DefaultMemoryQuota is used to build an implicit MemoryOwner when Config
// does not supply one.
const DefaultMemoryQuota = 64 << 20 // 64 MiB

// estimatedFootprint is used for the endpoint's self-reservation: a rough
// constant covering the struct itself (the two staging slices are reserved
// separately, STAGING bytes each, when the framer is copying). It does
// not need to be exact — it exists so the endpoint counts against its own
// quota the way the source system's MakeReservation(sizeof(*this)) does.
const estimatedFootprint = 512

// SecureEndpoint composes a Framer and a WrappedEndpoint into an endpoint
// with the same external shape as WrappedEndpoint but transparent framing.
type SecureEndpoint struct {
	wrapped  WrappedEndpoint
	framer   Framer
	framerMu sync.Locker

	readMu  sync.Mutex
	writeMu sync.Mutex

	sourceBuf   Buffer
	leftoverBuf Buffer

	readDst *Buffer
	// readStagingFull is the current backing slice for the copying-framer
	// read path; readStagingUsed is how many bytes of it are dirty
	// (written by the framer but not yet spilled into a caller's dst).
	// Unused (left nil/zero) when the framer is zero-copy.
	readStagingFull []byte
	readStagingUsed int
	readStagingRes  *Reservation

	writeStagingFull []byte
	writeStagingUsed int
	writeStagingRes  *Reservation

	outputBuf        Buffer
	framerStagingBuf Buffer

	readCB  ReadCompletion
	writeCB WriteCompletion

	minProgress int32 // atomic; read by the wrapped-endpoint Read call

	memoryOwner        *MemoryOwner
	selfReservation    *Reservation
	hasPostedReclaimer atomic.Bool

	refcount  atomic.Int64
	destroyed atomic.Bool

	logger *zap.Logger
	label  string
}

// New constructs a SecureEndpoint. The returned endpoint holds one strong
// reference on behalf of the caller; call Destroy to release it.
func New(cfg Config) (*SecureEndpoint, error) {
	if (cfg.Framer.Copying == nil) == (cfg.Framer.ZeroCopy == nil) {
		return nil, configError("exactly one of Framer.Copying or Framer.ZeroCopy must be set")
	}

	owner := cfg.MemoryOwner
	if owner == nil {
		owner = NewMemoryOwner(DefaultMemoryQuota)
	}

	ep := &SecureEndpoint{
		wrapped:     cfg.Wrapped,
		framer:      cfg.Framer,
		framerMu:    newFramerLock(cfg.Framer.threadSafe()),
		memoryOwner: owner,
		logger:      loggerOrDefault(cfg.Logger),
		label:       cfg.Label,
	}
	ep.minProgress = 1
	ep.refcount.Store(1)

	res, err := owner.Reserve(bgCtx, estimatedFootprint)
	if err != nil {
		return nil, err
	}
	ep.selfReservation = res

	for _, s := range cfg.Leftover {
		ep.leftoverBuf.Append(s)
	}

	if !cfg.Framer.IsZeroCopy() {
		staging, res, err := owner.MakeSlice(bgCtx, STAGING)
		if err != nil {
			ep.selfReservation.Release()
			return nil, err
		}
		ep.readStagingFull = staging
		ep.readStagingRes = res

		staging2, res2, err := owner.MakeSlice(bgCtx, STAGING)
		if err != nil {
			ep.readStagingRes.Release()
			ep.selfReservation.Release()
			return nil, err
		}
		ep.writeStagingFull = staging2
		ep.writeStagingRes = res2
	}

	ep.logger.Debug("secure endpoint created", zap.String("label", ep.label), zap.Bool("zero_copy", cfg.Framer.IsZeroCopy()))
	return ep, nil
}

// ref takes a strong reference for the duration of some pending work
// (an in-flight read or write, or an outstanding reclaimer registration).
func (ep *SecureEndpoint) ref(reason string) {
	n := ep.refcount.Add(1)
	ep.logger.Debug("secure endpoint ref", zap.String("label", ep.label), zap.String("reason", reason), zap.Int64("refcount", n))
}

// unref drops a strong reference; the endpoint becomes eligible for
// garbage collection (after logging that it has reached zero references)
// once the count hits zero. Go has no manual free to perform — the log
// line is this package's observable stand-in for "the object is freed".
func (ep *SecureEndpoint) unref(reason string) {
	n := ep.refcount.Add(-1)
	ep.logger.Debug("secure endpoint unref", zap.String("label", ep.label), zap.String("reason", reason), zap.Int64("refcount", n))
	if n == 0 {
		ep.logger.Debug("secure endpoint freed", zap.String("label", ep.label))
	} else if n < 0 {
		panic("secureendpoint: refcount dropped below zero")
	}
}

type configError string

func (e configError) Error() string { return string(e) }
