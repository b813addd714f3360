// Package wrapped adapts a net.Conn into a secureendpoint.WrappedEndpoint.
// It is the one concrete transport this module ships; anything satisfying
// secureendpoint.WrappedEndpoint works equally well.
package wrapped

import (
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/bifurcation/secureendpoint"
)

// readChunkSize bounds a single net.Conn.Read call. It has no relationship
// to secureendpoint.STAGING — this is raw wire bytes, not staged plaintext.
const readChunkSize = 4096

// Conn wraps a net.Conn, translating its blocking Read/Write into the
// single-shot-callback style secureendpoint.SecureEndpoint expects. Each
// Read or Write call spawns its own goroutine for the duration of that one
// call rather than running a persistent reader loop: a persistent loop
// would read ahead of whatever minProgress/urgent the caller asked for,
// which defeats the point of those hints.
type Conn struct {
	conn   net.Conn
	logger *zap.Logger
	label  string

	mu         sync.Mutex
	pendingErr error
}

// New wraps conn. logger may be nil, in which case diagnostics are
// discarded.
func New(conn net.Conn, logger *zap.Logger, label string) *Conn {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Conn{conn: conn, logger: logger, label: label}
}

var _ secureendpoint.WrappedEndpoint = (*Conn)(nil)

// Read satisfies secureendpoint.WrappedEndpoint.
func (c *Conn) Read(dst *secureendpoint.Buffer, cb secureendpoint.ReadCompletion, urgent bool, minProgress int) {
	go c.readLoop(dst, cb, urgent, minProgress)
}

func (c *Conn) readLoop(dst *secureendpoint.Buffer, cb secureendpoint.ReadCompletion, urgent bool, minProgress int) {
	c.mu.Lock()
	if err := c.pendingErr; err != nil {
		c.pendingErr = nil
		c.mu.Unlock()
		cb(err)
		return
	}
	c.mu.Unlock()

	buf := make([]byte, readChunkSize)
	got := 0

	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			dst.Append(chunk)
			got += n
		}

		if err != nil {
			if got > 0 {
				// Deliver what we have now; surface the error on the next
				// Read instead of discarding bytes the caller already has.
				c.mu.Lock()
				c.pendingErr = err
				c.mu.Unlock()
				cb(nil)
			} else {
				cb(err)
			}
			return
		}

		if urgent || got >= minProgress {
			cb(nil)
			return
		}
	}
}

// Write satisfies secureendpoint.WrappedEndpoint.
func (c *Conn) Write(src *secureendpoint.Buffer, cb secureendpoint.WriteCompletion, args secureendpoint.WriteArgs) {
	go func() {
		for i := 0; i < src.Count(); i++ {
			b := src.At(i)
			if len(b) == 0 {
				continue
			}
			if _, err := c.conn.Write(b); err != nil {
				cb(err)
				return
			}
		}
		cb(nil)
	}()
}

// Destroy closes the underlying connection.
func (c *Conn) Destroy() {
	if err := c.conn.Close(); err != nil {
		c.logger.Debug("wrapped conn close", zap.String("label", c.label), zap.Error(err))
	}
}

// Pollsets have no net.Conn equivalent; these exist only to satisfy the
// interface.
func (c *Conn) AddToPollset(secureendpoint.Pollset)            {}
func (c *Conn) AddToPollsetSet(secureendpoint.PollsetSet)       {}
func (c *Conn) DeleteFromPollsetSet(secureendpoint.PollsetSet)  {}

func (c *Conn) Peer() string {
	if a := c.conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}

func (c *Conn) LocalAddress() string {
	if a := c.conn.LocalAddr(); a != nil {
		return a.String()
	}
	return ""
}

// FD is not exposed: net.Conn gives no portable way to retrieve the
// underlying file descriptor.
func (c *Conn) FD() int { return -1 }

func (c *Conn) CanTrackErr() bool { return false }
