package aead

import (
	"crypto/cipher"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/bifurcation/secureendpoint"
)

// copyingFramer implements secureendpoint.CopyingFramer: unlike
// zeroCopyFramer it is handed and asked to fill plain byte windows rather
// than Buffers, so it needs two extra internal queues beyond the
// undecoded-input one — sealed ciphertext not yet copied out of Protect,
// and decrypted plaintext not yet copied out of Unprotect — since a single
// call's output window may be smaller than what it just produced.
type copyingFramer struct {
	sendAEAD, recvAEAD    cipher.AEAD
	maxPlaintextPerFrame  int
	sendSeq, recvSeq      uint64

	pendingPlaintext  []byte // accumulated, not yet sealed into a frame
	pendingCiphertext []byte // sealed, not yet copied into a caller's out window

	recvRaw   []byte // undecoded ciphertext accumulated until a full frame arrives
	recvPlain []byte // decrypted, not yet copied into a caller's out window
}

// NewCopying builds a secureendpoint.Framer backed by a copying AEAD
// framer. sendKey and recvKey must each be a valid chacha20poly1305 key
// (32 bytes); maxFrameSize of 0 uses DefaultMaxFrameSize.
func NewCopying(sendKey, recvKey []byte, maxFrameSize int) (secureendpoint.Framer, error) {
	sendAEAD, err := chacha20poly1305.New(sendKey)
	if err != nil {
		return secureendpoint.Framer{}, fmt.Errorf("aead: send key: %w", err)
	}
	recvAEAD, err := chacha20poly1305.New(recvKey)
	if err != nil {
		return secureendpoint.Framer{}, fmt.Errorf("aead: recv key: %w", err)
	}
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return secureendpoint.Framer{Copying: &copyingFramer{
		sendAEAD:             sendAEAD,
		recvAEAD:             recvAEAD,
		maxPlaintextPerFrame: maxFrameSize,
	}}, nil
}

func (f *copyingFramer) sealPending() {
	nonce := nonceFromSeq(f.sendSeq)
	f.sendSeq++
	sealed := f.sendAEAD.Seal(nil, nonce, f.pendingPlaintext, nil)
	f.pendingCiphertext = append(putFrameHeader(len(sealed)), sealed...)
	f.pendingPlaintext = f.pendingPlaintext[:0]
}

// Protect drains any sealed frame still waiting to go out before accepting
// more plaintext, so a slow consumer of out never loses buffered
// ciphertext to a fresh Seal call.
func (f *copyingFramer) Protect(in, out []byte) (consumed, written int, err error) {
	if len(f.pendingCiphertext) > 0 {
		written = copy(out, f.pendingCiphertext)
		f.pendingCiphertext = f.pendingCiphertext[written:]
		return 0, written, nil
	}

	room := f.maxPlaintextPerFrame - len(f.pendingPlaintext)
	if room < 0 {
		room = 0
	}
	take := len(in)
	if take > room {
		take = room
	}
	f.pendingPlaintext = append(f.pendingPlaintext, in[:take]...)
	consumed = take

	if len(f.pendingPlaintext) >= f.maxPlaintextPerFrame {
		f.sealPending()
		written = copy(out, f.pendingCiphertext)
		f.pendingCiphertext = f.pendingCiphertext[written:]
	}
	return consumed, written, nil
}

// Flush seals whatever plaintext Protect has accumulated but hasn't yet
// sealed into a frame (even a partial one) and drains sealed ciphertext
// into out, reporting how many sealed bytes are still waiting.
func (f *copyingFramer) Flush(out []byte) (written, pending int, err error) {
	if len(f.pendingCiphertext) == 0 && len(f.pendingPlaintext) > 0 {
		f.sealPending()
	}
	written = copy(out, f.pendingCiphertext)
	f.pendingCiphertext = f.pendingCiphertext[written:]
	return written, len(f.pendingCiphertext), nil
}

// Unprotect drains any decrypted plaintext still waiting to be copied out
// before accepting more ciphertext, mirroring Protect's ordering in the
// other direction. AEAD frames can only be opened whole, so incoming bytes
// that don't yet add up to a full frame — including a frame whose 4-byte
// length header itself hasn't fully arrived — sit in recvRaw until they do.
func (f *copyingFramer) Unprotect(in, out []byte) (consumed, written int, err error) {
	if len(f.recvPlain) > 0 {
		written = copy(out, f.recvPlain)
		f.recvPlain = f.recvPlain[written:]
		return 0, written, nil
	}

	f.recvRaw = append(f.recvRaw, in...)
	consumed = len(in)

	if len(f.recvRaw) < lengthPrefixSize {
		return consumed, 0, nil
	}
	frameLen := int(binary.BigEndian.Uint32(f.recvRaw[:lengthPrefixSize]))
	if frameLen > f.maxPlaintextPerFrame+tagSize {
		return consumed, 0, fmt.Errorf("aead: frame of %d bytes exceeds maximum %d", frameLen, f.maxPlaintextPerFrame)
	}
	total := lengthPrefixSize + frameLen
	if len(f.recvRaw) < total {
		return consumed, 0, nil
	}

	nonce := nonceFromSeq(f.recvSeq)
	plaintext, err := f.recvAEAD.Open(nil, nonce, f.recvRaw[lengthPrefixSize:total], nil)
	if err != nil {
		return consumed, 0, fmt.Errorf("aead: open frame: %w", err)
	}
	f.recvSeq++
	f.recvRaw = f.recvRaw[total:]

	written = copy(out, plaintext)
	f.recvPlain = plaintext[written:]
	return consumed, written, nil
}

func (f *copyingFramer) ThreadSafe() bool { return false }
