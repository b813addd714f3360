package aead

import (
	"crypto/cipher"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/bifurcation/secureendpoint"
)

// zeroCopyFramer implements secureendpoint.ZeroCopyFramer. It keeps any
// ciphertext bytes that didn't add up to a whole frame in pending, carrying
// them across calls the way the zero-copy contract expects — the endpoint
// never asks it to remember a source Buffer past the call that handed it
// over.
type zeroCopyFramer struct {
	sendAEAD, recvAEAD cipher.AEAD
	maxFrameSize       int
	sendSeq, recvSeq   uint64
	pending            []byte
}

// NewZeroCopy builds a secureendpoint.Framer backed by a zero-copy AEAD
// framer. sendKey and recvKey must each be a valid chacha20poly1305 key
// (32 bytes); maxFrameSize of 0 uses DefaultMaxFrameSize.
func NewZeroCopy(sendKey, recvKey []byte, maxFrameSize int) (secureendpoint.Framer, error) {
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
	return secureendpoint.Framer{ZeroCopy: &zeroCopyFramer{
		sendAEAD:     sendAEAD,
		recvAEAD:     recvAEAD,
		maxFrameSize: maxFrameSize,
	}}, nil
}

func (f *zeroCopyFramer) Protect(in, out *secureendpoint.Buffer) error {
	plaintext := in.Bytes()
	nonce := nonceFromSeq(f.sendSeq)
	f.sendSeq++
	sealed := f.sendAEAD.Seal(nil, nonce, plaintext, nil)
	out.Append(append(putFrameHeader(len(sealed)), sealed...))
	return nil
}

// Unprotect decodes as many whole frames as pending plus the newly
// delivered in holds, appending their plaintext to out, and reports how
// many more bytes it needs before it can make any further progress.
func (f *zeroCopyFramer) Unprotect(in, out *secureendpoint.Buffer) (int, error) {
	for i := 0; i < in.Count(); i++ {
		f.pending = append(f.pending, in.At(i)...)
	}

	for {
		if len(f.pending) < lengthPrefixSize {
			return lengthPrefixSize - len(f.pending), nil
		}
		frameLen := int(binary.BigEndian.Uint32(f.pending[:lengthPrefixSize]))
		if frameLen > f.maxFrameSize+tagSize {
			return 0, fmt.Errorf("aead: frame of %d bytes exceeds maximum %d", frameLen, f.maxFrameSize)
		}
		total := lengthPrefixSize + frameLen
		if len(f.pending) < total {
			return total - len(f.pending), nil
		}

		nonce := nonceFromSeq(f.recvSeq)
		plaintext, err := f.recvAEAD.Open(nil, nonce, f.pending[lengthPrefixSize:total], nil)
		if err != nil {
			return 0, fmt.Errorf("aead: open frame: %w", err)
		}
		f.recvSeq++
		out.Append(plaintext)
		f.pending = f.pending[total:]
	}
}

func (f *zeroCopyFramer) MaxFrameSize() int { return f.maxFrameSize }

func (f *zeroCopyFramer) ThreadSafe() bool { return false }
