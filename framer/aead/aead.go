// Package aead implements secureendpoint.Framer on top of
// golang.org/x/crypto/chacha20poly1305, framing each plaintext message as
// a 4-byte big-endian length prefix followed by an AEAD-sealed frame whose
// nonce is derived from a per-direction sequence counter. It ships both a
// zero-copy and a copying variant so either side of secureendpoint.Config
// can be exercised.
//
// Neither variant negotiates keys; callers derive sendKey/recvKey
// themselves (e.g. from a handshake transcript) and must use the same
// pair, swapped, on the peer.
package aead

import (
	"encoding/binary"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	lengthPrefixSize = 4
	tagSize          = chacha20poly1305.Overhead

	// DefaultMaxFrameSize bounds plaintext per frame when a caller passes
	// zero for maxFrameSize.
	DefaultMaxFrameSize = 16384
)

func nonceFromSeq(seq uint64) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint64(nonce[chacha20poly1305.NonceSize-8:], seq)
	return nonce
}

func putFrameHeader(frameLen int) []byte {
	header := make([]byte, lengthPrefixSize)
	binary.BigEndian.PutUint32(header, uint32(frameLen))
	return header
}
