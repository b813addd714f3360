// Package demo holds the plumbing shared by the two demo binaries under
// cmd/ — key derivation from a pre-shared passphrase, standing in for a
// handshake, which is explicitly out of scope for this module.
package demo

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKeys expands psk into a pair of 32-byte chacha20poly1305 keys, one
// per direction. It is not a substitute for a real handshake — both ends
// must already share psk out of band — it only exists so the echo demo has
// something to build a Framer from.
func DeriveKeys(psk string) (clientToServer, serverToClient [32]byte, err error) {
	r := hkdf.New(sha256.New, []byte(psk), nil, []byte("secureendpoint-echo-demo"))
	if _, err = io.ReadFull(r, clientToServer[:]); err != nil {
		return
	}
	_, err = io.ReadFull(r, serverToClient[:])
	return
}
