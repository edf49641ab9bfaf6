// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxFrameSize rejects any frame whose declared payload length is
	// zero or above this bound (10 MiB).
	MaxFrameSize = 10 << 20

	nonceLength = 32
)

var (
	errFrameLength  = errors.New("transport: frame length zero or above limit")
	errBadSignature = errors.New("transport: bad frame signature")
	errBadHandshake = errors.New("transport: bad handshake")
)

var zeroSignature [ed25519.SignatureSize]byte

// WriteFrame writes be32(len) ‖ payload ‖ sig[64], where sig is priv's
// signature over payload. When testFlag is set a zero signature is
// transmitted instead.
func WriteFrame(w io.Writer, payload []byte, priv ed25519.PrivateKey, testFlag bool) error {
	if len(payload) == 0 || len(payload) > MaxFrameSize {
		return errFrameLength
	}

	sig := zeroSignature[:]
	if !testFlag {
		sig = ed25519.Sign(priv, payload)
	}

	var lengthBytes [4]byte
	binary.BigEndian.PutUint32(lengthBytes[:], uint32(len(payload)))
	if _, err := w.Write(lengthBytes[:]); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err := w.Write(sig)
	return err
}

// ReadFrame reads one frame and verifies its signature under pub. When
// testFlag is set verification is skipped. The returned error
// distinguishes a bad signature (errBadSignature: the frame was read
// whole, so callers drop it silently and keep the connection) from io
// errors and a violated length field (errFrameLength), after which the
// stream can no longer be read as frames.
func ReadFrame(r io.Reader, pub ed25519.PublicKey, testFlag bool) ([]byte, error) {
	var lengthBytes [4]byte
	if _, err := io.ReadFull(r, lengthBytes[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lengthBytes[:])
	if length == 0 || length > MaxFrameSize {
		return nil, errFrameLength
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	var sig [ed25519.SignatureSize]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return nil, err
	}

	if !testFlag && !ed25519.Verify(pub, payload, sig[:]) {
		return nil, errBadSignature
	}
	return payload, nil
}

// WriteHandshake writes the once-per-connection identification frame:
// be32(sender_id) ‖ nonce[32] ‖ sig[64], sig over the nonce.
func WriteHandshake(w io.Writer, id uint32, priv ed25519.PrivateKey, testFlag bool) error {
	var nonce [nonceLength]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return err
	}

	sig := zeroSignature[:]
	if !testFlag {
		sig = ed25519.Sign(priv, nonce[:])
	}

	var idBytes [4]byte
	binary.BigEndian.PutUint32(idBytes[:], id)
	if _, err := w.Write(idBytes[:]); err != nil {
		return err
	}
	if _, err := w.Write(nonce[:]); err != nil {
		return err
	}
	_, err := w.Write(sig)
	return err
}

// ReadHandshake reads the identification frame and verifies the nonce
// signature under the claimed sender's public key, looked up via pubs.
// An unknown claimed id or a bad signature fails the handshake and the
// caller closes the connection.
func ReadHandshake(r io.Reader, pubs func(uint32) (ed25519.PublicKey, bool), testFlag bool) (uint32, error) {
	var idBytes [4]byte
	if _, err := io.ReadFull(r, idBytes[:]); err != nil {
		return 0, err
	}
	claimed := binary.BigEndian.Uint32(idBytes[:])

	var nonce [nonceLength]byte
	if _, err := io.ReadFull(r, nonce[:]); err != nil {
		return 0, err
	}
	var sig [ed25519.SignatureSize]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return 0, err
	}

	pub, known := pubs(claimed)
	if !known {
		return 0, fmt.Errorf("%w: unknown peer %d", errBadHandshake, claimed)
	}
	if !testFlag && !ed25519.Verify(pub, nonce[:], sig[:]) {
		return 0, fmt.Errorf("%w: peer %d nonce signature", errBadHandshake, claimed)
	}
	return claimed, nil
}
