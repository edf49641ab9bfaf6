// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package sample implements sparse-mode parent selection: signing a round
// number, aggregating the round's signatures into a SampleProof, deriving
// a PRNG seed from that proof, and deterministically shuffling the
// candidate parent set.
//
// The aggregated signatures double as the source of randomness and as the
// evidence that a node reached the parent round honestly — a Byzantine
// source cannot bias its own sample without either forging a signature or
// controlling enough honest signers to matter.
package sample

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20"

	"github.com/luxfi/bullshark/dag"
)

// Proof is the serialized evidence that Signers each signed be64(round-1).
// No threshold is enforced by Validate — see the "Proof signer threshold"
// open question decision in DESIGN.md.
type Proof struct {
	Signatures [][]byte
	Signers    []dag.NodeID
}

// Bytes returns the deterministic wire encoding of p: be32(count) followed
// by, for each entry, be32(sigLen) ‖ sig ‖ be32(signer). A fixed-width
// binary layout (rather than a general-purpose codec) matches the
// byte-exact framing the rest of the wire protocol uses.
func (p *Proof) Bytes() ([]byte, error) {
	if len(p.Signatures) != len(p.Signers) {
		return nil, fmt.Errorf("sample: proof has %d signatures but %d signers", len(p.Signatures), len(p.Signers))
	}
	var buf bytes.Buffer
	writeU32(&buf, uint32(len(p.Signatures)))
	for i, sig := range p.Signatures {
		writeU32(&buf, uint32(len(sig)))
		buf.Write(sig)
		writeU32(&buf, uint32(p.Signers[i]))
	}
	return buf.Bytes(), nil
}

// ParseProof deserializes a Proof previously produced by Bytes.
func ParseProof(b []byte) (*Proof, error) {
	r := bytes.NewReader(b)
	count, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("deserialize sample proof: %w", err)
	}
	p := &Proof{}
	for i := uint32(0); i < count; i++ {
		sigLen, err := readU32(r)
		if err != nil {
			return nil, fmt.Errorf("deserialize sample proof: %w", err)
		}
		sig := make([]byte, sigLen)
		if _, err := io.ReadFull(r, sig); err != nil {
			return nil, fmt.Errorf("deserialize sample proof: %w", err)
		}
		signer, err := readU32(r)
		if err != nil {
			return nil, fmt.Errorf("deserialize sample proof: %w", err)
		}
		p.Signatures = append(p.Signatures, sig)
		p.Signers = append(p.Signers, dag.NodeID(signer))
	}
	return p, nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// SignRound signs be64(round) with priv, producing the vertex's
// SignedRound field.
func SignRound(round dag.Round, priv ed25519.PrivateKey) []byte {
	msg := RoundMessage(round)
	return ed25519.Sign(priv, msg)
}

// Aggregate collects the (signature, signer) pairs carried by the round-(r-1)
// candidates the author observed and serializes them as a Proof. Only
// well-formed signatures (matching ed25519.SignatureSize) are included.
func Aggregate(candidates []*dag.Vertex) ([]byte, error) {
	proof := &Proof{}
	for _, v := range candidates {
		if len(v.SignedRound) != ed25519.SignatureSize {
			continue
		}
		proof.Signatures = append(proof.Signatures, v.SignedRound)
		proof.Signers = append(proof.Signers, v.Source)
	}
	return proof.Bytes()
}

// Seed derives the PRNG seed for round r's sampling from its serialized
// Proof: the first 32 bytes of SHA-256(proofBytes).
func Seed(proofBytes []byte) [32]byte {
	return sha256.Sum256(proofBytes)
}

// Sample deterministically shuffles candidates using a ChaCha20 stream
// keyed by seed and returns the first d entries. If anchor is non-nil and
// not already present in the chosen set, it is appended — the resulting
// edge list therefore has at most d+1 entries.
func Sample(candidates []*dag.Vertex, d int, seed [32]byte, anchor *dag.Vertex) []dag.Hash {
	shuffled := shuffle(candidates, seed)
	n := d
	if n > len(shuffled) {
		n = len(shuffled)
	}

	edges := make([]dag.Hash, 0, n+1)
	seen := make(map[dag.Hash]struct{}, n+1)
	for _, v := range shuffled[:n] {
		edges = append(edges, v.Hash)
		seen[v.Hash] = struct{}{}
	}

	if anchor != nil {
		if _, ok := seen[anchor.Hash]; !ok {
			edges = append(edges, anchor.Hash)
		}
	}
	return edges
}

// shuffle returns a copy of candidates in the order produced by a
// ChaCha20-seeded Fisher-Yates shuffle.
func shuffle(candidates []*dag.Vertex, seed [32]byte) []*dag.Vertex {
	out := make([]*dag.Vertex, len(candidates))
	copy(out, candidates)

	src := newChaChaSource(seed)
	for i := len(out) - 1; i > 0; i-- {
		j := src.intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Validate reports whether proofBytes is a well-formed Proof for round
// r-1, signed only by nodes with a known public key. It verifies every
// (signature, signer) pair against be64(r-1), one at a time. No
// signer-count threshold is enforced — see DESIGN.md.
func Validate(prevRound dag.Round, proofBytes []byte, publicKeys map[dag.NodeID]ed25519.PublicKey) bool {
	proof, err := ParseProof(proofBytes)
	if err != nil {
		return false
	}
	if len(proof.Signatures) != len(proof.Signers) {
		return false
	}

	msg := RoundMessage(prevRound)
	for i, signer := range proof.Signers {
		pub, ok := publicKeys[signer]
		if !ok {
			return false
		}
		if !ed25519.Verify(pub, msg, proof.Signatures[i]) {
			return false
		}
	}
	return true
}

// RoundMessage returns the be64(round) byte string that SignRound and
// Validate sign/verify against.
func RoundMessage(round dag.Round) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(round))
	return buf[:]
}

// chachaSource is a deterministic source of uniform integers, keyed by a
// 32-byte seed, used to drive the parent-sampling shuffle.
type chachaSource struct {
	cipher *chacha20.Cipher
}

func newChaChaSource(seed [32]byte) *chachaSource {
	var nonce [chacha20.NonceSize]byte
	c, err := chacha20.NewUnauthenticatedCipher(seed[:], nonce[:])
	if err != nil {
		// seed is always 32 bytes and nonce is always chacha20.NonceSize;
		// the only failure modes are key/nonce length mismatches.
		panic(fmt.Sprintf("sample: chacha20 cipher: %v", err))
	}
	return &chachaSource{cipher: c}
}

// intn returns a value in [0, n) derived from the keystream. The modulo
// bias at these small values (len(candidates) is bounded by n in the
// consensus) is immaterial: this is a shuffle source, not a cryptographic
// primitive in its own right.
func (s *chachaSource) intn(n int) int {
	if n <= 0 {
		return 0
	}
	var buf [8]byte
	s.cipher.XORKeyStream(buf[:], buf[:])
	return int(binary.LittleEndian.Uint64(buf[:]) % uint64(n))
}
