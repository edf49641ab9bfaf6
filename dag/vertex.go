// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package dag implements the append-only vertex store and the content
// hashing rules shared by dense and sparse Bullshark.
package dag

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/luxfi/ids"
)

// NodeID identifies a participant in the configured node set.
type NodeID uint32

// Round is a non-negative, monotonically advancing round number.
type Round uint64

// Hash is the 32-byte content digest identifying a Vertex. It is an
// ids.ID so the rest of the stack (logging, sorting, sets) can treat
// vertex hashes the same way it treats every other identifier.
type Hash = ids.ID

// Genesis is the well-known hash of the synthetic round-0 vertex.
var Genesis = ids.Empty

// Vertex is the immutable record of one proposal, in one round, by one
// source. It carries its own content hash, computed by CalculateHash.
type Vertex struct {
	Hash   Hash
	Round  Round
	Source NodeID
	Block  []byte
	Edges  []Hash

	// SignedRound is the source's Ed25519 signature over be64(Round), set
	// only in sparse mode. Empty in dense mode.
	SignedRound []byte

	// SampleProof is the serialized SampleProof (see package sample)
	// accompanying a sparse-mode vertex. Empty in dense mode.
	SampleProof []byte
}

// CalculateHash recomputes v's content hash from its fields. It is
// deterministic and independent of any map iteration order: Edges is
// hashed in the order it already appears on the vertex.
func (v *Vertex) CalculateHash() Hash {
	h := sha256.New()

	var roundBuf [8]byte
	binary.BigEndian.PutUint64(roundBuf[:], uint64(v.Round))
	h.Write(roundBuf[:])

	var sourceBuf [4]byte
	binary.BigEndian.PutUint32(sourceBuf[:], uint32(v.Source))
	h.Write(sourceBuf[:])

	h.Write(v.Block)
	for _, e := range v.Edges {
		h.Write(e[:])
	}
	h.Write(v.SignedRound)
	h.Write(v.SampleProof)

	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// HashValid reports whether v.Hash matches CalculateHash(v).
func (v *Vertex) HashValid() bool {
	return v.Hash == v.CalculateHash()
}

// NewGenesis builds the unique round-0 vertex: empty Block and Edges, no
// auxiliary fields, source 0, and the all-zero hash.
func NewGenesis() *Vertex {
	return &Vertex{
		Hash:   Genesis,
		Round:  0,
		Source: 0,
		Block:  nil,
		Edges:  nil,
	}
}

// IsGenesis reports whether v is the genesis vertex.
func (v *Vertex) IsGenesis() bool {
	return v.Round == 0 && v.Hash == Genesis
}
