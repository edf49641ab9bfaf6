// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package validator implements the pure structural, cryptographic, and
// parent-availability checks a candidate vertex must pass before it is
// admitted to the local DAG.
package validator

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/luxfi/bullshark/dag"
	"github.com/luxfi/bullshark/sample"
)

// Mode selects which edge-selection and proof rules apply.
type Mode int

const (
	// Dense links every vertex to every round-(r-1) vertex and carries no
	// sampling proof.
	Dense Mode = iota
	// Sparse links each vertex to a pseudo-randomly sampled subset of
	// round-(r-1) vertices, proven by an aggregated SampleProof.
	Sparse
)

// Config carries the parameters the validator needs beyond the DAG and the
// candidate vertex itself.
type Config struct {
	Mode       Mode
	D          int // sparse sample size
	PublicKeys map[dag.NodeID]ed25519.PublicKey
}

var (
	// ErrSourceMismatch is returned when the candidate's claimed source or
	// round does not match what the caller expected.
	ErrSourceMismatch = errors.New("validator: source or round mismatch")
	// ErrGenesisLink is returned when a round-1 vertex links to anything
	// other than exactly the genesis hash.
	ErrGenesisLink = errors.New("validator: round-1 vertex must link only to genesis")
	// ErrTooManyEdges is returned when a sparse-mode vertex exceeds the
	// d+2 slack bound on edge count.
	ErrTooManyEdges = errors.New("validator: too many edges")
	// ErrSampleProof is returned when the sample proof fails to validate.
	ErrSampleProof = errors.New("validator: invalid sample proof")
	// ErrParentRoundMissing is returned when the parent round is not yet
	// present locally. The caller should buffer the candidate.
	ErrParentRoundMissing = errors.New("validator: parent round not yet available")
	// ErrParentMissing is returned when an edge does not resolve to a
	// vertex in the parent round. The caller should buffer the candidate.
	ErrParentMissing = errors.New("validator: parent vertex not found")
	// ErrHashMismatch is returned when the vertex's declared hash does not
	// match its content hash.
	ErrHashMismatch = errors.New("validator: hash mismatch")
	// ErrRoundSignature is returned when a sparse-mode vertex's
	// SignedRound does not verify.
	ErrRoundSignature = errors.New("validator: invalid round signature")
)

// IsRecoverable reports whether err indicates a missing-parent condition
// that may resolve once more vertices arrive, as opposed to a terminal
// structural or cryptographic defect.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrParentRoundMissing) || errors.Is(err, ErrParentMissing)
}

// Validate runs the full predicate chain against candidate v, which is
// claimed to be authored by source in round.
func Validate(v *dag.Vertex, source dag.NodeID, round dag.Round, d *dag.DAG, cfg Config) error {
	if round == 1 {
		return validateRoundOne(v, cfg)
	}

	if v.Source != source || v.Round != round {
		return ErrSourceMismatch
	}

	if cfg.Mode == Sparse {
		if len(v.Edges) > cfg.D+2 {
			return ErrTooManyEdges
		}
		if !sample.Validate(round-1, v.SampleProof, cfg.PublicKeys) {
			return ErrSampleProof
		}
	}

	parentRound, ok := d.GetRound(round - 1)
	if !ok {
		return ErrParentRoundMissing
	}
	parents := make(map[dag.Hash]struct{}, len(parentRound))
	for _, p := range parentRound {
		parents[p.Hash] = struct{}{}
	}
	for _, e := range v.Edges {
		if _, found := parents[e]; !found {
			return fmt.Errorf("%w: %s", ErrParentMissing, e)
		}
	}

	if !v.HashValid() {
		return ErrHashMismatch
	}

	return nil
}

func validateRoundOne(v *dag.Vertex, cfg Config) error {
	if len(v.Edges) != 1 || v.Edges[0] != dag.Genesis {
		return ErrGenesisLink
	}
	if !v.HashValid() {
		return ErrHashMismatch
	}
	if cfg.Mode == Sparse {
		pub, ok := cfg.PublicKeys[v.Source]
		if !ok {
			return ErrRoundSignature
		}
		if !ed25519.Verify(pub, roundOneMessage(), v.SignedRound) {
			return ErrRoundSignature
		}
	}
	return nil
}

func roundOneMessage() []byte {
	return sample.RoundMessage(1)
}
