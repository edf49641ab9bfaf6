// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package validator

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/bullshark/dag"
	"github.com/luxfi/bullshark/sample"
)

func denseCfg() Config { return Config{Mode: Dense} }

func TestValidateRoundOneAccepted(t *testing.T) {
	v := &dag.Vertex{Round: 1, Source: 0, Edges: []dag.Hash{dag.Genesis}}
	v.Hash = v.CalculateHash()

	d := dag.New()
	require.NoError(t, Validate(v, 0, 1, d, denseCfg()))
}

func TestValidateRoundOneRejectsWrongEdge(t *testing.T) {
	var notGenesis dag.Hash
	notGenesis[0] = 1
	v := &dag.Vertex{Round: 1, Source: 0, Edges: []dag.Hash{notGenesis}}
	v.Hash = v.CalculateHash()

	d := dag.New()
	require.ErrorIs(t, Validate(v, 0, 1, d, denseCfg()), ErrGenesisLink)
}

func TestValidateDenseHappyPath(t *testing.T) {
	d := dag.New()
	r1 := &dag.Vertex{Round: 1, Source: 0, Edges: []dag.Hash{dag.Genesis}}
	r1.Hash = r1.CalculateHash()
	d.Insert(r1)

	v := &dag.Vertex{Round: 2, Source: 1, Edges: []dag.Hash{r1.Hash}}
	v.Hash = v.CalculateHash()
	require.NoError(t, Validate(v, 1, 2, d, denseCfg()))
}

func TestValidateRejectsSourceMismatch(t *testing.T) {
	d := dag.New()
	r1 := &dag.Vertex{Round: 1, Source: 0, Edges: []dag.Hash{dag.Genesis}}
	r1.Hash = r1.CalculateHash()
	d.Insert(r1)

	v := &dag.Vertex{Round: 2, Source: 1, Edges: []dag.Hash{r1.Hash}}
	v.Hash = v.CalculateHash()
	require.ErrorIs(t, Validate(v, 2, 2, d, denseCfg()), ErrSourceMismatch)
}

func TestValidateMissingParentRoundIsRecoverable(t *testing.T) {
	d := dag.New()
	v := &dag.Vertex{Round: 2, Source: 1, Edges: []dag.Hash{{1}}}
	v.Hash = v.CalculateHash()
	err := Validate(v, 1, 2, d, denseCfg())
	require.ErrorIs(t, err, ErrParentRoundMissing)
	require.True(t, IsRecoverable(err))
}

func TestValidateMissingParentHashIsRecoverable(t *testing.T) {
	d := dag.New()
	r1 := &dag.Vertex{Round: 1, Source: 0, Edges: []dag.Hash{dag.Genesis}}
	r1.Hash = r1.CalculateHash()
	d.Insert(r1)

	unknown := dag.Hash{9, 9, 9}
	v := &dag.Vertex{Round: 2, Source: 1, Edges: []dag.Hash{unknown}}
	v.Hash = v.CalculateHash()
	err := Validate(v, 1, 2, d, denseCfg())
	require.ErrorIs(t, err, ErrParentMissing)
	require.True(t, IsRecoverable(err))
}

func TestValidateRejectsHashMismatch(t *testing.T) {
	d := dag.New()
	r1 := &dag.Vertex{Round: 1, Source: 0, Edges: []dag.Hash{dag.Genesis}}
	r1.Hash = r1.CalculateHash()
	d.Insert(r1)

	v := &dag.Vertex{Round: 2, Source: 1, Edges: []dag.Hash{r1.Hash}}
	v.Hash = v.CalculateHash()
	v.Block = []byte("tampered after hashing")
	err := Validate(v, 1, 2, d, denseCfg())
	require.ErrorIs(t, err, ErrHashMismatch)
	require.False(t, IsRecoverable(err))
}

func TestValidateSparseEdgeCountBound(t *testing.T) {
	d := dag.New()
	r1 := &dag.Vertex{Round: 1, Source: 0, Edges: []dag.Hash{dag.Genesis}}
	r1.Hash = r1.CalculateHash()
	d.Insert(r1)

	cfg := Config{Mode: Sparse, D: 1, PublicKeys: map[dag.NodeID]ed25519.PublicKey{}}
	edges := make([]dag.Hash, 0, 4)
	for i := 0; i < 4; i++ {
		edges = append(edges, r1.Hash)
	}
	proof, err := (&sample.Proof{}).Bytes()
	require.NoError(t, err)
	v := &dag.Vertex{Round: 2, Source: 1, Edges: edges, SampleProof: proof}
	v.Hash = v.CalculateHash()

	err = Validate(v, 1, 2, d, cfg)
	require.ErrorIs(t, err, ErrTooManyEdges)
}

func TestValidateSparseRejectsUnknownSigner(t *testing.T) {
	d := dag.New()
	r1 := &dag.Vertex{Round: 1, Source: 0, Edges: []dag.Hash{dag.Genesis}}
	r1.Hash = r1.CalculateHash()
	d.Insert(r1)

	_, priv := mustKey(t)
	proof := &sample.Proof{Signatures: [][]byte{sample.SignRound(1, priv)}, Signers: []dag.NodeID{7}}
	proofBytes, err := proof.Bytes()
	require.NoError(t, err)

	cfg := Config{Mode: Sparse, D: 4, PublicKeys: map[dag.NodeID]ed25519.PublicKey{}}
	v := &dag.Vertex{Round: 2, Source: 1, Edges: []dag.Hash{r1.Hash}, SampleProof: proofBytes}
	v.Hash = v.CalculateHash()

	require.ErrorIs(t, Validate(v, 1, 2, d, cfg), ErrSampleProof)
}

func mustKey(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return pub, priv
}
