// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package round

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/log"

	"github.com/luxfi/bullshark/dag"
	"github.com/luxfi/bullshark/rbc"
	"github.com/luxfi/bullshark/validator"
)

func newDenseEngine(n, f int) *Engine {
	cfg := Config{Self: 0, N: n, F: f, Mode: validator.Dense}
	return New(cfg, log.NoLog{}, nil, nil)
}

// insertDenseRound synthesizes one densely-linked vertex per source for
// round r, linking every vertex in round r-1 (or genesis for r==1), and
// inserts them directly into e's DAG.
func insertDenseRound(e *Engine, r dag.Round, n int) []*dag.Vertex {
	var parents []dag.Hash
	if r == 1 {
		parents = []dag.Hash{dag.Genesis}
	} else {
		prev, _ := e.dag.GetRound(r - 1)
		for _, p := range prev {
			parents = append(parents, p.Hash)
		}
	}

	var out []*dag.Vertex
	for s := 0; s < n; s++ {
		v := &dag.Vertex{Round: r, Source: dag.NodeID(s), Edges: append([]dag.Hash(nil), parents...)}
		v.Hash = v.CalculateHash()
		e.dag.Insert(v)
		out = append(out, v)
	}
	return out
}

func TestMayAdvanceRoundOneAlways(t *testing.T) {
	e := newDenseEngine(4, 1)
	require.True(t, e.mayAdvance())
}

func TestMayAdvanceRequiresQuorum(t *testing.T) {
	e := newDenseEngine(4, 1)
	e.round = 2
	require.False(t, e.mayAdvance())

	insertDenseRound(e, 1, 3) // 3 vertices meet 2f+1 = 3
	require.True(t, e.mayAdvance())
}

func TestCreateNewVertexDenseLinksAllParents(t *testing.T) {
	e := newDenseEngine(4, 1)
	insertDenseRound(e, 1, 4)

	v := e.createNewVertex(2)
	require.Len(t, v.Edges, 4)
	require.True(t, v.HashValid())
}

func TestAdvanceOnceInsertsAndIncrementsRound(t *testing.T) {
	e := newDenseEngine(4, 1)
	outs, commits := e.advanceOnce()
	require.Empty(t, commits)
	require.Len(t, outs, 1)
	v := outs[0].Vertex
	require.NotNil(t, v)
	require.Equal(t, dag.Round(1), v.Round)
	require.Equal(t, dag.Round(2), e.round)

	got, ok := e.dag.GetByHash(v.Hash)
	require.True(t, ok)
	require.Equal(t, v, got)
}

func TestAnchorSelectionEvenRoundsOnly(t *testing.T) {
	e := newDenseEngine(4, 1)
	insertDenseRound(e, 1, 4)
	round2 := insertDenseRound(e, 2, 4)

	require.Nil(t, e.anchor(1))
	a := e.anchor(2)
	require.NotNil(t, a)
	require.Equal(t, dag.NodeID(1), a.Source) // (2/2) mod 4 == 1
	require.Equal(t, round2[1].Hash, a.Hash)
}

func TestDirectCommitFiresOnQuorumVotes(t *testing.T) {
	e := newDenseEngine(4, 1)
	insertDenseRound(e, 1, 4)
	insertDenseRound(e, 2, 4)
	insertDenseRound(e, 3, 4)
	round4 := insertDenseRound(e, 4, 4)

	commits := e.tryCommit(round4[0])
	require.Len(t, commits, 1)
	require.Equal(t, dag.NodeID(1), commits[0].Anchor.Source)
	require.NotEmpty(t, commits[0].Ordering)
	require.Equal(t, dag.Round(2), e.lastOrderedRound)
}

func TestCommitDoesNotRefireBelowLastOrdered(t *testing.T) {
	e := newDenseEngine(4, 1)
	insertDenseRound(e, 1, 4)
	insertDenseRound(e, 2, 4)
	insertDenseRound(e, 3, 4)
	round4 := insertDenseRound(e, 4, 4)
	require.NotEmpty(t, e.tryCommit(round4[0]))

	// A second observation in round 4 must not re-commit the same anchor.
	require.Empty(t, e.tryCommit(round4[1]))
}

func TestOrderCausalPastIsDeterministicAndDeduped(t *testing.T) {
	e := newDenseEngine(4, 1)
	insertDenseRound(e, 1, 4)
	round2 := insertDenseRound(e, 2, 4)

	anchor := round2[0]
	first := e.orderCausalPast(anchor)
	require.NotEmpty(t, first)
	for i := 1; i < len(first); i++ {
		require.True(t, first[i-1].Hash.Compare(first[i].Hash) <= 0)
	}

	second := e.orderCausalPast(anchor)
	require.Empty(t, second) // everything already ordered
}

func TestDenseInsertionGatedOnRBCDelivery(t *testing.T) {
	// In dense mode an inbound vertex is a VAL: the engine echoes but
	// must not insert until 2f+1 READYs deliver it.
	r := rbc.New(0, 4, 1, log.NoLog{}, nil)
	e := New(Config{Self: 0, N: 4, F: 1, Mode: validator.Dense}, log.NoLog{}, nil, r)

	v := &dag.Vertex{Round: 1, Source: 1, Edges: []dag.Hash{dag.Genesis}}
	v.Hash = v.CalculateHash()

	// The work loop also creates this node's own round-1 vertex, with
	// its own self-VAL echo; only the echo for v matters here.
	outs, _ := e.OnInbound(1, v)
	echoes := 0
	for _, out := range outs {
		if out.RBC != nil && out.RBC.Kind == rbc.Echo && out.RBC.Hash == v.Hash {
			echoes++
		}
	}
	require.Equal(t, 1, echoes)
	_, ok := e.DAG().GetByHash(v.Hash)
	require.False(t, ok, "vertex inserted before RBC delivery")

	// An ECHO quorum alone produces this node's READY but no insertion.
	e.OnEcho(1, v.Hash)
	e.OnEcho(2, v.Hash)
	e.OnEcho(3, v.Hash)
	_, ok = e.DAG().GetByHash(v.Hash)
	require.False(t, ok, "vertex inserted before READY quorum")

	// Two peer READYs plus this node's own reach 2f+1 and deliver; the
	// delivered vertex is what enters the DAG.
	e.OnReady(1, v.Hash)
	e.OnReady(2, v.Hash)
	_, ok = e.DAG().GetByHash(v.Hash)
	require.True(t, ok, "delivered vertex missing from DAG")
}

func TestDenseDeliveredVertexWithMissingParentsIsBuffered(t *testing.T) {
	r := rbc.New(0, 4, 1, log.NoLog{}, nil)
	e := New(Config{Self: 0, N: 4, F: 1, Mode: validator.Dense}, log.NoLog{}, nil, r)

	// A round-2 vertex delivered while its parent is absent from the
	// local round 1 (which holds only this node's own vertex) must land
	// in the pending buffer, not the DAG.
	v := &dag.Vertex{Round: 2, Source: 1, Edges: []dag.Hash{{0x01}}}
	v.Hash = v.CalculateHash()

	e.OnInbound(1, v)
	for _, s := range []dag.NodeID{1, 2, 3} {
		e.OnEcho(s, v.Hash)
	}
	e.OnReady(1, v.Hash)
	e.OnReady(2, v.Hash)

	require.True(t, r.Delivered(v.Hash))
	_, ok := e.DAG().GetByHash(v.Hash)
	require.False(t, ok)
	require.NotEmpty(t, e.pending[2])
}
