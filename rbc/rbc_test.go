// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rbc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/log"

	"github.com/luxfi/bullshark/dag"
)

func TestBrachaDeliversAtFourNodes(t *testing.T) {
	// n=4, f=1: quorum thresholds are 2f+1=3 echoes/readies, f+1=2 for
	// amplification.
	e := New(0, 4, 1, log.NoLog{}, nil)
	v := &dag.Vertex{Round: 1, Source: 0}
	v.Hash = v.CalculateHash()

	// The VAL stores the body and counts this node's own ECHO.
	out, delivered := e.ReceiveVal(v)
	require.Nil(t, delivered)
	require.Len(t, out, 1)
	require.Equal(t, Echo, out[0].Kind)

	echoOut, echoDelivered := e.ReceiveEcho(v.Hash, 1)
	require.Nil(t, echoDelivered)
	require.Empty(t, echoOut)

	// The second peer ECHO reaches 2f+1=3 with the self ECHO and
	// triggers this node's own READY.
	out3, delivered := e.ReceiveEcho(v.Hash, 2)
	require.Nil(t, delivered)
	require.Len(t, out3, 1)
	require.Equal(t, Ready, out3[0].Kind)
	require.False(t, e.Delivered(v.Hash))

	// readySenders now holds {self}. Peer 1's READY brings it to 2 = f+1,
	// triggering amplification, but self already sent so no new message.
	outReady, delivered := e.ReceiveReady(v.Hash, 1)
	require.Nil(t, delivered)
	require.Empty(t, outReady)

	_, delivered = e.ReceiveReady(v.Hash, 2)
	require.NotNil(t, delivered)
	require.Equal(t, v.Hash, delivered.Hash)
	require.True(t, e.Delivered(v.Hash))
}

func TestReadyBeforeBodyWaitsForVal(t *testing.T) {
	e := New(0, 4, 1, log.NoLog{}, nil)
	v := &dag.Vertex{Round: 1, Source: 1}
	v.Hash = v.CalculateHash()

	for _, s := range []dag.NodeID{1, 2, 3} {
		_, delivered := e.ReceiveReady(v.Hash, s)
		require.Nil(t, delivered)
	}
	require.False(t, e.Delivered(v.Hash))

	// The late VAL stores the body, echoes, and completes the pending
	// delivery in one step.
	out, delivered := e.ReceiveVal(v)
	require.Len(t, out, 1)
	require.Equal(t, Echo, out[0].Kind)
	require.NotNil(t, delivered)
	require.True(t, e.Delivered(v.Hash))
}

func TestSendReadyGuardFiresOnce(t *testing.T) {
	e := New(0, 4, 1, log.NoLog{}, nil)
	h := dag.Hash{1}
	vs := e.stateFor(h)

	out := e.trySendReady(h, vs)
	require.Len(t, out, 1)
	out = e.trySendReady(h, vs)
	require.Nil(t, out)
}

func TestMessagesAfterDeliveryAreNoOps(t *testing.T) {
	e := New(0, 4, 1, log.NoLog{}, nil)
	v := &dag.Vertex{Round: 1, Source: 2}
	v.Hash = v.CalculateHash()

	e.ReceiveVal(v)
	for _, s := range []dag.NodeID{1, 2, 3} {
		e.ReceiveEcho(v.Hash, s)
	}
	var delivered *dag.Vertex
	for _, s := range []dag.NodeID{1, 2, 3} {
		_, d := e.ReceiveReady(v.Hash, s)
		if d != nil {
			delivered = d
		}
	}
	require.NotNil(t, delivered)
	require.True(t, e.Delivered(v.Hash))

	out, d := e.ReceiveReady(v.Hash, 0)
	require.Nil(t, d)
	require.Nil(t, out)

	out, d = e.ReceiveVal(v)
	require.Nil(t, out)
	require.Nil(t, d)
}

func TestEchoAloneNeverDeliversWithoutReadies(t *testing.T) {
	e := New(0, 4, 1, log.NoLog{}, nil)
	v := &dag.Vertex{Round: 2, Source: 1}
	v.Hash = v.CalculateHash()

	e.ReceiveVal(v)
	for _, s := range []dag.NodeID{1, 2, 3} {
		_, delivered := e.ReceiveEcho(v.Hash, s)
		require.Nil(t, delivered)
	}
	require.False(t, e.Delivered(v.Hash))
}

func TestReadyAmplificationWithoutEchoQuorum(t *testing.T) {
	// A node that never saw 2f+1 ECHOs still sends its own READY once
	// f+1 peer READYs arrive, and delivers at 2f+1.
	e := New(0, 4, 1, log.NoLog{}, nil)
	v := &dag.Vertex{Round: 2, Source: 3}
	v.Hash = v.CalculateHash()
	e.ReceiveVal(v)

	out, delivered := e.ReceiveReady(v.Hash, 1)
	require.Nil(t, delivered)
	require.Empty(t, out)

	// Second peer READY reaches f+1 = 2: amplification sends this
	// node's own READY, which itself completes the 2f+1 delivery
	// quorum.
	out, delivered = e.ReceiveReady(v.Hash, 2)
	require.Len(t, out, 1)
	require.Equal(t, Ready, out[0].Kind)
	require.NotNil(t, delivered)
	require.True(t, e.Delivered(v.Hash))
}
