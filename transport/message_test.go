// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/bullshark/dag"
)

func testVertex(t *testing.T) *dag.Vertex {
	t.Helper()
	v := &dag.Vertex{
		Round:       3,
		Source:      2,
		Block:       []byte("some transactions"),
		Edges:       []dag.Hash{{0x01}, {0x02}},
		SignedRound: []byte("round-signature"),
		SampleProof: []byte("proof-bytes"),
	}
	v.Hash = v.CalculateHash()
	return v
}

func TestVertexMessageRoundTrip(t *testing.T) {
	m := &Message{Op: OpVertex, Sender: 2, Vertex: testVertex(t)}
	payload, err := m.Marshal()
	require.NoError(t, err)

	got, err := Unmarshal(payload)
	require.NoError(t, err)
	require.Equal(t, m.Op, got.Op)
	require.Equal(t, m.Sender, got.Sender)
	require.Equal(t, m.Vertex, got.Vertex)
}

func TestEchoReadyRoundTrip(t *testing.T) {
	for _, op := range []Op{OpEcho, OpReady} {
		m := &Message{Op: op, Hash: dag.Hash{0xab, 0xcd}}
		payload, err := m.Marshal()
		require.NoError(t, err)

		got, err := Unmarshal(payload)
		require.NoError(t, err)
		require.Equal(t, m.Op, got.Op)
		require.Equal(t, m.Hash, got.Hash)
	}
}

func TestCommitMessageRoundTrip(t *testing.T) {
	m := &Message{
		Op:        OpCommit,
		Round:     4,
		Committed: []*dag.Vertex{testVertex(t)},
	}
	payload, err := m.Marshal()
	require.NoError(t, err)

	got, err := Unmarshal(payload)
	require.NoError(t, err)
	require.Equal(t, m.Round, got.Round)
	require.Equal(t, m.Committed, got.Committed)
}

func TestUnmarshalRejectsUnknownOp(t *testing.T) {
	_, err := Unmarshal([]byte{0xff, 0x00})
	require.Error(t, err)
}

func TestUnmarshalRejectsTruncated(t *testing.T) {
	m := &Message{Op: OpVertex, Sender: 1, Vertex: testVertex(t)}
	payload, err := m.Marshal()
	require.NoError(t, err)

	_, err = Unmarshal(payload[:len(payload)-3])
	require.Error(t, err)
}

func TestUnmarshalRejectsTrailingBytes(t *testing.T) {
	m := &Message{Op: OpEcho, Hash: dag.Hash{1}}
	payload, err := m.Marshal()
	require.NoError(t, err)

	_, err = Unmarshal(append(payload, 0x00))
	require.Error(t, err)
}

func TestUnmarshalRejectsAbsurdLengthField(t *testing.T) {
	// An OpVertex whose block length field claims more bytes than the
	// payload holds must fail cleanly, not allocate.
	m := &Message{Op: OpVertex, Sender: 1, Vertex: testVertex(t)}
	payload, err := m.Marshal()
	require.NoError(t, err)

	// The block length field sits after op(1) + sender(4) + hash(32) +
	// round(8) + source(4).
	payload[49] = 0xff
	_, err = Unmarshal(payload)
	require.Error(t, err)
}
