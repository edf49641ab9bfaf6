// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package transport provides the authenticated pair-wise ordered channel
// between nodes: the tagged message union and its deterministic codec,
// the signed length-prefixed framing, the per-connection handshake, and
// the broadcast dispatcher.
package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/luxfi/bullshark/dag"
)

// Op tags the message union on the wire.
type Op uint8

const (
	OpVertex Op = iota
	OpEcho
	OpReady
	OpCommit
)

// Message is the tagged union carried by every frame. Exactly the fields
// relevant to its Op are set.
type Message struct {
	Op Op

	// OpVertex: the sender id it claims and the vertex body.
	Sender dag.NodeID
	Vertex *dag.Vertex

	// OpEcho / OpReady: the vertex hash voted on.
	Hash dag.Hash

	// OpCommit: the round the sender finalized and the vertices it
	// emitted for it, in emission order.
	Round     dag.Round
	Committed []*dag.Vertex
}

var (
	errUnknownOp = errors.New("transport: unknown message op")
	errTruncated = errors.New("transport: truncated message")
	errOversized = errors.New("transport: length field exceeds limit")
)

// Marshal produces the deterministic wire encoding of m: the op byte
// followed by the op-specific body. Fields are fixed-width big-endian;
// variable-length byte strings are length-prefixed. No map or other
// iteration-order-dependent structure is ever encoded.
func (m *Message) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(m.Op))
	switch m.Op {
	case OpVertex:
		writeUint32(&buf, uint32(m.Sender))
		if err := writeVertex(&buf, m.Vertex); err != nil {
			return nil, err
		}
	case OpEcho, OpReady:
		buf.Write(m.Hash[:])
	case OpCommit:
		writeUint64(&buf, uint64(m.Round))
		writeUint32(&buf, uint32(len(m.Committed)))
		for _, v := range m.Committed {
			if err := writeVertex(&buf, v); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("%w: %d", errUnknownOp, m.Op)
	}
	return buf.Bytes(), nil
}

// Unmarshal parses a payload previously produced by Marshal.
func Unmarshal(payload []byte) (*Message, error) {
	r := bytes.NewReader(payload)
	op, err := r.ReadByte()
	if err != nil {
		return nil, errTruncated
	}

	m := &Message{Op: Op(op)}
	switch m.Op {
	case OpVertex:
		sender, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		m.Sender = dag.NodeID(sender)
		if m.Vertex, err = readVertex(r); err != nil {
			return nil, err
		}
	case OpEcho, OpReady:
		if _, err := io.ReadFull(r, m.Hash[:]); err != nil {
			return nil, errTruncated
		}
	case OpCommit:
		round, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		m.Round = dag.Round(round)
		count, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < count; i++ {
			v, err := readVertex(r)
			if err != nil {
				return nil, err
			}
			m.Committed = append(m.Committed, v)
		}
	default:
		return nil, fmt.Errorf("%w: %d", errUnknownOp, op)
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("transport: %d trailing bytes after message", r.Len())
	}
	return m, nil
}

func writeVertex(buf *bytes.Buffer, v *dag.Vertex) error {
	if v == nil {
		return errors.New("transport: nil vertex")
	}
	buf.Write(v.Hash[:])
	writeUint64(buf, uint64(v.Round))
	writeUint32(buf, uint32(v.Source))
	writeBytes(buf, v.Block)
	writeUint32(buf, uint32(len(v.Edges)))
	for _, e := range v.Edges {
		buf.Write(e[:])
	}
	writeBytes(buf, v.SignedRound)
	writeBytes(buf, v.SampleProof)
	return nil
}

func readVertex(r *bytes.Reader) (*dag.Vertex, error) {
	v := &dag.Vertex{}
	if _, err := io.ReadFull(r, v.Hash[:]); err != nil {
		return nil, errTruncated
	}
	round, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	v.Round = dag.Round(round)
	source, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	v.Source = dag.NodeID(source)
	if v.Block, err = readBytes(r); err != nil {
		return nil, err
	}
	edgeCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < edgeCount; i++ {
		var e dag.Hash
		if _, err := io.ReadFull(r, e[:]); err != nil {
			return nil, errTruncated
		}
		v.Edges = append(v.Edges, e)
	}
	if v.SignedRound, err = readBytes(r); err != nil {
		return nil, err
	}
	if v.SampleProof, err = readBytes(r); err != nil {
		return nil, err
	}
	return v, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUint32(buf, uint32(len(b)))
	buf.Write(b)
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, errTruncated
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, errTruncated
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if int(n) > r.Len() {
		return nil, errOversized
	}
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, errTruncated
	}
	return b, nil
}
