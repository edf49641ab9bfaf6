// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rbc implements Bracha-style reliable broadcast over vertex
// hashes, used by the dense-mode round engine to disseminate vertices
// with totality and integrity guarantees under up to f Byzantine faults.
//
// An Engine has no internal lock: per the single-threaded cooperative
// core model, every call into an Engine happens from the same task that
// owns the DAG and round state.
package rbc

import (
	"go.uber.org/zap"

	"github.com/luxfi/log"

	"github.com/luxfi/bullshark/dag"
	"github.com/luxfi/bullshark/utils/set"
)

// MessageKind tags the broadcast messages an Engine asks its caller to
// send on its behalf.
type MessageKind int

const (
	Echo MessageKind = iota
	Ready
)

// OutMessage is a broadcast the caller must send to every peer.
type OutMessage struct {
	Kind MessageKind
	Hash dag.Hash
}

type voteState struct {
	echoSenders  set.Set[dag.NodeID]
	readySenders set.Set[dag.NodeID]
	body         *dag.Vertex
}

func newVoteState() *voteState {
	return &voteState{
		echoSenders:  set.NewSet[dag.NodeID](0),
		readySenders: set.NewSet[dag.NodeID](0),
	}
}

// Engine tracks per-hash ECHO/READY vote sets and delivers vertices once
// Bracha's quorum conditions are met.
type Engine struct {
	self dag.NodeID
	n    int
	f    int
	log  log.Logger

	votes     map[dag.Hash]*voteState
	delivered map[dag.Hash]struct{}

	metrics *Metrics
}

// New constructs an Engine for a population of n nodes tolerating f
// Byzantine faults (n = 3f+1).
func New(self dag.NodeID, n, f int, logger log.Logger, m *Metrics) *Engine {
	return &Engine{
		self:      self,
		n:         n,
		f:         f,
		log:       logger,
		votes:     make(map[dag.Hash]*voteState),
		delivered: make(map[dag.Hash]struct{}),
		metrics:   m,
	}
}

func (e *Engine) stateFor(h dag.Hash) *voteState {
	vs, ok := e.votes[h]
	if !ok {
		vs = newVoteState()
		e.votes[h] = vs
	}
	return vs
}

// ReceiveVal handles an in-band VAL carried as the Vertex message itself.
// If the body was not already known and the hash is undelivered, it is
// stored and a single ECHO is scheduled. The body is only stored here,
// never handed onward: delivery happens at the 2f+1-READY quorum, which
// this call completes when the votes arrived before the body.
func (e *Engine) ReceiveVal(v *dag.Vertex) ([]OutMessage, *dag.Vertex) {
	if e.Delivered(v.Hash) {
		return nil, nil
	}
	vs := e.stateFor(v.Hash)
	var out []OutMessage
	if vs.body == nil {
		vs.body = v
		// A node counts its own ECHO: peers never loop a broadcast back,
		// and the 2f+1 quorum must be reachable with f nodes silent.
		vs.echoSenders.Add(e.self)
		e.log.Debug("rbc val received", zap.Stringer("hash", v.Hash))
		if e.metrics != nil {
			e.metrics.echoSent.Inc()
		}
		out = []OutMessage{{Kind: Echo, Hash: v.Hash}}
	}
	return out, e.checkDeliver(v.Hash, vs)
}

// ReceiveEcho records an ECHO vote from s for h and, at 2f+1 votes,
// schedules this node's own READY.
func (e *Engine) ReceiveEcho(h dag.Hash, s dag.NodeID) ([]OutMessage, *dag.Vertex) {
	if e.Delivered(h) {
		return nil, nil
	}
	vs := e.stateFor(h)
	vs.echoSenders.Add(s)
	var out []OutMessage
	if vs.echoSenders.Len() >= 2*e.f+1 {
		out = e.trySendReady(h, vs)
	}
	delivered := e.checkDeliver(h, vs)
	return out, delivered
}

// ReceiveReady records a READY vote from s for h. At f+1 votes it
// amplifies by sending its own READY (if not already sent); at 2f+1
// votes it delivers, if the body has arrived.
func (e *Engine) ReceiveReady(h dag.Hash, s dag.NodeID) ([]OutMessage, *dag.Vertex) {
	if e.Delivered(h) {
		return nil, nil
	}
	vs := e.stateFor(h)
	vs.readySenders.Add(s)

	var out []OutMessage
	if vs.readySenders.Len() >= e.f+1 {
		out = e.trySendReady(h, vs)
	}
	delivered := e.checkDeliver(h, vs)
	return out, delivered
}

// trySendReady sends this node's own READY for h, guarded so it is sent
// at most once: the guard is the node's own id already present in
// readySenders.
func (e *Engine) trySendReady(h dag.Hash, vs *voteState) []OutMessage {
	if vs.readySenders.Contains(e.self) {
		return nil
	}
	vs.readySenders.Add(e.self)
	if e.metrics != nil {
		e.metrics.readySent.Inc()
	}
	return []OutMessage{{Kind: Ready, Hash: h}}
}

// checkDeliver marks h delivered and purges its vote state once 2f+1
// READYs are in and the body has arrived. Returns the delivered vertex,
// or nil if the condition isn't yet met.
func (e *Engine) checkDeliver(h dag.Hash, vs *voteState) *dag.Vertex {
	if vs.body == nil || vs.readySenders.Len() < 2*e.f+1 {
		return nil
	}
	delivered := vs.body
	e.delivered[h] = struct{}{}
	e.purge(h)
	if e.metrics != nil {
		e.metrics.delivered.Inc()
	}
	e.log.Debug("rbc delivered", zap.Stringer("hash", h))
	return delivered
}

// Delivered reports whether h has already been delivered.
func (e *Engine) Delivered(h dag.Hash) bool {
	_, ok := e.delivered[h]
	return ok
}

func (e *Engine) purge(h dag.Hash) {
	delete(e.votes, h)
}
