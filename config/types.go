// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"crypto/ed25519"

	"github.com/luxfi/bullshark/dag"
	"github.com/luxfi/bullshark/validator"
)

// Node is one row of the node table: an id and the address peers dial.
type Node struct {
	ID   dag.NodeID
	Host string
	Port uint16
}

// Environment is the read-only runtime configuration of one node. It is
// populated once at startup and shared by reference with every task;
// nothing mutates it afterwards.
type Environment struct {
	MyNode dag.NodeID
	Nodes  []Node

	// N is len(Nodes); F is the derived Byzantine tolerance (N-1)/3.
	N int
	F int

	// D is the sparse sample size (number of pseudo-random parents).
	D int

	Mode validator.Mode

	// TestFlag disables frame and handshake signature verification in
	// the transport for benchmarking; frames are then transmitted with a
	// zero signature. Vertex round signatures and sample proofs are still
	// verified by the validator in sparse mode.
	TestFlag bool

	TransactionSize int
	NTransactions   int

	PrivateKey ed25519.PrivateKey
	PublicKeys map[dag.NodeID]ed25519.PublicKey
}

// Self returns this node's own table row.
func (e *Environment) Self() Node {
	for _, n := range e.Nodes {
		if n.ID == e.MyNode {
			return n
		}
	}
	return Node{}
}

// Peers returns every node except this one.
func (e *Environment) Peers() []Node {
	peers := make([]Node, 0, len(e.Nodes)-1)
	for _, n := range e.Nodes {
		if n.ID != e.MyNode {
			peers = append(peers, n)
		}
	}
	return peers
}
