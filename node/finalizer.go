// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package node

import (
	"go.uber.org/zap"

	"github.com/luxfi/log"

	"github.com/luxfi/bullshark/dag"
)

// Ledger records the total order of finalized vertices as the commit
// rule emits them. Blocks are delivered in order; nothing is executed.
type Ledger struct {
	log log.Logger

	hashes  []dag.Hash
	anchors []dag.Hash
}

// NewLedger creates an empty ledger.
func NewLedger(logger log.Logger) *Ledger {
	return &Ledger{log: logger}
}

// Append records one committed anchor and its ordered causal-past batch.
// The batch arrives already sorted by hash and includes the anchor
// itself, at whatever position its hash sorts to.
func (l *Ledger) Append(anchor *dag.Vertex, batch []*dag.Vertex) {
	l.anchors = append(l.anchors, anchor.Hash)
	for _, v := range batch {
		l.hashes = append(l.hashes, v.Hash)
	}
	l.log.Info("anchor finalized",
		zap.Uint64("round", uint64(anchor.Round)),
		zap.Uint32("source", uint32(anchor.Source)),
		zap.Int("batch", len(batch)),
		zap.Int("total", len(l.hashes)),
	)
}

// Len returns the number of finalized vertices.
func (l *Ledger) Len() int {
	return len(l.hashes)
}

// Hashes returns the finalized vertex hashes in emission order.
func (l *Ledger) Hashes() []dag.Hash {
	out := make([]dag.Hash, len(l.hashes))
	copy(out, l.hashes)
	return out
}

// Anchors returns the finalized anchor hashes in commit order.
func (l *Ledger) Anchors() []dag.Hash {
	out := make([]dag.Hash, len(l.anchors))
	copy(out, l.anchors)
	return out
}
