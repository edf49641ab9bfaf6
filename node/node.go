// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package node wires one process together: the transport below, the
// round engine in the middle, and the finalization ledger on top. All
// core state is touched from a single task — Run's event loop — so the
// engine itself carries no locks.
package node

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/bullshark/config"
	"github.com/luxfi/bullshark/rbc"
	"github.com/luxfi/bullshark/round"
	"github.com/luxfi/bullshark/transport"
	"github.com/luxfi/bullshark/validator"
)

// Node is one protocol instance.
type Node struct {
	env    *config.Environment
	engine *round.Engine
	net    *transport.Transport
	ledger *Ledger
	log    log.Logger
}

// New assembles a node from its environment. The prometheus registerer
// may be nil to run without metrics.
func New(env *config.Environment, logger log.Logger, registerer prometheus.Registerer) (*Node, error) {
	var roundMetrics *round.Metrics
	var rbcMetrics *rbc.Metrics
	var err error
	if registerer != nil {
		if roundMetrics, err = round.NewMetrics(registerer); err != nil {
			return nil, fmt.Errorf("register round metrics: %w", err)
		}
		if rbcMetrics, err = rbc.NewMetrics(registerer); err != nil {
			return nil, fmt.Errorf("register rbc metrics: %w", err)
		}
	}

	var rbcEngine *rbc.Engine
	if env.Mode == validator.Dense {
		rbcEngine = rbc.New(env.MyNode, env.N, env.F, logger, rbcMetrics)
	}

	engine := round.New(round.Config{
		Self:       env.MyNode,
		N:          env.N,
		F:          env.F,
		D:          env.D,
		Mode:       env.Mode,
		PrivateKey: env.PrivateKey,
		PublicKeys: env.PublicKeys,
		Blocks: &config.RandomBlocks{
			TransactionSize: env.TransactionSize,
			NTransactions:   env.NTransactions,
		},
	}, logger, roundMetrics, rbcEngine)

	return &Node{
		env:    env,
		engine: engine,
		net:    transport.New(env, logger),
		ledger: NewLedger(logger),
		log:    logger,
	}, nil
}

// Ledger returns the node's finalization ledger.
func (n *Node) Ledger() *Ledger { return n.ledger }

// Run starts the transport and drives the core event loop until ctx
// expires. It returns nil on a clean shutdown.
func (n *Node) Run(ctx context.Context) error {
	if err := n.net.Start(ctx); err != nil {
		return err
	}

	// Kick the engine: round 1 always advances, producing this node's
	// first vertex before any peer traffic arrives.
	outs, commits := n.engine.Advance()
	n.emit(outs, commits)

	for {
		select {
		case <-ctx.Done():
			n.log.Info("shutting down",
				zap.Uint64("round", uint64(n.engine.Round())),
				zap.Int("finalized", n.ledger.Len()),
			)
			return nil
		case inb := <-n.net.Inbound():
			n.handle(inb)
		}
	}
}

// handle processes one inbound message. A panic inside message handling
// is caught here at the boundary: it is logged and the node continues.
func (n *Node) handle(inb transport.Inbound) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error("panic handling message",
				zap.Uint32("peer", uint32(inb.Peer)),
				zap.Any("panic", r),
			)
		}
	}()

	var outs []round.OutMessage
	var commits []round.CommittedAnchor

	switch inb.Msg.Op {
	case transport.OpVertex:
		outs, commits = n.engine.OnInbound(inb.Peer, inb.Msg.Vertex)
	case transport.OpEcho:
		outs, commits = n.engine.OnEcho(inb.Peer, inb.Msg.Hash)
	case transport.OpReady:
		outs, commits = n.engine.OnReady(inb.Peer, inb.Msg.Hash)
	case transport.OpCommit:
		// Commits are a notification, not an input: ordering is a pure
		// function of the local DAG.
		n.log.Debug("peer finalized round",
			zap.Uint32("peer", uint32(inb.Peer)),
			zap.Uint64("round", uint64(inb.Msg.Round)),
		)
	default:
		n.log.Debug("unknown op", zap.Uint8("op", uint8(inb.Msg.Op)))
	}

	n.emit(outs, commits)
}

// emit pushes engine output to the wire and finalized anchors to the
// ledger.
func (n *Node) emit(outs []round.OutMessage, commits []round.CommittedAnchor) {
	for _, out := range outs {
		switch {
		case out.Vertex != nil:
			n.net.Broadcast(&transport.Message{
				Op:     transport.OpVertex,
				Sender: n.env.MyNode,
				Vertex: out.Vertex,
			})
		case out.RBC != nil:
			op := transport.OpEcho
			if out.RBC.Kind == rbc.Ready {
				op = transport.OpReady
			}
			n.net.Broadcast(&transport.Message{Op: op, Hash: out.RBC.Hash})
		}
	}

	for _, c := range commits {
		n.ledger.Append(c.Anchor, c.Ordering)
		n.net.Broadcast(&transport.Message{
			Op:        transport.OpCommit,
			Round:     c.Anchor.Round,
			Committed: c.Ordering,
		})
	}
}
