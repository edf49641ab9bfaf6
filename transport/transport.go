// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/luxfi/log"

	"github.com/luxfi/bullshark/config"
	"github.com/luxfi/bullshark/dag"
)

// Inbound is one authenticated message received from a peer.
type Inbound struct {
	Peer dag.NodeID
	Msg  *Message
}

// Transport maintains one dialed connection per peer for outbound
// broadcasts and accepts one authenticated connection per peer for
// inbound messages. Write halves are owned exclusively by the dispatcher
// task; each accepted connection gets its own reader task. The two sides
// meet only through channels.
type Transport struct {
	env *config.Environment
	log log.Logger

	// out is the bounded dispatcher queue. Producers block when it is
	// full; that is the system's backpressure.
	out chan *Message
	in  chan Inbound

	dialRetry time.Duration
}

// New constructs a Transport for the configured environment.
func New(env *config.Environment, logger log.Logger) *Transport {
	return &Transport{
		env:       env,
		log:       logger,
		out:       make(chan *Message, config.DispatchQueueSize),
		in:        make(chan Inbound, config.DispatchQueueSize),
		dialRetry: 500 * time.Millisecond,
	}
}

// Inbound returns the stream of authenticated peer messages.
func (t *Transport) Inbound() <-chan Inbound { return t.in }

// Broadcast enqueues m for delivery to every live peer. It blocks while
// the dispatcher queue is full.
func (t *Transport) Broadcast(m *Message) {
	t.out <- m
}

// Start listens on this node's configured address, dials every peer, and
// spawns the accept loop and the dispatcher. It returns once all peers
// are dialed (or ctx is done).
func (t *Transport) Start(ctx context.Context) error {
	self := t.env.Self()
	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", self.Host, self.Port))
	if err != nil {
		return fmt.Errorf("listen %s:%d: %w", self.Host, self.Port, err)
	}
	go t.acceptLoop(ctx, listener)

	conns := make(map[dag.NodeID]net.Conn, len(t.env.Nodes)-1)
	for _, peer := range t.env.Peers() {
		conn, err := t.dial(ctx, peer)
		if err != nil {
			t.log.Warn("peer unreachable",
				zap.Uint32("peer", uint32(peer.ID)),
				zap.Error(err),
			)
			continue
		}
		conns[peer.ID] = conn
	}
	go t.dispatch(ctx, conns)
	return nil
}

// dial connects to one peer, retrying until it answers or ctx is done,
// then sends the identification frame.
func (t *Transport) dial(ctx context.Context, peer config.Node) (net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", peer.Host, peer.Port)
	var dialer net.Dialer
	for {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			if err := WriteHandshake(conn, uint32(t.env.MyNode), t.env.PrivateKey, t.env.TestFlag); err != nil {
				conn.Close()
				return nil, err
			}
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(t.dialRetry):
		}
	}
}

// dispatch owns every outbound write half. It serializes each queued
// message once, then signs, frames, and writes it for each live peer. A
// peer whose write fails is marked dead and skipped from then on.
func (t *Transport) dispatch(ctx context.Context, conns map[dag.NodeID]net.Conn) {
	defer func() {
		for _, conn := range conns {
			conn.Close()
		}
	}()

	for {
		var m *Message
		select {
		case <-ctx.Done():
			return
		case m = <-t.out:
		}

		payload, err := m.Marshal()
		if err != nil {
			t.log.Error("serialize outbound message", zap.Error(err))
			continue
		}

		for id, conn := range conns {
			if err := WriteFrame(conn, payload, t.env.PrivateKey, t.env.TestFlag); err != nil {
				t.log.Warn("peer connection dead",
					zap.Uint32("peer", uint32(id)),
					zap.Error(err),
				)
				conn.Close()
				delete(conns, id)
			}
		}
	}
}

// acceptLoop admits inbound connections. A connection that fails the
// handshake is closed and not counted as accepted.
func (t *Transport) acceptLoop(ctx context.Context, listener net.Listener) {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			return
		}

		peer, err := ReadHandshake(conn, t.lookupKey, t.env.TestFlag)
		if err != nil {
			t.log.Warn("handshake rejected", zap.Error(err))
			conn.Close()
			continue
		}
		go t.readLoop(ctx, dag.NodeID(peer), conn)
	}
}

func (t *Transport) lookupKey(id uint32) (ed25519.PublicKey, bool) {
	pub, ok := t.env.PublicKeys[dag.NodeID(id)]
	return pub, ok
}

// readLoop reads frames from one authenticated peer for the life of the
// connection, preserving per-peer FIFO order. A frame with a bad
// signature or an undecodable payload is dropped silently; an io error
// or a length-field violation ends the connection.
func (t *Transport) readLoop(ctx context.Context, peer dag.NodeID, conn net.Conn) {
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	pub := t.env.PublicKeys[peer]
	for {
		payload, err := ReadFrame(conn, pub, t.env.TestFlag)
		if errors.Is(err, errBadSignature) {
			t.log.Debug("dropping frame", zap.Uint32("peer", uint32(peer)), zap.Error(err))
			continue
		}
		if err != nil {
			t.log.Debug("peer read ended", zap.Uint32("peer", uint32(peer)), zap.Error(err))
			return
		}

		m, err := Unmarshal(payload)
		if err != nil {
			t.log.Debug("dropping frame", zap.Uint32("peer", uint32(peer)), zap.Error(err))
			continue
		}

		select {
		case <-ctx.Done():
			return
		case t.in <- Inbound{Peer: peer, Msg: m}:
		}
	}
}
