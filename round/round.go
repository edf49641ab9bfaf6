// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package round implements the per-node round engine: the may-advance
// rule, the pending buffer for out-of-order vertices, vertex creation for
// both dense and sparse modes, and the anchor-based commit and
// causal-past ordering rules.
package round

import (
	"crypto/ed25519"
	"sort"

	"go.uber.org/zap"

	"github.com/luxfi/log"

	"github.com/luxfi/bullshark/dag"
	"github.com/luxfi/bullshark/rbc"
	"github.com/luxfi/bullshark/sample"
	"github.com/luxfi/bullshark/utils/bag"
	"github.com/luxfi/bullshark/validator"
)

// BlockSource supplies the opaque payload each new vertex carries.
type BlockSource interface {
	NextBlock() []byte
}

// pendingItem is a candidate vertex buffered because its parents are not
// yet locally available.
type pendingItem struct {
	sender dag.NodeID
	vertex *dag.Vertex
}

// Engine owns all mutable core state for one node: the DAG, the current
// round, the pending buffer, the ordering state (last ordered round and
// already-ordered set), and (dense mode) the reliable broadcast engine. Per the single-threaded cooperative
// model it carries no lock.
type Engine struct {
	self dag.NodeID
	n    int
	f    int
	d    int
	mode validator.Mode

	priv   ed25519.PrivateKey
	pub    map[dag.NodeID]ed25519.PublicKey
	blocks BlockSource

	dag     *dag.DAG
	round   dag.Round
	pending map[dag.Round][]pendingItem

	rbc *rbc.Engine

	lastOrderedRound dag.Round
	alreadyOrdered   map[dag.Hash]struct{}

	log     log.Logger
	metrics *Metrics
}

// Config carries the fixed parameters of an Engine for its lifetime.
type Config struct {
	Self       dag.NodeID
	N          int
	F          int
	D          int
	Mode       validator.Mode
	PrivateKey ed25519.PrivateKey
	PublicKeys map[dag.NodeID]ed25519.PublicKey

	// Blocks supplies vertex payloads; nil means empty payloads.
	Blocks BlockSource
}

// New constructs an Engine at round 1 with a fresh DAG seeded with genesis.
func New(cfg Config, logger log.Logger, m *Metrics, rbcEngine *rbc.Engine) *Engine {
	return &Engine{
		self:             cfg.Self,
		n:                cfg.N,
		f:                cfg.F,
		d:                cfg.D,
		mode:             cfg.Mode,
		priv:             cfg.PrivateKey,
		pub:              cfg.PublicKeys,
		blocks:           cfg.Blocks,
		dag:              dag.New(),
		round:            1,
		pending:          make(map[dag.Round][]pendingItem),
		rbc:              rbcEngine,
		lastOrderedRound: 0,
		alreadyOrdered:   make(map[dag.Hash]struct{}),
		log:              logger,
		metrics:          m,
	}
}

// DAG exposes the underlying store for read-only inspection (tests,
// transport-layer debugging).
func (e *Engine) DAG() *dag.DAG { return e.dag }

// Round returns the node's current round counter.
func (e *Engine) Round() dag.Round { return e.round }

func (e *Engine) validatorConfig() validator.Config {
	return validator.Config{Mode: e.mode, D: e.d, PublicKeys: e.pub}
}

// mayAdvance implements the may-advance rule: always at round 1,
// otherwise when the prior round has 2f+1 vertices.
func (e *Engine) mayAdvance() bool {
	if e.round == 1 {
		return true
	}
	return e.dag.RoundLen(e.round-1) >= 2*e.f+1
}

// OutMessage is an action the caller must perform: broadcast a newly
// created vertex, or forward an RBC control message.
type OutMessage struct {
	Vertex *dag.Vertex
	RBC    *rbc.OutMessage
}

// CommittedAnchor is a finalized anchor together with the vertices in its
// causal past, in emission order.
type CommittedAnchor struct {
	Anchor   *dag.Vertex
	Ordering []*dag.Vertex
}

// Advance runs the may-advance and work-loop logic to a fixpoint,
// returning every vertex broadcast and anchor committed along the way.
func (e *Engine) Advance() ([]OutMessage, []CommittedAnchor) {
	var outs []OutMessage
	var commits []CommittedAnchor

	for {
		progressed := false

		if e.mayAdvance() {
			o, c := e.advanceOnce()
			outs = append(outs, o...)
			commits = append(commits, c...)
			progressed = true
		}

		for _, r := range []dag.Round{e.round - 1, e.round} {
			if r < 1 {
				continue
			}
			promoted := e.retryPending(r)
			if len(promoted) > 0 {
				progressed = true
			}
			for _, p := range promoted {
				o, c := e.admit(p.sender, p.vertex)
				outs = append(outs, o...)
				commits = append(commits, c...)
			}
		}

		if !progressed {
			break
		}
	}
	return outs, commits
}

// advanceOnce builds this node's next vertex, inserts it locally, and
// returns the broadcast actions. In dense mode the vertex is also fed
// into the local RBC engine as a self-VAL, which yields this node's ECHO.
func (e *Engine) advanceOnce() ([]OutMessage, []CommittedAnchor) {
	v := e.createNewVertex(e.round)
	e.dag.Insert(v)
	e.log.Debug("vertex created", zap.Uint64("round", uint64(v.Round)), zap.Stringer("hash", v.Hash))
	if e.metrics != nil {
		e.metrics.roundsAdvanced.Inc()
	}
	e.round++

	outs := []OutMessage{{Vertex: v}}
	if e.mode == validator.Dense && e.rbc != nil {
		// Self-VAL: the body is already inserted locally, so only the
		// ECHO matters here.
		msgs, _ := e.rbc.ReceiveVal(v)
		outs = append(outs, rbcOuts(msgs)...)
	}
	return outs, e.tryCommit(v)
}

// rbcOuts wraps RBC broadcast requests as engine output actions.
func rbcOuts(msgs []rbc.OutMessage) []OutMessage {
	outs := make([]OutMessage, 0, len(msgs))
	for i := range msgs {
		m := msgs[i]
		outs = append(outs, OutMessage{RBC: &m})
	}
	return outs
}

// createNewVertex builds this node's vertex for round r: in
// dense mode every round-(r-1) candidate is linked; in sparse mode a
// pseudo-random subset of size d plus the round-(r-1) anchor is linked,
// accompanied by an aggregated sample proof.
func (e *Engine) createNewVertex(r dag.Round) *dag.Vertex {
	if r == 1 {
		v := &dag.Vertex{Round: 1, Source: e.self, Block: e.nextBlock(), Edges: []dag.Hash{dag.Genesis}}
		if e.mode == validator.Sparse {
			v.SignedRound = sample.SignRound(1, e.priv)
		}
		v.Hash = v.CalculateHash()
		return v
	}

	candidates, _ := e.dag.GetRound(r - 1)

	v := &dag.Vertex{Round: r, Source: e.self, Block: e.nextBlock()}
	if e.mode == validator.Dense {
		for _, c := range candidates {
			v.Edges = append(v.Edges, c.Hash)
		}
	} else {
		proofBytes, err := sample.Aggregate(candidates)
		if err != nil {
			e.log.Warn("sample aggregate failed", zap.Error(err))
			proofBytes = nil
		}
		seed := sample.Seed(proofBytes)
		anchor := e.anchor(r - 1)
		v.Edges = sample.Sample(candidates, e.d, seed, anchor)
		v.SampleProof = proofBytes
		v.SignedRound = sample.SignRound(r, e.priv)
	}
	v.Hash = v.CalculateHash()
	return v
}

func (e *Engine) nextBlock() []byte {
	if e.blocks == nil {
		return nil
	}
	return e.blocks.NextBlock()
}

// OnInbound handles a candidate vertex received from a peer. In sparse
// mode it goes straight to validation, DAG insertion, commit evaluation,
// and the work loop to fixpoint; invalid vertices that might still
// resolve (missing parents, round >= round-1) are buffered. In dense
// mode the vertex is a VAL: the RBC engine stores the body and ECHOs,
// and the DAG insertion waits for the 2f+1-READY delivery quorum.
func (e *Engine) OnInbound(sender dag.NodeID, v *dag.Vertex) ([]OutMessage, []CommittedAnchor) {
	if e.mode == validator.Dense && e.rbc != nil {
		msgs, delivered := e.rbc.ReceiveVal(v)
		return e.afterRBC(msgs, delivered)
	}
	outs, commits := e.admit(sender, v)
	moreOuts, moreCommits := e.Advance()
	return append(outs, moreOuts...), append(commits, moreCommits...)
}

// OnEcho feeds a peer's ECHO vote into the RBC engine. A vertex that
// reaches its delivery quorum here re-enters the engine as a candidate.
func (e *Engine) OnEcho(sender dag.NodeID, h dag.Hash) ([]OutMessage, []CommittedAnchor) {
	if e.rbc == nil {
		return nil, nil
	}
	msgs, delivered := e.rbc.ReceiveEcho(h, sender)
	return e.afterRBC(msgs, delivered)
}

// OnReady feeds a peer's READY vote into the RBC engine.
func (e *Engine) OnReady(sender dag.NodeID, h dag.Hash) ([]OutMessage, []CommittedAnchor) {
	if e.rbc == nil {
		return nil, nil
	}
	msgs, delivered := e.rbc.ReceiveReady(h, sender)
	return e.afterRBC(msgs, delivered)
}

func (e *Engine) afterRBC(msgs []rbc.OutMessage, delivered *dag.Vertex) ([]OutMessage, []CommittedAnchor) {
	outs := rbcOuts(msgs)
	var commits []CommittedAnchor
	if delivered != nil {
		o, c := e.admit(delivered.Source, delivered)
		outs = append(outs, o...)
		commits = append(commits, c...)
	}
	moreOuts, moreCommits := e.Advance()
	return append(outs, moreOuts...), append(commits, moreCommits...)
}

func (e *Engine) admit(sender dag.NodeID, v *dag.Vertex) ([]OutMessage, []CommittedAnchor) {
	if _, dup := e.dag.GetByHash(v.Hash); dup {
		return nil, nil
	}

	err := validator.Validate(v, sender, v.Round, e.dag, e.validatorConfig())
	if err != nil {
		if validator.IsRecoverable(err) && v.Round >= e.round-1 {
			e.pending[v.Round] = append(e.pending[v.Round], pendingItem{sender: sender, vertex: v})
		} else {
			e.log.Debug("vertex rejected", zap.Error(err), zap.Stringer("hash", v.Hash))
		}
		return nil, nil
	}

	e.dag.Insert(v)
	return nil, e.tryCommit(v)
}

// retryPending re-validates every buffered candidate for round r, moving
// newly valid ones out of the buffer.
func (e *Engine) retryPending(r dag.Round) []pendingItem {
	items := e.pending[r]
	if len(items) == 0 {
		return nil
	}
	var promoted, kept []pendingItem
	for _, it := range items {
		if err := validator.Validate(it.vertex, it.sender, it.vertex.Round, e.dag, e.validatorConfig()); err == nil {
			promoted = append(promoted, it)
		} else {
			kept = append(kept, it)
		}
	}
	e.pending[r] = kept
	return promoted
}

// anchor returns round r's designated leader vertex, if present. Only
// even rounds have an anchor.
func (e *Engine) anchor(r dag.Round) *dag.Vertex {
	if r%2 != 0 {
		return nil
	}
	leader := dag.NodeID(uint64(r/2) % uint64(e.n))
	vertices, ok := e.dag.GetRound(r)
	if !ok {
		return nil
	}
	for _, v := range vertices {
		if v.Source == leader {
			return v
		}
	}
	return nil
}

// tryCommit implements the direct and indirect (skip-chain) commit rule
// triggered by the arrival of v in round r >= 2.
func (e *Engine) tryCommit(v *dag.Vertex) []CommittedAnchor {
	r := v.Round
	if r < 2 {
		return nil
	}
	a := e.anchor(r - 2)
	if a == nil || a.Round <= e.lastOrderedRound {
		return nil
	}

	voters, ok := e.dag.GetRound(r - 1)
	if !ok {
		return nil
	}
	support := bag.New[dag.Hash]()
	for _, voter := range voters {
		for _, edge := range voter.Edges {
			if edge == a.Hash {
				support.Add(a.Hash)
				break
			}
		}
	}
	if support.Count(a.Hash) < e.f+1 {
		return nil
	}

	return e.commitAnchor(a)
}

// commitAnchor performs the skip-chain walk starting at a, pushing every
// anchor from a down to lastOrderedRound+1 that is reachable from its
// predecessor, then orders and emits their combined causal past.
func (e *Engine) commitAnchor(a *dag.Vertex) []CommittedAnchor {
	stack := []*dag.Vertex{a}
	current := a

	// rPrime walks a.Round-2, a.Round-4, ... down to lastOrderedRound+1.
	// Guarded explicitly against underflow: dag.Round is unsigned, so
	// "rPrime -= 2" below round 2 would wrap instead of going negative.
	for rPrime := a.Round; rPrime >= 2 && rPrime-2 > e.lastOrderedRound; rPrime -= 2 {
		cand := e.anchor(rPrime - 2)
		if cand == nil {
			continue
		}
		if e.dag.HasPath(current, cand) {
			stack = append(stack, cand)
			current = cand
		}
	}

	e.lastOrderedRound = stack[len(stack)-1].Round

	var results []CommittedAnchor
	for i := len(stack) - 1; i >= 0; i-- {
		anchor := stack[i]
		ordering := e.orderCausalPast(anchor)
		results = append(results, CommittedAnchor{Anchor: anchor, Ordering: ordering})
		if e.metrics != nil {
			e.metrics.anchorsCommitted.Inc()
			e.metrics.verticesOrdered.Add(float64(len(ordering)))
		}
	}
	return results
}

// orderCausalPast performs a BFS over a's edges, skipping any vertex
// already emitted, and returns the newly-discovered set sorted by hash
// for a deterministic tie-break.
func (e *Engine) orderCausalPast(a *dag.Vertex) []*dag.Vertex {
	var batch []*dag.Vertex
	visited := make(map[dag.Hash]struct{})
	queue := []dag.Hash{a.Hash}

	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]

		if _, done := e.alreadyOrdered[h]; done {
			continue
		}
		if _, seen := visited[h]; seen {
			continue
		}
		visited[h] = struct{}{}

		v, ok := e.dag.GetByHash(h)
		if !ok {
			continue
		}
		batch = append(batch, v)
		queue = append(queue, v.Edges...)
	}

	sort.Slice(batch, func(i, j int) bool { return batch[i].Hash.Compare(batch[j].Hash) < 0 })
	for _, v := range batch {
		e.alreadyOrdered[v.Hash] = struct{}{}
	}
	return batch
}
