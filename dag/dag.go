// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dag

import "github.com/luxfi/bullshark/utils/set"

// DAG is the append-only index of vertices, kept both by round and by
// hash. It enforces no invariants of its own beyond "once inserted, never
// removed or mutated": deduplication and parent-availability checks are
// the validator's and the RBC engine's job.
//
// The core runs single-threaded with respect to this state (one node, one
// event loop); DAG carries no internal locking, matching the "no lock
// needed because no concurrent access exists" model the round engine
// relies on.
type DAG struct {
	byRound map[Round][]*Vertex
	byHash  map[Hash]*Vertex
}

// New creates an empty DAG seeded with the genesis vertex.
func New() *DAG {
	d := &DAG{
		byRound: make(map[Round][]*Vertex),
		byHash:  make(map[Hash]*Vertex),
	}
	d.Insert(NewGenesis())
	return d
}

// Insert appends v to its round and indexes it by hash. Insert performs no
// deduplication; callers must not insert the same vertex twice.
func (d *DAG) Insert(v *Vertex) {
	d.byRound[v.Round] = append(d.byRound[v.Round], v)
	d.byHash[v.Hash] = v
}

// GetRound returns the vertices stored for round r, in insertion order.
func (d *DAG) GetRound(r Round) ([]*Vertex, bool) {
	vs, ok := d.byRound[r]
	return vs, ok
}

// RoundLen returns the number of vertices stored for round r.
func (d *DAG) RoundLen(r Round) int {
	return len(d.byRound[r])
}

// GetByHash looks up a vertex by its content hash.
func (d *DAG) GetByHash(h Hash) (*Vertex, bool) {
	v, ok := d.byHash[h]
	return v, ok
}

// VerticesBySources filters round r's vertices down to those authored by a
// source in sources.
func (d *DAG) VerticesBySources(r Round, sources set.Set[NodeID]) []*Vertex {
	var out []*Vertex
	for _, v := range d.byRound[r] {
		if sources.Contains(v.Source) {
			out = append(out, v)
		}
	}
	return out
}

// HasPath reports whether there is a directed path of parent edges from
// `from` back to `to`, via a breadth-first search that prunes once it
// reaches `to`'s round (vertices of round <= to.Round other than to itself
// are never expanded past).
func (d *DAG) HasPath(from, to *Vertex) bool {
	if from.Hash == to.Hash {
		return true
	}

	visited := map[Hash]struct{}{from.Hash: {}}
	queue := []*Vertex{from}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.Hash == to.Hash {
			return true
		}
		if cur.Round <= to.Round {
			continue
		}

		for _, parentHash := range cur.Edges {
			if _, seen := visited[parentHash]; seen {
				continue
			}
			parent, ok := d.byHash[parentHash]
			if !ok {
				continue
			}
			visited[parentHash] = struct{}{}
			queue = append(queue, parent)
		}
	}

	return false
}
