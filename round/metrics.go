// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package round

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks round-engine progress for observability.
type Metrics struct {
	roundsAdvanced   prometheus.Counter
	anchorsCommitted prometheus.Counter
	verticesOrdered  prometheus.Counter
}

// NewMetrics builds and registers the round-engine counters.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		roundsAdvanced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bullshark_rounds_advanced_total",
			Help: "Number of local round advances",
		}),
		anchorsCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bullshark_anchors_committed_total",
			Help: "Number of anchors committed by the ordering rule",
		}),
		verticesOrdered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bullshark_vertices_ordered_total",
			Help: "Number of vertices emitted in finalization order",
		}),
	}
	if err := registerer.Register(m.roundsAdvanced); err != nil {
		return nil, err
	}
	if err := registerer.Register(m.anchorsCommitted); err != nil {
		return nil, err
	}
	if err := registerer.Register(m.verticesOrdered); err != nil {
		return nil, err
	}
	return m, nil
}
