// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rbc

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	delivered prometheus.Counter
	echoSent  prometheus.Counter
	readySent prometheus.Counter
}

// NewMetrics builds and registers the reliable-broadcast counters.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bullshark_rbc_delivered_total",
			Help: "Number of vertex hashes delivered by reliable broadcast",
		}),
		echoSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bullshark_rbc_echo_sent_total",
			Help: "Number of ECHO messages sent",
		}),
		readySent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bullshark_rbc_ready_sent_total",
			Help: "Number of READY messages sent",
		}),
	}
	if err := registerer.Register(m.delivered); err != nil {
		return nil, err
	}
	if err := registerer.Register(m.echoSent); err != nil {
		return nil, err
	}
	if err := registerer.Register(m.readySent); err != nil {
		return nil, err
	}
	return m, nil
}
