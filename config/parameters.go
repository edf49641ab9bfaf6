// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"time"

	"github.com/luxfi/bullshark/validator"
)

// Protocol defaults and process-level limits.
const (
	// DefaultSparseD is the sparse-mode sample size.
	DefaultSparseD = 4
	// DefaultDenseD is the legacy dense-mode configuration value; dense
	// parent selection links every candidate regardless.
	DefaultDenseD = 8

	// DefaultRunBudget is the wall-clock budget after which the node
	// exits cleanly. There are no per-operation deadlines.
	DefaultRunBudget = 120 * time.Second

	// DispatchQueueSize bounds the outbound dispatcher queue; producers
	// block when it is full, which is the system's backpressure.
	DispatchQueueSize = 1024
)

// DefaultD returns the sample-size default for the given mode.
func DefaultD(mode validator.Mode) int {
	if mode == validator.Dense {
		return DefaultDenseD
	}
	return DefaultSparseD
}

// Valid returns an error if the environment is internally inconsistent.
func (e *Environment) Valid() error {
	switch {
	case e.N != len(e.Nodes):
		return fmt.Errorf("n = %d but %d nodes configured", e.N, len(e.Nodes))
	case e.N < 3*e.F+1:
		return fmt.Errorf("n = %d cannot tolerate f = %d Byzantine nodes", e.N, e.F)
	case e.D <= 0:
		return fmt.Errorf("d = %d: fails the condition that: 0 < d", e.D)
	case e.TransactionSize <= 0:
		return fmt.Errorf("transaction size = %d: fails the condition that: 0 < size", e.TransactionSize)
	case e.NTransactions <= 0:
		return fmt.Errorf("transactions per block = %d: fails the condition that: 0 < count", e.NTransactions)
	}
	if _, ok := e.PublicKeys[e.MyNode]; !ok && !e.TestFlag {
		return ErrMissingPublicKey
	}
	return nil
}
