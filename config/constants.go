// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

// Byzantine quorum arithmetic for a population of n = 3f+1 nodes.

// FaultTolerance returns the largest f such that n >= 3f+1.
func FaultTolerance(n int) int {
	return (n - 1) / 3
}

// Quorum returns the 2f+1 threshold: enough votes that any two quorums
// intersect in at least one honest node.
func Quorum(f int) int {
	return 2*f + 1
}

// WeakQuorum returns the f+1 threshold: enough votes that at least one
// is from an honest node.
func WeakQuorum(f int) int {
	return f + 1
}
