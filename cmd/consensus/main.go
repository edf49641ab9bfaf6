// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// The consensus binary runs one protocol node:
//
//	consensus <node_id> <transaction_size> <n_transactions>
//
// Operating mode comes from the PROTOCOL environment variable, key
// material from PRIVATE_KEY_<id> and the shared key files. The node runs
// for a fixed wall-clock budget and then exits cleanly.
package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/bullshark/config"
	"github.com/luxfi/bullshark/node"
	"github.com/luxfi/bullshark/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	env, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	logger := log.New("node", fmt.Sprintf("node-%d", env.MyNode))
	logger.Info("starting",
		zap.Stringer("version", version.Current),
		zap.Uint32("node", uint32(env.MyNode)),
		zap.Int("n", env.N),
		zap.Int("f", env.F),
		zap.Int("d", env.D),
	)

	n, err := node.New(env, logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DefaultRunBudget)
	defer cancel()

	return n.Run(ctx)
}
