// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import "errors"

var (
	ErrUsage             = errors.New("usage: consensus <node_id> <transaction_size> <n_transactions>")
	ErrUnknownProtocol   = errors.New("PROTOCOL must be one of dense, standard, sparse")
	ErrNodeNotInTable    = errors.New("node id not present in nodes.csv")
	ErrBadNodesHeader    = errors.New("nodes.csv must start with header id,host,port")
	ErrMissingPrivateKey = errors.New("missing PRIVATE_KEY_<id> environment variable")
	ErrBadPrivateKey     = errors.New("PRIVATE_KEY_<id> is not a base64 ed25519 keypair")
	ErrBadPublicKey      = errors.New("public key entry is not a base64 ed25519 key")
	ErrMissingPublicKey  = errors.New("public_keys.toml missing an entry for a configured node")
)
