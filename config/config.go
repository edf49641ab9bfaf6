// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads the read-only environment a node runs with: the
// node table, the key material, the operating mode, and the block
// batching knobs. Everything here is resolved once at startup; a failure
// is fatal to the process.
package config

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/luxfi/bullshark/dag"
	"github.com/luxfi/bullshark/validator"
)

const (
	nodesFilename      = "./shared/nodes.csv"
	publicKeysFilename = "./shared/public_keys.toml"

	protocolEnv   = "PROTOCOL"
	privateKeyEnv = "PRIVATE_KEY_"
)

// Load builds the Environment from the positional arguments
// <node_id> <transaction_size> <n_transactions>, the PROTOCOL and
// PRIVATE_KEY_<id> environment variables, and the shared node and key
// files. Unknown trailing arguments are ignored.
func Load(args []string) (*Environment, error) {
	if len(args) < 3 {
		return nil, ErrUsage
	}

	myID, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: node id %q", ErrUsage, args[0])
	}
	txSize, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, fmt.Errorf("%w: transaction size %q", ErrUsage, args[1])
	}
	nTx, err := strconv.Atoi(args[2])
	if err != nil {
		return nil, fmt.Errorf("%w: transactions per block %q", ErrUsage, args[2])
	}

	mode, err := ParseMode(os.Getenv(protocolEnv))
	if err != nil {
		return nil, err
	}

	nodes, err := ReadNodes(nodesFilename)
	if err != nil {
		return nil, err
	}
	found := false
	for _, n := range nodes {
		if n.ID == dag.NodeID(myID) {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %d", ErrNodeNotInTable, myID)
	}

	priv, err := ReadPrivateKey(dag.NodeID(myID))
	if err != nil {
		return nil, err
	}
	pubs, err := ReadPublicKeys(publicKeysFilename)
	if err != nil {
		return nil, err
	}

	env := &Environment{
		MyNode:          dag.NodeID(myID),
		Nodes:           nodes,
		N:               len(nodes),
		F:               FaultTolerance(len(nodes)),
		D:               DefaultD(mode),
		Mode:            mode,
		TransactionSize: txSize,
		NTransactions:   nTx,
		PrivateKey:      priv,
		PublicKeys:      pubs,
	}
	if err := env.Valid(); err != nil {
		return nil, err
	}
	return env, nil
}

// ParseMode maps the PROTOCOL environment value to an operating mode.
// "dense" and "standard" are synonyms; the default is sparse.
func ParseMode(s string) (validator.Mode, error) {
	switch s {
	case "dense", "standard":
		return validator.Dense, nil
	case "sparse", "":
		return validator.Sparse, nil
	default:
		return 0, fmt.Errorf("%w: got %q", ErrUnknownProtocol, s)
	}
}

// ReadNodes parses the node table CSV. The header row id,host,port is
// required; rows that fail to parse are skipped with the remainder kept,
// matching the tolerant row handling of the shared table's producers.
func ReadNodes(path string) ([]Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open node table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read node table: %w", err)
	}
	if len(records) == 0 || len(records[0]) < 3 ||
		records[0][0] != "id" || records[0][1] != "host" || records[0][2] != "port" {
		return nil, ErrBadNodesHeader
	}

	var nodes []Node
	for _, rec := range records[1:] {
		if len(rec) < 3 {
			continue
		}
		id, err := strconv.ParseUint(rec[0], 10, 32)
		if err != nil {
			continue
		}
		port, err := strconv.ParseUint(rec[2], 10, 16)
		if err != nil {
			continue
		}
		nodes = append(nodes, Node{
			ID:   dag.NodeID(id),
			Host: rec[1],
			Port: uint16(port),
		})
	}
	return nodes, nil
}

// ReadPrivateKey decodes the PRIVATE_KEY_<id> environment variable: the
// base64 encoding of the 64-byte ed25519 keypair (seed followed by
// public key).
func ReadPrivateKey(id dag.NodeID) (ed25519.PrivateKey, error) {
	encoded, ok := os.LookupEnv(fmt.Sprintf("%s%d", privateKeyEnv, id))
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrMissingPrivateKey, id)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPrivateKey, err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrBadPrivateKey, len(raw))
	}
	return ed25519.PrivateKey(raw), nil
}

type publicKeyEntry struct {
	PublicKey string `toml:"public_key"`
}

// ReadPublicKeys parses the public key TOML file: a top-level table
// keyed by stringified node id, each entry carrying a base64 public_key.
func ReadPublicKeys(path string) (map[dag.NodeID]ed25519.PublicKey, error) {
	var table map[string]publicKeyEntry
	if _, err := toml.DecodeFile(path, &table); err != nil {
		return nil, fmt.Errorf("parse public key file: %w", err)
	}

	keys := make(map[dag.NodeID]ed25519.PublicKey, len(table))
	for idStr, entry := range table {
		id, err := strconv.ParseUint(idStr, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: node id %q", ErrBadPublicKey, idStr)
		}
		raw, err := base64.StdEncoding.DecodeString(entry.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("%w: node %s: %v", ErrBadPublicKey, idStr, err)
		}
		if len(raw) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("%w: node %s: got %d bytes", ErrBadPublicKey, idStr, len(raw))
		}
		keys[dag.NodeID(id)] = ed25519.PublicKey(raw)
	}
	return keys, nil
}
