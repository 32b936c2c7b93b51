// Copyright 2026 The UStore Authors.
//
// Package config loads UStore's process configuration from environment
// variables, plus TOML-parsed worker-list/client-service route tables
// (spec §6/§4.15).
package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/ustoredb/ustore/partition"
	"github.com/ustoredb/ustore/rollinghash"
)

const (
	envWorkerListFile    = "USTORE_WORKER_LIST_FILE"
	envClientServiceFile = "USTORE_CLIENT_SERVICE_FILE"
	envChunkStorePath    = "USTORE_CHUNK_STORE_PATH"
	envRecoveryLogPath   = "USTORE_RECOVERY_LOG_PATH"
	envChunkPattern      = "USTORE_CHUNK_PATTERN"
	envChunkWindow       = "USTORE_CHUNK_WINDOW"
	envRecvThreads       = "USTORE_RECV_THREADS"
)

const defaultRecvThreads = 2

// Config is the process-wide configuration loaded from the environment
// (spec §6 "Config").
type Config struct {
	WorkerListFile    string
	ClientServiceFile string
	ChunkStorePath    string
	RecoveryLogPath   string
	ChunkPattern      uint32
	ChunkWindow       uint32
	RecvThreads       int
}

// Load reads Config from the process environment, applying the defaults
// spec §4.15 names for anything unset.
func Load() (Config, error) {
	c := Config{
		WorkerListFile:    os.Getenv(envWorkerListFile),
		ClientServiceFile: os.Getenv(envClientServiceFile),
		ChunkStorePath:    os.Getenv(envChunkStorePath),
		RecoveryLogPath:   os.Getenv(envRecoveryLogPath),
		ChunkPattern:      rollinghash.DefaultPattern,
		ChunkWindow:       rollinghash.DefaultWindow,
		RecvThreads:       defaultRecvThreads,
	}
	if v := os.Getenv(envChunkPattern); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return Config{}, err
		}
		c.ChunkPattern = uint32(n)
	}
	if v := os.Getenv(envChunkWindow); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return Config{}, err
		}
		c.ChunkWindow = uint32(n)
	}
	if v := os.Getenv(envRecvThreads); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, err
		}
		c.RecvThreads = n
	}
	return c, nil
}

// routeFile is the on-disk TOML shape of a worker-list or client-service
// file: a flat list of partition ranges.
type routeFile struct {
	Ranges []routeEntry `toml:"ranges"`
}

type routeEntry struct {
	StartHash string `toml:"start_hash"`
	Address   string `toml:"address"`
}

// LoadRouteTable parses a worker-list or client-service TOML file (spec
// §4.11's `{start_hash_base32, address}` range entries) into a
// partition.Table.
func LoadRouteTable(path string) (*partition.Table, error) {
	var rf routeFile
	if _, err := toml.DecodeFile(path, &rf); err != nil {
		return nil, err
	}
	ranges := make([]partition.Range, 0, len(rf.Ranges))
	for _, e := range rf.Ranges {
		r, err := partition.ParseRange(e.StartHash, e.Address)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	return partition.NewTable(ranges), nil
}
