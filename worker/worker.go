// Copyright 2026 The UStore Authors.
//
// Package worker implements the Worker engine facade (spec §4.9/C12):
// the single object upper layers call to read, write, branch, merge, and
// delete versioned keys.
package worker

import (
	"go.uber.org/zap"

	"github.com/ustoredb/ustore/chunk"
	"github.com/ustoredb/ustore/hash"
	"github.com/ustoredb/ustore/headindex"
	"github.com/ustoredb/ustore/recovery"
	"github.com/ustoredb/ustore/ucell"
	"github.com/ustoredb/ustore/ustoreerr"
)

// Value is a fully chunked value ready to be versioned: the composite
// type tag plus the root hash of its tree (or inline leaf, for String).
// Callers build this with package values (e.g. values.CreateBlob) before
// calling Put/Merge — the Worker itself never chunks raw bytes, matching
// spec's "value bytes enter C9 ... C11 updates branch heads" data flow.
type Value struct {
	Type     ucell.UType
	DataHash hash.Hash
}

// NoValue represents "no user-supplied value", used as the override
// argument to Merge when the caller wants automatic resolution only.
var NoValue = Value{}

func (v Value) has() bool { return v.DataHash != hash.Null }

// Worker is the engine facade (spec §4.9). It is safe for concurrent use;
// callers that need same-key serialization should run through a Pool.
type Worker struct {
	store  chunk.Store
	index  headindex.Index
	log    *recovery.Log // nil disables recovery logging (e.g. in tests)
	logger *zap.Logger
}

// New constructs a Worker. log and logger may be nil.
func New(store chunk.Store, index headindex.Index, log *recovery.Log, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{store: store, index: index, log: log, logger: logger}
}

func (w *Worker) newLoader() *chunk.Loader { return chunk.NewLoader(w.store) }

func (w *Worker) appendLog(r recovery.Record) error {
	if w.log == nil {
		return nil
	}
	return w.log.Append(r)
}

// Get resolves the head UCell of (key, branch).
func (w *Worker) Get(key, branch string) (*ucell.UCell, error) {
	v, ok, err := w.index.GetBranch(key, branch)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ustoreerr.ErrBranchNotExists
	}
	return ucell.Load(v, w.newLoader())
}

// GetVersion resolves the UCell at an explicit version hash (spec §4.9's
// second `Get(key, version)` overload — both overloads are first-class
// per the Open Question decision recorded in DESIGN.md).
func (w *Worker) GetVersion(version hash.Hash) (*ucell.UCell, error) {
	u, err := ucell.Load(version, w.newLoader())
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetChunk performs a raw chunk fetch for clients that decode locally
// (spec §4.9, supplemented feature named in SPEC_FULL.md).
func (w *Worker) GetChunk(version hash.Hash) (chunk.Chunk, error) {
	c, ok, err := w.store.Get(version)
	if err != nil {
		return chunk.Chunk{}, err
	}
	if !ok {
		return chunk.Chunk{}, ustoreerr.ErrChunkNotExists
	}
	return c, nil
}

// Put writes value as the new head of (key, branch), chaining from the
// branch's current head (or hash.Null if the branch is new).
func (w *Worker) Put(key string, value Value, branch string) (hash.Hash, error) {
	pre, ok, err := w.index.GetBranch(key, branch)
	if err != nil {
		return hash.Hash{}, err
	}
	if !ok {
		pre = hash.Null
	}
	return w.put(key, value, pre, &branch)
}

// PutVersion writes value chained from an explicit parent version,
// without updating any branch head.
func (w *Worker) PutVersion(key string, value Value, preVersion hash.Hash) (hash.Hash, error) {
	return w.put(key, value, preVersion, nil)
}

func (w *Worker) put(key string, value Value, pre hash.Hash, branch *string) (hash.Hash, error) {
	u, err := ucell.Create(ucell.Spec{
		Type:     value.Type,
		DataHash: value.DataHash,
		PreHash1: pre,
		PreHash2: hash.Null,
		Key:      []byte(key),
	}, w.newLoader())
	if err != nil {
		return hash.Hash{}, err
	}
	newVer := u.Version()

	// The recovery record must be durable before the index reflects the
	// change (spec §7: "either the log record is durable and the index
	// update is applied, or neither").
	if err := w.appendLog(recovery.Record{Cmd: recovery.CmdLatest, Key: key, Pre1: pre, Pre2: hash.Null, Ver: newVer}); err != nil {
		return hash.Hash{}, err
	}
	if branch != nil {
		if err := w.appendLog(recovery.Record{Cmd: recovery.CmdUpdate, Key: key, Branch: *branch, Ver: newVer}); err != nil {
			return hash.Hash{}, err
		}
	}

	if err := w.index.PutLatest(key, pre, hash.Null, newVer); err != nil {
		return hash.Hash{}, err
	}
	if branch != nil {
		if err := w.index.PutBranch(key, *branch, newVer); err != nil {
			return hash.Hash{}, err
		}
	}
	w.logger.Debug("put", zap.String("key", key), zap.Stringer("version", newVer))
	return newVer, nil
}

// Branch points newBranch at the current head of srcBranch. newBranch
// must not already exist.
func (w *Worker) Branch(key, srcBranch, newBranch string) error {
	v, ok, err := w.index.GetBranch(key, srcBranch)
	if err != nil {
		return err
	}
	if !ok {
		return ustoreerr.ErrBranchNotExists
	}
	return w.branchTo(key, newBranch, v)
}

// BranchFromVersion points newBranch directly at an explicit version.
func (w *Worker) BranchFromVersion(key string, version hash.Hash, newBranch string) error {
	return w.branchTo(key, newBranch, version)
}

func (w *Worker) branchTo(key, newBranch string, v hash.Hash) error {
	exists, err := w.index.ExistsBranch(key, newBranch)
	if err != nil {
		return err
	}
	if exists {
		return ustoreerr.ErrBranchExists
	}
	if err := w.appendLog(recovery.Record{Cmd: recovery.CmdUpdate, Key: key, Branch: newBranch, Ver: v}); err != nil {
		return err
	}
	return w.index.PutBranch(key, newBranch, v)
}

// Rename atomically renames oldBranch to newBranch.
func (w *Worker) Rename(key, oldBranch, newBranch string) error {
	exists, err := w.index.ExistsBranch(key, oldBranch)
	if err != nil {
		return err
	}
	if !exists {
		return ustoreerr.ErrBranchNotExists
	}
	taken, err := w.index.ExistsBranch(key, newBranch)
	if err != nil {
		return err
	}
	if taken {
		return ustoreerr.ErrBranchExists
	}
	if err := w.appendLog(recovery.Record{Cmd: recovery.CmdRename, Key: key, Branch: oldBranch, NewKey: newBranch}); err != nil {
		return err
	}
	return w.index.RenameBranch(key, oldBranch, newBranch)
}

// Delete removes the branch entry only (Open Question (b): no chunk or
// UCell garbage collection — they remain reachable through history).
func (w *Worker) Delete(key, branch string) error {
	exists, err := w.index.ExistsBranch(key, branch)
	if err != nil {
		return err
	}
	if !exists {
		return ustoreerr.ErrBranchNotExists
	}
	if err := w.appendLog(recovery.Record{Cmd: recovery.CmdRemove, Key: key, Branch: branch}); err != nil {
		return err
	}
	return w.index.RemoveBranch(key, branch)
}

// ListBranches lists every branch name of key.
func (w *Worker) ListBranches(key string) ([]string, error) { return w.index.ListBranches(key) }

// ListKeys lists every key known to the index.
func (w *Worker) ListKeys() ([]string, error) { return w.index.ListKeys() }

// GetBranchHead returns the head version of (key, branch).
func (w *Worker) GetBranchHead(key, branch string) (hash.Hash, bool, error) {
	return w.index.GetBranch(key, branch)
}

// GetLatestVersions returns every current tip version of key.
func (w *Worker) GetLatestVersions(key string) ([]hash.Hash, error) {
	return w.index.GetLatest(key)
}

// IsBranchHead reports whether v is the current head of (key, branch).
func (w *Worker) IsBranchHead(key, branch string, v hash.Hash) (bool, error) {
	return w.index.IsBranchHead(key, branch, v)
}

// IsLatest reports whether v is a current tip of key.
func (w *Worker) IsLatest(key string, v hash.Hash) (bool, error) {
	return w.index.IsLatest(key, v)
}

// Exists reports whether key has any branch or tip recorded.
func (w *Worker) Exists(key string) (bool, error) { return w.index.Exists(key) }
