package headindex

import (
	"encoding/binary"

	bolt "go.etcd.io/bbolt"

	"github.com/ustoredb/ustore/hash"
	"github.com/ustoredb/ustore/ustoreerr"
)

var (
	branchBucket = []byte("branches") // (key_len_prefix||key||branch) -> version
	latestBucket = []byte("latest")   // (key_len_prefix||key||version) -> 1
)

// BoltIndex is an Index backed by an embedded go.etcd.io/bbolt database —
// the "embedded sorted KV store" alternative of spec §4.8, keyed by
// key_len_prefix||key||branch per the spec's exact scheme.
type BoltIndex struct {
	db *bolt.DB
}

// OpenBoltIndex opens (creating if absent) the bbolt file at path.
func OpenBoltIndex(path string) (*BoltIndex, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, ustoreerr.Wrap(ustoreerr.FailedOpenFile, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(branchBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(latestBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, ustoreerr.Wrap(ustoreerr.WriteFailed, err)
	}
	return &BoltIndex{db: db}, nil
}

// Close releases the underlying database file.
func (b *BoltIndex) Close() error { return b.db.Close() }

// branchKey encodes key_len_prefix||key||branch, per spec §4.8.
func branchKey(key, branch string) []byte {
	out := make([]byte, 4+len(key)+len(branch))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(key)))
	copy(out[4:4+len(key)], key)
	copy(out[4+len(key):], branch)
	return out
}

// branchPrefix is the prefix shared by every branch entry of key, used to
// scan all of a key's branches via bbolt's ordered cursor.
func branchPrefix(key string) []byte {
	out := make([]byte, 4+len(key))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(key)))
	copy(out[4:], key)
	return out
}

func latestKey(key string, v hash.Hash) []byte {
	out := make([]byte, 4+len(key)+hash.ByteLen)
	binary.BigEndian.PutUint32(out[0:4], uint32(len(key)))
	copy(out[4:4+len(key)], key)
	copy(out[4+len(key):], v[:])
	return out
}

func latestPrefix(key string) []byte {
	return branchPrefix(key)
}

func (b *BoltIndex) GetBranch(key, branch string) (hash.Hash, bool, error) {
	var v hash.Hash
	var ok bool
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(branchBucket)
		raw := bucket.Get(branchKey(key, branch))
		if raw == nil {
			return nil
		}
		ok = true
		copy(v[:], raw)
		return nil
	})
	return v, ok, err
}

func (b *BoltIndex) PutBranch(key, branch string, v hash.Hash) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(branchBucket).Put(branchKey(key, branch), v[:])
	})
}

func (b *BoltIndex) RemoveBranch(key, branch string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(branchBucket)
		k := branchKey(key, branch)
		if bucket.Get(k) == nil {
			return ustoreerr.ErrBranchNotExists
		}
		return bucket.Delete(k)
	})
}

func (b *BoltIndex) RenameBranch(key, oldBranch, newBranch string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(branchBucket)
		oldKey := branchKey(key, oldBranch)
		v := bucket.Get(oldKey)
		if v == nil {
			return ustoreerr.ErrBranchNotExists
		}
		newKey := branchKey(key, newBranch)
		if bucket.Get(newKey) != nil {
			return ustoreerr.ErrBranchExists
		}
		vCopy := append([]byte(nil), v...)
		if err := bucket.Delete(oldKey); err != nil {
			return err
		}
		return bucket.Put(newKey, vCopy)
	})
}

func (b *BoltIndex) Exists(key string) (bool, error) {
	branches, err := b.ListBranches(key)
	if err != nil {
		return false, err
	}
	if len(branches) > 0 {
		return true, nil
	}
	latest, err := b.GetLatest(key)
	if err != nil {
		return false, err
	}
	return len(latest) > 0, nil
}

func (b *BoltIndex) ExistsBranch(key, branch string) (bool, error) {
	_, ok, err := b.GetBranch(key, branch)
	return ok, err
}

func (b *BoltIndex) ListBranches(key string) ([]string, error) {
	prefix := branchPrefix(key)
	var out []string
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(branchBucket).Cursor()
		for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
			out = append(out, string(k[len(prefix):]))
		}
		return nil
	})
	return out, err
}

func (b *BoltIndex) ListKeys() ([]string, error) {
	seen := make(map[string]bool)
	err := b.db.View(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{branchBucket, latestBucket} {
			c := tx.Bucket(name).Cursor()
			for k, _ := c.First(); k != nil; k, _ = c.Next() {
				if len(k) < 4 {
					continue
				}
				kl := binary.BigEndian.Uint32(k[0:4])
				if len(k) < int(4+kl) {
					continue
				}
				seen[string(k[4:4+kl])] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sortedCopy(seen), nil
}

func (b *BoltIndex) GetLatest(key string) ([]hash.Hash, error) {
	prefix := latestPrefix(key)
	var out []hash.Hash
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(latestBucket).Cursor()
		for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
			var h hash.Hash
			copy(h[:], k[len(prefix):])
			out = append(out, h)
		}
		return nil
	})
	return out, err
}

func (b *BoltIndex) PutLatest(key string, pre1, pre2 hash.Hash, v hash.Hash) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(latestBucket)
		if pre1 != hash.Null {
			if err := bucket.Delete(latestKey(key, pre1)); err != nil {
				return err
			}
		}
		if pre2 != hash.Null {
			if err := bucket.Delete(latestKey(key, pre2)); err != nil {
				return err
			}
		}
		return bucket.Put(latestKey(key, v), []byte{1})
	})
}

func (b *BoltIndex) IsLatest(key string, v hash.Hash) (bool, error) {
	var ok bool
	err := b.db.View(func(tx *bolt.Tx) error {
		ok = tx.Bucket(latestBucket).Get(latestKey(key, v)) != nil
		return nil
	})
	return ok, err
}

func (b *BoltIndex) IsBranchHead(key, branch string, v hash.Hash) (bool, error) {
	head, ok, err := b.GetBranch(key, branch)
	if err != nil || !ok {
		return false, err
	}
	return head == v, nil
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i, p := range prefix {
		if b[i] != p {
			return false
		}
	}
	return true
}
