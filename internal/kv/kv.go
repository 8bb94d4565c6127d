// Package kv defines the persistent key-value contract used by every
// store in this module (§6 "Persistent store contract") and two
// implementations: an in-memory map for tests and single-process demos,
// and a github.com/cometbft/cometbft-db backed store for disk durability.
//
// Namespaces are modelled as big-endian key prefixes (prefix + height or
// prefix + address) so range scans stay in ascending key order.
package kv

import (
	"bytes"
	"errors"
	"sort"
	"sync"

	dbm "github.com/cometbft/cometbft-db"
)

// ErrStorage wraps any underlying storage-engine failure (§7 StorageError).
var ErrStorage = errors.New("kv: storage error")

// DB is the minimal contract every store in this module depends on: get,
// put, delete, and a prefix range-scan, plus atomic batched commit.
type DB interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	// IteratePrefix calls fn for every key with the given prefix, in
	// ascending key order, until fn returns false or keys are exhausted.
	IteratePrefix(prefix []byte, fn func(key, value []byte) bool) error
	// NewBatch starts a write batch; nothing is visible until Commit.
	NewBatch() Batch
}

// Batch groups writes for atomic commit so a block's store mutations
// become visible all at once or not at all.
type Batch interface {
	Set(key, value []byte)
	Delete(key []byte)
	Commit() error
}

// ---- in-memory implementation ----

type memDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemDB returns an in-memory DB, used by tests and by a single-node
// demo validator.
func NewMemDB() DB {
	return &memDB{data: make(map[string][]byte)}
}

func (m *memDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *memDB) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[string(key)]
	return ok, nil
}

func (m *memDB) Set(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[string(key)] = cp
	return nil
}

func (m *memDB) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

func (m *memDB) IteratePrefix(prefix []byte, fn func(key, value []byte) bool) error {
	m.mu.RLock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	m.mu.RUnlock()
	sort.Strings(keys)
	for _, k := range keys {
		m.mu.RLock()
		v, ok := m.data[k]
		m.mu.RUnlock()
		if !ok {
			continue
		}
		if !fn([]byte(k), v) {
			return nil
		}
	}
	return nil
}

func (m *memDB) NewBatch() Batch {
	return &memBatch{db: m}
}

type memBatchOp struct {
	key    []byte
	value  []byte
	delete bool
}

type memBatch struct {
	db  *memDB
	ops []memBatchOp
}

func (b *memBatch) Set(key, value []byte) {
	b.ops = append(b.ops, memBatchOp{key: key, value: value})
}

func (b *memBatch) Delete(key []byte) {
	b.ops = append(b.ops, memBatchOp{key: key, delete: true})
}

func (b *memBatch) Commit() error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	for _, op := range b.ops {
		if op.delete {
			delete(b.db.data, string(op.key))
			continue
		}
		cp := make([]byte, len(op.value))
		copy(cp, op.value)
		b.db.data[string(op.key)] = cp
	}
	return nil
}

// ---- cometbft-db backed implementation ----

// cometDB wraps a dbm.DB (e.g. goleveldb, badgerdb, memdb) from
// github.com/cometbft/cometbft-db behind the DB contract.
type cometDB struct {
	db dbm.DB
}

// NewCometDB adapts a cometbft-db instance to the DB contract.
func NewCometDB(db dbm.DB) DB {
	return &cometDB{db: db}
}

func (c *cometDB) Get(key []byte) ([]byte, error) {
	v, err := c.db.Get(key)
	if err != nil {
		return nil, errors.Join(ErrStorage, err)
	}
	return v, nil
}

func (c *cometDB) Has(key []byte) (bool, error) {
	ok, err := c.db.Has(key)
	if err != nil {
		return false, errors.Join(ErrStorage, err)
	}
	return ok, nil
}

func (c *cometDB) Set(key, value []byte) error {
	if err := c.db.SetSync(key, value); err != nil {
		return errors.Join(ErrStorage, err)
	}
	return nil
}

func (c *cometDB) Delete(key []byte) error {
	if err := c.db.DeleteSync(key); err != nil {
		return errors.Join(ErrStorage, err)
	}
	return nil
}

func (c *cometDB) IteratePrefix(prefix []byte, fn func(key, value []byte) bool) error {
	it, err := c.db.Iterator(prefix, dbm.PrefixEndBytes(prefix))
	if err != nil {
		return errors.Join(ErrStorage, err)
	}
	defer it.Close()
	for ; it.Valid(); it.Next() {
		if !fn(it.Key(), it.Value()) {
			break
		}
	}
	return it.Error()
}

func (c *cometDB) NewBatch() Batch {
	return &cometBatch{batch: c.db.NewBatch()}
}

type cometBatch struct {
	batch dbm.Batch
}

func (b *cometBatch) Set(key, value []byte) { _ = b.batch.Set(key, value) }
func (b *cometBatch) Delete(key []byte)     { _ = b.batch.Delete(key) }
func (b *cometBatch) Commit() error {
	if err := b.batch.WriteSync(); err != nil {
		return errors.Join(ErrStorage, err)
	}
	return b.batch.Close()
}
