// Package store implements the persistent versioned substate store of
// §4.2: a keyed mapping (SubstateId, version) → Record with UP/DOWN
// lifecycle and an embedded lock table, backed by an internal/kv.DB.
//
// Keys are namespaced big-endian prefixes: "rec:" + ObjectKey(32) +
// version(4 BE) for individual records, "latest:" + ObjectKey(32) for
// the current UP version index.
package store

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/dan-network/dan-core/internal/kv"
	"github.com/dan-network/dan-core/internal/wire"
	"github.com/dan-network/dan-core/pkg/substate"
)

var (
	recordPrefix = []byte("rec:")
	latestPrefix = []byte("latest:")
)

func recordKey(key substate.ObjectKey, version uint32) []byte {
	buf := make([]byte, 0, len(recordPrefix)+32+4)
	buf = append(buf, recordPrefix...)
	buf = append(buf, key[:]...)
	buf = append(buf, substate.EncodeUint32(version)...)
	return buf
}

func latestKey(key substate.ObjectKey) []byte {
	buf := make([]byte, 0, len(latestPrefix)+32)
	buf = append(buf, latestPrefix...)
	buf = append(buf, key[:]...)
	return buf
}

// Store is the persistent versioned substate store. All mutating
// operations are serialized by mu: a single-writer discipline around
// each commit.
type Store struct {
	mu sync.Mutex
	db kv.DB
}

// New wraps db as a versioned substate store.
func New(db kv.DB) *Store {
	return &Store{db: db}
}

// PutUp inserts a new (id, version) row marked UP. Fails with
// ErrAlreadyExists if any row for (id, version) already exists.
func (s *Store) PutUp(rec *substate.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rec.Id.Key()
	rk := recordKey(key, rec.Version)
	existing, err := s.db.Get(rk)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAlreadyExists
	}

	rec.Status = substate.StatusUp
	enc, err := wire.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: encode record: %w", err)
	}

	batch := s.db.NewBatch()
	batch.Set(rk, enc)
	batch.Set(latestKey(key), substate.EncodeUint32(rec.Version))
	return batch.Commit()
}

// PutDown marks (id, version) DOWN. Fails with ErrNotUp unless the row
// is currently UP.
func (s *Store) PutDown(id substate.SubstateId, version uint32, byTx, byBlock, byJustify [32]byte, epoch uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := id.Key()
	rk := recordKey(key, version)
	raw, err := s.db.Get(rk)
	if err != nil {
		return err
	}
	if raw == nil {
		return ErrNotUp
	}
	var rec substate.Record
	if err := wire.Unmarshal(raw, &rec); err != nil {
		return fmt.Errorf("store: decode record: %w", err)
	}
	if rec.Status != substate.StatusUp {
		return ErrNotUp
	}

	rec.Status = substate.StatusDown
	rec.DestroyedByTransaction = &byTx
	rec.DestroyedBlock = &byBlock
	rec.DestroyedJustify = &byJustify
	rec.DestroyedEpoch = &epoch

	enc, err := wire.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("store: encode record: %w", err)
	}

	batch := s.db.NewBatch()
	batch.Set(rk, enc)
	batch.Delete(latestKey(key))
	return batch.Commit()
}

// Get returns the record at exactly (id, version).
func (s *Store) Get(id substate.SubstateId, version uint32) (*substate.Record, error) {
	raw, err := s.db.Get(recordKey(id.Key(), version))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	var rec substate.Record
	if err := wire.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("store: decode record: %w", err)
	}
	return &rec, nil
}

// GetLatest returns the highest-version UP record for id, failing with
// ErrNotFound if none exists.
func (s *Store) GetLatest(id substate.SubstateId) (*substate.Record, error) {
	key := id.Key()
	vraw, err := s.db.Get(latestKey(key))
	if err != nil {
		return nil, err
	}
	if vraw == nil {
		return nil, ErrNotFound
	}
	version := bigEndianUint32(vraw)
	return s.Get(id, version)
}

// Lock acquires a lock on (intent.Id, intent.VersionToLock) for txId,
// per the compatibility rules of §4.3: Read stacks, Write is exclusive,
// Output requires absence of any UP row. Locks are recorded on the
// targeted record (or, for Output on a version that doesn't yet exist,
// tracked on a placeholder record reserving that version).
func (s *Store) Lock(intent substate.LockIntent, txId [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := intent.Id.Key()
	rk := recordKey(key, intent.VersionToLock)
	raw, err := s.db.Get(rk)
	if err != nil {
		return err
	}

	var rec substate.Record
	exists := raw != nil
	if exists {
		if err := wire.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("store: decode record: %w", err)
		}
	} else {
		if intent.LockType != substate.LockOutput {
			return ErrLockConflict
		}
		rec = substate.Record{Id: intent.Id, Version: intent.VersionToLock}
	}

	if err := applyLock(&rec, intent.LockType, txId); err != nil {
		return err
	}

	enc, err := wire.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("store: encode record: %w", err)
	}
	return s.db.Set(rk, enc)
}

func applyLock(rec *substate.Record, lt substate.LockType, txId [32]byte) error {
	self := rec.LockedBy != nil && bytes.Equal(rec.LockedBy[:], txId[:])

	switch lt {
	case substate.LockRead:
		if rec.IsLockedW && !self {
			return ErrLockConflict
		}
		rec.ReadLocks++
	case substate.LockWrite:
		if (rec.IsLockedW || rec.ReadLocks > 0) && !self {
			return ErrLockConflict
		}
		rec.IsLockedW = true
		id := txId
		rec.LockedBy = &id
	case substate.LockOutput:
		if rec.Status == substate.StatusUp {
			return ErrLockConflict
		}
		if (rec.IsLockedW || rec.ReadLocks > 0) && !self {
			return ErrLockConflict
		}
		rec.IsLockedW = true
		id := txId
		rec.LockedBy = &id
	default:
		return fmt.Errorf("store: unknown lock type %v", lt)
	}
	return nil
}

// Unlock releases a previously-acquired lock on (id, version) held by
// txId. Unlocking a lock not held is an error.
func (s *Store) Unlock(id substate.SubstateId, version uint32, txId [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := id.Key()
	rk := recordKey(key, version)
	raw, err := s.db.Get(rk)
	if err != nil {
		return err
	}
	if raw == nil {
		return ErrUnlockNotHeld
	}
	var rec substate.Record
	if err := wire.Unmarshal(raw, &rec); err != nil {
		return fmt.Errorf("store: decode record: %w", err)
	}

	switch {
	case rec.ReadLocks > 0:
		rec.ReadLocks--
	case rec.IsLockedW && rec.LockedBy != nil && bytes.Equal(rec.LockedBy[:], txId[:]):
		rec.IsLockedW = false
		rec.LockedBy = nil
	default:
		return ErrUnlockNotHeld
	}

	enc, err := wire.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("store: encode record: %w", err)
	}
	return s.db.Set(rk, enc)
}

func bigEndianUint32(b []byte) uint32 {
	if len(b) != 4 {
		return 0
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
