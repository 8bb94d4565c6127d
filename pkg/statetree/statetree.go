// Package statetree implements §4.4's sharded state tree: one
// Jellyfish-Merkle-style sparse tree per shard, keyed by
// SubstateAddress with the substate's state_hash as the leaf value,
// plus a roll-up root tree that hashes the per-shard roots into the
// block's merkle_root.
//
// This is a simplified but functionally real sparse Merkle tree: rather
// than storing one node per bit of the 256-bit key space, a subtree
// with no populated leaves resolves immediately to a precomputed
// "placeholder" hash for its depth, so computing a root only costs
// work proportional to the number of populated leaves, not 2^256.
package statetree

import (
	"crypto/sha256"
	"sort"

	"github.com/holiman/uint256"
)

const (
	addressBits = 256
	domainLeaf  = "dan/statetree/leaf/v1"
	domainNode  = "dan/statetree/node/v1"
	domainEmpty = "dan/statetree/empty/v1"
)

// placeholders[L] is the root hash of an empty subtree with L levels
// remaining below it (L=0 is an empty leaf; L=addressBits is the empty
// whole-tree root), satisfying invariant (c): an empty state yields
// the sparse-merkle placeholder.
var placeholders = computePlaceholders()

func computePlaceholders() [addressBits + 1][32]byte {
	var p [addressBits + 1][32]byte
	p[0] = sha256.Sum256([]byte(domainEmpty))
	for level := 1; level <= addressBits; level++ {
		p[level] = hashInternal(p[level-1], p[level-1])
	}
	return p
}

func hashLeaf(addr *uint256.Int, stateHash [32]byte) [32]byte {
	buf := make([]byte, 0, len(domainLeaf)+32+32)
	buf = append(buf, domainLeaf...)
	b := addr.Bytes32()
	buf = append(buf, b[:]...)
	buf = append(buf, stateHash[:]...)
	return sha256.Sum256(buf)
}

func hashInternal(left, right [32]byte) [32]byte {
	buf := make([]byte, 0, len(domainNode)+64)
	buf = append(buf, domainNode...)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return sha256.Sum256(buf)
}

// NodeKey identifies one node in a shard's sparse tree: Level is the
// number of bits still unresolved below this node (0 = a leaf),
// Prefix is addr>>Level, the bits that are already fixed.
type NodeKey struct {
	Level  uint16
	Prefix uint256.Int
}

// NodeUpdate pairs a NodeKey with the hash it now resolves to.
type NodeUpdate struct {
	Key  NodeKey
	Hash [32]byte
}

// StateHashTreeDiff is the result of recomputing a shard's root after
// applying a set of leaf changes: the nodes that must be persisted,
// and the nodes from the prior materialization that are now stale and
// safe to prune once the diff commits.
type StateHashTreeDiff struct {
	NewNodes       []NodeUpdate
	StaleTreeNodes []NodeKey
}

// LeafChange stages a single-address mutation: StateHash == nil
// removes the leaf (its substate has no UP version any more).
type LeafChange struct {
	Address   uint256.Int
	StateHash *[32]byte
}

// Tree is one shard's sparse Merkle tree, keyed by SubstateAddress.
type Tree struct {
	leaves        map[uint256.Int][32]byte
	nodes         map[NodeKey][32]byte
	version       uint64
	pendingLeaves map[uint256.Int][32]byte
}

// New returns an empty shard state tree at version 0.
func New() *Tree {
	return &Tree{
		leaves: make(map[uint256.Int][32]byte),
		nodes:  make(map[NodeKey][32]byte),
	}
}

// Version returns the last-committed version number.
func (t *Tree) Version() uint64 { return t.version }

// Root returns the current committed root hash (the placeholder if no
// leaves have ever been committed).
func (t *Tree) Root() [32]byte {
	return t.rootOf(t.leaves)
}

func (t *Tree) rootOf(leaves map[uint256.Int][32]byte) [32]byte {
	entries := make([]addrHash, 0, len(leaves))
	for a, h := range leaves {
		entries = append(entries, addrHash{addr: a, hash: h})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].addr.Cmp(&entries[j].addr) < 0 })
	root, _ := buildRange(entries, addressBits, nil)
	return root
}

type addrHash struct {
	addr uint256.Int
	hash [32]byte
}

// buildRange computes the root hash over entries (sorted ascending by
// address) covering a subtree with level bits still unresolved,
// optionally recording every computed node into collected.
func buildRange(entries []addrHash, level int, collected map[NodeKey][32]byte) ([32]byte, NodeKey) {
	var prefix uint256.Int
	if len(entries) > 0 {
		prefix.Rsh(&entries[0].addr, uint(level))
	}
	key := NodeKey{Level: uint16(level), Prefix: prefix}

	if len(entries) == 0 {
		h := placeholders[level]
		return h, key
	}
	if level == 0 {
		h := hashLeaf(&entries[0].addr, entries[0].hash)
		if collected != nil {
			collected[key] = h
		}
		return h, key
	}

	bitPos := uint(level - 1)
	splitIdx := sort.Search(len(entries), func(i int) bool {
		var bit uint256.Int
		bit.Rsh(&entries[i].addr, bitPos)
		return bit.Uint64()&1 == 1
	})

	leftHash, _ := buildRange(entries[:splitIdx], level-1, collected)
	rightHash, _ := buildRange(entries[splitIdx:], level-1, collected)
	h := hashInternal(leftHash, rightHash)
	if collected != nil {
		collected[key] = h
	}
	return h, key
}

// StageDiff computes the root and StateHashTreeDiff that would result
// from applying changes on top of the currently committed leaf set,
// without mutating the tree. The caller commits the returned diff (via
// Commit) once the owning block is finalized.
func (t *Tree) StageDiff(changes []LeafChange) ([32]byte, StateHashTreeDiff) {
	newLeaves := make(map[uint256.Int][32]byte, len(t.leaves)+len(changes))
	for a, h := range t.leaves {
		newLeaves[a] = h
	}
	for _, c := range changes {
		if c.StateHash == nil {
			delete(newLeaves, c.Address)
		} else {
			newLeaves[c.Address] = *c.StateHash
		}
	}

	entries := make([]addrHash, 0, len(newLeaves))
	for a, h := range newLeaves {
		entries = append(entries, addrHash{addr: a, hash: h})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].addr.Cmp(&entries[j].addr) < 0 })

	collected := make(map[NodeKey][32]byte)
	root, _ := buildRange(entries, addressBits, collected)

	diff := StateHashTreeDiff{}
	for k, h := range collected {
		if old, ok := t.nodes[k]; !ok || old != h {
			diff.NewNodes = append(diff.NewNodes, NodeUpdate{Key: k, Hash: h})
			if ok {
				diff.StaleTreeNodes = append(diff.StaleTreeNodes, k)
			}
		}
	}
	t.pendingLeaves = newLeaves
	return root, diff
}

// Commit promotes a previously staged diff into the tree's committed
// state and advances its version counter.
func (t *Tree) Commit(diff StateHashTreeDiff) {
	if t.pendingLeaves != nil {
		t.leaves = t.pendingLeaves
		t.pendingLeaves = nil
	}
	for _, upd := range diff.NewNodes {
		t.nodes[upd.Key] = upd.Hash
	}
	for _, stale := range diff.StaleTreeNodes {
		delete(t.nodes, stale)
	}
	t.version++
}

// RootOf assembles the root tree over a shard group's per-shard roots
// (§4.4 step 4): missing shards (nil) contribute the leaf-level
// placeholder. Height is ceil(log2(len(shardRoots))).
func RootOf(shardRoots []*[32]byte) [32]byte {
	if len(shardRoots) == 0 {
		return placeholders[0]
	}
	leaves := make([][32]byte, len(shardRoots))
	for i, r := range shardRoots {
		if r == nil {
			leaves[i] = placeholders[0]
		} else {
			leaves[i] = *r
		}
	}
	return buildBinary(leaves)
}

// buildBinary folds leaves pairwise up to a single root, duplicating a
// dangling last leaf at each level (standard binary Merkle construction).
func buildBinary(level [][32]byte) [32]byte {
	if len(level) == 1 {
		return level[0]
	}
	next := make([][32]byte, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		if i+1 < len(level) {
			next = append(next, hashInternal(level[i], level[i+1]))
		} else {
			next = append(next, hashInternal(level[i], level[i]))
		}
	}
	return buildBinary(next)
}
