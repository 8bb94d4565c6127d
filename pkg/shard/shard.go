// Package shard implements the 256-bit substate address space and the
// pre-shard partitioning arithmetic: mapping an address to its owning
// preshard, and partitioning the address space into a given number of
// contiguous shard ranges.
package shard

import (
	"math/bits"

	"github.com/holiman/uint256"
)

// Address is a 256-bit content address over (SubstateId, version), used
// both as the sharding key and the state-tree key.
type Address = uint256.Int

// maxAddr is the inclusive upper bound of the address space, 2^256 - 1.
func maxAddr() *uint256.Int {
	max := new(uint256.Int)
	return max.Not(max) // 0 negated is all-ones
}

// Range is a contiguous, inclusive [Start, End] slice of the address
// space owned by one preshard or one committee's shard group.
type Range struct {
	Start Address
	End   Address
}

// Contains reports whether addr falls within [r.Start, r.End].
func (r Range) Contains(addr *Address) bool {
	return addr.Cmp(&r.Start) >= 0 && addr.Cmp(&r.End) <= 0
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// log2 returns floor(log2(n)) for a positive power-of-two n.
func log2(n int) uint {
	return uint(bits.Len(uint(n)) - 1)
}

// ShardOf returns the preshard index owning addr, given numPreshards
// (a power of two): the top log2(numPreshards) bits of addr.
func ShardOf(addr *Address, numPreshards int) (int, error) {
	if !IsPowerOfTwo(numPreshards) {
		return 0, ErrNotPowerOfTwo
	}
	bitsToShift := uint(256) - log2(numPreshards)
	shifted := new(uint256.Int).Rsh(addr, bitsToShift)
	return int(shifted.Uint64()), nil
}

// Partition splits the full address space [0, 2^256) into numShards
// contiguous, non-overlapping ranges that together cover the whole
// space exactly.
//
// When numShards is a power of two the ranges are equal-sized windows
// (the last range absorbs the remainder, if any, from integer
// division). When it is not, the first 2*(numShards mod prevPow2)
// shards get half of the prevPow2 window (the next-power-of-two window
// size) and the rest get the full prevPow2 window, which keeps every range a whole number of "natural"
// shard-of-power-of-two units while still exhausting the space without
// overlap.
func Partition(numShards int) ([]Range, error) {
	if numShards < 1 {
		return nil, ErrNoShards
	}
	if numShards == 1 {
		return []Range{{Start: *new(uint256.Int), End: *maxAddr()}}, nil
	}

	if IsPowerOfTwo(numShards) {
		return partitionPowerOfTwo(numShards), nil
	}
	return partitionNonPowerOfTwo(numShards), nil
}

func partitionPowerOfTwo(numShards int) []Range {
	windowSize := new(uint256.Int).Div(addSpaceSize(), uint256.NewInt(uint64(numShards)))
	ranges := make([]Range, numShards)
	cursor := new(uint256.Int)
	for i := 0; i < numShards; i++ {
		start := *cursor
		var end uint256.Int
		if i == numShards-1 {
			end = *maxAddr()
		} else {
			end.Add(cursor, windowSize)
			end.SubUint64(&end, 1)
		}
		ranges[i] = Range{Start: start, End: end}
		cursor = new(uint256.Int).Add(&end, uint256.NewInt(1))
	}
	return ranges
}

// partitionNonPowerOfTwo handles a shard count that isn't a power of
// two by mixing two window sizes: prevPow2 is the largest power of two
// below numShards. The first 2*(numShards-prevPow2) shards get a
// halved window (so two of them occupy one "natural" unit), and the
// rest get the full prevPow2 window, still covering [0, 2^256) exactly.
func partitionNonPowerOfTwo(numShards int) []Range {
	prevPow2 := 1 << log2(numShards)
	remainder := numShards - prevPow2

	naturalWindow := new(uint256.Int).Div(addSpaceSize(), uint256.NewInt(uint64(prevPow2)))
	halfWindow := new(uint256.Int).Rsh(naturalWindow, 1)

	halvedCount := 2 * remainder

	ranges := make([]Range, numShards)
	cursor := new(uint256.Int)
	for i := 0; i < numShards; i++ {
		var size *uint256.Int
		if i < halvedCount {
			size = halfWindow
		} else {
			size = naturalWindow
		}
		start := *cursor
		var end uint256.Int
		if i == numShards-1 {
			end = *maxAddr()
		} else {
			end.Add(cursor, size)
			end.SubUint64(&end, 1)
		}
		ranges[i] = Range{Start: start, End: end}
		cursor = new(uint256.Int).Add(&end, uint256.NewInt(1))
	}
	return ranges
}

func addSpaceSize() *uint256.Int {
	// 2^256 doesn't fit in a uint256.Int, so compute windows from
	// maxAddr()+1 conceptually by working with maxAddr() and rounding.
	// Division of (2^256 - 1) by a power of two and adding back the
	// truncated remainder on the last shard keeps coverage exact.
	return maxAddr()
}
