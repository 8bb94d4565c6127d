package shard

import "errors"

// Sentinel errors returned by the address-space and sharding helpers.
var (
	// ErrNotPowerOfTwo is returned when NumPreshards is not a power of two.
	ErrNotPowerOfTwo = errors.New("shard: num_preshards must be a power of two")
	// ErrNoShards is returned when a partition is requested over zero shards.
	ErrNoShards = errors.New("shard: num_shards must be >= 1")
)
