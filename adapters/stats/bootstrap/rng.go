package bootstrap

import (
	"hash/fnv"
	"math/rand"
)

// SeedAdapter implements ports.RNGPort with FNV-mixed deterministic seeds.
type SeedAdapter struct{}

// NewSeedAdapter creates the default RNG adapter.
func NewSeedAdapter() *SeedAdapter {
	return &SeedAdapter{}
}

// SeededStream creates a generator whose seed mixes the operation name into
// the base seed, so distinct operations never share a stream.
func (a *SeedAdapter) SeededStream(name string, seed int64) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(name))
	return rand.New(rand.NewSource(seed ^ int64(h.Sum64())))
}

// ReplicateStream derives the replicate's seed from the base seed and the
// replicate index alone, independent of scheduling order.
func (a *SeedAdapter) ReplicateStream(baseSeed int64, replicate int) *rand.Rand {
	h := fnv.New64a()
	var buf [8]byte
	v := uint64(replicate)
	for i := range buf {
		buf[i] = byte(v >> (8 * i))
	}
	h.Write(buf[:])
	return rand.New(rand.NewSource(baseSeed ^ int64(h.Sum64())))
}
