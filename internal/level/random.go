package level

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand"
)

// Labels for the independent random streams of a level.
const (
	streamQuota    = "quota"
	streamSampler  = "sampler"
	streamSurfaces = "surfaces"
)

// SeedFor derives a stable seed for one subsystem of one level.
func SeedFor(rootSeed int64, level int, label string) int64 {
	hasher := fnv.New64a()
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(rootSeed))
	binary.LittleEndian.PutUint64(buf[8:], uint64(level))
	hasher.Write(buf[:])
	hasher.Write([]byte{0})
	hasher.Write([]byte(label))
	sum := hasher.Sum64()
	if sum == 0 {
		sum = 1
	}
	return int64(sum)
}

func newLevelRNG(rootSeed int64, level int, label string) *rand.Rand {
	return rand.New(rand.NewSource(SeedFor(rootSeed, level, label)))
}
