// Package entropy derives the run's random generators from a single seed.
// Every subsystem gets its own stream so adding draws in one place never
// shifts the sequence seen by another. Nothing here touches the global
// math/rand state.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand"
)

// Stream identifies an independent sequence derived from the run seed.
type Stream int64

const (
	StreamSignals Stream = 100 // Initial signal phases
	StreamDemand  Stream = 200 // Demand field noise
	StreamTrips   Stream = 300 // Vehicle placement and rerouting
	StreamDrones  Stream = 400 // Drone placement and patrols
)

func (s Stream) String() string {
	switch s {
	case StreamSignals:
		return "signals"
	case StreamDemand:
		return "demand"
	case StreamTrips:
		return "trips"
	case StreamDrones:
		return "drones"
	}
	return "custom"
}

// ResolveSeed returns seed unchanged unless it is zero, in which case a
// fresh non-zero seed is drawn from crypto/rand. Log the result to make a
// run reproducible.
func ResolveSeed(seed int64) int64 {
	for seed == 0 {
		seed = cryptoInt63()
	}
	return seed
}

// New returns the generator for stream s of the run seeded with seed.
func New(seed int64, s Stream) *mrand.Rand {
	return mrand.New(mrand.NewSource(seed + int64(s)))
}

// DerivedSeed returns the raw seed of stream s, for libraries that take an
// int64 seed rather than a generator.
func DerivedSeed(seed int64, s Stream) int64 {
	return seed + int64(s)
}

func cryptoInt63() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// This should never happen but a fixed seed is still a valid seed.
		return 42
	}
	return int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
}
