// Package prng provides the single engine-scoped deterministic random
// source described in spec section 5 ("Global randomness: a single
// engine-scoped PRNG, explicitly passed to sequences, replaces any
// module-level state") and section 9 ("Seed derivation for sub-streams uses
// splittable PRNG or counter-based hashing to keep determinism under
// refactors"). No package-level rand state is ever touched; every Stream is
// threaded explicitly from the run seed down to the sequence that uses it.
package prng

import "math/rand"

// Stream is a named, reproducible sub-stream of the run seed.
type Stream struct {
	r *rand.Rand
}

// NewRoot derives the engine's root stream from the run seed (spec 6:
// "seed (default 42)").
func NewRoot(seed int64) *Stream {
	return &Stream{r: rand.New(rand.NewSource(seed))}
}

// splitmix64 mixes a value drawn from the parent with a label hash into a
// child seed, so the same parent state and label always yield the same
// child stream — the "counter-based hashing" sub-stream derivation the spec
// calls for. Sub draws that value from the parent, so the child also
// depends on how many draws the parent has already made.
func splitmix64(seed uint64) uint64 {
	seed += 0x9E3779B97F4A7C15
	z := seed
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

func hashLabel(label string) uint64 {
	var h uint64 = 14695981039346656037 // FNV offset basis
	for i := 0; i < len(label); i++ {
		h ^= uint64(label[i])
		h *= 1099511628211 // FNV prime
	}
	return h
}

// Sub derives a new, independent Stream for label (e.g. a sequence's name
// plus its instance index). It draws one value from s to fold into the
// derivation, so it advances s's own stream as a side effect; the child
// stream itself is independent of whatever else subsequently draws from s.
func (s *Stream) Sub(label string) *Stream {
	base := uint64(s.r.Int63())
	child := splitmix64(base ^ hashLabel(label))
	return &Stream{r: rand.New(rand.NewSource(int64(child)))}
}

func (s *Stream) Uint64() uint64    { return s.r.Uint64() }
func (s *Stream) Intn(n int) int    { return s.r.Intn(n) }
func (s *Stream) Int63n(n int64) int64 { return s.r.Int63n(n) }
func (s *Stream) Float64() float64  { return s.r.Float64() }

// Bool returns a uniformly random boolean.
func (s *Stream) Bool() bool { return s.r.Intn(2) == 0 }

// Range returns a uniformly random value in [lo, hi).
func (s *Stream) Range(lo, hi int64) int64 {
	if hi <= lo {
		return lo
	}
	return lo + s.Int63n(hi-lo)
}
