// Package rng holds the random source shared by the datasets and helpers for
// the few sampling operations they need (inclusive ranges, sampling without
// replacement, uniform choice).
package rng

import "math/rand/v2"

// Source is the subset of *rand.Rand used by the datasets.
//
// The zero configuration (Global) uses the math/rand/v2 top-level functions,
// which are safe for concurrent use by parallel loaders. A *rand.Rand created
// with New is not, and is meant for tests and single-producer pipelines.
type Source interface {
	IntN(n int) int
	Float64() float64
	Shuffle(n int, swap func(i, j int))
}

type global struct{}

func (global) IntN(n int) int                     { return rand.IntN(n) }
func (global) Float64() float64                   { return rand.Float64() }
func (global) Shuffle(n int, swap func(i, j int)) { rand.Shuffle(n, swap) }

// Global draws from the process-wide math/rand/v2 source.
var Global Source = global{}

// Or returns src, or Global if src is nil.
func Or(src Source) Source {
	if src == nil {
		return Global
	}
	return src
}

// New returns a deterministic generator seeded with seed.
func New(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// IntRange returns a uniform integer in the closed range [lo, hi].
func IntRange(src Source, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + src.IntN(hi-lo+1)
}

// Sample returns k distinct integers drawn uniformly from [0, n), in the
// order they were drawn. It panics if k > n, like rand.Perm does for n < 0.
func Sample(src Source, n, k int) []int {
	if k > n || k < 0 {
		panic("rng: sample larger than population")
	}
	pool := make([]int, n)
	for i := range pool {
		pool[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + src.IntN(n-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	out := make([]int, k)
	copy(out, pool[:k])
	return out
}

// Choice returns a uniformly chosen element of xs. xs must not be empty.
func Choice[T any](src Source, xs []T) T {
	return xs[src.IntN(len(xs))]
}
