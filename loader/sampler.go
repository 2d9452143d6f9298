package loader

import (
	"github.com/pkg/errors"

	"github.com/Noofbiz/viewsynth/rng"
)

// Sampler decides the order in which a Loader visits a dataset's indices.
type Sampler interface {
	// Indices returns the visiting order for the current epoch of a dataset
	// with n examples.
	Indices(n int) []int
	// SetEpoch selects the epoch, which seeds shuffling samplers.
	SetEpoch(epoch int)
}

// SequentialSampler visits 0..n-1 in order.
type SequentialSampler struct{}

func (SequentialSampler) Indices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func (SequentialSampler) SetEpoch(int) {}

// RandomSampler visits a fresh permutation each epoch, seeded by Seed+epoch.
type RandomSampler struct {
	Seed  uint64
	epoch int
}

func (s *RandomSampler) Indices(n int) []int {
	return permutation(s.Seed+uint64(s.epoch), n)
}

func (s *RandomSampler) SetEpoch(epoch int) { s.epoch = epoch }

func permutation(seed uint64, n int) []int {
	out := SequentialSampler{}.Indices(n)
	r := rng.New(seed)
	r.Shuffle(n, func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// DistributedSampler restricts loading to one shard of the dataset.
//
// Every rank sees the same number of indices: the index list is padded by
// wrapping around to a multiple of WorldSize, or truncated when DropLast is
// set. With Shuffle, all ranks share the permutation seeded by Seed+epoch.
// Rank r takes positions r, r+WorldSize, r+2·WorldSize, ...
type DistributedSampler struct {
	Rank      int
	WorldSize int
	Shuffle   bool
	Seed      uint64
	DropLast  bool
	epoch     int
}

// NewDistributedSampler returns a shuffling sampler for rank of worldSize.
func NewDistributedSampler(rank, worldSize int, seed uint64) (*DistributedSampler, error) {
	if worldSize <= 0 {
		return nil, errors.Errorf("world size must be positive, got %d", worldSize)
	}
	if rank < 0 || rank >= worldSize {
		return nil, errors.Errorf("invalid rank %d, rank should be in the interval [0, %d]", rank, worldSize-1)
	}
	return &DistributedSampler{Rank: rank, WorldSize: worldSize, Shuffle: true, Seed: seed}, nil
}

// NumSamples is the number of indices each rank receives for n examples.
func (s *DistributedSampler) NumSamples(n int) int {
	world := max(s.WorldSize, 1)
	if s.DropLast && n%world != 0 {
		return n / world
	}
	return (n + world - 1) / world
}

func (s *DistributedSampler) Indices(n int) []int {
	world := max(s.WorldSize, 1)
	var indices []int
	if s.Shuffle {
		indices = permutation(s.Seed+uint64(s.epoch), n)
	} else {
		indices = SequentialSampler{}.Indices(n)
	}
	total := s.NumSamples(n) * world
	if s.DropLast || n == 0 {
		indices = indices[:min(total, len(indices))]
	} else {
		for len(indices) < total {
			pad := min(total-len(indices), n)
			indices = append(indices, indices[:pad]...)
		}
	}
	out := make([]int, 0, s.NumSamples(n))
	for i := s.Rank; i < len(indices); i += world {
		out = append(out, indices[i])
	}
	return out
}

func (s *DistributedSampler) SetEpoch(epoch int) { s.epoch = epoch }
