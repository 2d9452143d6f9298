package datasets

import (
	"github.com/pkg/errors"

	"github.com/Noofbiz/viewsynth/imaging"
	"github.com/Noofbiz/viewsynth/pose"
)

// This package provides the dataset adapters used to train the view
// synthesis model. Every adapter maps an index to a Sample and is otherwise
// read-only: manifests and caption files are read once at construction and
// images are read lazily on each Example call.
//
// Layout and intended usage:
//
// FolderData
//   - Images found recursively under a root (or listed in a caption file)
//   - Sample: image (H×W×3), txt, optionally path
//
// NfpDataset / VideoDataset
//   - Consecutive or offset frame pairs from extracted frame folders
//   - Sample: image, prev, txt
//
// TextOnly, IdRetrieval, TransformDataset
//   - Caption-only samples, retrieval-augmented samples, random zoom wrapper
//
// Multiview object renders live in the objaverse package and batching lives
// in the loader package.
type Dataset interface {
	Len() int
	Example(i int) (Sample, error)
}

// Common sample keys.
const (
	KeyImage = "image"
	KeyText  = "txt"
	KeyPrev  = "prev"
	KeyMatch = "match"
	KeyPath  = "path"
)

// Sample is one training example. Values are *imaging.Float, []*imaging.Float,
// string, int, or pose.T depending on the key and the dataset.
type Sample map[string]any

// Image returns the image stored under key.
func (s Sample) Image(key string) (*imaging.Float, bool) {
	img, ok := s[key].(*imaging.Float)
	return img, ok
}

// Text returns the string stored under key, or "" if absent.
func (s Sample) Text(key string) string {
	txt, _ := s[key].(string)
	return txt
}

// Pose returns the relative pose stored under key.
func (s Sample) Pose(key string) (pose.T, bool) {
	t, ok := s[key].(pose.T)
	return t, ok
}

// Postprocess is an optional hook applied to every sample a dataset returns.
type Postprocess func(Sample) (Sample, error)

func checkIndex(i, n int) error {
	if i < 0 || i >= n {
		return errors.Errorf("index %d out of range [0, %d)", i, n)
	}
	return nil
}

// Concat chains datasets end to end.
type Concat struct {
	parts     []Dataset
	cumCounts []int
}

// NewConcat builds a concatenation of parts. Empty parts are allowed.
func NewConcat(parts ...Dataset) *Concat {
	c := &Concat{parts: parts, cumCounts: make([]int, len(parts)+1)}
	for i, p := range parts {
		c.cumCounts[i+1] = c.cumCounts[i] + p.Len()
	}
	return c
}

// Len returns the total number of examples across all parts.
func (c *Concat) Len() int {
	return c.cumCounts[len(c.parts)]
}

// Parts returns the concatenated datasets.
func (c *Concat) Parts() []Dataset {
	return c.parts
}

// Example maps i to the owning part and forwards the call.
func (c *Concat) Example(i int) (Sample, error) {
	if err := checkIndex(i, c.Len()); err != nil {
		return nil, err
	}
	part, local := c.mapGlobalIndex(i)
	return c.parts[part].Example(local)
}

// mapGlobalIndex maps a global index to (part index, index within part)
func (c *Concat) mapGlobalIndex(globalIdx int) (part, localIdx int) {
	lo, hi := 0, len(c.parts)-1
	for lo < hi {
		mid := (lo + hi) / 2
		if globalIdx < c.cumCounts[mid+1] {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo, globalIdx - c.cumCounts[lo]
}

// Subset exposes a selection of another dataset's indices.
type Subset struct {
	base    Dataset
	indices []int
}

// NewSubset returns a view of base restricted to indices.
func NewSubset(base Dataset, indices []int) (*Subset, error) {
	n := base.Len()
	for _, idx := range indices {
		if err := checkIndex(idx, n); err != nil {
			return nil, errors.WithMessage(err, "subset")
		}
	}
	return &Subset{base: base, indices: indices}, nil
}

// Len returns the number of selected indices.
func (s *Subset) Len() int { return len(s.indices) }

// Example returns base.Example(indices[i]).
func (s *Subset) Example(i int) (Sample, error) {
	if err := checkIndex(i, len(s.indices)); err != nil {
		return nil, err
	}
	return s.base.Example(s.indices[i])
}
