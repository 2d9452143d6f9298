package objaverse

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"

	"github.com/Noofbiz/viewsynth/datasets"
	"github.com/Noofbiz/viewsynth/imaging"
	"github.com/Noofbiz/viewsynth/loader"
	"github.com/Noofbiz/viewsynth/pose"
)

// InputKeys are the batch tensors fed to the model; LabelKeys its target.
var (
	InputKeys = []string{KeyCond, KeyCondCount, KeyT}
	LabelKeys = []string{KeyTarget}
)

// MultiviewCollate packs samples into a batch:
//
//   - image_cond: every sample's conditioning views, concatenated (ΣN×H×W×3)
//   - image_target: B×H×W×3
//   - cond_count: B int32, to split image_cond back per sample
//   - T: B×4 float32
func MultiviewCollate(samples []datasets.Sample) (*loader.Batch, error) {
	if len(samples) == 0 {
		return nil, errors.New("cannot collate an empty batch")
	}
	var cond, targets []*imaging.Float
	counts := make([]int32, len(samples))
	ts := make([]float32, 0, 4*len(samples))
	for i, s := range samples {
		c, ok := s[KeyCond].([]*imaging.Float)
		if !ok {
			return nil, errors.Errorf("sample %d: missing %s", i, KeyCond)
		}
		target, ok := s.Image(KeyTarget)
		if !ok {
			return nil, errors.Errorf("sample %d: missing %s", i, KeyTarget)
		}
		n, ok := s[KeyCondCount].(int)
		if !ok {
			return nil, errors.Errorf("sample %d: missing %s", i, KeyCondCount)
		}
		t, ok := s[KeyT].(pose.T)
		if !ok {
			return nil, errors.Errorf("sample %d: missing %s", i, KeyT)
		}
		cond = append(cond, c...)
		targets = append(targets, target)
		counts[i] = int32(n)
		ts = append(ts, t[:]...)
	}

	condT, err := loader.StackImages(cond)
	if err != nil {
		return nil, errors.WithMessage(err, KeyCond)
	}
	targetT, err := loader.StackImages(targets)
	if err != nil {
		return nil, errors.WithMessage(err, KeyTarget)
	}
	return &loader.Batch{
		Size: len(samples),
		Tensors: map[string]*tensors.Tensor{
			KeyCond:      condT,
			KeyTarget:    targetT,
			KeyCondCount: tensors.FromFlatDataAndDimensions(counts, len(counts)),
			KeyT:         tensors.FromFlatDataAndDimensions(ts, len(samples), 4),
		},
		Text: map[string][]string{},
	}, nil
}
