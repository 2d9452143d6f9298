package loader

import (
	"sort"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"

	"github.com/Noofbiz/viewsynth/datasets"
	"github.com/Noofbiz/viewsynth/imaging"
	"github.com/Noofbiz/viewsynth/pose"
)

// Batch is a collated group of samples. Numeric values become tensors whose
// first axis is the batch (or, for stacked conditioning images, the sum of
// the per-sample counts). String values are kept per key in Text.
type Batch struct {
	Size    int
	Tensors map[string]*tensors.Tensor
	Text    map[string][]string
}

// Inputs returns the tensors for keys, in order.
func (b *Batch) Inputs(keys ...string) ([]*tensors.Tensor, error) {
	out := make([]*tensors.Tensor, len(keys))
	for i, k := range keys {
		t, ok := b.Tensors[k]
		if !ok {
			return nil, errors.Errorf("batch has no tensor %q", k)
		}
		out[i] = t
	}
	return out, nil
}

// CollateFn merges samples into a Batch.
type CollateFn func(samples []datasets.Sample) (*Batch, error)

// DefaultCollate stacks every key found in the first sample:
//
//   - *imaging.Float: B×H×W×C float32
//   - []*imaging.Float: concatenated along the first axis, (ΣN)×H×W×C
//   - int: B int32
//   - float32, float64: B float32
//   - pose.T: B×4 float32
//   - string: Batch.Text
//
// All samples must carry the same keys with the same value types.
func DefaultCollate(samples []datasets.Sample) (*Batch, error) {
	if len(samples) == 0 {
		return nil, errors.New("cannot collate an empty batch")
	}
	b := &Batch{
		Size:    len(samples),
		Tensors: make(map[string]*tensors.Tensor),
		Text:    make(map[string][]string),
	}
	keys := make([]string, 0, len(samples[0]))
	for k := range samples[0] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := collateKey(b, samples, k); err != nil {
			return nil, errors.WithMessagef(err, "collating %q", k)
		}
	}
	return b, nil
}

func collateKey(b *Batch, samples []datasets.Sample, key string) error {
	switch samples[0][key].(type) {
	case *imaging.Float:
		imgs, err := column[*imaging.Float](samples, key)
		if err != nil {
			return err
		}
		t, err := StackImages(imgs)
		if err != nil {
			return err
		}
		b.Tensors[key] = t

	case []*imaging.Float:
		groups, err := column[[]*imaging.Float](samples, key)
		if err != nil {
			return err
		}
		var imgs []*imaging.Float
		for _, g := range groups {
			imgs = append(imgs, g...)
		}
		t, err := StackImages(imgs)
		if err != nil {
			return err
		}
		b.Tensors[key] = t

	case int:
		vals, err := column[int](samples, key)
		if err != nil {
			return err
		}
		flat := make([]int32, len(vals))
		for i, v := range vals {
			flat[i] = int32(v)
		}
		b.Tensors[key] = tensors.FromFlatDataAndDimensions(flat, len(flat))

	case float32:
		vals, err := column[float32](samples, key)
		if err != nil {
			return err
		}
		b.Tensors[key] = tensors.FromFlatDataAndDimensions(vals, len(vals))

	case float64:
		vals, err := column[float64](samples, key)
		if err != nil {
			return err
		}
		flat := make([]float32, len(vals))
		for i, v := range vals {
			flat[i] = float32(v)
		}
		b.Tensors[key] = tensors.FromFlatDataAndDimensions(flat, len(flat))

	case pose.T:
		vals, err := column[pose.T](samples, key)
		if err != nil {
			return err
		}
		flat := make([]float32, 0, 4*len(vals))
		for _, v := range vals {
			flat = append(flat, v[:]...)
		}
		b.Tensors[key] = tensors.FromFlatDataAndDimensions(flat, len(vals), 4)

	case string:
		vals, err := column[string](samples, key)
		if err != nil {
			return err
		}
		b.Text[key] = vals

	default:
		return errors.Errorf("unsupported value type %T", samples[0][key])
	}
	return nil
}

// column extracts samples[i][key] as T for every sample.
func column[T any](samples []datasets.Sample, key string) ([]T, error) {
	out := make([]T, len(samples))
	for i, s := range samples {
		v, ok := s[key].(T)
		if !ok {
			return nil, errors.Errorf("sample %d: expected %T, got %T", i, out[0], s[key])
		}
		out[i] = v
	}
	return out, nil
}

// ImageBatchFlat stores a stack of same-shaped images in one contiguous
// buffer, ready to become a tensor.
type ImageBatchFlat struct {
	Data    []float32
	N       int
	H, W, C int
}

// MakeImageBatchFlat copies imgs into a contiguous N×H×W×C buffer.
func MakeImageBatchFlat(imgs []*imaging.Float) (*ImageBatchFlat, error) {
	if len(imgs) == 0 {
		return nil, errors.New("no images to stack")
	}
	first := imgs[0]
	size := first.H * first.W * first.C
	flat := &ImageBatchFlat{
		Data: make([]float32, len(imgs)*size),
		N:    len(imgs),
		H:    first.H,
		W:    first.W,
		C:    first.C,
	}
	for i, img := range imgs {
		if !img.SameShape(first) {
			return nil, errors.Errorf("inconsistent image shape at %d: expected %v, got %v", i, first.Shape(), img.Shape())
		}
		copy(flat.Data[i*size:], img.Pix)
	}
	return flat, nil
}

// ToGomlxTensor converts the buffer to a float32 tensor of shape N×H×W×C.
func (b *ImageBatchFlat) ToGomlxTensor() *tensors.Tensor {
	return tensors.FromFlatDataAndDimensions(b.Data, b.N, b.H, b.W, b.C)
}

// StackImages stacks imgs into an N×H×W×C tensor.
func StackImages(imgs []*imaging.Float) (*tensors.Tensor, error) {
	flat, err := MakeImageBatchFlat(imgs)
	if err != nil {
		return nil, err
	}
	return flat.ToGomlxTensor(), nil
}
