package datasets

import (
	"github.com/pkg/errors"

	"github.com/Noofbiz/viewsynth/imaging"
	"github.com/Noofbiz/viewsynth/rng"
)

// TransformOptions configures a TransformDataset. Zero values select the
// defaults.
type TransformOptions struct {
	// ExtraLabel is appended to every caption. Defaults to "sksbspic".
	ExtraLabel string
	// BaseSize is the short side every image is first resized to. Defaults
	// to 1024.
	BaseSize int
	// Size is the output size of the align/centerzoom/randzoom transforms.
	// Defaults to 768.
	Size int
	Rand rng.Source
}

type namedTransform struct {
	name string
	t    imaging.Transform
}

// TransformDataset applies a randomly chosen zoom to each image of the
// wrapped dataset and records which one in the caption.
type TransformDataset struct {
	base       Dataset
	extraLabel string
	baseSize   int
	transforms []namedTransform
	src        rng.Source
}

var _ Dataset = (*TransformDataset)(nil)

// NewTransformDataset wraps base.
func NewTransformDataset(base Dataset, opts TransformOptions) *TransformDataset {
	if opts.ExtraLabel == "" {
		opts.ExtraLabel = "sksbspic"
	}
	if opts.BaseSize <= 0 {
		opts.BaseSize = 1024
	}
	if opts.Size <= 0 {
		opts.Size = 768
	}
	return &TransformDataset{
		base:       base,
		extraLabel: opts.ExtraLabel,
		baseSize:   opts.BaseSize,
		transforms: []namedTransform{
			{"align", imaging.Resize{Size: opts.Size}},
			{"centerzoom", imaging.CenterCrop{Size: opts.Size}},
			{"randzoom", imaging.RandomCrop{Size: opts.Size}},
		},
		src: opts.Rand,
	}
}

func (d *TransformDataset) Len() int { return d.base.Len() }

// Example transforms the "image" of base sample i and appends
// " <label> <transform>" to its caption.
func (d *TransformDataset) Example(i int) (Sample, error) {
	sample, err := d.base.Example(i)
	if err != nil {
		return nil, err
	}
	img, ok := sample.Image(KeyImage)
	if !ok {
		return nil, errors.Errorf("sample %d has no image to transform", i)
	}
	src := rng.Or(d.src)
	chosen := rng.Choice(src, d.transforms)
	out := imaging.Resize{Size: d.baseSize}.Apply(img, src)
	out = chosen.t.Apply(out, src)
	sample[KeyImage] = imaging.ToFloat(out)
	sample[KeyText] = sample.Text(KeyText) + " " + d.extraLabel + " " + chosen.name
	return sample, nil
}
