package datasets

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/Noofbiz/viewsynth/imaging"
	"github.com/Noofbiz/viewsynth/rng"
)

// NfpCaption is the caption MakeNfpData gives every frame pair.
const NfpCaption = "A view from a train window"

// NfpDataset pairs each frame of a sequence with the frame before it. Frames
// are the sorted *.ext files under the root; transforms must be
// deterministic for the pair to stay aligned.
type NfpDataset struct {
	root           string
	paths          []string
	defaultCaption string
	pipeline       imaging.Pipeline
}

var _ Dataset = (*NfpDataset)(nil)

// NewNfpDataset scans root for frames with the given extension (default jpg).
func NewNfpDataset(root string, transforms []imaging.Transform, ext, defaultCaption string) (*NfpDataset, error) {
	if ext == "" {
		ext = "jpg"
	}
	paths, err := findFiles(root, ext)
	if err != nil {
		return nil, err
	}
	return &NfpDataset{
		root:           root,
		paths:          paths,
		defaultCaption: defaultCaption,
		pipeline:       imaging.Pipeline{Transforms: transforms},
	}, nil
}

// Len returns the number of consecutive pairs.
func (d *NfpDataset) Len() int {
	if len(d.paths) == 0 {
		return 0
	}
	return len(d.paths) - 1
}

// Example returns {"image": frame i+1, "prev": frame i, "txt": caption}.
func (d *NfpDataset) Example(i int) (Sample, error) {
	if err := checkIndex(i, d.Len()); err != nil {
		return nil, err
	}
	prev, err := d.load(d.paths[i])
	if err != nil {
		return nil, err
	}
	curr, err := d.load(d.paths[i+1])
	if err != nil {
		return nil, err
	}
	return Sample{KeyImage: curr, KeyPrev: prev, KeyText: d.defaultCaption}, nil
}

func (d *NfpDataset) load(path string) (*imaging.Float, error) {
	img, err := imaging.Load(path, nil)
	if err != nil {
		return nil, err
	}
	// Only deterministic transforms are expected here.
	return d.pipeline.Process(img, rng.Global), nil
}

// MakeNfpData builds one NfpDataset per subdirectory of base, resized and
// center-cropped to 512, and concatenates them.
func MakeNfpData(base string) (*Concat, error) {
	dirs, err := subdirs(base)
	if err != nil {
		return nil, err
	}
	klog.Infof("Found %d folders under %s", len(dirs), base)
	parts := make([]Dataset, 0, len(dirs))
	for _, dir := range dirs {
		tforms := []imaging.Transform{imaging.Resize{Size: 512}, imaging.CenterCrop{Size: 512}}
		d, err := NewNfpDataset(dir, tforms, "jpg", NfpCaption)
		if err != nil {
			return nil, errors.WithMessagef(err, "frame folder %q", dir)
		}
		parts = append(parts, d)
	}
	return NewConcat(parts...), nil
}
