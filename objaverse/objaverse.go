// Package objaverse loads multi-view renders of 3D objects for view
// conditioned training.
//
// Every object lives in its own directory under the root, holding one RGBA
// render (%03d.png) and one camera pose (%03d.npy) per view. A sample is a
// target view, 1..MaxCond conditioning views of the same object and the
// relative pose between the target and the first conditioning view.
package objaverse

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"k8s.io/klog/v2"

	"github.com/Noofbiz/viewsynth/datasets"
	"github.com/Noofbiz/viewsynth/imaging"
	"github.com/Noofbiz/viewsynth/pose"
	"github.com/Noofbiz/viewsynth/rng"
)

// Sample keys.
const (
	KeyTarget    = "image_target"
	KeyCond      = "image_cond"
	KeyCondCount = "cond_count"
	KeyT         = "T"
)

// DefaultFallbackObject is an object known to have every view rendered.
const DefaultFallbackObject = "692db5f2d3a04bb286cb977a7dba903e"

// TrainFraction of the manifest goes to the training split.
const TrainFraction = 0.99

// Options configures Data.
type Options struct {
	// RootDir holds one directory per object.
	RootDir string
	// PathsDir holds valid_paths.json, the JSON list of object ids.
	PathsDir   string
	Transforms []imaging.Transform
	// TotalView is the number of rendered views per object. Defaults to 12.
	TotalView int
	// MaxCond is the largest number of conditioning views. Defaults to 6.
	MaxCond int
	// ShuffleProb is the probability of shuffling the drawn views before
	// picking the target.
	ShuffleProb float64
	// Validation selects the validation split instead of the training split.
	Validation  bool
	ReturnPaths bool
	// Background replaces fully transparent pixels. Defaults to white.
	Background *color.NRGBA
	// FallbackObject is loaded, with zeroed images, when an object fails to
	// load. Defaults to DefaultFallbackObject.
	FallbackObject string
	Postprocess    datasets.Postprocess
	Rand           rng.Source
}

// DefaultOptions returns the options used for training.
func DefaultOptions() Options {
	return Options{
		RootDir:        ".objaverse/hf-objaverse-v1/views",
		PathsDir:       ".objaverse/hf-objaverse-v1/view",
		TotalView:      12,
		MaxCond:        6,
		ShuffleProb:    0.1,
		FallbackObject: DefaultFallbackObject,
	}
}

// Data is the multi-view object dataset.
type Data struct {
	opts     Options
	paths    []string
	pipeline imaging.Pipeline
}

var _ datasets.Dataset = (*Data)(nil)

// New reads the object manifest and keeps the requested split.
func New(opts Options) (*Data, error) {
	if opts.TotalView <= 0 {
		opts.TotalView = 12
	}
	if opts.MaxCond <= 0 {
		opts.MaxCond = 6
	}
	if opts.MaxCond >= opts.TotalView {
		return nil, errors.Errorf("max conditioning views %d needs more than %d total views", opts.MaxCond, opts.TotalView)
	}
	if opts.Background == nil {
		opts.Background = &imaging.White
	}
	if opts.FallbackObject == "" {
		opts.FallbackObject = DefaultFallbackObject
	}

	all, err := LoadManifest(filepath.Join(opts.PathsDir, "valid_paths.json"))
	if err != nil {
		return nil, err
	}
	train, val := Split(all)
	d := &Data{opts: opts, pipeline: imaging.Pipeline{Transforms: opts.Transforms}}
	if opts.Validation {
		d.paths = val
	} else {
		d.paths = train
	}
	klog.Infof("objaverse: %d objects (validation=%v)", len(d.paths), opts.Validation)
	return d, nil
}

// LoadManifest reads a JSON list of object ids.
func LoadManifest(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read object manifest %q", path)
	}
	if !gjson.ValidBytes(data) {
		return nil, errors.Errorf("object manifest %q is not valid JSON", path)
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, errors.Errorf("object manifest %q must be a JSON list", path)
	}
	var ids []string
	for _, v := range root.Array() {
		ids = append(ids, v.String())
	}
	return ids, nil
}

// Split divides ids into the first ⌊n·0.99⌋ for training and the rest for
// validation.
func Split(ids []string) (train, val []string) {
	cut := int(math.Floor(float64(len(ids)) / 100 * 99))
	return ids[:cut], ids[cut:]
}

// Len returns the number of objects in the split.
func (d *Data) Len() int { return len(d.paths) }

// Object returns the id of object i.
func (d *Data) Object(i int) string { return d.paths[i] }

// Views is one draw of the sampling policy.
type Views struct {
	CondCount int
	Target    int
	Cond      []int
}

// SampleViews draws cond_count uniformly in [1, maxCond] and cond_count+1
// distinct views out of totalView. With probability shuffleProb the drawn
// views are shuffled; the first becomes the target and the rest condition.
func SampleViews(src rng.Source, totalView, maxCond int, shuffleProb float64) (Views, error) {
	if maxCond < 1 || maxCond >= totalView {
		return Views{}, errors.Errorf("cannot draw up to %d conditioning views plus a target from %d views", maxCond, totalView)
	}
	src = rng.Or(src)
	condCount := rng.IntRange(src, 1, maxCond)
	indices := rng.Sample(src, totalView, condCount+1)
	if src.Float64() < shuffleProb {
		src.Shuffle(len(indices), func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })
	}
	return Views{CondCount: condCount, Target: indices[0], Cond: indices[1:]}, nil
}

type loaded struct {
	target *imaging.Float
	cond   []*imaging.Float
	t      pose.T
}

// Example draws views of object i. If any file of the object fails to load,
// the same views of the fallback object are used and both images are zeroed.
func (d *Data) Example(i int) (datasets.Sample, error) {
	if i < 0 || i >= len(d.paths) {
		return nil, errors.Errorf("index %d out of range [0, %d)", i, len(d.paths))
	}
	src := rng.Or(d.opts.Rand)
	views, err := SampleViews(src, d.opts.TotalView, d.opts.MaxCond, d.opts.ShuffleProb)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(d.opts.RootDir, d.paths[i])

	out, err := d.loadViews(dir, views, src)
	if err != nil {
		klog.Warningf("objaverse: object %s failed (%v), using fallback %s", d.paths[i], err, d.opts.FallbackObject)
		fallback := filepath.Join(d.opts.RootDir, d.opts.FallbackObject)
		out, err = d.loadViews(fallback, views, src)
		if err != nil {
			return nil, errors.WithMessagef(err, "fallback object %s", d.opts.FallbackObject)
		}
		out.target = out.target.ZerosLike()
		for j, c := range out.cond {
			out.cond[j] = c.ZerosLike()
		}
	}

	sample := datasets.Sample{
		KeyTarget:    out.target,
		KeyCond:      out.cond,
		KeyCondCount: views.CondCount,
		KeyT:         out.t,
	}
	if d.opts.ReturnPaths {
		sample[datasets.KeyPath] = dir
	}
	if d.opts.Postprocess != nil {
		return d.opts.Postprocess(sample)
	}
	return sample, nil
}

func (d *Data) loadViews(dir string, views Views, src rng.Source) (*loaded, error) {
	target, err := d.loadImage(dir, views.Target, src)
	if err != nil {
		return nil, err
	}
	cond := make([]*imaging.Float, len(views.Cond))
	for j, v := range views.Cond {
		if cond[j], err = d.loadImage(dir, v, src); err != nil {
			return nil, err
		}
	}
	targetRT, err := pose.LoadNPY(viewFile(dir, views.Target, "npy"))
	if err != nil {
		return nil, err
	}
	condRT, err := pose.LoadNPY(viewFile(dir, views.Cond[0], "npy"))
	if err != nil {
		return nil, err
	}
	return &loaded{target: target, cond: cond, t: pose.Relative(targetRT, condRT)}, nil
}

func (d *Data) loadImage(dir string, view int, src rng.Source) (*imaging.Float, error) {
	img, err := imaging.Load(viewFile(dir, view, "png"), d.opts.Background)
	if err != nil {
		return nil, err
	}
	return d.pipeline.Process(img, src), nil
}

func viewFile(dir string, view int, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("%03d.%s", view, ext))
}
