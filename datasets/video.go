package datasets

import (
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/Noofbiz/viewsynth/imaging"
	"github.com/Noofbiz/viewsynth/rng"
)

// videoRetries is how many times VideoDataset tries to load a sample.
const videoRetries = 10

// VideoOptions configures a VideoDataset.
type VideoOptions struct {
	// CaptionFile is a CSV table of clip name, caption.
	CaptionFile string
	Transforms  []imaging.Transform
	// Offset is the frame distance between the current frame and each
	// previous frame. Defaults to 8.
	Offset int
	// N is the number of previous frames. Defaults to 2.
	N    int
	Rand rng.Source
}

// VideoDataset samples a current frame and N earlier frames from video clips.
// A clip is a directory of extracted frames (*.jpg or *.png, sorted by name);
// the clip's caption is looked up by directory name.
type VideoDataset struct {
	root     string
	opts     VideoOptions
	clips    []string
	frames   map[string][]string
	captions *Captions
	pipeline imaging.Pipeline
}

var _ Dataset = (*VideoDataset)(nil)

// NewVideoDataset finds every clip directory under root.
func NewVideoDataset(root string, opts VideoOptions) (*VideoDataset, error) {
	if opts.Offset <= 0 {
		opts.Offset = 8
	}
	if opts.N <= 0 {
		opts.N = 2
	}
	caps, err := LoadCaptions(opts.CaptionFile)
	if err != nil {
		return nil, errors.WithMessagef(err, "video dataset %q", root)
	}
	files, err := findFilesMulti(root, []string{"jpg", "png"})
	if err != nil {
		return nil, err
	}
	d := &VideoDataset{
		root:     root,
		opts:     opts,
		frames:   make(map[string][]string),
		captions: caps,
		pipeline: imaging.Pipeline{Transforms: opts.Transforms},
	}
	for _, f := range files {
		dir := filepath.Dir(f)
		if _, ok := d.frames[dir]; !ok {
			d.clips = append(d.clips, dir)
		}
		d.frames[dir] = append(d.frames[dir], f)
	}
	sort.Strings(d.clips)
	for _, dir := range d.clips {
		sort.Strings(d.frames[dir])
	}
	return d, nil
}

// Len returns the number of clips.
func (d *VideoDataset) Len() int { return len(d.clips) }

// Example draws a random frame from clip i, retrying failed loads.
func (d *VideoDataset) Example(i int) (Sample, error) {
	if err := checkIndex(i, d.Len()); err != nil {
		return nil, err
	}
	var lastErr error
	for try := 0; try < videoRetries; try++ {
		sample, err := d.loadSample(i)
		if err == nil {
			return sample, nil
		}
		lastErr = err
		klog.Warningf("video clip %s: attempt %d failed: %v", d.clips[i], try+1, err)
	}
	return nil, errors.WithMessagef(lastErr, "video clip %s: giving up after %d attempts", d.clips[i], videoRetries)
}

func (d *VideoDataset) loadSample(i int) (Sample, error) {
	clip := d.clips[i]
	frames := d.frames[clip]
	name := filepath.Base(clip)
	caption, ok := d.captions.Get(name)
	if !ok {
		return nil, errors.Errorf("no caption for clip %q", name)
	}

	minFrame := 2*d.opts.Offset + 2
	maxFrame := len(frames) - 1
	if maxFrame < minFrame {
		return nil, errors.Errorf("clip %q has %d frames, need at least %d", name, len(frames), minFrame+1)
	}
	src := rng.Or(d.opts.Rand)
	current := rng.IntRange(src, minFrame, maxFrame)

	image, err := d.load(frames[current], src)
	if err != nil {
		return nil, err
	}
	prevs := make([]*imaging.Float, d.opts.N)
	for n := range prevs {
		idx := current - (n+1)*d.opts.Offset
		if idx < 0 {
			return nil, errors.Errorf("clip %q: previous frame %d out of range", name, idx)
		}
		if prevs[n], err = d.load(frames[idx], src); err != nil {
			return nil, err
		}
	}
	prev, err := imaging.ConcatChannels(prevs...)
	if err != nil {
		return nil, errors.WithMessagef(err, "clip %q", name)
	}
	return Sample{KeyImage: image, KeyPrev: prev, KeyText: caption}, nil
}

func (d *VideoDataset) load(path string, src rng.Source) (*imaging.Float, error) {
	img, err := imaging.Load(path, nil)
	if err != nil {
		return nil, err
	}
	return d.pipeline.Process(img, src), nil
}
