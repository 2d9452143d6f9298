package datasets

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/Noofbiz/viewsynth/imaging"
	"github.com/Noofbiz/viewsynth/rng"
)

// FolderOptions configures a FolderData.
type FolderOptions struct {
	// CaptionFile is an optional .json or .jsonl caption table. When set, it
	// decides both the length and the order of the dataset.
	CaptionFile string
	// Transforms run before normalization to [-1, 1].
	Transforms []imaging.Transform
	// Ext lists the file extensions to search for. Defaults to jpg.
	Ext            []string
	DefaultCaption string
	ReturnPaths    bool
	Postprocess    Postprocess
	// Rand feeds random transforms. Nil uses rng.Global.
	Rand rng.Source
}

// FolderData is a dataset of images found under a root directory.
type FolderData struct {
	root     string
	opts     FolderOptions
	captions *Captions
	paths    []string
	pipeline imaging.Pipeline
}

var _ Dataset = (*FolderData)(nil)

// NewFolderData scans root for images. Without a caption file every *.ext
// file is used, each extension block sorted and blocks kept in Ext order.
func NewFolderData(root string, opts FolderOptions) (*FolderData, error) {
	d := &FolderData{
		root:     root,
		opts:     opts,
		pipeline: imaging.Pipeline{Transforms: opts.Transforms},
	}
	if opts.CaptionFile != "" {
		switch ext := strings.ToLower(filepath.Ext(opts.CaptionFile)); ext {
		case ".json", ".jsonl":
		default:
			return nil, errors.Errorf("folder dataset %q: unrecognised caption format %q", root, ext)
		}
		caps, err := LoadCaptions(opts.CaptionFile)
		if err != nil {
			return nil, errors.WithMessagef(err, "folder dataset %q", root)
		}
		d.captions = caps
	}
	paths, err := findFilesMulti(root, defaultExt(opts.Ext, "jpg"))
	if err != nil {
		return nil, err
	}
	d.paths = paths
	return d, nil
}

// Len returns the number of captions if a caption file was given, otherwise
// the number of image files found.
func (d *FolderData) Len() int {
	if d.captions != nil {
		return d.captions.Len()
	}
	return len(d.paths)
}

// Root returns the dataset's root directory.
func (d *FolderData) Root() string { return d.root }

// filename returns the image path and caption of example i.
func (d *FolderData) filename(i int) (string, string) {
	if d.captions != nil {
		key := d.captions.Key(i)
		caption, ok := d.captions.Get(key)
		if !ok {
			caption = d.opts.DefaultCaption
		}
		return filepath.Join(d.root, key), caption
	}
	return d.paths[i], d.opts.DefaultCaption
}

// Example loads image i. The sample holds "image" (H×W×3) and "txt", plus
// "path" when ReturnPaths is set.
func (d *FolderData) Example(i int) (Sample, error) {
	if err := checkIndex(i, d.Len()); err != nil {
		return nil, err
	}
	path, caption := d.filename(i)
	img, err := d.load(path)
	if err != nil {
		return nil, err
	}
	sample := Sample{KeyImage: img, KeyText: caption}
	if d.opts.ReturnPaths {
		sample[KeyPath] = path
	}
	if d.opts.Postprocess != nil {
		return d.opts.Postprocess(sample)
	}
	return sample, nil
}

func (d *FolderData) load(path string) (*imaging.Float, error) {
	img, err := imaging.Load(path, nil)
	if err != nil {
		return nil, err
	}
	return d.pipeline.Process(img, d.opts.Rand), nil
}

// FolderSpec names a folder and how many times to repeat it.
type FolderSpec struct {
	Path    string
	Repeats int
}

// Folders turns plain paths into FolderSpecs with no repetition.
func Folders(paths ...string) []FolderSpec {
	specs := make([]FolderSpec, len(paths))
	for i, p := range paths {
		specs[i] = FolderSpec{Path: p, Repeats: 1}
	}
	return specs
}

// MakeMultiFolderData concatenates one FolderData per folder. Each folder is
// included Repeats times. captionFiles, if given, pairs one caption file with
// each folder and cannot be combined with repeats.
func MakeMultiFolderData(folders []FolderSpec, captionFiles []string, opts FolderOptions) (*Concat, error) {
	var paths []string
	repeated := false
	for _, f := range folders {
		if f.Repeats < 0 {
			return nil, errors.Errorf("folder %q: negative repeat count %d", f.Path, f.Repeats)
		}
		if f.Repeats != 1 {
			repeated = true
		}
		for r := 0; r < f.Repeats; r++ {
			paths = append(paths, f.Path)
		}
	}
	withCaptions := len(captionFiles) > 0
	if withCaptions {
		if repeated {
			return nil, errors.New("caption files are not supported together with folder repeats")
		}
		if len(captionFiles) != len(paths) {
			return nil, errors.Errorf("got %d caption files for %d folders", len(captionFiles), len(paths))
		}
	}

	// Repeated folders share a single scan.
	loaded := make(map[string]*FolderData)
	parts := make([]Dataset, 0, len(paths))
	for i, p := range paths {
		o := opts
		if withCaptions {
			o.CaptionFile = captionFiles[i]
		} else if d, ok := loaded[p]; ok {
			parts = append(parts, d)
			continue
		}
		d, err := NewFolderData(p, o)
		if err != nil {
			return nil, err
		}
		loaded[p] = d
		parts = append(parts, d)
	}
	return NewConcat(parts...), nil
}

// MakeTransformMultiFolderData wraps MakeMultiFolderData in a
// TransformDataset with default settings.
func MakeTransformMultiFolderData(folders []FolderSpec, captionFiles []string, opts FolderOptions) (*TransformDataset, error) {
	ds, err := MakeMultiFolderData(folders, captionFiles, opts)
	if err != nil {
		return nil, err
	}
	return NewTransformDataset(ds, TransformOptions{Rand: opts.Rand}), nil
}
