package config

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/Noofbiz/viewsynth/datasets"
	"github.com/Noofbiz/viewsynth/imaging"
	"github.com/Noofbiz/viewsynth/loader"
	"github.com/Noofbiz/viewsynth/objaverse"
)

// Dataset kinds understood by BuildDataset.
const (
	KindFolder               = "folder"
	KindMultiFolder          = "multifolder"
	KindTransformMultiFolder = "transform_multifolder"
	KindNfp                  = "nfp"
	KindNfpFolders           = "nfp_folders"
	KindVideo                = "video"
	KindTextOnly             = "textonly"
	KindRetrieval            = "retrieval"
	KindTransform            = "transform"
	KindConcat               = "concat"
	KindObjaverse            = "objaverse"
)

// BuildTransforms turns transform specs into imaging transforms.
func BuildTransforms(specs []TransformSpec) ([]imaging.Transform, error) {
	out := make([]imaging.Transform, 0, len(specs))
	for i, s := range specs {
		var t imaging.Transform
		switch s.Name {
		case "resize":
			t = imaging.Resize{Size: s.Size}
		case "resize_exact":
			w, h := s.Width, s.Height
			if w == 0 {
				w = s.Size
			}
			if h == 0 {
				h = s.Size
			}
			t = imaging.ResizeExact{Width: w, Height: h}
		case "center_crop":
			t = imaging.CenterCrop{Size: s.Size}
		case "random_crop":
			t = imaging.RandomCrop{Size: s.Size}
		default:
			return nil, errors.Errorf("transform %d: unknown transform %q", i, s.Name)
		}
		if s.Size <= 0 && s.Width <= 0 && s.Height <= 0 {
			return nil, errors.Errorf("transform %d (%s): size must be positive", i, s.Name)
		}
		out = append(out, t)
	}
	return out, nil
}

func (c *DatasetConfig) folderOptions() (datasets.FolderOptions, error) {
	tforms, err := BuildTransforms(c.Transforms)
	if err != nil {
		return datasets.FolderOptions{}, err
	}
	return datasets.FolderOptions{
		CaptionFile:    c.CaptionFile,
		Transforms:     tforms,
		Ext:            c.Ext,
		DefaultCaption: c.DefaultCaption,
		ReturnPaths:    c.ReturnPaths,
	}, nil
}

// BuildDataset builds the dataset tree described by c.
func BuildDataset(c *DatasetConfig) (datasets.Dataset, error) {
	if c == nil {
		return nil, errors.New("no dataset configured")
	}
	ds, err := buildDataset(c)
	if err != nil {
		return nil, errors.WithMessagef(err, "dataset %q", c.Kind)
	}
	klog.V(1).Infof("Built %s dataset with %d examples", c.Kind, ds.Len())
	return ds, nil
}

func buildDataset(c *DatasetConfig) (datasets.Dataset, error) {
	switch c.Kind {
	case KindFolder:
		opts, err := c.folderOptions()
		if err != nil {
			return nil, err
		}
		return datasets.NewFolderData(c.Root, opts)

	case KindMultiFolder, KindTransformMultiFolder:
		opts, err := c.folderOptions()
		if err != nil {
			return nil, err
		}
		if len(c.Paths.Folders) == 0 {
			return nil, errors.New("paths is empty")
		}
		if c.Paths.Repeated && len(c.CaptionFiles) > 0 {
			return nil, errors.New("caption_files cannot be combined with paths given as a repeat map")
		}
		if c.Kind == KindMultiFolder {
			return datasets.MakeMultiFolderData(c.Paths.Folders, c.CaptionFiles, opts)
		}
		return datasets.MakeTransformMultiFolderData(c.Paths.Folders, c.CaptionFiles, opts)

	case KindNfp:
		tforms, err := BuildTransforms(c.Transforms)
		if err != nil {
			return nil, err
		}
		ext := ""
		if len(c.Ext) > 0 {
			ext = c.Ext[0]
		}
		return datasets.NewNfpDataset(c.Root, tforms, ext, c.DefaultCaption)

	case KindNfpFolders:
		return datasets.MakeNfpData(c.Root)

	case KindVideo:
		tforms, err := BuildTransforms(c.Transforms)
		if err != nil {
			return nil, err
		}
		return datasets.NewVideoDataset(c.Root, datasets.VideoOptions{
			CaptionFile: c.CaptionFile,
			Transforms:  tforms,
			Offset:      c.Offset,
			N:           c.N,
		})

	case KindTextOnly:
		if c.OutputSize <= 0 {
			return nil, errors.Errorf("output_size must be positive, got %d", c.OutputSize)
		}
		if c.CaptionsFile != "" {
			return datasets.NewTextOnlyFromFile(c.CaptionsFile, c.OutputSize, c.ImageKey, c.CaptionKey, c.NGPUs)
		}
		return datasets.NewTextOnly(c.Captions, c.OutputSize, c.ImageKey, c.CaptionKey, c.NGPUs), nil

	case KindRetrieval:
		opts, err := c.folderOptions()
		if err != nil {
			return nil, err
		}
		return datasets.NewIdRetrieval(c.RetrievalFile, c.Root, opts)

	case KindTransform:
		base, err := BuildDataset(c.Base)
		if err != nil {
			return nil, err
		}
		return datasets.NewTransformDataset(base, datasets.TransformOptions{
			ExtraLabel: c.ExtraLabel,
			BaseSize:   c.BaseSize,
			Size:       c.Size,
		}), nil

	case KindConcat:
		parts := make([]datasets.Dataset, 0, len(c.Parts))
		for i := range c.Parts {
			part, err := BuildDataset(&c.Parts[i])
			if err != nil {
				return nil, errors.WithMessagef(err, "part %d", i)
			}
			parts = append(parts, part)
		}
		return datasets.NewConcat(parts...), nil

	case KindObjaverse:
		tforms, err := BuildTransforms(c.Transforms)
		if err != nil {
			return nil, err
		}
		opts := objaverse.DefaultOptions()
		if c.RootDir != "" {
			opts.RootDir = c.RootDir
		}
		if c.PathsDir != "" {
			opts.PathsDir = c.PathsDir
		}
		if c.TotalView > 0 {
			opts.TotalView = c.TotalView
		}
		if c.MaxCond > 0 {
			opts.MaxCond = c.MaxCond
		}
		if c.ShuffleProb != nil {
			opts.ShuffleProb = *c.ShuffleProb
		}
		if c.FallbackObject != "" {
			opts.FallbackObject = c.FallbackObject
		}
		opts.Transforms = tforms
		opts.Validation = c.Validation
		opts.ReturnPaths = c.ReturnPaths
		return objaverse.New(opts)

	case "":
		return nil, errors.New("kind is required")
	default:
		return nil, errors.Errorf("unknown kind %q", c.Kind)
	}
}

// BuildSampler picks the sampler for lc: distributed when WorldSize > 1,
// random when Shuffle is set, sequential otherwise.
func BuildSampler(lc LoaderConfig) (loader.Sampler, error) {
	switch {
	case lc.WorldSize > 1:
		s, err := loader.NewDistributedSampler(lc.Rank, lc.WorldSize, lc.Seed)
		if err != nil {
			return nil, err
		}
		s.Shuffle = lc.Shuffle
		s.DropLast = lc.DropLast
		return s, nil
	case lc.Shuffle:
		return &loader.RandomSampler{Seed: lc.Seed}, nil
	default:
		return loader.SequentialSampler{}, nil
	}
}

// BuildLoader batches ds as configured by lc. Objaverse datasets use the
// multi-view collate function.
func BuildLoader(name string, ds datasets.Dataset, lc LoaderConfig) (*loader.Loader, error) {
	sampler, err := BuildSampler(lc)
	if err != nil {
		return nil, err
	}
	opts := loader.Options{
		Name:      name,
		BatchSize: lc.BatchSize,
		DropLast:  lc.DropLast,
		Sampler:   sampler,
	}
	if _, ok := ds.(*objaverse.Data); ok {
		opts.Collate = objaverse.MultiviewCollate
		opts.InputKeys = objaverse.InputKeys
		opts.LabelKeys = objaverse.LabelKeys
	}
	return loader.New(ds, opts)
}

// BuildDataModule builds an objaverse data module. Loader settings fill in
// what the data module block leaves unset, and always supply the shard.
func BuildDataModule(c *DataModuleConfig, lc LoaderConfig) (*objaverse.DataModule, error) {
	if c == nil {
		return nil, errors.New("no data_module configured")
	}
	opts := objaverse.DataModuleOptions{
		RootDir:        c.RootDir,
		PathsDir:       c.PathsDir,
		BatchSize:      c.BatchSize,
		TotalView:      c.TotalView,
		NumWorkers:     c.NumWorkers,
		ImageSize:      c.ImageSize(),
		Rank:           lc.Rank,
		WorldSize:      lc.WorldSize,
		Seed:           lc.Seed,
		FallbackObject: c.FallbackObject,
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = lc.BatchSize
	}
	if opts.NumWorkers == 0 {
		opts.NumWorkers = lc.NumWorkers
	}
	return objaverse.NewDataModule(opts)
}
