// Package config describes datasets and loaders in JSON and builds them.
//
// A config file holds either a dataset tree (built with BuildDataset and
// batched by a plain loader) or an objaverse data module, plus loader
// settings:
//
//	{
//	  "dataset": {"kind": "folder", "root": "imgs", "ext": ["png"],
//	              "transforms": [{"name": "resize", "size": 256},
//	                             {"name": "center_crop", "size": 256}]},
//	  "loader": {"batch_size": 8, "num_workers": 4, "shuffle": true}
//	}
//
// Environment variables prefixed with VIEWSYNTH_ override the loader and data
// module settings; command line flags override both.
package config

import (
	"encoding/json"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "VIEWSYNTH_"

// Config is the root of a config file.
type Config struct {
	Dataset    *DatasetConfig    `json:"dataset,omitempty"`
	DataModule *DataModuleConfig `json:"data_module,omitempty"`
	Loader     LoaderConfig      `json:"loader"`
}

// TransformSpec names one image transform.
type TransformSpec struct {
	// Name is one of resize, resize_exact, center_crop, random_crop.
	Name   string `json:"name"`
	Size   int    `json:"size,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// DatasetConfig describes one node of a dataset tree. Kind selects which of
// the remaining fields are used.
type DatasetConfig struct {
	Kind string `json:"kind"`

	// folder, multifolder, transform_multifolder, retrieval, nfp, video
	Root           string          `json:"root,omitempty"`
	CaptionFile    string          `json:"caption_file,omitempty"`
	Ext            []string        `json:"ext,omitempty"`
	DefaultCaption string          `json:"default_caption,omitempty"`
	ReturnPaths    bool            `json:"return_paths,omitempty"`
	Transforms     []TransformSpec `json:"transforms,omitempty"`

	// multifolder, transform_multifolder
	Paths        OrderedRepeats `json:"paths,omitempty"`
	CaptionFiles []string       `json:"caption_files,omitempty"`

	// video
	Offset int `json:"offset,omitempty"`
	N      int `json:"n,omitempty"`

	// textonly
	Captions     []string `json:"captions,omitempty"`
	CaptionsFile string   `json:"captions_file,omitempty"`
	OutputSize   int      `json:"output_size,omitempty"`
	ImageKey     string   `json:"image_key,omitempty"`
	CaptionKey   string   `json:"caption_key,omitempty"`
	NGPUs        int      `json:"n_gpus,omitempty"`

	// retrieval
	RetrievalFile string `json:"retrieval_file,omitempty"`

	// transform, transform_multifolder
	ExtraLabel string `json:"extra_label,omitempty"`
	BaseSize   int    `json:"base_size,omitempty"`
	Size       int    `json:"size,omitempty"`

	// transform wraps Base; concat joins Parts.
	Base  *DatasetConfig  `json:"base,omitempty"`
	Parts []DatasetConfig `json:"parts,omitempty"`

	// objaverse
	RootDir        string   `json:"root_dir,omitempty"`
	PathsDir       string   `json:"paths_dir,omitempty"`
	TotalView      int      `json:"total_view,omitempty"`
	MaxCond        int      `json:"max_cond,omitempty"`
	ShuffleProb    *float64 `json:"shuffle_prob,omitempty"`
	Validation     bool     `json:"validation,omitempty"`
	FallbackObject string   `json:"fallback_object,omitempty"`
}

// LoaderConfig holds batching settings.
type LoaderConfig struct {
	BatchSize  int    `json:"batch_size" env:"BATCH_SIZE"`
	NumWorkers int    `json:"num_workers" env:"NUM_WORKERS"`
	Shuffle    bool   `json:"shuffle" env:"SHUFFLE"`
	DropLast   bool   `json:"drop_last" env:"DROP_LAST"`
	Seed       uint64 `json:"seed" env:"SEED"`
	Rank       int    `json:"rank" env:"RANK"`
	WorldSize  int    `json:"world_size" env:"WORLD_SIZE"`
}

// ImageTransformsConfig is the image_transforms block of a split.
type ImageTransformsConfig struct {
	Size int `json:"size"`
}

// SplitConfig configures the train or validation split of a data module.
type SplitConfig struct {
	ImageTransforms *ImageTransformsConfig `json:"image_transforms,omitempty"`
}

// DataModuleConfig configures an objaverse data module.
type DataModuleConfig struct {
	RootDir        string       `json:"root_dir" env:"ROOT_DIR"`
	PathsDir       string       `json:"paths_dir" env:"PATHS_DIR"`
	BatchSize      int          `json:"batch_size" env:"BATCH_SIZE"`
	TotalView      int          `json:"total_view" env:"TOTAL_VIEW"`
	NumWorkers     int          `json:"num_workers" env:"NUM_WORKERS"`
	FallbackObject string       `json:"fallback_object,omitempty" env:"FALLBACK_OBJECT"`
	Train          *SplitConfig `json:"train,omitempty"`
	Validation     *SplitConfig `json:"validation,omitempty"`
}

// ImageSize returns the resize target from the split configs. The validation
// block wins when both are present.
func (c *DataModuleConfig) ImageSize() int {
	size := 0
	for _, split := range []*SplitConfig{c.Train, c.Validation} {
		if split != nil && split.ImageTransforms != nil {
			size = split.ImageTransforms.Size
		}
	}
	return size
}

// Load reads a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %q", path)
	}
	return Parse(data)
}

// Parse decodes a config document.
func Parse(data []byte) (*Config, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("config is not valid JSON")
	}
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if cfg.Dataset == nil && cfg.DataModule == nil {
		return nil, errors.New("config needs a dataset or a data_module")
	}
	return cfg, nil
}

// ApplyEnv overlays VIEWSYNTH_* environment variables on the loader and data
// module settings. Unset variables leave the file's values alone.
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, env.Options{Prefix: EnvPrefix})
}

// ApplyEnvFrom is ApplyEnv reading from environ instead of the process
// environment.
func ApplyEnvFrom(cfg *Config, environ map[string]string) error {
	return applyEnv(cfg, env.Options{Prefix: EnvPrefix, Environment: environ})
}

func applyEnv(cfg *Config, opts env.Options) error {
	if err := env.ParseWithOptions(&cfg.Loader, opts); err != nil {
		return errors.Wrap(err, "parse loader env")
	}
	if cfg.DataModule != nil {
		dmOpts := opts
		dmOpts.Prefix = EnvPrefix + "DATA_"
		if err := env.ParseWithOptions(cfg.DataModule, dmOpts); err != nil {
			return errors.Wrap(err, "parse data module env")
		}
	}
	return nil
}
