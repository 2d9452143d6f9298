package objaverse

import (
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"

	"github.com/Noofbiz/viewsynth/imaging"
	"github.com/Noofbiz/viewsynth/loader"
	"github.com/Noofbiz/viewsynth/rng"
)

// DataModuleOptions configures a DataModule.
type DataModuleOptions struct {
	RootDir   string
	PathsDir  string
	BatchSize int
	TotalView int
	// NumWorkers is the number of parallel producers used by Train and Val.
	// Defaults to 4.
	NumWorkers int
	// ImageSize, when positive, resizes every view's short side to it.
	ImageSize int
	// Rank and WorldSize shard the training split.
	Rank, WorldSize int
	Seed            uint64
	// FallbackObject overrides DefaultFallbackObject when set.
	FallbackObject string
	Rand           rng.Source
}

// DataModule builds the train, validation and test loaders.
type DataModule struct {
	opts       DataModuleOptions
	transforms []imaging.Transform
}

// NewDataModule validates opts.
func NewDataModule(opts DataModuleOptions) (*DataModule, error) {
	if opts.BatchSize <= 0 {
		return nil, errors.Errorf("batch size must be positive, got %d", opts.BatchSize)
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 4
	}
	if opts.WorldSize <= 0 {
		opts.WorldSize = 1
	}
	m := &DataModule{opts: opts}
	if opts.ImageSize > 0 {
		m.transforms = []imaging.Transform{imaging.Resize{Size: opts.ImageSize}}
	}
	return m, nil
}

// Options returns the module's options after defaults were applied.
func (m *DataModule) Options() DataModuleOptions { return m.opts }

func (m *DataModule) dataset(validation bool) (*Data, error) {
	opts := DefaultOptions()
	opts.RootDir = m.opts.RootDir
	opts.PathsDir = m.opts.PathsDir
	if m.opts.TotalView > 0 {
		opts.TotalView = m.opts.TotalView
	}
	if m.opts.FallbackObject != "" {
		opts.FallbackObject = m.opts.FallbackObject
	}
	opts.Transforms = m.transforms
	opts.Validation = validation
	opts.Rand = m.opts.Rand
	return New(opts)
}

func (m *DataModule) newLoader(name string, validation bool, sampler loader.Sampler) (*loader.Loader, error) {
	ds, err := m.dataset(validation)
	if err != nil {
		return nil, err
	}
	return loader.New(ds, loader.Options{
		Name:      name,
		BatchSize: m.opts.BatchSize,
		Sampler:   sampler,
		Collate:   MultiviewCollate,
		InputKeys: InputKeys,
		LabelKeys: LabelKeys,
	})
}

// TrainLoader iterates this rank's shard of the training split, reshuffled
// every epoch.
func (m *DataModule) TrainLoader() (*loader.Loader, error) {
	sampler, err := loader.NewDistributedSampler(m.opts.Rank, m.opts.WorldSize, m.opts.Seed)
	if err != nil {
		return nil, err
	}
	return m.newLoader("objaverse-train", false, sampler)
}

// ValLoader iterates the validation split in order.
func (m *DataModule) ValLoader() (*loader.Loader, error) {
	return m.newLoader("objaverse-val", true, loader.SequentialSampler{})
}

// TestLoader iterates the validation split in order.
func (m *DataModule) TestLoader() (*loader.Loader, error) {
	return m.newLoader("objaverse-test", true, loader.SequentialSampler{})
}

// Train returns the training loader run by NumWorkers parallel producers.
func (m *DataModule) Train() (train.Dataset, error) {
	l, err := m.TrainLoader()
	if err != nil {
		return nil, err
	}
	return loader.Parallel(l, m.opts.NumWorkers, 2*m.opts.NumWorkers), nil
}

// Val returns the validation loader run by NumWorkers parallel producers.
func (m *DataModule) Val() (train.Dataset, error) {
	l, err := m.ValLoader()
	if err != nil {
		return nil, err
	}
	return loader.Parallel(l, m.opts.NumWorkers, 2*m.opts.NumWorkers), nil
}
