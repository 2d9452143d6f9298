// Package loader batches datasets.Dataset examples into GoMLX tensors.
//
// A Loader walks the indices chosen by its Sampler, loads BatchSize examples,
// collates them and hands them out either as a *Batch (Next) or as a
// train.Dataset (Yield). Only the index hand-out is serialized, so several
// goroutines (see Parallel) can load and decode examples at the same time.
package loader

import (
	"io"
	"sync"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/Noofbiz/viewsynth/datasets"
)

// Options configures a Loader.
type Options struct {
	// Name is reported by the train.Dataset interface.
	Name      string
	BatchSize int
	// DropLast discards the final batch of an epoch when it is smaller than
	// BatchSize.
	DropLast bool
	// Sampler defaults to SequentialSampler.
	Sampler Sampler
	// Collate defaults to DefaultCollate.
	Collate CollateFn
	// InputKeys and LabelKeys select the tensors Yield returns.
	InputKeys, LabelKeys []string
}

// Loader turns a dataset into a stream of batches.
type Loader struct {
	ds   datasets.Dataset
	opts Options

	mu    sync.Mutex
	epoch int
	order []int
	pos   int
}

var _ train.Dataset = (*Loader)(nil)

// New creates a loader positioned at the start of epoch 0.
func New(ds datasets.Dataset, opts Options) (*Loader, error) {
	if opts.BatchSize <= 0 {
		return nil, errors.Errorf("batch size must be positive, got %d", opts.BatchSize)
	}
	if opts.Sampler == nil {
		opts.Sampler = SequentialSampler{}
	}
	if opts.Collate == nil {
		opts.Collate = DefaultCollate
	}
	if opts.Name == "" {
		opts.Name = "loader"
	}
	l := &Loader{ds: ds, opts: opts}
	l.opts.Sampler.SetEpoch(0)
	l.order = l.opts.Sampler.Indices(ds.Len())
	return l, nil
}

// Dataset returns the underlying dataset.
func (l *Loader) Dataset() datasets.Dataset { return l.ds }

// BatchSize returns the configured batch size.
func (l *Loader) BatchSize() int { return l.opts.BatchSize }

// Len returns the number of batches in an epoch.
func (l *Loader) Len() int {
	l.mu.Lock()
	n := len(l.order)
	l.mu.Unlock()
	if l.opts.DropLast {
		return n / l.opts.BatchSize
	}
	return (n + l.opts.BatchSize - 1) / l.opts.BatchSize
}

// Epoch returns the current epoch number.
func (l *Loader) Epoch() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.epoch
}

// reserve hands out the indices of the next batch, or io.EOF.
func (l *Loader) reserve() ([]int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	remaining := len(l.order) - l.pos
	if remaining <= 0 || (l.opts.DropLast && remaining < l.opts.BatchSize) {
		return nil, io.EOF
	}
	n := min(remaining, l.opts.BatchSize)
	indices := l.order[l.pos : l.pos+n]
	l.pos += n
	return indices, nil
}

// Next loads and collates the next batch. It returns io.EOF at the end of the
// epoch.
func (l *Loader) Next() (*Batch, error) {
	indices, err := l.reserve()
	if err != nil {
		return nil, err
	}
	samples := make([]datasets.Sample, len(indices))
	for i, idx := range indices {
		samples[i], err = l.ds.Example(idx)
		if err != nil {
			return nil, errors.WithMessagef(err, "%s: loading example %d", l.opts.Name, idx)
		}
	}
	return l.opts.Collate(samples)
}

// Name implements train.Dataset.
func (l *Loader) Name() string { return l.opts.Name }

// Reset implements train.Dataset. It starts the next epoch.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.epoch++
	l.opts.Sampler.SetEpoch(l.epoch)
	l.order = l.opts.Sampler.Indices(l.ds.Len())
	l.pos = 0
	klog.V(1).Infof("%s: epoch %d, %d examples", l.opts.Name, l.epoch, len(l.order))
}

// Yield implements train.Dataset. Inputs and labels are the batch tensors
// named by InputKeys and LabelKeys.
func (l *Loader) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	batch, err := l.Next()
	if err != nil {
		return nil, nil, nil, err
	}
	inputs, err = batch.Inputs(l.opts.InputKeys...)
	if err != nil {
		return nil, nil, nil, errors.WithMessagef(err, "%s inputs", l.opts.Name)
	}
	labels, err = batch.Inputs(l.opts.LabelKeys...)
	if err != nil {
		return nil, nil, nil, errors.WithMessagef(err, "%s labels", l.opts.Name)
	}
	return l, inputs, labels, nil
}
