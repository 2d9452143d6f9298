package loader

import (
	mldatasets "github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/gomlx/gomlx/pkg/ml/train"
)

// Parallel runs ds.Yield from workers goroutines and buffers up to buffer
// batches. Zero values keep GoMLX's defaults (one worker per CPU).
//
// ds must be safe for concurrent Yield calls; a *Loader is.
func Parallel(ds train.Dataset, workers, buffer int) train.Dataset {
	pd := mldatasets.CustomParallel(ds)
	if workers > 0 {
		pd = pd.Parallelism(workers)
	}
	if buffer > 0 {
		pd = pd.Buffer(buffer)
	}
	return pd.Start()
}
