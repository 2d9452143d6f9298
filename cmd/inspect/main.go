// Command inspect loads a dataset config, reads a few batches and reports what
// the model would be fed: tensor shapes and sizes, plus statistics and a plot
// of the relative camera poses when the batches carry them.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"k8s.io/klog/v2"

	"github.com/Noofbiz/viewsynth/config"
	"github.com/Noofbiz/viewsynth/loader"
	"github.com/Noofbiz/viewsynth/objaverse"
	"github.com/Noofbiz/viewsynth/pose"
)

// defaultConfigJSON is written by -write-default as a starting point.
const defaultConfigJSON = `{
  "data_module": {
    "root_dir": ".objaverse/hf-objaverse-v1/views",
    "paths_dir": ".objaverse/hf-objaverse-v1/view",
    "batch_size": 4,
    "total_view": 12,
    "num_workers": 4,
    "train": {"image_transforms": {"size": 256}},
    "validation": {"image_transforms": {"size": 256}}
  },
  "loader": {
    "batch_size": 4,
    "num_workers": 4,
    "shuffle": true,
    "seed": 0,
    "rank": 0,
    "world_size": 1
  }
}
`

func main() {
	klog.InitFlags(nil)
	configPath := flag.String("config", "config.json", "path to the JSON dataset config")
	writeDefault := flag.Bool("write-default", false, "write a default config to -config and exit")
	split := flag.String("split", "train", "data module split to read: train, val or test")
	numBatches := flag.Int("batches", 10, "number of batches to read (0 = one full epoch)")
	batchSize := flag.Int("batch-size", 4, "batch size (overrides config and env if set)")
	seed := flag.Uint64("seed", 0, "sampler seed (overrides config and env if set)")
	shuffle := flag.Bool("shuffle", false, "shuffle plain datasets (overrides config and env if set)")
	rank := flag.Int("rank", 0, "shard rank (overrides config and env if set)")
	worldSize := flag.Int("world-size", 1, "number of shards (overrides config and env if set)")
	outDir := flag.String("out", "plots", "output directory for the pose plot")
	outCSV := flag.String("out-csv", "", "if set, write every pose delta T to this CSV")
	flag.Parse()
	defer klog.Flush()

	if *writeDefault {
		if err := ensureDir(filepath.Dir(*configPath)); err != nil {
			klog.Exitf("failed to create dir for %s: %v", *configPath, err)
		}
		if err := os.WriteFile(*configPath, []byte(defaultConfigJSON), 0644); err != nil {
			klog.Exitf("failed to write default config: %v", err)
		}
		klog.Infof("Wrote default config to %s", *configPath)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		klog.Exitf("failed to load config: %v", err)
	}
	if err := config.ApplyEnv(cfg); err != nil {
		klog.Exitf("failed to apply environment: %v", err)
	}

	// Explicit CLI flags win over both the file and the environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "batch-size":
			cfg.Loader.BatchSize = *batchSize
			if cfg.DataModule != nil {
				cfg.DataModule.BatchSize = *batchSize
			}
		case "seed":
			cfg.Loader.Seed = *seed
		case "shuffle":
			cfg.Loader.Shuffle = *shuffle
		case "rank":
			cfg.Loader.Rank = *rank
		case "world-size":
			cfg.Loader.WorldSize = *worldSize
		}
	})
	if cfg.Loader.BatchSize <= 0 {
		cfg.Loader.BatchSize = *batchSize
	}

	l, err := buildLoader(cfg, *split)
	if err != nil {
		klog.Exitf("failed to build loader: %v", err)
	}
	klog.Infof("Loader %q: %d examples, %d batches per epoch", l.Name(), l.Dataset().Len(), l.Len())

	n := *numBatches
	if n <= 0 || n > l.Len() {
		n = l.Len()
	}
	report, err := readBatches(l, n)
	if err != nil {
		klog.Exitf("failed to read batches: %v", err)
	}
	report.log()

	if len(report.poses) == 0 {
		return
	}
	report.logPoseStats()
	if *outCSV != "" {
		if err := writePoseCSV(*outCSV, report.poses); err != nil {
			klog.Exitf("failed to write %s: %v", *outCSV, err)
		}
		klog.Infof("Pose deltas written to %s", *outCSV)
	}
	if err := plotPoses(*outDir, report.poses); err != nil {
		klog.Exitf("failed to generate plot: %v", err)
	}
	klog.Infof("Pose plot written to %s", *outDir)
}

func buildLoader(cfg *config.Config, split string) (*loader.Loader, error) {
	if cfg.DataModule != nil {
		m, err := config.BuildDataModule(cfg.DataModule, cfg.Loader)
		if err != nil {
			return nil, err
		}
		switch split {
		case "train":
			return m.TrainLoader()
		case "val":
			return m.ValLoader()
		case "test":
			return m.TestLoader()
		default:
			return nil, errors.Errorf("unknown split %q", split)
		}
	}
	ds, err := config.BuildDataset(cfg.Dataset)
	if err != nil {
		return nil, err
	}
	return config.BuildLoader(cfg.Dataset.Kind, ds, cfg.Loader)
}

// tensorInfo accumulates what was seen for one batch key.
type tensorInfo struct {
	shape string
	bytes uint64
}

type batchReport struct {
	batches  int
	examples int
	tensors  map[string]*tensorInfo
	text     map[string]int
	poses    []pose.T
}

func readBatches(l *loader.Loader, n int) (*batchReport, error) {
	r := &batchReport{tensors: map[string]*tensorInfo{}, text: map[string]int{}}
	bar := progressbar.Default(int64(n), "Reading batches")
	for r.batches < n {
		b, err := l.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		r.add(b)
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	return r, nil
}

func (r *batchReport) add(b *loader.Batch) {
	r.batches++
	r.examples += b.Size
	for k, t := range b.Tensors {
		info, ok := r.tensors[k]
		if !ok {
			info = &tensorInfo{}
			r.tensors[k] = info
		}
		info.shape = t.Shape().String()
		info.bytes += uint64(t.Shape().Memory())
	}
	for k, v := range b.Text {
		r.text[k] += len(v)
	}
	if t, ok := b.Tensors[objaverse.KeyT]; ok {
		r.poses = append(r.poses, posesOf(t)...)
	}
}

func posesOf(t *tensors.Tensor) []pose.T {
	flat := tensors.CopyFlatData[float32](t)
	out := make([]pose.T, 0, len(flat)/4)
	for i := 0; i+4 <= len(flat); i += 4 {
		out = append(out, pose.T{flat[i], flat[i+1], flat[i+2], flat[i+3]})
	}
	return out
}

func (r *batchReport) log() {
	klog.Infof("Read %d batches, %d examples", r.batches, r.examples)
	keys := make([]string, 0, len(r.tensors))
	for k := range r.tensors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var total uint64
	for _, k := range keys {
		info := r.tensors[k]
		total += info.bytes
		klog.Infof("\t%s: last shape %s, %s total", k, info.shape, humanize.Bytes(info.bytes))
	}
	for k, n := range r.text {
		klog.Infof("\t%s: %d strings", k, n)
	}
	klog.Infof("Tensor memory read: %s", humanize.Bytes(total))
}

// logPoseStats logs mean and standard deviation of each T component, with
// the azimuth recovered from its sin/cos pair.
func (r *batchReport) logPoseStats() {
	cols := [][]float64{{}, {}, {}}
	for _, t := range r.poses {
		cols[0] = append(cols[0], float64(t[0]))
		cols[1] = append(cols[1], t.Azimuth())
		cols[2] = append(cols[2], float64(t[3]))
	}
	for i, name := range []string{"Δθ (polar)", "Δφ (azimuth)", "Δr (radius)"} {
		mean, std := stat.MeanStdDev(cols[i], nil)
		klog.Infof("%s: mean %.4f, stddev %.4f over %d pairs", name, mean, std, len(cols[i]))
	}
}

func writePoseCSV(path string, poses []pose.T) error {
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	_ = w.Write([]string{"idx", "d_theta", "sin_d_azimuth", "cos_d_azimuth", "d_radius"})
	for i, t := range poses {
		row := []string{strconv.Itoa(i)}
		for _, v := range t {
			row = append(row, strconv.FormatFloat(float64(v), 'f', 6, 32))
		}
		_ = w.Write(row)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// plotPoses writes a scatter of azimuth delta against elevation delta, both
// in degrees. Elevation is the negated polar delta.
func plotPoses(outDir string, poses []pose.T) error {
	xys := make(plotter.XYs, len(poses))
	for i, t := range poses {
		xys[i].X = t.Azimuth() * 180 / math.Pi
		xys[i].Y = -float64(t[0]) * 180 / math.Pi
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Relative poses (%d target/cond pairs)", len(poses))
	p.X.Label.Text = "Δazimuth (deg)"
	p.Y.Label.Text = "Δelevation (deg)"

	sc, err := plotter.NewScatter(xys)
	if err != nil {
		return err
	}
	sc.GlyphStyle.Color = color.RGBA{R: 20, G: 80, B: 200, A: 200}
	sc.GlyphStyle.Radius = vg.Points(2)
	p.Add(sc)
	p.Add(plotter.NewGrid())

	xmin, xmax, ymin, ymax := autoRange(xys)
	p.X.Min = xmin
	p.X.Max = xmax
	p.Y.Min = ymin
	p.Y.Max = ymax

	if err := ensureDir(outDir); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 6*vg.Inch, filepath.Join(outDir, "pose_deltas.png"))
}

// autoRange computes padded min/max for X and Y for a set of points.
func autoRange(xs plotter.XYs) (xmin, xmax, ymin, ymax float64) {
	if len(xs) == 0 {
		return -1, 1, -1, 1
	}
	xmin = math.Inf(1)
	xmax = math.Inf(-1)
	ymin = math.Inf(1)
	ymax = math.Inf(-1)
	for _, p := range xs {
		xmin = math.Min(xmin, p.X)
		xmax = math.Max(xmax, p.X)
		ymin = math.Min(ymin, p.Y)
		ymax = math.Max(ymax, p.Y)
	}
	padx := (xmax - xmin) * 0.06
	pady := (ymax - ymin) * 0.06
	if padx == 0 {
		padx = 1.0
	}
	if pady == 0 {
		pady = 1.0
	}
	return xmin - padx, xmax + padx, ymin - pady, ymax + pady
}

func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0755)
}
