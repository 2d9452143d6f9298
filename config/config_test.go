package config

import (
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Noofbiz/viewsynth/datasets"
	"github.com/Noofbiz/viewsynth/imaging"
	"github.com/Noofbiz/viewsynth/loader"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create dir for %s: %v", path, err)
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create png %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode png %s: %v", path, err)
	}
}

func TestParseRejectsBadDocuments(t *testing.T) {
	if _, err := Parse([]byte(`{"loader": `)); err == nil {
		t.Fatalf("expected an error for truncated JSON")
	}
	if _, err := Parse([]byte(`{"loader": {"batch_size": 2}}`)); err == nil {
		t.Fatalf("expected an error when neither dataset nor data_module is set")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}

func TestOrderedRepeatsKeepsObjectOrder(t *testing.T) {
	var c DatasetConfig
	if err := json.Unmarshal([]byte(`{"kind": "multifolder", "paths": {"z": 2, "a": 1, "m": 3}}`), &c); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	want := []datasets.FolderSpec{{Path: "z", Repeats: 2}, {Path: "a", Repeats: 1}, {Path: "m", Repeats: 3}}
	if diff := cmp.Diff(want, c.Paths.Folders); diff != "" {
		t.Fatalf("folders mismatch (-want +got):\n%s", diff)
	}
	if !c.Paths.Repeated {
		t.Fatalf("expected an object to mark the folders as repeated")
	}

	out, err := json.Marshal(c.Paths)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(out) != `{"z":2,"a":1,"m":3}` {
		t.Fatalf("unexpected encoding %s", out)
	}
}

func TestOrderedRepeatsList(t *testing.T) {
	var o OrderedRepeats
	if err := json.Unmarshal([]byte(`["x", "y"]`), &o); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if diff := cmp.Diff(datasets.Folders("x", "y"), o.Folders); diff != "" {
		t.Fatalf("folders mismatch (-want +got):\n%s", diff)
	}
	if o.Repeated {
		t.Fatalf("a list should not be marked repeated")
	}
	for _, bad := range []string{`[1]`, `{"x": "two"}`, `"x"`} {
		if err := json.Unmarshal([]byte(bad), &o); err == nil {
			t.Errorf("expected an error for %s", bad)
		}
	}
}

func TestApplyEnvOverridesOnlySetVariables(t *testing.T) {
	cfg, err := Parse([]byte(`{
		"data_module": {"root_dir": "views", "paths_dir": "paths", "batch_size": 4},
		"loader": {"batch_size": 8, "num_workers": 2, "seed": 5}
	}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	err = ApplyEnvFrom(cfg, map[string]string{
		"VIEWSYNTH_BATCH_SIZE":      "16",
		"VIEWSYNTH_SHUFFLE":         "true",
		"VIEWSYNTH_DATA_ROOT_DIR":   "/data/views",
		"VIEWSYNTH_DATA_TOTAL_VIEW": "8",
		"UNRELATED":                 "1",
	})
	if err != nil {
		t.Fatalf("ApplyEnvFrom failed: %v", err)
	}
	want := LoaderConfig{BatchSize: 16, NumWorkers: 2, Shuffle: true, Seed: 5}
	if diff := cmp.Diff(want, cfg.Loader); diff != "" {
		t.Fatalf("loader config mismatch (-want +got):\n%s", diff)
	}
	if cfg.DataModule.RootDir != "/data/views" || cfg.DataModule.PathsDir != "paths" {
		t.Fatalf("unexpected data module dirs %q, %q", cfg.DataModule.RootDir, cfg.DataModule.PathsDir)
	}
	if cfg.DataModule.TotalView != 8 || cfg.DataModule.BatchSize != 4 {
		t.Fatalf("unexpected data module sizes %+v", cfg.DataModule)
	}

	if err := ApplyEnvFrom(cfg, map[string]string{"VIEWSYNTH_SEED": "minus one"}); err == nil {
		t.Fatalf("expected an error for a malformed seed")
	}
}

func TestBuildTransforms(t *testing.T) {
	got, err := BuildTransforms([]TransformSpec{
		{Name: "resize", Size: 64},
		{Name: "resize_exact", Width: 32, Height: 16},
		{Name: "center_crop", Size: 16},
		{Name: "random_crop", Size: 8},
	})
	if err != nil {
		t.Fatalf("BuildTransforms failed: %v", err)
	}
	want := []imaging.Transform{
		imaging.Resize{Size: 64},
		imaging.ResizeExact{Width: 32, Height: 16},
		imaging.CenterCrop{Size: 16},
		imaging.RandomCrop{Size: 8},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("transforms mismatch (-want +got):\n%s", diff)
	}

	if _, err := BuildTransforms([]TransformSpec{{Name: "flip", Size: 4}}); err == nil {
		t.Fatalf("expected an error for an unknown transform")
	}
	if _, err := BuildTransforms([]TransformSpec{{Name: "resize"}}); err == nil {
		t.Fatalf("expected an error for a missing size")
	}
}

func TestBuildFolderDatasetAndLoader(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.png", "b.png", "sub/c.png"} {
		writePNG(t, filepath.Join(root, name), 8, 4)
	}
	doc := `{
		"dataset": {
			"kind": "folder", "root": ` + quote(root) + `, "ext": ["png"],
			"default_caption": "a photo",
			"transforms": [{"name": "resize", "size": 4}, {"name": "center_crop", "size": 4}]
		},
		"loader": {"batch_size": 2}
	}`
	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	ds, err := BuildDataset(cfg.Dataset)
	if err != nil {
		t.Fatalf("BuildDataset failed: %v", err)
	}
	if ds.Len() != 3 {
		t.Fatalf("expected 3 images, got %d", ds.Len())
	}

	l, err := BuildLoader("test", ds, cfg.Loader)
	if err != nil {
		t.Fatalf("BuildLoader failed: %v", err)
	}
	b, err := l.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if diff := cmp.Diff([]int{2, 4, 4, 3}, b.Tensors[datasets.KeyImage].Shape().Dimensions); diff != "" {
		t.Fatalf("image shape mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a photo", "a photo"}, b.Text[datasets.KeyText]); diff != "" {
		t.Fatalf("captions mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildNestedDatasets(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "one", "x.png"), 4, 4)
	c := &DatasetConfig{
		Kind: KindConcat,
		Parts: []DatasetConfig{
			{Kind: KindTextOnly, Captions: []string{"a", "b"}, OutputSize: 4, NGPUs: 2},
			{
				Kind:     KindTransform,
				Base:     &DatasetConfig{Kind: KindFolder, Root: filepath.Join(root, "one"), Ext: []string{"png"}},
				BaseSize: 8,
				Size:     4,
			},
		},
	}
	ds, err := BuildDataset(c)
	if err != nil {
		t.Fatalf("BuildDataset failed: %v", err)
	}
	if ds.Len() != 5 {
		t.Fatalf("expected 4 captions and 1 image, got %d examples", ds.Len())
	}
	s, err := ds.Example(4)
	if err != nil {
		t.Fatalf("Example failed: %v", err)
	}
	img, ok := s.Image(datasets.KeyImage)
	if !ok {
		t.Fatalf("transformed sample has no image")
	}
	if diff := cmp.Diff([]int{4, 4, 3}, img.Shape()); diff != "" {
		t.Fatalf("image shape mismatch (-want +got):\n%s", diff)
	}

	for _, bad := range []*DatasetConfig{
		nil,
		{Kind: ""},
		{Kind: "webdataset"},
		{Kind: KindTextOnly, Captions: []string{"a"}},
		{Kind: KindTransform},
		{Kind: KindConcat, Parts: []DatasetConfig{{Kind: "nope"}}},
	} {
		if _, err := BuildDataset(bad); err == nil {
			t.Errorf("expected an error for %+v", bad)
		}
	}
}

func TestMultiFolderRepeatMapRejectsCaptions(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "a", "x.png"), 4, 4)
	caps := filepath.Join(root, "caps.json")
	if err := os.WriteFile(caps, []byte(`{"x.png": "an x"}`), 0o644); err != nil {
		t.Fatalf("failed to write captions: %v", err)
	}
	folder := quote(filepath.Join(root, "a"))

	var c DatasetConfig
	doc := `{"kind": "multifolder", "ext": ["png"], "paths": {` + folder + `: 1}, "caption_files": [` + quote(caps) + `]}`
	if err := json.Unmarshal([]byte(doc), &c); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if _, err := BuildDataset(&c); err == nil {
		t.Fatalf("expected an error for a repeat map with caption files")
	}

	doc = `{"kind": "multifolder", "ext": ["png"], "paths": [` + folder + `], "caption_files": [` + quote(caps) + `]}`
	c = DatasetConfig{}
	if err := json.Unmarshal([]byte(doc), &c); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	ds, err := BuildDataset(&c)
	if err != nil {
		t.Fatalf("BuildDataset failed: %v", err)
	}
	if ds.Len() != 1 {
		t.Fatalf("expected 1 captioned image, got %d", ds.Len())
	}
}

func TestBuildSampler(t *testing.T) {
	s, err := BuildSampler(LoaderConfig{})
	if err != nil {
		t.Fatalf("BuildSampler failed: %v", err)
	}
	if _, ok := s.(loader.SequentialSampler); !ok {
		t.Fatalf("expected a sequential sampler, got %T", s)
	}

	s, err = BuildSampler(LoaderConfig{Shuffle: true, Seed: 3})
	if err != nil {
		t.Fatalf("BuildSampler failed: %v", err)
	}
	if r, ok := s.(*loader.RandomSampler); !ok || r.Seed != 3 {
		t.Fatalf("expected a random sampler seeded with 3, got %#v", s)
	}

	s, err = BuildSampler(LoaderConfig{Rank: 1, WorldSize: 2, DropLast: true})
	if err != nil {
		t.Fatalf("BuildSampler failed: %v", err)
	}
	d, ok := s.(*loader.DistributedSampler)
	if !ok {
		t.Fatalf("expected a distributed sampler, got %T", s)
	}
	if d.Rank != 1 || d.WorldSize != 2 || d.Shuffle || !d.DropLast {
		t.Fatalf("unexpected distributed sampler %+v", d)
	}

	if _, err := BuildSampler(LoaderConfig{Rank: 2, WorldSize: 2}); err == nil {
		t.Fatalf("expected an error for a rank outside the world")
	}
}

func TestBuildDataModule(t *testing.T) {
	c := &DataModuleConfig{
		RootDir:    "views",
		PathsDir:   "paths",
		TotalView:  12,
		Train:      &SplitConfig{ImageTransforms: &ImageTransformsConfig{Size: 128}},
		Validation: &SplitConfig{ImageTransforms: &ImageTransformsConfig{Size: 256}},
	}
	if c.ImageSize() != 256 {
		t.Fatalf("expected the validation size to win, got %d", c.ImageSize())
	}
	m, err := BuildDataModule(c, LoaderConfig{BatchSize: 3, Rank: 1, WorldSize: 4, Seed: 9})
	if err != nil {
		t.Fatalf("BuildDataModule failed: %v", err)
	}
	got := m.Options()
	if got.BatchSize != 3 || got.NumWorkers != 4 || got.ImageSize != 256 {
		t.Fatalf("unexpected sizes %+v", got)
	}
	if got.Rank != 1 || got.WorldSize != 4 || got.Seed != 9 {
		t.Fatalf("unexpected shard %+v", got)
	}
	if _, err := BuildDataModule(nil, LoaderConfig{}); err == nil {
		t.Fatalf("expected an error without a data module")
	}
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
