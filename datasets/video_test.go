package datasets

import (
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/Noofbiz/viewsynth/rng"
)

// writeClip writes frames 000.png..(n-1).png whose gray level encodes the
// frame number (10 per frame).
func writeClip(t *testing.T, dir string, n int) {
	t.Helper()
	for k := 0; k < n; k++ {
		writePNG(t, filepath.Join(dir, fmt.Sprintf("%03d.png", k)), 2, 2, gray(uint8(k*10)))
	}
}

// frameOf decodes the frame number from a normalized gray value.
func frameOf(v float32) int {
	return int(math.Round(float64((v + 1) / 2 * 255 / 10)))
}

func TestVideoDatasetFrameOffsets(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "clips")
	writeClip(t, filepath.Join(root, "clipA"), 20)
	caps := filepath.Join(tmp, "caps.csv")
	writeFile(t, caps, "clipA,a cat\n")

	ds, err := NewVideoDataset(root, VideoOptions{CaptionFile: caps, Offset: 2, N: 2, Rand: rng.New(11)})
	if err != nil {
		t.Fatalf("NewVideoDataset failed: %v", err)
	}
	if ds.Len() != 1 {
		t.Fatalf("expected 1 clip, got %d", ds.Len())
	}
	for i := 0; i < 20; i++ {
		s, err := ds.Example(0)
		if err != nil {
			t.Fatalf("Example failed: %v", err)
		}
		img, _ := s.Image(KeyImage)
		prev, _ := s.Image(KeyPrev)
		if prev.C != 6 || prev.H != 2 || prev.W != 2 {
			t.Fatalf("prev should stack 2 frames along channels, got %v", prev.Shape())
		}
		cur := frameOf(img.Pix[0])
		if cur < 6 || cur > 19 {
			t.Fatalf("current frame %d outside [6, 19]", cur)
		}
		if got := frameOf(prev.Pix[0]); got != cur-2 {
			t.Fatalf("first previous frame = %d, want %d", got, cur-2)
		}
		if got := frameOf(prev.Pix[3]); got != cur-4 {
			t.Fatalf("second previous frame = %d, want %d", got, cur-4)
		}
		if s.Text(KeyText) != "a cat" {
			t.Fatalf("caption = %q", s.Text(KeyText))
		}
	}
}

func TestVideoDatasetFailures(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "clips")
	writeClip(t, filepath.Join(root, "short"), 5)
	writeClip(t, filepath.Join(root, "uncaptioned"), 20)
	caps := filepath.Join(tmp, "caps.csv")
	writeFile(t, caps, "short,too short\n")

	ds, err := NewVideoDataset(root, VideoOptions{CaptionFile: caps})
	if err != nil {
		t.Fatalf("NewVideoDataset failed: %v", err)
	}
	if ds.Len() != 2 {
		t.Fatalf("expected 2 clips, got %d", ds.Len())
	}
	if _, err := ds.Example(0); err == nil {
		t.Fatalf("expected error for clip shorter than the frame offset")
	}
	if _, err := ds.Example(1); err == nil {
		t.Fatalf("expected error for clip without caption")
	}
	if _, err := NewVideoDataset(root, VideoOptions{CaptionFile: filepath.Join(tmp, "missing.csv")}); err == nil {
		t.Fatalf("expected error for missing caption file")
	}
}
