package imaging

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/Noofbiz/viewsynth/rng"
)

// Transform is a geometric image transform. Random transforms draw from src.
type Transform interface {
	Apply(img image.Image, src rng.Source) image.Image
	String() string
}

// Resize scales the image so its shorter side equals Size, keeping the aspect
// ratio. Images already at that size are returned unchanged.
type Resize struct {
	Size int
}

func (r Resize) Apply(img image.Image, _ rng.Source) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	var ow, oh int
	if w <= h {
		if w == r.Size {
			return img
		}
		ow, oh = r.Size, int(float64(r.Size)*float64(h)/float64(w))
	} else {
		if h == r.Size {
			return img
		}
		ow, oh = int(float64(r.Size)*float64(w)/float64(h)), r.Size
	}
	return scale(img, ow, oh)
}

func (r Resize) String() string { return fmt.Sprintf("Resize(%d)", r.Size) }

// ResizeExact scales the image to exactly Width×Height.
type ResizeExact struct {
	Width, Height int
}

func (r ResizeExact) Apply(img image.Image, _ rng.Source) image.Image {
	b := img.Bounds()
	if b.Dx() == r.Width && b.Dy() == r.Height {
		return img
	}
	return scale(img, r.Width, r.Height)
}

func (r ResizeExact) String() string { return fmt.Sprintf("ResizeExact(%dx%d)", r.Width, r.Height) }

// CenterCrop cuts a Size×Size square out of the middle of the image. Images
// smaller than Size are padded with zeros.
type CenterCrop struct {
	Size int
}

func (c CenterCrop) Apply(img image.Image, _ rng.Source) image.Image {
	b := img.Bounds()
	top := int(math.RoundToEven(float64(b.Dy()-c.Size) / 2))
	left := int(math.RoundToEven(float64(b.Dx()-c.Size) / 2))
	return crop(img, left, top, c.Size, c.Size)
}

func (c CenterCrop) String() string { return fmt.Sprintf("CenterCrop(%d)", c.Size) }

// RandomCrop cuts a Size×Size square at a uniformly random position. Images
// smaller than Size along an axis are center padded on that axis.
type RandomCrop struct {
	Size int
}

func (c RandomCrop) Apply(img image.Image, src rng.Source) image.Image {
	b := img.Bounds()
	src = rng.Or(src)
	top := offset(src, b.Dy(), c.Size)
	left := offset(src, b.Dx(), c.Size)
	return crop(img, left, top, c.Size, c.Size)
}

func (c RandomCrop) String() string { return fmt.Sprintf("RandomCrop(%d)", c.Size) }

func offset(src rng.Source, have, want int) int {
	if have <= want {
		return int(math.RoundToEven(float64(have-want) / 2))
	}
	return src.IntN(have - want + 1)
}

// Compose applies transforms in order.
type Compose []Transform

func (c Compose) Apply(img image.Image, src rng.Source) image.Image {
	for _, t := range c {
		img = t.Apply(img, src)
	}
	return img
}

func (c Compose) String() string { return fmt.Sprintf("Compose%v", []Transform(c)) }

// Pipeline is the full per-image preprocessing: transforms followed by
// normalization to a Float in [-1, 1].
type Pipeline struct {
	Transforms []Transform
}

// Process runs the pipeline on img.
func (p Pipeline) Process(img image.Image, src rng.Source) *Float {
	return ToFloat(Compose(p.Transforms).Apply(img, src))
}

// newLike allocates a destination image of the same kind as img.
func newLike(img image.Image, w, h int) draw.Image {
	if f, ok := img.(*Float); ok {
		return NewFloat(h, w, f.C)
	}
	return image.NewNRGBA(image.Rect(0, 0, w, h))
}

func scale(img image.Image, w, h int) image.Image {
	dst := newLike(img, w, h)
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// crop copies the w×h window whose top-left corner is (left, top) relative to
// img's origin. Parts of the window outside img stay zero.
func crop(img image.Image, left, top, w, h int) image.Image {
	b := img.Bounds()
	if left == 0 && top == 0 && b.Dx() == w && b.Dy() == h {
		return img
	}
	dst := newLike(img, w, h)
	if f, ok := img.(*Float); ok {
		cropFloat(dst.(*Float), f, left, top)
		return dst
	}
	draw.Draw(dst, dst.Bounds(), img, b.Min.Add(image.Pt(left, top)), draw.Src)
	return dst
}

func cropFloat(dst, src *Float, left, top int) {
	for y := 0; y < dst.H; y++ {
		sy := y + top
		if sy < 0 || sy >= src.H {
			continue
		}
		for x := 0; x < dst.W; x++ {
			sx := x + left
			if sx < 0 || sx >= src.W {
				continue
			}
			copy(dst.Pix[dst.Index(x, y):dst.Index(x, y)+dst.C], src.Pix[src.Index(sx, sy):src.Index(sx, sy)+src.C])
		}
	}
}
