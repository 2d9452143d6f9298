// Package imaging decodes rendered images and applies the geometric
// transforms used by the datasets.
//
// Images leave this package as *Float: float32 pixels in [-1, 1] in
// height-width-channel order, which is the layout the model consumes. Float
// also implements draw.Image so the golang.org/x/image/draw scalers can run
// on already-normalized images.
package imaging

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
)

// Float is an H×W×C image with float32 values in [-1, 1], stored in HWC order.
type Float struct {
	H, W, C int
	Pix     []float32
}

// NewFloat allocates a zero-valued (mid-gray) image.
func NewFloat(h, w, c int) *Float {
	return &Float{H: h, W: w, C: c, Pix: make([]float32, h*w*c)}
}

// Zeros returns an image with every value set to 0.
func Zeros(h, w, c int) *Float {
	return NewFloat(h, w, c)
}

// Full returns an image with every value set to v.
func Full(h, w, c int, v float32) *Float {
	f := NewFloat(h, w, c)
	for i := range f.Pix {
		f.Pix[i] = v
	}
	return f
}

// ZerosLike returns an all-zero image of the same shape as f.
func (f *Float) ZerosLike() *Float {
	return NewFloat(f.H, f.W, f.C)
}

// Clone returns a deep copy of f.
func (f *Float) Clone() *Float {
	c := &Float{H: f.H, W: f.W, C: f.C, Pix: make([]float32, len(f.Pix))}
	copy(c.Pix, f.Pix)
	return c
}

// Shape returns [H, W, C].
func (f *Float) Shape() []int {
	return []int{f.H, f.W, f.C}
}

// SameShape reports whether f and o have identical dimensions.
func (f *Float) SameShape(o *Float) bool {
	return f.H == o.H && f.W == o.W && f.C == o.C
}

// Index returns the offset of (x, y, channel 0) in Pix.
func (f *Float) Index(x, y int) int {
	return (y*f.W + x) * f.C
}

// ColorModel implements image.Image.
func (f *Float) ColorModel() color.Model { return color.RGBA64Model }

// Bounds implements image.Image.
func (f *Float) Bounds() image.Rectangle { return image.Rect(0, 0, f.W, f.H) }

// At implements image.Image. Only the first three channels are visible; a
// single channel image reads as gray.
func (f *Float) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= f.W || y >= f.H {
		return color.RGBA64{}
	}
	i := f.Index(x, y)
	if f.C < 3 {
		v := toUint16(f.Pix[i])
		return color.RGBA64{R: v, G: v, B: v, A: 0xffff}
	}
	return color.RGBA64{
		R: toUint16(f.Pix[i]),
		G: toUint16(f.Pix[i+1]),
		B: toUint16(f.Pix[i+2]),
		A: 0xffff,
	}
}

// Set implements draw.Image.
func (f *Float) Set(x, y int, c color.Color) {
	if x < 0 || y < 0 || x >= f.W || y >= f.H {
		return
	}
	r, g, b, _ := c.RGBA()
	i := f.Index(x, y)
	if f.C < 3 {
		f.Pix[i] = fromUint16((r + g + b) / 3)
		return
	}
	f.Pix[i] = fromUint16(r)
	f.Pix[i+1] = fromUint16(g)
	f.Pix[i+2] = fromUint16(b)
}

func toUint16(v float32) uint16 {
	u := (v + 1) / 2
	switch {
	case u <= 0:
		return 0
	case u >= 1:
		return 0xffff
	}
	return uint16(u*0xffff + 0.5)
}

func fromUint16(v uint32) float32 {
	return float32(v)/0xffff*2 - 1
}

// ConcatChannels stacks images along the channel axis. All images must have
// the same height and width.
func ConcatChannels(imgs ...*Float) (*Float, error) {
	if len(imgs) == 0 {
		return nil, errors.New("no images to concatenate")
	}
	h, w := imgs[0].H, imgs[0].W
	c := 0
	for i, img := range imgs {
		if img.H != h || img.W != w {
			return nil, errors.Errorf("image %d is %dx%d, expected %dx%d", i, img.H, img.W, h, w)
		}
		c += img.C
	}
	out := NewFloat(h, w, c)
	for p := 0; p < h*w; p++ {
		off := p * c
		for _, img := range imgs {
			copy(out.Pix[off:off+img.C], img.Pix[p*img.C:(p+1)*img.C])
			off += img.C
		}
	}
	return out, nil
}

// ToFloat converts img to a normalized Float, mapping [0, 1] intensities to
// [-1, 1]. Alpha is ignored. A *Float is returned unchanged.
func ToFloat(img image.Image) *Float {
	if f, ok := img.(*Float); ok {
		return f
	}
	b := img.Bounds()
	out := NewFloat(b.Dy(), b.Dx(), 3)
	if n, ok := img.(*image.NRGBA); ok {
		for y := 0; y < out.H; y++ {
			row := n.Pix[(y+b.Min.Y-n.Rect.Min.Y)*n.Stride+(b.Min.X-n.Rect.Min.X)*4:]
			for x := 0; x < out.W; x++ {
				i := out.Index(x, y)
				out.Pix[i] = float32(row[x*4])/255*2 - 1
				out.Pix[i+1] = float32(row[x*4+1])/255*2 - 1
				out.Pix[i+2] = float32(row[x*4+2])/255*2 - 1
			}
		}
		return out
	}
	for y := 0; y < out.H; y++ {
		for x := 0; x < out.W; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := out.Index(x, y)
			out.Pix[i] = fromUint16(r)
			out.Pix[i+1] = fromUint16(g)
			out.Pix[i+2] = fromUint16(bl)
		}
	}
	return out
}
