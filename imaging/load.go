package imaging

import (
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/pkg/errors"
	_ "golang.org/x/image/webp"
)

// White is the default background used to fill transparent render pixels.
var White = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// Load decodes the image at path and returns an opaque *image.NRGBA.
//
// If background is non-nil, pixels whose alpha is exactly zero are replaced
// by background. Every other pixel keeps its straight (non-premultiplied)
// color and the alpha channel is dropped.
func Load(path string, background *color.NRGBA) (*image.NRGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open image %q", path)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decode image %q", path)
	}
	return Flatten(src, background), nil
}

// Flatten converts src to an opaque NRGBA image. See Load for the meaning of
// background.
func Flatten(src image.Image, background *color.NRGBA) *image.NRGBA {
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			if c.A == 0 && background != nil {
				c = *background
			}
			c.A = 0xff
			dst.SetNRGBA(x, y, c)
		}
	}
	return dst
}
