package datasets

import "github.com/Noofbiz/viewsynth/imaging"

// TextOnly yields captions paired with a constant dummy image.
type TextOnly struct {
	captions   []string
	outputSize int
	imageKey   string
	captionKey string
}

var _ Dataset = (*TextOnly)(nil)

// NewTextOnly builds a caption-only dataset. With nGPUs > 1 every caption is
// repeated nGPUs times in a row so each device sees all of them.
func NewTextOnly(captions []string, outputSize int, imageKey, captionKey string, nGPUs int) *TextOnly {
	if imageKey == "" {
		imageKey = KeyImage
	}
	if captionKey == "" {
		captionKey = KeyText
	}
	caps := captions
	if nGPUs > 1 {
		caps = make([]string, 0, len(captions)*nGPUs)
		for _, c := range captions {
			for g := 0; g < nGPUs; g++ {
				caps = append(caps, c)
			}
		}
	}
	return &TextOnly{captions: caps, outputSize: outputSize, imageKey: imageKey, captionKey: captionKey}
}

// NewTextOnlyFromFile reads captions from a file, one per line.
func NewTextOnlyFromFile(path string, outputSize int, imageKey, captionKey string, nGPUs int) (*TextOnly, error) {
	caps, err := LoadCaptionLines(path)
	if err != nil {
		return nil, err
	}
	return NewTextOnly(caps, outputSize, imageKey, captionKey, nGPUs), nil
}

func (d *TextOnly) Len() int { return len(d.captions) }

// Example returns a black image (all -1) and caption i.
func (d *TextOnly) Example(i int) (Sample, error) {
	if err := checkIndex(i, d.Len()); err != nil {
		return nil, err
	}
	return Sample{
		d.imageKey:   imaging.Full(d.outputSize, d.outputSize, 3, -1),
		d.captionKey: d.captions[i],
	}, nil
}
