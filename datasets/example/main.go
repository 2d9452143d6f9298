package main

// Example command that builds an image folder dataset, reads a few examples
// and turns a small batch into a gomlx tensor with the loader helpers.
//
// Usage:
//   go run ./datasets/example -root path/to/images -ext png
//
// Images are found recursively under -root. Each one is resized and center
// cropped to -size and normalized to [-1, 1].

import (
	"flag"
	"fmt"
	"log"

	"github.com/Noofbiz/viewsynth/datasets"
	"github.com/Noofbiz/viewsynth/imaging"
	"github.com/Noofbiz/viewsynth/loader"
)

func main() {
	root := flag.String("root", "images", "directory to search for images")
	ext := flag.String("ext", "jpg", "image file extension")
	size := flag.Int("size", 256, "output image size")
	caption := flag.String("caption", "a photo", "caption used for every image")
	flag.Parse()

	ds, err := datasets.NewFolderData(*root, datasets.FolderOptions{
		Ext:            []string{*ext},
		DefaultCaption: *caption,
		ReturnPaths:    true,
		Transforms: []imaging.Transform{
			imaging.Resize{Size: *size},
			imaging.CenterCrop{Size: *size},
		},
	})
	if err != nil {
		log.Fatalf("failed to open folder dataset: %v", err)
	}
	fmt.Printf("Found %d images under %s\n", ds.Len(), *root)

	n := min(8, ds.Len())
	if n == 0 {
		return
	}

	imgs := make([]*imaging.Float, 0, n)
	for i := range n {
		s, err := ds.Example(i)
		if err != nil {
			log.Fatalf("failed to load example %d: %v", i, err)
		}
		img, _ := s.Image(datasets.KeyImage)
		fmt.Printf("  %d: %s %v %q\n", i, s.Text(datasets.KeyPath), img.Shape(), s.Text(datasets.KeyText))
		imgs = append(imgs, img)
	}

	flat, err := loader.MakeImageBatchFlat(imgs)
	if err != nil {
		log.Fatalf("failed to make image batch flat: %v", err)
	}
	t := flat.ToGomlxTensor()
	fmt.Printf("Created image tensor: %s\n", t.Shape())

	// The same batch through a Loader, which also collates the captions.
	l, err := loader.New(ds, loader.Options{Name: "example", BatchSize: n})
	if err != nil {
		log.Fatalf("failed to create loader: %v", err)
	}
	b, err := l.Next()
	if err != nil {
		log.Fatalf("failed to read batch: %v", err)
	}
	fmt.Printf("Loader batch: %d examples, image %s, %d captions\n",
		b.Size, b.Tensors[datasets.KeyImage].Shape(), len(b.Text[datasets.KeyText]))
}
