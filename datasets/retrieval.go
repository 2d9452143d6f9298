package datasets

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/Noofbiz/viewsynth/imaging"
	"github.com/Noofbiz/viewsynth/rng"
)

// IdRetrieval is a FolderData whose samples also carry a retrieved match.
// The retrieval file maps each image's base name to a list of candidate
// matches, relative to the folder root.
type IdRetrieval struct {
	*FolderData
	matches map[string][]string
}

var _ Dataset = (*IdRetrieval)(nil)

// NewIdRetrieval loads the retrieval file and scans root like NewFolderData.
func NewIdRetrieval(retrievalFile, root string, opts FolderOptions) (*IdRetrieval, error) {
	data, err := os.ReadFile(retrievalFile)
	if err != nil {
		return nil, errors.Wrapf(err, "read retrieval file %q", retrievalFile)
	}
	if !gjson.ValidBytes(data) {
		return nil, errors.Errorf("retrieval file %q is not valid JSON", retrievalFile)
	}
	matches := make(map[string][]string)
	gjson.ParseBytes(data).ForEach(func(key, value gjson.Result) bool {
		list := []string{}
		for _, m := range value.Array() {
			list = append(list, m.String())
		}
		matches[key.String()] = list
		return true
	})

	folder, err := NewFolderData(root, opts)
	if err != nil {
		return nil, err
	}
	return &IdRetrieval{FolderData: folder, matches: matches}, nil
}

// Example returns the FolderData sample plus "match": image and a random
// match concatenated along channels (H×W×6). Items without matches are
// matched with themselves.
func (d *IdRetrieval) Example(i int) (Sample, error) {
	sample, err := d.FolderData.Example(i)
	if err != nil {
		return nil, err
	}
	if i >= len(d.paths) {
		return nil, errors.Errorf("retrieval needs a scanned image for index %d", i)
	}
	key := filepath.Base(d.paths[i])
	candidates, ok := d.matches[key]
	if !ok {
		return nil, errors.Errorf("no retrieval entry for %q", key)
	}
	retrieved := key
	if len(candidates) > 0 {
		retrieved = rng.Choice(rng.Or(d.opts.Rand), candidates)
	}
	match, err := d.load(filepath.Join(d.root, retrieved))
	if err != nil {
		return nil, err
	}
	image, ok := sample.Image(KeyImage)
	if !ok {
		return nil, errors.Errorf("sample %d has no image", i)
	}
	combined, err := imaging.ConcatChannels(image, match)
	if err != nil {
		return nil, errors.WithMessagef(err, "match for %q", key)
	}
	sample[KeyMatch] = combined
	return sample, nil
}
