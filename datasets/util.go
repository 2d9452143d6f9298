package datasets

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// findFiles returns every regular file under root whose name ends in
// "."+ext, searched recursively and sorted.
func findFiles(root, ext string) ([]string, error) {
	suffix := "." + strings.TrimPrefix(ext, ".")
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), suffix) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walk %q", root)
	}
	sort.Strings(out)
	return out, nil
}

// findFilesMulti concatenates findFiles for each extension, in extension order.
func findFilesMulti(root string, exts []string) ([]string, error) {
	var out []string
	for _, e := range exts {
		paths, err := findFiles(root, e)
		if err != nil {
			return nil, err
		}
		out = append(out, paths...)
	}
	return out, nil
}

// subdirs returns the immediate subdirectories of dir, sorted.
func subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read dir %q", dir)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func defaultExt(exts []string, def string) []string {
	if len(exts) == 0 {
		return []string{def}
	}
	return exts
}
