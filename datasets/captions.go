package datasets

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// Captions is an ordered filename → caption table. Keys keep the order in
// which they first appear in the source file. A key may be present without a
// caption (JSON null), in which case callers fall back to a default caption.
type Captions struct {
	keys []string
	text map[string]string
	seen map[string]bool
}

func newCaptions() *Captions {
	return &Captions{text: make(map[string]string), seen: make(map[string]bool)}
}

func (c *Captions) add(key string, text *string) {
	if !c.seen[key] {
		c.seen[key] = true
		c.keys = append(c.keys, key)
	}
	if text == nil {
		delete(c.text, key)
		return
	}
	c.text[key] = *text
}

// Len returns the number of distinct keys.
func (c *Captions) Len() int { return len(c.keys) }

// Key returns the i-th key in file order.
func (c *Captions) Key(i int) string { return c.keys[i] }

// Keys returns all keys in file order.
func (c *Captions) Keys() []string { return c.keys }

// Get returns the caption for key.
func (c *Captions) Get(key string) (string, bool) {
	t, ok := c.text[key]
	return t, ok
}

// LoadCaptions reads a caption table. The format is chosen by extension:
//
//   - .json: an object mapping file name to caption
//   - .jsonl: one {"file_name": ..., "text": ...} object per line, both keys
//     required; trailing and leading newlines are trimmed from the text
//   - .csv: rows of file name, caption (no header)
func LoadCaptions(path string) (*Captions, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return loadJSONCaptions(path)
	case ".jsonl":
		return loadJSONLCaptions(path)
	case ".csv":
		return loadCSVCaptions(path)
	default:
		return nil, errors.Errorf("unrecognised caption format %q for %s", ext, path)
	}
}

func loadJSONCaptions(path string) (*Captions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read captions %q", path)
	}
	if !gjson.ValidBytes(data) {
		return nil, errors.Errorf("captions %q is not valid JSON", path)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, errors.Errorf("captions %q must be a JSON object", path)
	}
	caps := newCaptions()
	root.ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.Null {
			caps.add(key.String(), nil)
			return true
		}
		text := value.String()
		caps.add(key.String(), &text)
		return true
	})
	return caps, nil
}

func loadJSONLCaptions(path string) (*Captions, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open captions %q", path)
	}
	defer f.Close()

	caps := newCaptions()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		if !gjson.Valid(raw) {
			return nil, errors.Errorf("parse %s line %d: invalid JSON", path, line)
		}
		name, text := gjson.Get(raw, "file_name"), gjson.Get(raw, "text")
		if !name.Exists() || !text.Exists() {
			return nil, errors.Errorf("parse %s line %d: record needs file_name and text", path, line)
		}
		caption := strings.Trim(text.String(), "\n")
		caps.add(name.String(), &caption)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "read captions %q", path)
	}
	return caps, nil
}

func loadCSVCaptions(path string) (*Captions, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open captions %q", path)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	caps := newCaptions()
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read csv captions %q", path)
		}
		if len(record) != 2 {
			return nil, errors.Errorf("captions %q: expected 2 fields per row, got %d", path, len(record))
		}
		text := record[1]
		caps.add(record[0], &text)
	}
	return caps, nil
}

// LoadCaptionLines reads a text file with one caption per line.
func LoadCaptionLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read caption list %q", path)
	}
	lines := strings.SplitAfter(string(data), "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l == "" {
			continue
		}
		out = append(out, strings.Trim(l, "\n"))
	}
	return out, nil
}
