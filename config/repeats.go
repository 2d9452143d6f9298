package config

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/Noofbiz/viewsynth/datasets"
)

// OrderedRepeats is the "paths" field of a multi-folder dataset. It accepts
// either a list of folders or an object mapping folder to repeat count; the
// object's key order is kept.
type OrderedRepeats struct {
	Folders []datasets.FolderSpec
	// Repeated is set when the JSON was an object.
	Repeated bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *OrderedRepeats) UnmarshalJSON(data []byte) error {
	res := gjson.ParseBytes(data)
	o.Folders = nil
	o.Repeated = false
	switch {
	case res.IsArray():
		for _, v := range res.Array() {
			if v.Type != gjson.String {
				return errors.Errorf("folder list entries must be strings, got %s", v.Raw)
			}
			o.Folders = append(o.Folders, datasets.FolderSpec{Path: v.String(), Repeats: 1})
		}
	case res.IsObject():
		o.Repeated = true
		var err error
		res.ForEach(func(key, value gjson.Result) bool {
			if value.Type != gjson.Number {
				err = errors.Errorf("repeat count for %q must be a number, got %s", key.String(), value.Raw)
				return false
			}
			o.Folders = append(o.Folders, datasets.FolderSpec{Path: key.String(), Repeats: int(value.Int())})
			return true
		})
		return err
	case res.Type == gjson.Null:
	default:
		return errors.Errorf("paths must be a list or an object, got %s", res.Raw)
	}
	return nil
}

// MarshalJSON writes a list when no folder repeats, an object otherwise.
func (o OrderedRepeats) MarshalJSON() ([]byte, error) {
	if !o.Repeated {
		paths := make([]string, len(o.Folders))
		for i, f := range o.Folders {
			paths[i] = f.Path
		}
		return json.Marshal(paths)
	}
	buf := []byte{'{'}
	for i, f := range o.Folders {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(f.Path)
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = strconv.AppendInt(buf, int64(f.Repeats), 10)
	}
	return append(buf, '}'), nil
}
