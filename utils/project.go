package utils

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Project builds a new JSON document holding only the given paths of doc.
// Paths use gjson syntax and missing paths are left out.
func Project(doc []byte, paths []string) ([]byte, error) {
	if len(paths) == 0 {
		return doc, nil
	}

	result := []byte("{}")
	for i, value := range gjson.GetManyBytes(doc, paths...) {
		if !value.Exists() {
			continue
		}
		var err error
		result, err = sjson.SetRawBytes(result, paths[i], []byte(value.Raw))
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}
