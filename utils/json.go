package utils

import (
	"encoding/json"
)

// JSONText encodes v for a TEXT column.
func JSONText[T any](v T) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ParseJSONText decodes a TEXT column into out. Empty text leaves out untouched.
func ParseJSONText[T any](text string, out *T) error {
	if text == "" {
		return nil
	}
	return json.Unmarshal([]byte(text), out)
}
