package jsonutils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ToJSON serializes a Go value to a JSON string with 2-space indentation.
func ToJSON(v interface{}) (string, error) {
	bytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(bytes)), nil
}

// DecodeBody decodes a single JSON document from r into v, rejecting unknown
// fields and trailing data.
func DecodeBody(r io.Reader, v interface{}) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return fmt.Errorf("invalid json: %w", err)
	}
	if dec.More() {
		return errors.New("invalid json: trailing data")
	}
	return nil
}
