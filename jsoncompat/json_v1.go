//go:build !goexperiment.jsonv2

// Package json lets the inspector build against either encoding/json or,
// with GOEXPERIMENT=jsonv2, encoding/json/v2 without touching call sites.
package json

import (
	"bytes"
	stdjson "encoding/json"
	"io"
)

type (
	Decoder    = stdjson.Decoder
	Encoder    = stdjson.Encoder
	RawMessage = stdjson.RawMessage
)

func NewDecoder(r io.Reader) *Decoder {
	return stdjson.NewDecoder(r)
}

func NewEncoder(w io.Writer) *Encoder {
	return stdjson.NewEncoder(w)
}

func Unmarshal(data []byte, v any) error {
	return stdjson.Unmarshal(data, v)
}

func Marshal(v any) ([]byte, error) {
	return stdjson.Marshal(v)
}

// MarshalIndent is used for human-readable output such as container configs.
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return stdjson.MarshalIndent(v, prefix, indent)
}

// Indent appends an indented form of the JSON document src to dst.
func Indent(dst *bytes.Buffer, src []byte, prefix, indent string) error {
	return stdjson.Indent(dst, src, prefix, indent)
}
