//go:build goexperiment.jsonv2

package json

import (
	"bytes"
	jsonv2 "encoding/json/v2"
	"encoding/json/jsontext"
	"io"
)

// Decoder reads the whole stream and unmarshals it in one go, which is all
// the registry responses we decode need.
type Decoder struct {
	r io.Reader
}

func (d *Decoder) Decode(v any) error {
	data, err := io.ReadAll(d.r)
	if err != nil {
		return err
	}
	return jsonv2.Unmarshal(data, v)
}

type Encoder struct {
	w io.Writer
}

func (e *Encoder) Encode(v any) error {
	data, err := jsonv2.Marshal(v)
	if err != nil {
		return err
	}
	_, err = e.w.Write(data)
	return err
}

// RawMessage is jsontext.Value so embedded documents such as container
// configs are written out verbatim rather than base64-encoded.
type RawMessage = jsontext.Value

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func Unmarshal(data []byte, v any) error {
	return jsonv2.Unmarshal(data, v)
}

func Marshal(v any) ([]byte, error) {
	return jsonv2.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return jsonv2.Marshal(v, jsontext.WithIndentPrefix(prefix), jsontext.WithIndent(indent))
}

func Indent(dst *bytes.Buffer, src []byte, prefix, indent string) error {
	var v any
	if err := jsonv2.Unmarshal(src, &v); err != nil {
		return err
	}
	out, err := MarshalIndent(v, prefix, indent)
	if err != nil {
		return err
	}
	dst.Write(out)
	return nil
}
