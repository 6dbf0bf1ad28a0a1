// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/nlpodyssey/weights"
	"github.com/nlpodyssey/weights/dtype"
	"github.com/nlpodyssey/weights/manifest"
)

// tensorJSON is the JSON form of a tensor read by pack and written by
// decode. Strings are JSON strings and complex64 values are
// [real, imag] pairs.
type tensorJSON struct {
	Name  string          `json:"name"`
	DType dtype.DType     `json:"dtype"`
	Shape manifest.Shape  `json:"shape"`
	Data  json.RawMessage `json:"data"`
}

func readTensorsJSON(r io.Reader) (*weights.NamedTensors, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var raw []tensorJSON
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to JSON-decode tensors: %w", err)
	}
	nt, err := weights.NewNamedTensors()
	if err != nil {
		return nil, err
	}
	for _, tj := range raw {
		t, err := tj.tensor()
		if err != nil {
			return nil, fmt.Errorf("tensor %q: %w", tj.Name, err)
		}
		if err = nt.Add(t); err != nil {
			return nil, err
		}
	}
	return nt, nil
}

func (tj tensorJSON) tensor() (weights.Tensor, error) {
	var data any
	var err error
	switch tj.DType {
	case dtype.Float32:
		data, err = unmarshalData[float32](tj.Data)
	case dtype.Int32:
		data, err = unmarshalData[int32](tj.Data)
	case dtype.Bool:
		data, err = unmarshalData[bool](tj.Data)
	case dtype.String:
		var v []string
		if v, err = unmarshalData[string](tj.Data); err == nil {
			b := make([][]byte, len(v))
			for i, s := range v {
				b[i] = []byte(s)
			}
			data = b
		}
	case dtype.Complex64:
		var v [][2]float32
		if v, err = unmarshalData[[2]float32](tj.Data); err == nil {
			c := make([]complex64, len(v))
			for i, p := range v {
				c[i] = complex(p[0], p[1])
			}
			data = c
		}
	default:
		return weights.Tensor{}, fmt.Errorf("%w: %s", weights.ErrUnsupportedDType, tj.DType)
	}
	if err != nil {
		return weights.Tensor{}, err
	}
	return weights.NewTensor(tj.Name, tj.DType, tj.Shape, data)
}

func unmarshalData[T any](raw json.RawMessage) ([]T, error) {
	v := []T{}
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	return v, nil
}

func writeTensorsJSON(w io.Writer, nt *weights.NamedTensors) error {
	out := make([]tensorJSON, 0, nt.Len())
	for _, t := range nt.All() {
		data, err := marshalData(t)
		if err != nil {
			return fmt.Errorf("tensor %q: %w", t.Name(), err)
		}
		out = append(out, tensorJSON{Name: t.Name(), DType: t.DType(), Shape: t.Shape(), Data: data})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func marshalData(t weights.Tensor) ([]byte, error) {
	switch t.DType() {
	case dtype.String:
		s, _ := t.Strings()
		return json.Marshal(s)
	case dtype.Complex64:
		c, _ := weights.Values[complex64](t)
		pairs := make([][2]float32, len(c))
		for i, v := range c {
			pairs[i] = [2]float32{real(v), imag(v)}
		}
		return json.Marshal(pairs)
	}
	return json.Marshal(t.Data())
}
