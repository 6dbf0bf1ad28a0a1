// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/nlpodyssey/weights/dtype"
)

type rawObject = map[string]any

// Read reads and parses a JSON manifest from "r".
//
// Parsing is strict: unknown keys and values of the wrong JSON type are
// rejected. Note that NO validation is performed on the obtained
// Manifest; see Manifest.Validate.
func Read(r io.Reader) (Manifest, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw []rawObject
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to JSON-decode manifest: %w", err)
	}
	// only whitespace may follow the array
	off := dec.InputOffset()
	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("unexpected data at byte offset %d", off)
		}
		return nil, fmt.Errorf("failed to JSON-decode manifest: %w", err)
	}

	m := make(Manifest, len(raw))
	for i, rg := range raw {
		var err error
		if m[i], err = convertRawGroup(rg); err != nil {
			return nil, fmt.Errorf("failed to interpret manifest group %d: %w", i, err)
		}
	}
	return m, nil
}

func convertRawGroup(raw rawObject) (g Group, err error) {
	if g.Paths, err = convertRawPaths(raw); err != nil {
		return
	}
	if g.Weights, err = convertRawWeights(raw); err != nil {
		return
	}
	if len(raw) != 2 {
		err = errors.New("JSON object contains unknown keys")
	}
	return
}

func convertRawPaths(raw rawObject) ([]string, error) {
	rawPaths, ok := raw["paths"]
	if !ok {
		return nil, errors.New(`"paths" is missing`)
	}
	rawSlice, ok := rawPaths.([]any)
	if !ok {
		return nil, errors.New(`found non-array "paths" value`)
	}
	paths := make([]string, len(rawSlice))
	for i, rawItem := range rawSlice {
		if paths[i], ok = rawItem.(string); !ok {
			return nil, fmt.Errorf(`found non-string "paths" value at index %d`, i)
		}
	}
	return paths, nil
}

func convertRawWeights(raw rawObject) ([]WeightSpec, error) {
	rawWeights, ok := raw["weights"]
	if !ok {
		return nil, errors.New(`"weights" is missing`)
	}
	rawSlice, ok := rawWeights.([]any)
	if !ok {
		return nil, errors.New(`found non-array "weights" value`)
	}
	if len(rawSlice) == 0 {
		return nil, nil
	}
	weights := make([]WeightSpec, len(rawSlice))
	for i, rawItem := range rawSlice {
		obj, ok := rawItem.(rawObject)
		if !ok {
			return nil, fmt.Errorf(`found non-object "weights" value at index %d`, i)
		}
		var err error
		if weights[i], err = convertRawWeightSpec(obj); err != nil {
			return nil, fmt.Errorf("failed to interpret weight %d: %w", i, err)
		}
	}
	return weights, nil
}

func convertRawWeightSpec(raw rawObject) (ws WeightSpec, err error) {
	known := 3
	if ws.Name, err = convertRawString(raw, "name"); err != nil {
		return
	}
	if ws.DType, err = convertRawDType(raw); err != nil {
		return
	}
	if ws.Shape, err = convertRawShape(raw); err != nil {
		return
	}
	if rq, ok := raw["quantization"]; ok {
		known++
		obj, ok := rq.(rawObject)
		if !ok {
			return ws, errors.New(`found non-object "quantization" value`)
		}
		if ws.Quantization, err = convertRawQuantization(obj); err != nil {
			return ws, fmt.Errorf(`failed to interpret "quantization": %w`, err)
		}
	}
	if _, ok := raw["group"]; ok {
		known++
		if ws.Group, err = convertRawString(raw, "group"); err != nil {
			return
		}
	}
	if len(raw) != known {
		err = errors.New("JSON object contains unknown keys")
	}
	return
}

func convertRawString(raw rawObject, key string) (string, error) {
	rawVal, ok := raw[key]
	if !ok {
		return "", fmt.Errorf("%q is missing", key)
	}
	s, ok := rawVal.(string)
	if !ok {
		return "", fmt.Errorf("found non-string %q value", key)
	}
	return s, nil
}

func convertRawDType(raw rawObject) (dtype.DType, error) {
	s, err := convertRawString(raw, "dtype")
	if err != nil {
		return 0, err
	}
	var dt dtype.DType
	if err := dt.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf(`invalid "dtype" value: %q`, s)
	}
	return dt, nil
}

func convertRawShape(raw rawObject) (Shape, error) {
	rawShape, ok := raw["shape"]
	if !ok {
		return nil, fmt.Errorf(`"shape" is missing`)
	}
	rawSlice, ok := rawShape.([]any)
	if !ok {
		return nil, errors.New(`found non-array "shape" value`)
	}
	if len(rawSlice) == 0 {
		return nil, nil
	}
	shape := make(Shape, len(rawSlice))
	for i, rawItem := range rawSlice {
		var err error
		if shape[i], err = convertNonNegInt(rawItem); err != nil {
			return nil, fmt.Errorf(`failed to interpret "shape" value at index %d: %w`, i, err)
		}
	}
	return shape, nil
}

func convertRawQuantization(raw rawObject) (*Quantization, error) {
	s, err := convertRawString(raw, "dtype")
	if err != nil {
		return nil, err
	}
	q := &Quantization{}
	if err := q.DType.UnmarshalText([]byte(s)); err != nil {
		return nil, fmt.Errorf(`invalid "dtype" value: %q`, s)
	}

	known := 1
	for _, key := range [...]string{"scale", "min"} {
		rawVal, ok := raw[key]
		if !ok {
			if q.DType.IsAffine() {
				return nil, fmt.Errorf("%q is required for %s quantization", key, q.DType)
			}
			continue
		}
		known++
		v, err := convertFloat32(rawVal)
		if err != nil {
			return nil, fmt.Errorf("failed to interpret %q value: %w", key, err)
		}
		if key == "scale" {
			q.Scale = v
		} else {
			q.Min = v
		}
	}
	if len(raw) != known {
		return nil, errors.New("JSON object contains unknown keys")
	}
	return q, nil
}

func convertNonNegInt(value any) (int, error) {
	jNum, ok := value.(json.Number)
	if !ok {
		return 0, errors.New("value is not a number")
	}
	num, err := strconv.ParseInt(jNum.String(), 10, strconv.IntSize)
	if err != nil {
		return 0, fmt.Errorf("failed to convert value %q to int: %w", jNum.String(), err)
	}
	if num < 0 {
		return 0, fmt.Errorf("value is negative: %d", num)
	}
	return int(num), nil
}

func convertFloat32(value any) (float32, error) {
	jNum, ok := value.(json.Number)
	if !ok {
		return 0, errors.New("value is not a number")
	}
	f, err := strconv.ParseFloat(jNum.String(), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to convert value %q to float: %w", jNum.String(), err)
	}
	if math.Abs(f) > math.MaxFloat32 {
		return 0, fmt.Errorf("value %q overflows float32", jNum.String())
	}
	return float32(f), nil
}
