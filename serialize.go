// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package weights

import (
	"fmt"
	"io"
	"math"

	"github.com/nlpodyssey/weights/dtype"
	"github.com/nlpodyssey/weights/manifest"
)

// EncodeOption configures Encode and EncodeTo.
type EncodeOption func(*encodeConfig)

type encodeConfig struct {
	quantization dtype.QuantDType
	// quantizeNames restricts quantization to the listed weights.
	quantizeNames map[string]bool
}

// WithQuantization stores float32 and int32 tensors quantized to q.
//
// If names are given, only those tensors are quantized and each must
// support q. Otherwise every tensor supporting q is quantized and the
// others are stored as they are.
func WithQuantization(q dtype.QuantDType, names ...string) EncodeOption {
	return func(c *encodeConfig) {
		c.quantization = q
		if len(names) > 0 {
			c.quantizeNames = make(map[string]bool, len(names))
			for _, n := range names {
				c.quantizeNames[n] = true
			}
		}
	}
}

// Encode serializes tensors into one flat buffer, in the order they
// appear in the NamedTensors, and returns the specs needed to decode it.
//
// The layout has no header: it is exactly the concatenation of the
// weight encodings. Fixed-size values are little-endian (bool as one
// byte, complex64 as real then imaginary float32). Each string element is
// a u32 little-endian length followed by its bytes, in row-major order.
//
// If group is not empty, it is set on every returned spec.
func Encode(tensors *NamedTensors, group string, opts ...EncodeOption) ([]byte, []manifest.WeightSpec, error) {
	prepared, err := prepare(tensors, group, opts)
	if err != nil {
		return nil, nil, err
	}
	size := 0
	for _, p := range prepared {
		if p.spec.Quantization != nil {
			size += len(p.quantized)
		} else {
			size += p.tensor.ByteLen()
		}
	}
	buf := make([]byte, 0, size)
	for _, p := range prepared {
		if buf, err = p.appendTo(buf); err != nil {
			return nil, nil, err
		}
	}
	return buf, specsOf(prepared), nil
}

// EncodeTo is like Encode, but streams the encoding to w instead of
// allocating the whole buffer.
func EncodeTo(w io.Writer, tensors *NamedTensors, group string, opts ...EncodeOption) ([]manifest.WeightSpec, error) {
	prepared, err := prepare(tensors, group, opts)
	if err != nil {
		return nil, err
	}
	for _, p := range prepared {
		if err := p.writeTo(w); err != nil {
			return nil, fmt.Errorf("failed to write data of tensor %q: %w", p.spec.Name, err)
		}
	}
	return specsOf(prepared), nil
}

type preparedTensor struct {
	tensor Tensor
	spec   manifest.WeightSpec
	// quantized holds the on-disk bytes of a quantized tensor.
	quantized []byte
}

func prepare(tensors *NamedTensors, group string, opts []EncodeOption) ([]preparedTensor, error) {
	var cfg encodeConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.quantization != 0 {
		if err := cfg.quantization.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnknownQuantization, err)
		}
	}

	out := make([]preparedTensor, 0, tensors.Len())
	for _, t := range tensors.All() {
		if err := t.dType.Validate(); err != nil {
			return nil, newFormatError(t.name, t.dType, ErrUnsupportedDType)
		}
		if err := checkStringLengths(t); err != nil {
			return nil, err
		}
		p := preparedTensor{tensor: t, spec: t.Spec()}
		p.spec.Group = group

		if cfg.wantsQuantization(t) {
			raw, q, err := Quantize(t, cfg.quantization)
			if err != nil {
				return nil, err
			}
			p.quantized = raw
			p.spec.Quantization = &q
		}
		out = append(out, p)
	}
	for name := range cfg.quantizeNames {
		if _, ok := tensors.Get(name); !ok {
			return nil, fmt.Errorf("tensor %q selected for quantization not found", name)
		}
	}
	return out, nil
}

func (c *encodeConfig) wantsQuantization(t Tensor) bool {
	if c.quantization == 0 {
		return false
	}
	if c.quantizeNames != nil {
		return c.quantizeNames[t.name]
	}
	return c.quantization.Supports(t.dType)
}

func checkStringLengths(t Tensor) error {
	v, ok := t.data.([][]byte)
	if !ok {
		return nil
	}
	for i, s := range v {
		if uint64(len(s)) > math.MaxUint32 {
			return newFormatError(t.name, t.dType, fmt.Errorf("string %d is too long: %d bytes", i, len(s)))
		}
	}
	return nil
}

func (p preparedTensor) appendTo(buf []byte) ([]byte, error) {
	if p.spec.Quantization != nil {
		return append(buf, p.quantized...), nil
	}
	return p.tensor.AppendBinary(buf)
}

func (p preparedTensor) writeTo(w io.Writer) error {
	if p.spec.Quantization != nil {
		_, err := w.Write(p.quantized)
		return err
	}
	n, err := p.tensor.WriteTo(w)
	if err != nil {
		return err
	}
	if expected := int64(p.tensor.ByteLen()); n != expected {
		return fmt.Errorf("expected %d written bytes, actual %d", expected, n)
	}
	return nil
}

func specsOf(prepared []preparedTensor) []manifest.WeightSpec {
	specs := make([]manifest.WeightSpec, len(prepared))
	for i, p := range prepared {
		specs[i] = p.spec
	}
	return specs
}
