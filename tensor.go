// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package weights

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/nlpodyssey/weights/dtype"
	"github.com/nlpodyssey/weights/manifest"
)

// A Tensor is a named weight with data fully loaded in memory.
//
// For a correctly formed Tensor, the value of DType and the type of Data
// must match each other, according to the following pairs:
//
//	DType     | Data type
//	----------+------------
//	Float32   | []float32
//	Int32     | []int32
//	Bool      | []bool
//	String    | [][]byte
//	Complex64 | []complex64
//
// String values are raw bytes, conventionally UTF-8.
type Tensor struct {
	name  string
	dType dtype.DType
	shape manifest.Shape
	data  any
}

// NewTensor performs validity checks over the given properties and returns
// a Tensor with those properties if validation succeeds, otherwise an error.
//
// If the error returned is not nil, the Tensor is a zero-value that
// must not be used.
//
// Here is an overview of the rules applied for validation:
//   - an empty name ("") is allowed
//   - the dType must be valid (see dtype.DType.Validate)
//   - an empty or nil shape is allowed (a scalar value is implied)
//   - the shape must not contain negative values
//   - the type of data must match the dType, according to the pairs listed
//     on Tensor documentation
//   - the number of data elements must match the shape
//
// The given shape is copied before being assigned to the Tensor, while
// data is NOT copied.
func NewTensor(name string, dType dtype.DType, shape []int, data any) (Tensor, error) {
	dataLen, err := checkTypesAndGetDataLen(dType, data)
	if err != nil {
		return Tensor{}, err
	}
	shapeSize, err := manifest.Shape(shape).Size()
	if err != nil {
		return Tensor{}, err
	}
	if shapeSize != dataLen {
		return Tensor{}, fmt.Errorf("the size computed from shape (%d) does not match data length (%d)", shapeSize, dataLen)
	}
	if data == nil {
		data = zeroData(dType)
	}
	return Tensor{
		name:  name,
		dType: dType,
		shape: manifest.Shape(shape).Clone(),
		data:  data,
	}, nil
}

// MustNewTensor is like NewTensor but panics on error.
func MustNewTensor(name string, dType dtype.DType, shape []int, data any) Tensor {
	t, err := NewTensor(name, dType, shape, data)
	if err != nil {
		panic(err)
	}
	return t
}

func checkTypesAndGetDataLen(dt dtype.DType, data any) (int, error) {
	switch dt {
	case dtype.Float32:
		return resolveDataLen[float32](dt, data)
	case dtype.Int32:
		return resolveDataLen[int32](dt, data)
	case dtype.Bool:
		return resolveDataLen[bool](dt, data)
	case dtype.String:
		return resolveDataLen[[]byte](dt, data)
	case dtype.Complex64:
		return resolveDataLen[complex64](dt, data)
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedDType, dt)
}

func resolveDataLen[T any](dt dtype.DType, data any) (int, error) {
	if data == nil {
		return 0, nil
	}
	y, ok := data.([]T)
	if !ok {
		return 0, fmt.Errorf("expected DType %s to match data type %T, actual data type %T", dt, y, data)
	}
	return len(y), nil
}

func zeroData(dt dtype.DType) any {
	switch dt {
	case dtype.Float32:
		return []float32{}
	case dtype.Int32:
		return []int32{}
	case dtype.Bool:
		return []bool{}
	case dtype.String:
		return [][]byte{}
	case dtype.Complex64:
		return []complex64{}
	}
	return nil
}

// The Name of the tensor.
func (t Tensor) Name() string {
	return t.name
}

// DType returns the data type of the tensor.
func (t Tensor) DType() dtype.DType {
	return t.dType
}

// The Shape of the tensor.
//
// If the shape is zero-length, it returns nil, otherwise a new slice
// is allocated and returned.
func (t Tensor) Shape() []int {
	return t.shape.Clone()
}

// The Data of the tensor.
// Possible values are documented on the main Tensor type.
//
// The value returned is NOT a copy.
func (t Tensor) Data() any {
	return t.data
}

// Spec returns the WeightSpec describing the tensor, unquantized.
func (t Tensor) Spec() manifest.WeightSpec {
	return manifest.WeightSpec{
		Name:  t.name,
		DType: t.dType,
		Shape: t.shape.Clone(),
	}
}

// ByteLen returns the size of the tensor's encoding.
func (t Tensor) ByteLen() int {
	switch v := t.data.(type) {
	case []float32:
		return 4 * len(v)
	case []int32:
		return 4 * len(v)
	case []bool:
		return len(v)
	case [][]byte:
		n := 0
		for _, s := range v {
			n += 4 + len(s)
		}
		return n
	case []complex64:
		return 8 * len(v)
	}
	return 0
}

// Values returns the tensor data as a slice of T, and whether the type
// matched.
func Values[T float32 | int32 | bool | []byte | complex64](t Tensor) ([]T, bool) {
	v, ok := t.data.([]T)
	return v, ok
}

// Strings returns the elements of a String tensor converted to strings.
func (t Tensor) Strings() ([]string, bool) {
	v, ok := t.data.([][]byte)
	if !ok {
		return nil, false
	}
	out := make([]string, len(v))
	for i, s := range v {
		out[i] = string(s)
	}
	return out, true
}

// WriteTo writes the tensor's encoding to w.
// It satisfies io.WriterTo interface.
func (t Tensor) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	n, err := t.writeTo(bw)
	if e := bw.Flush(); e != nil && err == nil {
		err = e
	}
	return n, err
}

func (t Tensor) writeTo(w io.Writer) (int64, error) {
	// Elements are written in batches to bound memory usage.
	const batch = 4096
	var (
		buf     []byte
		written int64
	)
	flush := func() error {
		n, err := w.Write(buf)
		written += int64(n)
		buf = buf[:0]
		return err
	}
	err := t.appendChunks(&buf, batch, flush)
	if err == nil && len(buf) > 0 {
		err = flush()
	}
	return written, err
}

// AppendBinary appends the tensor's encoding to dst.
func (t Tensor) AppendBinary(dst []byte) ([]byte, error) {
	err := t.appendChunks(&dst, 0, nil)
	return dst, err
}

// appendChunks appends the encoding to *buf, calling flush every batch
// elements when flush is not nil.
func (t Tensor) appendChunks(buf *[]byte, batch int, flush func() error) error {
	switch v := t.data.(type) {
	case []float32:
		return appendElements(buf, v, batch, flush, appendF32)
	case []int32:
		return appendElements(buf, v, batch, flush, appendI32)
	case []bool:
		return appendElements(buf, v, batch, flush, appendBool)
	case [][]byte:
		return appendElements(buf, v, batch, flush, appendString)
	case []complex64:
		return appendElements(buf, v, batch, flush, appendC64)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedDType, t.dType)
}

func appendElements[T any](buf *[]byte, v []T, batch int, flush func() error, app func([]byte, T) []byte) error {
	for i, x := range v {
		*buf = app(*buf, x)
		if flush != nil && (i+1)%batch == 0 {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

func appendF32(b []byte, x float32) []byte {
	return binary.LittleEndian.AppendUint32(b, math.Float32bits(x))
}

func appendI32(b []byte, x int32) []byte {
	return binary.LittleEndian.AppendUint32(b, uint32(x))
}

func appendBool(b []byte, x bool) []byte {
	if x {
		return append(b, 1)
	}
	return append(b, 0)
}

// appendString writes a u32 length prefix followed by the raw bytes.
func appendString(b []byte, x []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(len(x)))
	return append(b, x...)
}

// appendC64 writes the real part followed by the imaginary part.
func appendC64(b []byte, x complex64) []byte {
	b = binary.LittleEndian.AppendUint32(b, math.Float32bits(real(x)))
	return binary.LittleEndian.AppendUint32(b, math.Float32bits(imag(x)))
}
