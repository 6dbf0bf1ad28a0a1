// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package weights

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/nlpodyssey/weights/dtype"
	"github.com/nlpodyssey/weights/manifest"
	"github.com/nlpodyssey/weights/shard"
)

// DataOffsets describes the "[Begin, End)" byte range of a weight's data
// within a group payload.
type DataOffsets struct {
	// Begin is the lower bound byte index (included).
	Begin int64
	// End is the upper bound byte index (excluded).
	End int64
}

// Len returns the number of bytes in the range.
func (a DataOffsets) Len() int64 {
	return a.End - a.Begin
}

// MarshalJSON serializes a DataOffsets object as an array of two numbers.
func (a DataOffsets) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int64{a.Begin, a.End})
}

// byteAccessor gives access to the bytes of a weight, relative to the
// weight's first byte. The payload of a weight may not be fully
// available up front; peek fails with ErrTruncated when the requested
// range lies beyond the end of the data.
type byteAccessor interface {
	peek(off, n int) ([]byte, error)
}

// shardAccessor reads from a shard.Buffer starting at base.
type shardAccessor struct {
	buf  *shard.Buffer
	base int64
}

func (a shardAccessor) peek(off, n int) ([]byte, error) {
	begin := a.base + int64(off)
	end := begin + int64(n)
	if end > a.buf.Len() {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, begin, a.buf.Len())
	}
	return a.buf.Slice(begin, end), nil
}

// specByteLength computes the encoded size of a weight.
//
// Fixed-size weights derive it from shape and dtype. String weights have
// no size information outside the payload: every length prefix is read
// through acc, so computing the size costs a scan proportional to the
// number of strings.
func specByteLength(ws manifest.WeightSpec, acc byteAccessor) (int, error) {
	size, err := ws.Shape.Size()
	if err != nil {
		return 0, newFormatError(ws.Name, ws.DType, err)
	}

	if q := ws.Quantization; q != nil {
		if err := q.DType.Validate(); err != nil {
			return 0, newFormatError(ws.Name, ws.DType, fmt.Errorf("%w: %v", ErrUnknownQuantization, err))
		}
		return checkedByteSize(ws, size, q.DType.Size())
	}

	switch ws.DType {
	case dtype.Float32, dtype.Int32, dtype.Bool, dtype.Complex64:
		return checkedByteSize(ws, size, ws.DType.Size())
	case dtype.String:
		off := 0
		for i := 0; i < size; i++ {
			b, err := acc.peek(off, 4)
			if err != nil {
				return 0, newFormatError(ws.Name, ws.DType, fmt.Errorf("reading length of string %d: %w", i, err))
			}
			n := binary.LittleEndian.Uint32(b)
			if off, err = checkedAdd(off, 4, int(n)); err != nil {
				return 0, newFormatError(ws.Name, ws.DType, err)
			}
		}
		return off, nil
	}
	return 0, newFormatError(ws.Name, ws.DType, ErrUnsupportedDType)
}

func checkedByteSize(ws manifest.WeightSpec, size, elemSize int) (int, error) {
	n, err := checkedMul(size, elemSize)
	if err != nil {
		return 0, newFormatError(ws.Name, ws.DType, err)
	}
	return n, nil
}

// Layout computes the byte range of every weight within buf, in spec
// order. Specs must be listed in the same order used for encoding.
func Layout(buf *shard.Buffer, specs []manifest.WeightSpec) ([]DataOffsets, error) {
	out := make([]DataOffsets, len(specs))
	offset := int64(0)
	for i, ws := range specs {
		n, err := specByteLength(ws, shardAccessor{buf: buf, base: offset})
		if err != nil {
			return nil, err
		}
		end := offset + int64(n)
		if end > buf.Len() {
			return nil, newFormatError(ws.Name, ws.DType, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, offset, buf.Len()))
		}
		out[i] = DataOffsets{Begin: offset, End: end}
		offset = end
	}
	return out, nil
}
