// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package shard provides a read-only, logically contiguous view over an
// ordered list of discontiguous byte buffers.
package shard

import (
	"fmt"
	"io"
	"sort"
	"sync/atomic"
)

// A Shard is one backing buffer and the [Start, End) range it covers
// within the virtual concatenation.
type Shard struct {
	Data  []byte
	Start int64
	End   int64
}

// Buffer is a virtual byte array made of ordered, contiguous shards.
//
// The shard buffers are borrowed from the caller and never copied or
// modified. A Buffer is immutable after construction and safe for
// concurrent use.
type Buffer struct {
	shards     []Shard
	byteLength int64
	// uniformSize is the length shared by every shard but the last,
	// or 0 when shard sizes differ.
	uniformSize int64
	// prevShard is a lookup hint for sequential access. Concurrent
	// readers may overwrite each other's hint, which only costs a
	// binary search.
	prevShard atomic.Int64
}

// New creates a Buffer over the given buffers, in order.
// Zero buffers produce an empty Buffer.
func New(bufs ...[]byte) *Buffer {
	b := &Buffer{shards: make([]Shard, len(bufs))}
	start := int64(0)
	for i, data := range bufs {
		end := start + int64(len(data))
		b.shards[i] = Shard{Data: data, Start: start, End: end}
		start = end
	}
	b.byteLength = start
	b.uniformSize = uniformShardSize(bufs)
	return b
}

func uniformShardSize(bufs [][]byte) int64 {
	if len(bufs) == 0 {
		return 0
	}
	size := len(bufs[0])
	if len(bufs) == 1 {
		return int64(size)
	}
	for _, data := range bufs[1 : len(bufs)-1] {
		if len(data) != size {
			return 0
		}
	}
	// The last shard may be shorter but never longer.
	if len(bufs[len(bufs)-1]) > size {
		return 0
	}
	return int64(size)
}

// Len returns the total number of bytes.
func (b *Buffer) Len() int64 {
	return b.byteLength
}

// NumShards returns the number of backing buffers.
func (b *Buffer) NumShards() int {
	return len(b.shards)
}

// Shards returns the shard list. The returned slice must not be modified.
func (b *Buffer) Shards() []Shard {
	return b.shards
}

// Slice copies the bytes in [start, end) into a new buffer.
//
// A negative start is treated as 0 and end is capped to Len. An empty or
// inverted range yields a zero-length, non-nil slice. Exactly one
// allocation is made regardless of how many shards the range spans.
func (b *Buffer) Slice(start, end int64) []byte {
	start = max(start, 0)
	end = min(end, b.byteLength)
	if end <= start {
		return []byte{}
	}

	i := b.FindShard(start)
	if i < 0 {
		panic(fmt.Errorf("shard: no shard contains byte %d of %d", start, b.byteLength))
	}

	out := make([]byte, end-start)
	n := 0
	for ; i < len(b.shards); i++ {
		s := &b.shards[i]
		from := max(start, s.Start) - s.Start
		to := min(end, s.End) - s.Start
		n += copy(out[n:], s.Data[from:to])
		if s.End >= end {
			break
		}
	}
	return out
}

// FindShard returns the index of the shard containing the byte at index i,
// or -1 if i is out of range.
func (b *Buffer) FindShard(i int64) int {
	if len(b.shards) == 0 || i < 0 || i >= b.byteLength {
		return -1
	}
	if b.uniformSize > 0 {
		return int(i / b.uniformSize)
	}

	if prev := int(b.prevShard.Load()); prev < len(b.shards) && b.shards[prev].compare(i) == 0 {
		return prev
	}

	idx := sort.Search(len(b.shards), func(k int) bool {
		return b.shards[k].compare(i) <= 0
	})
	if idx == len(b.shards) || b.shards[idx].compare(i) != 0 {
		return -1
	}
	b.prevShard.Store(int64(idx))
	return idx
}

// compare orders the byte index i relative to the shard:
// -1 before it, 1 after it, 0 inside it.
func (s *Shard) compare(i int64) int {
	switch {
	case i < s.Start:
		return -1
	case i >= s.End:
		return 1
	}
	return 0
}

// ReadAt satisfies io.ReaderAt interface.
func (b *Buffer) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("shard: negative offset %d", off)
	}
	if off >= b.byteLength {
		return 0, io.EOF
	}
	end := off + int64(len(p))
	n := copy(p, b.Slice(off, end))
	if end > b.byteLength {
		return n, io.EOF
	}
	return n, nil
}

// Reader returns an io.Reader over the whole Buffer.
func (b *Buffer) Reader() io.Reader {
	return io.NewSectionReader(b, 0, b.byteLength)
}
