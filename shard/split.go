// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package shard

import "fmt"

// Concat returns a new buffer holding all the given buffers, in order.
func Concat(bufs ...[]byte) []byte {
	size := 0
	for _, b := range bufs {
		size += len(b)
	}
	out := make([]byte, 0, size)
	for _, b := range bufs {
		out = append(out, b...)
	}
	return out
}

// Split partitions data into consecutive shards of maxSize bytes; the
// last shard holds the remainder. The shards alias data. Empty data
// yields a single empty shard, so that a group always has at least one
// path.
func Split(data []byte, maxSize int) ([][]byte, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("invalid shard size %d", maxSize)
	}
	if len(data) == 0 {
		return [][]byte{{}}, nil
	}
	out := make([][]byte, 0, (len(data)+maxSize-1)/maxSize)
	for len(data) > 0 {
		n := min(maxSize, len(data))
		out = append(out, data[:n:n])
		data = data[n:]
	}
	return out, nil
}
