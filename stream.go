// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package weights

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/nlpodyssey/weights/manifest"
)

// ByteSource delivers a byte stream in chunks of arbitrary size.
//
// Next returns the next chunk, or io.EOF once the stream is exhausted;
// a final chunk may be returned together with io.EOF. The returned chunk
// is only valid until the following call.
type ByteSource interface {
	Next(ctx context.Context) ([]byte, error)
}

type readerSource struct {
	r   io.Reader
	buf []byte
}

// ReaderSource adapts an io.Reader to a ByteSource reading at most
// chunkSize bytes per chunk.
func ReaderSource(r io.Reader, chunkSize int) ByteSource {
	if chunkSize <= 0 {
		chunkSize = 32 * 1024
	}
	return &readerSource{r: r, buf: make([]byte, chunkSize)}
}

func (s *readerSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n, err := s.r.Read(s.buf)
	return s.buf[:n], err
}

// Uploader is an optional destination for decoded tensors, such as a
// device memory pool. TryUpload reports whether the tensor was taken.
type Uploader interface {
	TryUpload(t Tensor) bool
}

// StreamOption configures DecodeStream.
type StreamOption func(*streamConfig)

type streamConfig struct {
	uploader        Uploader
	uploadThreshold int
	logger          *slog.Logger
}

// WithUploader hands every decoded tensor whose encoding is at least
// threshold bytes long to u. Uploaded tensors are still returned.
func WithUploader(u Uploader, threshold int) StreamOption {
	return func(c *streamConfig) {
		c.uploader = u
		c.uploadThreshold = threshold
	}
}

// WithLogger sets the logger used for per-weight debug events.
// A nil logger keeps the default.
func WithLogger(l *slog.Logger) StreamOption {
	return func(c *streamConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// DecodeStream decodes weights from a stream of bytes, arriving in
// chunks that need not align with weight or string boundaries.
//
// Weights are decoded strictly in spec order, buffering only the bytes
// of the weight being decoded plus whatever the last chunk carried past
// it. A stream ending before all weights are complete fails with
// ErrTruncated, and no tensor is returned. Cancelling ctx aborts the
// decoding at the next chunk request.
func DecodeStream(ctx context.Context, src ByteSource, specs []manifest.WeightSpec, opts ...StreamOption) (*NamedTensors, error) {
	cfg := streamConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	sr := &streamReader{ctx: ctx, src: src}
	out, err := NewNamedTensors()
	if err != nil {
		return nil, err
	}
	for _, ws := range specs {
		n, err := specByteLength(ws, sr)
		if err != nil {
			return nil, err
		}
		if err = sr.readToLength(n); err != nil {
			return nil, newFormatError(ws.Name, ws.DType, err)
		}
		t, err := decodeWeight(ws, sr.data[:n])
		if err != nil {
			return nil, err
		}
		sr.consume(n)

		if err = out.Add(t); err != nil {
			return nil, err
		}
		cfg.logger.Debug("decoded weight", "name", ws.Name, "dtype", ws.DType, "bytes", n, "buffered", len(sr.data))

		if cfg.uploader != nil && n >= cfg.uploadThreshold && cfg.uploader.TryUpload(t) {
			cfg.logger.Debug("uploaded weight", "name", ws.Name, "bytes", n)
		}
	}
	return out, nil
}

// streamReader accumulates stream chunks. Offsets passed to peek are
// relative to the first unconsumed byte, which is the start of the
// weight being decoded.
type streamReader struct {
	ctx  context.Context
	src  ByteSource
	data []byte
	eof  bool
}

// maxEmptyChunks bounds consecutive empty chunks before a source is
// considered stuck.
const maxEmptyChunks = 100

// readToLength pulls chunks until at least n bytes are buffered.
func (s *streamReader) readToLength(n int) error {
	empty := 0
	for len(s.data) < n {
		if s.eof {
			return fmt.Errorf("%w: stream ended after %d of %d bytes", ErrTruncated, len(s.data), n)
		}
		if err := s.ctx.Err(); err != nil {
			return err
		}
		chunk, err := s.src.Next(s.ctx)
		s.data = append(s.data, chunk...)
		switch {
		case errors.Is(err, io.EOF):
			s.eof = true
		case err != nil:
			return fmt.Errorf("failed to read stream: %w", err)
		case len(chunk) == 0:
			if empty++; empty >= maxEmptyChunks {
				return fmt.Errorf("failed to read stream: %w", io.ErrNoProgress)
			}
		default:
			empty = 0
		}
	}
	return nil
}

func (s *streamReader) peek(off, n int) ([]byte, error) {
	if err := s.readToLength(off + n); err != nil {
		return nil, err
	}
	return s.data[off : off+n], nil
}

// consume drops the first n buffered bytes.
func (s *streamReader) consume(n int) {
	s.data = s.data[n:]
	if len(s.data) == 0 {
		s.data = nil
	}
}
