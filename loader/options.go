// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loader

import (
	"log/slog"

	"github.com/nlpodyssey/weights"
	"github.com/nlpodyssey/weights/internal/envconfig"
)

// Option configures loading and saving.
type Option func(*config)

type config struct {
	concurrency int
	shardSize   int
	logger      *slog.Logger
	encodeOpts  []weights.EncodeOption
}

func newConfig(opts []Option) config {
	c := config{
		concurrency: int(envconfig.LoadConcurrency()),
		shardSize:   int(envconfig.ShardSize()),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithConcurrency bounds the number of shard files read or written at
// once. Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithShardSize sets the maximum size of the shard files written by
// Save. Values below 1 are ignored.
func WithShardSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.shardSize = n
		}
	}
}

// WithLogger sets the logger. A nil logger keeps the default.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithEncodeOptions passes options to weights.Encode when saving.
func WithEncodeOptions(opts ...weights.EncodeOption) Option {
	return func(c *config) {
		c.encodeOpts = append(c.encodeOpts, opts...)
	}
}
