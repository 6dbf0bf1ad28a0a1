// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package loader reads and writes weight groups stored as shard files
// next to a JSON manifest.
package loader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nlpodyssey/weights"
	"github.com/nlpodyssey/weights/manifest"
	"github.com/nlpodyssey/weights/shard"
	"golang.org/x/exp/mmap"
	"golang.org/x/sync/errgroup"
)

// ReadManifest reads and validates the manifest file at path.
func ReadManifest(path string) (manifest.Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := manifest.Read(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	if err = m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}
	return m, nil
}

// LoadFile reads the manifest at path and loads all of its groups from
// the manifest's directory.
func LoadFile(ctx context.Context, path string, opts ...Option) (*weights.NamedTensors, error) {
	m, err := ReadManifest(path)
	if err != nil {
		return nil, err
	}
	return Load(ctx, filepath.Dir(path), m, opts...)
}

// Load decodes every group of m, with shard paths relative to dir.
// Groups are loaded concurrently and merged in manifest order; a weight
// name appearing in more than one group is an error.
func Load(ctx context.Context, dir string, m manifest.Manifest, opts ...Option) (*weights.NamedTensors, error) {
	cfg := newConfig(opts)

	decoded := make([]*weights.NamedTensors, len(m))
	g, ctx := errgroup.WithContext(ctx)
	for i, group := range m {
		g.Go(func() error {
			buf, err := loadGroup(ctx, dir, group, cfg)
			if err != nil {
				return err
			}
			nt, err := weights.Decode(buf, group.Weights)
			if err != nil {
				return fmt.Errorf("group %d: %w", i, err)
			}
			decoded[i] = nt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out, err := weights.NewNamedTensors()
	if err != nil {
		return nil, err
	}
	for i, nt := range decoded {
		if err := out.Merge(nt); err != nil {
			return nil, fmt.Errorf("group %d: %w", i, err)
		}
	}
	cfg.logger.Debug("loaded weights", "groups", len(m), "tensors", out.Len())
	return out, nil
}

// LoadGroup reads the shard files of a group concurrently, returning
// them as one buffer in path order.
func LoadGroup(ctx context.Context, dir string, group manifest.Group, opts ...Option) (*shard.Buffer, error) {
	return loadGroup(ctx, dir, group, newConfig(opts))
}

func loadGroup(ctx context.Context, dir string, group manifest.Group, cfg config) (*shard.Buffer, error) {
	bufs := make([][]byte, len(group.Paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.concurrency)
	for i, p := range group.Paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			path, err := shardPath(dir, p)
			if err != nil {
				return err
			}
			data, err := readShard(path)
			if err != nil {
				return err
			}
			cfg.logger.Debug("read shard", "path", path, "bytes", len(data))
			bufs[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return shard.New(bufs...), nil
}

// StreamGroup decodes a group by streaming its shard files in order,
// without holding the whole group in memory.
func StreamGroup(ctx context.Context, dir string, group manifest.Group, chunkSize int, opts ...weights.StreamOption) (*weights.NamedTensors, error) {
	mapped := make([]*mmap.ReaderAt, 0, len(group.Paths))
	defer func() {
		for _, r := range mapped {
			r.Close()
		}
	}()

	readers := make([]io.Reader, 0, len(group.Paths))
	for _, p := range group.Paths {
		path, err := shardPath(dir, p)
		if err != nil {
			return nil, err
		}
		r, err := mmap.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open shard: %w", err)
		}
		mapped = append(mapped, r)
		readers = append(readers, io.NewSectionReader(r, 0, int64(r.Len())))
	}
	src := weights.ReaderSource(io.MultiReader(readers...), chunkSize)
	return weights.DecodeStream(ctx, src, group.Weights, opts...)
}

func shardPath(dir, p string) (string, error) {
	if !filepath.IsLocal(p) {
		return "", fmt.Errorf("invalid shard path %q", p)
	}
	return filepath.Join(dir, p), nil
}

// readShard copies a memory-mapped shard file into memory. The copy is
// needed because mmap.ReaderAt does not expose the mapping as a slice,
// and decoded tensors alias the returned bytes after the file is closed.
// StreamGroup reads through the mapping instead.
func readShard(path string) ([]byte, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open shard: %w", err)
	}
	defer r.Close()

	data := make([]byte, r.Len())
	if _, err := r.ReadAt(data, 0); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read shard %s: %w", path, err)
	}
	return data, nil
}
