// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loader

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nlpodyssey/weights"
	"github.com/nlpodyssey/weights/manifest"
	"github.com/nlpodyssey/weights/shard"
	"golang.org/x/sync/errgroup"
)

// Save encodes tensors into dir as shard files named
// "<name>-shard<N>of<M>.bin", tagging every spec with name as group.
// It returns the manifest group describing the files.
func Save(dir, name string, tensors *weights.NamedTensors, opts ...Option) (manifest.Group, error) {
	cfg := newConfig(opts)

	data, specs, err := weights.Encode(tensors, name, cfg.encodeOpts...)
	if err != nil {
		return manifest.Group{}, err
	}
	parts, err := shard.Split(data, cfg.shardSize)
	if err != nil {
		return manifest.Group{}, err
	}

	paths := make([]string, len(parts))
	var g errgroup.Group
	g.SetLimit(cfg.concurrency)
	for i, part := range parts {
		paths[i] = fmt.Sprintf("%s-shard%dof%d.bin", name, i+1, len(parts))
		g.Go(func() error {
			path := filepath.Join(dir, paths[i])
			if err := os.WriteFile(path, part, 0o644); err != nil {
				return fmt.Errorf("failed to write shard: %w", err)
			}
			cfg.logger.Debug("wrote shard", "path", path, "bytes", len(part))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return manifest.Group{}, err
	}
	return manifest.Group{Paths: paths, Weights: specs}, nil
}

// WriteManifest writes m as JSON to the file at path.
func WriteManifest(path string, m manifest.Manifest) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if e := f.Close(); e != nil && err == nil {
			err = e
		}
	}()
	return manifest.Write(f, m)
}
