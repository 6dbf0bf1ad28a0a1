// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/nlpodyssey/weights"
	"github.com/nlpodyssey/weights/dtype"
	"github.com/nlpodyssey/weights/internal/envconfig"
	"github.com/nlpodyssey/weights/loader"
	"github.com/spf13/cobra"
)

const manifestName = "manifest.json"

func newPackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pack TENSORS DIR",
		Short: "Encode tensors from a JSON file into a weight group",
		Long: `Encode the tensors listed in a JSON file ("-" for stdin) into shard files
under DIR, and add the new group to DIR/manifest.json, creating it if needed.

The JSON file holds an array of {"name", "dtype", "shape", "data"} objects.`,
		Args: cobra.ExactArgs(2),
		RunE: PackHandler,
	}
	cmd.Flags().String("name", "group", "Group name, used as shard file prefix and group tag")
	cmd.Flags().Uint("shard-size", envconfig.ShardSize(), "Maximum shard file size in bytes")
	cmd.Flags().String("quantize", "", "Quantize float32 and int32 tensors (uint8, uint16 or float16)")
	cmd.Flags().StringSlice("quantize-only", nil, "Restrict quantization to the named tensors")
	return cmd
}

// PackHandler writes a new group and updates the manifest.
func PackHandler(cmd *cobra.Command, args []string) error {
	input, dir := args[0], args[1]
	flags := cmd.Flags()
	name, err := flags.GetString("name")
	if err != nil {
		return err
	}
	shardSize, err := flags.GetUint("shard-size")
	if err != nil {
		return err
	}
	opts := []loader.Option{loader.WithShardSize(int(shardSize))}

	quantize, err := flags.GetString("quantize")
	if err != nil {
		return err
	}
	only, err := flags.GetStringSlice("quantize-only")
	if err != nil {
		return err
	}
	if quantize != "" {
		var q dtype.QuantDType
		if err := q.UnmarshalText([]byte(quantize)); err != nil {
			return err
		}
		opts = append(opts, loader.WithEncodeOptions(weights.WithQuantization(q, only...)))
	} else if len(only) > 0 {
		return errors.New("--quantize-only requires --quantize")
	}

	nt, err := readInput(cmd, input)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	manifestPath := filepath.Join(dir, manifestName)
	m, err := loader.ReadManifest(manifestPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	group, err := loader.Save(dir, name, nt, opts...)
	if err != nil {
		return err
	}
	m = append(m, group)
	if err := m.Validate(); err != nil {
		return err
	}
	if err := loader.WriteManifest(manifestPath, m); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d weights to %d shard files in %s\n", len(group.Weights), len(group.Paths), dir)
	return nil
}

func readInput(cmd *cobra.Command, input string) (*weights.NamedTensors, error) {
	var r io.Reader
	if input == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(input)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return readTensorsJSON(r)
}

