// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/nlpodyssey/weights"
	"github.com/nlpodyssey/weights/internal/envconfig"
	"github.com/nlpodyssey/weights/loader"
	"github.com/spf13/cobra"
)

const previewLen = 4

func newDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode MANIFEST",
		Short: "Decode all weights of a manifest",
		Args:  cobra.ExactArgs(1),
		RunE:  DecodeHandler,
	}
	cmd.Flags().Bool("stream", false, "Stream shard files instead of reading them whole")
	cmd.Flags().Uint("chunk-size", envconfig.ChunkSize(), "Read size in bytes when streaming")
	cmd.Flags().Uint("upload-threshold", envconfig.UploadThreshold(), "Report tensors of at least this many bytes as upload candidates when streaming")
	cmd.Flags().StringP("output", "o", "", "Write the decoded tensors as JSON to a file (\"-\" for stdout)")
	return cmd
}

// DecodeHandler decodes every group and prints a summary of each
// tensor, or writes all tensors as JSON with --output.
func DecodeHandler(cmd *cobra.Command, args []string) error {
	path := args[0]
	flags := cmd.Flags()
	stream, err := flags.GetBool("stream")
	if err != nil {
		return err
	}
	output, err := flags.GetString("output")
	if err != nil {
		return err
	}

	var nt *weights.NamedTensors
	if stream {
		chunkSize, err := flags.GetUint("chunk-size")
		if err != nil {
			return err
		}
		threshold, err := flags.GetUint("upload-threshold")
		if err != nil {
			return err
		}
		nt, err = streamManifest(cmd, path, int(chunkSize), int(threshold))
		if err != nil {
			return err
		}
	} else {
		if nt, err = loader.LoadFile(cmd.Context(), path); err != nil {
			return err
		}
	}

	if output != "" {
		w, err := openOutput(output)
		if err != nil {
			return err
		}
		if err = writeTensorsJSON(w, nt); err != nil {
			w.Close()
			return err
		}
		return w.Close()
	}

	table := newTable(cmd.OutOrStdout(), []string{"NAME", "DTYPE", "SHAPE", "VALUES"})
	for _, t := range nt.All() {
		table.Append([]string{t.Name(), t.DType().String(), formatShape(t.Shape()), preview(t)})
	}
	table.Render()
	return nil
}

func streamManifest(cmd *cobra.Command, path string, chunkSize, threshold int) (*weights.NamedTensors, error) {
	m, err := loader.ReadManifest(path)
	if err != nil {
		return nil, err
	}
	tally := &uploadTally{}
	out, err := weights.NewNamedTensors()
	if err != nil {
		return nil, err
	}
	for i, group := range m {
		nt, err := loader.StreamGroup(cmd.Context(), filepath.Dir(path), group, chunkSize, weights.WithUploader(tally, threshold))
		if err != nil {
			return nil, fmt.Errorf("group %d: %w", i, err)
		}
		if err = out.Merge(nt); err != nil {
			return nil, fmt.Errorf("group %d: %w", i, err)
		}
	}
	slog.Info("upload candidates", "tensors", tally.tensors, "bytes", tally.bytes, "threshold", threshold)
	return out, nil
}

// uploadTally counts the tensors offered for upload, declining all.
type uploadTally struct {
	tensors int
	bytes   int
}

func (u *uploadTally) TryUpload(t weights.Tensor) bool {
	u.tensors++
	u.bytes += t.ByteLen()
	return false
}

func preview(t weights.Tensor) string {
	var items []string
	switch v := t.Data().(type) {
	case []float32:
		items = previewItems(v, "%g")
	case []int32:
		items = previewItems(v, "%d")
	case []bool:
		items = previewItems(v, "%t")
	case [][]byte:
		items = previewItems(v, "%q")
	case []complex64:
		items = previewItems(v, "%g")
	}
	return strings.Join(items, " ")
}

func previewItems[T any](v []T, format string) []string {
	items := make([]string, 0, min(len(v), previewLen)+1)
	for _, x := range v[:min(len(v), previewLen)] {
		items = append(items, fmt.Sprintf(format, x))
	}
	if len(v) > previewLen {
		items = append(items, "...")
	}
	return items
}
