// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"path/filepath"

	"github.com/nlpodyssey/weights"
	"github.com/nlpodyssey/weights/loader"
	"github.com/nlpodyssey/weights/manifest"
	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect MANIFEST",
		Short: "List the weights described by a manifest",
		Args:  cobra.ExactArgs(1),
		RunE:  InspectHandler,
	}
	cmd.Flags().Bool("no-data", false, "Do not read shard files (string weights report no size)")
	return cmd
}

// InspectHandler prints one row per weight. Unless --no-data is set, the
// shard files are read to compute the byte range of every weight.
func InspectHandler(cmd *cobra.Command, args []string) error {
	path := args[0]
	noData, err := cmd.Flags().GetBool("no-data")
	if err != nil {
		return err
	}

	m, err := loader.ReadManifest(path)
	if err != nil {
		return err
	}

	var rows [][]string
	for gi, group := range m {
		var offsets []weights.DataOffsets
		if !noData {
			buf, err := loader.LoadGroup(cmd.Context(), filepath.Dir(path), group)
			if err != nil {
				return err
			}
			if offsets, err = weights.Layout(buf, group.Weights); err != nil {
				return fmt.Errorf("group %d: %w", gi, err)
			}
		}

		for i, ws := range group.Weights {
			size := "-"
			if offsets != nil {
				size = fmt.Sprintf("%d [%d, %d)", offsets[i].Len(), offsets[i].Begin, offsets[i].End)
			} else if n, ok := fixedByteLength(ws); ok {
				size = fmt.Sprint(n)
			}
			rows = append(rows, []string{
				ws.Name,
				ws.DType.String(),
				formatShape(ws.Shape),
				formatQuantization(ws.Quantization),
				fmt.Sprint(gi),
				size,
			})
		}
	}

	table := newTable(cmd.OutOrStdout(), []string{"NAME", "DTYPE", "SHAPE", "QUANTIZATION", "GROUP", "BYTES"})
	table.AppendBulk(rows)
	table.Render()
	return nil
}

// fixedByteLength computes the encoded size of weights whose size does
// not depend on their data.
func fixedByteLength(ws manifest.WeightSpec) (int, bool) {
	size, err := ws.Shape.Size()
	if err != nil {
		return 0, false
	}
	elem := ws.DType.Size()
	if ws.Quantization != nil {
		elem = ws.Quantization.DType.Size()
	}
	if elem <= 0 {
		return 0, false
	}
	return size * elem, true
}
