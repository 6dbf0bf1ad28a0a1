// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nlpodyssey/weights/internal/envconfig"
	"github.com/nlpodyssey/weights/manifest"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-26s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI returns the root command with all subcommands attached.
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "weights",
		Short:         "Inspect, decode and pack sharded model weights",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: envconfig.LogLevel()})
			slog.SetDefault(slog.New(handler))
		},
	}

	inspectCmd := newInspectCmd()
	decodeCmd := newDecodeCmd()
	packCmd := newPackCmd()

	envVars := envconfig.AsMap()
	appendEnvDocs(inspectCmd, []envconfig.EnvVar{envVars["WEIGHTS_DEBUG"], envVars["WEIGHTS_LOAD_CONCURRENCY"]})
	appendEnvDocs(decodeCmd, []envconfig.EnvVar{
		envVars["WEIGHTS_DEBUG"],
		envVars["WEIGHTS_LOAD_CONCURRENCY"],
		envVars["WEIGHTS_CHUNK_SIZE"],
		envVars["WEIGHTS_UPLOAD_THRESHOLD"],
	})
	appendEnvDocs(packCmd, []envconfig.EnvVar{envVars["WEIGHTS_DEBUG"], envVars["WEIGHTS_SHARD_SIZE"]})

	rootCmd.AddCommand(inspectCmd, decodeCmd, packCmd)
	return rootCmd
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	return table
}

func formatShape(shape []int) string {
	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = fmt.Sprint(d)
	}
	return "[" + strings.Join(dims, " ") + "]"
}

func formatQuantization(q *manifest.Quantization) string {
	switch {
	case q == nil:
		return "-"
	case q.DType.IsAffine():
		return fmt.Sprintf("%s scale=%g min=%g", q.DType, q.Scale, q.Min)
	default:
		return q.DType.String()
	}
}

func openOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
