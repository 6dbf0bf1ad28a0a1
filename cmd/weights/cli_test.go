// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tensorsInput = `[
  {"name": "emb", "dtype": "float32", "shape": [2, 2], "data": [1, 2, 3, 4.5]},
  {"name": "ids", "dtype": "int32", "shape": [3], "data": [7, 8, 9]},
  {"name": "vocab", "dtype": "string", "shape": [2], "data": ["hi", "there"]},
  {"name": "flag", "dtype": "bool", "shape": [], "data": [true]},
  {"name": "z", "dtype": "complex64", "shape": [1], "data": [[1, -1]]}
]`

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewCLI()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func packSample(t *testing.T, extra ...string) string {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "tensors.json")
	require.NoError(t, os.WriteFile(input, []byte(tensorsInput), 0o644))

	out, err := run(t, "", append([]string{"pack", input, dir, "--name", "model", "--shard-size", "16"}, extra...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 5 weights to ")
	return filepath.Join(dir, manifestName)
}

func TestPack(t *testing.T) {
	manifestPath := packSample(t)
	dir := filepath.Dir(manifestPath)

	for _, p := range []string{"model-shard1of4.bin", "model-shard4of4.bin"} {
		_, err := os.Stat(filepath.Join(dir, p))
		assert.NoError(t, err, p)
	}

	t.Run("second group from stdin", func(t *testing.T) {
		_, err := run(t, `[{"name": "extra", "dtype": "bool", "shape": [1], "data": [false]}]`,
			"pack", "-", dir, "--name", "extra")
		require.NoError(t, err)

		out, err := run(t, "", "decode", manifestPath)
		require.NoError(t, err)
		assert.Contains(t, out, "extra")
		assert.Contains(t, out, "emb")
	})

	t.Run("duplicate name across groups", func(t *testing.T) {
		_, err := run(t, `[{"name": "ids", "dtype": "bool", "shape": [1], "data": [false]}]`,
			"pack", "-", dir, "--name", "dup")
		assert.ErrorContains(t, err, `duplicate weight name "ids"`)
	})
}

func TestPack_errors(t *testing.T) {
	dir := t.TempDir()
	testCases := []struct {
		name  string
		stdin string
		args  []string
		err   string
	}{
		{"unknown quantization", "[]", []string{"--quantize", "int4"}, `failed to text-unmarshal QuantDType from value "int4"`},
		{"quantize-only alone", "[]", []string{"--quantize-only", "a"}, "--quantize-only requires --quantize"},
		{"shape mismatch", `[{"name": "a", "dtype": "int32", "shape": [2], "data": [1]}]`, nil, "does not match data length"},
		{"bad data", `[{"name": "a", "dtype": "bool", "shape": [1], "data": [1]}]`, nil, `tensor "a": invalid data`},
		{"unknown field", `[{"name": "a", "dtype": "bool", "values": [true]}]`, nil, "unknown field"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := run(t, tc.stdin, append([]string{"pack", "-", dir}, tc.args...)...)
			assert.ErrorContains(t, err, tc.err)
		})
	}
}

func TestInspect(t *testing.T) {
	manifestPath := packSample(t, "--quantize", "uint8", "--quantize-only", "emb")

	out, err := run(t, "", "inspect", manifestPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 6)
	assert.Contains(t, lines[0], "NAME")
	assert.Contains(t, lines[1], "emb")
	assert.Contains(t, lines[1], "uint8 scale=")
	assert.Contains(t, lines[1], "4 [0, 4)")
	assert.Contains(t, lines[3], "vocab")
	assert.Contains(t, lines[3], "15 [16, 31)")

	out, err = run(t, "", "inspect", "--no-data", manifestPath)
	require.NoError(t, err)
	lines = strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 6)
	assert.Contains(t, lines[2], "12")
	assert.NotContains(t, lines[3], "15")
}

func TestDecode(t *testing.T) {
	manifestPath := packSample(t)

	for _, args := range [][]string{
		{"decode", manifestPath},
		{"decode", "--stream", "--chunk-size", "3", manifestPath},
	} {
		out, err := run(t, "", args...)
		require.NoError(t, err)
		assert.Contains(t, out, "1 2 3 4.5")
		assert.Contains(t, out, `"hi" "there"`)
		assert.Contains(t, out, "(1-1i)")
	}
}

func TestDecode_output(t *testing.T) {
	manifestPath := packSample(t)
	want, err := readTensorsJSON(strings.NewReader(tensorsInput))
	require.NoError(t, err)
	var wantJSON bytes.Buffer
	require.NoError(t, writeTensorsJSON(&wantJSON, want))

	outPath := filepath.Join(t.TempDir(), "out.json")
	_, err = run(t, "", "decode", "--stream", manifestPath, "-o", outPath)
	require.NoError(t, err)

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.JSONEq(t, wantJSON.String(), string(got))
}

func TestDecode_missingManifest(t *testing.T) {
	_, err := run(t, "", "decode", filepath.Join(t.TempDir(), "nope.json"))
	assert.True(t, os.IsNotExist(err), "unexpected error: %v", err)
}
