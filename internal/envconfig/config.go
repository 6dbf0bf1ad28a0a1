// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package envconfig reads tool defaults from WEIGHTS_* environment
// variables. Every getter reads the environment on each call.
package envconfig

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// LogLevel returns the log level set by WEIGHTS_DEBUG.
// Values: 0 or false is INFO (default), 1 or true is DEBUG.
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("WEIGHTS_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}
	return level
}

var (
	// ChunkSize is the read size of streaming decodes.
	ChunkSize = Uint("WEIGHTS_CHUNK_SIZE", 4<<20)
	// ShardSize is the maximum size of a shard file written by Save.
	ShardSize = Uint("WEIGHTS_SHARD_SIZE", 4<<20)
	// LoadConcurrency bounds the number of shard files read at once.
	LoadConcurrency = Uint("WEIGHTS_LOAD_CONCURRENCY", 4)
	// UploadThreshold is the minimum encoded size of a tensor offered to
	// an uploader.
	UploadThreshold = Uint("WEIGHTS_UPLOAD_THRESHOLD", 1<<20)
)

// Uint returns a getter reading a positive integer from key, falling
// back to defaultValue when the variable is unset or invalid.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil || n == 0 {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// Var returns an environment variable stripped of surrounding spaces
// and quotes.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// EnvVar describes a configuration variable and its current value.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns all configuration variables by name.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"WEIGHTS_DEBUG":            {"WEIGHTS_DEBUG", LogLevel(), "Show additional debug information (e.g. WEIGHTS_DEBUG=1)"},
		"WEIGHTS_CHUNK_SIZE":       {"WEIGHTS_CHUNK_SIZE", ChunkSize(), "Read size in bytes for streaming decodes"},
		"WEIGHTS_SHARD_SIZE":       {"WEIGHTS_SHARD_SIZE", ShardSize(), "Maximum size in bytes of written shard files"},
		"WEIGHTS_LOAD_CONCURRENCY": {"WEIGHTS_LOAD_CONCURRENCY", LoadConcurrency(), "Maximum number of shard files read in parallel"},
		"WEIGHTS_UPLOAD_THRESHOLD": {"WEIGHTS_UPLOAD_THRESHOLD", UploadThreshold(), "Minimum tensor size in bytes offered for upload"},
	}
}
