// Package config assembles the small typed configuration struct the
// composition root needs to construct the retrieval service. It is not a
// general config-loading framework — just
// enough of an env-var-with-defaults reader to avoid package-level globals.
package config

import (
	"os"
	"strconv"

	"github.com/retrievvy/retrievvy/internal/chunking"
	"github.com/retrievvy/retrievvy/internal/embedding"
)

// Config holds everything the composition root needs to wire a Service.
type Config struct {
	// DataDir roots the sparse index directories, the dense collection
	// files, and the metadata SQLite database.
	DataDir string

	// DefaultTokenBudget bounds chunk size; see chunking.Config.TokenBudget.
	DefaultTokenBudget int

	// EmbeddingDim is the fixed vector dimension new dense collections are
	// created with.
	EmbeddingDim int

	// StemmingLang selects the sparse adapter's analyzer ("en" or "none").
	StemmingLang string

	// Debug enables debug-level logging.
	Debug bool
}

// Default returns Config populated with the reference defaults.
func Default() Config {
	return Config{
		DataDir:            "./data",
		DefaultTokenBudget: chunking.DefaultTokenBudget,
		EmbeddingDim:       embedding.Dimensions,
		StemmingLang:       "en",
		Debug:              false,
	}
}

// FromEnv layers RETRIEVVY_* environment variables over Default(), keeping
// any variable that is unset or unparsable at its default value.
func FromEnv() Config {
	cfg := Default()

	if v := os.Getenv("RETRIEVVY_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("RETRIEVVY_DEFAULT_TOKEN_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DefaultTokenBudget = n
		}
	}
	if v := os.Getenv("RETRIEVVY_EMBEDDING_DIM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EmbeddingDim = n
		}
	}
	if v := os.Getenv("RETRIEVVY_STEMMING_LANG"); v != "" {
		cfg.StemmingLang = v
	}
	if v := os.Getenv("RETRIEVVY_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}

	return cfg
}
