// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys from a directory of plain-text files, one
// secret per file: the filename is the key and the trimmed contents are the
// value. An environment variable RECONCILE_ENGINE_<KEY> overrides a file,
// with the key upper-cased and dashes turned into underscores.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/reconcile-engine/pkg/types"
)

// Recognized secret keys.
const (
	NCBIAPIKey            = "ncbi-api-key"
	OpenAlexEmail         = "openalex-email"
	SemanticScholarAPIKey = "semantic-scholar-api-key"
	AnthropicAPIKey       = "anthropic-api-key"
)

// Keys lists every recognized key.
var Keys = []string{NCBIAPIKey, OpenAlexEmail, SemanticScholarAPIKey, AnthropicAPIKey}

// EnvPrefix prefixes the environment overrides.
const EnvPrefix = "RECONCILE_ENGINE_"

// Set maps secret keys to values.
type Set map[string]string

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// Load reads every file in dir and then applies environment overrides for
// the recognized keys. A missing directory is not an error. Unreadable
// files are logged and skipped.
func Load(dir string, logger *slog.Logger) (Set, error) {
	if logger == nil {
		logger = slog.Default()
	}
	set := Set{}

	if dir != "" {
		entries, err := os.ReadDir(dir)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
		default:
			for _, entry := range entries {
				name := entry.Name()
				if entry.IsDir() || strings.HasPrefix(name, ".") {
					continue
				}
				data, err := os.ReadFile(filepath.Join(dir, name))
				if err != nil {
					logger.Warn("could not read secret", "key", name, "err", err)
					continue
				}
				if v := strings.TrimSpace(string(data)); v != "" {
					set[name] = v
				}
			}
		}
	}

	for _, key := range Keys {
		if v := strings.TrimSpace(os.Getenv(EnvName(key))); v != "" {
			set[key] = v
		}
	}
	return set, nil
}

// Apply copies secrets into the configuration fields they feed, leaving
// values already set in the configuration untouched.
func (s Set) Apply(cfg *types.EngineConfig) {
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = s[key]
		}
	}
	fill(&cfg.Search.NCBIAPIKey, NCBIAPIKey)
	fill(&cfg.Search.OpenAlexEmail, OpenAlexEmail)
	fill(&cfg.Search.SemanticScholarAPIKey, SemanticScholarAPIKey)
	fill(&cfg.Enrichment.APIKey, AnthropicAPIKey)
}
