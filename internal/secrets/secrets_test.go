// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/reconcile-engine/pkg/types"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
		want  Set
	}{
		{
			name: "reads key files and trims whitespace",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, NCBIAPIKey, "  ncbi_abc123  \n")
				writeFile(t, dir, OpenAlexEmail, "user@example.com\n")
				return dir
			},
			want: Set{NCBIAPIKey: "ncbi_abc123", OpenAlexEmail: "user@example.com"},
		},
		{
			name: "missing directory",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "does-not-exist")
			},
			want: Set{},
		},
		{
			name: "skips empty files, dotfiles and subdirectories",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, AnthropicAPIKey, "ak_123")
				writeFile(t, dir, "empty-key", "   \n\t")
				writeFile(t, dir, ".hidden-key", "secret")
				require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))
				return dir
			},
			want: Set{AnthropicAPIKey: "ak_123"},
		},
		{
			name:  "empty dir argument",
			setup: func(t *testing.T) string { return "" },
			want:  Set{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.setup(t), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, SemanticScholarAPIKey, "from-file")
	t.Setenv("RECONCILE_ENGINE_SEMANTIC_SCHOLAR_API_KEY", "from-env")
	t.Setenv("RECONCILE_ENGINE_ANTHROPIC_API_KEY", " sk-ant ")

	got, err := Load(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, "from-env", got[SemanticScholarAPIKey])
	assert.Equal(t, "sk-ant", got[AnthropicAPIKey])
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "RECONCILE_ENGINE_NCBI_API_KEY", EnvName(NCBIAPIKey))
	assert.Equal(t, "RECONCILE_ENGINE_OPENALEX_EMAIL", EnvName(OpenAlexEmail))
}

func TestApply(t *testing.T) {
	cfg := types.DefaultEngineConfig()
	cfg.Search.OpenAlexEmail = "configured@example.com"

	Set{
		NCBIAPIKey:      "ncbi",
		OpenAlexEmail:   "secret@example.com",
		AnthropicAPIKey: "sk-ant",
	}.Apply(&cfg)

	assert.Equal(t, "ncbi", cfg.Search.NCBIAPIKey)
	assert.Equal(t, "configured@example.com", cfg.Search.OpenAlexEmail)
	assert.Equal(t, "", cfg.Search.SemanticScholarAPIKey)
	assert.Equal(t, "sk-ant", cfg.Enrichment.APIKey)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}
