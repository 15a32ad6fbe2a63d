// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/reconcile-engine/pkg/types"
)

func TestSetDefaults_RoundTrip(t *testing.T) {
	v := viper.New()
	setDefaults(v, types.DefaultEngineConfig())

	var cfg types.EngineConfig
	require.NoError(t, v.Unmarshal(&cfg))
	assert.Equal(t, types.DefaultEngineConfig(), cfg)
}

func TestSetDefaults_Overrides(t *testing.T) {
	v := viper.New()
	setDefaults(v, types.DefaultEngineConfig())
	v.Set("session.global_cap", 200)
	v.Set("search.secondary_backend", "semantic_scholar")
	v.Set("search.timeout", "5s")
	v.Set("enrichment.api_key", "sk-test")

	var cfg types.EngineConfig
	require.NoError(t, v.Unmarshal(&cfg))
	assert.Equal(t, 200, cfg.Session.GlobalCap)
	assert.Equal(t, types.DefaultDisplayCap, cfg.Session.DisplayCap)
	assert.Equal(t, "semantic_scholar", cfg.Search.SecondaryBackend)
	assert.Equal(t, 5*time.Second, cfg.Search.Timeout)
	assert.Equal(t, "sk-test", cfg.Enrichment.APIKey)
}

func TestNewLogger_Levels(t *testing.T) {
	ctx := context.Background()

	l := newLogger("debug")
	assert.True(t, l.Enabled(ctx, slog.LevelDebug))

	l = newLogger("error")
	assert.False(t, l.Enabled(ctx, slog.LevelWarn))
	assert.True(t, l.Enabled(ctx, slog.LevelError))

	l = newLogger("chatty")
	assert.False(t, l.Enabled(ctx, slog.LevelInfo))
	assert.True(t, l.Enabled(ctx, slog.LevelWarn))
}

// newQueryCmd declares the query flags the search command reads.
func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "search"}
	for _, name := range []string{"query", "author", "keywords", "from", "to"} {
		cmd.Flags().String(name, "", "")
	}
	return cmd
}

func TestQueryFromFlags(t *testing.T) {
	cmd := newQueryCmd()
	require.NoError(t, cmd.Flags().Set("author", "  Smith J "))
	require.NoError(t, cmd.Flags().Set("keywords", "statins, ,adults"))
	require.NoError(t, cmd.Flags().Set("from", "2019"))
	require.NoError(t, cmd.Flags().Set("to", "2020-06"))

	q, err := queryFromFlags(cmd, []string{"statin", "therapy"})
	require.NoError(t, err)
	assert.Equal(t, "statin therapy", q.FreeText)
	assert.Equal(t, "Smith J", q.Author)
	assert.Equal(t, []string{"statins", "adults"}, q.Keywords)
	assert.Equal(t, time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC), q.DateFrom)
	assert.Equal(t, time.Date(2020, 6, 30, 0, 0, 0, 0, time.UTC), q.DateTo)
}

func TestQueryFromFlags_FlagWinsOverArgs(t *testing.T) {
	cmd := newQueryCmd()
	require.NoError(t, cmd.Flags().Set("query", "statins"))

	q, err := queryFromFlags(cmd, []string{"ignored"})
	require.NoError(t, err)
	assert.Equal(t, "statins", q.FreeText)
	assert.Empty(t, q.Keywords)
}

func TestQueryFromFlags_BadDate(t *testing.T) {
	cmd := newQueryCmd()
	require.NoError(t, cmd.Flags().Set("from", "last year"))

	_, err := queryFromFlags(cmd, []string{"statins"})
	assert.Error(t, err)
}
