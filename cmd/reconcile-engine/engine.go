// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"io"

	"github.com/pdiddy/reconcile-engine/internal/enrich"
	"github.com/pdiddy/reconcile-engine/internal/fetch"
	"github.com/pdiddy/reconcile-engine/internal/journal"
	"github.com/pdiddy/reconcile-engine/internal/lineage"
	"github.com/pdiddy/reconcile-engine/internal/llm"
	"github.com/pdiddy/reconcile-engine/internal/search"
	"github.com/pdiddy/reconcile-engine/internal/session"
	"github.com/pdiddy/reconcile-engine/pkg/types"
)

// engine bundles a session with the resources it owns.
type engine struct {
	session *session.Session
	journal *journal.Journal
}

// newEngine wires providers, lineage, journal and the AI provider into a
// session. Without an Anthropic API key the session still searches, but
// filtering and enrichment report that no provider is configured.
func newEngine(cfg types.EngineConfig, warnings io.Writer) (*engine, error) {
	providers, err := search.NewProviders(cfg.Search)
	if err != nil {
		return nil, err
	}

	store := lineage.NewStore()
	j, err := journal.Open(cfg.Journal, logger)
	if err != nil {
		return nil, err
	}
	store.SetObserver(j)

	var (
		enricher enrich.Provider
		filterer session.FilterProvider
	)
	if claude, err := llm.NewClaude(cfg.Enrichment.AIConfig); err != nil {
		logger.Warn("filtering and enrichment disabled", "err", err)
	} else {
		p := llm.New(claude, cfg.Enrichment.Concurrency, logger)
		enricher, filterer = p, p
	}

	sess, err := session.New(session.Options{
		Config:    cfg.Session,
		Providers: providers,
		Fetcher:   fetch.NewController(cfg.Search, logger),
		Enricher:  enrich.New(enricher, logger),
		Filterer:  filterer,
		Lineage:   store,
		Logger:    logger,
		Warnings:  warnings,
	})
	if err != nil {
		j.Close()
		return nil, err
	}
	return &engine{session: sess, journal: j}, nil
}

// Close abandons background work and closes the journal.
func (e *engine) Close() error {
	e.session.Close()
	return e.journal.Close()
}
