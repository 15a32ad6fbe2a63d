// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"fmt"
	"net/http"

	"github.com/pdiddy/reconcile-engine/pkg/types"
)

// Secondary backend names accepted by SearchConfig.SecondaryBackend.
const (
	BackendOpenAlex        = "openalex"
	BackendSemanticScholar = "semantic_scholar"
)

// NewProviders builds the primary provider and the configured secondary
// provider, in that order.
func NewProviders(cfg types.SearchConfig) ([]Provider, error) {
	client := &http.Client{Timeout: cfg.Timeout}

	primary := &PubMedProvider{Client: client, APIKey: cfg.NCBIAPIKey, UserAgent: cfg.UserAgent}

	var secondary Provider
	switch cfg.SecondaryBackend {
	case "", BackendOpenAlex:
		secondary = &OpenAlexProvider{Client: client, Email: cfg.OpenAlexEmail, UserAgent: cfg.UserAgent}
	case BackendSemanticScholar:
		secondary = &SemanticScholarProvider{Client: client, APIKey: cfg.SemanticScholarAPIKey, UserAgent: cfg.UserAgent}
	default:
		return nil, fmt.Errorf("unknown secondary backend %q: want %s or %s",
			cfg.SecondaryBackend, BackendOpenAlex, BackendSemanticScholar)
	}
	return []Provider{primary, secondary}, nil
}

// Select returns the providers whose source the source type includes.
func Select(providers []Provider, st types.SourceType) []Provider {
	var out []Provider
	for _, p := range providers {
		if st.Includes(p.Source()) {
			out = append(out, p)
		}
	}
	return out
}
