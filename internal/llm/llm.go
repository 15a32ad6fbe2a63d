// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm computes enrichment columns and filter verdicts by asking a
// language model about one record at a time. Calls run concurrently up to a
// fixed bound and report progress as rows complete.
package llm

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/pdiddy/reconcile-engine/internal/apperr"
	"github.com/pdiddy/reconcile-engine/internal/enrich"
	"github.com/pdiddy/reconcile-engine/pkg/types"
)

const defaultConcurrency = 4

// confidenceFloor is the lowest confidence at which a passing filter
// verdict is accepted, per strictness.
var confidenceFloor = map[types.Strictness]float64{
	types.StrictnessLenient:  0,
	types.StrictnessBalanced: 0.5,
	types.StrictnessStrict:   0.75,
}

// Provider implements enrich.Provider and the session's filter provider on
// top of a Completer.
type Provider struct {
	completer   Completer
	concurrency int64
	logger      *slog.Logger
}

// New returns a Provider issuing at most concurrency calls at once.
func New(c Completer, concurrency int, logger *slog.Logger) *Provider {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{completer: c, concurrency: int64(concurrency), logger: logger}
}

var _ enrich.Provider = (*Provider)(nil)

// Enrich computes one column over req.Rows. Rows whose reply cannot be
// parsed are omitted from the result; a failed call fails the whole batch.
func (p *Provider) Enrich(ctx context.Context, req enrich.Request, progress func(completed int)) ([]types.EnrichmentResult, error) {
	instr, err := compileInstruction(req.PromptTemplate)
	if err != nil {
		return nil, err
	}

	results := make([]*types.EnrichmentResult, len(req.Rows))
	err = p.each(ctx, len(req.Rows), progress, func(ctx context.Context, i int) error {
		row := req.Rows[i]
		prompt, err := renderEnrichPrompt(instr, newRecordView(row, req.InputFields), req.OutputType)
		if err != nil {
			return err
		}
		reply, err := p.completer.Complete(ctx, prompt)
		if err != nil {
			return err
		}
		v, err := parseVerdict(reply)
		if err != nil {
			p.logger.Warn("skipping unparseable enrichment reply", "record", row.ID, "err", err)
			return nil
		}
		r := v.enrichmentResult(row.ID, req.OutputType)
		results[i] = &r
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]types.EnrichmentResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

// Filter screens rows against condition. A passing verdict whose confidence
// is below the strictness floor counts as failed. Rows whose reply cannot be
// parsed are omitted.
func (p *Provider) Filter(ctx context.Context, rows []types.Record, condition string, strictness types.Strictness, progress func(completed int)) ([]types.FilterResult, error) {
	if !strictness.Valid() {
		return nil, apperr.NewValidation("filter", "unknown strictness %q: want lenient, balanced, or strict", strictness)
	}
	floor := confidenceFloor[strictness]

	results := make([]*types.FilterResult, len(rows))
	err := p.each(ctx, len(rows), progress, func(ctx context.Context, i int) error {
		row := rows[i]
		prompt, err := renderFilterPrompt(newRecordView(row, nil), condition, strictness)
		if err != nil {
			return err
		}
		reply, err := p.completer.Complete(ctx, prompt)
		if err != nil {
			return err
		}
		v, err := parseVerdict(reply)
		if err != nil || v.Passed == nil {
			p.logger.Warn("skipping unparseable filter reply", "record", row.ID, "err", err)
			return nil
		}
		r := types.FilterResult{ID: row.ID, Reasoning: v.Reasoning}
		if v.Confidence != nil {
			r.Confidence = *v.Confidence
		} else if *v.Passed {
			r.Confidence = 1
		}
		r.Passed = *v.Passed && r.Confidence >= floor
		results[i] = &r
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]types.FilterResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

// each runs fn for indexes 0..n-1 with at most p.concurrency in flight.
// progress receives a strictly increasing count of completed rows. The
// first error cancels the remaining calls and is returned.
func (p *Provider) each(ctx context.Context, n int, progress func(int), fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(p.concurrency)

	var (
		mu   sync.Mutex
		done int
	)
	for i := 0; i < n; i++ {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			if err := fn(gctx, i); err != nil {
				return err
			}
			if progress != nil {
				mu.Lock()
				done++
				progress(done)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
