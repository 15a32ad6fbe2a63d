// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch tops up a source's records without breaching the global
// cap. It plans how many records a source may still contribute, then pulls
// them in fixed-size batches, one awaited batch at a time, committing each
// batch before the next request is issued.
package fetch

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/pdiddy/reconcile-engine/internal/apperr"
	"github.com/pdiddy/reconcile-engine/pkg/types"
)

const defaultBatchSize = 50

// Plan is the outcome of PlanFetch.
type Plan struct {
	// RemainingToFetch is how many more records the source may contribute.
	RemainingToFetch int `json:"remaining_to_fetch"`

	// LimitApplied reports that the cap, not the source, bounds the fetch.
	LimitApplied bool `json:"limit_applied"`
}

// PlanFetch computes how many records one source may still add given the
// global cap and the records already live.
func PlanFetch(globalCap, liveTotalCount int, cursor types.PaginationCursor) Plan {
	allowable := max(0, globalCap-liveTotalCount)
	sourceRemaining := max(0, cursor.TotalAvailable-cursor.Returned)
	return Plan{
		RemainingToFetch: min(allowable, sourceRemaining),
		LimitApplied:     cursor.TotalAvailable > cursor.Returned+allowable || allowable == 0,
	}
}

// Batch is one page returned by a BatchFunc.
type Batch struct {
	Records []types.Record

	// TotalAvailable is the source's current total; zero keeps the cursor's.
	TotalAvailable int
}

// BatchFunc retrieves up to limit records starting at offset.
type BatchFunc func(ctx context.Context, offset, limit int) (Batch, error)

// Committed reports what a CommitFunc actually applied.
type Committed struct {
	// Cursor is the cursor stored for the source. It advances only over
	// records that were kept, so records cut by the cap can be fetched later.
	Cursor types.PaginationCursor
	// Kept counts the records the cursor advanced over.
	Kept int
	// CapReached reports that the live set is full.
	CapReached bool
}

// CommitFunc applies one batch and the advanced cursor to the live set. It
// may keep fewer records than offered when the live set fills up. Returning
// an error (apperr.ErrStale when the search was replaced) stops the loop
// without issuing further requests.
type CommitFunc func(records []types.Record, cursor types.PaginationCursor) (Committed, error)

// Request describes one fetch-more run for one source.
type Request struct {
	Source    types.Source
	GlobalCap int
	LiveTotal int
	Cursor    types.PaginationCursor
	Fetch     BatchFunc
	Commit    CommitFunc
}

// Result summarizes a run. Fetched counts committed records only.
type Result struct {
	Plan      Plan                   `json:"plan"`
	Fetched   int                    `json:"fetched"`
	Batches   int                    `json:"batches"`
	Cursor    types.PaginationCursor `json:"cursor"`
	EndOfData bool                   `json:"end_of_data"`

	// CapReached reports that a commit filled the live set before the plan
	// was met, which happens when another source loaded concurrently.
	CapReached bool `json:"cap_reached"`
}

// Controller runs capped, paced fetch-more loops.
type Controller struct {
	batchSizes map[types.Source]int
	limiters   map[types.Source]*rate.Limiter
	logger     *slog.Logger
}

// NewController builds a controller from the per-source settings.
func NewController(cfg types.SearchConfig, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		batchSizes: make(map[types.Source]int),
		limiters:   make(map[types.Source]*rate.Limiter),
		logger:     logger,
	}
	for _, src := range types.Sources {
		sc := cfg.For(src)
		size := sc.BatchSize
		if size <= 0 {
			size = defaultBatchSize
		}
		c.batchSizes[src] = size
		if sc.RequestsPerSecond > 0 {
			c.limiters[src] = rate.NewLimiter(rate.Limit(sc.RequestsPerSecond), 1)
		}
	}
	return c
}

// BatchSize returns the per-request size for src.
func (c *Controller) BatchSize(src types.Source) int {
	if n, ok := c.batchSizes[src]; ok {
		return n
	}
	return defaultBatchSize
}

// Execute plans and runs one fetch-more loop. It stops when the plan is
// met, when a batch comes back empty (treated as end of data whatever the
// cursor says), when a commit reports the live set full, when ctx is done,
// or when Fetch or Commit fails. Batches committed before a failure stay
// committed.
func (c *Controller) Execute(ctx context.Context, req Request) (Result, error) {
	if req.Fetch == nil || req.Commit == nil {
		return Result{}, fmt.Errorf("fetch request for %s needs Fetch and Commit", req.Source)
	}

	plan := PlanFetch(req.GlobalCap, req.LiveTotal, req.Cursor)
	res := Result{Plan: plan, Cursor: req.Cursor}
	batchSize := c.BatchSize(req.Source)
	remaining := plan.RemainingToFetch

	c.logger.Debug("fetch plan",
		"source", req.Source,
		"remaining", plan.RemainingToFetch,
		"limit_applied", plan.LimitApplied,
		"offset", req.Cursor.Returned)

	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if lim := c.limiters[req.Source]; lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return res, err
			}
		}

		limit := min(batchSize, remaining)
		batch, err := req.Fetch(ctx, res.Cursor.Returned, limit)
		if err != nil {
			return res, apperr.NewRetrieval("loadMore", string(req.Source), err)
		}

		if len(batch.Records) == 0 {
			applied, err := req.Commit(nil, res.Cursor.Exhaust())
			if err != nil {
				return res, err
			}
			res.Cursor = applied.Cursor
			res.EndOfData = true
			c.logger.Debug("empty batch, treating as end of data",
				"source", req.Source, "offset", applied.Cursor.Returned)
			break
		}

		records := batch.Records
		if len(records) > limit {
			records = records[:limit]
		}
		total := res.Cursor.TotalAvailable
		if batch.TotalAvailable > 0 {
			total = batch.TotalAvailable
		}
		next := types.NewCursor(total, res.Cursor.Returned+len(records))

		applied, err := req.Commit(records, next)
		if err != nil {
			return res, err
		}
		res.Cursor = applied.Cursor
		res.Fetched += applied.Kept
		res.Batches++
		remaining -= applied.Kept

		c.logger.Debug("batch committed",
			"source", req.Source,
			"records", applied.Kept,
			"offered", len(records),
			"returned", applied.Cursor.Returned,
			"total", applied.Cursor.TotalAvailable)

		if applied.CapReached || applied.Kept == 0 {
			res.CapReached = applied.CapReached
			break
		}
	}
	return res, nil
}
