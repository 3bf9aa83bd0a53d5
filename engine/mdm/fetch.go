package mdm

import (
	"context"

	"github.com/mdmgate/mdmgate/engine/core"
	"github.com/mdmgate/mdmgate/pkg/logger"
)

// Hard ceilings the platform imposes per endpoint family. A fetch that
// reaches its ceiling stops cleanly; that is a complete result, not a
// truncated one.
const (
	ConnectionsCeiling = 1000
	// SearchCeiling bounds the offset+max window of every _search endpoint
	// family, entities and relations alike.
	SearchCeiling = 10000
)

// PageFunc fetches one bounded page starting at offset. It returns the items
// of that page; a short or empty page signals the end of the collection.
type PageFunc[T any] func(ctx context.Context, offset, limit int) ([]T, error)

// FetchOptions bounds a paginated fetch.
type FetchOptions struct {
	// PageSize is the per-request bound. Zero means 100.
	PageSize int
	// MaxResults caps the total items returned. Zero means unbounded up to
	// the ceiling.
	MaxResults int
	// HardCeiling is the endpoint family's absolute cap. Zero means no
	// ceiling.
	HardCeiling int
}

// FetchResult carries the accumulated items of a paginated fetch. Partial is
// set only when the fetch stopped early on cancellation or a downstream
// failure; stopping at MaxResults or the ceiling is a complete result.
type FetchResult[T any] struct {
	Items   []T
	Partial bool
	// Reason names why a partial result is partial.
	Reason string
}

// FetchAll drives page over the collection until it is exhausted or a bound
// is hit. Pages are fetched sequentially; cancellation is observed between
// pages, never mid-request. On a downstream failure after at least one
// successful page the accumulated items are returned alongside a
// PARTIAL_RESULT error wrapping the cause, so callers never mistake a
// truncated fetch for a complete one.
func FetchAll[T any](ctx context.Context, page PageFunc[T], opts FetchOptions) (*FetchResult[T], error) {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	limit := func(offset int) int {
		n := pageSize
		if opts.MaxResults > 0 && opts.MaxResults-offset < n {
			n = opts.MaxResults - offset
		}
		if opts.HardCeiling > 0 && opts.HardCeiling-offset < n {
			n = opts.HardCeiling - offset
		}
		return n
	}

	result := &FetchResult[T]{}
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			result.Partial = true
			result.Reason = err.Error()
			return result, nil
		}

		n := limit(offset)
		if n <= 0 {
			return result, nil
		}

		items, err := page(ctx, offset, n)
		if err != nil {
			if len(result.Items) == 0 {
				return nil, err
			}
			result.Partial = true
			result.Reason = err.Error()
			logger.FromContext(ctx).Warn("paginated fetch stopped early",
				"offset", offset, "fetched", len(result.Items), "error", err)
			return result, core.WrapError(core.ErrPartialResultCode,
				"paginated fetch failed after partial progress", err)
		}

		result.Items = append(result.Items, items...)
		if len(items) < n {
			return result, nil
		}
		offset += len(items)
	}
}
