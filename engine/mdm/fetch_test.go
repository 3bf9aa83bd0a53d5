package mdm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdmgate/mdmgate/engine/core"
)

// collectionPage serves a fixed collection the way the platform does:
// bounded slices by offset and limit.
func collectionPage(total int) PageFunc[int] {
	return func(_ context.Context, offset, limit int) ([]int, error) {
		var out []int
		for i := offset; i < total && i < offset+limit; i++ {
			out = append(out, i)
		}
		return out, nil
	}
}

func TestFetchAll(t *testing.T) {
	t.Run("Should fetch the whole collection across pages", func(t *testing.T) {
		res, err := FetchAll(t.Context(), collectionPage(250), FetchOptions{PageSize: 100})
		require.NoError(t, err)
		assert.Len(t, res.Items, 250)
		assert.False(t, res.Partial)
	})

	t.Run("Should stop on an exact page boundary without an extra item", func(t *testing.T) {
		calls := 0
		page := func(ctx context.Context, offset, limit int) ([]int, error) {
			calls++
			return collectionPage(200)(ctx, offset, limit)
		}
		res, err := FetchAll(t.Context(), page, FetchOptions{PageSize: 100})
		require.NoError(t, err)
		assert.Len(t, res.Items, 200)
		// Full final page forces one probe that comes back empty.
		assert.Equal(t, 3, calls)
	})

	t.Run("Should cap at max results and report complete", func(t *testing.T) {
		res, err := FetchAll(t.Context(), collectionPage(1000), FetchOptions{PageSize: 100, MaxResults: 150})
		require.NoError(t, err)
		assert.Len(t, res.Items, 150)
		assert.False(t, res.Partial)
	})

	t.Run("Should treat the hard ceiling as a complete stop", func(t *testing.T) {
		res, err := FetchAll(t.Context(), collectionPage(5000), FetchOptions{PageSize: 500, HardCeiling: ConnectionsCeiling})
		require.NoError(t, err)
		assert.Len(t, res.Items, ConnectionsCeiling)
		assert.False(t, res.Partial)
	})

	t.Run("Should return accumulated pages with a partial error on mid-fetch failure", func(t *testing.T) {
		cause := errors.New("connection reset")
		page := func(ctx context.Context, offset, limit int) ([]int, error) {
			if offset >= 100 {
				return nil, cause
			}
			return collectionPage(1000)(ctx, offset, limit)
		}
		res, err := FetchAll(t.Context(), page, FetchOptions{PageSize: 100})
		require.Error(t, err)
		assert.Equal(t, core.ErrPartialResultCode, core.CodeOf(err))
		assert.ErrorIs(t, err, cause)
		require.NotNil(t, res)
		assert.Len(t, res.Items, 100)
		assert.True(t, res.Partial)
	})

	t.Run("Should pass through a first-page failure untouched", func(t *testing.T) {
		cause := core.WrapError(core.ErrUnavailableCode, "search failed", errors.New("refused"))
		page := func(_ context.Context, _, _ int) ([]int, error) {
			return nil, cause
		}
		res, err := FetchAll(t.Context(), page, FetchOptions{PageSize: 100})
		require.Error(t, err)
		assert.Nil(t, res)
		assert.Equal(t, core.ErrUnavailableCode, core.CodeOf(err))
	})

	t.Run("Should stop between pages on cancellation and tag the result partial", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		page := func(c context.Context, offset, limit int) ([]int, error) {
			if offset >= 100 {
				t.Fatal("page fetched after cancellation")
			}
			cancel()
			return collectionPage(1000)(c, offset, limit)
		}
		res, err := FetchAll(ctx, page, FetchOptions{PageSize: 100})
		require.NoError(t, err)
		assert.True(t, res.Partial)
		assert.Contains(t, res.Reason, "canceled")
		assert.Len(t, res.Items, 100)
	})

	t.Run("Should advance offset by the returned page size", func(t *testing.T) {
		var offsets []int
		page := func(_ context.Context, offset, limit int) ([]int, error) {
			offsets = append(offsets, offset)
			// Downstream returns fewer items than asked for twice, then ends.
			switch offset {
			case 0:
				return make([]int, 100), nil
			case 100:
				return make([]int, 30), nil
			default:
				t.Fatalf("unexpected offset %d", offset)
				return nil, nil
			}
		}
		res, err := FetchAll(t.Context(), page, FetchOptions{PageSize: 100})
		require.NoError(t, err)
		assert.Equal(t, []int{0, 100}, offsets)
		assert.Len(t, res.Items, 130)
	})
}
