package xgoesi

import (
	"context"
	"net/http"
	"slices"
	"strconv"

	"golang.org/x/sync/errgroup"
)

const pagingConcurrency = 5

// executePaged returns the combined list of items from all pages of an ESI endpoint.
// This only works for ESI endpoints which support the X-Pages pattern and return a list.
// Each page is fetched like a normal call and pages after the first are fetched concurrently.
func executePaged[T any](ctx context.Context, c *Client, operationID string, fn func(ctx context.Context, page int32) ([]T, *http.Response, error)) ([]T, error) {
	type firstPage struct {
		items []T
		pages int
	}
	first, err := execute(ctx, c, operationID, func(ctx context.Context) (firstPage, *http.Response, error) {
		items, r, err := fn(ctx, 1)
		if err != nil {
			return firstPage{}, r, err
		}
		pages, err := extractPageCount(r)
		if err != nil {
			return firstPage{}, r, err
		}
		return firstPage{items: items, pages: pages}, r, nil
	})
	if err != nil {
		return nil, err
	}
	if first.pages < 2 {
		return first.items, nil
	}
	results := make([][]T, first.pages)
	results[0] = first.items
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(pagingConcurrency)
	for p := 2; p <= first.pages; p++ {
		g.Go(func() error {
			items, err := execute(ctx, c, operationID, func(ctx context.Context) ([]T, *http.Response, error) {
				return fn(ctx, int32(p))
			})
			if err != nil {
				return err
			}
			results[p-1] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return slices.Concat(results...), nil
}

func extractPageCount(r *http.Response) (int, error) {
	x := r.Header.Get("X-Pages")
	if x == "" {
		return 1, nil
	}
	pages, err := strconv.Atoi(x)
	if err != nil {
		return 0, err
	}
	return pages, nil
}
