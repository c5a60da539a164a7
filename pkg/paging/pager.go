// Package paging implements cursor-based pagination over listing endpoints
// of the enrichment API.
//
// A Pager is a lazy, single-use sequence of pages. Its only state is the
// last-seen cursor token, so it cannot be rewound; callers wanting the
// first page again issue a fresh listing call. Every page fetch goes
// through the resilient request engine, so a page error surfaces only
// after retries are exhausted.
package paging

import (
	"context"
	"iter"
)

// Page is one page of a listing response. NextCursor is empty when the
// server reports no further results.
type Page[T any] struct {
	Data       []T    `json:"data"`
	NextCursor string `json:"next_cursor"`
	RequestID  string `json:"-"`
}

// FetchFunc fetches a single page. An empty cursor requests the first page.
type FetchFunc[T any] func(ctx context.Context, cursor string) (Page[T], error)

// Pager iterates pages of a listing endpoint in the manner of
// bufio.Scanner: Next advances, Page reads, Err reports the terminal error.
type Pager[T any] struct {
	fetch   FetchFunc[T]
	cursor  string
	started bool
	done    bool
	page    Page[T]
	err     error
}

// New creates a pager over the given fetch function.
func New[T any](fetch FetchFunc[T]) *Pager[T] {
	return &Pager[T]{fetch: fetch}
}

// Next fetches the next page. It returns false when the sequence is
// exhausted or a fetch ultimately failed; failed pages are never silently
// dropped, the error is available via Err.
func (p *Pager[T]) Next(ctx context.Context) bool {
	if p.done || p.err != nil {
		return false
	}
	if p.started && p.cursor == "" {
		p.done = true
		return false
	}

	page, err := p.fetch(ctx, p.cursor)
	if err != nil {
		p.err = err
		p.done = true
		return false
	}

	p.started = true
	p.page = page
	p.cursor = page.NextCursor
	return true
}

// Page returns the page fetched by the last successful call to Next.
func (p *Pager[T]) Page() Page[T] {
	return p.page
}

// Err returns the error that terminated iteration, if any.
func (p *Pager[T]) Err() error {
	return p.err
}

// Items returns a flattened, item-level iterator over all remaining pages.
// Iteration stops on the first page fetch failure; callers must check Err
// after the range completes.
func (p *Pager[T]) Items(ctx context.Context) iter.Seq[T] {
	return func(yield func(T) bool) {
		for p.Next(ctx) {
			for _, item := range p.Page().Data {
				if !yield(item) {
					return
				}
			}
		}
	}
}

// Collect drains the pager and returns all items in server order.
func Collect[T any](ctx context.Context, p *Pager[T]) ([]T, error) {
	var items []T
	for p.Next(ctx) {
		items = append(items, p.Page().Data...)
	}
	return items, p.Err()
}
