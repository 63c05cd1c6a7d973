package domain

import (
	"context"
	"encoding/json"
)

// Query is one page request sent to the data source.
type Query struct {
	Page     int
	PageSize int
	Filter   Filter
	Sort     Sort
}

// Fetcher loads one page of a remote result set. It must resolve or fail;
// callers bound it through ctx. The payload is normalized by DecodePage.
type Fetcher interface {
	FetchPage(ctx context.Context, q Query) (json.RawMessage, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, q Query) (json.RawMessage, error)

// FetchPage implements Fetcher.
func (fn FetcherFunc) FetchPage(ctx context.Context, q Query) (json.RawMessage, error) {
	return fn(ctx, q)
}
