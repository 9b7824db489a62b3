package cache

import (
	"context"
	"encoding/json"
	"time"
)

// ProductListingCache holds the most recent Linx product listing so the
// proxy endpoint does not hammer the peer on every request.
type ProductListingCache interface {
	Get(ctx context.Context) (json.RawMessage, bool, error)
	Set(ctx context.Context, payload json.RawMessage, ttl time.Duration) error
}

type NoopProductListingCache struct{}

func (NoopProductListingCache) Get(context.Context) (json.RawMessage, bool, error) {
	return nil, false, nil
}

func (NoopProductListingCache) Set(context.Context, json.RawMessage, time.Duration) error {
	return nil
}
