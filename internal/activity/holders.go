package activity

import (
	"context"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"

	"activityScope/internal/model"
)

// HolderSource decodes holder state for tokens that are not the native asset.
type HolderSource interface {
	Holders(ctx context.Context, token model.Token) ([]model.TokenHolder, error)
}

type holderEntry struct {
	mu      sync.Mutex
	loaded  bool
	holders []model.TokenHolder
}

// HolderCache memoizes token holders per token for its own lifetime.
// A failed load is not memoized and is retried on the next request.
type HolderCache struct {
	source  HolderSource
	entries *xsync.Map[string, *holderEntry]
}

// NewHolderCache creates an empty cache that loads non-native holders from source.
func NewHolderCache(source HolderSource) *HolderCache {
	return &HolderCache{
		source:  source,
		entries: xsync.NewMap[string, *holderEntry](),
	}
}

// Holders returns the cached holders of token, loading them on first use.
func (c *HolderCache) Holders(ctx context.Context, token model.Token) ([]model.TokenHolder, error) {
	entry, _ := c.entries.Compute(token.PrimaryKey(), func(old *holderEntry, loaded bool) (*holderEntry, xsync.ComputeOp) {
		if loaded {
			return old, xsync.UpdateOp
		}
		return &holderEntry{}, xsync.UpdateOp
	})

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.loaded {
		return entry.holders, nil
	}

	holders, err := c.load(ctx, token)
	if err != nil {
		return nil, err
	}
	entry.holders = holders
	entry.loaded = true
	return holders, nil
}

// EnsureCreated populates the entry of token without returning it.
func (c *HolderCache) EnsureCreated(ctx context.Context, token model.Token) error {
	_, err := c.Holders(ctx, token)
	return err
}

// Clear drops every entry, e.g. after a wallet switch.
func (c *HolderCache) Clear() {
	c.entries.Clear()
}

// Len reports the number of cached tokens.
func (c *HolderCache) Len() int {
	return c.entries.Size()
}

func (c *HolderCache) load(ctx context.Context, token model.Token) ([]model.TokenHolder, error) {
	if token.IsNativeAsset() {
		return []model.TokenHolder{{
			Contract: token.Contract,
			Tokens:   []model.HolderToken{{ID: "1", Type: model.TokenNative, Index: 0}},
			Values:   model.Attributes{},
		}}, nil
	}
	if c.source == nil {
		return nil, nil
	}
	return c.source.Holders(ctx, token)
}
