package activity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"activityScope/internal/model"
)

type countingSource struct {
	mu    sync.Mutex
	calls int
	err   error
	value model.AttributeValue
}

func (s *countingSource) Holders(_ context.Context, token model.Token) ([]model.TokenHolder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	values := model.Attributes{}
	if s.value.IsValid() {
		values["balance"] = s.value
	}
	return []model.TokenHolder{{
		Contract: token.Contract,
		Tokens:   []model.HolderToken{{ID: "0", Type: token.Type}},
		Values:   values,
	}}, nil
}

func (s *countingSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestHolderCacheMemoizes(t *testing.T) {
	source := &countingSource{}
	cache := NewHolderCache(source)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		holders, err := cache.Holders(ctx, erc20Token)
		if err != nil {
			t.Fatalf("holders: %v", err)
		}
		if len(holders) != 1 || holders[0].Contract != erc20Address {
			t.Fatalf("unexpected holders: %+v", holders)
		}
	}
	if source.callCount() != 1 {
		t.Fatalf("expected one load, got %d", source.callCount())
	}
	if cache.Len() != 1 {
		t.Fatalf("expected one entry, got %d", cache.Len())
	}

	cache.Clear()
	if err := cache.EnsureCreated(ctx, erc20Token); err != nil {
		t.Fatalf("ensure created: %v", err)
	}
	if source.callCount() != 2 {
		t.Fatalf("clear should force a reload, got %d loads", source.callCount())
	}
}

func TestHolderCacheNativeAsset(t *testing.T) {
	source := &countingSource{}
	cache := NewHolderCache(source)

	holders, err := cache.Holders(context.Background(), nativeToken)
	if err != nil {
		t.Fatalf("holders: %v", err)
	}
	if source.callCount() != 0 {
		t.Fatalf("native asset must not hit the source")
	}
	if len(holders) != 1 || len(holders[0].Tokens) != 1 {
		t.Fatalf("expected one synthetic holder, got %+v", holders)
	}
	if tok := holders[0].Tokens[0]; tok.ID != "1" || tok.Type != model.TokenNative {
		t.Fatalf("unexpected synthetic token: %+v", tok)
	}
	if len(holders[0].Values) != 0 {
		t.Fatalf("synthetic holder should carry no values")
	}
}

func TestHolderCacheDoesNotMemoizeFailures(t *testing.T) {
	source := &countingSource{err: errors.New("rpc down")}
	cache := NewHolderCache(source)
	ctx := context.Background()

	if _, err := cache.Holders(ctx, erc20Token); err == nil {
		t.Fatalf("expected error")
	}
	source.mu.Lock()
	source.err = nil
	source.mu.Unlock()

	holders, err := cache.Holders(ctx, erc20Token)
	if err != nil || len(holders) != 1 {
		t.Fatalf("retry should succeed: %v %+v", err, holders)
	}
	if source.callCount() != 2 {
		t.Fatalf("expected two loads, got %d", source.callCount())
	}
}
