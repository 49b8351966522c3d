package activity

import (
	"context"
	"sync"
	"testing"
	"time"

	"activityScope/internal/model"
	"activityScope/internal/storage"
)

type countingUpdater struct {
	*storage.ActivityStore

	mu       sync.Mutex
	swaps    int
	conflict int
}

func (u *countingUpdater) CompareAndSwapAttributes(ctx context.Context, key model.ActivityKey, expected, next model.ActivityValues) (bool, error) {
	u.mu.Lock()
	u.swaps++
	if u.conflict > 0 {
		u.conflict--
		u.mu.Unlock()
		return false, nil
	}
	u.mu.Unlock()
	return u.ActivityStore.CompareAndSwapAttributes(ctx, key, expected, next)
}

func (u *countingUpdater) swapCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.swaps
}

func newResolutionFixture(t *testing.T, source HolderSource) (*countingUpdater, *Resolver, model.Activity) {
	t.Helper()
	store := storage.NewActivityStore(storage.NewMemoryBackend(), nil)
	t.Cleanup(store.Close)

	activity := model.Activity{
		Token:         erc20Token,
		Network:       1,
		Name:          "sent",
		EventName:     "Transfer",
		BlockNumber:   10,
		TransactionID: "0xa",
		Timestamp:     time.Unix(1700000000, 0).UTC(),
		Values: model.ActivityValues{
			Token: model.Attributes{"ownerAddress": model.AddressValue(wallet)},
			Card:  model.Attributes{"value": model.UintValueFrom(3)},
		},
		State: model.ActivityCompleted,
	}
	if err := store.Insert(context.Background(), []model.Activity{activity}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	updater := &countingUpdater{ActivityStore: store}
	return updater, NewResolver(updater, NewHolderCache(source), nil), activity
}

func storedBalance(t *testing.T, store *countingUpdater, key model.ActivityKey) (uint64, bool) {
	t.Helper()
	stored, found, err := store.Get(context.Background(), key)
	if err != nil || !found {
		t.Fatalf("get: %v found=%v", err, found)
	}
	balance, ok := stored.Values.Token["balance"].AsUint()
	if !ok {
		return 0, false
	}
	return balance.Uint64(), true
}

func TestResolveIsIdempotent(t *testing.T) {
	store, resolver, activity := newResolutionFixture(t, &countingSource{value: model.UintValueFrom(5)})
	ctx := context.Background()

	if err := resolver.Resolve(ctx, activity); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if balance, ok := storedBalance(t, store, activity.Key()); !ok || balance != 5 {
		t.Fatalf("expected balance 5, got %d %v", balance, ok)
	}
	if store.swapCount() != 1 {
		t.Fatalf("expected one write, got %d", store.swapCount())
	}

	if err := resolver.Resolve(ctx, activity); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if store.swapCount() != 1 {
		t.Fatalf("second resolve should not write, got %d writes", store.swapCount())
	}

	stored, _, _ := store.Get(ctx, activity.Key())
	if owner, _ := stored.Values.Token["ownerAddress"].AsAddress(); owner != wallet {
		t.Fatalf("existing token values must be kept")
	}
}

func TestResolveWritesLateValues(t *testing.T) {
	pending := model.NewPending()
	store, resolver, activity := newResolutionFixture(t, &countingSource{value: model.PendingValue(pending)})

	if err := resolver.Resolve(context.Background(), activity); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, ok := storedBalance(t, store, activity.Key()); ok {
		t.Fatalf("unresolved balance must not be stored")
	}
	if store.swapCount() != 0 {
		t.Fatalf("nothing resolved yet, got %d writes", store.swapCount())
	}

	pending.Resolve(model.UintValueFrom(9))
	if balance, ok := storedBalance(t, store, activity.Key()); !ok || balance != 9 {
		t.Fatalf("expected late balance 9, got %d %v", balance, ok)
	}
}

func TestResolveRetriesOnConflict(t *testing.T) {
	store, resolver, activity := newResolutionFixture(t, &countingSource{value: model.UintValueFrom(5)})
	store.conflict = 2

	if err := resolver.Resolve(context.Background(), activity); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if store.swapCount() != 3 {
		t.Fatalf("expected 3 swap attempts, got %d", store.swapCount())
	}
	if balance, ok := storedBalance(t, store, activity.Key()); !ok || balance != 5 {
		t.Fatalf("expected balance 5, got %d %v", balance, ok)
	}
}

func TestResolveGivesUpAfterRepeatedConflicts(t *testing.T) {
	store, resolver, activity := newResolutionFixture(t, &countingSource{value: model.UintValueFrom(5)})
	store.conflict = maxSwapAttempts

	if err := resolver.Resolve(context.Background(), activity); err == nil {
		t.Fatalf("expected an error after %d conflicts", maxSwapAttempts)
	}
}
