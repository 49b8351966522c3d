package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"activityScope/internal/feed"
	"activityScope/internal/model"
)

var testToken = model.Token{
	Contract: common.HexToAddress("0x1111111111111111111111111111111111111111"),
	Network:  1,
	Type:     model.TokenERC20,
	Symbol:   "TST",
}

func testActivity(block, logIndex uint64) model.Activity {
	return model.Activity{
		ID:               int64(block*100 + logIndex),
		Token:            testToken,
		Network:          1,
		Name:             "sent",
		EventName:        "Transfer",
		BlockNumber:      block,
		TransactionID:    "0xabc",
		TransactionIndex: 0,
		LogIndex:         logIndex,
		Values: model.ActivityValues{
			Token: model.Attributes{"symbol": model.StringValue("TST")},
			Card:  model.Attributes{"amount": model.UintValueFrom(block)},
		},
		State: model.ActivityCompleted,
	}
}

func nextChange(t *testing.T, sub *feed.Subscription[model.ChangeSet[model.Activity]]) model.ChangeSet[model.Activity] {
	t.Helper()
	select {
	case change, ok := <-sub.C():
		if !ok {
			t.Fatalf("feed closed unexpectedly")
		}
		return change
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for change")
	}
	return model.ChangeSet[model.Activity]{}
}

func TestInsertNewSkipsExistingKeys(t *testing.T) {
	ctx := context.Background()
	store := NewActivityStore(NewMemoryBackend(), nil)
	defer store.Close()

	first := testActivity(10, 1)
	inserted, err := store.InsertNew(ctx, []model.Activity{first})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if len(inserted) != 1 {
		t.Fatalf("expected one insertion, got %d", len(inserted))
	}

	dup := testActivity(10, 1)
	dup.ID = 999
	dup.Values.Card = model.Attributes{"amount": model.UintValueFrom(1)}
	inserted, err = store.InsertNew(ctx, []model.Activity{dup, dup})
	if err != nil {
		t.Fatalf("insert duplicate: %v", err)
	}
	if len(inserted) != 0 {
		t.Fatalf("duplicate key should not be inserted")
	}

	got, found, err := store.Get(ctx, first.Key())
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if got.ID != first.ID || !got.Values.Equal(first.Values) {
		t.Fatalf("stored activity was overwritten: %+v", got)
	}
}

func TestInsertOverwritesByKey(t *testing.T) {
	ctx := context.Background()
	store := NewActivityStore(NewMemoryBackend(), nil)
	defer store.Close()

	a := testActivity(10, 1)
	if err := store.Insert(ctx, []model.Activity{a}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	b := testActivity(10, 1)
	b.ID = 42
	if err := store.Insert(ctx, []model.Activity{b}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, _, err := store.Get(ctx, a.Key())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != 42 {
		t.Fatalf("expected overwrite, got id %d", got.ID)
	}
	exists, err := store.Exists(ctx, model.ActivityKey{EventName: "Transfer", BlockNumber: 11, TransactionID: "0xabc", LogIndex: 1})
	if err != nil || exists {
		t.Fatalf("unexpected existence: %v %v", exists, err)
	}
}

func TestInsertDropsUnresolvedPending(t *testing.T) {
	ctx := context.Background()
	store := NewActivityStore(NewMemoryBackend(), nil)
	defer store.Close()

	a := testActivity(5, 0)
	a.Values.Token["balance"] = model.PendingValue(model.NewPending())
	a.Values.Token["name"] = model.PendingValue(model.ResolvedPending(model.StringValue("Test")))
	if err := store.Insert(ctx, []model.Activity{a}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, _, err := store.Get(ctx, a.Key())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, ok := got.Values.Token["balance"]; ok {
		t.Fatalf("unresolved pending value should not be stored")
	}
	if name, _ := got.Values.Token["name"].AsString(); name != "Test" {
		t.Fatalf("resolved pending should be stored as its value, got %v", got.Values.Token["name"])
	}
}

func TestCompareAndSwapAttributes(t *testing.T) {
	ctx := context.Background()
	store := NewActivityStore(NewMemoryBackend(), nil)
	defer store.Close()

	a := testActivity(7, 2)
	if err := store.Insert(ctx, []model.Activity{a}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	next := a.Values.Clone()
	next.Token["balance"] = model.UintValueFrom(100)

	stale := a.Values.Clone()
	stale.Card["amount"] = model.UintValueFrom(1)
	swapped, err := store.CompareAndSwapAttributes(ctx, a.Key(), stale, next)
	if err != nil || swapped {
		t.Fatalf("swap against stale values should fail: swapped=%v err=%v", swapped, err)
	}

	swapped, err = store.CompareAndSwapAttributes(ctx, a.Key(), a.Values, next)
	if err != nil || !swapped {
		t.Fatalf("expected swap: swapped=%v err=%v", swapped, err)
	}
	got, _, _ := store.Get(ctx, a.Key())
	if !got.Values.Equal(next) {
		t.Fatalf("values not swapped: %+v", got.Values)
	}

	swapped, err = store.CompareAndSwapAttributes(ctx, a.Key(), next, next)
	if err != nil || swapped {
		t.Fatalf("swap to equal values should be a no-op: swapped=%v err=%v", swapped, err)
	}

	missing := a.Key()
	missing.LogIndex = 99
	if _, err := store.CompareAndSwapAttributes(ctx, missing, next, next); !errors.Is(err, ErrActivityNotFound) {
		t.Fatalf("expected ErrActivityNotFound, got %v", err)
	}
}

func TestChangeFeedReportsDiffs(t *testing.T) {
	ctx := context.Background()
	store := NewActivityStore(NewMemoryBackend(), nil)
	defer store.Close()

	older := testActivity(10, 0)
	if err := store.Insert(ctx, []model.Activity{older}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	sub, err := store.ChangeFeed(ctx, model.NoFilter())
	if err != nil {
		t.Fatalf("change feed: %v", err)
	}
	defer sub.Unsubscribe()

	initial := nextChange(t, sub)
	if initial.Kind != model.ChangeInitial || len(initial.Items) != 1 {
		t.Fatalf("unexpected initial change: %+v", initial)
	}

	newer := testActivity(20, 0)
	if _, err := store.InsertNew(ctx, []model.Activity{newer}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	update := nextChange(t, sub)
	inserted := update.Inserted()
	if len(inserted) != 1 || inserted[0].PrimaryKey() != newer.PrimaryKey() {
		t.Fatalf("unexpected insertion: %+v", update)
	}
	if update.Items[0].BlockNumber != 20 {
		t.Fatalf("items should be ordered newest first")
	}

	values := older.Values.Clone()
	values.Card["amount"] = model.UintValueFrom(1)
	if err := store.UpdateAttributes(ctx, older.Key(), values.Token, values.Card); err != nil {
		t.Fatalf("update: %v", err)
	}
	update = nextChange(t, sub)
	if len(update.Modifications) != 1 || update.Items[update.Modifications[0]].PrimaryKey() != older.PrimaryKey() {
		t.Fatalf("unexpected modification: %+v", update)
	}
	if len(update.Inserted()) != 0 {
		t.Fatalf("modification must not report insertions")
	}

	if err := store.ResetAll(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	update = nextChange(t, sub)
	if len(update.Deletions) != 2 || len(update.Items) != 0 {
		t.Fatalf("unexpected reset change: %+v", update)
	}
}

func TestChangeFeedFiltersByContract(t *testing.T) {
	ctx := context.Background()
	store := NewActivityStore(NewMemoryBackend(), nil)
	defer store.Close()

	other := testActivity(3, 0)
	other.EventName = "Approval"
	other.Token.Contract = common.HexToAddress("0x2222222222222222222222222222222222222222")

	sub, err := store.ChangeFeed(ctx, model.FilterByContract(testToken.Contract))
	if err != nil {
		t.Fatalf("change feed: %v", err)
	}
	defer sub.Unsubscribe()
	nextChange(t, sub)

	if err := store.Insert(ctx, []model.Activity{other, testActivity(4, 0)}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	update := nextChange(t, sub)
	if len(update.Items) != 1 || update.Items[0].Token.Contract != testToken.Contract {
		t.Fatalf("filter not applied: %+v", update.Items)
	}
}

// slowBackend widens the gap between the existence check and the write and counts writes per key.
type slowBackend struct {
	*MemoryBackend
	mu     sync.Mutex
	writes map[string]int
}

func (b *slowBackend) Get(ctx context.Context, key string) (model.Activity, bool, error) {
	time.Sleep(200 * time.Microsecond)
	return b.MemoryBackend.Get(ctx, key)
}

func (b *slowBackend) Upsert(ctx context.Context, activities []model.Activity) error {
	b.mu.Lock()
	for _, a := range activities {
		b.writes[a.PrimaryKey()]++
	}
	b.mu.Unlock()
	return b.MemoryBackend.Upsert(ctx, activities)
}

func TestInsertNewConcurrentPassesWriteEachKeyOnce(t *testing.T) {
	ctx := context.Background()
	backend := &slowBackend{MemoryBackend: NewMemoryBackend(), writes: map[string]int{}}
	store := NewActivityStore(backend, nil)
	defer store.Close()

	const passes = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for p := 0; p < passes; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			batch := make([]model.Activity, 0, 5)
			for block := p; block < p+5; block++ {
				batch = append(batch, testActivity(uint64(block), 0))
			}
			fresh, err := store.InsertNew(ctx, batch)
			if err != nil {
				t.Errorf("insert pass %d: %v", p, err)
				return
			}
			mu.Lock()
			inserted += len(fresh)
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	const distinct = passes + 4
	if inserted != distinct {
		t.Fatalf("expected %d inserted activities across passes, got %d", distinct, inserted)
	}
	stored, err := backend.List(ctx, model.NoFilter())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != distinct {
		t.Fatalf("expected %d stored activities, got %d", distinct, len(stored))
	}
	for key, n := range backend.writes {
		if n != 1 {
			t.Fatalf("activity %s written %d times", key, n)
		}
	}
}
