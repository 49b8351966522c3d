package eventsource

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"activityScope/internal/model"
)

var (
	contract = common.HexToAddress("0x1111111111111111111111111111111111111111")
	wallet   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

func transfer(block uint64, from common.Address) model.RawEvent {
	return model.RawEvent{
		Contract:      contract,
		Network:       1,
		EventName:     "Transfer",
		BlockNumber:   block,
		TransactionID: "0xabc",
		Data: model.Attributes{
			"from":  model.AddressValue(from),
			"value": model.UintValueFrom(block),
		},
	}
}

func TestQueryFiltersAndSorts(t *testing.T) {
	store := NewStore()
	defer store.Close()

	other := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	store.Add([]model.RawEvent{transfer(30, wallet), transfer(10, wallet), transfer(20, other)})

	got, err := store.Query(context.Background(), contract, 1, "Transfer", "from="+wallet.Hex())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 || got[0].BlockNumber != 10 || got[1].BlockNumber != 30 {
		t.Fatalf("unexpected events: %+v", got)
	}

	lower, err := store.Query(context.Background(), contract, 1, "Transfer", "from=0x00000000000000000000000000000000000000AA")
	if err != nil || len(lower) != 2 {
		t.Fatalf("filter should compare case-insensitively: %d %v", len(lower), err)
	}

	none, err := store.Query(context.Background(), contract, 5, "Transfer", "")
	if err != nil || len(none) != 0 {
		t.Fatalf("other network should not match: %d %v", len(none), err)
	}

	if _, err := store.Query(context.Background(), contract, 1, "Transfer", "from"); err == nil {
		t.Fatalf("expected error for malformed filter")
	}
}

func TestChangeFeedReportsInsertions(t *testing.T) {
	store := NewStore()
	defer store.Close()
	store.Add([]model.RawEvent{transfer(10, wallet)})

	sub := store.ChangeFeed(context.Background())
	defer sub.Unsubscribe()

	next := func() model.ChangeSet[model.RawEvent] {
		select {
		case change := <-sub.C():
			return change
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for change")
		}
		return model.ChangeSet[model.RawEvent]{}
	}

	if initial := next(); initial.Kind != model.ChangeInitial || len(initial.Items) != 1 {
		t.Fatalf("unexpected initial change: %+v", initial)
	}

	store.Add([]model.RawEvent{transfer(5, wallet), transfer(10, wallet)})
	update := next()
	inserted := update.Inserted()
	if len(inserted) != 1 || inserted[0].BlockNumber != 5 {
		t.Fatalf("unexpected insertions: %+v", update)
	}
	if len(update.Modifications) != 1 || update.Items[update.Modifications[0]].BlockNumber != 10 {
		t.Fatalf("unexpected modifications: %+v", update)
	}
}
