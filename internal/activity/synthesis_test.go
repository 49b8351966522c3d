package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"activityScope/internal/cards"
	"activityScope/internal/eventsource"
	"activityScope/internal/model"
	"activityScope/internal/storage"
	"activityScope/internal/tokenlist"
)

type synthesisFixture struct {
	events  *eventsource.Store
	tokens  *tokenlist.Store
	backend *storage.MemoryBackend
	store   *storage.ActivityStore
	synth   *Synthesizer
}

func newSynthesisFixture(t *testing.T, networks []uint64, querier func(*eventsource.Store) EventQuerier) *synthesisFixture {
	t.Helper()
	f := &synthesisFixture{
		events:  eventsource.NewStore(),
		tokens:  tokenlist.NewStore(),
		backend: storage.NewMemoryBackend(),
	}
	f.store = storage.NewActivityStore(f.backend, nil)
	f.tokens.Put(erc20Token)

	registry := cards.NewRegistry(model.TokenScript{
		Contract: erc20Address,
		Scope:    model.AnyNetwork(),
		Cards:    []model.CardTemplate{sentCard("${ownerAddress}")},
	})

	var events EventQuerier = f.events
	if querier != nil {
		events = querier(f.events)
	}
	f.synth = NewSynthesizer(
		SynthesizerConfig{Wallet: wallet, Networks: networks, Workers: 2},
		events,
		registry,
		NewFactory(wallet, f.tokens),
		NewHolderCache(nil),
		f.store,
		nil,
	)
	f.synth.SetTokens(f.tokens.Tokens())

	t.Cleanup(func() {
		f.synth.Close()
		f.store.Close()
		f.events.Close()
		f.tokens.Close()
	})
	return f
}

func transferFrom(from common.Address, network, block uint64, tx string) model.RawEvent {
	return model.RawEvent{
		Contract:      erc20Address,
		Network:       network,
		EventName:     "Transfer",
		BlockNumber:   block,
		TransactionID: tx,
		Timestamp:     time.Unix(int64(1700000000+block), 0).UTC(),
		Data: model.Attributes{
			"from":  model.AddressValue(from),
			"to":    model.AddressValue(common.HexToAddress("0x02")),
			"value": model.UintValueFrom(block),
		},
	}
}

func (f *synthesisFixture) stored(t *testing.T) []model.Activity {
	t.Helper()
	list, err := f.backend.List(context.Background(), model.NoFilter())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	return list
}

func TestSynthesisPassIsIdempotent(t *testing.T) {
	f := newSynthesisFixture(t, []uint64{1}, nil)
	f.events.Add([]model.RawEvent{
		transferFrom(wallet, 1, 10, "0xa"),
		transferFrom(wallet, 1, 11, "0xb"),
		transferFrom(common.HexToAddress("0x03"), 1, 12, "0xc"),
	})
	ctx := context.Background()

	inserted, err := f.synth.RunPass(ctx)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if inserted != 2 {
		t.Fatalf("expected 2 inserted, got %d", inserted)
	}

	inserted, err = f.synth.RunPass(ctx)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if inserted != 0 {
		t.Fatalf("second pass should insert nothing, got %d", inserted)
	}

	stored := f.stored(t)
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored activities, got %d", len(stored))
	}
	if stored[0].BlockNumber != 11 || stored[1].BlockNumber != 10 {
		t.Fatalf("expected newest first, got %d %d", stored[0].BlockNumber, stored[1].BlockNumber)
	}
	if len(f.synth.Bindings()) != 1 {
		t.Fatalf("expected one binding, got %d", len(f.synth.Bindings()))
	}
}

type failingQuerier struct {
	inner   EventQuerier
	network uint64
}

func (q failingQuerier) Query(ctx context.Context, contract common.Address, network uint64, eventName, filter string) ([]model.RawEvent, error) {
	if network == q.network {
		return nil, errors.New("query failed")
	}
	return q.inner.Query(ctx, contract, network, eventName, filter)
}

func TestSynthesisIsolatesBindingErrors(t *testing.T) {
	f := newSynthesisFixture(t, []uint64{1, 137}, func(s *eventsource.Store) EventQuerier {
		return failingQuerier{inner: s, network: 137}
	})
	f.events.Add([]model.RawEvent{
		transferFrom(wallet, 1, 10, "0xa"),
		transferFrom(wallet, 137, 20, "0xb"),
	})

	inserted, err := f.synth.RunPass(context.Background())
	if err != nil {
		t.Fatalf("pass: %v", err)
	}
	if inserted != 1 {
		t.Fatalf("expected the healthy binding to insert 1, got %d", inserted)
	}
	if stored := f.stored(t); len(stored) != 1 || stored[0].Network != 1 {
		t.Fatalf("unexpected stored activities: %+v", stored)
	}
}

func TestSynthesisRunWaitsForEveryFeed(t *testing.T) {
	f := newSynthesisFixture(t, []uint64{1}, nil)
	f.synth.SetTokens(nil)
	f.events.Add([]model.RawEvent{transferFrom(wallet, 1, 10, "0xa")})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan model.ChangeSet[model.RawEvent], 1)
	tokens := make(chan model.ChangeSet[model.Token], 1)
	done := make(chan error, 1)
	go func() {
		done <- f.synth.Run(ctx, events, nil, tokens)
	}()

	tokens <- model.InitialChange(f.tokens.Tokens())
	time.Sleep(50 * time.Millisecond)
	if stored := f.stored(t); len(stored) != 0 {
		t.Fatalf("no pass should run before the event feed delivers, got %d", len(stored))
	}

	events <- model.InitialChange[model.RawEvent](nil)
	deadline := time.Now().Add(2 * time.Second)
	for len(f.stored(t)) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for a synthesis pass")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("unexpected run error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
}
