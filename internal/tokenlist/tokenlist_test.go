package tokenlist

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"activityScope/internal/model"
)

func TestParseTokens(t *testing.T) {
	doc := `
tokens:
  - contract: "0x1111111111111111111111111111111111111111"
    network: 1
    type: erc20
    symbol: TST
    decimals: 18
  - contract: "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"
    network: 1
    type: native
    symbol: ETH
`
	tokens, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(tokens))
	}
	if tokens[0].Type != model.TokenERC20 || tokens[0].Decimals != 18 {
		t.Fatalf("unexpected token: %+v", tokens[0])
	}
	if !tokens[1].IsNativeAsset() || tokens[1].Type != model.TokenNative {
		t.Fatalf("expected native asset: %+v", tokens[1])
	}

	if _, err := Parse([]byte("tokens:\n  - contract: nope\n    network: 1\n    type: erc20\n")); err == nil {
		t.Fatalf("expected error for invalid contract")
	}
}

func TestStoreFeedAndLookup(t *testing.T) {
	store := NewStore()
	defer store.Close()

	token := model.Token{Contract: common.HexToAddress("0x1111111111111111111111111111111111111111"), Network: 1, Type: model.TokenERC20, Symbol: "TST"}
	sub := store.ChangeFeed(context.Background())
	defer sub.Unsubscribe()

	next := func() model.ChangeSet[model.Token] {
		select {
		case change := <-sub.C():
			return change
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for change")
		}
		return model.ChangeSet[model.Token]{}
	}
	if initial := next(); initial.Kind != model.ChangeInitial || len(initial.Items) != 0 {
		t.Fatalf("unexpected initial change: %+v", initial)
	}

	store.Put(token)
	if update := next(); len(update.Insertions) != 1 || !update.HasMembershipChange() {
		t.Fatalf("unexpected insert change: %+v", update)
	}

	renamed := token
	renamed.Symbol = "TST2"
	store.Put(renamed)
	if update := next(); len(update.Modifications) != 1 || update.HasMembershipChange() {
		t.Fatalf("rename should be a pure modification: %+v", update)
	}

	got, ok := store.Lookup(token.Contract, 1)
	if !ok || got.Symbol != "TST2" {
		t.Fatalf("lookup mismatch: %+v %v", got, ok)
	}
	if _, ok := store.Lookup(token.Contract, 137); ok {
		t.Fatalf("lookup on other network should miss")
	}

	store.Remove(token)
	if update := next(); len(update.Deletions) != 1 {
		t.Fatalf("unexpected remove change: %+v", update)
	}
}
