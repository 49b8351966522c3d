package holders

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"activityScope/internal/model"
)

type fakeCaller struct {
	t       *testing.T
	balance *big.Int
	release chan struct{}
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	parsed, err := erc20ABIStringInstance()
	if err != nil {
		f.t.Fatalf("abi: %v", err)
	}
	for name, method := range parsed.Methods {
		if !bytes.HasPrefix(msg.Data, method.ID) {
			continue
		}
		switch name {
		case "name":
			return method.Outputs.Pack("Test Token")
		case "symbol":
			return method.Outputs.Pack("TST")
		case "decimals":
			return method.Outputs.Pack(uint8(6))
		case "balanceOf":
			if f.release != nil {
				<-f.release
			}
			if f.balance == nil {
				return nil, errors.New("execution reverted")
			}
			return method.Outputs.Pack(f.balance)
		}
	}
	return nil, errors.New("unknown method")
}

func TestChainSourceResolvesBalanceLater(t *testing.T) {
	caller := &fakeCaller{t: t, balance: big.NewInt(1500), release: make(chan struct{})}
	owner := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	source := NewChainSource(caller, owner, nil)

	token := model.Token{Contract: common.HexToAddress("0x1111111111111111111111111111111111111111"), Network: 1, Type: model.TokenERC20}
	holders, err := source.Holders(context.Background(), token)
	if err != nil {
		t.Fatalf("holders: %v", err)
	}
	if len(holders) != 1 {
		t.Fatalf("expected one holder, got %d", len(holders))
	}

	late := make(chan model.Attributes, 1)
	now := holders[0].Values.Resolve(func(values model.Attributes) { late <- values })
	if name, _ := now["name"].AsString(); name != "Test Token" {
		t.Fatalf("name mismatch: %v", now["name"])
	}
	if decimals, _ := now["decimals"].AsUint(); decimals == nil || decimals.Int64() != 6 {
		t.Fatalf("decimals mismatch: %v", now["decimals"])
	}
	if _, ok := now["balance"]; ok {
		t.Fatalf("balance should not be available before the call returns")
	}

	close(caller.release)
	select {
	case values := <-late:
		if balance, _ := values["balance"].AsUint(); balance == nil || balance.Int64() != 1500 {
			t.Fatalf("balance mismatch: %v", values["balance"])
		}
		if symbol, _ := values["symbol"].AsString(); symbol != "TST" {
			t.Fatalf("late set should include immediate values")
		}
	case <-time.After(time.Second):
		t.Fatalf("balance never resolved")
	}
}

func TestChainSourceDropsFailedBalance(t *testing.T) {
	caller := &fakeCaller{t: t, release: make(chan struct{})}
	source := NewChainSource(caller, common.Address{}, nil)
	token := model.Token{Contract: common.HexToAddress("0x1111111111111111111111111111111111111111"), Network: 1, Type: model.TokenERC721}

	holders, err := source.Holders(context.Background(), token)
	if err != nil {
		t.Fatalf("holders: %v", err)
	}

	late := make(chan model.Attributes, 1)
	holders[0].Values.Resolve(func(values model.Attributes) { late <- values })
	close(caller.release)
	select {
	case values := <-late:
		if _, ok := values["balance"]; ok {
			t.Fatalf("failed balance should be left out")
		}
		if _, ok := values["decimals"]; ok {
			t.Fatalf("non-fungible tokens carry no decimals")
		}
	case <-time.After(time.Second):
		t.Fatalf("late values never delivered")
	}
}

func TestRouterDispatchesByNetwork(t *testing.T) {
	polygon := NewChainSource(nil, common.Address{}, nil)
	router := Router{137: polygon}

	if _, err := router.Holders(context.Background(), model.Token{Network: 1}); err == nil {
		t.Fatalf("expected an error for a network without a source")
	}
	if _, err := router.Holders(context.Background(), model.Token{Network: 137}); err == nil {
		t.Fatalf("expected the routed source to report its missing caller")
	}
}
