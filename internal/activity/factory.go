package activity

import (
	"math"
	"math/rand/v2"

	"github.com/ethereum/go-ethereum/common"

	"activityScope/internal/model"
)

// Card name of the native-asset mint event whose zero-amount instances are noise.
const nativeMintCard = "aETHMinted"

// TokenLookup resolves tokens from the token list. *tokenlist.Store satisfies it.
type TokenLookup interface {
	Lookup(contract common.Address, network uint64) (model.Token, bool)
}

// Factory turns raw events into candidate activities for one wallet.
type Factory struct {
	wallet common.Address
	tokens TokenLookup
	nextID func() int64
}

// NewFactory builds a Factory for wallet that resolves tokens through tokens.
func NewFactory(wallet common.Address, tokens TokenLookup) *Factory {
	return &Factory{
		wallet: wallet,
		tokens: tokens,
		nextID: func() int64 { return rand.Int64N(math.MaxInt64) },
	}
}

// Create maps event through card. It returns false when the event yields no activity:
// the token is not in the token list, or the event is a zero-amount native mint.
func (f *Factory) Create(event model.RawEvent, network uint64, token model.Token, card model.CardTemplate, filter string) (model.Activity, bool) {
	tokenValues := f.implicitTokenAttributes(token)
	cardValues := implicitCardAttributes(event).Merge(event.Data)

	for _, param := range card.Origin.Parameters {
		original, ok := cardValues[param.Name]
		if !ok {
			continue
		}
		typ, ok := model.ParseSolidityType(param.Type)
		if !ok {
			continue
		}
		cardValues[param.Name] = typ.Coerce(original)
	}

	if card.Name == nativeMintCard && token.IsNativeAsset() && isZeroUint(cardValues["amount"]) {
		return model.Activity{}, false
	}

	stored, ok := f.tokens.Lookup(token.Contract, token.Network)
	if !ok {
		return model.Activity{}, false
	}

	return model.Activity{
		ID:               f.nextID(),
		Token:            stored,
		Network:          event.Network,
		Name:             card.Name,
		EventName:        event.EventName,
		BlockNumber:      event.BlockNumber,
		TransactionID:    event.TransactionID,
		TransactionIndex: event.TransactionIndex,
		LogIndex:         event.LogIndex,
		Timestamp:        event.Timestamp,
		Values:           model.ActivityValues{Token: tokenValues, Card: cardValues},
		View:             card.View,
		ItemView:         card.ItemView,
		IsBaseCard:       card.IsBase,
		State:            model.ActivityCompleted,
	}, true
}

// Token id and label are never injected: the id is unknown at this stage.
func (f *Factory) implicitTokenAttributes(token model.Token) model.Attributes {
	values := model.Attributes{
		attrOwnerAddress: model.AddressValue(f.wallet),
		attrSymbol:       model.StringValue(token.Symbol),
	}
	if !token.IsNativeAsset() {
		values[attrContractAddress] = model.AddressValue(token.Contract)
	}
	return values
}

func implicitCardAttributes(event model.RawEvent) model.Attributes {
	return model.Attributes{
		attrTimestamp: model.TimestampValue(event.Timestamp),
	}
}

func isZeroUint(v model.AttributeValue) bool {
	n, ok := v.AsUint()
	return ok && n.Sign() == 0
}
