package activity

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"activityScope/internal/model"
)

// ImplicitAttribute names a value derivable from context rather than event data.
type ImplicitAttribute int

const (
	ImplicitNone ImplicitAttribute = iota
	ImplicitOwnerAddress
	ImplicitLabel
	ImplicitContractAddress
	ImplicitSymbol
	ImplicitTokenID
)

const (
	attrOwnerAddress    = "ownerAddress"
	attrLabel           = "label"
	attrContractAddress = "contractAddress"
	attrSymbol          = "symbol"
	attrTokenID         = "tokenId"
	attrTimestamp       = "timestamp"
)

// ClassifyFilterValue recognises placeholders of the form "${name}".
func ClassifyFilterValue(value string) ImplicitAttribute {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") {
		return ImplicitNone
	}
	switch value[2 : len(value)-1] {
	case attrOwnerAddress:
		return ImplicitOwnerAddress
	case attrLabel:
		return ImplicitLabel
	case attrContractAddress:
		return ImplicitContractAddress
	case attrSymbol:
		return ImplicitSymbol
	case attrTokenID:
		return ImplicitTokenID
	default:
		return ImplicitNone
	}
}

// TokenCards pairs a token with the cards declared for it and the networks they apply to.
type TokenCards struct {
	Token model.Token
	Scope model.NetworkScope
	Cards []model.CardTemplate
}

// MapBindings expands cards into concrete bindings for wallet and the enabled networks.
// Only owner-address filters can be interpolated; cards with any other filter are skipped.
// A card scoped to a single network yields a binding only when that network is enabled.
func MapBindings(pairs []TokenCards, wallet common.Address, enabled []uint64) []model.TokenCardBinding {
	enabledSet := make(map[uint64]struct{}, len(enabled))
	for _, network := range enabled {
		enabledSet[network] = struct{}{}
	}

	var out []model.TokenCardBinding
	for _, pair := range pairs {
		for _, card := range pair.Cards {
			if ClassifyFilterValue(card.Origin.FilterValue) != ImplicitOwnerAddress {
				continue
			}
			filter := card.Origin.FilterName + "=" + wallet.Hex()

			if pair.Scope.Any {
				for _, network := range enabled {
					out = append(out, model.TokenCardBinding{Token: pair.Token, Network: network, Card: card, InterpolatedFilter: filter})
				}
				continue
			}
			if _, ok := enabledSet[pair.Scope.Network]; !ok {
				continue
			}
			out = append(out, model.TokenCardBinding{Token: pair.Token, Network: pair.Scope.Network, Card: card, InterpolatedFilter: filter})
		}
	}
	return out
}
