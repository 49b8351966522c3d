package model

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NativeAssetAddress is the placeholder contract under which a chain's native asset is stored.
var NativeAssetAddress = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// TokenType classifies a token contract.
type TokenType string

const (
	TokenNative  TokenType = "nativeCryptocurrency"
	TokenERC20   TokenType = "erc20"
	TokenERC721  TokenType = "erc721"
	TokenERC875  TokenType = "erc875"
	TokenERC1155 TokenType = "erc1155"
)

// ParseTokenType accepts the canonical names case-insensitively, plus "native".
func ParseTokenType(raw string) (TokenType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "native", "nativecryptocurrency":
		return TokenNative, nil
	case "erc20":
		return TokenERC20, nil
	case "erc721":
		return TokenERC721, nil
	case "erc875":
		return TokenERC875, nil
	case "erc1155":
		return TokenERC1155, nil
	default:
		return "", fmt.Errorf("unsupported token type: %s", raw)
	}
}

// Token is an entry of the token list.
type Token struct {
	Contract common.Address `json:"contract"`
	Network  uint64         `json:"network"`
	Type     TokenType      `json:"type"`
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
	Decimals uint8          `json:"decimals"`
}

// PrimaryKey identifies a token across networks.
func (t Token) PrimaryKey() string {
	return TokenPrimaryKey(t.Contract, t.Network)
}

func (t Token) IsNativeAsset() bool {
	return t.Contract == NativeAssetAddress
}

func TokenPrimaryKey(contract common.Address, network uint64) string {
	return fmt.Sprintf("%s-%d", contract.Hex(), network)
}

// HolderToken is one token unit owned by a holder.
type HolderToken struct {
	ID    string    `json:"id"`
	Type  TokenType `json:"type"`
	Index int       `json:"index"`
}

// TokenHolder is a decoded snapshot of a token's attribute state for the wallet owner.
type TokenHolder struct {
	Contract           common.Address
	Tokens             []HolderToken
	Values             Attributes
	HasAssetDefinition bool
}
