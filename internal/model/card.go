package model

import "github.com/ethereum/go-ethereum/common"

// EventParameter is a declared parameter of a card's origin event.
type EventParameter struct {
	Name    string `json:"name" yaml:"name"`
	Type    string `json:"type" yaml:"type"`
	Indexed bool   `json:"indexed" yaml:"indexed"`
}

// EventOrigin declares which contract event feeds a card.
type EventOrigin struct {
	Contract    common.Address
	EventName   string
	Parameters  []EventParameter
	FilterName  string
	FilterValue string
}

// View is an html/style pair rendered by the client. It is passed through untouched.
type View struct {
	HTML  string `json:"html"`
	Style string `json:"style"`
}

// CardTemplate maps an event to a displayable activity kind.
type CardTemplate struct {
	Name     string
	IsBase   bool
	Origin   EventOrigin
	View     View
	ItemView View
}

// NetworkScope is the set of networks a token script applies to.
type NetworkScope struct {
	Any     bool
	Network uint64
}

func AnyNetwork() NetworkScope { return NetworkScope{Any: true} }

func OnNetwork(network uint64) NetworkScope { return NetworkScope{Network: network} }

// Matches reports whether the scope covers network.
func (s NetworkScope) Matches(network uint64) bool {
	return s.Any || s.Network == network
}

// TokenScript groups the activity cards declared for one token contract.
type TokenScript struct {
	Contract common.Address
	Scope    NetworkScope
	Cards    []CardTemplate
}

// TokenCardBinding is a card resolved against a concrete network and wallet.
type TokenCardBinding struct {
	Token              Token
	Network            uint64
	Card               CardTemplate
	InterpolatedFilter string
}
