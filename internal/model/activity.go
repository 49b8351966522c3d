package model

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ActivityState is the lifecycle state of an activity.
type ActivityState int

const (
	ActivityPending ActivityState = iota
	ActivityCompleted
	ActivityFailed
)

func (s ActivityState) String() string {
	switch s {
	case ActivityPending:
		return "pending"
	case ActivityCompleted:
		return "completed"
	case ActivityFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ActivityKey is the natural identity of an activity.
type ActivityKey struct {
	EventName        string
	BlockNumber      uint64
	TransactionID    string
	TransactionIndex uint64
	LogIndex         uint64
}

// String is the stored primary key.
func (k ActivityKey) String() string {
	return fmt.Sprintf("%s-%d-%s-%d-%d", k.EventName, k.BlockNumber, k.TransactionID, k.TransactionIndex, k.LogIndex)
}

// ActivityValues holds the two attribute maps of an activity.
type ActivityValues struct {
	Token Attributes `json:"token"`
	Card  Attributes `json:"card"`
}

func (v ActivityValues) Equal(other ActivityValues) bool {
	return v.Token.Equal(other.Token) && v.Card.Equal(other.Card)
}

func (v ActivityValues) Persistable() ActivityValues {
	return ActivityValues{Token: v.Token.Persistable(), Card: v.Card.Persistable()}
}

func (v ActivityValues) Clone() ActivityValues {
	return ActivityValues{Token: v.Token.Clone(), Card: v.Card.Clone()}
}

// Activity is one on-chain event interpreted through a card template.
type Activity struct {
	// ID distinguishes stored copies of the same key; it is not part of identity.
	ID               int64
	Token            Token
	Network          uint64
	Name             string
	EventName        string
	BlockNumber      uint64
	TransactionID    string
	TransactionIndex uint64
	LogIndex         uint64
	Timestamp        time.Time
	Values           ActivityValues
	View             View
	ItemView         View
	IsBaseCard       bool
	State            ActivityState
}

func (a Activity) Key() ActivityKey {
	return ActivityKey{
		EventName:        a.EventName,
		BlockNumber:      a.BlockNumber,
		TransactionID:    a.TransactionID,
		TransactionIndex: a.TransactionIndex,
		LogIndex:         a.LogIndex,
	}
}

func (a Activity) PrimaryKey() string {
	return a.Key().String()
}

// Clone copies the attribute maps so the result can be mutated independently.
func (a Activity) Clone() Activity {
	a.Values = a.Values.Clone()
	return a
}

// Equal compares every stored field.
func (a Activity) Equal(other Activity) bool {
	return a.ID == other.ID &&
		a.Token == other.Token &&
		a.Network == other.Network &&
		a.Name == other.Name &&
		a.Key() == other.Key() &&
		a.Timestamp.Equal(other.Timestamp) &&
		a.Values.Equal(other.Values) &&
		a.View == other.View &&
		a.ItemView == other.ItemView &&
		a.IsBaseCard == other.IsBaseCard &&
		a.State == other.State
}

// NativeViewType is the built-in presentation kind for base cards.
type NativeViewType string

const (
	NativeViewNone                   NativeViewType = ""
	NativeViewNativeCryptoSent       NativeViewType = "nativeCryptoSent"
	NativeViewNativeCryptoReceived   NativeViewType = "nativeCryptoReceived"
	NativeViewERC20Sent              NativeViewType = "erc20Sent"
	NativeViewERC20Received          NativeViewType = "erc20Received"
	NativeViewERC20OwnerApproved     NativeViewType = "erc20OwnerApproved"
	NativeViewERC20ApprovalObtained  NativeViewType = "erc20ApprovalObtained"
	NativeViewERC721Sent             NativeViewType = "erc721Sent"
	NativeViewERC721Received         NativeViewType = "erc721Received"
	NativeViewERC721OwnerApproved    NativeViewType = "erc721OwnerApproved"
	NativeViewERC721ApprovalObtained NativeViewType = "erc721ApprovalObtained"
)

// NativeViewType maps base cards of known token types to a built-in view.
func (a Activity) NativeViewType() NativeViewType {
	switch a.Token.Type {
	case TokenNative:
		switch a.Name {
		case "sent":
			return NativeViewNativeCryptoSent
		case "received":
			return NativeViewNativeCryptoReceived
		}
	case TokenERC20:
		if !a.IsBaseCard {
			return NativeViewNone
		}
		switch a.Name {
		case "sent":
			return NativeViewERC20Sent
		case "received":
			return NativeViewERC20Received
		case "ownerApproved":
			return NativeViewERC20OwnerApproved
		case "approvalObtained":
			return NativeViewERC20ApprovalObtained
		}
	case TokenERC721, TokenERC1155:
		if !a.IsBaseCard {
			return NativeViewNone
		}
		switch a.Name {
		case "sent":
			return NativeViewERC721Sent
		case "received":
			return NativeViewERC721Received
		case "ownerApproved":
			return NativeViewERC721OwnerApproved
		case "approvalObtained":
			return NativeViewERC721ApprovalObtained
		}
	}
	return NativeViewNone
}

// ActivityFilter selects a subset of stored activities.
type ActivityFilter struct {
	Contract *common.Address
	TokenKey string
}

// NoFilter matches every activity.
func NoFilter() ActivityFilter { return ActivityFilter{} }

func FilterByContract(contract common.Address) ActivityFilter {
	return ActivityFilter{Contract: &contract}
}

// FilterByNativeAsset selects activities of one native-asset token by its primary key.
func FilterByNativeAsset(tokenKey string) ActivityFilter {
	return ActivityFilter{TokenKey: tokenKey}
}

func (f ActivityFilter) Matches(a Activity) bool {
	if f.Contract != nil && a.Token.Contract != *f.Contract {
		return false
	}
	if f.TokenKey != "" && a.Token.PrimaryKey() != f.TokenKey {
		return false
	}
	return true
}
