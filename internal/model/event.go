package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// RawEvent is a decoded contract log observed by the event store.
type RawEvent struct {
	Contract         common.Address
	Network          uint64
	EventName        string
	BlockNumber      uint64
	TransactionID    string
	TransactionIndex uint64
	LogIndex         uint64
	Timestamp        time.Time
	Data             Attributes
}

// Key identifies the log uniquely within a network.
func (e RawEvent) Key() string {
	return ActivityKey{
		EventName:        e.EventName,
		BlockNumber:      e.BlockNumber,
		TransactionID:    e.TransactionID,
		TransactionIndex: e.TransactionIndex,
		LogIndex:         e.LogIndex,
	}.String()
}
