package model

import "time"

// OperationType classifies a localized token operation.
type OperationType string

const (
	OperationNativeTransfer OperationType = "nativeCurrencyTokenTransfer"
	OperationERC20Transfer  OperationType = "erc20TokenTransfer"
	OperationERC721Transfer OperationType = "erc721TokenTransfer"
	OperationUnknown        OperationType = "unknown"
)

// TransactionState is the completion state of a transaction.
type TransactionState string

const (
	TransactionCompleted TransactionState = "completed"
	TransactionPending   TransactionState = "pending"
	TransactionFailed    TransactionState = "error"
)

// LocalizedOperation is one token movement inside a transaction.
type LocalizedOperation struct {
	From     string        `json:"from"`
	To       string        `json:"to"`
	Contract string        `json:"contract"`
	Type     OperationType `json:"type"`
	Value    string        `json:"value"`
	TokenID  string        `json:"token_id"`
	Symbol   string        `json:"symbol"`
	Name     string        `json:"name"`
	Decimals int           `json:"decimals"`
}

// TransactionRecord is a transaction assembled from explorer history.
type TransactionRecord struct {
	ID                 string               `json:"id"`
	Network            uint64               `json:"network"`
	BlockNumber        uint64               `json:"block_number"`
	TransactionIndex   uint64               `json:"transaction_index"`
	From               string               `json:"from"`
	To                 string               `json:"to"`
	Value              string               `json:"value"`
	Gas                string               `json:"gas"`
	GasPrice           string               `json:"gas_price"`
	GasUsed            string               `json:"gas_used"`
	Nonce              string               `json:"nonce"`
	Timestamp          time.Time            `json:"timestamp"`
	Operations         []LocalizedOperation `json:"operations"`
	IsERC20Interaction bool                 `json:"is_erc20_interaction"`
	State              TransactionState     `json:"state"`
}
