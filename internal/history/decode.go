package history

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"activityScope/internal/model"
)

// envelope is the etherscan-style response wrapper. result is an array on success
// and a string on failure or when there is nothing to return.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type transferItem struct {
	Hash             string `json:"hash"`
	BlockNumber      string `json:"blockNumber"`
	TransactionIndex string `json:"transactionIndex"`
	TimeStamp        string `json:"timeStamp"`
	From             string `json:"from"`
	To               string `json:"to"`
	ContractAddress  string `json:"contractAddress"`
	Value            string `json:"value"`
	TokenID          string `json:"tokenID"`
	TokenName        string `json:"tokenName"`
	TokenSymbol      string `json:"tokenSymbol"`
	TokenDecimal     string `json:"tokenDecimal"`
	Gas              string `json:"gas"`
	GasPrice         string `json:"gasPrice"`
	GasUsed          string `json:"gasUsed"`
	Nonce            string `json:"nonce"`
}

type normalItem struct {
	Hash             string `json:"hash"`
	BlockNumber      string `json:"blockNumber"`
	TransactionIndex string `json:"transactionIndex"`
	TimeStamp        string `json:"timeStamp"`
	From             string `json:"from"`
	To               string `json:"to"`
	Value            string `json:"value"`
	Gas              string `json:"gas"`
	GasPrice         string `json:"gasPrice"`
	GasUsed          string `json:"gasUsed"`
	Nonce            string `json:"nonce"`
	IsError          string `json:"isError"`
}

// decodeResult unpacks the result array of body into out. A string result means no items,
// unless the explorer reported a failure other than an empty result.
func decodeResult(body []byte, out any) (bool, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return false, fmt.Errorf("decode explorer response: %w", err)
	}
	trimmed := strings.TrimSpace(string(env.Result))
	if trimmed == "" || trimmed == "null" {
		return false, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return false, fmt.Errorf("decode explorer result: %w", err)
		}
		return true, nil
	}

	var text string
	_ = json.Unmarshal(env.Result, &text)
	if env.Status == "0" && strings.HasPrefix(strings.ToLower(env.Message), "no transactions found") {
		return false, nil
	}
	return false, fmt.Errorf("explorer: %s: %s", env.Message, text)
}

// decodeTransfers turns token transfer items into one record per block. Items sent to
// a non-hex destination are dropped.
func decodeTransfers(items []transferItem, network uint64) []model.TransactionRecord {
	records := make([]model.TransactionRecord, 0, len(items))
	for _, item := range items {
		if !strings.HasPrefix(item.To, "0x") {
			continue
		}
		opType := model.OperationERC20Transfer
		if item.TokenID != "" {
			opType = model.OperationERC721Transfer
		}
		decimals, _ := strconv.Atoi(item.TokenDecimal)

		records = append(records, model.TransactionRecord{
			ID:               item.Hash,
			Network:          network,
			BlockNumber:      parseUint(item.BlockNumber),
			TransactionIndex: parseUint(item.TransactionIndex),
			From:             item.From,
			To:               item.To,
			// The transferred token amount is not native value.
			Value:     "0",
			Gas:       item.Gas,
			GasPrice:  item.GasPrice,
			GasUsed:   item.GasUsed,
			Nonce:     item.Nonce,
			Timestamp: parseUnix(item.TimeStamp),
			Operations: []model.LocalizedOperation{{
				From:     item.From,
				To:       item.To,
				Contract: item.ContractAddress,
				Type:     opType,
				Value:    item.Value,
				TokenID:  item.TokenID,
				Symbol:   item.TokenSymbol,
				Name:     item.TokenName,
				Decimals: decimals,
			}},
			IsERC20Interaction: true,
			State:              model.TransactionCompleted,
		})
	}
	return MergeByBlock(records)
}

func decodeNormal(items []normalItem, network uint64) []model.TransactionRecord {
	records := make([]model.TransactionRecord, 0, len(items))
	for _, item := range items {
		state := model.TransactionCompleted
		if item.IsError == "1" {
			state = model.TransactionFailed
		}
		records = append(records, model.TransactionRecord{
			ID:               item.Hash,
			Network:          network,
			BlockNumber:      parseUint(item.BlockNumber),
			TransactionIndex: parseUint(item.TransactionIndex),
			From:             item.From,
			To:               item.To,
			Value:            item.Value,
			Gas:              item.Gas,
			GasPrice:         item.GasPrice,
			GasUsed:          item.GasUsed,
			Nonce:            item.Nonce,
			Timestamp:        parseUnix(item.TimeStamp),
			State:            state,
		})
	}
	return records
}

// MergeByBlock folds records sharing a block number into the first one seen,
// appending operations in encounter order.
func MergeByBlock(records []model.TransactionRecord) []model.TransactionRecord {
	out := make([]model.TransactionRecord, 0, len(records))
	index := make(map[uint64]int, len(records))
	for _, record := range records {
		if i, ok := index[record.BlockNumber]; ok {
			merged := append([]model.LocalizedOperation(nil), out[i].Operations...)
			out[i].Operations = append(merged, record.Operations...)
			continue
		}
		index[record.BlockNumber] = len(out)
		out = append(out, record)
	}
	return out
}

// blockBounds returns the lowest and highest block of records, or zeros when empty.
func blockBounds(records []model.TransactionRecord) (uint64, uint64) {
	if len(records) == 0 {
		return 0, 0
	}
	lo, hi := records[0].BlockNumber, records[0].BlockNumber
	for _, record := range records[1:] {
		if record.BlockNumber < lo {
			lo = record.BlockNumber
		}
		if record.BlockNumber > hi {
			hi = record.BlockNumber
		}
	}
	return lo, hi
}

func parseUint(s string) uint64 {
	n, _ := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	return n
}

func parseUnix(s string) time.Time {
	sec, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
