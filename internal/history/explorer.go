package history

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"activityScope/internal/metrics"
	"activityScope/internal/model"
)

// TransferKind selects the explorer transfer history to page through.
type TransferKind string

const (
	KindERC20  TransferKind = "erc20"
	KindERC721 TransferKind = "erc721"
)

func (k TransferKind) action() (string, error) {
	switch k {
	case KindERC20:
		return "tokentx", nil
	case KindERC721:
		return "tokennfttx", nil
	default:
		return "", fmt.Errorf("unsupported transfer kind: %s", k)
	}
}

// ExplorerConfig describes one etherscan-compatible endpoint for one wallet and network.
type ExplorerConfig struct {
	BaseURL  string
	APIKey   string
	Wallet   common.Address
	Network  uint64
	PageSize int
	MaxPages int
}

// Explorer reads a wallet's transfer and transaction history from a block explorer.
type Explorer struct {
	cfg       ExplorerConfig
	transport Transport
	logger    *zap.Logger
}

// NewExplorer builds an Explorer over transport. Zero paging settings take defaults.
func NewExplorer(cfg ExplorerConfig, transport Transport, logger *zap.Logger) *Explorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 100
	}
	return &Explorer{cfg: cfg, transport: transport, logger: logger}
}

func (e *Explorer) Network() uint64 {
	return e.cfg.Network
}

// FetchTransferPage fetches page number page (from 1) of the transfers from startBlock and reports
// the block bounds of the decoded records. An empty page yields no records and zero bounds.
func (e *Explorer) FetchTransferPage(ctx context.Context, kind TransferKind, startBlock uint64, page int) ([]model.TransactionRecord, uint64, uint64, error) {
	action, err := kind.action()
	if err != nil {
		return nil, 0, 0, err
	}
	if page < 1 {
		page = 1
	}
	params := url.Values{}
	params.Set("startblock", strconv.FormatUint(startBlock, 10))
	params.Set("sort", "asc")
	params.Set("page", strconv.Itoa(page))
	params.Set("offset", strconv.Itoa(e.cfg.PageSize))

	body, err := e.get(ctx, action, params)
	if err != nil {
		return nil, 0, 0, err
	}
	var items []transferItem
	if _, err := decodeResult(body, &items); err != nil {
		return nil, 0, 0, err
	}
	metrics.ExplorerPages.WithLabelValues(string(kind)).Inc()

	records := decodeTransfers(items, e.cfg.Network)
	lo, hi := blockBounds(records)
	return records, lo, hi, nil
}

// FetchTransactions fetches full transactions in the inclusive block range, ascending.
func (e *Explorer) FetchTransactions(ctx context.Context, startBlock, endBlock uint64) ([]model.TransactionRecord, error) {
	params := url.Values{}
	params.Set("startblock", strconv.FormatUint(startBlock, 10))
	params.Set("endblock", strconv.FormatUint(endBlock, 10))
	params.Set("sort", "asc")

	body, err := e.get(ctx, "txlist", params)
	if err != nil {
		return nil, err
	}
	var items []normalItem
	if _, err := decodeResult(body, &items); err != nil {
		return nil, err
	}
	return decodeNormal(items, e.cfg.Network), nil
}

// Backfill replaces transfer records with the full transaction of the same block, carrying over
// the transfer operations. Records without operations are dropped; records with no matching
// transaction are kept as they are. An empty input makes no request.
func (e *Explorer) Backfill(ctx context.Context, records []model.TransactionRecord, startBlock, endBlock uint64) ([]model.TransactionRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}
	filled, err := e.FetchTransactions(ctx, startBlock, endBlock)
	if err != nil {
		return nil, fmt.Errorf("backfill [%d,%d]: %w", startBlock, endBlock, err)
	}
	return attachOperations(records, filled), nil
}

func attachOperations(records, filled []model.TransactionRecord) []model.TransactionRecord {
	byBlock := make(map[uint64]model.TransactionRecord, len(filled))
	for _, tx := range filled {
		if _, ok := byBlock[tx.BlockNumber]; !ok {
			byBlock[tx.BlockNumber] = tx
		}
	}

	out := make([]model.TransactionRecord, 0, len(records))
	for _, record := range records {
		if len(record.Operations) == 0 {
			continue
		}
		tx, ok := byBlock[record.BlockNumber]
		if !ok {
			out = append(out, record)
			continue
		}
		tx.IsERC20Interaction = true
		tx.Operations = append([]model.LocalizedOperation(nil), record.Operations...)
		out = append(out, tx)
	}
	return out
}

// FetchAllPages pages through transfers of kind from startBlock until an empty page, backfilling
// each page. Pages are numbered from 1 over a fixed startBlock and fetched strictly in sequence, so
// a block split across two pages is merged back into one record. It returns the records and the
// highest block seen. A failed backfill keeps that page's transfer records. When MaxPages pages
// were fetched without reaching the end, the records so far are returned with ErrPageLimit; the
// highest block may then be incomplete.
func (e *Explorer) FetchAllPages(ctx context.Context, kind TransferKind, startBlock uint64) ([]model.TransactionRecord, uint64, error) {
	var (
		all      []model.TransactionRecord
		maxBlock uint64
	)
	for page := 1; page <= e.cfg.MaxPages; page++ {
		records, lo, hi, err := e.FetchTransferPage(ctx, kind, startBlock, page)
		if err != nil {
			return MergeByBlock(all), maxBlock, fmt.Errorf("fetch %s page %d from block %d: %w", kind, page, startBlock, err)
		}
		if len(records) == 0 {
			return MergeByBlock(all), maxBlock, nil
		}

		filled, err := e.Backfill(ctx, records, lo, hi)
		if err != nil {
			if ctx.Err() != nil {
				return MergeByBlock(all), maxBlock, ctx.Err()
			}
			e.logger.Warn("backfill failed, keeping transfer records",
				zap.String("kind", string(kind)),
				zap.Uint64("from", lo),
				zap.Uint64("to", hi),
				zap.Error(err),
			)
			filled = records
		}
		all = append(all, filled...)
		if hi > maxBlock {
			maxBlock = hi
		}
	}
	return MergeByBlock(all), maxBlock, ErrPageLimit
}

func (e *Explorer) get(ctx context.Context, action string, params url.Values) ([]byte, error) {
	params.Set("module", "account")
	params.Set("action", action)
	params.Set("address", e.cfg.Wallet.Hex())
	if e.cfg.APIKey != "" {
		params.Set("apikey", e.cfg.APIKey)
	}

	endpoint := e.cfg.BaseURL + "?" + params.Encode()
	status, body, err := e.transport.Get(ctx, endpoint)
	if err != nil {
		metrics.ExplorerRequests.WithLabelValues(action, "error").Inc()
		return nil, err
	}
	metrics.ExplorerRequests.WithLabelValues(action, statusClass(status)).Inc()

	switch {
	case status == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", action, ErrNotFound)
	case status < 200 || status >= 300:
		statusErr := &StatusError{StatusCode: status, Message: responseMessage(body)}
		e.logger.Info("explorer request failed",
			zap.String("action", action),
			zap.Int("status", status),
			zap.String("message", statusErr.Message),
		)
		return nil, statusErr
	}
	return body, nil
}

func responseMessage(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	return env.Message
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}
