package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"activityScope/internal/metrics"
	"activityScope/internal/model"
)

// PollConfig holds runtime settings for the chain poller.
type PollConfig struct {
	Network      uint64
	FromBlock    uint64
	BatchSize    uint64
	MaxRetries   int
	RetryBackoff time.Duration
	Workers      int
}

// LogSource is the chain access the poller needs. *chain.Client satisfies it.
type LogSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// EventSink receives decoded events. *eventsource.Store satisfies it.
type EventSink interface {
	Add(events []model.RawEvent)
}

// Poller reads the logs of every card origin event from the chain into the event store.
// Contracts are polled concurrently; each keeps its own checkpoint.
type Poller struct {
	cfg         PollConfig
	chain       LogSource
	sink        EventSink
	checkpoints CheckpointStore
	pool        pond.Pool
	retry       retryPolicy
	logger      *zap.Logger
}

// maxRangesPerPoll bounds the batches one contract scans per cycle so a fresh
// checkpoint does not hold a worker for the whole chain history.
const maxRangesPerPoll = 100

// NewPoller builds a Poller with its dependencies.
func NewPoller(cfg PollConfig, chainClient LogSource, sink EventSink, checkpoints CheckpointStore, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if checkpoints == nil {
		checkpoints = NewMemoryCheckpoints()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Poller{
		cfg:         cfg,
		chain:       chainClient,
		sink:        sink,
		checkpoints: checkpoints,
		pool:        pond.NewPool(workers, pond.WithQueueSize(workers*4)),
		retry:       newRetryPolicy(cfg.MaxRetries, cfg.RetryBackoff, logger),
		logger:      logger,
	}
}

// Close releases the worker pool.
func (p *Poller) Close() {
	p.pool.StopAndWait()
}

// Run polls once per interval until ctx is cancelled. scripts is re-read every cycle.
func (p *Poller) Run(ctx context.Context, interval time.Duration, scripts func() []model.TokenScript) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := p.Poll(ctx, scripts()); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Warn("poll cycle failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll runs one cycle up to the latest block. A failing contract does not stop the others.
func (p *Poller) Poll(ctx context.Context, scripts []model.TokenScript) error {
	if p.chain == nil {
		return fmt.Errorf("chain client is nil")
	}
	if p.sink == nil {
		return fmt.Errorf("event sink is nil")
	}
	if p.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}

	byContract, errs := contractEvents(scripts, p.cfg.Network)
	for _, err := range errs {
		p.logger.Warn("skip card origin", zap.Error(err))
	}
	if len(byContract) == 0 {
		return nil
	}

	var latest uint64
	err := p.retry.do(ctx, "latest block", func(ctx context.Context) error {
		var err error
		latest, err = p.chain.LatestBlockNumber(ctx)
		return err
	}, zap.Uint64("network", p.cfg.Network))
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}

	group := p.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for contract, events := range byContract {
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			if err := p.pollContract(groupCtx, contract, events, latest); err != nil {
				p.logger.Warn("poll contract failed", zap.String("contract", contract.Hex()), zap.Error(err))
			}
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		return err
	}
	return ctx.Err()
}

func checkpointName(network uint64, contract common.Address) string {
	return fmt.Sprintf("events-%d-%s", network, contract.Hex())
}

func (p *Poller) pollContract(ctx context.Context, contract common.Address, events map[common.Hash]eventSpec, latest uint64) error {
	name := checkpointName(p.cfg.Network, contract)
	from := p.cfg.FromBlock
	last, ok, err := p.checkpoints.LoadState(ctx, name)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	if ok && last >= from {
		from = last + 1
	}
	if from > latest {
		return nil
	}

	ranges, err := SplitRange(from, latest, p.cfg.BatchSize, maxRangesPerPoll)
	if err != nil {
		return err
	}
	topics := make([]common.Hash, 0, len(events))
	for topic := range events {
		topics = append(topics, topic)
	}

	for _, blockRange := range ranges {
		if err := ctx.Err(); err != nil {
			return err
		}

		var logs []types.Log
		err := p.retry.do(ctx, "filter logs", func(ctx context.Context) error {
			var err error
			logs, err = p.chain.FilterLogs(ctx, blockRange.From, blockRange.To, []common.Address{contract}, topics)
			return err
		}, zap.String("contract", contract.Hex()), zap.Stringer("range", blockRange))
		if err != nil {
			return fmt.Errorf("filter logs %s: %w", blockRange, err)
		}

		decoded := make([]model.RawEvent, 0, len(logs))
		for _, log := range logs {
			if log.Removed || len(log.Topics) == 0 {
				continue
			}
			spec, ok := events[log.Topics[0]]
			if !ok {
				continue
			}
			ts, err := p.blockTimestamp(ctx, log.BlockNumber)
			if err != nil {
				return fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
			}
			event, err := DecodeLog(p.cfg.Network, spec.event, log, ts)
			if err != nil {
				p.logger.Warn("skip undecodable log",
					zap.String("event", spec.name),
					zap.String("tx", log.TxHash.Hex()),
					zap.Uint("log_index", log.Index),
					zap.Error(err),
				)
				continue
			}
			decoded = append(decoded, event)
		}

		p.sink.Add(decoded)
		metrics.LogsFetched.Add(float64(len(decoded)))
		if err := p.checkpoints.SaveState(ctx, name, blockRange.To); err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}
		p.logger.Debug("range complete",
			zap.String("contract", contract.Hex()),
			zap.Int("events", len(decoded)),
			zap.Stringer("range", blockRange),
		)
	}
	return nil
}

func (p *Poller) blockTimestamp(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := p.retry.do(ctx, "block timestamp", func(ctx context.Context) error {
		var err error
		ts, err = p.chain.BlockTimestamp(ctx, blockNumber)
		return err
	}, zap.Uint64("block_number", blockNumber))
	return ts, err
}
