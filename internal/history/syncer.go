package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"activityScope/internal/model"
)

// Checkpoints persists the last synced block per name.
type Checkpoints interface {
	LoadState(ctx context.Context, name string) (uint64, bool, error)
	SaveState(ctx context.Context, name string, block uint64) error
}

// TransactionAdder receives synced records. *storage.TransactionStore satisfies it.
type TransactionAdder interface {
	Add(ctx context.Context, records []model.TransactionRecord) error
}

// Syncer keeps the transaction store up to date with the explorer history of one network.
type Syncer struct {
	explorer    *Explorer
	sink        TransactionAdder
	checkpoints Checkpoints
	startBlock  uint64
	kinds       []TransferKind
	logger      *zap.Logger
}

// NewSyncer creates a Syncer that starts at startBlock when no checkpoint exists.
func NewSyncer(explorer *Explorer, sink TransactionAdder, checkpoints Checkpoints, startBlock uint64, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		explorer:    explorer,
		sink:        sink,
		checkpoints: checkpoints,
		startBlock:  startBlock,
		kinds:       []TransferKind{KindERC20, KindERC721},
		logger:      logger,
	}
}

func checkpointName(network uint64, kind TransferKind) string {
	return fmt.Sprintf("history-%d-%s", network, kind)
}

// Sync fetches every transfer kind from its checkpoint. A failing kind does not stop the others;
// the first error is returned after all kinds ran.
func (s *Syncer) Sync(ctx context.Context) error {
	var firstErr error
	for _, kind := range s.kinds {
		if err := s.syncKind(ctx, kind); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("history sync failed", zap.String("kind", string(kind)), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Run syncs immediately and then every interval until ctx ends.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		_ = s.Sync(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Syncer) syncKind(ctx context.Context, kind TransferKind) error {
	name := checkpointName(s.explorer.Network(), kind)
	from := s.startBlock
	last, ok, err := s.checkpoints.LoadState(ctx, name)
	if err != nil {
		return fmt.Errorf("load checkpoint %s: %w", name, err)
	}
	if ok && last+1 > from {
		from = last + 1
	}

	records, maxBlock, err := s.explorer.FetchAllPages(ctx, kind, from)
	switch {
	case errors.Is(err, ErrNotFound):
		s.logger.Debug("no explorer history", zap.String("kind", string(kind)))
		return nil
	case errors.Is(err, ErrPageLimit):
		s.logger.Info("page limit reached, continuing next cycle", zap.String("kind", string(kind)), zap.Uint64("max_block", maxBlock))
	case err != nil && len(records) == 0:
		return err
	}
	complete := err == nil
	fetchErr := err
	if errors.Is(fetchErr, ErrPageLimit) {
		fetchErr = nil
	}

	if len(records) > 0 {
		if err := s.sink.Add(ctx, records); err != nil {
			return fmt.Errorf("store %s transactions: %w", kind, err)
		}
		// The highest block of an unfinished fetch may continue on the next page.
		checkpoint := maxBlock
		if !complete && checkpoint > 0 {
			checkpoint--
		}
		if checkpoint >= from {
			if err := s.checkpoints.SaveState(ctx, name, checkpoint); err != nil {
				return fmt.Errorf("save checkpoint %s: %w", name, err)
			}
		}
		s.logger.Info("history synced",
			zap.String("kind", string(kind)),
			zap.Int("records", len(records)),
			zap.Uint64("max_block", maxBlock),
		)
	}
	return fetchErr
}
