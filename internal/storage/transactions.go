package storage

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"go.uber.org/zap"

	"activityScope/internal/feed"
	"activityScope/internal/model"
)

// TransactionFilter selects transactions by network. An empty filter matches all.
type TransactionFilter struct {
	Networks []uint64
}

func (f TransactionFilter) Matches(r model.TransactionRecord) bool {
	if len(f.Networks) == 0 {
		return true
	}
	for _, n := range f.Networks {
		if n == r.Network {
			return true
		}
	}
	return false
}

type transactionWatcher struct {
	filter TransactionFilter
	last   []model.TransactionRecord
	feed   *feed.Feed[model.ChangeSet[model.TransactionRecord]]
}

// TransactionStore keeps transaction records keyed by network and id.
// Writes are mirrored to an optional sink.
type TransactionStore struct {
	records  map[string]model.TransactionRecord
	sink     TransactionSink
	queue    *Queue
	logger   *zap.Logger
	watchers []*transactionWatcher
}

// NewTransactionStore creates a transaction store persisting through sink. A nil sink keeps records in memory only.
func NewTransactionStore(sink TransactionSink, logger *zap.Logger) *TransactionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransactionStore{
		records: make(map[string]model.TransactionRecord),
		sink:    sink,
		queue:   NewQueue(),
		logger:  logger,
	}
}

func (s *TransactionStore) Close() {
	_ = s.queue.Do(context.Background(), func() error {
		for _, w := range s.watchers {
			w.feed.Close()
		}
		s.watchers = nil
		return nil
	})
	s.queue.Close()
}

func transactionKey(r model.TransactionRecord) string {
	return fmt.Sprintf("%d-%s", r.Network, r.ID)
}

// Add merges records by id, replacing stored copies.
func (s *TransactionStore) Add(ctx context.Context, records []model.TransactionRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.queue.Do(ctx, func() error {
		if s.sink != nil {
			if err := s.sink.PutTransactions(ctx, records); err != nil {
				return fmt.Errorf("persist transactions: %w", err)
			}
		}
		for _, r := range records {
			s.records[transactionKey(r)] = r
		}
		s.notify()
		return nil
	})
}

// Transactions returns the matching records, newest block first.
func (s *TransactionStore) Transactions(ctx context.Context, filter TransactionFilter) ([]model.TransactionRecord, error) {
	var out []model.TransactionRecord
	err := s.queue.Do(ctx, func() error {
		out = s.list(filter)
		return nil
	})
	return out, err
}

// ChangeFeed subscribes to the filtered transaction set, starting with a snapshot.
func (s *TransactionStore) ChangeFeed(ctx context.Context, filter TransactionFilter) (*feed.Subscription[model.ChangeSet[model.TransactionRecord]], error) {
	var sub *feed.Subscription[model.ChangeSet[model.TransactionRecord]]
	err := s.queue.Do(ctx, func() error {
		items := s.list(filter)
		w := &transactionWatcher{
			filter: filter,
			last:   items,
			feed:   feed.New[model.ChangeSet[model.TransactionRecord]](),
		}
		sub = w.feed.Subscribe(model.InitialChange(items))
		s.watchers = append(s.watchers, w)
		return nil
	})
	return sub, err
}

func (s *TransactionStore) list(filter TransactionFilter) []model.TransactionRecord {
	out := make([]model.TransactionRecord, 0, len(s.records))
	for _, r := range s.records {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber > out[j].BlockNumber
		}
		return transactionKey(out[i]) < transactionKey(out[j])
	})
	return out
}

func (s *TransactionStore) notify() {
	live := s.watchers[:0]
	for _, w := range s.watchers {
		if w.feed.SubscriberCount() == 0 {
			continue
		}
		live = append(live, w)
		items := s.list(w.filter)
		deletions, insertions, modifications := diffByKey(w.last, items, transactionKey, func(a, b model.TransactionRecord) bool {
			return reflect.DeepEqual(a, b)
		})
		w.last = items
		if len(deletions) == 0 && len(insertions) == 0 && len(modifications) == 0 {
			continue
		}
		w.feed.Send(model.UpdateChange(items, deletions, insertions, modifications))
	}
	s.watchers = live
}
