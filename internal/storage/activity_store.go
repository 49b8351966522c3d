package storage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"activityScope/internal/feed"
	"activityScope/internal/model"
)

// ErrActivityNotFound is returned when an update targets a key that is not stored.
var ErrActivityNotFound = errors.New("activity not found")

// ActivityBackend is the durable storage behind an ActivityStore.
// Implementations need not be safe for concurrent use; the store serializes all calls.
type ActivityBackend interface {
	Get(ctx context.Context, key string) (model.Activity, bool, error)
	Upsert(ctx context.Context, activities []model.Activity) error
	ReplaceValues(ctx context.Context, key string, values model.ActivityValues) error
	// List returns matching activities ordered by block number, newest first.
	List(ctx context.Context, filter model.ActivityFilter) ([]model.Activity, error)
	DeleteAll(ctx context.Context) error
}

// ConditionalBackend is implemented by backends that compare and swap values natively,
// which keeps the swap atomic for writers outside this process.
type ConditionalBackend interface {
	SwapValues(ctx context.Context, key string, expected, next model.ActivityValues) (bool, error)
}

type activityWatcher struct {
	filter model.ActivityFilter
	last   []model.Activity
	feed   *feed.Feed[model.ChangeSet[model.Activity]]
}

// ActivityStore is the keyed activity storage with live change feeds.
type ActivityStore struct {
	backend  ActivityBackend
	queue    *Queue
	logger   *zap.Logger
	watchers []*activityWatcher
}

// NewActivityStore creates a store over backend with its own write queue.
func NewActivityStore(backend ActivityBackend, logger *zap.Logger) *ActivityStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityStore{
		backend: backend,
		queue:   NewQueue(),
		logger:  logger,
	}
}

// Close stops the store queue and ends every change feed.
func (s *ActivityStore) Close() {
	_ = s.queue.Do(context.Background(), func() error {
		for _, w := range s.watchers {
			w.feed.Close()
		}
		s.watchers = nil
		return nil
	})
	s.queue.Close()
}

// Exists reports whether an activity with key is stored.
func (s *ActivityStore) Exists(ctx context.Context, key model.ActivityKey) (bool, error) {
	var exists bool
	err := s.queue.Do(ctx, func() error {
		var err error
		_, exists, err = s.backend.Get(ctx, key.String())
		return err
	})
	return exists, err
}

// Get returns the stored activity for key.
func (s *ActivityStore) Get(ctx context.Context, key model.ActivityKey) (model.Activity, bool, error) {
	var (
		activity model.Activity
		found    bool
	)
	err := s.queue.Do(ctx, func() error {
		var err error
		activity, found, err = s.backend.Get(ctx, key.String())
		return err
	})
	return activity, found, err
}

// Insert writes activities, overwriting any stored copy with the same key.
func (s *ActivityStore) Insert(ctx context.Context, activities []model.Activity) error {
	if len(activities) == 0 {
		return nil
	}
	return s.queue.Do(ctx, func() error {
		if err := s.backend.Upsert(ctx, persistable(dedupeByKey(activities))); err != nil {
			return fmt.Errorf("insert activities: %w", err)
		}
		s.notify(ctx)
		return nil
	})
}

// InsertNew writes only activities whose key is not yet stored and returns them.
// The existence check and the write run as one queue task.
func (s *ActivityStore) InsertNew(ctx context.Context, activities []model.Activity) ([]model.Activity, error) {
	if len(activities) == 0 {
		return nil, nil
	}
	var fresh []model.Activity
	err := s.queue.Do(ctx, func() error {
		for _, activity := range dedupeByKey(activities) {
			_, exists, err := s.backend.Get(ctx, activity.PrimaryKey())
			if err != nil {
				return fmt.Errorf("check activity %s: %w", activity.PrimaryKey(), err)
			}
			if exists {
				continue
			}
			fresh = append(fresh, activity)
		}
		if len(fresh) == 0 {
			return nil
		}
		if err := s.backend.Upsert(ctx, persistable(fresh)); err != nil {
			fresh = nil
			return fmt.Errorf("insert activities: %w", err)
		}
		s.notify(ctx)
		return nil
	})
	return fresh, err
}

// UpdateAttributes replaces both attribute maps of a stored activity.
func (s *ActivityStore) UpdateAttributes(ctx context.Context, key model.ActivityKey, token, card model.Attributes) error {
	return s.queue.Do(ctx, func() error {
		if _, found, err := s.backend.Get(ctx, key.String()); err != nil {
			return err
		} else if !found {
			return ErrActivityNotFound
		}
		values := model.ActivityValues{Token: token, Card: card}.Persistable()
		if err := s.backend.ReplaceValues(ctx, key.String(), values); err != nil {
			return fmt.Errorf("update activity %s: %w", key, err)
		}
		s.notify(ctx)
		return nil
	})
}

// CompareAndSwapAttributes replaces the attribute maps only if the stored values equal expected.
// It reports whether the swap happened. Swapping to values equal to the stored ones is a no-op.
func (s *ActivityStore) CompareAndSwapAttributes(ctx context.Context, key model.ActivityKey, expected, next model.ActivityValues) (bool, error) {
	var swapped bool
	err := s.queue.Do(ctx, func() error {
		if cb, ok := s.backend.(ConditionalBackend); ok {
			var err error
			swapped, err = cb.SwapValues(ctx, key.String(), expected.Persistable(), next.Persistable())
			if err != nil {
				return err
			}
			if swapped {
				s.notify(ctx)
			}
			return nil
		}

		current, found, err := s.backend.Get(ctx, key.String())
		if err != nil {
			return err
		}
		if !found {
			return ErrActivityNotFound
		}
		if !current.Values.Equal(expected.Persistable()) {
			return nil
		}
		next = next.Persistable()
		if current.Values.Equal(next) {
			return nil
		}
		if err := s.backend.ReplaceValues(ctx, key.String(), next); err != nil {
			return fmt.Errorf("update activity %s: %w", key, err)
		}
		swapped = true
		s.notify(ctx)
		return nil
	})
	return swapped, err
}

// ResetAll deletes every stored activity.
func (s *ActivityStore) ResetAll(ctx context.Context) error {
	return s.queue.Do(ctx, func() error {
		if err := s.backend.DeleteAll(ctx); err != nil {
			return fmt.Errorf("reset activities: %w", err)
		}
		s.notify(ctx)
		return nil
	})
}

// ChangeFeed subscribes to the filtered activity set. The first value is the initial snapshot;
// later values are updates with inserted, removed and modified indices, or a terminal error.
func (s *ActivityStore) ChangeFeed(ctx context.Context, filter model.ActivityFilter) (*feed.Subscription[model.ChangeSet[model.Activity]], error) {
	var sub *feed.Subscription[model.ChangeSet[model.Activity]]
	err := s.queue.Do(ctx, func() error {
		items, err := s.backend.List(ctx, filter)
		if err != nil {
			return fmt.Errorf("list activities: %w", err)
		}
		w := &activityWatcher{
			filter: filter,
			last:   items,
			feed:   feed.New[model.ChangeSet[model.Activity]](),
		}
		sub = w.feed.Subscribe(model.InitialChange(items))
		s.watchers = append(s.watchers, w)
		return nil
	})
	return sub, err
}

// notify must run on the queue.
func (s *ActivityStore) notify(ctx context.Context) {
	live := s.watchers[:0]
	for _, w := range s.watchers {
		if w.feed.SubscriberCount() == 0 {
			continue
		}
		live = append(live, w)

		items, err := s.backend.List(ctx, w.filter)
		if err != nil {
			s.logger.Warn("activity feed refresh failed", zap.Error(err))
			w.feed.Send(model.ErrorChange[model.Activity](err))
			w.feed.Close()
			continue
		}
		deletions, insertions, modifications := diffByKey(w.last, items, model.Activity.PrimaryKey, model.Activity.Equal)
		w.last = items
		if len(deletions) == 0 && len(insertions) == 0 && len(modifications) == 0 {
			continue
		}
		w.feed.Send(model.UpdateChange(items, deletions, insertions, modifications))
	}
	s.watchers = live
}

func dedupeByKey(activities []model.Activity) []model.Activity {
	seen := make(map[string]struct{}, len(activities))
	out := make([]model.Activity, 0, len(activities))
	for _, a := range activities {
		k := a.PrimaryKey()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, a)
	}
	return out
}

func persistable(activities []model.Activity) []model.Activity {
	out := make([]model.Activity, len(activities))
	for i, a := range activities {
		a.Values = a.Values.Persistable()
		out[i] = a
	}
	return out
}
