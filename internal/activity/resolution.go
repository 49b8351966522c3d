package activity

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"activityScope/internal/metrics"
	"activityScope/internal/model"
)

const maxSwapAttempts = 5

// ActivityUpdater reads and conditionally rewrites stored activities. *storage.ActivityStore satisfies it.
type ActivityUpdater interface {
	Get(ctx context.Context, key model.ActivityKey) (model.Activity, bool, error)
	CompareAndSwapAttributes(ctx context.Context, key model.ActivityKey, expected, next model.ActivityValues) (bool, error)
}

// Resolver fills the token attributes of newly inserted activities from their token holder.
type Resolver struct {
	store   ActivityUpdater
	holders *HolderCache
	logger  *zap.Logger
}

// NewResolver creates a Resolver writing resolved token attributes back to store.
func NewResolver(store ActivityUpdater, holders *HolderCache, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, holders: holders, logger: logger}
}

// Run resolves the activities inserted by each update of the feed until ctx ends or the feed closes.
// Initial snapshots and modifications are ignored, so the resolver's own writes do not retrigger it.
func (r *Resolver) Run(ctx context.Context, changes <-chan model.ChangeSet[model.Activity]) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			if change.Kind == model.ChangeError {
				return fmt.Errorf("activity feed: %w", change.Err)
			}
			for _, activity := range change.Inserted() {
				if err := r.Resolve(ctx, activity); err != nil && ctx.Err() == nil {
					r.logger.Warn("resolve activity failed", zap.String("activity", activity.PrimaryKey()), zap.Error(err))
				}
			}
		}
	}
}

// Resolve writes the holder values available now and schedules a second write
// for values that are still being computed.
func (r *Resolver) Resolve(ctx context.Context, activity model.Activity) error {
	holders, err := r.holders.Holders(ctx, activity.Token)
	if err != nil {
		return fmt.Errorf("load holders: %w", err)
	}
	if len(holders) == 0 {
		return nil
	}

	key := activity.Key()
	lateCtx := context.WithoutCancel(ctx)
	now := holders[0].Values.Resolve(func(late model.Attributes) {
		if err := r.apply(lateCtx, key, late); err != nil {
			r.logger.Warn("late resolution failed", zap.String("activity", key.String()), zap.Error(err))
		}
	})
	return r.apply(ctx, key, now)
}

// apply merges resolved over the stored token attributes. The write is skipped when
// nothing changes, and retried when another writer got in between.
func (r *Resolver) apply(ctx context.Context, key model.ActivityKey, resolved model.Attributes) error {
	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		current, found, err := r.store.Get(ctx, key)
		if err != nil {
			metrics.ActivitiesResolved.WithLabelValues("failed").Inc()
			return err
		}
		if !found {
			return nil
		}

		next := model.ActivityValues{
			Token: current.Values.Token.Merge(resolved),
			Card:  current.Values.Card,
		}
		if next.Persistable().Equal(current.Values) {
			metrics.ActivitiesResolved.WithLabelValues("unchanged").Inc()
			return nil
		}

		swapped, err := r.store.CompareAndSwapAttributes(ctx, key, current.Values, next)
		if err != nil {
			metrics.ActivitiesResolved.WithLabelValues("failed").Inc()
			return err
		}
		if swapped {
			metrics.ActivitiesResolved.WithLabelValues("written").Inc()
			return nil
		}
		metrics.ActivitiesResolved.WithLabelValues("conflict").Inc()
	}
	return fmt.Errorf("activity %s changed concurrently %d times", key, maxSwapAttempts)
}
