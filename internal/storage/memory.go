package storage

import (
	"context"
	"sort"

	"activityScope/internal/model"
)

// MemoryBackend keeps activities in a map. It relies on the owning store for serialization.
type MemoryBackend struct {
	items map[string]model.Activity
}

// NewMemoryBackend creates an empty in-process activity backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{items: make(map[string]model.Activity)}
}

func (b *MemoryBackend) Get(_ context.Context, key string) (model.Activity, bool, error) {
	activity, ok := b.items[key]
	if !ok {
		return model.Activity{}, false, nil
	}
	return activity.Clone(), true, nil
}

func (b *MemoryBackend) Upsert(_ context.Context, activities []model.Activity) error {
	for _, activity := range activities {
		b.items[activity.PrimaryKey()] = activity.Clone()
	}
	return nil
}

func (b *MemoryBackend) ReplaceValues(_ context.Context, key string, values model.ActivityValues) error {
	activity, ok := b.items[key]
	if !ok {
		return ErrActivityNotFound
	}
	activity.Values = values.Clone()
	b.items[key] = activity
	return nil
}

func (b *MemoryBackend) List(_ context.Context, filter model.ActivityFilter) ([]model.Activity, error) {
	out := make([]model.Activity, 0, len(b.items))
	for _, activity := range b.items {
		if filter.Matches(activity) {
			out = append(out, activity.Clone())
		}
	}
	SortActivities(out)
	return out, nil
}

func (b *MemoryBackend) DeleteAll(context.Context) error {
	b.items = make(map[string]model.Activity)
	return nil
}

// SortActivities orders by block number descending, then by position within the block.
func SortActivities(activities []model.Activity) {
	sort.Slice(activities, func(i, j int) bool {
		a, b := activities[i], activities[j]
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber > b.BlockNumber
		}
		if a.TransactionIndex != b.TransactionIndex {
			return a.TransactionIndex > b.TransactionIndex
		}
		if a.LogIndex != b.LogIndex {
			return a.LogIndex > b.LogIndex
		}
		return a.PrimaryKey() < b.PrimaryKey()
	})
}
