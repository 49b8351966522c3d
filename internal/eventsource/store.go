package eventsource

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"activityScope/internal/feed"
	"activityScope/internal/model"
)

// Store holds decoded contract events and publishes every change to its set.
type Store struct {
	mu     sync.RWMutex
	events map[string]model.RawEvent
	feed   *feed.Feed[model.ChangeSet[model.RawEvent]]
}

func NewStore() *Store {
	return &Store{
		events: make(map[string]model.RawEvent),
		feed:   feed.New[model.ChangeSet[model.RawEvent]](),
	}
}

func eventKey(e model.RawEvent) string {
	return fmt.Sprintf("%d-%s", e.Network, e.Key())
}

// Add stores events. Events already present are replaced and reported as modifications.
func (s *Store) Add(events []model.RawEvent) {
	if len(events) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	added := make(map[string]bool, len(events))
	for _, e := range events {
		k := eventKey(e)
		if _, ok := s.events[k]; !ok {
			added[k] = true
		} else if !added[k] {
			added[k] = false
		}
		s.events[k] = e
	}

	items := s.sortedLocked()
	var insertions, modifications []int
	for i, e := range items {
		isNew, ok := added[eventKey(e)]
		switch {
		case !ok:
		case isNew:
			insertions = append(insertions, i)
		default:
			modifications = append(modifications, i)
		}
	}
	// Sent under the lock so subscribers observe updates in write order.
	s.feed.Send(model.UpdateChange(items, nil, insertions, modifications))
}

func (s *Store) sortedLocked() []model.RawEvent {
	items := make([]model.RawEvent, 0, len(s.events))
	for _, e := range s.events {
		items = append(items, e)
	}
	sortAscending(items)
	return items
}

// ChangeFeed subscribes to the event set, starting with its current snapshot.
func (s *Store) ChangeFeed(context.Context) *feed.Subscription[model.ChangeSet[model.RawEvent]] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feed.Subscribe(model.InitialChange(s.sortedLocked()))
}

// Query returns the events of one contract event matching filter, oldest block first.
// filter has the form "name=value" and compares case-insensitively; an empty filter matches all.
func (s *Store) Query(_ context.Context, contract common.Address, network uint64, eventName, filter string) ([]model.RawEvent, error) {
	name, value, hasFilter := "", "", filter != ""
	if hasFilter {
		var ok bool
		name, value, ok = strings.Cut(filter, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid event filter %q", filter)
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.RawEvent
	for _, e := range s.events {
		if e.Contract != contract || e.Network != network || e.EventName != eventName {
			continue
		}
		if hasFilter {
			v, ok := e.Data[name]
			if !ok || !strings.EqualFold(v.String(), value) {
				continue
			}
		}
		out = append(out, e)
	}
	sortAscending(out)
	return out, nil
}

// Len reports the number of stored events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Close ends every change feed.
func (s *Store) Close() {
	s.feed.Close()
}

func sortAscending(events []model.RawEvent) {
	sort.Slice(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber < b.BlockNumber
		}
		if a.TransactionIndex != b.TransactionIndex {
			return a.TransactionIndex < b.TransactionIndex
		}
		if a.LogIndex != b.LogIndex {
			return a.LogIndex < b.LogIndex
		}
		return eventKey(a) < eventKey(b)
	})
}
