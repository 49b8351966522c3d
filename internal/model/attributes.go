package model

import (
	"sort"
	"sync"
)

// Attributes maps attribute ids to values.
type Attributes map[string]AttributeValue

func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Merge returns a new map with other layered over a. Values in other win.
func (a Attributes) Merge(other Attributes) Attributes {
	out := a.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

func (a Attributes) Equal(other Attributes) bool {
	if len(a) != len(other) {
		return false
	}
	for k, v := range a {
		o, ok := other[k]
		if !ok || !v.Equal(o) {
			return false
		}
	}
	return true
}

// Keys returns attribute ids in sorted order.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Persistable replaces placeholders with their last resolved value and drops unresolved ones.
func (a Attributes) Persistable() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		resolved, ok := v.Resolved()
		if !ok || !resolved.IsValid() {
			continue
		}
		out[k] = resolved
	}
	return out
}

// Resolve returns every value that is available now. When some placeholders are still
// unresolved, onLate is invoked once all of them resolve, with the complete resolved set.
// Placeholders resolved to an invalid value are left out of that set.
// onLate may run on any goroutine.
func (a Attributes) Resolve(onLate func(Attributes)) Attributes {
	now := make(Attributes, len(a))
	var waiting []string
	for k, v := range a {
		if resolved, ok := v.Resolved(); ok {
			if resolved.IsValid() {
				now[k] = resolved
			}
			continue
		}
		if v.IsPending() {
			waiting = append(waiting, k)
		}
	}
	if len(waiting) == 0 || onLate == nil {
		return now
	}

	var (
		mu        sync.Mutex
		remaining = len(waiting)
		late      = now.Clone()
	)
	for _, key := range waiting {
		key := key
		p, _ := a[key].AsPending()
		p.SubscribeOnce(func(v AttributeValue) {
			mu.Lock()
			if v.IsValid() {
				late[key] = v
			}
			remaining--
			done := remaining == 0
			mu.Unlock()
			if done {
				onLate(late.Clone())
			}
		})
	}
	return now
}
