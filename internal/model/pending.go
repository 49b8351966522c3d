package model

import "sync"

// Pending is a placeholder for an attribute value computed asynchronously.
// It may be resolved more than once; subscribers registered through SubscribeOnce
// are notified of the first resolution after they subscribe.
type Pending struct {
	mu          sync.Mutex
	value       *AttributeValue
	subscribers []func(AttributeValue)
}

func NewPending() *Pending {
	return &Pending{}
}

// ResolvedPending returns a placeholder that already holds v.
func ResolvedPending(v AttributeValue) *Pending {
	p := NewPending()
	p.Resolve(v)
	return p
}

// Resolve stores v and notifies waiting subscribers. Nested placeholders are unwrapped.
func (p *Pending) Resolve(v AttributeValue) {
	if inner, ok := v.AsPending(); ok {
		resolved, ok := inner.Value()
		if !ok {
			return
		}
		v = resolved
	}

	p.mu.Lock()
	p.value = &v
	subscribers := p.subscribers
	p.subscribers = nil
	p.mu.Unlock()

	for _, fn := range subscribers {
		fn(v)
	}
}

func (p *Pending) Value() (AttributeValue, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.value == nil {
		return AttributeValue{}, false
	}
	return *p.value, true
}

// SubscribeOnce calls fn once with the resolved value. If already resolved, fn runs immediately.
func (p *Pending) SubscribeOnce(fn func(AttributeValue)) {
	p.mu.Lock()
	if p.value != nil {
		v := *p.value
		p.mu.Unlock()
		fn(v)
		return
	}
	p.subscribers = append(p.subscribers, fn)
	p.mu.Unlock()
}
