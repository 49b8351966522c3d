package feed

import "sync"

// Feed broadcasts values to every live subscription. Sends never block on slow
// subscribers: each subscription buffers pending values in order until read.
type Feed[T any] struct {
	mu     sync.Mutex
	subs   map[*Subscription[T]]struct{}
	closed bool
}

func New[T any]() *Feed[T] {
	return &Feed[T]{subs: make(map[*Subscription[T]]struct{})}
}

// Subscription delivers values sent after it was created, in send order.
type Subscription[T any] struct {
	feed   *Feed[T]
	out    chan T
	mu     sync.Mutex
	queue  []T
	wake   chan struct{}
	done   chan struct{}
	end    chan struct{}
	closed bool
}

// Subscribe registers a subscription. initial values, if any, are delivered first.
func (f *Feed[T]) Subscribe(initial ...T) *Subscription[T] {
	sub := &Subscription[T]{
		feed:  f,
		out:   make(chan T),
		queue: append([]T(nil), initial...),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
		end:   make(chan struct{}),
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		sub.closed = true
		close(sub.out)
		return sub
	}
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	go sub.pump()
	if len(initial) > 0 {
		sub.signal()
	}
	return sub
}

// Send queues v on every subscription.
func (f *Feed[T]) Send(v T) {
	f.mu.Lock()
	subs := make([]*Subscription[T], 0, len(f.subs))
	for sub := range f.subs {
		subs = append(subs, sub)
	}
	f.mu.Unlock()

	for _, sub := range subs {
		sub.push(v)
	}
}

// SubscriberCount reports the number of live subscriptions.
func (f *Feed[T]) SubscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close ends every subscription once values already sent have been delivered.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	subs := f.subs
	f.subs = make(map[*Subscription[T]]struct{})
	f.mu.Unlock()

	for sub := range subs {
		sub.finish()
	}
}

// C returns the delivery channel. It is closed when the subscription ends.
func (s *Subscription[T]) C() <-chan T {
	return s.out
}

// Unsubscribe stops delivery and releases the subscription.
func (s *Subscription[T]) Unsubscribe() {
	s.feed.mu.Lock()
	delete(s.feed.subs, s)
	s.feed.mu.Unlock()
	s.stop()
}

func (s *Subscription[T]) push(v T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, v)
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription[T]) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return
	default:
	}
	s.closed = true
	s.queue = nil
	close(s.done)
}

func (s *Subscription[T]) finish() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.end)
}

func (s *Subscription[T]) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.end:
				return
			case <-s.done:
				return
			}
		}
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- next:
		case <-s.done:
			return
		}
	}
}
