package feed

import (
	"testing"
	"time"
)

func receive(t *testing.T, sub *Subscription[int]) int {
	t.Helper()
	select {
	case v, ok := <-sub.C():
		if !ok {
			t.Fatalf("subscription closed unexpectedly")
		}
		return v
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for value")
	}
	return 0
}

func TestFeedDeliversInOrder(t *testing.T) {
	f := New[int]()
	sub := f.Subscribe(0)
	defer sub.Unsubscribe()

	for i := 1; i <= 5; i++ {
		f.Send(i)
	}
	for want := 0; want <= 5; want++ {
		if got := receive(t, sub); got != want {
			t.Fatalf("value mismatch: got %d want %d", got, want)
		}
	}
}

func TestFeedFanOut(t *testing.T) {
	f := New[int]()
	a := f.Subscribe()
	b := f.Subscribe()
	defer a.Unsubscribe()
	defer b.Unsubscribe()

	f.Send(7)
	if receive(t, a) != 7 || receive(t, b) != 7 {
		t.Fatalf("both subscribers should receive the value")
	}
}

func TestFeedUnsubscribeClosesChannel(t *testing.T) {
	f := New[int]()
	sub := f.Subscribe()
	sub.Unsubscribe()

	select {
	case _, ok := <-sub.C():
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed")
	}
	if f.SubscriberCount() != 0 {
		t.Fatalf("subscriber not removed")
	}
}

func TestFeedCloseEndsSubscriptions(t *testing.T) {
	f := New[int]()
	sub := f.Subscribe()
	f.Close()

	select {
	case _, ok := <-sub.C():
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed")
	}

	late := f.Subscribe()
	if _, ok := <-late.C(); ok {
		t.Fatalf("subscription on closed feed should be closed")
	}
}

func TestFeedCloseDeliversQueuedValues(t *testing.T) {
	f := New[int]()
	sub := f.Subscribe()
	f.Send(1)
	f.Send(2)
	f.Close()

	if receive(t, sub) != 1 || receive(t, sub) != 2 {
		t.Fatalf("queued values should be delivered before close")
	}
	if _, ok := <-sub.C(); ok {
		t.Fatalf("expected closed channel after queued values")
	}
}
