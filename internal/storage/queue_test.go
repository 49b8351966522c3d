package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestQueueSerializesWork(t *testing.T) {
	q := NewQueue()
	defer q.Close()

	var (
		wg      sync.WaitGroup
		running atomic.Int32
		overlap atomic.Bool
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.Do(context.Background(), func() error {
				if running.Add(1) > 1 {
					overlap.Store(true)
				}
				time.Sleep(time.Millisecond)
				running.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	if overlap.Load() {
		t.Fatalf("queue ran two tasks at the same time")
	}
}

func TestQueueReturnsTaskError(t *testing.T) {
	q := NewQueue()
	defer q.Close()

	boom := errors.New("boom")
	if err := q.Do(context.Background(), func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected task error, got %v", err)
	}
}

func TestQueueRejectsCancelledAndClosed(t *testing.T) {
	q := NewQueue()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	if err := q.Do(ctx, func() error { ran = true; return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
	if ran {
		t.Fatalf("cancelled work must not run")
	}

	q.Close()
	if err := q.Do(context.Background(), func() error { return nil }); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
}
