package history

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"activityScope/internal/model"
)

type memoryCheckpoints struct {
	mu     sync.Mutex
	blocks map[string]uint64
}

func (c *memoryCheckpoints) LoadState(_ context.Context, name string) (uint64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	block, ok := c.blocks[name]
	return block, ok, nil
}

func (c *memoryCheckpoints) SaveState(_ context.Context, name string, block uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks[name] = block
	return nil
}

type recordingSink struct {
	records []model.TransactionRecord
}

func (s *recordingSink) Add(_ context.Context, records []model.TransactionRecord) error {
	s.records = append(s.records, records...)
	return nil
}

func TestSyncerResumesFromCheckpoint(t *testing.T) {
	var (
		mu     sync.Mutex
		starts []string
	)
	transport := newFakeTransport(func(q url.Values) response {
		switch q.Get("action") {
		case "txlist":
			return empty()
		case "tokennfttx":
			return response{status: http.StatusNotFound}
		}
		mu.Lock()
		starts = append(starts, q.Get("startblock")+"/"+q.Get("page"))
		mu.Unlock()
		if q.Get("startblock") == "101" && q.Get("page") == "1" {
			return ok([]map[string]string{transfer(150, "0xa"), transfer(160, "0xb")})
		}
		return empty()
	})

	checkpoints := &memoryCheckpoints{blocks: map[string]uint64{"history-1-erc20": 100}}
	sink := &recordingSink{}
	syncer := NewSyncer(newTestExplorer(transport, 10), sink, checkpoints, 0, nil)

	if err := syncer.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(sink.records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(sink.records))
	}
	if block := checkpoints.blocks["history-1-erc20"]; block != 160 {
		t.Fatalf("expected checkpoint 160, got %d", block)
	}
	if _, ok := checkpoints.blocks["history-1-erc721"]; ok {
		t.Fatalf("a kind without history must not write a checkpoint")
	}
	if len(starts) != 2 || starts[0] != "101/1" || starts[1] != "101/2" {
		t.Fatalf("unexpected page starts: %v", starts)
	}
}

func TestSyncerStopsCheckpointShortOfUnfinishedBlock(t *testing.T) {
	transport := newFakeTransport(func(q url.Values) response {
		switch q.Get("action") {
		case "txlist":
			return empty()
		case "tokennfttx":
			return response{status: http.StatusNotFound}
		}
		return ok([]map[string]string{transfer(150, "0xa"), transfer(160, "0xb")})
	})

	checkpoints := &memoryCheckpoints{blocks: map[string]uint64{}}
	sink := &recordingSink{}
	syncer := NewSyncer(newTestExplorer(transport, 1), sink, checkpoints, 100, nil)

	if err := syncer.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(sink.records) != 2 {
		t.Fatalf("expected the fetched records to be stored, got %d", len(sink.records))
	}
	if block := checkpoints.blocks["history-1-erc20"]; block != 159 {
		t.Fatalf("block 160 may continue on the next page, expected checkpoint 159, got %d", block)
	}
}
