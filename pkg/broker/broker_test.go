package broker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/valee-art/ALXIE/pkg/store"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubscribeDeliversSnapshotThenWrites(t *testing.T) {
	adapter := store.NewMemory()
	b := New(adapter)
	ctx := context.Background()

	if _, err := adapter.Append(ctx, store.KindVent, json.RawMessage(`{"message":"first"}`)); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	var mu sync.Mutex
	var deliveries [][]json.RawMessage
	cancel, err := b.Subscribe(ctx, store.KindVent, func(records []json.RawMessage) {
		mu.Lock()
		deliveries = append(deliveries, records)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(deliveries) == 1 && len(deliveries[0]) == 1
	})

	if _, err := adapter.Append(ctx, store.KindVent, json.RawMessage(`{"message":"second"}`)); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(deliveries) == 2 && len(deliveries[1]) == 2
	})
}

func TestCancelStopsDelivery(t *testing.T) {
	adapter := store.NewMemory()
	b := New(adapter)
	ctx := context.Background()

	var mu sync.Mutex
	count := 0
	cancel, err := b.Subscribe(ctx, store.KindVent, func([]json.RawMessage) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	})

	cancel()
	cancel() // second call is a no-op

	if _, err := adapter.Append(ctx, store.KindVent, json.RawMessage(`{"message":"after"}`)); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	got := count
	mu.Unlock()
	if got != 1 {
		t.Fatalf("callback ran after cancel: %d deliveries", got)
	}
}

// Cancel must not return while a delivery is mid-flight, and once it has
// returned the callback can never run again.
func TestCancelWaitsForInflightDelivery(t *testing.T) {
	adapter := store.NewMemory()
	b := New(adapter)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	count := 0
	cancel, err := b.Subscribe(ctx, store.KindVent, func([]json.RawMessage) {
		mu.Lock()
		count++
		n := count
		mu.Unlock()
		if n == 2 {
			close(entered)
			<-release
		}
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	})

	if _, err := adapter.Append(ctx, store.KindVent, json.RawMessage(`{"message":"x"}`)); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	<-entered

	cancelled := make(chan struct{})
	go func() {
		cancel()
		close(cancelled)
	}()
	select {
	case <-cancelled:
		t.Fatalf("cancel returned while a delivery was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatalf("cancel did not return after delivery completed")
	}

	if _, err := adapter.Append(ctx, store.KindVent, json.RawMessage(`{"message":"y"}`)); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	got := count
	mu.Unlock()
	if got != 2 {
		t.Fatalf("callback ran after cancel returned: %d deliveries", got)
	}
}

func TestIdenticalSnapshotsDeduplicated(t *testing.T) {
	adapter := store.NewMemory()
	b := New(adapter)
	ctx := context.Background()

	meta, err := adapter.Append(ctx, store.KindCommunity, json.RawMessage(`{"text":"hi","reactions":{}}`))
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}

	var mu sync.Mutex
	count := 0
	cancel, err := b.Subscribe(ctx, store.KindCommunity, func([]json.RawMessage) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	})

	// A no-op update produces a byte-identical snapshot; no delivery.
	if _, err := adapter.Update(ctx, store.KindCommunity, meta.ID, func(cur json.RawMessage) (json.RawMessage, error) {
		return cur, nil
	}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	afterNoop := count
	mu.Unlock()
	if afterNoop != 1 {
		t.Fatalf("identical snapshot delivered: %d deliveries", afterNoop)
	}

	// A real change goes through.
	if _, err := adapter.Append(ctx, store.KindCommunity, json.RawMessage(`{"text":"more"}`)); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 2
	})
}

func TestSlowConsumerDoesNotBlockWriter(t *testing.T) {
	adapter := store.NewMemory()
	b := New(adapter)
	ctx := context.Background()

	block := make(chan struct{})
	var mu sync.Mutex
	var last []json.RawMessage
	cancel, err := b.Subscribe(ctx, store.KindVent, func(records []json.RawMessage) {
		<-block
		mu.Lock()
		last = records
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	// Writer side must never stall on the blocked consumer.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_, _ = adapter.Append(ctx, store.KindVent, json.RawMessage(`{"message":"n"}`))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("writer blocked by slow consumer")
	}

	// Unblock; latest-wins means the consumer converges on the final state.
	close(block)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last) == 10
	})
}
