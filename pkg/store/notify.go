package store

import (
	"encoding/json"
	"sync"
)

// notifier fans a change out to in-process subscribers. Callbacks run on
// the writer's goroutine, and a publish that snapshotted its callback set
// before a remove may still invoke the removed callback once; consumers
// needing isolation or a strict post-cancel guarantee wrap the adapter
// with the broker, whose cancel waits out in-flight deliveries.
type notifier struct {
	mu      sync.Mutex
	subs    map[Kind]map[int]SubscribeFunc
	next    int
	backend string
}

func (n *notifier) add(kind Kind, fn SubscribeFunc) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[Kind]map[int]SubscribeFunc)
	}
	if n.subs[kind] == nil {
		n.subs[kind] = make(map[int]SubscribeFunc)
	}
	n.next++
	n.subs[kind][n.next] = fn
	subscribersGauge.WithLabelValues(n.backend, string(kind)).Inc()
	return n.next
}

func (n *notifier) remove(kind Kind, id int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if m, ok := n.subs[kind]; ok {
		if _, ok := m[id]; ok {
			delete(m, id)
			subscribersGauge.WithLabelValues(n.backend, string(kind)).Dec()
		}
	}
}

func (n *notifier) publish(kind Kind, records []json.RawMessage) {
	n.mu.Lock()
	fns := make([]SubscribeFunc, 0, len(n.subs[kind]))
	for _, fn := range n.subs[kind] {
		fns = append(fns, fn)
	}
	n.mu.Unlock()
	for _, fn := range fns {
		fn(records)
		notifyTotal.WithLabelValues(n.backend, string(kind)).Inc()
	}
}
