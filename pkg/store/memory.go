package store

import (
	"context"
	"encoding/json"
	"sync"
)

// Memory is the synchronous in-process backend. Writes resolve immediately
// and subscribers of the same process observe each other's writes through
// the notify-on-write mechanism, no polling involved.
type Memory struct {
	clock writeClock
	n     notifier

	mu   sync.RWMutex
	recs map[Kind][]json.RawMessage
	byID map[Kind]map[string]int
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		n:    notifier{backend: "memory"},
		recs: make(map[Kind][]json.RawMessage),
		byID: make(map[Kind]map[string]int),
	}
}

func (m *Memory) Append(ctx context.Context, kind Kind, payload json.RawMessage) (Meta, error) {
	meta, rec, err := stamp(payload, m.clock.next())
	if err != nil {
		return Meta{}, err
	}
	m.mu.Lock()
	if m.byID[kind] == nil {
		m.byID[kind] = make(map[string]int)
	}
	if _, exists := m.byID[kind][meta.ID]; exists {
		m.mu.Unlock()
		return Meta{}, ErrExists
	}
	m.byID[kind][meta.ID] = len(m.recs[kind])
	m.recs[kind] = append(m.recs[kind], rec)
	m.mu.Unlock()

	appendsTotal.WithLabelValues("memory", string(kind)).Inc()
	m.broadcast(kind)
	return meta, nil
}

func (m *Memory) List(ctx context.Context, kind Kind) ([]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(kind), nil
}

// listLocked returns a reversed copy: insertion order ascending, views want
// most recent first.
func (m *Memory) listLocked(kind Kind) []json.RawMessage {
	src := m.recs[kind]
	out := make([]json.RawMessage, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, append(json.RawMessage(nil), src[i]...))
	}
	return out
}

func (m *Memory) Get(ctx context.Context, kind Kind, id string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.byID[kind][id]
	if !ok {
		return nil, ErrNotFound
	}
	return append(json.RawMessage(nil), m.recs[kind][idx]...), nil
}

func (m *Memory) Update(ctx context.Context, kind Kind, id string, mutate MutateFunc) (json.RawMessage, error) {
	m.mu.Lock()
	idx, ok := m.byID[kind][id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	cur := append(json.RawMessage(nil), m.recs[kind][idx]...)
	out, err := mutate(cur)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.recs[kind][idx] = out
	m.mu.Unlock()

	updatesTotal.WithLabelValues("memory", string(kind)).Inc()
	m.broadcast(kind)
	return out, nil
}

func (m *Memory) Subscribe(ctx context.Context, kind Kind, fn SubscribeFunc) (CancelFunc, error) {
	id := m.n.add(kind, fn)
	m.mu.RLock()
	snapshot := m.listLocked(kind)
	m.mu.RUnlock()
	fn(snapshot)

	var once sync.Once
	return func() {
		once.Do(func() { m.n.remove(kind, id) })
	}, nil
}

func (m *Memory) Clear(ctx context.Context, kind Kind) error {
	m.mu.Lock()
	delete(m.recs, kind)
	delete(m.byID, kind)
	m.mu.Unlock()
	m.broadcast(kind)
	return nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) broadcast(kind Kind) {
	m.mu.RLock()
	snapshot := m.listLocked(kind)
	m.mu.RUnlock()
	m.n.publish(kind, snapshot)
}
