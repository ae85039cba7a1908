package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"github.com/valee-art/ALXIE/pkg/logger"
)

// Pebble is the durable local backend. Records are keyed with a sortable
// timestamp prefix so prefix iteration yields insertion order; a per-id
// index key points at the ordering key for direct lookup.
//
// Key format:
//
//	rec:<kind>:<unix_nano_padded>-<seq>  -> record JSON
//	id:<kind>:<record id>                -> ordering key
type Pebble struct {
	db    *pebble.DB
	path  string
	clock writeClock
	n     notifier

	// seq reduces key collisions when multiple records share the same
	// nanosecond timestamp.
	seq uint64

	// wmu serializes appends and read-modify-write updates so mutate
	// always sees the freshest value and id uniqueness checks hold.
	wmu sync.Mutex
}

// OpenPebble opens (or creates) a pebble database at the given path.
func OpenPebble(path string) (*Pebble, error) {
	logger.Info("opening_pebble_db", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, unavailable(err)
	}
	return &Pebble{db: db, path: path, n: notifier{backend: "pebble"}}, nil
}

func (p *Pebble) recKey(kind Kind, ts int64, seq uint64) []byte {
	return []byte(fmt.Sprintf("rec:%s:%020d-%06d", kind, ts, seq))
}

func (p *Pebble) idKey(kind Kind, id string) []byte {
	return []byte(fmt.Sprintf("id:%s:%s", kind, id))
}

func (p *Pebble) Append(ctx context.Context, kind Kind, payload json.RawMessage) (Meta, error) {
	ts := p.clock.next()
	meta, rec, err := stamp(payload, ts)
	if err != nil {
		return Meta{}, err
	}
	key := p.recKey(kind, ts, atomic.AddUint64(&p.seq, 1))

	// wmu also covers the id-uniqueness check so two appends carrying the
	// same caller-supplied id cannot both pass it.
	p.wmu.Lock()
	defer p.wmu.Unlock()
	if _, err := p.lookupKey(kind, meta.ID); err == nil {
		return Meta{}, ErrExists
	} else if !errors.Is(err, ErrNotFound) {
		return Meta{}, err
	}

	batch := p.db.NewBatch()
	if err := batch.Set(key, rec, nil); err != nil {
		return Meta{}, unavailable(err)
	}
	if err := batch.Set(p.idKey(kind, meta.ID), key, nil); err != nil {
		return Meta{}, unavailable(err)
	}
	if err := p.db.Apply(batch, pebble.Sync); err != nil {
		logger.Error("pebble_append_failed", "kind", kind, "key", string(key), "error", err)
		return Meta{}, unavailable(err)
	}

	appendsTotal.WithLabelValues("pebble", string(kind)).Inc()
	p.broadcast(ctx, kind)
	return meta, nil
}

func (p *Pebble) List(ctx context.Context, kind Kind) ([]json.RawMessage, error) {
	prefix := []byte("rec:" + string(kind) + ":")
	iter, err := p.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, unavailable(err)
	}
	defer iter.Close()

	var asc []json.RawMessage
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		asc = append(asc, append(json.RawMessage(nil), iter.Value()...))
	}
	if err := iter.Error(); err != nil {
		return nil, unavailable(err)
	}
	out := make([]json.RawMessage, 0, len(asc))
	for i := len(asc) - 1; i >= 0; i-- {
		out = append(out, asc[i])
	}
	return out, nil
}

func (p *Pebble) Get(ctx context.Context, kind Kind, id string) (json.RawMessage, error) {
	key, err := p.lookupKey(kind, id)
	if err != nil {
		return nil, err
	}
	v, closer, err := p.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, unavailable(err)
	}
	defer closer.Close()
	return append(json.RawMessage(nil), v...), nil
}

func (p *Pebble) lookupKey(kind Kind, id string) ([]byte, error) {
	v, closer, err := p.db.Get(p.idKey(kind, id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, unavailable(err)
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

func (p *Pebble) Update(ctx context.Context, kind Kind, id string, mutate MutateFunc) (json.RawMessage, error) {
	p.wmu.Lock()
	defer p.wmu.Unlock()

	key, err := p.lookupKey(kind, id)
	if err != nil {
		return nil, err
	}
	cur, closer, err := p.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, unavailable(err)
	}
	snapshot := append(json.RawMessage(nil), cur...)
	closer.Close()

	out, err := mutate(snapshot)
	if err != nil {
		return nil, err
	}
	if err := p.db.Set(key, out, pebble.Sync); err != nil {
		logger.Error("pebble_update_failed", "kind", kind, "id", id, "error", err)
		return nil, unavailable(err)
	}

	updatesTotal.WithLabelValues("pebble", string(kind)).Inc()
	p.broadcast(ctx, kind)
	return out, nil
}

func (p *Pebble) Subscribe(ctx context.Context, kind Kind, fn SubscribeFunc) (CancelFunc, error) {
	id := p.n.add(kind, fn)
	snapshot, err := p.List(ctx, kind)
	if err != nil {
		p.n.remove(kind, id)
		return nil, err
	}
	fn(snapshot)

	var once sync.Once
	return func() {
		once.Do(func() { p.n.remove(kind, id) })
	}, nil
}

func (p *Pebble) Clear(ctx context.Context, kind Kind) error {
	for _, prefix := range []string{"rec:" + string(kind) + ":", "id:" + string(kind) + ":"} {
		start := []byte(prefix)
		end := keyUpperBound(start)
		if err := p.db.DeleteRange(start, end, pebble.Sync); err != nil {
			return unavailable(err)
		}
	}
	p.broadcast(ctx, kind)
	return nil
}

func (p *Pebble) Close() error {
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}

func (p *Pebble) broadcast(ctx context.Context, kind Kind) {
	snapshot, err := p.List(ctx, kind)
	if err != nil {
		logger.Warn("pebble_broadcast_list_failed", "kind", kind, "error", err)
		return
	}
	p.n.publish(kind, snapshot)
}

func keyUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
