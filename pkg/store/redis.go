package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/valee-art/ALXIE/pkg/logger"
)

// casAttempts bounds the optimistic retry loop of Update. Contention on a
// single record is short-lived (reaction bursts), so a small bound is
// plenty before reporting the store unavailable.
const casAttempts = 32

// Redis is the remote live-store backend. Records live in a hash per kind,
// ordering in a lexicographic sorted set keyed like the pebble backend, and
// change notification rides native pub/sub so subscribers in other
// processes see writes without polling.
type Redis struct {
	client *redis.Client
	clock  writeClock
	seq    uint64
}

// OpenRedis connects to the given redis URL and verifies the connection.
func OpenRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, unavailable(fmt.Errorf("connect to redis: %v", err))
	}
	return &Redis{client: client}, nil
}

func recKey(kind Kind) string  { return "alxie:rec:" + string(kind) }
func ordKey(kind Kind) string  { return "alxie:ord:" + string(kind) }
func chanKey(kind Kind) string { return "alxie:changed:" + string(kind) }

func (r *Redis) Append(ctx context.Context, kind Kind, payload json.RawMessage) (Meta, error) {
	ts := r.clock.next()
	meta, rec, err := stamp(payload, ts)
	if err != nil {
		return Meta{}, err
	}
	member := fmt.Sprintf("%020d-%06d:%s", ts, atomic.AddUint64(&r.seq, 1), meta.ID)

	// HSETNX decides id ownership atomically across processes; only the
	// winning append gets to add the ordering entry.
	ok, err := r.client.HSetNX(ctx, recKey(kind), meta.ID, string(rec)).Result()
	if err != nil {
		logger.Error("redis_append_failed", "kind", kind, "id", meta.ID, "error", err)
		return Meta{}, unavailable(err)
	}
	if !ok {
		return Meta{}, ErrExists
	}
	if err := r.client.ZAdd(ctx, ordKey(kind), redis.Z{Score: 0, Member: member}).Err(); err != nil {
		logger.Error("redis_append_failed", "kind", kind, "id", meta.ID, "error", err)
		return Meta{}, unavailable(err)
	}

	appendsTotal.WithLabelValues("redis", string(kind)).Inc()
	r.notifyChanged(ctx, kind)
	return meta, nil
}

func (r *Redis) List(ctx context.Context, kind Kind) ([]json.RawMessage, error) {
	members, err := r.client.ZRevRangeByLex(ctx, ordKey(kind), &redis.ZRangeBy{Min: "-", Max: "+"}).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		if _, id, ok := strings.Cut(m, ":"); ok {
			ids = append(ids, id)
		}
	}
	vals, err := r.client.HMGet(ctx, recKey(kind), ids...).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	out := make([]json.RawMessage, 0, len(vals))
	for _, v := range vals {
		if s, ok := v.(string); ok {
			out = append(out, json.RawMessage(s))
		}
	}
	return out, nil
}

func (r *Redis) Get(ctx context.Context, kind Kind, id string) (json.RawMessage, error) {
	v, err := r.client.HGet(ctx, recKey(kind), id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return json.RawMessage(v), nil
}

// Update runs the mutation inside a WATCH transaction so a concurrent
// writer invalidates the read and the loop retries against the fresh value.
func (r *Redis) Update(ctx context.Context, kind Kind, id string, mutate MutateFunc) (json.RawMessage, error) {
	var result json.RawMessage
	for attempt := 0; attempt < casAttempts; attempt++ {
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := tx.HGet(ctx, recKey(kind), id).Result()
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			if err != nil {
				return unavailable(err)
			}
			out, err := mutate(json.RawMessage(cur))
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, recKey(kind), id, string(out))
				return nil
			})
			if err != nil {
				return unavailable(err)
			}
			result = out
			return nil
		}, recKey(kind))

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		updatesTotal.WithLabelValues("redis", string(kind)).Inc()
		r.notifyChanged(ctx, kind)
		return result, nil
	}
	return nil, unavailable(fmt.Errorf("update contention on %s/%s", kind, id))
}

func (r *Redis) Subscribe(ctx context.Context, kind Kind, fn SubscribeFunc) (CancelFunc, error) {
	ps := r.client.Subscribe(ctx, chanKey(kind))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, unavailable(err)
	}
	subscribersGauge.WithLabelValues("redis", string(kind)).Inc()

	snapshot, err := r.List(ctx, kind)
	if err != nil {
		_ = ps.Close()
		subscribersGauge.WithLabelValues("redis", string(kind)).Dec()
		return nil, err
	}
	fn(snapshot)

	done := make(chan struct{})
	go func() {
		ch := ps.Channel()
		for {
			select {
			case <-done:
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				recs, err := r.List(context.Background(), kind)
				if err != nil {
					logger.Warn("redis_subscribe_list_failed", "kind", kind, "error", err)
					continue
				}
				select {
				case <-done:
					return
				default:
				}
				fn(recs)
				notifyTotal.WithLabelValues("redis", string(kind)).Inc()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
			subscribersGauge.WithLabelValues("redis", string(kind)).Dec()
		})
	}, nil
}

func (r *Redis) Clear(ctx context.Context, kind Kind) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, recKey(kind), ordKey(kind))
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable(err)
	}
	r.notifyChanged(ctx, kind)
	return nil
}

func (r *Redis) Close() error { return r.client.Close() }

func (r *Redis) notifyChanged(ctx context.Context, kind Kind) {
	if err := r.client.Publish(ctx, chanKey(kind), "changed").Err(); err != nil {
		logger.Warn("redis_publish_failed", "kind", kind, "error", err)
	}
}
