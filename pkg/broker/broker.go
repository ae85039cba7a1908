// Package broker mediates between view consumers and the store adapter's
// raw subscription mechanism. Each consumer gets its own delivery
// goroutine fed by a latest-wins channel, so one slow consumer never
// delays the writer or its siblings, and identical consecutive snapshots
// are dropped instead of triggering redundant re-renders.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"github.com/valee-art/ALXIE/pkg/store"
)

// Broker fans store change notifications out to registered consumers.
type Broker struct {
	adapter store.Adapter
}

// New wraps the given adapter. The adapter instance is injected, never an
// ambient singleton.
func New(adapter store.Adapter) *Broker {
	return &Broker{adapter: adapter}
}

// Adapter exposes the wrapped adapter for callers that need direct reads.
func (b *Broker) Adapter() store.Adapter { return b.adapter }

// Subscribe registers fn for kind. fn receives the current full ordered
// list once before long-term delivery begins, then after every completed
// mutation to the kind. The returned cancel is idempotent; after it
// returns, fn is never invoked again.
func (b *Broker) Subscribe(ctx context.Context, kind store.Kind, fn func(records []json.RawMessage)) (store.CancelFunc, error) {
	ch := make(chan []json.RawMessage, 1)
	done := make(chan struct{})

	// Latest-wins push: a consumer that is still processing the previous
	// snapshot only ever misses intermediate states, never the final one.
	push := func(records []json.RawMessage) {
		for {
			select {
			case ch <- records:
				return
			default:
				select {
				case <-ch:
				default:
				}
			}
		}
	}

	cancelStore, err := b.adapter.Subscribe(ctx, kind, push)
	if err != nil {
		return nil, err
	}

	// deliverMu makes cancel synchronize with an in-flight fn call: the
	// goroutine holds it across the done-check and the call, and cancel
	// acquires it after closing done, so once cancel returns fn can never
	// run again.
	var deliverMu sync.Mutex

	go func() {
		var last []byte
		for {
			select {
			case <-done:
				return
			case records := <-ch:
				key, _ := json.Marshal(records)
				if bytes.Equal(key, last) {
					continue
				}
				last = key
				deliverMu.Lock()
				select {
				case <-done:
					deliverMu.Unlock()
					return
				default:
				}
				fn(records)
				deliverMu.Unlock()
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			cancelStore()
			close(done)
			// Barrier: wait out any fn call that started before done closed.
			deliverMu.Lock()
			deliverMu.Unlock()
		})
	}
	return cancel, nil
}
