package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind names one of the record collections the adapter manages.
type Kind string

const (
	KindVent       Kind = "vent"
	KindReflection Kind = "reflection"
	KindCommunity  Kind = "community"
	KindChat       Kind = "chat"
	KindContact    Kind = "contact"
)

// Kinds lists every collection, in the order maintenance tooling walks them.
var Kinds = []Kind{KindVent, KindReflection, KindCommunity, KindChat, KindContact}

// Valid reports whether k names a known collection.
func (k Kind) Valid() bool {
	switch k {
	case KindVent, KindReflection, KindCommunity, KindChat, KindContact:
		return true
	}
	return false
}

var (
	// ErrNotFound is returned when a mutation targets an id that does not
	// exist in the collection.
	ErrNotFound = errors.New("record not found")
	// ErrExists is returned by Append when the payload carries an id that
	// is already present in the kind. Ids are assigned exactly once; a
	// second record never lands under the same id.
	ErrExists = errors.New("record already exists")
	// ErrUnavailable is returned when the backing medium is unreachable or
	// rejects the write. No partial write occurs.
	ErrUnavailable = errors.New("store unavailable")
)

// Meta is the identity the store settled on for an appended record.
type Meta struct {
	ID        string
	CreatedAt int64
}

// SubscribeFunc receives the current full ordered list of a kind, once
// immediately on registration and again after every successful write.
type SubscribeFunc func(records []json.RawMessage)

// CancelFunc stops further notification and releases backend resources.
// Calling it more than once is safe.
type CancelFunc func()

// MutateFunc transforms the freshest stored value of a record into its
// replacement. Returning an error aborts the update without writing.
type MutateFunc func(current json.RawMessage) (json.RawMessage, error)

// Adapter is the capability set every backend implements. Callers must
// treat Append and Update as asynchronous suspension points even when a
// backend happens to resolve immediately.
type Adapter interface {
	// Append durably adds one record, assigning its id and createdAt when
	// absent, and returns the final identity. A caller-supplied id that is
	// already present in the kind yields ErrExists; nothing is written.
	Append(ctx context.Context, kind Kind, payload json.RawMessage) (Meta, error)
	// List returns all records of kind ordered by createdAt descending.
	List(ctx context.Context, kind Kind) ([]json.RawMessage, error)
	// Get returns the record with the given id or ErrNotFound.
	Get(ctx context.Context, kind Kind, id string) (json.RawMessage, error)
	// Update applies mutate to the freshest stored value and persists the
	// result. The read-modify-write never acts on a stale snapshot.
	Update(ctx context.Context, kind Kind, id string, mutate MutateFunc) (json.RawMessage, error)
	// Subscribe registers fn for kind. fn is invoked with the current list
	// before Subscribe returns, then after every successful write from any
	// caller. Cancellation stops future deliveries, but a delivery already
	// in flight on a writer's goroutine may still complete; the broker
	// wraps this with the strict no-callback-after-cancel guarantee.
	Subscribe(ctx context.Context, kind Kind, fn SubscribeFunc) (CancelFunc, error)
	// Clear irreversibly empties the collection. Never invoked
	// automatically.
	Clear(ctx context.Context, kind Kind) error
	Close() error
}

// writeClock hands out strictly increasing timestamps so createdAt is
// monotonic per store even when two appends land in the same nanosecond.
type writeClock struct {
	mu   sync.Mutex
	last int64
}

func (c *writeClock) next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := time.Now().UTC().UnixNano()
	if ts <= c.last {
		ts = c.last + 1
	}
	c.last = ts
	return ts
}

// stamp fills in the id and createdAt fields of a raw record, leaving every
// other field's bytes untouched so absent optionals stay absent.
func stamp(payload json.RawMessage, ts int64) (Meta, json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return Meta{}, nil, fmt.Errorf("invalid record JSON: %w", err)
	}
	var id string
	if raw, ok := fields["id"]; ok {
		_ = json.Unmarshal(raw, &id)
	}
	if id == "" {
		id = uuid.NewString()
		idb, _ := json.Marshal(id)
		fields["id"] = idb
	}
	var created int64
	if raw, ok := fields["createdAt"]; ok {
		_ = json.Unmarshal(raw, &created)
	}
	if created == 0 {
		created = ts
		fields["createdAt"] = json.RawMessage(strconv.FormatInt(ts, 10))
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return Meta{}, nil, err
	}
	return Meta{ID: id, CreatedAt: created}, out, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
