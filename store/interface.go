package store

import (
	"context"
	"time"
)

// Store is the atomic key/value fabric the dispatch core runs on.
// Each operation is individually atomic; the core never needs multi-key
// transactions. Race resolution happens through ListRemoveFirst and the
// single-writer-per-worker-list discipline.
type Store interface {
	// ListAppend appends value to the tail of the list at key.
	ListAppend(ctx context.Context, key, value string) error

	// ListLen returns the length of the list at key (0 if missing).
	ListLen(ctx context.Context, key string) (int64, error)

	// ListIndex returns the element at index i. ok is false when the
	// index is out of range.
	ListIndex(ctx context.Context, key string, i int64) (value string, ok bool, err error)

	// ListRemoveFirst removes the first element equal to value. It
	// returns the number of removed elements (0 or 1); concurrent
	// removers of the same payload see at most one success.
	ListRemoveFirst(ctx context.Context, key, value string) (int64, error)

	// ListPopHead blocks up to timeout for the head of the list.
	// ok is false on timeout.
	ListPopHead(ctx context.Context, key string, timeout time.Duration) (value string, ok bool, err error)

	// ListPushHead pushes value onto the head of the list.
	ListPushHead(ctx context.Context, key, value string) error

	// HashSet sets one field of the hash at key.
	HashSet(ctx context.Context, key, field, value string) error

	// HashSetFields sets several fields of the hash at key in one call.
	HashSetFields(ctx context.Context, key string, fields map[string]string) error

	// HashGet returns one field of the hash at key. ok is false when the
	// field is absent.
	HashGet(ctx context.Context, key, field string) (value string, ok bool, err error)

	// HashGetAll returns every field of the hash at key (empty map when
	// the key is missing).
	HashGetAll(ctx context.Context, key string) (map[string]string, error)

	// SetAdd adds member to the set at key.
	SetAdd(ctx context.Context, key, member string) error

	// SetMembers returns the members of the set at key.
	SetMembers(ctx context.Context, key string) ([]string, error)

	// SetWithTTL sets a string key that the store evicts after ttl.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error

	// Get returns a string key. ok is false when the key is missing or
	// its TTL has lapsed.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
}

// Coordinator is the lease surface used by the optional leader gate. It
// is separate from Store so the dispatch core stays
// pure with respect to the Store contract.
type Coordinator interface {
	// AcquireLease sets key to owner with ttl only if the key is absent.
	AcquireLease(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)

	// RenewLease extends the ttl if the lease is still held by owner.
	RenewLease(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)

	// ReleaseLease deletes the lease if held by owner.
	ReleaseLease(ctx context.Context, key, owner string) error
}
