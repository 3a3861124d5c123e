package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrNotFound = errors.New("storage key not found")

	// ErrStorageUnavailable is reported when no backend passed its canary.
	ErrStorageUnavailable = errors.New("no storage backend available")
)

// Kind tags the backend behind a Handle.
type Kind int

const (
	KindUnavailable Kind = iota
	KindProtocol
	KindRest
)

func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "protocol-connection"
	case KindRest:
		return "rest-client"
	default:
		return "unavailable"
	}
}

// Handle is the storage backend chosen for a run: *RestStore, *RedisStore or
// Unavailable. Call sites switch on the concrete type.
type Handle interface {
	Kind() Kind
	Close() error

	isHandle()
}

// KV is the key-value surface shared by the live backends.
type KV interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, key string) error
}

// Unavailable is the terminal selection when no backend works. Every
// bookkeeping operation against it is a no-op.
type Unavailable struct{}

func (Unavailable) Kind() Kind   { return KindUnavailable }
func (Unavailable) Close() error { return nil }
func (Unavailable) isHandle()    {}

func (*RestStore) isHandle()  {}
func (*RedisStore) isHandle() {}

// kv returns the live backend of h, or nil for Unavailable.
func kv(h Handle) KV {
	switch s := h.(type) {
	case *RestStore:
		return s
	case *RedisStore:
		return s
	case Unavailable:
		return nil
	default:
		return nil
	}
}
