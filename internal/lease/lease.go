// Package lease provides job-level single flight across processes. It is
// independent of the per-balance locks the ledger takes.
package lease

import (
	"context"
	"errors"
	"time"
)

var (
	ErrLeaseHeld    = errors.New("lease_held")
	ErrInvalidKey   = errors.New("lease_key_empty")
	ErrInvalidTTL   = errors.New("lease_ttl_not_positive")
	ErrNotAvailable = errors.New("lease_backend_unavailable")
)

// Locker hands out expiring, token-guarded leases. Release with a stale
// token is a no-op so an expired holder cannot drop a newer lease.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// Acquire takes key or reports ErrLeaseHeld. The returned release func is
// safe to call after the lease expired.
func Acquire(ctx context.Context, l Locker, key string, ttl time.Duration) (func(context.Context) error, error) {
	if l == nil {
		return nil, ErrNotAvailable
	}
	token, ok, err := l.TryLock(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLeaseHeld
	}
	return func(ctx context.Context) error {
		return l.Release(ctx, key, token)
	}, nil
}

func validate(key string, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}
