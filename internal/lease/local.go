package lease

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/computeledger/internal/clock"
)

type localEntry struct {
	token     string
	expiresAt time.Time
}

// LocalLocker is the single-process fallback used when no redis is
// configured.
type LocalLocker struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]localEntry
}

func NewLocalLocker(c clock.Clock) *LocalLocker {
	if c == nil {
		c = clock.SystemClock{}
	}
	return &LocalLocker{clock: c, entries: make(map[string]localEntry)}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	if err := validate(key, ttl); err != nil {
		return "", false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if e, ok := l.entries[key]; ok && now.Before(e.expiresAt) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.entries[key] = localEntry{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

func (l *LocalLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries[key]; ok && e.token == token {
		delete(l.entries, key)
	}
	return nil
}
