package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/autopecas/sigesync/internal/domain"
)

var errHoldLost = errors.New("lock hold lost")

type hold struct {
	token uint64
	until time.Time
}

// LocalLocker serialises sync passes within one process
type LocalLocker struct {
	mu     sync.Mutex
	held   map[string]hold
	tokens uint64
	now    func() time.Time
}

// NewLocalLocker creates an in-process locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]hold), now: time.Now}
}

// Acquire takes key for ttl or fails with ErrSyncInProgress. An expired hold is taken over.
// The hold is extended every ttl/3 until released.
func (l *LocalLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	if h, ok := l.held[key]; ok && l.now().Before(h.until) {
		l.mu.Unlock()
		return nil, domain.ErrSyncInProgress
	}
	l.tokens++
	token := l.tokens
	l.held[key] = hold{token: token, until: l.now().Add(ttl)}
	l.mu.Unlock()

	stop := keepAlive(ttl, func(context.Context) error {
		return l.extend(key, token, ttl)
	})

	return func(context.Context) error {
		stop()
		l.mu.Lock()
		defer l.mu.Unlock()
		// a hold taken over after expiry belongs to someone else
		if l.held[key].token == token {
			delete(l.held, key)
		}
		return nil
	}, nil
}

func (l *LocalLocker) extend(key string, token uint64, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.held[key]
	if !ok || h.token != token {
		return errHoldLost
	}
	h.until = l.now().Add(ttl)
	l.held[key] = h
	return nil
}
