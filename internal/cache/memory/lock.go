// Package memory provides single-process implementations of the domain
// cache and messaging interfaces.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// LockManager implements domain.LockManager with one semaphore per key.
// The ttl is ignored: a lock is held until its unlock func is called. A key's
// entry lives only while some caller holds or waits for it.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int // holders plus waiters
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]*keyLock)}
}

func (lm *LockManager) ref(key string) *keyLock {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	kl, ok := lm.locks[key]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		lm.locks[key] = kl
	}
	kl.refs++
	return kl
}

func (lm *LockManager) unref(key string, kl *keyLock) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	kl.refs--
	if kl.refs == 0 {
		delete(lm.locks, key)
	}
}

// Acquire blocks until key is free or ctx is done. The returned unlock func
// is safe to call more than once.
func (lm *LockManager) Acquire(ctx context.Context, key string, _ time.Duration) (func(), error) {
	kl := lm.ref(key)
	select {
	case kl.sem <- struct{}{}:
	case <-ctx.Done():
		lm.unref(key, kl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.sem
			lm.unref(key, kl)
		})
	}, nil
}

// keys reports how many keys currently have an entry.
func (lm *LockManager) keys() int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return len(lm.locks)
}

var _ domain.LockManager = (*LockManager)(nil)
