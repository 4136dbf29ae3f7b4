package cache

import (
	"context"
	"sync"
)

// LocalLocks provides in-process per-post locking for tests and for
// running without Redis. Serialization only holds within a single
// process.
type LocalLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ Locks = (*LocalLocks)(nil)

// NewLocalLocks returns an empty in-process lock set.
func NewLocalLocks() *LocalLocks {
	return &LocalLocks{
		locks: make(map[string]*sync.Mutex),
	}
}

func (l *LocalLocks) Close() error {
	return nil
}

func (l *LocalLocks) WithPostLock(ctx context.Context, postID string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	lock, ok := l.locks[postID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[postID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}
