package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/smallbiznis/entityusage/internal/usage/domain"
)

// keyLocks hands out one mutex per key and forgets it once nobody holds or
// waits for it.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*keyLock)}
}

func (k *keyLocks) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			k.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(k.locks, key)
			}
			k.mu.Unlock()
		})
	}
}

func (k *keyLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func usageLockKey(entityID snowflake.ID, day time.Time) string {
	return fmt.Sprintf("usage:%s:%s", entityID.String(), usagedomain.FormatDate(day))
}

// acquire takes the in-process lock for key and then the distributed one
// when configured.
func (s *Service) acquire(ctx context.Context, key string) (func(), error) {
	start := time.Now()
	release := s.locks.Lock(key)
	if s.distributed == nil {
		s.aggMetrics.ObserveLockWait(time.Since(start))
		return release, nil
	}

	unlock, err := s.distributed.Lock(ctx, key)
	if err != nil {
		release()
		return nil, err
	}
	s.aggMetrics.ObserveLockWait(time.Since(start))
	return func() {
		unlock()
		release()
	}, nil
}
