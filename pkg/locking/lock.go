package locking

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockNotAcquired is returned when a lock cannot be acquired
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld is returned when trying to release a lock not held
	ErrLockNotHeld = errors.New("lock not held")
)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// Lock represents a held distributed lock
type Lock struct {
	client *Client
	key    string
	value  string
	ttl    time.Duration
}

// Locker provides distributed locking operations
type Locker struct {
	client    *Client
	keyPrefix string
	ttl       time.Duration
	wait      time.Duration
}

// NewLocker creates a new Locker. ttl bounds how long a crashed holder can
// block others; wait is how long LockAll retries before giving up.
func NewLocker(client *Client, keyPrefix string, ttl, wait time.Duration) *Locker {
	if keyPrefix == "" {
		keyPrefix = "lock:"
	}
	return &Locker{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		wait:      wait,
	}
}

// Acquire attempts to acquire a lock once
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	lockKey := l.keyPrefix + key
	lockValue := uuid.New().String()

	ok, err := l.client.rdb.SetNX(ctx, lockKey, lockValue, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	l.client.logger.WithContext(ctx).Debugf("Acquired lock: %s", key)

	return &Lock{
		client: l.client,
		key:    lockKey,
		value:  lockValue,
		ttl:    ttl,
	}, nil
}

// TryAcquire attempts to acquire a lock, retrying with backoff until timeout
func (l *Locker) TryAcquire(ctx context.Context, key string, ttl time.Duration, timeout time.Duration) (*Lock, error) {
	deadline := time.Now().Add(timeout)
	backoff := 10 * time.Millisecond

	for {
		lock, err := l.Acquire(ctx, key, ttl)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrLockNotAcquired) {
			return nil, err
		}
		if !time.Now().Before(deadline) {
			return nil, ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
			backoff = nextBackoff(backoff)
		}
	}
}

// LockAll acquires every key or none. Keys are taken in sorted order so two
// callers locking the same pair cannot deadlock. While held, the locks are
// extended every third of their TTL so a merge that outlives the TTL keeps
// them. The returned function stops the renewal and releases all of them.
func (l *Locker) LockAll(ctx context.Context, keys ...string) (func(context.Context), error) {
	var held []*Lock
	releaseHeld := func(ctx context.Context) {
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Release(ctx); err != nil {
				l.client.logger.WithContext(ctx).WithError(err).Warnf("Failed to release lock: %s", held[i].key)
			}
		}
	}

	for _, key := range lockOrder(keys) {
		lock, err := l.TryAcquire(ctx, key, l.ttl, l.wait)
		if err != nil {
			releaseHeld(ctx)
			return nil, err
		}
		held = append(held, lock)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(context.WithoutCancel(ctx), held, stop, done)

	var once sync.Once
	return func(ctx context.Context) {
		once.Do(func() {
			close(stop)
			<-done
			releaseHeld(ctx)
		})
	}, nil
}

func (l *Locker) keepAlive(ctx context.Context, locks []*Lock, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := l.ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for _, lock := range locks {
				if err := lock.Extend(ctx, l.ttl); err != nil {
					l.client.logger.WithContext(ctx).WithError(err).Warnf("Failed to extend lock: %s", lock.key)
				}
			}
		}
	}
}

// Release releases the lock if it is still held by us
func (lock *Lock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, lock.client.rdb, []string{lock.key}, lock.value).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}

	lock.client.logger.WithContext(ctx).Debugf("Released lock: %s", lock.key)
	return nil
}

// Extend extends the lock's TTL
func (lock *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	result, err := extendScript.Run(ctx, lock.client.rdb, []string{lock.key}, lock.value, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}

	lock.ttl = ttl
	return nil
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > 500*time.Millisecond {
		return 500 * time.Millisecond
	}
	return next
}

// lockOrder sorts and de-duplicates keys.
func lockOrder(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	ordered := make([]string, 0, len(keys))
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true
		ordered = append(ordered, key)
	}
	sort.Strings(ordered)
	return ordered
}
