// Package dispatch moves trade and notification jobs through queues into
// fixed-size worker pools, with idempotent enqueue, retry policies and
// per-(wallet, token) serialization.
package dispatch

import (
	"context"
	"sync"
	"time"
)

// Queue names.
const (
	QueueSwap         = "swap"
	QueueNotification = "notification"
)

// Queue is a named FIFO of encoded jobs. Pop blocks until a payload is
// available or ctx is done.
type Queue interface {
	Push(ctx context.Context, name string, payload []byte) error
	Pop(ctx context.Context, name string) ([]byte, error)
}

// Deduper claims idempotency keys. Claim returns false when the key is
// already pending.
type Deduper interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Locker serializes work on a key. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// DefaultQueueSize is the per-queue buffer of MemoryQueue.
const DefaultQueueSize = 1024

// MemoryQueue is an in-process Queue backed by buffered channels.
type MemoryQueue struct {
	mu    sync.Mutex
	chans map[string]chan []byte
	size  int
}

// NewMemoryQueue creates a MemoryQueue with size slots per queue.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &MemoryQueue{chans: make(map[string]chan []byte), size: size}
}

func (q *MemoryQueue) ch(name string) chan []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	c, ok := q.chans[name]
	if !ok {
		c = make(chan []byte, q.size)
		q.chans[name] = c
	}
	return c
}

// Push appends payload, blocking while the queue is full.
func (q *MemoryQueue) Push(ctx context.Context, name string, payload []byte) error {
	select {
	case q.ch(name) <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop removes the oldest payload.
func (q *MemoryQueue) Pop(ctx context.Context, name string) ([]byte, error) {
	select {
	case p := <-q.ch(name):
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the number of pending payloads.
func (q *MemoryQueue) Len(name string) int {
	return len(q.ch(name))
}

// MemoryDeduper is an in-process Deduper with per-key expiry.
type MemoryDeduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	keys map[string]time.Time
	now  func() time.Time
}

// NewMemoryDeduper creates a MemoryDeduper. Keys expire after ttl even if never released.
func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{ttl: ttl, keys: make(map[string]time.Time), now: time.Now}
}

// Claim marks key pending.
func (d *MemoryDeduper) Claim(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if exp, ok := d.keys[key]; ok && (d.ttl <= 0 || now.Before(exp)) {
		return false, nil
	}
	d.keys[key] = now.Add(d.ttl)
	return true, nil
}

// Release clears key.
func (d *MemoryDeduper) Release(_ context.Context, key string) error {
	d.mu.Lock()
	delete(d.keys, key)
	d.mu.Unlock()
	return nil
}

// KeyedLocker is an in-process Locker holding one mutex per key. Entries are
// dropped when no holder or waiter remains.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	sem  chan struct{}
	refs int
}

// NewKeyedLocker creates a KeyedLocker.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free or ctx is done.
func (l *KeyedLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &keyedEntry{sem: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.drop(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.drop(key, e)
		})
	}, nil
}

func (l *KeyedLocker) drop(key string, e *keyedEntry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

// Len returns the number of keys currently held or awaited.
func (l *KeyedLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
