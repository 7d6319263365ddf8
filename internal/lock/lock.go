// Package lock сериализует операции по ключу (например, обработку одного платежа).
package lock

import (
	"context"
	"sync"
)

// Locker берёт эксклюзивную блокировку по ключу. unlock обязателен к вызову.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// KeyedMutex — блокировка по ключу внутри одного процесса.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

// NewKeyedMutex создаёт in-process Locker.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyedEntry)}
}

// Lock ждёт освобождения ключа или отмены ctx.
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	entry, ok := m.entries[key]
	if !ok {
		entry = &keyedEntry{ch: make(chan struct{}, 1)}
		m.entries[key] = entry
	}
	entry.refs++
	m.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, entry, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { m.release(key, entry, true) })
	}, nil
}

func (m *KeyedMutex) release(key string, entry *keyedEntry, held bool) {
	if held {
		<-entry.ch
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry.refs--
	if entry.refs == 0 {
		delete(m.entries, key)
	}
}

// Len возвращает число ключей, по которым сейчас кто-то держит или ждёт блокировку.
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

var _ Locker = (*KeyedMutex)(nil)
