package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(ctx, "pay-1")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			defer unlock()

			n := atomic.AddInt32(&inside, 1)
			for {
				seen := atomic.LoadInt32(&maxSeen)
				if n <= seen || atomic.CompareAndSwapInt32(&maxSeen, seen, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("expected at most one holder at a time, saw %d", maxSeen)
	}
	if m.Len() != 0 {
		t.Fatalf("expected lock entries to be cleaned up, got %d", m.Len())
	}
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	unlockA, err := m.Lock(ctx, "a")
	if err != nil {
		t.Fatalf("lock a: %v", err)
	}
	defer unlockA()

	timeoutCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	unlockB, err := m.Lock(timeoutCtx, "b")
	if err != nil {
		t.Fatalf("lock b must not wait for a: %v", err)
	}
	unlockB()
}

func TestKeyedMutex_ContextCancel(t *testing.T) {
	m := NewKeyedMutex()

	unlock, err := m.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := m.Lock(ctx, "a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	unlock()
	unlock()
	if m.Len() != 0 {
		t.Fatalf("expected no entries after release, got %d", m.Len())
	}
}

func TestRedisLocker_ReleaseFailureIsLogged(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	logger, hook := logtest.NewNullLogger()
	l := NewRedisLocker(client, WithRedisLogger(logger.WithField("component", "redis-locker")))

	l.release(defaultRedisKeyPrefix+"room-1", "token")

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("release error was not logged")
	}
	if entry.Level != log.WarnLevel || entry.Message != "redis lock release failed" {
		t.Fatalf("unexpected log entry: %s %q", entry.Level, entry.Message)
	}
	if entry.Data[log.ErrorKey] == nil {
		t.Fatal("log entry has no error")
	}
	if entry.Data["key"] != defaultRedisKeyPrefix+"room-1" {
		t.Fatalf("key = %v", entry.Data["key"])
	}
}
