package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hyperjump/docrag/internal/config"
)

func assertExclusive(t *testing.T, l Locker) {
	t.Helper()
	var (
		wg      sync.WaitGroup
		holders atomic.Int32
		maxSeen atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "source-1")
			if err != nil {
				t.Error(err)
				return
			}
			n := holders.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(5 * time.Millisecond)
			holders.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	if maxSeen.Load() != 1 {
		t.Errorf("lock held by %d goroutines at once", maxSeen.Load())
	}
}

func TestLocalLocker_Exclusive(t *testing.T) {
	assertExclusive(t, NewLocalLocker())
}

func TestLocalLocker_IndependentKeys(t *testing.T) {
	l := NewLocalLocker()
	unlockA, err := l.Lock(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	defer unlockA()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("different key should not block: %v", err)
	}
	unlockB()
}

func TestLocalLocker_ContextCancel(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	unlock()
	unlock()
	again, err := l.Lock(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	again()
	if len(l.locks) != 0 {
		t.Errorf("expected lock table to be empty, has %d entries", len(l.locks))
	}
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLocker_Exclusive(t *testing.T) {
	_, client := newTestRedis(t)
	assertExclusive(t, NewRedisLocker(client, time.Minute, 10*time.Second))
}

func TestRedisLocker_Timeout(t *testing.T) {
	_, client := newTestRedis(t)
	l := NewRedisLocker(client, time.Minute, 100*time.Millisecond)
	unlock, err := l.Lock(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	defer unlock()
	if _, err := l.Lock(context.Background(), "a"); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
}

func TestRedisLocker_ReleaseKeepsForeignToken(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLocker(client, time.Minute, time.Second)
	unlock, err := l.Lock(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	// Simulate expiry and takeover by another holder.
	mr.Del(lockPrefix + "a")
	if err := mr.Set(lockPrefix+"a", "someone-else"); err != nil {
		t.Fatal(err)
	}
	unlock()
	got, err := mr.Get(lockPrefix + "a")
	if err != nil || got != "someone-else" {
		t.Fatalf("foreign lock released: %q, %v", got, err)
	}
}

func TestRedisLocker_TTL(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLocker(client, time.Second, 5*time.Second)
	stale, err := l.Lock(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	mr.FastForward(2 * time.Second)
	unlock, err := l.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("expired lock should be acquirable: %v", err)
	}
	unlock()
	if mr.Exists(lockPrefix + "a") {
		t.Error("lock key still present after unlock")
	}
	stale()
}

func TestRedisLocker_RefreshesWhileHeld(t *testing.T) {
	mr, client := newTestRedis(t)
	ttl := 300 * time.Millisecond
	l := NewRedisLocker(client, ttl, time.Second)
	unlock, err := l.Lock(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	mr.FastForward(250 * time.Millisecond)
	deadline := time.Now().Add(2 * time.Second)
	for mr.TTL(lockPrefix+"a") <= 100*time.Millisecond {
		if time.Now().After(deadline) {
			t.Fatalf("lock TTL not extended: %v", mr.TTL(lockPrefix+"a"))
		}
		time.Sleep(20 * time.Millisecond)
	}
	// Longer than the original TTL in total, yet still held.
	mr.FastForward(250 * time.Millisecond)
	if !mr.Exists(lockPrefix + "a") {
		t.Fatal("held lock expired")
	}
	unlock()
	if mr.Exists(lockPrefix + "a") {
		t.Error("lock key still present after unlock")
	}
}

func TestNew(t *testing.T) {
	l, err := New(context.Background(), config.LockConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := l.(*LocalLocker); !ok {
		t.Errorf("expected LocalLocker, got %T", l)
	}

	mr := miniredis.RunT(t)
	l, err = New(context.Background(), config.LockConfig{RedisAddr: mr.Addr(), TTL: time.Minute, Wait: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	if _, ok := l.(*RedisLocker); !ok {
		t.Errorf("expected RedisLocker, got %T", l)
	}
}
