package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryLocker_SerializesSameKey(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	var mu sync.Mutex
	inside := 0
	maxInside := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Lock(ctx, AccountKey("a1"))
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxInside)
	}
	if l.size() != 0 {
		t.Errorf("entries = %d, want 0 after all releases", l.size())
	}
}

func TestMemoryLocker_DifferentKeysIndependent(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()
	r1, err := l.Lock(ctx, AccountKey("a1"))
	if err != nil {
		t.Fatalf("Lock a1: %v", err)
	}
	defer r1()
	ctx2, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	r2, err := l.Lock(ctx2, AccountKey("a2"))
	if err != nil {
		t.Fatalf("Lock a2 should not block on a1: %v", err)
	}
	r2()
}

func TestMemoryLocker_ContextTimeout(t *testing.T) {
	l := NewMemoryLocker()
	release, err := l.Lock(context.Background(), EmailKey("x@example.com"))
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, EmailKey("x@example.com")); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("err = %v, want ErrNotAcquired", err)
	}
	release()
	release() // idempotent
	if l.size() != 0 {
		t.Errorf("entries = %d, want 0", l.size())
	}
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLocker_LockAndRelease(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLocker(client, time.Second)
	ctx := context.Background()

	release, err := l.Lock(ctx, PhoneKey("15550001"))
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if !mr.Exists("idlock:phone:15550001") {
		t.Fatal("lock key should exist while held")
	}

	waitCtx, cancel := context.WithTimeout(ctx, 60*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(waitCtx, PhoneKey("15550001")); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("second Lock err = %v, want ErrNotAcquired", err)
	}

	release()
	if mr.Exists("idlock:phone:15550001") {
		t.Fatal("lock key should be deleted after release")
	}
	r2, err := l.Lock(ctx, PhoneKey("15550001"))
	if err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
	r2()
}

func TestRedisLocker_WaiterAcquiresAfterRelease(t *testing.T) {
	_, client := newTestRedis(t)
	l := NewRedisLocker(client, time.Second)
	ctx := context.Background()

	release, err := l.Lock(ctx, AccountKey("a1"))
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		r, err := l.Lock(waitCtx, AccountKey("a1"))
		if err == nil {
			r()
		}
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)
	release()
	if err := <-done; err != nil {
		t.Fatalf("waiter: %v", err)
	}
}

func TestRedisLocker_ReleaseKeepsForeignLock(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLocker(client, time.Second)
	ctx := context.Background()

	release, err := l.Lock(ctx, AccountKey("a1"))
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	// Simulate expiry and takeover by another holder.
	mr.FastForward(2 * time.Second)
	if err := mr.Set("idlock:account:a1", "other-holder"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	release()
	got, err := mr.Get("idlock:account:a1")
	if err != nil || got != "other-holder" {
		t.Fatalf("foreign lock = %q, %v; release must not delete it", got, err)
	}
}

func TestRedisLocker_RedisDown(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLocker(client, time.Second)
	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := l.Lock(ctx, AccountKey("a1")); err == nil {
		t.Fatal("Lock should fail when redis is unreachable")
	}
}
