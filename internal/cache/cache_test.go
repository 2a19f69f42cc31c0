package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetOrLoadCachesSuccess(t *testing.T) {
	fixed := time.Date(2025, 4, 21, 9, 0, 0, 0, time.UTC)
	c := New[int]("test", func() time.Time { return fixed })

	var calls atomic.Int32
	loader := func(context.Context) (int, error) {
		calls.Add(1)
		return 42, nil
	}

	for i := 0; i < 3; i++ {
		got, err := c.GetOrLoad(context.Background(), "key", 5*time.Minute, loader)
		if err != nil {
			t.Fatalf("GetOrLoad returned error: %v", err)
		}
		if got != 42 {
			t.Fatalf("expected 42, got %d", got)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("expected loader to run once, ran %d times", calls.Load())
	}
}

func TestGetOrLoadExpiresAfterTTL(t *testing.T) {
	current := time.Date(2025, 4, 21, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	c := New[int]("test", now)

	var calls atomic.Int32
	loader := func(context.Context) (int, error) {
		calls.Add(1)
		return int(calls.Load()), nil
	}

	if _, err := c.GetOrLoad(context.Background(), "key", 5*time.Minute, loader); err != nil {
		t.Fatalf("GetOrLoad returned error: %v", err)
	}

	// Still fresh one millisecond before the TTL boundary.
	mu.Lock()
	current = current.Add(5*time.Minute - time.Millisecond)
	mu.Unlock()
	got, err := c.GetOrLoad(context.Background(), "key", 5*time.Minute, loader)
	if err != nil || got != 1 {
		t.Fatalf("expected cached value 1, got %d err %v", got, err)
	}

	// Stale one millisecond past the boundary.
	mu.Lock()
	current = current.Add(2 * time.Millisecond)
	mu.Unlock()
	got, err = c.GetOrLoad(context.Background(), "key", 5*time.Minute, loader)
	if err != nil || got != 2 {
		t.Fatalf("expected fresh value 2 after expiry, got %d err %v", got, err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected loader to run twice, ran %d times", calls.Load())
	}
}

func TestGetOrLoadCoalescesConcurrentCallers(t *testing.T) {
	c := New[string]("test", nil)

	var calls atomic.Int32
	release := make(chan struct{})
	loader := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "loaded", nil
	}

	const callers = 5
	var started, finished sync.WaitGroup
	started.Add(callers)
	finished.Add(callers)
	results := make([]string, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		go func(i int) {
			started.Done()
			results[i], errs[i] = c.GetOrLoad(context.Background(), "window", time.Minute, loader)
			finished.Done()
		}(i)
	}

	started.Wait()
	// Give the stragglers a moment to reach the in-flight wait.
	time.Sleep(20 * time.Millisecond)
	close(release)
	finished.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected exactly one loader invocation, got %d", calls.Load())
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d got error: %v", i, errs[i])
		}
		if results[i] != "loaded" {
			t.Fatalf("caller %d got %q", i, results[i])
		}
	}
}

func TestGetOrLoadDoesNotCacheFailures(t *testing.T) {
	c := New[int]("test", nil)

	var calls atomic.Int32
	boom := errors.New("boom")
	loader := func(context.Context) (int, error) {
		if calls.Add(1) == 1 {
			return 0, boom
		}
		return 7, nil
	}

	if _, err := c.GetOrLoad(context.Background(), "key", time.Minute, loader); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	// The failure released the in-flight slot and stored nothing, so a retry
	// invokes the loader again.
	got, err := c.GetOrLoad(context.Background(), "key", time.Minute, loader)
	if err != nil || got != 7 {
		t.Fatalf("expected retry to succeed with 7, got %d err %v", got, err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected two loader invocations, got %d", calls.Load())
	}
}

func TestCoalescedCallersShareFailure(t *testing.T) {
	c := New[int]("test", nil)

	boom := errors.New("boom")
	release := make(chan struct{})
	var calls atomic.Int32
	loader := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 0, boom
	}

	var wg sync.WaitGroup
	errsCh := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetOrLoad(context.Background(), "key", time.Minute, loader)
			errsCh <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errsCh)

	for err := range errsCh {
		if !errors.Is(err, boom) {
			t.Fatalf("expected all callers to observe the shared failure, got %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one loader invocation, got %d", calls.Load())
	}
	if c.Len() != 0 {
		t.Fatalf("expected failure not to be cached")
	}
}

func TestInvalidate(t *testing.T) {
	c := New[int]("test", nil)

	var calls atomic.Int32
	loader := func(context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}

	if _, err := c.GetOrLoad(context.Background(), "a", time.Minute, loader); err != nil {
		t.Fatalf("GetOrLoad returned error: %v", err)
	}
	if _, err := c.GetOrLoad(context.Background(), "b", time.Minute, loader); err != nil {
		t.Fatalf("GetOrLoad returned error: %v", err)
	}

	c.Invalidate("a")
	if _, ok := c.Peek("a"); ok {
		t.Fatalf("expected a to be invalidated")
	}
	if _, ok := c.Peek("b"); !ok {
		t.Fatalf("expected b to survive single-key invalidation")
	}

	c.InvalidateAll()
	if c.Len() != 0 {
		t.Fatalf("expected empty cache after InvalidateAll")
	}
}

func TestWaiterHonorsContextCancellation(t *testing.T) {
	c := New[int]("test", nil)

	release := make(chan struct{})
	loader := func(context.Context) (int, error) {
		<-release
		return 1, nil
	}

	go func() {
		_, _ = c.GetOrLoad(context.Background(), "key", time.Minute, loader)
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.GetOrLoad(ctx, "key", time.Minute, loader)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("cancelled waiter did not return")
	}
	close(release)
}
