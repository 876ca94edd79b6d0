package concurrency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSimpleMutexTryLock(t *testing.T) {
	m := NewSimpleMutex()
	if !m.TryLock() {
		t.Fatal("TryLock on a free mutex must succeed")
	}
	if !m.IsLocked() {
		t.Error("mutex expected to be locked")
	}
	if m.TryLock() {
		t.Fatal("TryLock on a held mutex must fail")
	}
	m.Unlock()
	if m.IsLocked() {
		t.Error("mutex expected to be unlocked")
	}
	m.Lock()
	m.Unlock()
}

func TestSimpleMutexLockContext(t *testing.T) {
	m := NewSimpleMutex()
	m.Lock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := m.LockContext(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("LockContext on a held mutex = %v, want deadline exceeded", err)
	}

	m.Unlock()
	if err := m.LockContext(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !m.IsLocked() {
		t.Error("mutex expected to be locked")
	}
	m.Unlock()
}

func TestGoRoutinePool(t *testing.T) {
	p := NewGoRoutinePool(3)

	var count int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		if !p.Schedule(func() {
			atomic.AddInt32(&count, 1)
			wg.Done()
		}) {
			t.Fatal("Schedule failed on a running pool")
		}
	}
	wg.Wait()
	p.Stop()

	if count != 20 {
		t.Errorf("executed %d tasks, want 20", count)
	}
	if p.Schedule(func() {}) {
		t.Error("Schedule must fail after Stop")
	}
	// Second stop is a no-op.
	p.Stop()
}
