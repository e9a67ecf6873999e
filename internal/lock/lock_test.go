package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLocalLockerSerializesPerKey(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "s1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(waitCtx, "s1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second Acquire() error = %v, want deadline exceeded while held", err)
	}

	release()
	release2, err := l.Acquire(ctx, "s1")
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	release2()
}

func TestLocalLockerKeysAreIndependent(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	releaseA, err := l.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("Acquire(a) error = %v", err)
	}
	defer releaseA()

	releaseB, err := l.Acquire(ctx, "b")
	if err != nil {
		t.Fatalf("Acquire(b) error = %v, holding a must not block b", err)
	}
	releaseB()
}

func TestLocalLockerReleaseIsIdempotent(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "s1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	release()
	release() // second call must not panic or free someone else's slot

	release2, err := l.Acquire(ctx, "s1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer release2()

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(waitCtx, "s1"); err == nil {
		t.Fatalf("double release freed a held lock")
	}
}

func TestLocalLockerUnderContention(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		holders int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, "shared")
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			mu.Lock()
			holders++
			if holders > maxSeen {
				maxSeen = holders
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("max concurrent holders = %d, want 1", maxSeen)
	}
}

func TestNewReturnsLocalWithoutRedis(t *testing.T) {
	l, err := New("", 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer l.Close()
	if _, ok := l.(*LocalLocker); !ok {
		t.Fatalf("New(\"\") = %T, want *LocalLocker", l)
	}
}
