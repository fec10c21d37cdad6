package tests

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chris-alexander-pop/pktbus/pkg/concurrency"
)

func TestSemaphore_TryAcquire(t *testing.T) {
	s := concurrency.NewSemaphore(2)

	if !s.TryAcquire(1) {
		t.Fatal("first TryAcquire should succeed")
	}
	if !s.TryAcquire(1) {
		t.Fatal("second TryAcquire should succeed")
	}
	if s.TryAcquire(1) {
		t.Fatal("TryAcquire beyond limit should fail")
	}

	s.Release(1)
	if !s.TryAcquire(1) {
		t.Fatal("TryAcquire after Release should succeed")
	}
}

func TestSemaphore_BoundsConcurrency(t *testing.T) {
	const limit = 3
	s := concurrency.NewSemaphore(limit)

	var active, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Acquire(context.Background(), 1); err != nil {
				t.Error(err)
				return
			}
			defer s.Release(1)

			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
		}()
	}
	wg.Wait()

	if peak.Load() > limit {
		t.Fatalf("observed %d concurrent holders, limit is %d", peak.Load(), limit)
	}
}

func TestSemaphore_AcquireHonorsContext(t *testing.T) {
	s := concurrency.NewSemaphore(1)
	if err := s.Acquire(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := s.Acquire(ctx, 1); err == nil {
		t.Fatal("Acquire should fail once the context deadline passes")
	}
}
