package disruptor_test

import (
	"sync"
	"testing"

	"github.com/chris-alexander-pop/pktbus/pkg/datastructures/queue/disruptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CapacityRounding(t *testing.T) {
	_, err := disruptor.New[int](0)
	assert.ErrorIs(t, err, disruptor.ErrInvalidCapacity)

	b1, err := disruptor.New[int](1)
	require.NoError(t, err)
	assert.Equal(t, 2, b1.Capacity())

	b15, err := disruptor.New[int](15)
	require.NoError(t, err)
	assert.Equal(t, 16, b15.Capacity())
}

func TestPublishConsume_ClosureAPI(t *testing.T) {
	rb, err := disruptor.New[int](16)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			val := i
			for !rb.TryPushFunc(func(slot *int) { *slot = val }) {
			}
		}
	}()

	got := make([]int, 0, 10)
	var mu sync.Mutex
	go func() {
		defer wg.Done()
		for len(got) < 10 {
			rb.TryPopFunc(func(val int) {
				mu.Lock()
				got = append(got, val)
				mu.Unlock()
			})
		}
	}()

	wg.Wait()
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestTryPush_FullReturnsFalse(t *testing.T) {
	b, err := disruptor.New[int](2)
	require.NoError(t, err)

	require.True(t, b.TryPush(1))
	require.True(t, b.TryPush(2))
	assert.False(t, b.TryPush(3))

	stats := b.GetStatistics()
	assert.Equal(t, uint64(1), stats.PushFailures)
}

func TestTryPop_EmptyReturnsFalse(t *testing.T) {
	b, err := disruptor.New[int](4)
	require.NoError(t, err)

	_, ok := b.TryPop()
	assert.False(t, ok)
	assert.True(t, b.Empty())
}

// Capacity 1024, 8 producer goroutines each push 1000 unique integers
// (producerIndex*1_000_000 + i), one consumer drains all 8000. The set
// of popped values must equal the union of produced sets: no loss, no
// duplication.
func TestCASRing_UnderContention(t *testing.T) {
	b, err := disruptor.New[int](1024)
	require.NoError(t, err)

	const producers = 8
	const perProducer = 1000
	const total = producers * perProducer

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		p := p
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				v := p*1_000_000 + i
				for !b.TryPush(v) {
				}
			}
		}()
	}

	seen := make(map[int]struct{}, total)
	var mu sync.Mutex
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for len(seen) < total {
		if v, ok := b.TryPop(); ok {
			mu.Lock()
			seen[v] = struct{}{}
			mu.Unlock()
		}
	}
	<-done

	assert.Len(t, seen, total)
	for p := 0; p < producers; p++ {
		for i := 0; i < perProducer; i++ {
			_, ok := seen[p*1_000_000+i]
			assert.True(t, ok)
		}
	}
}

func TestClear(t *testing.T) {
	b, err := disruptor.New[int](4)
	require.NoError(t, err)
	require.True(t, b.TryPush(1))
	require.True(t, b.TryPush(2))

	b.Clear()
	assert.True(t, b.Empty())
	_, ok := b.TryPop()
	assert.False(t, ok)
}

func TestBackPressure(t *testing.T) {
	b, err := disruptor.New[int](4)
	require.NoError(t, err)
	b.SetBackPressure(true, 0.5)

	require.True(t, b.TryPush(1))
	require.True(t, b.TryPush(2))
	require.True(t, b.TryPush(3))
	assert.True(t, b.ShouldApplyBackPressure())
	assert.Equal(t, uint64(1), b.GetStatistics().BackPressureEvents)
}
