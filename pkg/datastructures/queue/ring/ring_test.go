package ring_test

import (
	"testing"

	"github.com/chris-alexander-pop/pktbus/pkg/datastructures/queue/ring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CapacityRounding(t *testing.T) {
	_, err := ring.New[int](0)
	assert.ErrorIs(t, err, ring.ErrInvalidCapacity)

	b1, err := ring.New[int](1)
	require.NoError(t, err)
	assert.Equal(t, 2, b1.Capacity())

	b15, err := ring.New[int](15)
	require.NoError(t, err)
	assert.Equal(t, 16, b15.Capacity())

	b16, err := ring.New[int](16)
	require.NoError(t, err)
	assert.Equal(t, 16, b16.Capacity())
}

func TestTryPush_TryPop_FIFO(t *testing.T) {
	b, err := ring.New[int](8)
	require.NoError(t, err)

	require.True(t, b.TryPush(1))
	require.True(t, b.TryPush(2))
	require.True(t, b.TryPush(3))

	v, ok := b.TryPop()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = b.TryPop()
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestTryPush_FullReturnsFalse(t *testing.T) {
	b, err := ring.New[int](2)
	require.NoError(t, err)

	require.True(t, b.TryPush(1))
	require.True(t, b.TryPush(2))
	assert.False(t, b.TryPush(3))
	assert.True(t, b.Full())
}

func TestTryPop_EmptyReturnsFalse(t *testing.T) {
	b, err := ring.New[int](4)
	require.NoError(t, err)

	_, ok := b.TryPop()
	assert.False(t, ok)
	assert.True(t, b.Empty())
}

func TestTryPeek_DoesNotMutate(t *testing.T) {
	b, err := ring.New[int](4)
	require.NoError(t, err)
	require.True(t, b.TryPush(42))

	v, ok := b.TryPeek()
	require.True(t, ok)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, b.Size())

	v, ok = b.TryPop()
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

// Capacity 8, one producer pushes 1..100 while one consumer pops
// concurrently. The popped sequence must equal 1..100 in order.
func TestSPSC_PingPong(t *testing.T) {
	b, err := ring.New[int](8)
	require.NoError(t, err)

	const n = 100
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= n; i++ {
			for !b.TryPush(i) {
				// spin until the consumer drains space
			}
		}
	}()

	got := make([]int, 0, n)
	for len(got) < n {
		if v, ok := b.TryPop(); ok {
			got = append(got, v)
		}
	}
	<-done

	for i, v := range got {
		assert.Equal(t, i+1, v)
	}
}

func TestBackPressure(t *testing.T) {
	b, err := ring.New[int](4)
	require.NoError(t, err)
	b.SetBackPressure(true, 0.5) // threshold = 2

	require.True(t, b.TryPush(1))
	assert.False(t, b.ShouldApplyBackPressure())
	require.True(t, b.TryPush(2))
	require.True(t, b.TryPush(3))
	assert.True(t, b.ShouldApplyBackPressure())
	assert.Equal(t, uint64(1), b.BackPressureEvents())
}

func TestClear(t *testing.T) {
	b, err := ring.New[int](4)
	require.NoError(t, err)
	require.True(t, b.TryPush(1))
	require.True(t, b.TryPush(2))

	b.Clear()
	assert.True(t, b.Empty())
	assert.False(t, b.Full())
	_, ok := b.TryPop()
	assert.False(t, ok)
}
