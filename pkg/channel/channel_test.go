package channel_test

import (
	"sync"
	"testing"
	"time"

	"github.com/chris-alexander-pop/pktbus/pkg/channel"
	"github.com/chris-alexander-pop/pktbus/pkg/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_SelectsVariantByTopology(t *testing.T) {
	spsc, err := channel.New("c0", 1, 1, channel.DefaultConfig())
	require.NoError(t, err)
	assert.IsType(t, &channel.SPSCChannel{}, spsc)

	mpsc, err := channel.New("c1", 8, 1, channel.DefaultConfig())
	require.NoError(t, err)
	assert.IsType(t, &channel.MPSCChannel{}, mpsc)

	buffered, err := channel.New("c2", 8, 4, channel.DefaultConfig())
	require.NoError(t, err)
	assert.IsType(t, &channel.BufferedChannel{}, buffered)
}

func TestSPSCChannel_SendReceive(t *testing.T) {
	ch, err := channel.NewSPSC("spsc", channel.DefaultConfig())
	require.NoError(t, err)

	m := message.New("evt")
	require.NoError(t, ch.TrySend(m))

	got, err := ch.TryReceive()
	require.NoError(t, err)
	assert.Equal(t, m.ID(), got.ID())
	assert.False(t, got.Timing().Received.IsZero())
}

func TestSPSCChannel_FullWithoutDrop(t *testing.T) {
	cfg := channel.DefaultConfig()
	cfg.BufferSize = 2
	cfg.DropOnFull = false
	ch, err := channel.NewSPSC("spsc-full", cfg)
	require.NoError(t, err)

	require.NoError(t, ch.TrySend(message.New("a")))
	require.NoError(t, ch.TrySend(message.New("b")))
	err = ch.TrySend(message.New("c"))
	assert.ErrorIs(t, err, channel.ErrFull)
}

func TestSPSCChannel_DropOnFull(t *testing.T) {
	cfg := channel.HighThroughput()
	cfg.BufferSize = 2
	ch, err := channel.NewSPSC("spsc-drop", cfg)
	require.NoError(t, err)

	require.NoError(t, ch.TrySend(message.New("a")))
	require.NoError(t, ch.TrySend(message.New("b")))
	require.NoError(t, ch.TrySend(message.New("c"))) // dropped, not an error

	stats := ch.Statistics()
	assert.Equal(t, uint64(1), stats.MessagesDropped)
}

func TestSPSCChannel_ExpiredOnDequeue(t *testing.T) {
	ch, err := channel.NewSPSC("spsc-ttl", channel.DefaultConfig())
	require.NoError(t, err)

	m := message.New("old", message.WithTTL(10*time.Millisecond))
	require.NoError(t, ch.TrySend(m))
	time.Sleep(50 * time.Millisecond)

	_, err = ch.TryReceive()
	assert.ErrorIs(t, err, channel.ErrEmpty, "expired message must be dropped, not delivered")
	assert.Equal(t, uint64(1), ch.Statistics().MessagesExpired)
}

func TestSPSCChannel_ExpiredOnEnqueue(t *testing.T) {
	ch, err := channel.NewSPSC("spsc-ttl-enq", channel.DefaultConfig())
	require.NoError(t, err)

	m := message.New("old", message.WithTTL(time.Microsecond))
	time.Sleep(2 * time.Millisecond)

	err = ch.TrySend(m)
	assert.ErrorIs(t, err, channel.ErrExpired)
	assert.Equal(t, uint64(1), ch.Statistics().MessagesExpired)
	assert.Equal(t, 0, ch.Size())
}

func TestSPSCChannel_BackpressureDropCounts(t *testing.T) {
	cfg := channel.DefaultConfig()
	cfg.BufferSize = 4
	cfg.DropOnFull = true
	ch, err := channel.NewSPSC("spsc-bp", cfg)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, ch.TrySend(message.New("x")), "drop-on-full sends must all report success")
	}

	stats := ch.Statistics()
	assert.Equal(t, uint64(4), stats.MessagesSent)
	assert.Equal(t, uint64(6), stats.MessagesDropped)
	assert.LessOrEqual(t, ch.Size(), 4)
}

func TestSPSCChannel_CloseIdempotent(t *testing.T) {
	ch, err := channel.NewSPSC("spsc-close", channel.DefaultConfig())
	require.NoError(t, err)
	ch.Close()
	ch.Close()
	assert.False(t, ch.IsOpen())
}

func TestSPSCChannel_TimedSendZeroActsAsTrySend(t *testing.T) {
	cfg := channel.DefaultConfig()
	cfg.BufferSize = 1
	ch, err := channel.NewSPSC("spsc-timed0", cfg)
	require.NoError(t, err)

	// BufferSize 1 rounds up to the ring's minimum capacity of 2.
	require.NoError(t, ch.TimedSend(message.New("a"), 0))
	require.NoError(t, ch.TimedSend(message.New("b"), 0))
	err = ch.TimedSend(message.New("c"), 0)
	assert.ErrorIs(t, err, channel.ErrFull)
}

func TestMPSCChannel_ConcurrentProducers(t *testing.T) {
	cfg := channel.DefaultConfig()
	cfg.BufferSize = 1024
	ch, err := channel.NewMPSC("mpsc", cfg)
	require.NoError(t, err)

	const producers, perProducer = 8, 100
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				m := message.New("x", message.WithRoute(message.Route{Sender: message.SubscriberID(p)}))
				for ch.TrySend(m) == channel.ErrFull {
				}
			}
		}(p)
	}
	wg.Wait()

	received := 0
	for received < producers*perProducer {
		if m, err := ch.TryReceive(); err == nil {
			_ = m
			received++
		}
	}
	assert.Equal(t, producers*perProducer, received)
}

func TestMPSCChannel_ReceiveBatch(t *testing.T) {
	cfg := channel.DefaultConfig()
	cfg.BufferSize = 16
	ch, err := channel.NewMPSC("mpsc-batch", cfg)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, ch.TrySend(message.New("x")))
	}

	batch := ch.ReceiveBatch(3, time.Millisecond)
	assert.Len(t, batch, 3)
	assert.Equal(t, 2, ch.Size())
}

func TestBufferedChannel_BlockingSendAndReceive(t *testing.T) {
	cfg := channel.Reliable()
	cfg.BufferSize = 1
	cfg.SendTimeout = 50 * time.Millisecond
	ch := channel.NewBuffered("buffered", cfg)

	require.NoError(t, ch.Send(message.New("a")))

	done := make(chan error, 1)
	go func() {
		done <- ch.Send(message.New("b"))
	}()

	time.Sleep(5 * time.Millisecond)
	_, err := ch.Receive(time.Second)
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("blocked send was never unblocked by the receive")
	}
}

func TestBufferedChannel_ReceiveTimesOutWhenEmpty(t *testing.T) {
	ch := channel.NewBuffered("buffered-empty", channel.DefaultConfig())
	_, err := ch.Receive(10 * time.Millisecond)
	assert.ErrorIs(t, err, channel.ErrTimeout)
}

func TestBufferedChannel_MultiProducerMultiConsumer(t *testing.T) {
	cfg := channel.Reliable()
	cfg.BufferSize = 64
	ch := channel.NewBuffered("buffered-mpmc", cfg)

	const producers, consumers, perProducer = 4, 4, 50
	var sendWG, recvWG sync.WaitGroup
	for p := 0; p < producers; p++ {
		sendWG.Add(1)
		go func() {
			defer sendWG.Done()
			for i := 0; i < perProducer; i++ {
				_ = ch.Send(message.New("x"))
			}
		}()
	}

	var received int64
	var mu sync.Mutex
	for c := 0; c < consumers; c++ {
		recvWG.Add(1)
		go func() {
			defer recvWG.Done()
			for {
				_, err := ch.Receive(100 * time.Millisecond)
				if err != nil {
					return
				}
				mu.Lock()
				received++
				mu.Unlock()
			}
		}()
	}

	sendWG.Wait()
	recvWG.Wait()
	assert.Equal(t, int64(producers*perProducer), received)
}
