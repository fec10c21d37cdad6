// Command pktbusd is a small demo process wiring the bus, an in-memory
// messaging bridge, structured logging, and OpenTelemetry tracing
// together into a runnable process instead of leaving assembly to a
// caller.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chris-alexander-pop/pktbus/pkg/bus"
	"github.com/chris-alexander-pop/pktbus/pkg/channel"
	"github.com/chris-alexander-pop/pktbus/pkg/concurrency"
	"github.com/chris-alexander-pop/pktbus/pkg/config"
	"github.com/chris-alexander-pop/pktbus/pkg/logger"
	"github.com/chris-alexander-pop/pktbus/pkg/message"
	"github.com/chris-alexander-pop/pktbus/pkg/messaging"
	"github.com/chris-alexander-pop/pktbus/pkg/messaging/adapters/memory"
	"github.com/chris-alexander-pop/pktbus/pkg/messaging/bridge"
	"github.com/chris-alexander-pop/pktbus/pkg/telemetry"
)

// appConfig aggregates the sub-configs this process needs: one flat
// struct per binary, loaded in a single config.Load call.
type appConfig struct {
	LogLevel         string  `env:"LOG_LEVEL" env-default:"INFO"`
	LogFormat        string  `env:"LOG_FORMAT" env-default:"JSON"`
	OTelServiceName  string  `env:"OTEL_SERVICE_NAME" env-default:"pktbusd"`
	OTelEndpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:"localhost:4317"`
	BusName          string  `env:"BUS_NAME" env-default:"pktbusd"`
	IngestTopic      string  `env:"INGEST_TOPIC" env-default:"ingest.raw"`
	BridgeBufferSize int     `env:"BRIDGE_BUFFER_SIZE" env-default:"256"`
	WorkerCount      int     `env:"WORKER_COUNT" env-default:"4"`
	SeedInterval     float64 `env:"SEED_INTERVAL_SECONDS" env-default:"1.0"`
}

func main() {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	shutdownTracing, err := telemetry.Init(telemetry.Config{
		ServiceName: cfg.OTelServiceName,
		Endpoint:    cfg.OTelEndpoint,
	})
	if err != nil {
		logger.L().Error("failed to init telemetry", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bus.New(cfg.BusName, bus.DefaultRoutingConfig())
	defer b.Close()

	ch, err := channel.NewSPSC("demo-consumer", channel.DefaultConfig())
	if err != nil {
		logger.L().ErrorContext(ctx, "failed to build demo channel", "error", err)
		os.Exit(1)
	}
	subID, err := b.Subscribe(cfg.IngestTopic, ch, 1, message.PriorityNormal)
	if err != nil {
		logger.L().ErrorContext(ctx, "failed to subscribe demo consumer", "error", err)
		os.Exit(1)
	}
	defer b.Unsubscribe(subID)

	broker := memory.New(memory.Config{BufferSize: cfg.BridgeBufferSize})
	defer broker.Close()

	consumer, err := broker.Consumer(cfg.IngestTopic, "")
	if err != nil {
		logger.L().ErrorContext(ctx, "failed to build bridge consumer", "error", err)
		os.Exit(1)
	}
	inbound, err := bridge.FromBroker(consumer, b, cfg.IngestTopic)
	if err != nil {
		logger.L().ErrorContext(ctx, "failed to start inbound bridge", "error", err)
		os.Exit(1)
	}
	defer inbound.Close()

	producer, err := broker.Producer(cfg.IngestTopic)
	if err != nil {
		logger.L().ErrorContext(ctx, "failed to build seed producer", "error", err)
		os.Exit(1)
	}

	// Workers exit on ctx cancellation; Submit must never race a Stop,
	// so the pool is simply left to die with the process.
	pool := concurrency.NewWorkerPool(cfg.WorkerCount, cfg.BridgeBufferSize)
	pool.Start(ctx)

	seedInterval := time.Duration(cfg.SeedInterval * float64(time.Second))
	go seedDemoTraffic(ctx, producer, cfg.IngestTopic, seedInterval)
	go drainDemoConsumer(ctx, ch, pool)

	logger.L().InfoContext(ctx, "pktbusd running", "bus", cfg.BusName, "topic", cfg.IngestTopic)
	<-ctx.Done()
	logger.L().InfoContext(ctx, "pktbusd shutting down")
}

// seedDemoTraffic periodically publishes a counter value to the bridged
// broker topic, so a fresh checkout has visible end-to-end traffic
// without a separate producer process.
func seedDemoTraffic(ctx context.Context, p messaging.Producer, topic string, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var n int
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n++
			msg := &messaging.Message{
				Topic:   topic,
				Payload: []byte(fmt.Sprintf("demo-packet-%d", n)),
			}
			if err := p.Publish(ctx, msg); err != nil {
				logger.L().ErrorContext(ctx, "demo seed publish failed", "error", err)
			}
		}
	}
}

// drainDemoConsumer pulls messages off the subscription channel and
// hands each one to the worker pool, so slow processing never stalls
// the receive loop itself.
func drainDemoConsumer(ctx context.Context, ch channel.Channel, pool *concurrency.WorkerPool) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		m, err := ch.Receive(200 * time.Millisecond)
		if err != nil {
			continue
		}
		pool.Submit(func(ctx context.Context) {
			logger.L().InfoContext(ctx, "demo consumer received message", "type", m.Type())
		})
	}
}
