package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-pos-orders/internal/config"
	kafkax "github.com/ariefcatur/go-pos-orders/internal/kafka"
	"github.com/ariefcatur/go-pos-orders/internal/logging"
	"github.com/ariefcatur/go-pos-orders/internal/notify"
	"github.com/ariefcatur/go-pos-orders/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// notifier relays the events topic to the Redis channels the terminal
// gateway subscribes to.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis ping", zap.Error(err))
	}

	relay := &notify.Relay{
		Redis:       rdb,
		Log:         log.Named("relay"),
		ServiceName: cfg.ServiceName + "-notifier",
	}

	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, cfg.EventsTopic, cfg.NotifierWorkers, log.Named("consumer"))
	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("notifier consumer started", zap.String("group", cfg.NotifierGroup),
			zap.String("topic", cfg.EventsTopic), zap.Int("workers", cfg.NotifierWorkers))
		if err := cons.Start(ctx, relay.HandleEvent); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		log.Info("shutting down consumer")
	case <-ctx.Done():
	}
	cancel()
	<-done
}
