package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-pos-orders/internal/catalog"
	"github.com/ariefcatur/go-pos-orders/internal/config"
	"github.com/ariefcatur/go-pos-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-pos-orders/internal/kafka"
	"github.com/ariefcatur/go-pos-orders/internal/logging"
	"github.com/ariefcatur/go-pos-orders/internal/metrics"
	"github.com/ariefcatur/go-pos-orders/internal/notify"
	"github.com/ariefcatur/go-pos-orders/internal/orders"
	"github.com/ariefcatur/go-pos-orders/internal/postgres"
	"github.com/ariefcatur/go-pos-orders/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	log = log.With(zap.String("service", cfg.ServiceName))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	if cfg.RunMigrations {
		if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
			log.Fatal("migrate", zap.Error(err))
		}
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, "api")

	// Publishers
	pub, prod := publisher(ctx, cfg, rdb, log)

	engine := orders.NewEngine(&orders.Repo{DB: db}, pub, log.Named("engine"))
	engine.Metrics = m
	engine.TxTimeout = cfg.TxTimeout

	router := httpx.NewRouter(log.Named("http"), m, reg)
	(&httpx.OrdersHandler{
		Engine: engine,
		Cache:  redisx.NewOrderCache(rdb, log.Named("cache")),
		Idem:   redisx.NewIdempotency(rdb),
		Log:    log.Named("orders"),
	}).Register(router)
	(&httpx.ProductsHandler{Catalog: catalog.NewPostgres(db), Log: log.Named("products")}).Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr), zap.String("notify_sink", cfg.NotifySink))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	if prod != nil {
		prod.Close() // flush queued events, then close the writer
		prod.WaitClosed()
	}
	cancel()
}

// publisher builds the sink selected by NOTIFY_SINK. Network sinks sit
// behind a circuit breaker.
func publisher(ctx context.Context, cfg config.Config, rdb *redis.Client, log *zap.Logger) (orders.Publisher, *kafkax.Producer) {
	var (
		sinks notify.Multi
		prod  *kafkax.Producer
	)
	if cfg.NotifySink == config.SinkKafka || cfg.NotifySink == config.SinkBoth {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, cfg.EventsTopic, 1024, log.Named("kafka"))
		prod.Start(ctx)
		sinks = append(sinks, notify.NewBreaker("kafka",
			&notify.KafkaPublisher{Producer: prod, Service: cfg.ServiceName}, notify.DefaultBreaker, log))
	}
	if cfg.NotifySink == config.SinkRedis || cfg.NotifySink == config.SinkBoth {
		sinks = append(sinks, notify.NewBreaker("redis",
			&notify.RedisPublisher{Client: rdb, Service: cfg.ServiceName}, notify.DefaultBreaker, log))
	}
	switch len(sinks) {
	case 0:
		return notify.Nop{}, nil
	case 1:
		return sinks[0], prod
	}
	return sinks, prod
}
