package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-order-timing/internal/config"
	"github.com/ariefcatur/go-order-timing/internal/events"
	"github.com/ariefcatur/go-order-timing/internal/httpx"
	"github.com/ariefcatur/go-order-timing/internal/intake"
	kafkax "github.com/ariefcatur/go-order-timing/internal/kafka"
	"github.com/ariefcatur/go-order-timing/internal/logger"
	"github.com/ariefcatur/go-order-timing/internal/postgres"
	"github.com/ariefcatur/go-order-timing/internal/redisx"
	"github.com/ariefcatur/go-order-timing/internal/timing"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New("order-timing", "info", nil).Error().Err(err).Msg("config")
		os.Exit(1)
	}
	log := logger.New(cfg.ServiceName, cfg.LogLevel, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis backs the redis store and intake dedup
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	store, closeStore, err := openStore(ctx, cfg, rdb)
	if err != nil {
		log.Error().Err(err).Str("store", cfg.Store).Msg("open timing store")
		os.Exit(1)
	}
	defer closeStore()

	// Kafka producer for timing change events
	prod := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicOrderTiming, 1024, log)
	prod.Start()

	engine, err := timing.New(store, cfg.Timing,
		timing.WithLogger(log),
		timing.WithNotifier(&events.KafkaNotifier{Producer: prod, Service: cfg.ServiceName, Log: log}),
	)
	if err != nil {
		log.Error().Err(err).Msg("timing engine")
		os.Exit(1)
	}
	if err := engine.Initialize(ctx); err != nil {
		log.Warn().Err(err).Msg("starting with an empty queue")
	}

	router := httpx.NewRouter()
	(&httpx.TimingHandler{Engine: engine}).Register(router)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("listen")
			stop()
		}
	}()

	go runJanitor(ctx, engine, cfg.PurgeInterval, log)

	intakeDone := make(chan struct{})
	if cfg.IntakeEnabled {
		svc := &intake.Service{
			Engine:      engine,
			Redis:       rdb,
			Parking:     &intake.RedisParking{Redis: rdb},
			Log:         log,
			ServiceName: cfg.ServiceName,
		}
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.IntakeGroup, intake.Topics, cfg.IntakeWorkers, log)
		go func() {
			defer close(intakeDone)
			log.Info().Str("group", cfg.IntakeGroup).Strs("topics", intake.Topics).Int("workers", cfg.IntakeWorkers).Msg("intake consumer started")
			if err := cons.Start(ctx, svc.Handle); err != nil {
				log.Error().Err(err).Msg("intake consumer stopped")
				stop()
			}
		}()
	} else {
		close(intakeDone)
	}

	<-ctx.Done()
	log.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	<-intakeDone
	prod.Close()
	prod.WaitClosed()
}

func openStore(ctx context.Context, cfg config.Config, rdb *redis.Client) (timing.Store, func(), error) {
	switch cfg.Store {
	case config.StoreRedis:
		return &redisx.TimingStore{Redis: rdb}, func() {}, nil
	case config.StoreMemory:
		return timing.NewMemoryStore(), func() {}, nil
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return &postgres.TimingStore{DB: db}, db.Close, nil
}

// runJanitor purges expired terminal records on every tick.
func runJanitor(ctx context.Context, engine *timing.Engine, every time.Duration, log *logger.Logger) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := engine.Purge(ctx); err != nil {
				log.Warn().Err(err).Msg("retention purge incomplete")
			}
		}
	}
}
