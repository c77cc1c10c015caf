package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"post_scheduler/internal/cache"
	"post_scheduler/internal/config"
	"post_scheduler/internal/handlers"
	"post_scheduler/internal/kafka"
	"post_scheduler/internal/metrics"
	"post_scheduler/internal/platform"
	"post_scheduler/internal/repository"
	"post_scheduler/internal/schedule"
	"post_scheduler/internal/service"

	"github.com/go-chi/chi/v5"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := log.Default()

	// ---------- config ----------
	cfg := config.Load()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatal("timezone:", err)
	}

	// ---------- db ----------
	pool, err := repository.NewPool(cfg.DBDSN)
	if err != nil {
		log.Fatal("db:", err)
	}
	defer pool.Close()

	// ---------- repositories ----------
	postRepo := repository.NewPostRepository(pool)
	eventRepo := repository.NewEventRepository(pool, cfg.EventMaxRetries)

	// ---------- redis ----------
	redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer redisCache.Close()

	runLock := cache.NewRunLock(redisCache.RawClient(), cache.RunLockKey(), cfg.LockTTL)

	// ---------- platform client ----------
	creds := platform.Credentials{
		ConsumerKey:    cfg.ConsumerKey,
		ConsumerSecret: cfg.ConsumerSecret,
		AccessToken:    cfg.AccessToken,
		AccessSecret:   cfg.AccessSecret,
	}
	client := platform.NewHTTPClient(cfg.PlatformAPIURL, creds, 0)

	// ---------- publish pipeline ----------
	selector := schedule.NewSelector(
		time.Duration(cfg.ToleranceMinutes)*time.Minute, loc, logger,
	)
	resolver := service.NewMediaResolver(0, logger)
	publisher := service.NewPublisher(
		postRepo,
		eventRepo,
		client,
		resolver,
		service.LimitPolicy{
			Enforce:      cfg.LengthLimitEnforced,
			MaxLength:    cfg.MaxPostLength,
			SkipOnExceed: cfg.LengthLimitSkip,
		},
		cfg.EventsTopic,
		cfg.ThreadPace,
		logger,
	)
	coordinator := service.NewCoordinator(
		postRepo, selector, publisher, runLock, redisCache,
		creds, cfg.LockWait, logger,
	)

	// ---------- authoring ----------
	intake := service.NewIntake(postRepo, redisCache, logger)

	// ---------- kafka producer + event outbox sender ----------
	producer, err := kafka.NewSyncProducer(cfg.KafkaBrokers)
	if err != nil {
		log.Fatal("kafka producer:", err)
	}
	defer producer.Close()

	sender := service.NewEventSender(
		eventRepo, producer,
		cfg.EventPollInterval, cfg.EventBatch, cfg.EventRetentionDays,
		cfg.EventMaxRetries, logger,
	)
	sender.Start(ctx)

	// ---------- kafka consumer ----------
	consumer, err := kafka.NewConsumer(
		cfg.KafkaBrokers,
		cfg.KafkaGroupID,
		cfg.RequestsTopic,
		intake,
		redisCache,
		logger,
	)
	if err != nil {
		log.Fatal("kafka consumer:", err)
	}
	defer consumer.Close()

	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.Printf("kafka consumer stopped: %v", err)
		}
	}()

	// ---------- engagement refresher ----------
	refresher := service.NewEngagementRefresher(
		postRepo, client, cfg.EngagementInterval, cfg.EngagementBatch, logger,
	)
	refresher.Start(ctx)

	// ---------- metrics ----------
	metrics.Register()
	metrics.StartDBCollectors(ctx, pool, 15*time.Second, logger)
	cache.StartRedisSizeCollector(ctx, redisCache.RawClient(), 15*time.Second, logger)

	// ---------- handlers ----------
	h := handlers.NewPostHandler(coordinator, intake, postRepo, redisCache, cfg.CacheTTL)

	// ---------- router ----------
	r := chi.NewRouter()
	r.Use(metrics.HTTPMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	handlers.RegisterPostRoutes(r, h)

	// ---------- start server ----------
	addr := ":" + cfg.HTTPPort
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Println("server starting on", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
