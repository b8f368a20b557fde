package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pool-service/config"
	"pool-service/internal/cache"
	"pool-service/internal/database"
	"pool-service/internal/logger"
	"pool-service/internal/producer"
	"pool-service/internal/provider"
	"pool-service/internal/repository"
	"pool-service/internal/scheduler"
	"pool-service/internal/service"
	htransport "pool-service/internal/transport/http"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	isDev := os.Getenv("ENV") == "development"
	if err := logger.Init(isDev); err != nil {
		panic(err)
	}
	defer logger.Sync()

	log := logger.L()

	cfg := config.Load(log)
	db := database.ConnectDB(&cfg.DB.Config, log)
	defer database.CloseDB(db, log)

	repos := repository.New(db)

	// Event bus опционален: без Kafka события просто не публикуются
	var events service.EventBus
	if cfg.Kafka.Enabled {
		p := producer.NewPoolEventProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer p.Close()
		events = p
		log.Info("kafka event producer enabled", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	var poolCache *cache.RedisClient
	if cfg.Redis.Enabled {
		c, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			time.Duration(cfg.Redis.TTLSeconds)*time.Second, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer c.Close()
		poolCache = c
	}

	payProvider := provider.NewHTTPProvider(cfg.Provider.BaseURL, cfg.Provider.APIKey,
		time.Duration(cfg.Provider.TimeoutSeconds)*time.Second)

	svc := service.NewPoolService(repos, events)
	orch := service.NewOrchestrator(repos, payProvider, events, log)
	reconciler := service.NewReconciler(repos, orch, events, log)

	if cfg.Reconcile.Enabled {
		sched := scheduler.NewScheduler(reconciler, cfg.Reconcile.Interval, log)
		sched.Start(context.Background())
		defer sched.Stop()
	}

	handler := htransport.NewPoolHandler(svc, reconciler, poolCache, log)
	router := htransport.Router(handler)

	srv := &http.Server{
		Addr:    cfg.Port,
		Handler: router,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("Starting Pool HTTP server", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	<-quit
	log.Info("Shutting down Pool HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("HTTP server shutdown failed", zap.Error(err))
	}
	log.Info("Pool HTTP server stopped gracefully")
}
