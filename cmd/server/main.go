package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"barter-service/config"
	"barter-service/internal/api"
	"barter-service/internal/auth"
	"barter-service/internal/broker"
	"barter-service/internal/redisclient"
	"barter-service/internal/sequence"
	"barter-service/internal/service"
	"barter-service/internal/store"
	"barter-service/internal/util"
	"barter-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting barter service")

	tp, err := util.InitTracer(util.ServiceName, cfg.Server.Env, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}
	logger.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	allocator, closeAllocator, err := sequence.Open(ctx, cfg.Business.SequenceBackend, sequence.Sources{
		SQL:           db,
		Redis:         redisClient,
		MongoURI:      cfg.Mongo.URI,
		MongoDatabase: cfg.Mongo.Database,
	})
	if err != nil {
		logger.Fatal("Failed to initialize sequence allocator", zap.Error(err))
	}
	defer closeAllocator(context.Background())

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicTrade)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicTrade))

	eventPublisher := broker.NewEventPublisher(producer)

	engine := service.NewTradeEngine(db, allocator, eventPublisher, redisClient, cfg.Business.IdempotencyTTL)
	items := service.NewItemService(db, allocator)
	history := service.NewTradeHistory(db)
	sweeper := service.NewSweeper(db, redisClient, cfg.Business.OrphanLockTimeout, cfg.Business.SweepInterval)

	consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicTrade, cfg.Kafka.ConsumerGroup)
	eventWorker := worker.NewTradeEventWorker(consumer, history)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	limiter := api.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)

	router := gin.New()
	handler := api.NewHandler(
		engine,
		items,
		history,
		auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		limiter,
		map[string]api.Pinger{"database": db, "redis": redisClient},
	)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return ignoreCanceled(eventWorker.Start(gctx))
	})

	g.Go(func() error {
		return ignoreCanceled(sweeper.Run(gctx))
	})

	g.Go(func() error {
		return ignoreCanceled(limiter.RunPruner(gctx, time.Minute, 10*time.Minute))
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", zap.Error(err))
		}
		return eventWorker.Stop()
	})

	if err := g.Wait(); err != nil {
		logger.Error("Service stopped with error", zap.Error(err))
	}

	logger.Info("Server exited")
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
