package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/ticketnft/escrow-service/internal/adapters/crdb"
	mongoadapter "github.com/ticketnft/escrow-service/internal/adapters/mongo"
	"github.com/ticketnft/escrow-service/internal/adapters/rabbit"
	redisadapter "github.com/ticketnft/escrow-service/internal/adapters/redis"
	"github.com/ticketnft/escrow-service/internal/clock"
	"github.com/ticketnft/escrow-service/internal/config"
	"github.com/ticketnft/escrow-service/internal/domain"
	"github.com/ticketnft/escrow-service/internal/escrow"
	httphandler "github.com/ticketnft/escrow-service/internal/http"
	"github.com/ticketnft/escrow-service/internal/idempotency"
	"github.com/ticketnft/escrow-service/internal/observability"
	"github.com/ticketnft/escrow-service/internal/rateLimit"
	"github.com/ticketnft/escrow-service/internal/reconcile"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	ledger := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	audit := mongoadapter.NewAuditLogger(mongoClient.Database("escrow"), logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	redisCache := redisadapter.NewCache(redisClient)
	redisIdemp := redisadapter.NewIdempotency(redisClient)
	idemp := idempotency.NewIdempotency(redisIdemp, time.Hour)
	rl := rateLimit.NewRateLimiter(redisCache)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()

	svc, err := escrow.NewService(ledger, clock.NewSystem(), escrow.Config{
		Arbiter:     domain.Address(cfg.Arbiter),
		Platform:    domain.Address(cfg.PlatformAccount),
		FeeBps:      cfg.FeeBps,
		GracePeriod: cfg.GracePeriod,
	}, logger)
	if err != nil {
		log.Fatalf("failed to build escrow service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	execConsumer, err := rabbit.NewConsumer(rabbitConn, rabbit.ExecutionQueue)
	if err != nil {
		log.Fatalf("failed to create execution consumer: %v", err)
	}
	reconciler := reconcile.NewConsumer(execConsumer, audit, logger)
	go func() {
		if err := reconciler.Run(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("reconciliation consumer stopped")
		}
	}()

	handlers := httphandler.NewHandlers(svc, idemp)
	r := httphandler.SetupRouter(handlers, logger, rl)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
