package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/rl1809/storefront/internal/adapter/handler"
	"github.com/rl1809/storefront/internal/adapter/messaging"
	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/clock"
	"github.com/rl1809/storefront/internal/config"
	"github.com/rl1809/storefront/internal/core/pricing"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/logger"
	"github.com/rl1809/storefront/internal/port"
	"github.com/rl1809/storefront/internal/scheduler"
	"github.com/rl1809/storefront/migrations"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	unit, err := pricing.ParseCurrency(cfg.Currency)
	if err != nil {
		log.Fatalf("invalid currency: %v", err)
	}

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	db.SetMaxOpenConns(cfg.MySQLMaxOpen)
	db.SetMaxIdleConns(cfg.MySQLMaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}
	if err := migrations.Apply(ctx, db); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}
	log.Info("connected to mysql")

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: cfg.RedisPoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	log.Info("connected to redis")

	redisAdapter := storage.NewRedisAdapter(rdb)
	mysqlAdapter := storage.NewMySQLAdapter(db)

	var publisher port.EventPublisher = messaging.NewLogPublisher(log.WithField("component", "events"))
	var rabbit *messaging.RabbitPublisher
	if cfg.AMQPURL != "" {
		rabbit, err = messaging.DialRabbit(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatalf("failed to connect rabbitmq: %v", err)
		}
		publisher = rabbit
		log.WithField("exchange", cfg.AMQPExchange).Info("connected to rabbitmq")
	}

	deps := service.Deps{
		Cache:         redisAdapter,
		Catalog:       mysqlAdapter,
		Orders:        mysqlAdapter,
		Events:        mysqlAdapter,
		Registrations: mysqlAdapter,
		Reviews:       mysqlAdapter,
		Pages:         mysqlAdapter,
		Publisher:     publisher,
		Clock:         clock.NewSystem(),
		Log:           log,
		BoardCacheTTL: cfg.BoardCacheTTL,
	}

	catalogService := service.NewCatalogService(deps)
	eventService := service.NewEventService(deps)
	orderService := service.NewOrderService(deps, cfg.QueueSize)
	registrationService := service.NewRegistrationService(deps, cfg.PendingRegistrationTTL)
	reviewService := service.NewReviewService(deps)
	contentService := service.NewContentService(deps)

	// Counters in Redis follow the database on every start
	if n, err := catalogService.SyncStock(ctx); err != nil {
		log.Fatalf("failed to sync stock: %v", err)
	} else {
		log.WithField("products", n).Info("synced stock")
	}
	if n, err := eventService.SyncSeats(ctx); err != nil {
		log.Fatalf("failed to sync seats: %v", err)
	} else {
		log.WithField("events", n).Info("synced seats")
	}

	// Start worker pool
	workers := service.NewPersister(deps).Start(cfg.WorkerCount, orderService.GetOrderQueue())
	log.WithField("workers", cfg.WorkerCount).Info("started workers")

	sched, err := scheduler.New(cfg.SweepSchedule, registrationService, log)
	if err != nil {
		log.Fatalf("failed to schedule sweep: %v", err)
	}
	sched.Start()

	// Initialize gRPC server
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.UnaryLogger(log)))
	handler.RegisterBoardServiceServer(grpcServer, handler.NewGRPCHandler(orderService, registrationService, log))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}
	go func() {
		log.Infof("gRPC server listening on %s", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.WithError(err).Error("gRPC server error")
		}
	}()

	// Initialize HTTP server
	health := map[string]handler.Pinger{"mysql": mysqlAdapter, "redis": redisAdapter}
	if rabbit != nil {
		health["rabbitmq"] = rabbit
	}
	httpHandler := handler.NewHTTPHandler(handler.Services{
		Catalog:       catalogService,
		Orders:        orderService,
		Events:        eventService,
		Registrations: registrationService,
		Reviews:       reviewService,
		Pages:         contentService,
	}, handler.HTTPOptions{
		AdminToken:     cfg.AdminToken,
		Currency:       unit,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Health:         health,
		Log:            log,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpHandler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Infof("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP shutdown")
	}
	log.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Info("gRPC server stopped")

	sched.Stop(shutdownCtx)
	log.Info("scheduler stopped")

	// Close order queue and wait for workers
	orderService.Close()
	workers.Wait()
	log.Info("workers stopped")

	if rabbit != nil {
		rabbit.Close()
	}
	rdb.Close()
	db.Close()
	log.Info("connections closed")
}
