package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bakery/internal/config"
	"bakery/internal/database"
	"bakery/internal/events"
	"bakery/internal/handlers"
	"bakery/internal/inventory"
	"bakery/internal/logger"
	"bakery/internal/middleware"
	"bakery/internal/orders"
	"bakery/internal/payment"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log, err := logger.New("bakery-api", cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	client, err := database.Connect(cfg.MongoURI)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer client.Disconnect(context.Background())

	db := client.Database(cfg.DBName)
	log.Info("MongoDB connected", zap.String("database", db.Name()))

	if err := database.EnsureProductIndexes(db, log); err != nil {
		log.Warn("product index warning", zap.Error(err))
	}
	if err := database.EnsureOrderIndexes(db, log); err != nil {
		log.Warn("order index warning", zap.Error(err))
	}
	if err := database.EnsureCartIndexes(db, log); err != nil {
		log.Warn("cart index warning", zap.Error(err))
	}

	var seen payment.IdempotencyStore = payment.NewMemoryIdempotencyStore()
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		seen = payment.NewRedisIdempotencyStore(redisClient, "bakery-payments")
		log.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		log.Warn("REDIS_ADDR not set, payment idempotency is kept in process memory")
	}

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger.Component(log, "events"))
		if err != nil {
			log.Fatal("failed to create kafka publisher", zap.Error(err))
		}
		publisher = kafka
		log.Info("kafka publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	defer publisher.Close()

	verifier := payment.NewVerifier(cfg.Razorpay.KeySecret)
	stock := inventory.NewEngine(database.NewProductStore(db), log)
	orderService := orders.NewService(
		database.NewOrderStore(db),
		database.NewCartStore(db),
		stock,
		verifier,
		publisher,
		log,
		orders.Options{DeliveryEstimate: cfg.DeliveryEstimate, Location: cfg.DisplayLocation},
	)
	gateway := payment.NewRazorpayClient(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret, cfg.Razorpay.BaseURL, cfg.RequestTimeout)

	deps := &handlers.Deps{
		Orders:     orderService,
		Gateway:    payment.NewGatewayService(gateway, orderService, cfg.Razorpay.KeyID, cfg.Razorpay.Currency, log),
		Reconciler: payment.NewReconciler(verifier, orderService, seen, cfg.Redis.IdempotencyTTL, log),
		DB:         database.Pinger{DB: db},
		Log:        log,
		Timeout:    cfg.RequestTimeout,
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(logger.Component(log, "http")))
	handlers.RegisterRoutes(r, deps, cfg.JWTSecret)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server starting", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", zap.Error(err))
		return
	}
	log.Info("server stopped")
}
