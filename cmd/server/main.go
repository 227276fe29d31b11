package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"delivery-service/config"
	"delivery-service/internal/api"
	"delivery-service/internal/auth"
	"delivery-service/internal/broker"
	"delivery-service/internal/redisclient"
	"delivery-service/internal/service"
	"delivery-service/internal/store"
	"delivery-service/internal/util"
	"delivery-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting delivery service")

	tp, err := util.InitTracer("delivery-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	if err := db.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicDelivery)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)
	tokens := auth.NewManager(cfg.Auth)

	authService := service.NewAuthService(db, tokens)
	userService := service.NewUserService(db, redisClient, eventPublisher)
	productService := service.NewProductService(db, db, eventPublisher)
	deliveryService := service.NewDeliveryService(db, db, db, redisClient, eventPublisher)
	statsService := service.NewStatsService(db)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	trackingConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicDelivery, cfg.Kafka.ConsumerGroup)
	trackingWorker := worker.NewTrackingWorker(trackingConsumer, db, redisClient)
	go func() {
		if err := trackingWorker.Start(workerCtx); err != nil {
			log.Printf("Tracking worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(
		authService,
		userService,
		productService,
		deliveryService,
		statsService,
		tokens,
		db,
		cfg.Auth.AdminSetupToken,
	)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	trackingWorker.Stop()

	log.Println("Server exited")
}
