package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"symptomcheck/internal/cache"
	"symptomcheck/internal/config"
	"symptomcheck/internal/jobs"
	"symptomcheck/internal/repository"
	"symptomcheck/internal/service"
	"symptomcheck/internal/transport/rest"
	"symptomcheck/internal/transport/ws"
)

func main() {
	log.Println("started")
	ctx := context.Background()

	cfg := config.Load()

	// Log model settings
	aiConfig := cfg.AI
	log.Printf("AI Config:")
	log.Printf("  Initial:   %s", aiConfig.Models.Initial)
	log.Printf("  Next:      %s", aiConfig.Models.Next)
	log.Printf("  Emergency: %s", aiConfig.Models.Emergency)
	log.Printf("  Options:   %s", aiConfig.Models.Options)
	if aiConfig.IsEnabled() {
		log.Println("  API Key:   configured ✓")
	} else {
		log.Println("  API Key:   NOT SET (using built-in questions)")
	}

	rules, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		log.Fatal("Failed to load policy:", err)
	}
	log.Printf("Policy: %d-%d responses, %d emergency keywords",
		rules.Completion.MinResponses, rules.Completion.MaxResponses, len(rules.Emergency.Keywords))

	// MongoDB connection
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(ctx)

	// Ping MongoDB
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		log.Fatal("Failed to ping MongoDB:", err)
	}
	log.Println("Connected to MongoDB")

	db := mongoClient.Database(cfg.MongoDB)

	// Redis connection
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	defer rdb.Close()

	// Ping Redis
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatal("Failed to ping Redis:", err)
	}
	log.Println("Connected to Redis")

	// Initialize WebSocket hub
	wsHub := ws.NewHub()
	defer wsHub.Close()
	log.Println("WebSocket hub started")

	// Initialize repositories
	assessmentRepo := repository.NewAssessmentRepo(db)
	if err := assessmentRepo.EnsureIndexes(ctx); err != nil {
		log.Printf("Warning: failed to create indexes: %v", err)
	}

	// Initialize caches
	sessionCache := cache.NewSessionCache(rdb, cfg.SnapshotTTL)
	optionsCache := cache.NewOptionsCache(rdb)
	statsCache := cache.NewStatsCache(rdb)

	// Initialize services
	authSvc := service.NewAuthService(cfg.JWTSecret, cfg.TokenTTL)
	generator := service.NewGeneratorService(aiConfig, rules)
	jobHandler := jobs.NewHandler(assessmentRepo, statsCache)
	assessmentSvc := service.NewAssessmentService(
		generator,
		rules,
		cfg.DefaultLocale,
		authSvc,
		sessionCache,
		optionsCache,
		statsCache,
		assessmentRepo,
		jobHandler,
		wsHub,
	)
	defer assessmentSvc.Shutdown()

	// Task queue: finished assessments are written behind the request
	if cfg.QueueEnabled {
		redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr}

		queueClient := asynq.NewClient(redisOpt)
		defer queueClient.Close()
		assessmentSvc.UseQueue(queueClient)

		worker := asynq.NewServer(redisOpt, asynq.Config{Concurrency: 4})
		taskMux := asynq.NewServeMux()
		jobHandler.Register(taskMux)
		if err := worker.Start(taskMux); err != nil {
			log.Fatal("Failed to start task worker:", err)
		}
		defer worker.Shutdown()
		log.Println("Task worker started")
	} else {
		log.Println("Task queue disabled, assessments are written directly")
	}

	// Create router with container
	container := &rest.Container{
		AuthService:       authSvc,
		AssessmentService: assessmentSvc,
		WSHub:             wsHub,
		AllowedOrigins:    cfg.AllowedOrigins,
	}

	router := rest.NewRouter(container)

	// Start server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.Port)
		log.Println("Endpoints:")
		log.Println("  POST /v1/assessments")
		log.Println("  GET/DELETE /v1/assessments/{id}")
		log.Println("  POST /v1/assessments/{id}/answers|back|retry|restart")
		log.Println("  GET  /v1/assessments/{id}/questions/{questionId}/options")
		log.Println("  GET  /v1/assessments/{id}/record")
		log.Println("  GET  /v1/stats")
		log.Println("  WS   /v1/ws/assessments/{id}")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("ListenAndServe:", err)
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
