package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emberline/keepsake/internal/api"
	"github.com/emberline/keepsake/internal/config"
	"github.com/emberline/keepsake/internal/db"
	"github.com/emberline/keepsake/internal/models"
	"github.com/emberline/keepsake/internal/queue"
	"github.com/emberline/keepsake/internal/services"
	"github.com/emberline/keepsake/internal/storage"
	"github.com/emberline/keepsake/internal/worker"
)

func main() {
	log.Println("Starting Keepsake API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("Connected to database")

	// Connect to Redis queue
	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	// Initialize object storage
	stor := storage.New(cfg.StorageURL, cfg.StorageServiceKey, cfg.StorageBucket)
	log.Printf("Initialized object storage (bucket: %s)", cfg.StorageBucket)

	// Create API handler
	handler := api.NewHandler(database, q, stor)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start worker if enabled
	var workerCtx context.Context
	var workerCancel context.CancelFunc
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting background processing...")

		if err := os.MkdirAll(cfg.RenderTempDir, 0755); err != nil {
			log.Fatalf("Failed to create render temp dir: %v", err)
		}

		width, height := models.VideoResolution(cfg.RenderResolution).Dimensions()

		ttsSvc := services.NewElevenLabsService(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID)
		if cfg.ElevenLabsKey == "" {
			log.Println("WARNING: No ELEVENLABS_API_KEY set — renders will fail at speech synthesis")
		}

		visionSvc := services.NewVisionService(cfg.GeminiKey)
		drafterSvc := services.NewNarrativeService(cfg.OpenAIKey)
		ffmpegSvc := services.NewFFmpegService(cfg.SegmentFPS)
		normalizerSvc := services.NewNormalizer(width, height)

		w := worker.New(database, q, stor, ttsSvc, visionSvc, drafterSvc, ffmpegSvc, normalizerSvc, worker.Config{
			FrameWidth:        width,
			FrameHeight:       height,
			TempDir:           cfg.RenderTempDir,
			SoftTimeLimit:     cfg.JobSoftTimeLimit,
			HardTimeLimit:     cfg.JobHardTimeLimit,
			EnableTransitions: cfg.RenderTransitions,
		})

		workerCtx, workerCancel = context.WithCancel(context.Background())
		go w.Start(workerCtx, cfg.MaxConcurrentJobs)
	}

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	if workerCancel != nil {
		workerCancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
