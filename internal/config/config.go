package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Object storage (Supabase-compatible storage API)
	StorageURL        string
	StorageServiceKey string
	StorageBucket     string

	// ElevenLabs (speech synthesis)
	ElevenLabsKey     string
	ElevenLabsVoiceID string

	// OpenAI (narrative script drafting)
	OpenAIKey string

	// Gemini (content photo analysis)
	GeminiKey string

	// Rendering
	RenderResolution  string // "720p", "1080p", "4k" — default canvas when a render doesn't specify
	RenderTempDir     string // Root for per-job working directories
	SegmentFPS        int    // Frame rate of encoded slideshow segments
	RenderTransitions bool   // Crossfade between images (falls back to hard cuts on failure)

	// Job limits — soft logs a warning, hard fails the job
	JobSoftTimeLimit time.Duration
	JobHardTimeLimit time.Duration

	// Worker
	MaxConcurrentJobs int
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:      getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		StorageURL:         getEnv("STORAGE_URL", ""),
		StorageServiceKey:  getEnv("STORAGE_SERVICE_KEY", ""),
		StorageBucket:      getEnv("STORAGE_BUCKET", "keepsake-media"),
		ElevenLabsKey:      getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID:  getEnv("ELEVENLABS_VOICE_ID", ""),
		OpenAIKey:          getEnv("OPENAI_API_KEY", ""),
		GeminiKey:          getEnv("GEMINI_API_KEY", ""),
		RenderResolution:   getEnv("RENDER_RESOLUTION", "1080p"),
		RenderTempDir:      getEnv("RENDER_TEMP_DIR", "/tmp/keepsake"),
		SegmentFPS:         getEnvInt("SEGMENT_FPS", 30),
		RenderTransitions:  getEnvBool("RENDER_TRANSITIONS", false),
		JobSoftTimeLimit:   getEnvDuration("JOB_SOFT_TIME_LIMIT", 55*time.Minute),
		JobHardTimeLimit:   getEnvDuration("JOB_HARD_TIME_LIMIT", 60*time.Minute),
		MaxConcurrentJobs:  getEnvInt("MAX_CONCURRENT_JOBS", 2),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.StorageURL == "" || cfg.StorageServiceKey == "" {
		return nil, fmt.Errorf("STORAGE_URL and STORAGE_SERVICE_KEY are required")
	}

	// The TTS key is deliberately NOT required here: a missing key must fail
	// the render at the generating_audio stage, not prevent the API from
	// serving reads.

	if cfg.JobSoftTimeLimit >= cfg.JobHardTimeLimit {
		return nil, fmt.Errorf("JOB_SOFT_TIME_LIMIT must be below JOB_HARD_TIME_LIMIT")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
