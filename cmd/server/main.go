package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"chatrelay/internal/api"
	"chatrelay/internal/chat"
	"chatrelay/internal/inference"
	"chatrelay/internal/logstore"
	"chatrelay/internal/logstore/httpindex"
	"chatrelay/internal/logstore/sqlite"
)

const (
	DefaultPort          = ":8080"
	DefaultInferenceURL  = "http://localhost:8000"
	DefaultLogStoreURL   = "http://localhost:9200"
	DefaultLogStoreIndex = "conversations"
	DefaultSQLitePath    = "./data/conversations.db"
	DefaultModels        = "mistral,llama2,phi2"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if getEnv("LOG_LEVEL", "info") == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	port := getEnv("PORT", DefaultPort)
	if port[0] != ':' {
		port = ":" + port
	}

	// Initialize conversation store
	store, err := newLogStore()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize conversation store")
	}
	writer := logstore.NewAsyncWriter(store, logstore.DefaultAsyncConfig())

	// Initialize inference client
	inferenceConfig := inference.DefaultConfig()
	inferenceConfig.BaseURL = getEnv("INFERENCE_URL", DefaultInferenceURL)
	inferenceConfig.RequestTimeout = getDurationEnv("INFERENCE_TIMEOUT", inferenceConfig.RequestTimeout)
	inferenceConfig.RequestsPerSecond = getFloatEnv("RATE_LIMIT_RPS", inferenceConfig.RequestsPerSecond)
	client := inference.NewClient(inferenceConfig)

	chatConfig := chat.DefaultConfig()
	chatConfig.DefaultMaxNewTokens = getIntEnv("DEFAULT_MAX_NEW_TOKENS", chatConfig.DefaultMaxNewTokens)
	chatConfig.DefaultTemperature = getFloatEnv("DEFAULT_TEMPERATURE", chatConfig.DefaultTemperature)
	if models := getEnv("SUPPORTED_MODELS", DefaultModels); models != "" {
		chatConfig.SupportedModels = strings.Split(models, ",")
	}
	orchestrator := chat.New(client, writer, chatConfig)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	// Setup routes
	api.SetupRoutes(app, orchestrator)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("shutting down server")
		if err := app.Shutdown(); err != nil {
			log.Error().Err(err).Msg("error during shutdown")
		}
	}()

	log.Info().Str("port", port).Str("inference_url", inferenceConfig.BaseURL).Msg("starting chat relay server")
	if err := app.Listen(port); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}

	// Drain queued conversation writes before exit
	if err := writer.Close(); err != nil {
		log.Error().Err(err).Msg("error closing conversation store")
	}
}

func newLogStore() (logstore.Logger, error) {
	switch backend := getEnv("LOG_STORE", "http"); backend {
	case "sqlite":
		store, err := sqlite.New(getEnv("SQLITE_PATH", DefaultSQLitePath))
		if err != nil {
			return nil, err
		}
		return store, nil
	case "http":
		return httpindex.New(
			getEnv("LOG_STORE_URL", DefaultLogStoreURL),
			getEnv("LOG_STORE_INDEX", DefaultLogStoreIndex),
			getDurationEnv("LOG_STORE_TIMEOUT", 10*time.Second),
		), nil
	default:
		return nil, fmt.Errorf("unknown log store backend: %s", backend)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
