package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/collabcore/editorcore/pkg/auth"
	"github.com/collabcore/editorcore/pkg/logger"
	"github.com/collabcore/editorcore/pkg/session"
	"github.com/collabcore/editorcore/pkg/store"
	"github.com/collabcore/editorcore/pkg/transport"
)

// Config holds all server configuration, loaded from environment
// variables with defaults, including the session/store/auth knobs.
type Config struct {
	Port string

	StoreBackend string // "memory", "sqlite", or "redis"
	SQLiteURI    string
	RedisAddr    string

	HistoryWindow     int
	IdleTimeout       time.Duration
	PersistInterval   time.Duration
	MaxDocumentSizeKB int

	OutboundHighWater int
	MaxOpSizeKB       int
	PingInterval      time.Duration
	PongTimeout       time.Duration
	RateLimitOpsSec   float64
	RateLimitBytesSec float64

	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
}

func main() {
	logger.Init()

	config := Config{
		Port: getEnv("PORT", "3030"),

		StoreBackend: getEnv("STORE_BACKEND", "memory"),
		SQLiteURI:    os.Getenv("SQLITE_URI"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),

		HistoryWindow:     getEnvInt("HISTORY_WINDOW", 2000),
		IdleTimeout:       time.Duration(getEnvInt("IDLE_TIMEOUT_SECONDS", 300)) * time.Second,
		PersistInterval:   time.Duration(getEnvInt("PERSIST_INTERVAL_SECONDS", 10)) * time.Second,
		MaxDocumentSizeKB: getEnvInt("MAX_DOCUMENT_SIZE_KB", 10*1024),

		OutboundHighWater: getEnvInt("OUTBOUND_HIGH_WATER", 100),
		MaxOpSizeKB:       getEnvInt("MAX_OP_SIZE_KB", 1024),
		PingInterval:      time.Duration(getEnvInt("PING_INTERVAL_SECONDS", 30)) * time.Second,
		PongTimeout:       time.Duration(getEnvInt("PONG_TIMEOUT_SECONDS", 10)) * time.Second,
		RateLimitOpsSec:   getEnvFloat("RATE_LIMIT_OPS_PER_SECOND", 50),
		RateLimitBytesSec: getEnvFloat("RATE_LIMIT_BYTES_PER_SECOND", 1<<20),

		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
		JWTIssuer:     os.Getenv("JWT_ISSUER"),
		JWTAudience:   os.Getenv("JWT_AUDIENCE"),
	}

	logger.Info("Starting editorcore server...")
	logger.Info("Port: %s", config.Port)
	logger.Info("Store backend: %s", config.StoreBackend)

	st, closeStore := mustStore(config)
	if closeStore != nil {
		defer closeStore()
	}

	verifier := mustVerifier(config)

	sessionCfg := session.Config{
		HistoryWindow:   config.HistoryWindow,
		IdleTimeout:     config.IdleTimeout,
		PersistInterval: config.PersistInterval,
		MaxDocumentSize: config.MaxDocumentSizeKB * 1024,
	}
	registry := session.NewRegistry(st, sessionCfg)

	transportCfg := transport.Config{
		OutboundHighWater: config.OutboundHighWater,
		MaxOpBytes:        config.MaxOpSizeKB * 1024,
		PingInterval:      config.PingInterval,
		PongTimeout:       config.PongTimeout,
		RateLimit: transport.RateLimitConfig{
			OpsPerSecond:   config.RateLimitOpsSec,
			OpsBurst:       config.RateLimitOpsSec * 2,
			BytesPerSecond: config.RateLimitBytesSec,
			BytesBurst:     config.RateLimitBytesSec * 4,
		},
	}

	srv := transport.NewServer(registry, verifier, transportCfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutting down...")
		registry.Shutdown(ctx)
		cancel()
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%s", config.Port)
	log.Fatal(http.ListenAndServe(addr, srv))
}

func mustStore(config Config) (st store.Store, closeFn func()) {
	switch config.StoreBackend {
	case "sqlite":
		if config.SQLiteURI == "" {
			log.Fatal("STORE_BACKEND=sqlite requires SQLITE_URI")
		}
		s, err := store.NewSQLite(config.SQLiteURI)
		if err != nil {
			log.Fatalf("failed to open sqlite store: %v", err)
		}
		logger.Info("Database: %s", config.SQLiteURI)
		return s, func() { s.Close() }

	case "redis":
		if config.RedisAddr == "" {
			log.Fatal("STORE_BACKEND=redis requires REDIS_ADDR")
		}
		client := redis.NewClient(&redis.Options{Addr: config.RedisAddr})
		logger.Info("Redis: %s", config.RedisAddr)
		return store.NewRedis(client, "editorcore:doc:"), func() { client.Close() }

	default:
		logger.Info("Database: disabled (in-memory only)")
		return store.NewMemory(), nil
	}
}

func mustVerifier(config Config) auth.Verifier {
	if config.JWTSigningKey == "" {
		logger.Info("Auth: allow-all (no JWT_SIGNING_KEY configured)")
		return auth.AllowAllVerifier{}
	}
	logger.Info("Auth: JWT (issuer=%q audience=%q)", config.JWTIssuer, config.JWTAudience)
	return auth.NewJWTVerifier([]byte(config.JWTSigningKey), config.JWTIssuer, config.JWTAudience)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
