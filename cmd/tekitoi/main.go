package main

// @title           Tekitoi API
// @version         1.0
// @description     OAuth2 authorization code broker with PKCE. Relying applications authenticate users through local or federated identity providers.

// @contact.name   Tekitoi
// @contact.url    https://github.com/jdrouet/tekitoi/issues

// @license.name  MIT

// @host      localhost:8080
// @BasePath  /
// @schemes   http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Access token issued by /api/access-token. Format: "Bearer {token}"

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/jdrouet/tekitoi/internal/adapters/driven/auth"
	"github.com/jdrouet/tekitoi/internal/adapters/driven/memory"
	"github.com/jdrouet/tekitoi/internal/adapters/driven/postgres"
	"github.com/jdrouet/tekitoi/internal/adapters/driven/providers"
	redisadapter "github.com/jdrouet/tekitoi/internal/adapters/driven/redis"
	"github.com/jdrouet/tekitoi/internal/adapters/driving/http"
	"github.com/jdrouet/tekitoi/internal/config"
	"github.com/jdrouet/tekitoi/internal/core/ports/driven"
	"github.com/jdrouet/tekitoi/internal/core/services"
)

var version = "dev"

func main() {
	// RUN_MODE or first argument: serve (default) or check
	mode := getEnv("RUN_MODE", "serve")
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	configPath := getEnv("CONFIG_PATH", "config.yml")

	if mode == "check" {
		catalog, err := config.LoadCatalog(configPath)
		if err != nil {
			log.Fatalf("Invalid configuration: %v", err)
		}
		log.Printf("Configuration is valid (%d applications)", len(catalog.Applications))
		return
	}
	if mode != "serve" {
		log.Fatalf("Unknown mode: %s (use: serve or check)", mode)
	}

	log.Printf("tekitoi %s starting", version)
	setLogLevel(getEnv("LOG_LEVEL", "info"))

	port := getEnvInt("PORT", 8080)
	host := getEnv("HOST", "0.0.0.0")
	baseURL := strings.TrimRight(getEnv("BASE_URL", fmt.Sprintf("http://localhost:%d", port)), "/")
	databaseURL := getEnv("DATABASE_URL", "")
	redisURL := getEnv("REDIS_URL", "")

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutdown signal received, stopping...")
		cancel()
	}()

	catalog, err := config.LoadCatalog(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Printf("Loaded %d applications from %s", len(catalog.Applications), configPath)

	pingers := map[string]http.Pinger{}

	// ===== PostgreSQL (optional) =====
	var db *postgres.DB
	if databaseURL != "" {
		log.Println("Connecting to PostgreSQL...")
		dbConfig := postgres.Config{
			URL:             databaseURL,
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300)) * time.Second,
			ConnMaxIdleTime: time.Duration(getEnvInt("DB_CONN_MAX_IDLE_SEC", 60)) * time.Second,
		}
		db, err = postgres.Connect(ctx, dbConfig)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if err := db.InitSchema(ctx); err != nil {
			log.Fatalf("Failed to initialize schema: %v", err)
		}
		pingers["postgres"] = db
		log.Println("PostgreSQL connected and schema initialized")
	}

	var encryptor *postgres.SecretEncryptor
	if key := getEnv("SECRET_KEY", ""); key != "" {
		encryptor, err = postgres.NewSecretEncryptorFromHex(key)
		if err != nil {
			log.Fatalf("Invalid SECRET_KEY: %v", err)
		}
	} else if db != nil {
		log.Println("Warning: SECRET_KEY is not set, upstream secrets are stored unencrypted")
	}

	// ===== Redis (optional) =====
	var redisClient *redis.Client
	if redisURL != "" {
		log.Println("Connecting to Redis...")
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatalf("Failed to parse Redis URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		log.Println("Redis connected")
	}

	// ===== Registry (PostgreSQL if available, otherwise memory) =====
	var (
		registry driven.ClientRegistry
		users    driven.UserStore
		writer   driven.CatalogWriter
	)
	if db != nil {
		store := postgres.NewRegistryStore(db, encryptor)
		registry, users, writer = store, store, store
		log.Println("Using PostgreSQL registry")
	} else {
		store := memory.NewRegistry()
		registry, users, writer = store, store, store
		log.Println("Using in-memory registry")
	}

	// ===== Correlations and sessions (Redis, then PostgreSQL, then memory) =====
	var (
		correlations driven.CorrelationStore
		sessions     driven.SessionStore
		lock         driven.DistributedLock
	)
	switch {
	case redisClient != nil:
		redisCorrelations := redisadapter.NewCorrelationStore(redisClient)
		correlations = redisCorrelations
		sessions = redisadapter.NewSessionStore(redisClient)
		lock = redisadapter.NewLock(redisClient)
		pingers["redis"] = redisCorrelations
		log.Println("Using Redis correlation and session stores")
	case db != nil:
		correlations = postgres.NewCorrelationStore(db)
		sessions = postgres.NewSessionStore(db, encryptor)
		lock = postgres.NewAdvisoryLock(db)
		log.Println("Using PostgreSQL correlation and session stores")
	default:
		correlations = memory.NewCorrelationStore()
		sessions = memory.NewSessionStore()
		log.Println("Using in-memory correlation and session stores (single instance only)")
	}

	hasher := auth.NewHasherWithCost(getEnvInt("BCRYPT_COST", bcrypt.DefaultCost))

	catalogService := services.NewCatalogService(services.CatalogServiceConfig{
		Writer: writer,
		Hasher: hasher,
		Logger: slog.Default(),
	})
	if err := catalogService.Sync(ctx, catalog); err != nil {
		log.Fatalf("Failed to synchronise configuration: %v", err)
	}
	log.Println("Configuration synchronised")

	authorizationService := services.NewAuthorizationService(services.AuthorizationServiceConfig{
		Registry:     registry,
		Users:        users,
		Correlations: correlations,
		Sessions:     sessions,
		Hasher:       hasher,
		Providers: providers.NewFactory(providers.Config{
			RedirectURL: baseURL + "/api/redirect",
		}),
		Logger:         slog.Default(),
		CorrelationTTL: getEnvDuration("CORRELATION_TTL", 10*time.Minute),
		AccessTokenTTL: getEnvDuration("ACCESS_TOKEN_TTL", 24*time.Hour),
	})

	// ===== Sweeper =====
	if getEnvBool("SWEEPER_ENABLED", true) {
		sweeper := services.NewSweeper(services.SweeperConfig{
			Correlations: correlations,
			Sessions:     sessions,
			Lock:         lock,
			Logger:       slog.Default(),
			Interval:     getEnvDuration("SWEEP_INTERVAL", time.Minute),
		})
		sweeper.Start(ctx)
		defer sweeper.Stop()
	} else {
		log.Println("Sweeper disabled via SWEEPER_ENABLED=false")
	}

	server := http.NewServer(http.Config{
		Host:        host,
		Port:        port,
		Version:     version,
		CORSOrigins: getEnvList("CORS_ORIGINS"),
		Logger:      slog.Default(),
	}, authorizationService, pingers)

	log.Printf("Public URL is %s", baseURL)
	if err := server.Run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server stopped")
}

func setLogLevel(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		log.Printf("Warning: unknown LOG_LEVEL %q, using info", level)
		return
	}
	slog.SetLogLoggerLevel(l)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or a number of seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	var seconds int
	if _, err := fmt.Sscanf(value, "%d", &seconds); err == nil {
		return time.Duration(seconds) * time.Second
	}
	log.Printf("Warning: invalid %s %q, using %s", key, value, defaultValue)
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
