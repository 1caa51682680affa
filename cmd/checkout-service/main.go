package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/KeyraGonzalez/tienda-checkout/internal/cart"
	"github.com/KeyraGonzalez/tienda-checkout/internal/checkout"
	h "github.com/KeyraGonzalez/tienda-checkout/internal/http"
	"github.com/KeyraGonzalez/tienda-checkout/internal/logging"
	"github.com/KeyraGonzalez/tienda-checkout/internal/paypal"
	"github.com/KeyraGonzalez/tienda-checkout/internal/publisher"
	"github.com/KeyraGonzalez/tienda-checkout/internal/relay"
	"github.com/KeyraGonzalez/tienda-checkout/internal/repository"
	"github.com/KeyraGonzalez/tienda-checkout/internal/storeapi"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	logger, err := logging.NewLogger()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("checkout-service starting")

	// Configuration
	httpPort := getEnv("HTTP_PORT", "8080")
	storeBaseURL := getEnv("STORE_API_URL", "http://localhost:5000/api")
	storeToken := getEnv("STORE_API_TOKEN", "")
	successBaseURL := getEnv("SUCCESS_BASE_URL", "http://localhost:3000")
	jwtSecret := getEnv("JWT_SECRET", "dev-secret")
	kafkaBrokers := strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ",")
	requestTimeout := 30 * time.Second
	shutdownTimeout := 10 * time.Second

	// Database setup
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		logger.Fatalw("Invalid DB_PORT", "error", err)
	}
	creds := &repository.Credentials{
		Host:              getEnv("DB_HOST", "localhost"),
		Port:              dbPort,
		User:              getEnv("DB_USER", "postgres"),
		Password:          getEnv("DB_PASSWORD", "postgres"),
		DBName:            getEnv("DB_NAME", "tienda"),
		MigrationsDirPath: getEnv("MIGRATIONS_PATH", "./internal/repository/migrations"),
	}

	repo, err := repository.NewRepository(creds)
	if err != nil {
		logger.Fatalw("Failed to connect to database", "error", err)
	}
	defer repo.Close()

	if err := repo.RunMigrations(creds); err != nil {
		logger.Fatalw("Failed to run migrations", "error", err)
	}
	logger.Info("database migrations completed")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       0,
	})
	defer redisClient.Close()

	// Store API client; covers orders, payment sessions, and the cart
	storeClient := storeapi.New(&http.Client{Timeout: 10 * time.Second}, storeBaseURL, storeToken, logger)

	// Provider SDK and its background handshake
	sdk := paypal.NewSDK(&http.Client{Timeout: 10 * time.Second}, paypal.Config{
		BaseURL:  getEnv("PAYPAL_API_URL", "https://api-m.sandbox.paypal.com"),
		ClientID: getEnv("PAYPAL_CLIENT_ID", ""),
		Secret:   getEnv("PAYPAL_SECRET", ""),
		Currency: getEnv("PAYPAL_CURRENCY", "USD"),
	}, logger)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	loader := paypal.NewLoader(sdk, logger)
	loader.Start(rootCtx)

	carts := cart.NewGateway(storeClient, cart.NewRedisCache(redisClient), logger)
	relayStore := relay.NewRedisStore(redisClient)

	checkoutService := checkout.NewService(
		storeClient, carts, relayStore, sdk, loader, repo, successBaseURL, logger,
	)

	// Outbox publisher
	poller := publisher.NewOutboxPoller(repo, logger, kafkaBrokers...)
	defer poller.Close()
	go poller.Run(rootCtx)

	checkoutHandler := h.NewCheckoutHandler(checkoutService, requestTimeout, logger)
	paypalHandler := h.NewPayPalHandler(sdk, requestTimeout, logger)

	// Setup router
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(h.RequestIDMiddleware)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"status":"ok"}`)
	})

	r.Route("/api/v1/checkout", func(r chi.Router) {
		r.Use(h.AuthMiddleware([]byte(jwtSecret)))
		checkoutHandler.Routes(r)
		paypalHandler.Routes(r)
	})

	server := &http.Server{
		Addr:    ":" + httpPort,
		Handler: r,
	}

	go func() {
		logger.Infow("checkout service listening", "port", httpPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("Failed to serve", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down checkout service")
	rootCancel()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorw("Forced shutdown", "error", err)
	}

	logger.Info("checkout service stopped")
}
