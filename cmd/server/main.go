// Package main is the entry point for the stockcore API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockcore/internal/domain/alert"
	"stockcore/internal/domain/item"
	"stockcore/internal/domain/ledger"
	"stockcore/internal/domain/reservation"
	"stockcore/internal/domain/stockeffect"
	"stockcore/internal/domain/uom"
	v1 "stockcore/internal/infrastructure/http/v1"
	"stockcore/internal/infrastructure/http/v1/middleware"
	"stockcore/internal/infrastructure/storage/postgres"
	"stockcore/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	log.Info("starting stockcore server")

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(mustEnv("DATABASE_URL"))
	if maxConns := getEnvInt("DB_MAX_CONNS", 0); maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}
	if minConns := getEnvInt("DB_MIN_CONNS", 0); minConns > 0 {
		poolCfg.MinConns = int32(minConns)
	}

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txm := postgres.NewTxManager(pool)

	// --- Repositories ---
	// Repos resolve their querier from the TxManager in request context.
	itemRepo := postgres.NewItemRepo()
	ledgerRepo := postgres.NewLedgerRepo()
	reservationRepo := postgres.NewReservationRepo()

	// --- Services ---
	itemService := item.NewService(itemRepo)

	converter := uom.NewConverter(uom.StaticSettings{
		Precision: int32(getEnvInt("QUANTITY_PRECISION", 2)),
	})

	var rule *alert.Rule
	if expr := getEnv("LOW_STOCK_RULE", ""); expr != "" {
		rule, err = alert.NewRule(expr)
		if err != nil {
			log.Fatalw("invalid low stock rule", "rule", expr, "error", err)
		}
	}
	evaluator := alert.NewEvaluator(rule, alert.NewLogNotifier())

	stockService := ledger.NewService(ledgerRepo, itemService, evaluator)
	reservationService := reservation.NewService(reservationRepo, ledgerRepo, stockService, itemService)

	auditService, err := postgres.NewAuditService()
	if err != nil {
		log.Fatalw("failed to initialize audit service", "error", err)
	}

	coordinator := stockeffect.NewCoordinator(
		itemService,
		converter,
		stockService,
		reservationService,
		auditService,
	)

	// --- Router ---
	verifier := middleware.NewTokenVerifier(mustEnv("JWT_SECRET"))
	router := v1.NewRouter(v1.RouterConfig{
		TxManager:    txm,
		Pool:         pool.Unwrap(),
		Logger:       log,
		Verifier:     verifier,
		Items:        itemService,
		Stock:        stockService,
		Coordinator:  coordinator,
		AuditHistory: auditService,
	})

	// --- HTTP Server ---
	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
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
