// Package main is the entry point for the stockcore background worker.
// It periodically reconciles cached balances against the ledger and sweeps
// for items below their minimum stock.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"stockcore/internal/core/tenant"
	"stockcore/internal/domain/alert"
	"stockcore/internal/domain/item"
	"stockcore/internal/domain/ledger"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting stockcore worker")

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(mustEnv("DATABASE_URL")))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txm := postgres.NewTxManager(pool)

	itemRepo := postgres.NewItemRepo()
	ledgerRepo := postgres.NewLedgerRepo()

	worker := NewWorker(WorkerConfig{
		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", 5*time.Minute),
		SweepInterval:     getEnvDuration("LOW_STOCK_SWEEP_INTERVAL", 15*time.Minute),
	}, itemRepo, ledgerRepo, alert.NewLogNotifier(), log)

	// Jobs run with a zero tenant scope; they operate across companies.
	jobCtx := tenant.WithTxManager(ctx, txm)
	jobCtx = logger.WithLogger(jobCtx, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(jobCtx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// WorkerConfig holds job intervals.
type WorkerConfig struct {
	ReconcileInterval time.Duration
	SweepInterval     time.Duration
}

// Worker runs the periodic consistency and alert jobs.
type Worker struct {
	cfg      WorkerConfig
	items    item.Repository
	lots     ledger.Repository
	notifier alert.Notifier
	log      *logger.Logger
}

// NewWorker creates a worker.
func NewWorker(cfg WorkerConfig, items item.Repository, lots ledger.Repository, notifier alert.Notifier, log *logger.Logger) *Worker {
	return &Worker{
		cfg:      cfg,
		items:    items,
		lots:     lots,
		notifier: notifier,
		log:      log.WithComponent("worker"),
	}
}

// Run executes both jobs on their tickers until the context is canceled.
func (w *Worker) Run(ctx context.Context) {
	reconcile := time.NewTicker(w.cfg.ReconcileInterval)
	defer reconcile.Stop()
	sweep := time.NewTicker(w.cfg.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reconcile.C:
			if err := w.reconcileBalances(ctx); err != nil {
				w.log.Warnw("balance reconciliation failed", "error", err)
			}
		case <-sweep.C:
			if err := w.sweepLowStock(ctx); err != nil {
				w.log.Warnw("low stock sweep failed", "error", err)
			}
		}
	}
}

// reconcileBalances recomputes each item's balance from the ledger and
// patches the cache where it drifted. Drift indicates a bug elsewhere, so
// every correction is logged loudly.
func (w *Worker) reconcileBalances(ctx context.Context) error {
	items, err := w.items.List(ctx, item.ListFilter{})
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}

	var patches []item.BalancePatch
	for _, it := range items {
		sum, err := w.lots.SumActiveByItem(ctx, it.ID)
		if err != nil {
			return fmt.Errorf("sum ledger for %s: %w", it.Code, err)
		}
		if sum == it.CurrentStock {
			continue
		}
		w.log.Warnw("cached balance drifted from ledger",
			"item", it.Code,
			"cached", it.CurrentStock,
			"ledger", sum,
		)
		patches = append(patches, item.BalancePatch{
			ItemID:       it.ID,
			CurrentStock: sum,
		})
	}

	if len(patches) == 0 {
		w.log.Debugw("balance reconciliation clean", "items", len(items))
		return nil
	}

	txm := tenant.MustGetTxManager(ctx)
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		return w.items.ApplyBalancePatches(ctx, patches)
	})
	if err != nil {
		return fmt.Errorf("apply balance patches: %w", err)
	}

	w.log.Infow("balances reconciled", "patched", len(patches), "items", len(items))
	return nil
}

// sweepLowStock notifies about every item under its minimum. The sweep
// backs up the per-mutation observer: alerts lost to delivery failures
// resurface here.
func (w *Worker) sweepLowStock(ctx context.Context) error {
	low, err := w.items.ListBelowMinimum(ctx)
	if err != nil {
		return fmt.Errorf("list items below minimum: %w", err)
	}

	for _, it := range low {
		n := alert.Notification{
			Receiver: alert.AdminReceiver,
			Title:    "Low stock alert",
			Message: fmt.Sprintf("Item %s is below minimum stock: current %s, minimum %s",
				it.Name, it.CurrentStock, it.MinimumStock),
			Link: fmt.Sprintf("/items/%s", it.ID),
		}
		if err := w.notifier.Notify(ctx, n); err != nil {
			w.log.Warnw("low stock notification failed", "item", it.Code, "error", err)
		}
	}

	if len(low) > 0 {
		w.log.Infow("low stock sweep finished", "items", len(low))
	}
	return nil
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
