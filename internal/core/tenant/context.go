// Package tenant provides the request-scoped tenant context.
// Every ledger and reservation row is written under a Scope; the scope is an
// explicit context value threaded through the engine, never ambient state.
package tenant

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"stockcore/internal/core/id"
	"stockcore/internal/core/tx"
)

// Scope identifies who a read or write is performed for.
type Scope struct {
	CompanyID id.ID
	BranchID  id.ID
	UserID    string
}

// Context keys for tenant-related values.
type ctxKey int

const (
	poolKey ctxKey = iota
	txManagerKey
	scopeKey
)

// Errors for context operations.
var (
	ErrNoScopeInContext = errors.New("tenant scope not found in context")
	ErrNoPoolInContext  = errors.New("database pool not found in context")
	ErrNoTxManager      = errors.New("transaction manager not found in context")
)

// --- Pool ---

// WithPool stores database pool in context.
func WithPool(ctx context.Context, pool *pgxpool.Pool) context.Context {
	return context.WithValue(ctx, poolKey, pool)
}

// GetPool retrieves database pool from context.
func GetPool(ctx context.Context) (*pgxpool.Pool, error) {
	pool, ok := ctx.Value(poolKey).(*pgxpool.Pool)
	if !ok || pool == nil {
		return nil, ErrNoPoolInContext
	}
	return pool, nil
}

// --- TxManager ---

// WithTxManager stores TxManager in context.
func WithTxManager(ctx context.Context, txm tx.Manager) context.Context {
	return context.WithValue(ctx, txManagerKey, txm)
}

// GetTxManager retrieves TxManager from context.
func GetTxManager(ctx context.Context) (tx.Manager, error) {
	txm, ok := ctx.Value(txManagerKey).(tx.Manager)
	if !ok || txm == nil {
		return nil, ErrNoTxManager
	}
	return txm, nil
}

// MustGetTxManager retrieves TxManager or panics.
// Use in places where a missing TxManager is a programming error.
func MustGetTxManager(ctx context.Context) tx.Manager {
	txm, err := GetTxManager(ctx)
	if err != nil {
		panic("TxManager not in context: " + err.Error())
	}
	return txm
}

// --- Scope ---

// WithScope stores the tenant scope in context.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey, s)
}

// GetScope retrieves the tenant scope from context.
func GetScope(ctx context.Context) (Scope, error) {
	s, ok := ctx.Value(scopeKey).(Scope)
	if !ok {
		return Scope{}, ErrNoScopeInContext
	}
	return s, nil
}

// ScopeOrZero returns the scope or the zero value when none is set.
// Background jobs that operate across companies run with a zero scope.
func ScopeOrZero(ctx context.Context) Scope {
	s, _ := ctx.Value(scopeKey).(Scope)
	return s
}
