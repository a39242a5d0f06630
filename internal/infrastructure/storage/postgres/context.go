package postgres

import (
	"context"
	"fmt"

	"stockcore/internal/core/tenant"
)

// MustGetTxManager returns the *postgres.TxManager from context. Only
// infrastructure code that needs GetQuerier()/GetTx() calls this; domain
// code depends on internal/core/tx.Manager.
func MustGetTxManager(ctx context.Context) *TxManager {
	txm := tenant.MustGetTxManager(ctx)
	pgTxm, ok := txm.(*TxManager)
	if !ok || pgTxm == nil {
		panic(fmt.Sprintf("TxManager in context has unexpected type: %T", txm))
	}
	return pgTxm
}
