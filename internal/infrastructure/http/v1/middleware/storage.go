package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"stockcore/internal/core/tenant"
	"stockcore/internal/core/tx"
)

// Storage injects the transaction manager (and pool, when present) into
// the request context so repositories can resolve their querier.
func Storage(txm tx.Manager, pool *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := tenant.WithTxManager(c.Request.Context(), txm)
		if pool != nil {
			ctx = tenant.WithPool(ctx, pool)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
