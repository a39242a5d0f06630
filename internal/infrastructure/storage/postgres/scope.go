package postgres

import (
	"context"

	"github.com/Masterminds/squirrel"

	"stockcore/internal/core/id"
	"stockcore/internal/core/tenant"
)

// scopedSelect narrows a query to the calling tenant's company. Background
// jobs run without a scope and see every company.
func scopedSelect(ctx context.Context, q squirrel.SelectBuilder) squirrel.SelectBuilder {
	if scope := tenant.ScopeOrZero(ctx); !id.IsNil(scope.CompanyID) {
		q = q.Where(squirrel.Eq{"company_id": scope.CompanyID})
	}
	return q
}

// scopedUpdate narrows an update the same way, so a tenant can never mutate
// another company's rows even with a known id.
func scopedUpdate(ctx context.Context, q squirrel.UpdateBuilder) squirrel.UpdateBuilder {
	if scope := tenant.ScopeOrZero(ctx); !id.IsNil(scope.CompanyID) {
		q = q.Where(squirrel.Eq{"company_id": scope.CompanyID})
	}
	return q
}
