package scheduler

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// TenantRegistry lists the tenants the Expiry Scheduler must sweep. Unlike allocation,
// ledger and balance rows, the tenants table itself carries no tenant_id column to
// filter on — it is the tenant registry, not tenant-scoped data — so listing it runs
// directly against the pool rather than through a tenant-bound Unit.
type TenantRegistry interface {
	ActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error)
}

// PostgresTenantRegistry is the postgres-backed TenantRegistry.
type PostgresTenantRegistry struct {
	db *sql.DB
}

// NewPostgresTenantRegistry constructs a TenantRegistry over db.
func NewPostgresTenantRegistry(db *sql.DB) *PostgresTenantRegistry {
	return &PostgresTenantRegistry{db: db}
}

func (r *PostgresTenantRegistry) ActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT tenant_id FROM tenants WHERE is_active`)
	if err != nil {
		return nil, fmt.Errorf("listing active tenants: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID

	for rows.Next() {
		var id uuid.UUID

		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning tenant id: %w", err)
		}

		out = append(out, id)
	}

	return out, rows.Err()
}
