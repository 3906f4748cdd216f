package configresolver

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Cdineshreddy12/Wrapper-sub003/internal/models"
)

// PostgresRepository is the postgres-backed Repository. Operation Config lookups read
// directly against the pool rather than through a tenant-bound Unit: resolving a price
// is a plain lookup, not a mutation that needs row-level security or a transaction.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository constructs a Repository over db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) FindEntityConfig(ctx context.Context, tenantID, entityID uuid.UUID, operationCode string) (*models.OperationConfig, error) {
	return r.findOne(ctx, `
		SELECT config_id, operation_code, tenant_id, entity_id, is_global, credit_cost, unit,
		       unit_multiplier, free_allowance, free_allowance_period, volume_tiers,
		       allow_overage, overage_limit, overage_cost, is_active, priority
		FROM operation_configs
		WHERE tenant_id = $1 AND entity_id = $2 AND operation_code = $3 AND is_active
		ORDER BY priority DESC LIMIT 1`, tenantID, entityID, operationCode)
}

func (r *PostgresRepository) FindTenantConfig(ctx context.Context, tenantID uuid.UUID, operationCode string) (*models.OperationConfig, error) {
	return r.findOne(ctx, `
		SELECT config_id, operation_code, tenant_id, entity_id, is_global, credit_cost, unit,
		       unit_multiplier, free_allowance, free_allowance_period, volume_tiers,
		       allow_overage, overage_limit, overage_cost, is_active, priority
		FROM operation_configs
		WHERE tenant_id = $1 AND entity_id IS NULL AND operation_code = $2 AND is_active
		ORDER BY priority DESC LIMIT 1`, tenantID, operationCode)
}

func (r *PostgresRepository) FindGlobalConfig(ctx context.Context, operationCode string) (*models.OperationConfig, error) {
	return r.findOne(ctx, `
		SELECT config_id, operation_code, tenant_id, entity_id, is_global, credit_cost, unit,
		       unit_multiplier, free_allowance, free_allowance_period, volume_tiers,
		       allow_overage, overage_limit, overage_cost, is_active, priority
		FROM operation_configs
		WHERE is_global AND operation_code = $1 AND is_active
		ORDER BY priority DESC LIMIT 1`, operationCode)
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, args ...any) (*models.OperationConfig, error) {
	row := r.db.QueryRowContext(ctx, query, args...)

	var (
		cfg                        models.OperationConfig
		creditCost, unitMultiplier string
		overageLimit, overageCost  sql.NullString
		volumeTiersJSON            []byte
	)

	err := row.Scan(&cfg.ConfigID, &cfg.OperationCode, &cfg.TenantID, &cfg.EntityID, &cfg.IsGlobal,
		&creditCost, &cfg.Unit, &unitMultiplier, &cfg.FreeAllowance, &cfg.FreeAllowancePeriod,
		&volumeTiersJSON, &cfg.AllowOverage, &overageLimit, &overageCost, &cfg.IsActive, &cfg.Priority)
	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("scanning operation config: %w", err)
	}

	if cfg.CreditCost, err = decimal.NewFromString(creditCost); err != nil {
		return nil, fmt.Errorf("parsing credit_cost: %w", err)
	}

	if cfg.UnitMultiplier, err = decimal.NewFromString(unitMultiplier); err != nil {
		return nil, fmt.Errorf("parsing unit_multiplier: %w", err)
	}

	if len(volumeTiersJSON) > 0 {
		if err := json.Unmarshal(volumeTiersJSON, &cfg.VolumeTiers); err != nil {
			return nil, fmt.Errorf("parsing volume_tiers: %w", err)
		}
	}

	if overageLimit.Valid {
		v, err := decimal.NewFromString(overageLimit.String)
		if err != nil {
			return nil, fmt.Errorf("parsing overage_limit: %w", err)
		}

		cfg.OverageLimit = &v
	}

	if overageCost.Valid {
		v, err := decimal.NewFromString(overageCost.String)
		if err != nil {
			return nil, fmt.Errorf("parsing overage_cost: %w", err)
		}

		cfg.OverageCost = &v
	}

	return &cfg, nil
}

// OperationCodesForModule joins the module's permission list with its owning
// application's appCode, unnesting the module's permissions array into one
// operationCode per permission.
func (r *PostgresRepository) OperationCodesForModule(ctx context.Context, moduleCode string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.app_code || '.' || m.module_code || '.' || perm
		FROM application_modules m
		JOIN applications a ON a.app_id = m.app_id
		CROSS JOIN LATERAL unnest(m.permissions) AS perm
		WHERE m.module_code = $1`, moduleCode)
	if err != nil {
		return nil, fmt.Errorf("listing operation codes for module %s: %w", moduleCode, err)
	}
	defer rows.Close()

	var codes []string

	for rows.Next() {
		var code string

		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scanning operation code: %w", err)
		}

		codes = append(codes, code)
	}

	return codes, rows.Err()
}
