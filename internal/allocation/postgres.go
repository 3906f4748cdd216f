package allocation

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Cdineshreddy12/Wrapper-sub003/internal/models"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/storage"
)

// PostgresRepository is the postgres-backed Repository implementation, using raw SQL
// over database/sql rather than an ORM.
type PostgresRepository struct{}

// NewPostgresRepository constructs the postgres Repository.
func NewPostgresRepository() *PostgresRepository { return &PostgresRepository{} }

func (r *PostgresRepository) InsertAllocation(u *storage.Unit, a models.SeasonalAllocation) error {
	_, err := u.Exec(`
		INSERT INTO seasonal_credit_allocations
			(allocation_id, tenant_id, entity_id, target_application, allocated_credits, used_credits,
			 expires_at, created_at, is_active, is_expired, credit_type, campaign_id, campaign_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.AllocationID, a.TenantID, a.EntityID, a.TargetApplication,
		a.AllocatedCredits.String(), a.UsedCredits.String(),
		a.ExpiresAt, a.CreatedAt, a.IsActive, a.IsExpired, a.CreditType, a.CampaignID, a.CampaignName)
	if err != nil {
		return fmt.Errorf("inserting seasonal allocation: %w", err)
	}

	return nil
}

func (r *PostgresRepository) ActiveAllocations(u *storage.Unit, tenantID, entityID uuid.UUID, targetApplication string) ([]models.SeasonalAllocation, error) {
	rows, err := u.Query(`
		SELECT allocation_id, target_application, allocated_credits, used_credits, expires_at,
		       created_at, is_active, is_expired, credit_type, campaign_id, campaign_name
		FROM seasonal_credit_allocations
		WHERE tenant_id = $1 AND entity_id = $2 AND is_active AND NOT is_expired
		  AND (target_application IS NULL OR target_application = $3)
		ORDER BY expires_at ASC, created_at ASC
		FOR UPDATE`, tenantID, entityID, targetApplication)
	if err != nil {
		return nil, fmt.Errorf("listing active allocations: %w", err)
	}
	defer rows.Close()

	var out []models.SeasonalAllocation

	for rows.Next() {
		a := models.SeasonalAllocation{TenantID: tenantID, EntityID: entityID}

		var allocated, used string

		if err := rows.Scan(&a.AllocationID, &a.TargetApplication, &allocated, &used, &a.ExpiresAt,
			&a.CreatedAt, &a.IsActive, &a.IsExpired, &a.CreditType, &a.CampaignID, &a.CampaignName); err != nil {
			return nil, fmt.Errorf("scanning allocation: %w", err)
		}

		if a.AllocatedCredits, err = decimal.NewFromString(allocated); err != nil {
			return nil, fmt.Errorf("parsing allocated_credits: %w", err)
		}

		if a.UsedCredits, err = decimal.NewFromString(used); err != nil {
			return nil, fmt.Errorf("parsing used_credits: %w", err)
		}

		out = append(out, a)
	}

	return out, rows.Err()
}

func (r *PostgresRepository) IncrementUsage(u *storage.Unit, allocationID uuid.UUID, delta decimal.Decimal) error {
	_, err := u.Exec(`
		UPDATE seasonal_credit_allocations
		SET used_credits = used_credits + $1
		WHERE allocation_id = $2`, delta.String(), allocationID)
	if err != nil {
		return fmt.Errorf("incrementing allocation usage: %w", err)
	}

	return nil
}

func (r *PostgresRepository) DueForExpiry(u *storage.Unit, asOf time.Time) ([]models.SeasonalAllocation, error) {
	rows, err := u.Query(`
		SELECT allocation_id, tenant_id, entity_id, target_application, allocated_credits, used_credits,
		       expires_at, created_at, credit_type, campaign_id, campaign_name
		FROM seasonal_credit_allocations
		WHERE is_active AND NOT is_expired AND expires_at <= $1
		ORDER BY expires_at ASC`, asOf)
	if err != nil {
		return nil, fmt.Errorf("listing allocations due for expiry: %w", err)
	}
	defer rows.Close()

	var out []models.SeasonalAllocation

	for rows.Next() {
		var a models.SeasonalAllocation

		var allocated, used string

		if err := rows.Scan(&a.AllocationID, &a.TenantID, &a.EntityID, &a.TargetApplication, &allocated, &used,
			&a.ExpiresAt, &a.CreatedAt, &a.CreditType, &a.CampaignID, &a.CampaignName); err != nil {
			return nil, fmt.Errorf("scanning due allocation: %w", err)
		}

		if a.AllocatedCredits, err = decimal.NewFromString(allocated); err != nil {
			return nil, fmt.Errorf("parsing allocated_credits: %w", err)
		}

		if a.UsedCredits, err = decimal.NewFromString(used); err != nil {
			return nil, fmt.Errorf("parsing used_credits: %w", err)
		}

		a.IsActive, a.IsExpired = true, false

		out = append(out, a)
	}

	return out, rows.Err()
}

func (r *PostgresRepository) MarkExpired(u *storage.Unit, allocationID uuid.UUID) error {
	res, err := u.Exec(`
		UPDATE seasonal_credit_allocations
		SET is_expired = true, is_active = false
		WHERE allocation_id = $1`, allocationID)
	if err != nil {
		return fmt.Errorf("marking allocation expired: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}

	if n == 0 {
		return fmt.Errorf("allocation %s: %w", allocationID, sql.ErrNoRows)
	}

	return nil
}
