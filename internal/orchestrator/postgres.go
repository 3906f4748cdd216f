package orchestrator

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Cdineshreddy12/Wrapper-sub003/internal/models"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/storage"
)

// PostgresPurchaseRepository is the postgres-backed PurchaseRepository, grounded on the
// same raw-SQL adapter style as internal/allocation and internal/ledger's postgres repos.
type PostgresPurchaseRepository struct{}

// NewPostgresPurchaseRepository constructs the postgres PurchaseRepository.
func NewPostgresPurchaseRepository() *PostgresPurchaseRepository { return &PostgresPurchaseRepository{} }

func (r *PostgresPurchaseRepository) InsertPurchase(u *storage.Unit, p models.CreditPurchase) error {
	_, err := u.Exec(`
		INSERT INTO credit_purchases
			(purchase_id, tenant_id, entity_id, credit_amount, unit_price, total_amount,
			 payment_method, status, external_session_id, requested_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.PurchaseID, p.TenantID, p.EntityID, p.CreditAmount.String(), p.UnitPrice.String(),
		p.TotalAmount.String(), p.PaymentMethod, p.Status, p.ExternalSessionID, p.RequestedBy)
	if err != nil {
		return fmt.Errorf("inserting credit purchase: %w", err)
	}

	return nil
}

func (r *PostgresPurchaseRepository) FindByExternalSessionID(u *storage.Unit, tenantID uuid.UUID, sessionID string) (*models.CreditPurchase, error) {
	row := u.QueryRow(`
		SELECT purchase_id, entity_id, credit_amount, unit_price, total_amount,
		       payment_method, status, requested_by, paid_at, credited_at
		FROM credit_purchases
		WHERE tenant_id = $1 AND external_session_id = $2
		FOR UPDATE`, tenantID, sessionID)

	p := models.CreditPurchase{TenantID: tenantID, ExternalSessionID: &sessionID}

	var creditAmount, unitPrice, totalAmount string

	err := row.Scan(&p.PurchaseID, &p.EntityID, &creditAmount, &unitPrice, &totalAmount,
		&p.PaymentMethod, &p.Status, &p.RequestedBy, &p.PaidAt, &p.CreditedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("scanning purchase for session %s: %w", sessionID, err)
	}

	if p.CreditAmount, err = decimal.NewFromString(creditAmount); err != nil {
		return nil, err
	}

	if p.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
		return nil, err
	}

	if p.TotalAmount, err = decimal.NewFromString(totalAmount); err != nil {
		return nil, err
	}

	return &p, nil
}

func (r *PostgresPurchaseRepository) MarkCompleted(u *storage.Unit, purchaseID uuid.UUID, creditedAt time.Time) error {
	_, err := u.Exec(`
		UPDATE credit_purchases
		SET status = $1, paid_at = COALESCE(paid_at, $2), credited_at = $2
		WHERE purchase_id = $3`, models.PurchaseCompleted, creditedAt, purchaseID)
	if err != nil {
		return fmt.Errorf("marking purchase %s completed: %w", purchaseID, err)
	}

	return nil
}
