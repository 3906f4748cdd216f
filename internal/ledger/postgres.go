package ledger

import (
	"database/sql"
	"errors"
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

// LockBalance acquires SELECT ... FOR UPDATE, creating a zero-balance row on first touch.
func (r *PostgresRepository) LockBalance(u *storage.Unit, tenantID, entityID uuid.UUID) (models.CreditBalance, error) {
	row := u.QueryRow(`
		SELECT credit_id, available_credits, reserved_credits, is_active, last_updated_at
		FROM credit_balances
		WHERE tenant_id = $1 AND entity_id = $2
		FOR UPDATE`, tenantID, entityID)

	var bal models.CreditBalance

	bal.TenantID, bal.EntityID = tenantID, entityID

	var available, reserved string

	err := row.Scan(&bal.CreditID, &available, &reserved, &bal.IsActive, &bal.LastUpdatedAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		bal = models.CreditBalance{
			CreditID: uuid.New(), TenantID: tenantID, EntityID: entityID,
			AvailableCredits: decimal.Zero, ReservedCredits: decimal.Zero, IsActive: true,
		}

		_, err := u.Exec(`
			INSERT INTO credit_balances (credit_id, tenant_id, entity_id, available_credits, reserved_credits, is_active, last_updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now())`,
			bal.CreditID, bal.TenantID, bal.EntityID, bal.AvailableCredits.String(), bal.ReservedCredits.String(), bal.IsActive)
		if err != nil {
			return models.CreditBalance{}, fmt.Errorf("creating balance row: %w", err)
		}

		return bal, nil
	case err != nil:
		return models.CreditBalance{}, fmt.Errorf("locking balance row: %w", err)
	}

	bal.AvailableCredits, err = decimal.NewFromString(available)
	if err != nil {
		return models.CreditBalance{}, fmt.Errorf("parsing available_credits: %w", err)
	}

	bal.ReservedCredits, err = decimal.NewFromString(reserved)
	if err != nil {
		return models.CreditBalance{}, fmt.Errorf("parsing reserved_credits: %w", err)
	}

	return bal, nil
}

// SaveBalance persists the post-mutation balance row.
func (r *PostgresRepository) SaveBalance(u *storage.Unit, bal models.CreditBalance) error {
	_, err := u.Exec(`
		UPDATE credit_balances
		SET available_credits = $1, reserved_credits = $2, last_updated_at = now()
		WHERE tenant_id = $3 AND entity_id = $4`,
		bal.AvailableCredits.String(), bal.ReservedCredits.String(), bal.TenantID, bal.EntityID)
	if err != nil {
		return fmt.Errorf("saving balance: %w", err)
	}

	return nil
}

// InsertTransaction appends one append-only ledger row.
func (r *PostgresRepository) InsertTransaction(u *storage.Unit, tx models.CreditTransaction) error {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	_, err := u.Exec(`
		INSERT INTO credit_transactions
			(transaction_id, tenant_id, entity_id, transaction_type, amount, previous_balance, new_balance, operation_code, initiated_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		tx.TransactionID, tx.TenantID, tx.EntityID, tx.TransactionType,
		tx.Amount.String(), tx.PreviousBalance.String(), tx.NewBalance.String(),
		tx.OperationCode, tx.InitiatedBy, tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting transaction: %w", err)
	}

	return nil
}

// FindByIdempotencyKey looks up a prior transaction row carrying the given operation code.
func (r *PostgresRepository) FindByIdempotencyKey(u *storage.Unit, tenantID, entityID uuid.UUID, key string) (*models.CreditTransaction, error) {
	row := u.QueryRow(`
		SELECT transaction_id, transaction_type, amount, previous_balance, new_balance, operation_code, initiated_by, created_at
		FROM credit_transactions
		WHERE tenant_id = $1 AND entity_id = $2 AND operation_code = $3
		ORDER BY created_at DESC
		LIMIT 1`, tenantID, entityID, key)

	var (
		tx                                     models.CreditTransaction
		amount, previousBalance, newBalance    string
	)

	tx.TenantID, tx.EntityID = tenantID, entityID

	err := row.Scan(&tx.TransactionID, &tx.TransactionType, &amount, &previousBalance, &newBalance, &tx.OperationCode, &tx.InitiatedBy, &tx.CreatedAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("finding transaction by idempotency key: %w", err)
	}

	tx.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parsing amount: %w", err)
	}

	tx.PreviousBalance, err = decimal.NewFromString(previousBalance)
	if err != nil {
		return nil, fmt.Errorf("parsing previous_balance: %w", err)
	}

	tx.NewBalance, err = decimal.NewFromString(newBalance)
	if err != nil {
		return nil, fmt.Errorf("parsing new_balance: %w", err)
	}

	return &tx, nil
}
