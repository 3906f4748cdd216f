// Package ledger is the Ledger Engine: atomic balance mutation, transactional coupling
// between balance and transaction records.
package ledger

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Cdineshreddy12/Wrapper-sub003/internal/models"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/storage"
)

// Repository is the postgres-backed persistence the Engine drives within a Unit. It is
// an interface so the Engine's invariant logic is testable with a fake, the way the
// teacher tests its command layer against mocked adapters.
type Repository interface {
	// LockBalance acquires SELECT ... FOR UPDATE on the (tenantID, entityID) balance row,
	// lazily creating it with a zero balance if none exists yet.
	LockBalance(u *storage.Unit, tenantID, entityID uuid.UUID) (models.CreditBalance, error)

	// SaveBalance persists the post-mutation balance.
	SaveBalance(u *storage.Unit, bal models.CreditBalance) error

	// InsertTransaction appends one ledger row.
	InsertTransaction(u *storage.Unit, tx models.CreditTransaction) error

	// FindByIdempotencyKey looks up a prior transaction row recorded under the same
	// (tenantID, entityID, idempotencyKey), or returns nil if none exists.
	FindByIdempotencyKey(u *storage.Unit, tenantID, entityID uuid.UUID, key string) (*models.CreditTransaction, error)
}

// Receipt is returned by every successful Ledger verb.
type Receipt struct {
	TransactionID uuid.UUID
	Previous      decimal.Decimal
	New           decimal.Decimal
}
