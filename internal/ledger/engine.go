package ledger

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Cdineshreddy12/Wrapper-sub003/internal/assert"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/mlog"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/models"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/reliability"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/storage"
)

// Engine is the Ledger Engine. Every verb runs within one Unit supplied by the caller;
// the Engine never opens or commits a Unit itself, so callers (the Orchestrator, the
// Allocation Manager) can couple a ledger mutation with their own writes atomically.
type Engine struct {
	repo   Repository
	logger mlog.Logger
}

// NewEngine constructs a Ledger Engine over repo.
func NewEngine(repo Repository, logger mlog.Logger) *Engine {
	if logger == nil {
		logger = &mlog.NoneLogger{}
	}

	return &Engine{repo: repo, logger: logger}
}

// idempotencyOperationCode appends the idempotency key as a suffix so a replayed call
// resolves to the same ledger row.
func idempotencyOperationCode(operationCode, idempotencyKey string) string {
	if idempotencyKey == "" {
		return operationCode
	}

	return operationCode + "#idem:" + idempotencyKey
}

// Credit increases the balance of (tenantID, entityID) by amount (must be positive) and
// appends a matching ledger row. If idempotencyKey is non-empty and a prior transaction
// carrying it already exists, that Receipt is returned instead of writing again.
func (e *Engine) Credit(u *storage.Unit, tenantID, entityID uuid.UUID, amount decimal.Decimal, txType models.TransactionType, operationCode string, initiatedBy *uuid.UUID, idempotencyKey string) (Receipt, error) {
	if amount.Sign() <= 0 {
		return Receipt{}, fmt.Errorf("%w: credit amount must be positive, got %s", reliability.ErrInvalidAmount, amount)
	}

	code := idempotencyOperationCode(operationCode, idempotencyKey)

	if idempotencyKey != "" {
		if prior, err := e.repo.FindByIdempotencyKey(u, tenantID, entityID, code); err != nil {
			return Receipt{}, fmt.Errorf("checking idempotency: %w", err)
		} else if prior != nil {
			return Receipt{TransactionID: prior.TransactionID, Previous: prior.PreviousBalance, New: prior.NewBalance}, nil
		}
	}

	bal, err := e.repo.LockBalance(u, tenantID, entityID)
	if err != nil {
		return Receipt{}, fmt.Errorf("locking balance: %w", err)
	}

	return e.applyMutation(u, bal, amount, txType, code, initiatedBy)
}

// Debit decreases the balance of (tenantID, entityID) by amount (must be positive). If
// the available balance cannot cover amount, it returns *InsufficientCreditsError after
// locking the balance row and before any balance update or ledger row is written.
func (e *Engine) Debit(u *storage.Unit, tenantID, entityID uuid.UUID, amount decimal.Decimal, operationCode string, initiatedBy *uuid.UUID, idempotencyKey string) (Receipt, error) {
	if amount.Sign() <= 0 {
		return Receipt{}, fmt.Errorf("%w: debit amount must be positive, got %s", reliability.ErrInvalidAmount, amount)
	}

	code := idempotencyOperationCode(operationCode, idempotencyKey)

	if idempotencyKey != "" {
		if prior, err := e.repo.FindByIdempotencyKey(u, tenantID, entityID, code); err != nil {
			return Receipt{}, fmt.Errorf("checking idempotency: %w", err)
		} else if prior != nil {
			return Receipt{TransactionID: prior.TransactionID, Previous: prior.PreviousBalance, New: prior.NewBalance}, nil
		}
	}

	bal, err := e.repo.LockBalance(u, tenantID, entityID)
	if err != nil {
		return Receipt{}, fmt.Errorf("locking balance: %w", err)
	}

	if bal.AvailableCredits.LessThan(amount) {
		return Receipt{}, &InsufficientCreditsError{Available: bal.AvailableCredits, Required: amount}
	}

	return e.applyMutation(u, bal, amount.Neg(), models.TransactionConsumption, code, initiatedBy)
}

// Transfer moves amount from fromEntity to toEntity within the same tenant, writing a
// transfer_out row on the source and a transfer_in row on the destination, both in u.
// Balance rows are locked in deterministic (lexicographic entityID) order to prevent
// deadlocks against a concurrent transfer running in the opposite direction.
func (e *Engine) Transfer(u *storage.Unit, tenantID, fromEntity, toEntity uuid.UUID, amount decimal.Decimal, initiatedBy *uuid.UUID) (out, in Receipt, err error) {
	if amount.Sign() <= 0 {
		return Receipt{}, Receipt{}, fmt.Errorf("%w: transfer amount must be positive, got %s", reliability.ErrInvalidAmount, amount)
	}

	first, second := fromEntity, toEntity
	if second.String() < first.String() {
		first, second = second, first
	}

	locked := map[uuid.UUID]models.CreditBalance{}

	for _, id := range []uuid.UUID{first, second} {
		bal, lockErr := e.repo.LockBalance(u, tenantID, id)
		if lockErr != nil {
			return Receipt{}, Receipt{}, fmt.Errorf("locking balance %s: %w", id, lockErr)
		}

		locked[id] = bal
	}

	srcBal := locked[fromEntity]
	if srcBal.AvailableCredits.LessThan(amount) {
		return Receipt{}, Receipt{}, &InsufficientCreditsError{Available: srcBal.AvailableCredits, Required: amount}
	}

	out, err = e.applyMutation(u, srcBal, amount.Neg(), models.TransactionTransferOut, "transfer:"+toEntity.String(), initiatedBy)
	if err != nil {
		return Receipt{}, Receipt{}, fmt.Errorf("writing transfer_out: %w", err)
	}

	dstBal := locked[toEntity]

	in, err = e.applyMutation(u, dstBal, amount, models.TransactionTransferIn, "transfer:"+fromEntity.String(), initiatedBy)
	if err != nil {
		return Receipt{}, Receipt{}, fmt.Errorf("writing transfer_in: %w", err)
	}

	return out, in, nil
}

// applyMutation enforces the balance and ledger invariants and performs the
// balance+ledger write pair that
// every verb (Credit, Debit, Transfer's two legs) reduces to.
func (e *Engine) applyMutation(u *storage.Unit, bal models.CreditBalance, amount decimal.Decimal, txType models.TransactionType, operationCode string, initiatedBy *uuid.UUID) (Receipt, error) {
	previous := bal.AvailableCredits
	newBalance := previous.Add(amount)

	assert.That(newBalance.Sign() >= 0, "credit balance went negative", "entityID", bal.EntityID, "previous", previous, "amount", amount)

	bal.AvailableCredits = newBalance

	if err := e.repo.SaveBalance(u, bal); err != nil {
		return Receipt{}, fmt.Errorf("saving balance: %w", err)
	}

	txn := models.CreditTransaction{
		TransactionID:   uuid.New(),
		TenantID:        bal.TenantID,
		EntityID:        bal.EntityID,
		TransactionType: txType,
		Amount:          amount,
		PreviousBalance: previous,
		NewBalance:      newBalance,
		OperationCode:   operationCode,
		InitiatedBy:     initiatedBy,
	}

	assert.That(txn.NewBalance.Sub(txn.PreviousBalance).Equal(txn.Amount), "ledger transaction balance delta mismatch", "transactionID", txn.TransactionID)

	if err := e.repo.InsertTransaction(u, txn); err != nil {
		return Receipt{}, fmt.Errorf("inserting transaction: %w", err)
	}

	e.logger.Infof("ledger: %s %s on entity %s (%s -> %s)", txType, amount, bal.EntityID, previous, newBalance)

	return Receipt{TransactionID: txn.TransactionID, Previous: previous, New: newBalance}, nil
}

// ApplyExpiryDeduction is the best-effort expiry write path used exclusively by the
// Expiry Scheduler: it deducts min(unused, available) rather than failing
// outright, and reports whether the deduction had to be clamped (a reconciliation_drift
// signal) because unused exceeded the available balance.
func (e *Engine) ApplyExpiryDeduction(u *storage.Unit, tenantID, entityID uuid.UUID, unused decimal.Decimal, operationCode string) (receipt Receipt, drifted bool, err error) {
	if unused.Sign() <= 0 {
		return Receipt{}, false, nil
	}

	bal, err := e.repo.LockBalance(u, tenantID, entityID)
	if err != nil {
		return Receipt{}, false, fmt.Errorf("locking balance: %w", err)
	}

	deduct := unused
	if bal.AvailableCredits.LessThan(unused) {
		deduct = bal.AvailableCredits
		drifted = true
	}

	if deduct.Sign() == 0 {
		return Receipt{}, drifted, nil
	}

	receipt, err = e.applyMutation(u, bal, deduct.Neg(), models.TransactionExpiry, operationCode, nil)

	return receipt, drifted, err
}
