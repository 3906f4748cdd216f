package allocation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Cdineshreddy12/Wrapper-sub003/internal/ledger"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/mlog"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/models"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/reliability"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/storage"
)

// Manager is the Allocation Manager.
type Manager struct {
	repo   Repository
	ledger *ledger.Engine
	logger mlog.Logger
}

// NewManager constructs an Allocation Manager over repo, driving balance mutations
// through ledgerEngine so the balance and ledger invariants stay enforced in exactly
// one place.
func NewManager(repo Repository, ledgerEngine *ledger.Engine, logger mlog.Logger) *Manager {
	if logger == nil {
		logger = &mlog.NoneLogger{}
	}

	return &Manager{repo: repo, ledger: ledgerEngine, logger: logger}
}

// CreateAllocationInput collects CreateAllocation's parameters.
type CreateAllocationInput struct {
	TenantID          uuid.UUID
	EntityID          uuid.UUID
	Amount            decimal.Decimal
	CreditType        models.CreditType
	TargetApplication *string
	CampaignID        *string
	CampaignName      *string
	ExpiresAt         time.Time
}

// CreateAllocation inserts a new seasonal allocation and credits its amount into the
// entity's general balance, both within u.
func (m *Manager) CreateAllocation(u *storage.Unit, in CreateAllocationInput) (models.SeasonalAllocation, ledger.Receipt, error) {
	if in.Amount.Sign() <= 0 {
		return models.SeasonalAllocation{}, ledger.Receipt{}, fmt.Errorf("%w: allocation amount must be positive", reliability.ErrInvalidAmount)
	}

	alloc := models.SeasonalAllocation{
		AllocationID:      uuid.New(),
		TenantID:          in.TenantID,
		EntityID:          in.EntityID,
		TargetApplication: in.TargetApplication,
		AllocatedCredits:  in.Amount,
		UsedCredits:       decimal.Zero,
		ExpiresAt:         in.ExpiresAt,
		CreatedAt:         time.Now().UTC(),
		IsActive:          true,
		CreditType:        in.CreditType,
		CampaignID:        in.CampaignID,
		CampaignName:      in.CampaignName,
	}

	if err := m.repo.InsertAllocation(u, alloc); err != nil {
		return models.SeasonalAllocation{}, ledger.Receipt{}, fmt.Errorf("inserting allocation: %w", err)
	}

	campaign := "uncampaigned"
	if in.CampaignID != nil {
		campaign = *in.CampaignID
	}

	receipt, err := m.ledger.Credit(u, in.TenantID, in.EntityID, in.Amount, models.TransactionAllocation,
		"seasonal_allocation:"+campaign, nil, "allocation:"+alloc.AllocationID.String())
	if err != nil {
		return models.SeasonalAllocation{}, ledger.Receipt{}, fmt.Errorf("crediting allocation amount: %w", err)
	}

	return alloc, receipt, nil
}

// ConsumeFromAllocations draws amount from the entity's applicable seasonal allocations
// in FIFO-by-ExpiresAt order (tie-broken by earliest CreatedAt), debiting the general
// balance through the Ledger Engine for the portion each allocation covers and
// incrementing that allocation's UsedCredits in the same Unit. It returns how much of
// amount was covered; any shortfall is left for the caller (the Orchestrator) to debit
// from the general balance directly.
func (m *Manager) ConsumeFromAllocations(u *storage.Unit, tenantID, entityID uuid.UUID, amount decimal.Decimal, targetApplication, operationCode string) (covered decimal.Decimal, err error) {
	if amount.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: consume amount must be positive", reliability.ErrInvalidAmount)
	}

	allocations, err := m.repo.ActiveAllocations(u, tenantID, entityID, targetApplication)
	if err != nil {
		return decimal.Zero, fmt.Errorf("listing active allocations: %w", err)
	}

	remaining := amount
	covered = decimal.Zero

	for _, alloc := range allocations {
		if remaining.Sign() <= 0 {
			break
		}

		if !allocationAppliesTo(alloc, operationCode) {
			continue
		}

		available := alloc.Remaining()
		if available.Sign() <= 0 {
			continue
		}

		draw := available
		if remaining.LessThan(available) {
			draw = remaining
		}

		if _, err := m.ledger.Debit(u, tenantID, entityID, draw, operationCode, nil, ""); err != nil {
			return covered, fmt.Errorf("debiting balance for allocation %s: %w", alloc.AllocationID, err)
		}

		if err := m.repo.IncrementUsage(u, alloc.AllocationID, draw); err != nil {
			return covered, fmt.Errorf("incrementing usage on allocation %s: %w", alloc.AllocationID, err)
		}

		remaining = remaining.Sub(draw)
		covered = covered.Add(draw)
	}

	return covered, nil
}

// allocationAppliesTo reports whether alloc may be drawn from by operationCode.
// Application-scoped allocations (TargetApplication != nil) can only be consumed by
// operations whose operationCode begins with that application code.
func allocationAppliesTo(alloc models.SeasonalAllocation, operationCode string) bool {
	if alloc.TargetApplication == nil {
		return true
	}

	return strings.HasPrefix(operationCode, *alloc.TargetApplication+".")
}
