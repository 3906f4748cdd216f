package allocation

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cdineshreddy12/Wrapper-sub003/internal/ledger"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/models"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/storage"
)

// fakeLedgerRepo backs a real ledger.Engine so the Manager exercises true invariant
// enforcement rather than a stub.
type fakeLedgerRepo struct {
	balances     map[uuid.UUID]models.CreditBalance
	transactions []models.CreditTransaction
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{balances: map[uuid.UUID]models.CreditBalance{}}
}

func (f *fakeLedgerRepo) LockBalance(_ *storage.Unit, tenantID, entityID uuid.UUID) (models.CreditBalance, error) {
	if bal, ok := f.balances[entityID]; ok {
		return bal, nil
	}

	bal := models.CreditBalance{CreditID: uuid.New(), TenantID: tenantID, EntityID: entityID, AvailableCredits: decimal.Zero}
	f.balances[entityID] = bal

	return bal, nil
}

func (f *fakeLedgerRepo) SaveBalance(_ *storage.Unit, bal models.CreditBalance) error {
	f.balances[bal.EntityID] = bal
	return nil
}

func (f *fakeLedgerRepo) InsertTransaction(_ *storage.Unit, tx models.CreditTransaction) error {
	f.transactions = append(f.transactions, tx)
	return nil
}

func (f *fakeLedgerRepo) FindByIdempotencyKey(_ *storage.Unit, tenantID, entityID uuid.UUID, key string) (*models.CreditTransaction, error) {
	for i := range f.transactions {
		tx := f.transactions[i]
		if tx.TenantID == tenantID && tx.EntityID == entityID && tx.OperationCode == key {
			return &tx, nil
		}
	}

	return nil, nil
}

// fakeAllocationRepo is an in-memory Repository for the Allocation Manager.
type fakeAllocationRepo struct {
	allocations map[uuid.UUID]*models.SeasonalAllocation
}

func newFakeAllocationRepo() *fakeAllocationRepo {
	return &fakeAllocationRepo{allocations: map[uuid.UUID]*models.SeasonalAllocation{}}
}

func (f *fakeAllocationRepo) InsertAllocation(_ *storage.Unit, a models.SeasonalAllocation) error {
	cp := a
	f.allocations[a.AllocationID] = &cp

	return nil
}

func (f *fakeAllocationRepo) ActiveAllocations(_ *storage.Unit, tenantID, entityID uuid.UUID, targetApplication string) ([]models.SeasonalAllocation, error) {
	var out []models.SeasonalAllocation

	for _, a := range f.allocations {
		if a.TenantID != tenantID || a.EntityID != entityID || !a.IsActive || a.IsExpired {
			continue
		}

		if a.TargetApplication != nil && *a.TargetApplication != targetApplication {
			continue
		}

		out = append(out, *a)
	}

	// FIFO by ExpiresAt then CreatedAt, mirroring the postgres ORDER BY clause.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].ExpiresAt.Before(out[i].ExpiresAt) ||
				(out[j].ExpiresAt.Equal(out[i].ExpiresAt) && out[j].CreatedAt.Before(out[i].CreatedAt)) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}

	return out, nil
}

func (f *fakeAllocationRepo) IncrementUsage(_ *storage.Unit, allocationID uuid.UUID, delta decimal.Decimal) error {
	f.allocations[allocationID].UsedCredits = f.allocations[allocationID].UsedCredits.Add(delta)
	return nil
}

func (f *fakeAllocationRepo) DueForExpiry(_ *storage.Unit, asOf time.Time) ([]models.SeasonalAllocation, error) {
	var out []models.SeasonalAllocation

	for _, a := range f.allocations {
		if a.IsActive && !a.IsExpired && !a.ExpiresAt.After(asOf) {
			out = append(out, *a)
		}
	}

	return out, nil
}

func (f *fakeAllocationRepo) MarkExpired(_ *storage.Unit, allocationID uuid.UUID) error {
	f.allocations[allocationID].IsExpired = true
	f.allocations[allocationID].IsActive = false

	return nil
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateAllocation_CreditsBalance(t *testing.T) {
	ledgerRepo := newFakeLedgerRepo()
	allocRepo := newFakeAllocationRepo()
	mgr := NewManager(allocRepo, ledger.NewEngine(ledgerRepo, nil), nil)

	tenantID, entityID := uuid.New(), uuid.New()
	campaign := "summer2026"

	alloc, receipt, err := mgr.CreateAllocation(nil, CreateAllocationInput{
		TenantID: tenantID, EntityID: entityID, Amount: d("100"),
		CreditType: models.CreditSeasonal, CampaignID: &campaign,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)

	assert.True(t, receipt.New.Equal(d("100")))
	assert.True(t, ledgerRepo.balances[entityID].AvailableCredits.Equal(d("100")))
	assert.False(t, alloc.IsExpired)
	assert.True(t, alloc.IsActive)
}

// TestConsumeFromAllocations_FIFOOrderAndPartialDraw draws 25 from two unused buckets
// (20 and 30): the earlier-expiring one is drained first, the rest comes from the later one.
func TestConsumeFromAllocations_FIFOOrderAndPartialDraw(t *testing.T) {
	ledgerRepo := newFakeLedgerRepo()
	allocRepo := newFakeAllocationRepo()
	engine := ledger.NewEngine(ledgerRepo, nil)
	mgr := NewManager(allocRepo, engine, nil)

	tenantID, entityID := uuid.New(), uuid.New()
	ledgerRepo.balances[entityID] = models.CreditBalance{TenantID: tenantID, EntityID: entityID, AvailableCredits: d("50")}

	earlyExpiring := models.SeasonalAllocation{
		AllocationID: uuid.New(), TenantID: tenantID, EntityID: entityID,
		AllocatedCredits: d("20"), UsedCredits: d("0"), IsActive: true,
		ExpiresAt: time.Now().Add(1 * time.Hour), CreatedAt: time.Now(),
	}
	lateExpiring := models.SeasonalAllocation{
		AllocationID: uuid.New(), TenantID: tenantID, EntityID: entityID,
		AllocatedCredits: d("30"), UsedCredits: d("0"), IsActive: true,
		ExpiresAt: time.Now().Add(10 * time.Hour), CreatedAt: time.Now(),
	}
	require.NoError(t, allocRepo.InsertAllocation(nil, earlyExpiring))
	require.NoError(t, allocRepo.InsertAllocation(nil, lateExpiring))

	covered, err := mgr.ConsumeFromAllocations(nil, tenantID, entityID, d("25"), "crm", "crm.leads.create")
	require.NoError(t, err)
	assert.True(t, covered.Equal(d("25")))

	assert.True(t, allocRepo.allocations[earlyExpiring.AllocationID].UsedCredits.Equal(d("20")), "earlier-expiring bucket drained first")
	assert.True(t, allocRepo.allocations[lateExpiring.AllocationID].UsedCredits.Equal(d("5")), "remainder drawn from later bucket")
	assert.True(t, ledgerRepo.balances[entityID].AvailableCredits.Equal(d("25")))
}

func TestConsumeFromAllocations_ApplicationScopedGating(t *testing.T) {
	ledgerRepo := newFakeLedgerRepo()
	allocRepo := newFakeAllocationRepo()
	mgr := NewManager(allocRepo, ledger.NewEngine(ledgerRepo, nil), nil)

	tenantID, entityID := uuid.New(), uuid.New()
	ledgerRepo.balances[entityID] = models.CreditBalance{TenantID: tenantID, EntityID: entityID, AvailableCredits: d("50")}

	hr := "hr"
	hrOnly := models.SeasonalAllocation{
		AllocationID: uuid.New(), TenantID: tenantID, EntityID: entityID,
		TargetApplication: &hr, AllocatedCredits: d("50"), UsedCredits: d("0"),
		IsActive: true, ExpiresAt: time.Now().Add(time.Hour), CreatedAt: time.Now(),
	}
	require.NoError(t, allocRepo.InsertAllocation(nil, hrOnly))

	covered, err := mgr.ConsumeFromAllocations(nil, tenantID, entityID, d("10"), "crm", "crm.leads.create")
	require.NoError(t, err)
	assert.True(t, covered.IsZero(), "HR-scoped allocation must not be drawn from for a CRM operation")
}

func TestConsumeFromAllocations_NoApplicableAllocationsReturnsZeroCovered(t *testing.T) {
	ledgerRepo := newFakeLedgerRepo()
	allocRepo := newFakeAllocationRepo()
	mgr := NewManager(allocRepo, ledger.NewEngine(ledgerRepo, nil), nil)

	tenantID, entityID := uuid.New(), uuid.New()

	covered, err := mgr.ConsumeFromAllocations(nil, tenantID, entityID, d("10"), "crm", "crm.leads.create")
	require.NoError(t, err)
	assert.True(t, covered.IsZero())
}
