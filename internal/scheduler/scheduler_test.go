package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cdineshreddy12/Wrapper-sub003/internal/ledger"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/models"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/reliability"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/storage"
)

type fakeTenantRegistry struct{ ids []uuid.UUID }

func (f *fakeTenantRegistry) ActiveTenantIDs(context.Context) ([]uuid.UUID, error) { return f.ids, nil }

type fakeAllocationRepo struct {
	due     []models.SeasonalAllocation
	expired []uuid.UUID
}

func (f *fakeAllocationRepo) InsertAllocation(*storage.Unit, models.SeasonalAllocation) error {
	return nil
}

func (f *fakeAllocationRepo) ActiveAllocations(*storage.Unit, uuid.UUID, uuid.UUID, string) ([]models.SeasonalAllocation, error) {
	return nil, nil
}

func (f *fakeAllocationRepo) IncrementUsage(*storage.Unit, uuid.UUID, decimal.Decimal) error {
	return nil
}

func (f *fakeAllocationRepo) DueForExpiry(*storage.Unit, time.Time) ([]models.SeasonalAllocation, error) {
	return f.due, nil
}

func (f *fakeAllocationRepo) MarkExpired(_ *storage.Unit, allocationID uuid.UUID) error {
	f.expired = append(f.expired, allocationID)
	return nil
}

type fakeLedgerRepo struct {
	balances     map[uuid.UUID]models.CreditBalance
	transactions []models.CreditTransaction
}

func (f *fakeLedgerRepo) LockBalance(_ *storage.Unit, tenantID, entityID uuid.UUID) (models.CreditBalance, error) {
	if bal, ok := f.balances[entityID]; ok {
		return bal, nil
	}

	return models.CreditBalance{TenantID: tenantID, EntityID: entityID, AvailableCredits: decimal.Zero}, nil
}

func (f *fakeLedgerRepo) SaveBalance(_ *storage.Unit, bal models.CreditBalance) error {
	f.balances[bal.EntityID] = bal
	return nil
}

func (f *fakeLedgerRepo) InsertTransaction(_ *storage.Unit, tx models.CreditTransaction) error {
	f.transactions = append(f.transactions, tx)
	return nil
}

func (f *fakeLedgerRepo) FindByIdempotencyKey(*storage.Unit, uuid.UUID, uuid.UUID, string) (*models.CreditTransaction, error) {
	return nil, nil
}

type fakePublisher struct {
	published []string
}

func (f *fakePublisher) PublishEvent(_ context.Context, eventType, targetApplication string, _ uuid.UUID, _ *uuid.UUID, _ map[string]any, _ *uuid.UUID) (string, error) {
	f.published = append(f.published, eventType+":"+targetApplication)
	return "inter_1_abcdefgh", nil
}

func newSweepTestScheduler(t *testing.T, tenantID uuid.UUID, due []models.SeasonalAllocation, balance decimal.Decimal, entityID uuid.UUID) (*Scheduler, *fakeAllocationRepo, *fakeLedgerRepo, *fakePublisher, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gw := storage.NewGateway(db, nil, 0)

	allocRepo := &fakeAllocationRepo{due: due}
	ledgerRepo := &fakeLedgerRepo{balances: map[uuid.UUID]models.CreditBalance{
		entityID: {TenantID: tenantID, EntityID: entityID, AvailableCredits: balance},
	}}
	pub := &fakePublisher{}
	metrics := reliability.NewMetrics(prometheus.NewRegistry())

	s := New(gw, &fakeTenantRegistry{}, allocRepo, ledger.NewEngine(ledgerRepo, nil), pub, metrics, nil, time.Hour)

	return s, allocRepo, ledgerRepo, pub, mock, func() { db.Close() }
}

// TestSweepTenant_S4_ExpiryWithUnusedCredits mirrors the spec's S4 seed: a 100-credit
// allocation with 30 used expires while the balance (200) still includes the 70 unused.
func TestSweepTenant_S4_ExpiryWithUnusedCredits(t *testing.T) {
	tenantID, entityID, allocationID := uuid.New(), uuid.New(), uuid.New()

	due := []models.SeasonalAllocation{{
		AllocationID: allocationID, TenantID: tenantID, EntityID: entityID,
		AllocatedCredits: d("100"), UsedCredits: d("30"),
		ExpiresAt: time.Now().Add(-time.Second), CreatedAt: time.Now().Add(-time.Hour),
		IsActive: true,
	}}

	s, allocRepo, ledgerRepo, pub, mock, closeFn := newSweepTestScheduler(t, tenantID, due, d("200"), entityID)
	defer closeFn()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT set_config").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	s.sweepTenant(context.Background(), tenantID)

	require.NoError(t, mock.ExpectationsWereMet())
	assert.Contains(t, allocRepo.expired, allocationID)
	assert.True(t, ledgerRepo.balances[entityID].AvailableCredits.Equal(d("130")), "balance must drop by the 70 unused credits")
	require.Len(t, ledgerRepo.transactions, 1)
	assert.True(t, ledgerRepo.transactions[0].Amount.Equal(d("-70")))
	assert.Equal(t, models.TransactionExpiry, ledgerRepo.transactions[0].TransactionType)
	assert.Equal(t, fmt.Sprintf("credit_expiry:primary_org:%s", allocationID), ledgerRepo.transactions[0].OperationCode)
	assert.Equal(t, []string{"credit.expired:primary_org"}, pub.published)
}

func TestSweepTenant_NoDueAllocations_StillCommits(t *testing.T) {
	tenantID := uuid.New()

	s, _, _, pub, mock, closeFn := newSweepTestScheduler(t, tenantID, nil, decimal.Zero, uuid.New())
	defer closeFn()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT set_config").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	s.sweepTenant(context.Background(), tenantID)

	require.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, pub.published)
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestFailureRate(t *testing.T) {
	assert.InDelta(t, 0.0, failureRate(0, 0), 0.0001)
	assert.InDelta(t, 0.5, failureRate(1, 2), 0.0001)
	assert.InDelta(t, 0.1, failureRate(1, 10), 0.0001)
}
