// Package scheduler implements the Expiry Scheduler: a cooperative ticker that
// periodically sweeps seasonal allocations past their expiresAt, deducts whatever
// unused credits remain, and publishes a credit.expired event per allocation.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Cdineshreddy12/Wrapper-sub003/internal/allocation"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/ledger"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/mlog"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/models"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/reliability"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/storage"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/tenant"
)

// driftThreshold is the fraction of failed allocations in a single tick above which
// the tick as a whole raises reconciliation_drift.
const driftThreshold = 0.05

// UnitSource opens units of work bound to a tenant. *storage.Gateway satisfies this.
type UnitSource interface {
	BeginUnit(ctx context.Context, tc tenant.Context) (*storage.Unit, error)
}

// EventPublisher is the subset of the Broker Publisher the scheduler needs. Declared
// here, not imported from internal/broker, so the scheduler depends on its own narrow
// contract rather than the whole publisher surface.
type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType, targetApplication string, tenantID uuid.UUID, entityID *uuid.UUID, data map[string]any, publishedBy *uuid.UUID) (eventID string, err error)
}

// Scheduler sweeps due allocations and finalizes their expiry.
type Scheduler struct {
	units       UnitSource
	tenants     TenantRegistry
	allocations allocation.Repository
	ledger      *ledger.Engine
	publisher   EventPublisher
	metrics     *reliability.Metrics
	logger      mlog.Logger
	interval    time.Duration
}

// New constructs an Expiry Scheduler. A zero interval defaults to 60s.
func New(units UnitSource, tenants TenantRegistry, allocations allocation.Repository, ledgerEngine *ledger.Engine, publisher EventPublisher, metrics *reliability.Metrics, logger mlog.Logger, interval time.Duration) *Scheduler {
	if logger == nil {
		logger = &mlog.NoneLogger{}
	}

	if interval <= 0 {
		interval = 60 * time.Second
	}

	return &Scheduler{
		units: units, tenants: tenants, allocations: allocations,
		ledger: ledgerEngine, publisher: publisher, metrics: metrics,
		logger: logger, interval: interval,
	}
}

// Run blocks, ticking every s.interval until ctx is cancelled. One goroutine, one
// select loop — the scheduler never spawns per-tick goroutines.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick sweeps every active tenant once. It never returns an error: a tenant or
// allocation that fails is logged and counted, and the sweep continues.
func (s *Scheduler) tick(ctx context.Context) {
	tenantIDs, err := s.tenants.ActiveTenantIDs(ctx)
	if err != nil {
		s.logger.Error("listing active tenants for expiry sweep", "error", err)
		return
	}

	for _, tenantID := range tenantIDs {
		s.sweepTenant(ctx, tenantID)
	}
}

func (s *Scheduler) sweepTenant(ctx context.Context, tenantID uuid.UUID) {
	u, err := s.units.BeginUnit(ctx, tenant.System(tenantID))
	if err != nil {
		s.logger.Error("beginning expiry sweep unit", "tenant_id", tenantID, "error", err)
		return
	}
	defer func() { _ = u.Rollback() }()

	due, err := s.allocations.DueForExpiry(u, time.Now().UTC())
	if err != nil {
		s.logger.Error("listing allocations due for expiry", "tenant_id", tenantID, "error", err)
		return
	}

	if len(due) == 0 {
		_ = u.Commit()
		return
	}

	failed := 0

	for _, alloc := range due {
		if err := s.finalizeOne(u, tenantID, alloc); err != nil {
			failed++
			s.logger.Error("finalizing allocation expiry", "allocation_id", alloc.AllocationID, "error", err)
		}
	}

	if err := u.Commit(); err != nil {
		s.logger.Error("committing expiry sweep", "tenant_id", tenantID, "error", err)
		return
	}

	if failureRate(failed, len(due)) > driftThreshold {
		s.metrics.Record(reliability.FailureReconciliationDrift)
	}
}

// finalizeOne implements the per-allocation steps: mark expired,
// deduct the unused remainder through the Ledger Engine (best-effort, clamped), and
// publish the corresponding event — all within u.
func (s *Scheduler) finalizeOne(u *storage.Unit, tenantID uuid.UUID, alloc models.SeasonalAllocation) error {
	if err := s.allocations.MarkExpired(u, alloc.AllocationID); err != nil {
		return fmt.Errorf("marking allocation %s expired: %w", alloc.AllocationID, err)
	}

	unused := alloc.Remaining()

	if unused.Sign() > 0 {
		operationCode := fmt.Sprintf("credit_expiry:%s:%s", appOrDefault(alloc.TargetApplication), alloc.AllocationID)

		_, drifted, err := s.ledger.ApplyExpiryDeduction(u, tenantID, alloc.EntityID, unused, operationCode)
		if err != nil {
			return fmt.Errorf("applying expiry deduction for allocation %s: %w", alloc.AllocationID, err)
		}

		if drifted {
			s.metrics.Record(reliability.FailureReconciliationDrift)
			s.metrics.AllocationDriftTotal.Inc()
		}
	}

	s.metrics.ExpiredAllocations.Inc()

	entityID := alloc.EntityID
	if _, err := s.publisher.PublishEvent(u.Context(), "credit.expired", appOrDefault(alloc.TargetApplication), tenantID, &entityID,
		map[string]any{"allocationId": alloc.AllocationID, "unusedCredits": unused.String()}, nil); err != nil {
		s.logger.Error("publishing credit.expired event", "allocation_id", alloc.AllocationID, "error", err)
	}

	return nil
}

// appOrDefault is the one "no target application" token used everywhere an allocation's
// TargetApplication is nil, for both the expiry operationCode and the published event's
// targetApplication, so the same allocation never carries two different conventions.
func appOrDefault(targetApplication *string) string {
	if targetApplication == nil {
		return "primary_org"
	}

	return *targetApplication
}

// failureRate reports the fraction of due allocations that failed to finalize.
func failureRate(failed, total int) float64 {
	if total == 0 {
		return 0
	}

	return float64(failed) / float64(total)
}
