// Package allocation is the Allocation Manager: seasonal/campaign bucket lifecycle
// creation, FIFO consumption, and the bookkeeping the Expiry Scheduler
// drives at finalization.
package allocation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Cdineshreddy12/Wrapper-sub003/internal/models"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/storage"
)

// Repository is the postgres-backed persistence the Manager drives within a Unit.
type Repository interface {
	InsertAllocation(u *storage.Unit, a models.SeasonalAllocation) error

	// ActiveAllocations returns non-expired, active allocations for (tenantID, entityID)
	// ordered FIFO by ExpiresAt then CreatedAt, filtered to those consumable by
	// targetApplication (allocations with a nil TargetApplication are consumable by any
	// application; allocations with a set TargetApplication only by that one).
	ActiveAllocations(u *storage.Unit, tenantID, entityID uuid.UUID, targetApplication string) ([]models.SeasonalAllocation, error)

	// IncrementUsage adds delta to an allocation's UsedCredits.
	IncrementUsage(u *storage.Unit, allocationID uuid.UUID, delta decimal.Decimal) error

	// DueForExpiry returns allocations with IsActive && !IsExpired && ExpiresAt <= asOf.
	DueForExpiry(u *storage.Unit, asOf time.Time) ([]models.SeasonalAllocation, error)

	// MarkExpired flips IsExpired=true, IsActive=false for allocationID.
	MarkExpired(u *storage.Unit, allocationID uuid.UUID) error
}
