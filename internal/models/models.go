// Package models holds the data model contracts of §3: Tenant, Entity, Credit Balance,
// Credit Transaction, Credit Purchase, Seasonal Allocation, Operation Config, and the
// Application/Module registry. Physical DDL is out of scope; these are the Go shapes
// the rest of the subsystem operates on.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TenantStatus is the lifecycle state of a Tenant.
type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
)

// Tenant is the root of isolation; every other entity carries a TenantID.
type Tenant struct {
	TenantID uuid.UUID
	Name     string
	Status   TenantStatus
}

// EntityType enumerates the kinds of node in an Entity forest.
type EntityType string

const (
	EntityOrganization EntityType = "organization"
	EntityBranch       EntityType = "branch"
	EntityDepartment   EntityType = "department"
)

// Entity is an organization or sub-organization within a tenant; the balance-carrying unit.
type Entity struct {
	EntityID       uuid.UUID
	TenantID       uuid.UUID
	EntityType     EntityType
	ParentEntityID *uuid.UUID
	EntityName     string
	IsActive       bool
	IsDefault      bool
	CreatedAt      time.Time
}

// CreditBalance is the single row per (TenantID, EntityID) tracking available credits.
// AvailableCredits must never go negative.
type CreditBalance struct {
	CreditID         uuid.UUID
	TenantID         uuid.UUID
	EntityID         uuid.UUID
	AvailableCredits decimal.Decimal
	ReservedCredits  decimal.Decimal
	IsActive         bool
	LastUpdatedAt    time.Time
}

// TransactionType enumerates the kinds of Credit Transaction (ledger) row.
type TransactionType string

const (
	TransactionPurchase    TransactionType = "purchase"
	TransactionConsumption TransactionType = "consumption"
	TransactionExpiry      TransactionType = "expiry"
	TransactionAllocation  TransactionType = "allocation"
	TransactionTransferIn  TransactionType = "transfer_in"
	TransactionTransferOut TransactionType = "transfer_out"
	TransactionAdjustment  TransactionType = "adjustment"
)

// CreditTransaction is one append-only ledger row. NewBalance - PreviousBalance must
// equal Amount, and rows for a given (TenantID, EntityID) chain: PreviousBalance of
// row n equals NewBalance of the prior row for the same key.
type CreditTransaction struct {
	TransactionID    uuid.UUID
	TenantID         uuid.UUID
	EntityID         uuid.UUID
	TransactionType  TransactionType
	Amount           decimal.Decimal
	PreviousBalance  decimal.Decimal
	NewBalance       decimal.Decimal
	OperationCode    string
	InitiatedBy      *uuid.UUID
	CreatedAt        time.Time
}

// PurchaseStatus is the lifecycle state of a Credit Purchase.
type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseCompleted PurchaseStatus = "completed"
	PurchaseFailed    PurchaseStatus = "failed"
	PurchaseRefunded  PurchaseStatus = "refunded"
)

// CreditPurchase tracks a credit-buying transaction through an external payment gateway.
// Exactly one purchase-typed Ledger row exists per completed purchase.
type CreditPurchase struct {
	PurchaseID       uuid.UUID
	TenantID         uuid.UUID
	EntityID         uuid.UUID
	CreditAmount     decimal.Decimal
	UnitPrice        decimal.Decimal
	TotalAmount      decimal.Decimal
	PaymentMethod    string
	Status           PurchaseStatus
	ExternalSessionID *string
	RequestedBy      uuid.UUID
	PaidAt           *time.Time
	CreditedAt       *time.Time
}

// CreditType enumerates the kind of time-bounded allocation bucket.
type CreditType string

const (
	CreditSeasonal        CreditType = "seasonal"
	CreditBonus           CreditType = "bonus"
	CreditPromotional     CreditType = "promotional"
	CreditEvent           CreditType = "event"
	CreditPartnership     CreditType = "partnership"
	CreditTrialExtension  CreditType = "trial_extension"
)

// SeasonalAllocation is a time-bounded, campaign-tagged bucket of credits that expires
// as a whole. 0 <= UsedCredits <= AllocatedCredits always, and IsExpired implies
// !IsActive.
type SeasonalAllocation struct {
	AllocationID      uuid.UUID
	TenantID          uuid.UUID
	EntityID          uuid.UUID
	TargetApplication *string
	AllocatedCredits  decimal.Decimal
	UsedCredits       decimal.Decimal
	ExpiresAt         time.Time
	CreatedAt         time.Time
	IsActive          bool
	IsExpired         bool
	CreditType        CreditType
	CampaignID        *string
	CampaignName      *string
}

// Remaining returns the unused portion of the allocation.
func (a SeasonalAllocation) Remaining() decimal.Decimal {
	return a.AllocatedCredits.Sub(a.UsedCredits)
}

// FreeAllowancePeriod enumerates the reset cadence of an Operation Config's free tier.
type FreeAllowancePeriod string

const (
	PeriodDay   FreeAllowancePeriod = "day"
	PeriodWeek  FreeAllowancePeriod = "week"
	PeriodMonth FreeAllowancePeriod = "month"
	PeriodYear  FreeAllowancePeriod = "year"
)

// VolumeTier is one step of a volume-discount schedule: at or above Threshold usage,
// Cost overrides the base cost.
type VolumeTier struct {
	Threshold int64
	Cost      decimal.Decimal
}

// OperationConfig prices one operation code, optionally scoped to a tenant or entity.
// Invariant OC-1: (operationCode, tenantID) with IsGlobal=false is unique; the global row
// per operationCode (IsGlobal=true, TenantID=nil) is unique.
type OperationConfig struct {
	ConfigID            uuid.UUID
	OperationCode       string
	TenantID            *uuid.UUID
	EntityID            *uuid.UUID
	IsGlobal            bool
	CreditCost          decimal.Decimal
	Unit                string
	UnitMultiplier      decimal.Decimal
	FreeAllowance       int64
	FreeAllowancePeriod FreeAllowancePeriod
	VolumeTiers         []VolumeTier
	AllowOverage        bool
	OverageLimit        *decimal.Decimal
	OverageCost         *decimal.Decimal
	IsActive            bool
	Priority            int
}

// Application is a registered downstream application silo (CRM, HR, ...).
type Application struct {
	AppID  uuid.UUID
	AppCode string
	Status string
}

// ApplicationModule groups the permission codes that make up one operation-pricing unit
// of an Application.
type ApplicationModule struct {
	ModuleID    uuid.UUID
	AppID       uuid.UUID
	ModuleCode  string
	Permissions []string
}
