// Package orchestrator composes the Config Resolver, Ledger Engine, Allocation Manager
// and Broker Publisher into the verbs downstream applications actually call, so no
// caller needs to sequence those components itself. Structured after a use-case layer
// that composes several single-purpose adapters behind one exported method per
// business verb.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Cdineshreddy12/Wrapper-sub003/internal/allocation"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/configresolver"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/ledger"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/mlog"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/models"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/reliability"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/storage"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/tenant"
)

// EventPublisher is the narrow slice of the Broker Publisher the Orchestrator needs.
type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType, targetApplication string, tenantID uuid.UUID, entityID *uuid.UUID, data map[string]any, publishedBy *uuid.UUID) (eventID string, err error)
}

// Orchestrator composes the Config Resolver, Ledger Engine, Allocation Manager and
// Broker Publisher behind a small set of credit-accounting verbs.
type Orchestrator struct {
	gateway    *storage.Gateway
	purchases  PurchaseRepository
	gatewayPay PaymentGateway
	resolver   *configresolver.Resolver
	ledger     *ledger.Engine
	allocs     *allocation.Manager
	publisher  EventPublisher
	logger     mlog.Logger
}

// New constructs an Orchestrator.
func New(gateway *storage.Gateway, purchases PurchaseRepository, gatewayPay PaymentGateway, resolver *configresolver.Resolver, ledgerEngine *ledger.Engine, allocs *allocation.Manager, publisher EventPublisher, logger mlog.Logger) *Orchestrator {
	if logger == nil {
		logger = &mlog.NoneLogger{}
	}

	return &Orchestrator{
		gateway: gateway, purchases: purchases, gatewayPay: gatewayPay,
		resolver: resolver, ledger: ledgerEngine, allocs: allocs,
		publisher: publisher, logger: logger,
	}
}

// PurchaseCreditsInput collects PurchaseCredits' parameters.
type PurchaseCreditsInput struct {
	EntityID      uuid.UUID
	CreditAmount  decimal.Decimal
	UnitPrice     decimal.Decimal
	PaymentMethod string
	RequestedBy   uuid.UUID
}

// PurchaseCredits inserts a pending Purchase row and, for a gateway-backed payment
// method, opens a checkout session whose URL is opaque to the caller. The Ledger write
// happens later, on webhook completion, in CompletePurchase.
func (o *Orchestrator) PurchaseCredits(ctx context.Context, tc tenant.Context, in PurchaseCreditsInput) (models.CreditPurchase, string, error) {
	u, err := o.gateway.BeginUnit(ctx, tc)
	if err != nil {
		return models.CreditPurchase{}, "", fmt.Errorf("beginning purchase unit: %w", err)
	}
	defer func() { _ = u.Rollback() }()

	purchase := models.CreditPurchase{
		PurchaseID:    uuid.New(),
		TenantID:      tc.TenantID,
		EntityID:      in.EntityID,
		CreditAmount:  in.CreditAmount,
		UnitPrice:     in.UnitPrice,
		TotalAmount:   in.CreditAmount.Mul(in.UnitPrice),
		PaymentMethod: in.PaymentMethod,
		Status:        models.PurchasePending,
		RequestedBy:   in.RequestedBy,
	}

	var checkoutURL string

	if o.gatewayPay != nil {
		sessionID, url, err := o.gatewayPay.CreateCheckoutSession(tc.TenantID, in.EntityID, purchase.TotalAmount, in.PaymentMethod)
		if err != nil {
			return models.CreditPurchase{}, "", fmt.Errorf("opening checkout session: %w", err)
		}

		purchase.ExternalSessionID = &sessionID
		checkoutURL = url
	}

	if err := o.purchases.InsertPurchase(u, purchase); err != nil {
		return models.CreditPurchase{}, "", fmt.Errorf("inserting purchase: %w", err)
	}

	if err := u.Commit(); err != nil {
		return models.CreditPurchase{}, "", fmt.Errorf("committing purchase: %w", err)
	}

	return purchase, checkoutURL, nil
}

// purchaseNotificationTargets is the fixed set of downstream applications notified of a
// completed purchase.
var purchaseNotificationTargets = []string{"crm", "operations"}

// CompletePurchase is invoked when the external gateway's webhook reports a completed
// session. It marks the Purchase row completed and credits the Ledger, idempotent on
// externalSessionID so a duplicate webhook delivery never double-credits.
func (o *Orchestrator) CompletePurchase(ctx context.Context, tc tenant.Context, externalSessionID, source string) (ledger.Receipt, error) {
	u, err := o.gateway.BeginUnit(ctx, tc)
	if err != nil {
		return ledger.Receipt{}, fmt.Errorf("beginning completion unit: %w", err)
	}
	defer func() { _ = u.Rollback() }()

	purchase, err := o.purchases.FindByExternalSessionID(u, tc.TenantID, externalSessionID)
	if err != nil {
		return ledger.Receipt{}, fmt.Errorf("looking up purchase %s: %w", externalSessionID, err)
	}

	if purchase == nil {
		return ledger.Receipt{}, fmt.Errorf("%w: no purchase for session %s", reliability.ErrEntityNotFound, externalSessionID)
	}

	receipt, err := o.ledger.Credit(u, tc.TenantID, purchase.EntityID, purchase.CreditAmount,
		models.TransactionPurchase, "purchase:"+source, nil, externalSessionID)
	if err != nil {
		return ledger.Receipt{}, fmt.Errorf("crediting purchase %s: %w", purchase.PurchaseID, err)
	}

	if purchase.Status != models.PurchaseCompleted {
		if err := o.purchases.MarkCompleted(u, purchase.PurchaseID, time.Now().UTC()); err != nil {
			return ledger.Receipt{}, fmt.Errorf("marking purchase %s completed: %w", purchase.PurchaseID, err)
		}

		entityID := purchase.EntityID
		u.AddPostCommitHook(func() {
			for _, target := range purchaseNotificationTargets {
				if _, err := o.publisher.PublishEvent(context.Background(), "credit.allocated", target, tc.TenantID, &entityID,
					map[string]any{"purchaseId": purchase.PurchaseID, "amount": purchase.CreditAmount.String(), "source": source}, &purchase.RequestedBy); err != nil {
					o.logger.Error("publishing credit.allocated event", "purchase_id", purchase.PurchaseID, "target", target, "error", err)
				}
			}
		})
	}

	if err := u.Commit(); err != nil {
		return ledger.Receipt{}, fmt.Errorf("committing purchase completion: %w", err)
	}

	return receipt, nil
}

// ConsumeCreditsInput collects ConsumeCredits' parameters.
type ConsumeCreditsInput struct {
	EntityID          uuid.UUID
	OperationCode     string
	Quantity          int64
	MonthToDateUsage  int64
	TargetApplication string
	InitiatedBy       *uuid.UUID
}

// ConsumeCreditsResult reports how a consumption was satisfied.
type ConsumeCreditsResult struct {
	Cost               decimal.Decimal
	CoveredByAlloc     decimal.Decimal
	DebitedFromGeneral decimal.Decimal
}

// ConsumeCredits resolves the operation's cost via the Config Resolver, draws first
// from the entity's applicable seasonal allocations, and falls back to the Ledger for
// any shortfall.
func (o *Orchestrator) ConsumeCredits(ctx context.Context, tc tenant.Context, in ConsumeCreditsInput) (ConsumeCreditsResult, error) {
	resolved, err := o.resolver.Resolve(ctx, tc.TenantID, &in.EntityID, in.OperationCode)
	if err != nil {
		return ConsumeCreditsResult{}, fmt.Errorf("resolving price for %s: %w", in.OperationCode, err)
	}

	cost := configresolver.Price(resolved.Config, in.Quantity, in.MonthToDateUsage)

	u, err := o.gateway.BeginUnit(ctx, tc)
	if err != nil {
		return ConsumeCreditsResult{}, fmt.Errorf("beginning consume unit: %w", err)
	}
	defer func() { _ = u.Rollback() }()

	result := ConsumeCreditsResult{Cost: cost}

	remaining := cost

	if in.TargetApplication != "" && o.allocs != nil {
		covered, err := o.allocs.ConsumeFromAllocations(u, tc.TenantID, in.EntityID, cost, in.TargetApplication, in.OperationCode)
		if err != nil {
			return ConsumeCreditsResult{}, fmt.Errorf("consuming from allocations: %w", err)
		}

		result.CoveredByAlloc = covered
		remaining = cost.Sub(covered)
	}

	if remaining.Sign() > 0 {
		if _, err := o.ledger.Debit(u, tc.TenantID, in.EntityID, remaining, in.OperationCode, in.InitiatedBy, ""); err != nil {
			return ConsumeCreditsResult{}, fmt.Errorf("debiting general balance: %w", err)
		}

		result.DebitedFromGeneral = remaining
	}

	entityID := in.EntityID
	u.AddPostCommitHook(func() {
		target := in.TargetApplication
		if target == "" {
			target = "operations"
		}

		if _, err := o.publisher.PublishEvent(context.Background(), "credit.consumed", target, tc.TenantID, &entityID,
			map[string]any{"operationCode": in.OperationCode, "cost": cost.String(), "coveredByAllocation": result.CoveredByAlloc.String()}, in.InitiatedBy); err != nil {
			o.logger.Error("publishing credit.consumed event", "operation_code", in.OperationCode, "error", err)
		}
	})

	if err := u.Commit(); err != nil {
		return ConsumeCreditsResult{}, fmt.Errorf("committing consumption: %w", err)
	}

	return result, nil
}

// AllocateToApplicationInput collects AllocateToApplication's parameters.
type AllocateToApplicationInput struct {
	SourceEntityID    uuid.UUID
	TargetApplication string
	Amount            decimal.Decimal
	CreditType        models.CreditType
	ExpiresAt         time.Time
	InitiatedBy       *uuid.UUID
}

// AllocateToApplication debits the source entity's general balance and opens a new
// application-scoped seasonal allocation for the same entity.
func (o *Orchestrator) AllocateToApplication(ctx context.Context, tc tenant.Context, in AllocateToApplicationInput) (models.SeasonalAllocation, error) {
	u, err := o.gateway.BeginUnit(ctx, tc)
	if err != nil {
		return models.SeasonalAllocation{}, fmt.Errorf("beginning allocation unit: %w", err)
	}
	defer func() { _ = u.Rollback() }()

	operationCode := "application_allocation:" + in.TargetApplication

	if _, err := o.ledger.Debit(u, tc.TenantID, in.SourceEntityID, in.Amount, operationCode, in.InitiatedBy, ""); err != nil {
		return models.SeasonalAllocation{}, fmt.Errorf("debiting source entity: %w", err)
	}

	alloc, _, err := o.allocs.CreateAllocation(u, allocation.CreateAllocationInput{
		TenantID:          tc.TenantID,
		EntityID:          in.SourceEntityID,
		Amount:            in.Amount,
		CreditType:        in.CreditType,
		TargetApplication: &in.TargetApplication,
		ExpiresAt:         in.ExpiresAt,
	})
	if err != nil {
		return models.SeasonalAllocation{}, fmt.Errorf("creating application allocation: %w", err)
	}

	entityID := in.SourceEntityID
	u.AddPostCommitHook(func() {
		if _, err := o.publisher.PublishEvent(context.Background(), "credit.allocated", in.TargetApplication, tc.TenantID, &entityID,
			map[string]any{"allocationId": alloc.AllocationID, "amount": in.Amount.String()}, in.InitiatedBy); err != nil {
			o.logger.Error("publishing credit.allocated event", "allocation_id", alloc.AllocationID, "error", err)
		}
	})

	if err := u.Commit(); err != nil {
		return models.SeasonalAllocation{}, fmt.Errorf("committing allocation: %w", err)
	}

	return alloc, nil
}

// TransferInput collects Transfer's parameters.
type TransferInput struct {
	FromEntityID uuid.UUID
	ToEntityID   uuid.UUID
	Amount       decimal.Decimal
	InitiatedBy  *uuid.UUID
}

// Transfer delegates to the Ledger Engine's deterministic dual-entry transfer. No event
// is published for a transfer — it moves balance between two entities the caller
// already controls, with nothing for a downstream application to react to.
func (o *Orchestrator) Transfer(ctx context.Context, tc tenant.Context, in TransferInput) (out, in2 ledger.Receipt, err error) {
	u, err := o.gateway.BeginUnit(ctx, tc)
	if err != nil {
		return ledger.Receipt{}, ledger.Receipt{}, fmt.Errorf("beginning transfer unit: %w", err)
	}
	defer func() { _ = u.Rollback() }()

	out, in2, err = o.ledger.Transfer(u, tc.TenantID, in.FromEntityID, in.ToEntityID, in.Amount, in.InitiatedBy)
	if err != nil {
		return ledger.Receipt{}, ledger.Receipt{}, fmt.Errorf("transferring: %w", err)
	}

	if err := u.Commit(); err != nil {
		return ledger.Receipt{}, ledger.Receipt{}, fmt.Errorf("committing transfer: %w", err)
	}

	return out, in2, nil
}
