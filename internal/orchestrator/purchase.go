package orchestrator

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Cdineshreddy12/Wrapper-sub003/internal/models"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/storage"
)

// PurchaseRepository persists Credit Purchase rows.
type PurchaseRepository interface {
	InsertPurchase(u *storage.Unit, p models.CreditPurchase) error
	FindByExternalSessionID(u *storage.Unit, tenantID uuid.UUID, sessionID string) (*models.CreditPurchase, error)
	MarkCompleted(u *storage.Unit, purchaseID uuid.UUID, creditedAt time.Time) error
}

// PaymentGateway abstracts the external payment provider (Stripe or similar) behind a
// single opaque checkout-session call.
type PaymentGateway interface {
	CreateCheckoutSession(tenantID, entityID uuid.UUID, amount decimal.Decimal, paymentMethod string) (sessionID, checkoutURL string, err error)
}
