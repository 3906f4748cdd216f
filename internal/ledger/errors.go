package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Cdineshreddy12/Wrapper-sub003/internal/reliability"
)

// InsufficientCreditsError is returned by Debit/Transfer when the balance cannot cover
// the requested amount. It is a business outcome, never logged as an error.
type InsufficientCreditsError struct {
	Available decimal.Decimal
	Required  decimal.Decimal
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("%s: available=%s required=%s", reliability.ErrInsufficientCredits, e.Available, e.Required)
}

func (e *InsufficientCreditsError) Unwrap() error { return reliability.ErrInsufficientCredits }
