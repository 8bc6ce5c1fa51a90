package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Movement is a raw provider transaction after the client has normalized
// status and parsed amounts, but before it becomes a LedgerEntry. Amount is
// signed and in major units; CardID may be empty for fee/child movements
// that only carry a parent reference.
type Movement struct {
	ID          string
	Provider    Provider
	Status      ProviderStatus
	Amount      decimal.Decimal
	Description string
	CardID      string
	ParentID    string
	OccurredAt  time.Time
}

func (m Movement) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("movement id required: %w", ErrValidation)
	}
	if m.Status == "" {
		return fmt.Errorf("movement %s: status required: %w", m.ID, ErrValidation)
	}
	if m.OccurredAt.IsZero() {
		return fmt.Errorf("movement %s: occurred_at required: %w", m.ID, ErrValidation)
	}
	return nil
}

// SignedMinor converts the signed major-unit amount to minor units. A
// fractional remainder below one cent means the provider sent an amount we
// cannot represent exactly, which is treated as malformed.
func (m Movement) SignedMinor() (int64, error) {
	minor := m.Amount.Shift(2)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("movement %s: amount %s has sub-cent precision: %w",
			m.ID, m.Amount, ErrValidation)
	}
	return minor.IntPart(), nil
}
