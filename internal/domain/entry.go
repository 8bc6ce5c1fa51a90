package domain

import (
	"time"

	"github.com/google/uuid"
)

type Provider string

const (
	ProviderMercury    Provider = "mercury"
	ProviderCryptoMate Provider = "cryptomate"
	// ProviderManual marks entries created through the API rather than
	// imported from an external provider.
	ProviderManual Provider = "manual"
)

func (p Provider) IsValid() bool {
	switch p {
	case ProviderMercury, ProviderCryptoMate, ProviderManual:
		return true
	}
	return false
}

// LedgerEntry is the canonical, versioned record of a single card movement.
// Amount is always a non-negative magnitude in minor units; direction lives
// in IsCredit only.
type LedgerEntry struct {
	ID          string
	UserID      uuid.UUID
	CardID      string
	Description string
	UserName    string
	CardName    string
	AmountMinor int64
	IsCredit    bool
	Operation   OperationKind
	Provider    Provider

	// ParentMovementID links fee/child movements to the movement they
	// were charged against.
	ParentMovementID *string

	OccurredAt time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time

	Version   int64
	IsDeleted bool
	DeletedAt *time.Time
	DeletedBy *string

	Reconciled            bool
	ReconciledAt          *time.Time
	ReconciledBy          *string
	ReconciliationBatchID *string
}

type HistoryAction string

const (
	HistoryActionCreated  HistoryAction = "created"
	HistoryActionUpdated  HistoryAction = "updated"
	HistoryActionDeleted  HistoryAction = "deleted"
	HistoryActionRestored HistoryAction = "restored"
)

type FieldChange struct {
	Field string `json:"field"`
	Old   any    `json:"old"`
	New   any    `json:"new"`
}

// EntryHistory is one append-only audit record. An entry at version N has
// exactly N history rows, and the newest row carries version N.
type EntryHistory struct {
	ID           uuid.UUID
	EntryID      string
	Version      int64
	Action       HistoryAction
	FieldChanges []FieldChange
	Actor        string
	Reason       string
	CreatedAt    time.Time
}

// EntryChanges carries the requested new values for an update. Nil fields
// are left untouched; the store records history only for fields that
// actually differ from the current row.
type EntryChanges struct {
	Description           *string
	UserName              *string
	CardName              *string
	AmountMinor           *int64
	IsCredit              *bool
	Operation             *OperationKind
	OccurredAt            *time.Time
	Reconciled            *bool
	ReconciledBy          *string
	ReconciliationBatchID *string
}

// IsZero reports whether the update requests no fields at all.
func (c EntryChanges) IsZero() bool {
	return c.Description == nil && c.UserName == nil && c.CardName == nil &&
		c.AmountMinor == nil && c.IsCredit == nil && c.Operation == nil &&
		c.OccurredAt == nil && c.Reconciled == nil && c.ReconciledBy == nil &&
		c.ReconciliationBatchID == nil
}
