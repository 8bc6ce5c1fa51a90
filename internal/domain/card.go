package domain

import (
	"time"

	"github.com/google/uuid"
)

type CardStatus string

const (
	CardStatusActive CardStatus = "active"
	CardStatusPaused CardStatus = "paused"
	CardStatusClosed CardStatus = "closed"
)

// Card is an issued card as known locally. ID is the provider's native card
// id. UserName is denormalized from the owning user so entry snapshots can
// be taken without a join at ingestion time.
type Card struct {
	ID           string
	UserID       uuid.UUID
	UserName     string
	Name         string
	Provider     Provider
	Status       CardStatus
	LastSyncedAt *time.Time
	Summary      CardBalanceSummary
	CreatedAt    time.Time
}

// CardBalanceSummary is the derived financial position of one card. It is a
// cache recomputed by full re-scan of the card's entries, never patched
// incrementally, so it cannot drift from the ledger.
type CardBalanceSummary struct {
	TotalDeposited      int64 `json:"total_deposited"`
	TotalRefunded       int64 `json:"total_refunded"`
	TotalPosted         int64 `json:"total_posted"`
	TotalReversed       int64 `json:"total_reversed"`
	TotalRejected       int64 `json:"total_rejected"`
	TotalPending        int64 `json:"total_pending"`
	TotalWithdrawn      int64 `json:"total_withdrawn"`
	Available           int64 `json:"available"`
	TotalAllEntries     int   `json:"total_all_entries"`
	TotalDeletedEntries int   `json:"total_deleted_entries"`
	DeletedAmount       int64 `json:"deleted_amount"`
}
