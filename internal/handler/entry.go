package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/auth"
	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/domain"
)

type ledgerStore interface {
	GetByID(ctx context.Context, id string) (*domain.LedgerEntry, error)
	GetByCard(ctx context.Context, cardID string, includeDeleted bool) ([]domain.LedgerEntry, error)
	Create(ctx context.Context, entry *domain.LedgerEntry, actor, reason string) error
	SoftDelete(ctx context.Context, id, actor, reason string) (*domain.LedgerEntry, error)
	Restore(ctx context.Context, id, actor, reason string) (*domain.LedgerEntry, error)
	GetHistory(ctx context.Context, entryID string) ([]domain.EntryHistory, error)
}

type cardReader interface {
	GetByID(ctx context.Context, id string) (*domain.Card, error)
}

type recomputer interface {
	RecomputeCardSummary(ctx context.Context, cardID string) (*domain.CardBalanceSummary, error)
}

type EntryHandler struct {
	entries ledgerStore
	cards   cardReader
	stats   recomputer
}

func NewEntryHandler(entries ledgerStore, cards cardReader, stats recomputer) *EntryHandler {
	return &EntryHandler{entries: entries, cards: cards, stats: stats}
}

func (h *EntryHandler) ListByCard(w http.ResponseWriter, r *http.Request) {
	cardID := r.PathValue("cardID")
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"

	entries, err := h.entries.GetByCard(r.Context(), cardID, includeDeleted)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"card_id": cardID,
		"entries": entries,
		"count":   len(entries),
	})
}

type createEntryRequest struct {
	Description string `json:"description"`
	Amount      string `json:"amount"`
	IsCredit    bool   `json:"is_credit"`
	Operation   string `json:"operation"`
	OccurredAt  string `json:"occurred_at"`
	Reason      string `json:"reason"`
}

func (r createEntryRequest) Validate() ([]FieldError, int64, time.Time) {
	var errs []FieldError

	var minor int64
	amount, err := decimal.NewFromString(r.Amount)
	switch {
	case r.Amount == "":
		errs = append(errs, FieldError{Field: "amount", Message: "required"})
	case err != nil:
		errs = append(errs, FieldError{Field: "amount", Message: "must be a decimal number"})
	case amount.IsNegative():
		errs = append(errs, FieldError{Field: "amount", Message: "must not be negative"})
	case !amount.Shift(2).IsInteger():
		errs = append(errs, FieldError{Field: "amount", Message: "must not have sub-cent precision"})
	default:
		minor = amount.Shift(2).IntPart()
	}

	switch domain.OperationKind(r.Operation) {
	case domain.OperationApproved, domain.OperationRejected, domain.OperationReversed,
		domain.OperationRefund, domain.OperationPending, domain.OperationCancelled,
		domain.OperationBlocked, domain.OperationDeposit, domain.OperationBalanceOverride,
		domain.OperationWithdrawal:
	default:
		errs = append(errs, FieldError{Field: "operation", Message: "unknown operation kind"})
	}

	var occurredAt time.Time
	if r.OccurredAt == "" {
		errs = append(errs, FieldError{Field: "occurred_at", Message: "required"})
	} else if occurredAt, err = time.Parse(time.RFC3339, r.OccurredAt); err != nil {
		errs = append(errs, FieldError{Field: "occurred_at", Message: "must be RFC3339"})
	}

	return errs, minor, occurredAt
}

// CreateManual records an operator-entered movement. It gets a locally
// generated id since there is no provider-native one.
func (h *EntryHandler) CreateManual(w http.ResponseWriter, r *http.Request) {
	cardID := r.PathValue("cardID")

	var req createEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	fields, minor, occurredAt := req.Validate()
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	card, err := h.cards.GetByID(r.Context(), cardID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	entry := &domain.LedgerEntry{
		ID:          uuid.NewString(),
		UserID:      card.UserID,
		CardID:      card.ID,
		Description: req.Description,
		UserName:    card.UserName,
		CardName:    card.Name,
		AmountMinor: minor,
		IsCredit:    req.IsCredit,
		Operation:   domain.OperationKind(req.Operation),
		Provider:    domain.ProviderManual,
		OccurredAt:  occurredAt,
	}

	actor := auth.ActorFromContext(r.Context())
	if err := h.entries.Create(r.Context(), entry, actor, req.Reason); err != nil {
		RespondDomainError(w, err)
		return
	}

	if _, err := h.stats.RecomputeCardSummary(r.Context(), card.ID); err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, entry)
}

type deleteRequest struct {
	Reason string `json:"reason"`
}

func (h *EntryHandler) SoftDelete(w http.ResponseWriter, r *http.Request) {
	h.setDeleted(w, r, true)
}

func (h *EntryHandler) Restore(w http.ResponseWriter, r *http.Request) {
	h.setDeleted(w, r, false)
}

func (h *EntryHandler) setDeleted(w http.ResponseWriter, r *http.Request, deleted bool) {
	entryID := r.PathValue("entryID")

	var req deleteRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			RespondAppError(w, ErrInvalidRequest, nil)
			return
		}
	}

	actor := auth.ActorFromContext(r.Context())

	var (
		entry *domain.LedgerEntry
		err   error
	)
	if deleted {
		entry, err = h.entries.SoftDelete(r.Context(), entryID, actor, req.Reason)
	} else {
		entry, err = h.entries.Restore(r.Context(), entryID, actor, req.Reason)
	}
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	if _, err := h.stats.RecomputeCardSummary(r.Context(), entry.CardID); err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, entry)
}

func (h *EntryHandler) History(w http.ResponseWriter, r *http.Request) {
	entryID := r.PathValue("entryID")

	// Confirm the entry exists so a bad id is a 404, not an empty list.
	if _, err := h.entries.GetByID(r.Context(), entryID); err != nil {
		RespondDomainError(w, err)
		return
	}

	history, err := h.entries.GetHistory(r.Context(), entryID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"entry_id": entryID,
		"history":  history,
	})
}
