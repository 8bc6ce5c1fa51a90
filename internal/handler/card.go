package handler

import (
	"net/http"
)

type CardHandler struct {
	cards cardReader
	stats recomputer
}

func NewCardHandler(cards cardReader, stats recomputer) *CardHandler {
	return &CardHandler{cards: cards, stats: stats}
}

func (h *CardHandler) Get(w http.ResponseWriter, r *http.Request) {
	card, err := h.cards.GetByID(r.Context(), r.PathValue("cardID"))
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, card)
}

func (h *CardHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	card, err := h.cards.GetByID(r.Context(), r.PathValue("cardID"))
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, map[string]any{
		"card_id": card.ID,
		"summary": card.Summary,
	})
}

// RecomputeSummary forces a full re-scan recompute. Anything that used to be
// a "fix the stats" script is this endpoint now.
func (h *CardHandler) RecomputeSummary(w http.ResponseWriter, r *http.Request) {
	cardID := r.PathValue("cardID")

	if _, err := h.cards.GetByID(r.Context(), cardID); err != nil {
		RespondDomainError(w, err)
		return
	}

	summary, err := h.stats.RecomputeCardSummary(r.Context(), cardID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"card_id": cardID,
		"summary": summary,
	})
}
