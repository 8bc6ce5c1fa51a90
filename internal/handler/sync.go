package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/domain"
	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/ingest"
	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/logging"
	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/provider"
)

type movementImporter interface {
	ImportCardMovements(ctx context.Context, client provider.Client, cardID string, window provider.Window) (ingest.Result, error)
}

type SyncHandler struct {
	importer movementImporter
	clients  map[domain.Provider]provider.Client
}

func NewSyncHandler(importer movementImporter, clients []provider.Client) *SyncHandler {
	byProvider := make(map[domain.Provider]provider.Client, len(clients))
	for _, c := range clients {
		byProvider[c.Provider()] = c
	}
	return &SyncHandler{importer: importer, clients: byProvider}
}

type syncRequest struct {
	CardID string `json:"card_id"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// ImportMovements triggers an on-demand import of one card's movements for
// an explicit window. A provider fetch failure still reports the counters
// accumulated before the abort.
func (h *SyncHandler) ImportMovements(w http.ResponseWriter, r *http.Request) {
	client, ok := h.clients[domain.Provider(r.PathValue("provider"))]
	if !ok {
		RespondAppError(w, ErrInvalidProvider, nil)
		return
	}

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	var fields []FieldError
	if req.CardID == "" {
		fields = append(fields, FieldError{Field: "card_id", Message: "required"})
	}
	from, err := time.Parse(time.RFC3339, req.From)
	if err != nil {
		fields = append(fields, FieldError{Field: "from", Message: "must be RFC3339"})
	}
	to, err := time.Parse(time.RFC3339, req.To)
	if err != nil {
		fields = append(fields, FieldError{Field: "to", Message: "must be RFC3339"})
	}
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}
	if !to.After(from) {
		RespondAppError(w, ErrInvalidWindow, nil)
		return
	}

	res, err := h.importer.ImportCardMovements(r.Context(), client, req.CardID, provider.Window{Start: from, End: to})
	if err != nil {
		log := logging.FromContext(r.Context())
		log.Error("import aborted",
			"provider", client.Provider(),
			"card_id", req.CardID,
			"imported", res.Imported,
			"error", err,
		)
		RespondJSON(w, http.StatusBadGateway, APIResponse{
			Success: false,
			Data:    res,
			Error:   &APIError{Code: ErrProviderUnavailable.Code, Message: err.Error()},
		})
		return
	}

	RespondSuccess(w, http.StatusOK, res)
}
