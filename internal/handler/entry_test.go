package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/auth"
	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/domain"
)

type mockLedgerStore struct {
	entries map[string]*domain.LedgerEntry
	history map[string][]domain.EntryHistory

	created     *domain.LedgerEntry
	createActor string
	deleted     []string
	restored    []string
	err         error
}

func newMockLedgerStore() *mockLedgerStore {
	return &mockLedgerStore{
		entries: make(map[string]*domain.LedgerEntry),
		history: make(map[string][]domain.EntryHistory),
	}
}

func (m *mockLedgerStore) GetByID(_ context.Context, id string) (*domain.LedgerEntry, error) {
	if m.err != nil {
		return nil, m.err
	}
	e, ok := m.entries[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e, nil
}

func (m *mockLedgerStore) GetByCard(_ context.Context, cardID string, includeDeleted bool) ([]domain.LedgerEntry, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.LedgerEntry
	for _, e := range m.entries {
		if e.CardID != cardID {
			continue
		}
		if e.IsDeleted && !includeDeleted {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (m *mockLedgerStore) Create(_ context.Context, entry *domain.LedgerEntry, actor, _ string) error {
	if m.err != nil {
		return m.err
	}
	m.created = entry
	m.createActor = actor
	m.entries[entry.ID] = entry
	return nil
}

func (m *mockLedgerStore) SoftDelete(_ context.Context, id, _, _ string) (*domain.LedgerEntry, error) {
	e, ok := m.entries[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	e.IsDeleted = true
	m.deleted = append(m.deleted, id)
	return e, nil
}

func (m *mockLedgerStore) Restore(_ context.Context, id, _, _ string) (*domain.LedgerEntry, error) {
	e, ok := m.entries[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	e.IsDeleted = false
	m.restored = append(m.restored, id)
	return e, nil
}

func (m *mockLedgerStore) GetHistory(_ context.Context, entryID string) ([]domain.EntryHistory, error) {
	return m.history[entryID], nil
}

type mockCardReader struct {
	card *domain.Card
}

func (m *mockCardReader) GetByID(_ context.Context, id string) (*domain.Card, error) {
	if m.card == nil || m.card.ID != id {
		return nil, domain.ErrNotFound
	}
	return m.card, nil
}

type mockRecomputer struct {
	recomputed []string
	err        error
}

func (m *mockRecomputer) RecomputeCardSummary(_ context.Context, cardID string) (*domain.CardBalanceSummary, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.recomputed = append(m.recomputed, cardID)
	return &domain.CardBalanceSummary{}, nil
}

func entryRoutes(h *EntryHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/cards/{cardID}/entries", h.ListByCard)
	mux.HandleFunc("POST /api/v1/cards/{cardID}/entries", h.CreateManual)
	mux.HandleFunc("DELETE /api/v1/entries/{entryID}", h.SoftDelete)
	mux.HandleFunc("POST /api/v1/entries/{entryID}/restore", h.Restore)
	mux.HandleFunc("GET /api/v1/entries/{entryID}/history", h.History)
	return mux
}

func testCard() *domain.Card {
	return &domain.Card{
		ID:       "card-1",
		UserID:   uuid.New(),
		UserName: "Test User",
		Name:     "Team Card",
		Provider: domain.ProviderCryptoMate,
		Status:   "active",
	}
}

func asOperator(r *http.Request) *http.Request {
	claims := &auth.Claims{UserID: uuid.New(), Email: "ops@example.com", Role: "admin"}
	return r.WithContext(auth.ContextWithClaims(r.Context(), claims))
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestEntryHandler_CreateManual(t *testing.T) {
	store := newMockLedgerStore()
	stats := &mockRecomputer{}
	h := NewEntryHandler(store, &mockCardReader{card: testCard()}, stats)
	mux := entryRoutes(h)

	body := `{"description":"cash top-up","amount":"150.00","is_credit":true,"operation":"deposit","occurred_at":"2026-08-28T12:00:00Z","reason":"manual funding"}`
	req := asOperator(httptest.NewRequest(http.MethodPost, "/api/v1/cards/card-1/entries", strings.NewReader(body)))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, store.created)
	assert.Equal(t, int64(15000), store.created.AmountMinor)
	assert.Equal(t, domain.OperationDeposit, store.created.Operation)
	assert.Equal(t, domain.ProviderManual, store.created.Provider)
	assert.NotEmpty(t, store.created.ID)
	assert.Equal(t, "ops@example.com", store.createActor)
	assert.Equal(t, []string{"card-1"}, stats.recomputed)
}

func TestEntryHandler_CreateManualValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing amount", `{"operation":"deposit","occurred_at":"2026-08-28T12:00:00Z"}`},
		{"negative amount", `{"amount":"-5.00","operation":"deposit","occurred_at":"2026-08-28T12:00:00Z"}`},
		{"sub-cent amount", `{"amount":"5.001","operation":"deposit","occurred_at":"2026-08-28T12:00:00Z"}`},
		{"unknown operation", `{"amount":"5.00","operation":"purchase","occurred_at":"2026-08-28T12:00:00Z"}`},
		{"bad timestamp", `{"amount":"5.00","operation":"deposit","occurred_at":"yesterday"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newMockLedgerStore()
			h := NewEntryHandler(store, &mockCardReader{card: testCard()}, &mockRecomputer{})
			mux := entryRoutes(h)

			req := asOperator(httptest.NewRequest(http.MethodPost, "/api/v1/cards/card-1/entries", strings.NewReader(tc.body)))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Nil(t, store.created)
			resp := decodeResponse(t, rec)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, ErrValidationFailed.Code, resp.Error.Code)
		})
	}
}

func TestEntryHandler_CreateManualUnknownCard(t *testing.T) {
	h := NewEntryHandler(newMockLedgerStore(), &mockCardReader{}, &mockRecomputer{})
	mux := entryRoutes(h)

	body := `{"amount":"5.00","operation":"deposit","occurred_at":"2026-08-28T12:00:00Z"}`
	req := asOperator(httptest.NewRequest(http.MethodPost, "/api/v1/cards/nope/entries", strings.NewReader(body)))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEntryHandler_SoftDeleteAndRestore(t *testing.T) {
	store := newMockLedgerStore()
	store.entries["e1"] = &domain.LedgerEntry{ID: "e1", CardID: "card-1"}
	stats := &mockRecomputer{}
	h := NewEntryHandler(store, &mockCardReader{card: testCard()}, stats)
	mux := entryRoutes(h)

	req := asOperator(httptest.NewRequest(http.MethodDelete, "/api/v1/entries/e1", strings.NewReader(`{"reason":"duplicate charge"}`)))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"e1"}, store.deleted)
	assert.Equal(t, []string{"card-1"}, stats.recomputed)

	req = asOperator(httptest.NewRequest(http.MethodPost, "/api/v1/entries/e1/restore", nil))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"e1"}, store.restored)
	assert.Equal(t, []string{"card-1", "card-1"}, stats.recomputed)
}

func TestEntryHandler_DeleteUnknownEntry(t *testing.T) {
	h := NewEntryHandler(newMockLedgerStore(), &mockCardReader{card: testCard()}, &mockRecomputer{})
	mux := entryRoutes(h)

	req := asOperator(httptest.NewRequest(http.MethodDelete, "/api/v1/entries/missing", nil))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEntryHandler_ListByCardIncludeDeleted(t *testing.T) {
	store := newMockLedgerStore()
	store.entries["e1"] = &domain.LedgerEntry{ID: "e1", CardID: "card-1"}
	store.entries["e2"] = &domain.LedgerEntry{ID: "e2", CardID: "card-1", IsDeleted: true}
	h := NewEntryHandler(store, &mockCardReader{card: testCard()}, &mockRecomputer{})
	mux := entryRoutes(h)

	req := asOperator(httptest.NewRequest(http.MethodGet, "/api/v1/cards/card-1/entries", nil))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(1), data["count"])

	req = asOperator(httptest.NewRequest(http.MethodGet, "/api/v1/cards/card-1/entries?include_deleted=true", nil))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeResponse(t, rec)
	data = resp.Data.(map[string]any)
	assert.Equal(t, float64(2), data["count"])
}

func TestEntryHandler_History(t *testing.T) {
	store := newMockLedgerStore()
	store.entries["e1"] = &domain.LedgerEntry{ID: "e1", CardID: "card-1", Version: 2}
	store.history["e1"] = []domain.EntryHistory{
		{EntryID: "e1", Version: 1, Action: domain.HistoryActionCreated, CreatedAt: time.Now()},
		{EntryID: "e1", Version: 2, Action: domain.HistoryActionUpdated, CreatedAt: time.Now()},
	}
	h := NewEntryHandler(store, &mockCardReader{card: testCard()}, &mockRecomputer{})
	mux := entryRoutes(h)

	req := asOperator(httptest.NewRequest(http.MethodGet, "/api/v1/entries/e1/history", nil))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = asOperator(httptest.NewRequest(http.MethodGet, "/api/v1/entries/missing/history", nil))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
