package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/domain"
)

// MercuryClient fetches cards and transactions from the Mercury API.
// Mercury reports signed decimal amounts and lowercase lifecycle states
// (pending, sent, cancelled, failed, reversed) plus a kind field that marks
// explicit deposits and withdrawals.
type MercuryClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
}

func NewMercuryClient(baseURL, apiKey string, opts Options) *MercuryClient {
	opts = opts.withDefaults()
	return &MercuryClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: opts.Timeout},
		maxRetries: opts.MaxRetries,
	}
}

func (c *MercuryClient) Provider() domain.Provider { return domain.ProviderMercury }

type mercuryCard struct {
	ID        string    `json:"id"`
	Nickname  string    `json:"nickname"`
	Status    string    `json:"status"`
	HolderTag string    `json:"holderTag"`
	CreatedAt time.Time `json:"createdAt"`
}

type mercuryCardList struct {
	Cards []mercuryCard `json:"cards"`
}

func (c *MercuryClient) ListCards(ctx context.Context) ([]domain.Card, error) {
	body, err := c.get(ctx, "/api/v1/cards", nil)
	if err != nil {
		return nil, fmt.Errorf("ListCards: %w", err)
	}

	var payload mercuryCardList
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("ListCards: decode: %w: %w", err, domain.ErrProviderFetch)
	}

	cards := make([]domain.Card, 0, len(payload.Cards))
	for _, mc := range payload.Cards {
		status := domain.CardStatusActive
		switch mc.Status {
		case "frozen":
			status = domain.CardStatusPaused
		case "cancelled", "closed":
			status = domain.CardStatusClosed
		}
		cards = append(cards, domain.Card{
			ID:       mc.ID,
			Name:     mc.Nickname,
			Provider: domain.ProviderMercury,
			Status:   status,
		})
	}
	return cards, nil
}

type mercuryTransaction struct {
	ID               string          `json:"id"`
	Amount           decimal.Decimal `json:"amount"`
	Status           string          `json:"status"`
	Kind             string          `json:"kind"`
	CounterpartyName string          `json:"counterpartyName"`
	RelatedTxnID     string          `json:"relatedTransactionId"`
	PostedAt         time.Time       `json:"postedAt"`
}

type mercuryTransactionList struct {
	Transactions []mercuryTransaction `json:"transactions"`
}

func (c *MercuryClient) ListMovements(ctx context.Context, cardID string, window Window) ([]domain.Movement, error) {
	query := url.Values{}
	query.Set("start", window.Start.UTC().Format(time.RFC3339))
	query.Set("end", window.End.UTC().Format(time.RFC3339))

	body, err := c.get(ctx, "/api/v1/cards/"+url.PathEscape(cardID)+"/transactions", query)
	if err != nil {
		return nil, fmt.Errorf("ListMovements: %w", err)
	}

	var payload mercuryTransactionList
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("ListMovements: decode: %w: %w", err, domain.ErrProviderFetch)
	}

	movements := make([]domain.Movement, 0, len(payload.Transactions))
	for _, tx := range payload.Transactions {
		movements = append(movements, domain.Movement{
			ID:          tx.ID,
			Provider:    domain.ProviderMercury,
			Status:      normalizeMercuryStatus(tx.Status, tx.Kind),
			Amount:      tx.Amount,
			Description: tx.CounterpartyName,
			CardID:      cardID,
			ParentID:    tx.RelatedTxnID,
			OccurredAt:  tx.PostedAt,
		})
	}
	return movements, nil
}

// normalizeMercuryStatus maps Mercury's vocabulary onto the shared status
// set. Explicit kinds win over the lifecycle state; anything unknown passes
// through lowercased so the classifier rejects it loudly.
func normalizeMercuryStatus(status, kind string) domain.ProviderStatus {
	switch kind {
	case "deposit":
		return domain.StatusDeposit
	case "withdrawal":
		return domain.StatusWithdrawal
	}
	switch status {
	case "pending":
		return domain.StatusPending
	case "sent":
		return domain.StatusSent
	case "cancelled":
		return domain.StatusCancelled
	case "failed":
		return domain.StatusFailed
	case "reversed":
		return domain.StatusReversed
	}
	return domain.ProviderStatus(strings.ToLower(status))
}

func (c *MercuryClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	return doJSON(ctx, c.httpClient, "mercury", req, c.maxRetries)
}
