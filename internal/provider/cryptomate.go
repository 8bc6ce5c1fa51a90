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

// CryptoMateClient fetches cards and movements from the CryptoMate API.
// CryptoMate uses TRANSACTION_* status constants plus explicit operation
// actions (DEPOSIT, WITHDRAWAL, OVERRIDE_VIRTUAL_BALANCE). Fee movements
// come back without a card id and reference their parent movement instead.
type CryptoMateClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
}

func NewCryptoMateClient(baseURL, apiKey string, opts Options) *CryptoMateClient {
	opts = opts.withDefaults()
	return &CryptoMateClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: opts.Timeout},
		maxRetries: opts.MaxRetries,
	}
}

func (c *CryptoMateClient) Provider() domain.Provider { return domain.ProviderCryptoMate }

type cryptomateCard struct {
	ID       string `json:"id"`
	CardName string `json:"card_name"`
	Status   string `json:"status"`
}

func (c *CryptoMateClient) ListCards(ctx context.Context) ([]domain.Card, error) {
	body, err := c.get(ctx, "/cards", nil)
	if err != nil {
		return nil, fmt.Errorf("ListCards: %w", err)
	}

	var payload struct {
		Cards []cryptomateCard `json:"cards"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("ListCards: decode: %w: %w", err, domain.ErrProviderFetch)
	}

	cards := make([]domain.Card, 0, len(payload.Cards))
	for _, cc := range payload.Cards {
		status := domain.CardStatusActive
		switch cc.Status {
		case "PAUSED":
			status = domain.CardStatusPaused
		case "CLOSED":
			status = domain.CardStatusClosed
		}
		cards = append(cards, domain.Card{
			ID:       cc.ID,
			Name:     cc.CardName,
			Provider: domain.ProviderCryptoMate,
			Status:   status,
		})
	}
	return cards, nil
}

type cryptomateMovement struct {
	ID               string          `json:"id"`
	CardID           string          `json:"card_id"`
	ParentMovementID string          `json:"parent_movement_id"`
	Amount           decimal.Decimal `json:"amount"`
	Status           string          `json:"status"`
	Operation        string          `json:"operation"`
	MerchantName     string          `json:"merchant_name"`
	CreatedAt        time.Time       `json:"created_at"`
}

func (c *CryptoMateClient) ListMovements(ctx context.Context, cardID string, window Window) ([]domain.Movement, error) {
	query := url.Values{}
	query.Set("from", window.Start.UTC().Format(time.RFC3339))
	query.Set("to", window.End.UTC().Format(time.RFC3339))

	body, err := c.get(ctx, "/cards/"+url.PathEscape(cardID)+"/movements", query)
	if err != nil {
		return nil, fmt.Errorf("ListMovements: %w", err)
	}

	var payload struct {
		Movements []cryptomateMovement `json:"movements"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("ListMovements: decode: %w: %w", err, domain.ErrProviderFetch)
	}

	movements := make([]domain.Movement, 0, len(payload.Movements))
	for _, m := range payload.Movements {
		movements = append(movements, domain.Movement{
			ID:          m.ID,
			Provider:    domain.ProviderCryptoMate,
			Status:      normalizeCryptoMateStatus(m.Status, m.Operation),
			Amount:      m.Amount,
			Description: m.MerchantName,
			CardID:      m.CardID,
			ParentID:    m.ParentMovementID,
			OccurredAt:  m.CreatedAt,
		})
	}
	return movements, nil
}

// normalizeCryptoMateStatus maps the TRANSACTION_* vocabulary onto the
// shared status set. Explicit operation actions win over status; unknown
// values pass through lowercased for the classifier to reject.
func normalizeCryptoMateStatus(status, operation string) domain.ProviderStatus {
	switch operation {
	case "DEPOSIT":
		return domain.StatusDeposit
	case "WITHDRAWAL":
		return domain.StatusWithdrawal
	case "OVERRIDE_VIRTUAL_BALANCE":
		return domain.StatusBalanceOverride
	}
	switch status {
	case "TRANSACTION_APPROVED":
		return domain.StatusSettled
	case "TRANSACTION_PENDING":
		return domain.StatusPending
	case "TRANSACTION_REJECTED":
		return domain.StatusFailed
	case "TRANSACTION_REVERSED":
		return domain.StatusReversed
	case "TRANSACTION_REFUND":
		return domain.StatusRefund
	case "TRANSACTION_CANCELLED":
		return domain.StatusCancelled
	case "TRANSACTION_BLOCKED":
		return domain.StatusBlocked
	}
	return domain.ProviderStatus(strings.ToLower(status))
}

func (c *CryptoMateClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	return doJSON(ctx, c.httpClient, "cryptomate", req, c.maxRetries)
}
