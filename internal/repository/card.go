package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/domain"
)

const cardColumns = `c.id, c.user_id, u.name, c.name, c.provider, c.status,
	c.last_synced_at, c.summary, c.created_at`

type CardRepository struct {
	db *sql.DB
}

func NewCardRepository(db *sql.DB) *CardRepository {
	return &CardRepository{db: db}
}

func (r *CardRepository) GetByID(ctx context.Context, id string) (*domain.Card, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM cards c JOIN users u ON u.id = c.user_id
		WHERE c.id = $1`, id,
	)
	c, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return c, nil
}

func (r *CardRepository) GetByUser(ctx context.Context, userID uuid.UUID) ([]domain.Card, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+cardColumns+` FROM cards c JOIN users u ON u.id = c.user_id
		WHERE c.user_id = $1 ORDER BY c.created_at`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByUser: %w", err)
	}
	defer rows.Close()
	return collectCards(rows, "GetByUser")
}

func (r *CardRepository) GetByProvider(ctx context.Context, provider domain.Provider) ([]domain.Card, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+cardColumns+` FROM cards c JOIN users u ON u.id = c.user_id
		WHERE c.provider = $1 AND c.status <> 'closed' ORDER BY c.created_at`, provider,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByProvider: %w", err)
	}
	defer rows.Close()
	return collectCards(rows, "GetByProvider")
}

// Upsert inserts a card discovered from a provider's card list, or refreshes
// its mutable attributes if already known. The persisted summary is never
// touched here.
func (r *CardRepository) Upsert(ctx context.Context, card *domain.Card) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cards (id, user_id, name, provider, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, status = EXCLUDED.status`,
		card.ID, card.UserID, card.Name, card.Provider, card.Status, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	return nil
}

func (r *CardRepository) UpdateSummary(ctx context.Context, cardID string, summary domain.CardBalanceSummary) error {
	encoded, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("UpdateSummary: encode: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE cards SET summary = $1 WHERE id = $2`, encoded, cardID,
	)
	if err != nil {
		return fmt.Errorf("UpdateSummary: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("UpdateSummary: rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("UpdateSummary: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *CardRepository) TouchSyncedAt(ctx context.Context, cardID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE cards SET last_synced_at = $1 WHERE id = $2`, at, cardID,
	)
	if err != nil {
		return fmt.Errorf("TouchSyncedAt: %w", err)
	}
	return nil
}

func collectCards(rows *sql.Rows, op string) ([]domain.Card, error) {
	var cards []domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		cards = append(cards, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return cards, nil
}

func scanCard(s scanner) (*domain.Card, error) {
	var (
		c       domain.Card
		summary []byte
	)
	err := s.Scan(
		&c.ID, &c.UserID, &c.UserName, &c.Name, &c.Provider, &c.Status,
		&c.LastSyncedAt, &summary, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(summary) > 0 {
		if err := json.Unmarshal(summary, &c.Summary); err != nil {
			return nil, fmt.Errorf("decode summary: %w", err)
		}
	}
	return &c, nil
}
