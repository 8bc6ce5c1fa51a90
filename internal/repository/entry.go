package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/domain"
)

const entryColumns = `id, user_id, card_id, description, user_name, card_name,
	amount_minor, is_credit, operation, provider, parent_movement_id,
	occurred_at, created_at, updated_at, version,
	is_deleted, deleted_at, deleted_by,
	reconciled, reconciled_at, reconciled_by, reconciliation_batch_id`

type LedgerEntryRepository struct {
	db *sql.DB
}

func NewLedgerEntryRepository(db *sql.DB) *LedgerEntryRepository {
	return &LedgerEntryRepository{db: db}
}

// Create inserts a new entry at version 1 together with its "created"
// history row. The entry id must be unique; a collision surfaces as
// ErrDuplicateIdentity and it is the caller's job to have resolved identity
// beforehand.
func (r *LedgerEntryRepository) Create(ctx context.Context, entry *domain.LedgerEntry, actor, reason string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Create: begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	entry.Version = 1
	entry.CreatedAt = now
	entry.UpdatedAt = now

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (
			id, user_id, card_id, description, user_name, card_name,
			amount_minor, is_credit, operation, provider, parent_movement_id,
			occurred_at, created_at, updated_at, version,
			is_deleted, deleted_at, deleted_by,
			reconciled, reconciled_at, reconciled_by, reconciliation_batch_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		entry.ID, entry.UserID, entry.CardID, entry.Description, entry.UserName, entry.CardName,
		entry.AmountMinor, entry.IsCredit, entry.Operation, entry.Provider, entry.ParentMovementID,
		entry.OccurredAt, entry.CreatedAt, entry.UpdatedAt, entry.Version,
		entry.IsDeleted, entry.DeletedAt, entry.DeletedBy,
		entry.Reconciled, entry.ReconciledAt, entry.ReconciledBy, entry.ReconciliationBatchID,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateIdentity)
		}
		return fmt.Errorf("Create: %w", err)
	}

	if err := insertHistory(ctx, tx, entry.ID, 1, domain.HistoryActionCreated, nil, actor, reason, now); err != nil {
		return fmt.Errorf("Create: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Create: commit: %w", err)
	}
	return nil
}

func (r *LedgerEntryRepository) GetByID(ctx context.Context, id string) (*domain.LedgerEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1`, id,
	)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return e, nil
}

func (r *LedgerEntryRepository) GetByCard(ctx context.Context, cardID string, includeDeleted bool) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE card_id = $1`
	if !includeDeleted {
		query += ` AND is_deleted = FALSE`
	}
	query += ` ORDER BY occurred_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query, cardID)
	if err != nil {
		return nil, fmt.Errorf("GetByCard: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("GetByCard: scan: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByCard: rows: %w", err)
	}
	return entries, nil
}

func (r *LedgerEntryRepository) GetByUser(ctx context.Context, userID uuid.UUID, includeDeleted bool) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE user_id = $1`
	if !includeDeleted {
		query += ` AND is_deleted = FALSE`
	}
	query += ` ORDER BY occurred_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("GetByUser: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("GetByUser: scan: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByUser: rows: %w", err)
	}
	return entries, nil
}

// Update applies the requested field changes under a row lock. Only fields
// that actually differ are written to history; a no-op request neither bumps
// the version nor appends history. The version guard catches writers that
// somehow got past the row lock.
func (r *LedgerEntryRepository) Update(ctx context.Context, id string, changes domain.EntryChanges, actor, reason string) (*domain.LedgerEntry, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Update: begin: %w", err)
	}
	defer tx.Rollback()

	cur, err := getForUpdate(ctx, tx, id)
	if err != nil {
		return nil, fmt.Errorf("Update: %w", err)
	}

	next := *cur
	diffs := applyChanges(&next, changes)
	if len(diffs) == 0 {
		return cur, nil
	}

	now := time.Now().UTC()
	next.Version = cur.Version + 1
	next.UpdatedAt = now

	res, err := tx.ExecContext(ctx,
		`UPDATE ledger_entries SET
			description = $1, user_name = $2, card_name = $3,
			amount_minor = $4, is_credit = $5, operation = $6, occurred_at = $7,
			reconciled = $8, reconciled_at = $9, reconciled_by = $10, reconciliation_batch_id = $11,
			version = $12, updated_at = $13
		WHERE id = $14 AND version = $15`,
		next.Description, next.UserName, next.CardName,
		next.AmountMinor, next.IsCredit, next.Operation, next.OccurredAt,
		next.Reconciled, next.ReconciledAt, next.ReconciledBy, next.ReconciliationBatchID,
		next.Version, next.UpdatedAt,
		id, cur.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("Update: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("Update: rows affected: %w", err)
	} else if n == 0 {
		return nil, fmt.Errorf("Update: %w", domain.ErrVersionConflict)
	}

	if err := insertHistory(ctx, tx, id, next.Version, domain.HistoryActionUpdated, diffs, actor, reason, now); err != nil {
		return nil, fmt.Errorf("Update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Update: commit: %w", err)
	}
	return &next, nil
}

// SoftDelete marks the entry deleted. Deleting an already-deleted entry is a
// successful no-op with no history appended.
func (r *LedgerEntryRepository) SoftDelete(ctx context.Context, id, actor, reason string) (*domain.LedgerEntry, error) {
	return r.setDeleted(ctx, id, true, actor, reason)
}

// Restore re-activates a soft-deleted entry, idempotently.
func (r *LedgerEntryRepository) Restore(ctx context.Context, id, actor, reason string) (*domain.LedgerEntry, error) {
	return r.setDeleted(ctx, id, false, actor, reason)
}

func (r *LedgerEntryRepository) setDeleted(ctx context.Context, id string, deleted bool, actor, reason string) (*domain.LedgerEntry, error) {
	op := "Restore"
	if deleted {
		op = "SoftDelete"
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer tx.Rollback()

	cur, err := getForUpdate(ctx, tx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cur.IsDeleted == deleted {
		return cur, nil
	}

	now := time.Now().UTC()
	next := *cur
	next.Version = cur.Version + 1
	next.UpdatedAt = now
	next.IsDeleted = deleted

	action := domain.HistoryActionRestored
	diffs := []domain.FieldChange{{Field: "is_deleted", Old: cur.IsDeleted, New: deleted}}
	if deleted {
		action = domain.HistoryActionDeleted
		next.DeletedAt = &now
		next.DeletedBy = &actor
	} else {
		next.DeletedAt = nil
		next.DeletedBy = nil
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE ledger_entries SET
			is_deleted = $1, deleted_at = $2, deleted_by = $3, version = $4, updated_at = $5
		WHERE id = $6 AND version = $7`,
		next.IsDeleted, next.DeletedAt, next.DeletedBy, next.Version, next.UpdatedAt,
		id, cur.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("%s: rows affected: %w", op, err)
	} else if n == 0 {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrVersionConflict)
	}

	if err := insertHistory(ctx, tx, id, next.Version, action, diffs, actor, reason, now); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: commit: %w", op, err)
	}
	return &next, nil
}

func (r *LedgerEntryRepository) GetHistory(ctx context.Context, entryID string) ([]domain.EntryHistory, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, entry_id, version, action, field_changes, actor, reason, created_at
		FROM ledger_entry_history WHERE entry_id = $1 ORDER BY version`, entryID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetHistory: %w", err)
	}
	defer rows.Close()

	var items []domain.EntryHistory
	for rows.Next() {
		var (
			h       domain.EntryHistory
			changes []byte
		)
		err := rows.Scan(&h.ID, &h.EntryID, &h.Version, &h.Action, &changes, &h.Actor, &h.Reason, &h.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("GetHistory: scan: %w", err)
		}
		if len(changes) > 0 {
			if err := json.Unmarshal(changes, &h.FieldChanges); err != nil {
				return nil, fmt.Errorf("GetHistory: decode field changes: %w", err)
			}
		}
		items = append(items, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetHistory: rows: %w", err)
	}
	return items, nil
}

func getForUpdate(ctx context.Context, tx *sql.Tx, id string) (*domain.LedgerEntry, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1 FOR UPDATE`, id,
	)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, entryID string, version int64, action domain.HistoryAction, diffs []domain.FieldChange, actor, reason string, at time.Time) error {
	var changes any
	if len(diffs) > 0 {
		encoded, err := json.Marshal(diffs)
		if err != nil {
			return fmt.Errorf("insertHistory: encode field changes: %w", err)
		}
		changes = encoded
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entry_history (id, entry_id, version, action, field_changes, actor, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New(), entryID, version, action, changes, actor, reason, at,
	)
	if err != nil {
		return fmt.Errorf("insertHistory: %w", err)
	}
	return nil
}

// applyChanges mutates next with the requested values and returns the list
// of fields that actually changed.
func applyChanges(next *domain.LedgerEntry, c domain.EntryChanges) []domain.FieldChange {
	var diffs []domain.FieldChange

	if c.Description != nil && *c.Description != next.Description {
		diffs = append(diffs, domain.FieldChange{Field: "description", Old: next.Description, New: *c.Description})
		next.Description = *c.Description
	}
	if c.UserName != nil && *c.UserName != next.UserName {
		diffs = append(diffs, domain.FieldChange{Field: "user_name", Old: next.UserName, New: *c.UserName})
		next.UserName = *c.UserName
	}
	if c.CardName != nil && *c.CardName != next.CardName {
		diffs = append(diffs, domain.FieldChange{Field: "card_name", Old: next.CardName, New: *c.CardName})
		next.CardName = *c.CardName
	}
	if c.AmountMinor != nil && *c.AmountMinor != next.AmountMinor {
		diffs = append(diffs, domain.FieldChange{Field: "amount_minor", Old: next.AmountMinor, New: *c.AmountMinor})
		next.AmountMinor = *c.AmountMinor
	}
	if c.IsCredit != nil && *c.IsCredit != next.IsCredit {
		diffs = append(diffs, domain.FieldChange{Field: "is_credit", Old: next.IsCredit, New: *c.IsCredit})
		next.IsCredit = *c.IsCredit
	}
	if c.Operation != nil && *c.Operation != next.Operation {
		diffs = append(diffs, domain.FieldChange{Field: "operation", Old: next.Operation, New: *c.Operation})
		next.Operation = *c.Operation
	}
	if c.OccurredAt != nil && !c.OccurredAt.Equal(next.OccurredAt) {
		diffs = append(diffs, domain.FieldChange{Field: "occurred_at", Old: next.OccurredAt, New: *c.OccurredAt})
		next.OccurredAt = *c.OccurredAt
	}
	if c.Reconciled != nil && *c.Reconciled != next.Reconciled {
		diffs = append(diffs, domain.FieldChange{Field: "reconciled", Old: next.Reconciled, New: *c.Reconciled})
		next.Reconciled = *c.Reconciled
		if *c.Reconciled {
			now := time.Now().UTC()
			next.ReconciledAt = &now
			next.ReconciledBy = c.ReconciledBy
			next.ReconciliationBatchID = c.ReconciliationBatchID
		} else {
			next.ReconciledAt = nil
			next.ReconciledBy = nil
			next.ReconciliationBatchID = nil
		}
	}

	return diffs
}

func scanEntry(s scanner) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	err := s.Scan(
		&e.ID, &e.UserID, &e.CardID, &e.Description, &e.UserName, &e.CardName,
		&e.AmountMinor, &e.IsCredit, &e.Operation, &e.Provider, &e.ParentMovementID,
		&e.OccurredAt, &e.CreatedAt, &e.UpdatedAt, &e.Version,
		&e.IsDeleted, &e.DeletedAt, &e.DeletedBy,
		&e.Reconciled, &e.ReconciledAt, &e.ReconciledBy, &e.ReconciliationBatchID,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
