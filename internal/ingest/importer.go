package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/domain"
	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/provider"
)

const maxErrorSamples = 20

type entryStore interface {
	GetByID(ctx context.Context, id string) (*domain.LedgerEntry, error)
	Create(ctx context.Context, entry *domain.LedgerEntry, actor, reason string) error
	Update(ctx context.Context, id string, changes domain.EntryChanges, actor, reason string) (*domain.LedgerEntry, error)
}

type cardStore interface {
	GetByID(ctx context.Context, id string) (*domain.Card, error)
}

type summaryRecomputer interface {
	RecomputeCardSummary(ctx context.Context, cardID string) (*domain.CardBalanceSummary, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, topic string, event any) error
}

// ItemError is one per-movement failure, reported instead of aborting the
// batch it belonged to.
type ItemError struct {
	MovementID string `json:"movement_id"`
	Error      string `json:"error"`
}

// Result summarizes one import run. A run never fails all-or-nothing:
// callers always get counters, plus a capped sample of item errors.
type Result struct {
	Imported  int         `json:"imported"`
	Updated   int         `json:"updated"`
	Unchanged int         `json:"unchanged"`
	Skipped   int         `json:"skipped"`
	Failed    int         `json:"failed"`
	Errors    []ItemError `json:"errors,omitempty"`
	Cards     []string    `json:"cards,omitempty"`
}

func (r *Result) recordError(id string, err error) {
	r.Failed++
	if len(r.Errors) < maxErrorSamples {
		r.Errors = append(r.Errors, ItemError{MovementID: id, Error: err.Error()})
	}
}

// Importer merges provider movements into the ledger in bounded-size
// batches. Re-running the same window converges to the same ledger state:
// known entries are diff-updated in place, never duplicated, and ingestion
// never flips soft-delete state.
type Importer struct {
	entries       entryStore
	cards         cardStore
	stats         summaryRecomputer
	events        eventPublisher
	batchSize     int
	maxConcurrent int
	writeRetries  int
	logger        *slog.Logger
}

func NewImporter(entries entryStore, cards cardStore, stats summaryRecomputer, events eventPublisher, batchSize, maxConcurrent, writeRetries int, logger *slog.Logger) *Importer {
	if batchSize <= 0 {
		batchSize = 100
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	if writeRetries <= 0 {
		writeRetries = 3
	}
	return &Importer{
		entries:       entries,
		cards:         cards,
		stats:         stats,
		events:        events,
		batchSize:     batchSize,
		maxConcurrent: maxConcurrent,
		writeRetries:  writeRetries,
		logger:        logger,
	}
}

// ImportCardMovements fetches one card's movements for the window and
// merges them into the ledger. A fetch failure aborts the run; per-item
// failures are counted and isolated.
func (im *Importer) ImportCardMovements(ctx context.Context, client provider.Client, cardID string, window provider.Window) (Result, error) {
	var res Result

	movements, err := client.ListMovements(ctx, cardID, window)
	if err != nil {
		return res, fmt.Errorf("ImportCardMovements: %w", err)
	}

	resolver := NewResolver(movements)
	touched := make(map[string]struct{})
	var mu sync.Mutex

	sem := make(chan struct{}, im.maxConcurrent)
	var wg sync.WaitGroup

	cancelled := false
	for start := 0; start < len(movements); start += im.batchSize {
		if ctx.Err() != nil {
			// Committed batches stay committed; the rest of the run is
			// abandoned at this checkpoint.
			cancelled = true
			break
		}

		end := min(start+im.batchSize, len(movements))
		batch := movements[start:end]

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			batchRes, batchTouched := im.processBatch(ctx, resolver, batch)

			mu.Lock()
			res.Imported += batchRes.Imported
			res.Updated += batchRes.Updated
			res.Unchanged += batchRes.Unchanged
			res.Skipped += batchRes.Skipped
			res.Failed += batchRes.Failed
			for _, e := range batchRes.Errors {
				if len(res.Errors) < maxErrorSamples {
					res.Errors = append(res.Errors, e)
				}
			}
			for id := range batchTouched {
				touched[id] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	for id := range touched {
		res.Cards = append(res.Cards, id)
	}
	sort.Strings(res.Cards)

	for _, id := range res.Cards {
		if _, err := im.stats.RecomputeCardSummary(ctx, id); err != nil {
			im.logger.Error("summary recompute failed", "card_id", id, "error", err)
		}
	}

	im.publishCompleted(ctx, client.Provider(), window, res)

	if cancelled {
		return res, ctx.Err()
	}
	return res, nil
}

func (im *Importer) processBatch(ctx context.Context, resolver *Resolver, batch []domain.Movement) (Result, map[string]struct{}) {
	var res Result
	touched := make(map[string]struct{})

	for _, m := range batch {
		changed, cardID, err := im.processItem(ctx, resolver, m, &res)
		if err != nil {
			if errors.Is(err, domain.ErrUnresolvableAccount) || errors.Is(err, domain.ErrNotFound) {
				res.Skipped++
				im.logger.Warn("movement skipped", "movement_id", m.ID, "error", err)
			} else {
				res.recordError(m.ID, err)
				im.logger.Error("movement failed", "movement_id", m.ID, "error", err)
			}
			continue
		}
		if changed {
			touched[cardID] = struct{}{}
		}
	}
	return res, touched
}

// processItem returns whether the ledger changed and for which card.
func (im *Importer) processItem(ctx context.Context, resolver *Resolver, m domain.Movement, res *Result) (bool, string, error) {
	if err := m.Validate(); err != nil {
		return false, "", err
	}

	identity, err := resolver.Resolve(m)
	if err != nil {
		return false, "", err
	}

	signedMinor, err := m.SignedMinor()
	if err != nil {
		return false, "", err
	}

	op, err := domain.Classify(m.Status, signedMinor)
	if err != nil {
		return false, "", err
	}

	card, err := im.cards.GetByID(ctx, identity.CardID)
	if err != nil {
		return false, "", fmt.Errorf("card %s: %w", identity.CardID, err)
	}

	amount := signedMinor
	if amount < 0 {
		amount = -amount
	}
	isCredit := signedMinor >= 0
	actor := "sync:" + string(m.Provider)

	for attempt := 1; ; attempt++ {
		existing, err := im.entries.GetByID(ctx, identity.EntryID)
		if errors.Is(err, domain.ErrNotFound) {
			entry := &domain.LedgerEntry{
				ID:          identity.EntryID,
				UserID:      card.UserID,
				CardID:      card.ID,
				Description: m.Description,
				UserName:    card.UserName,
				CardName:    card.Name,
				AmountMinor: amount,
				IsCredit:    isCredit,
				Operation:   op,
				Provider:    m.Provider,
				OccurredAt:  m.OccurredAt,
			}
			if identity.ParentID != "" {
				parentID := identity.ParentID
				entry.ParentMovementID = &parentID
			}

			err := im.entries.Create(ctx, entry, actor, "provider import")
			if errors.Is(err, domain.ErrDuplicateIdentity) && attempt < im.writeRetries {
				// Lost the race against a concurrent run; re-read and update.
				continue
			}
			if err != nil {
				return false, "", err
			}
			res.Imported++
			return true, card.ID, nil
		}
		if err != nil {
			return false, "", err
		}

		// Provider data wins for business fields, but deletion state is
		// owned by operators and never touched here.
		changes := domain.EntryChanges{
			Description: &m.Description,
			AmountMinor: &amount,
			IsCredit:    &isCredit,
			Operation:   &op,
			OccurredAt:  &m.OccurredAt,
		}

		updated, err := im.entries.Update(ctx, identity.EntryID, changes, actor, "provider import")
		if errors.Is(err, domain.ErrVersionConflict) && attempt < im.writeRetries {
			continue
		}
		if err != nil {
			return false, "", err
		}
		if updated.Version == existing.Version {
			res.Unchanged++
			return false, card.ID, nil
		}
		res.Updated++
		return true, card.ID, nil
	}
}

func (im *Importer) publishCompleted(ctx context.Context, p domain.Provider, window provider.Window, res Result) {
	if im.events == nil {
		return
	}
	event := map[string]any{
		"provider":     p,
		"window_start": window.Start.UTC().Format(time.RFC3339),
		"window_end":   window.End.UTC().Format(time.RFC3339),
		"imported":     res.Imported,
		"updated":      res.Updated,
		"skipped":      res.Skipped,
		"failed":       res.Failed,
		"cards":        res.Cards,
	}
	if err := im.events.Publish(ctx, "ledger.sync.completed", event); err != nil {
		im.logger.Error("publish sync event failed", "provider", p, "error", err)
	}
}
