package stats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/domain"
)

type entrySource interface {
	GetByCard(ctx context.Context, cardID string, includeDeleted bool) ([]domain.LedgerEntry, error)
}

type summarySink interface {
	UpdateSummary(ctx context.Context, cardID string, summary domain.CardBalanceSummary) error
}

type eventPublisher interface {
	Publish(ctx context.Context, topic string, event any) error
}

// Aggregator derives a card's balance summary from its ledger entries. It
// always does a full re-scan so the cached summary converges no matter how
// many mutations happened since the last recompute. Summaries of different
// cards share nothing and can recompute in parallel.
type Aggregator struct {
	entries entrySource
	cards   summarySink
	events  eventPublisher
	logger  *slog.Logger
}

func NewAggregator(entries entrySource, cards summarySink, events eventPublisher, logger *slog.Logger) *Aggregator {
	return &Aggregator{entries: entries, cards: cards, events: events, logger: logger}
}

// RecomputeCardSummary rebuilds and persists the summary for one card.
func (a *Aggregator) RecomputeCardSummary(ctx context.Context, cardID string) (*domain.CardBalanceSummary, error) {
	entries, err := a.entries.GetByCard(ctx, cardID, true)
	if err != nil {
		return nil, fmt.Errorf("RecomputeCardSummary: %w", err)
	}

	summary := Summarize(entries)

	if err := a.cards.UpdateSummary(ctx, cardID, summary); err != nil {
		return nil, fmt.Errorf("RecomputeCardSummary: %w", err)
	}

	if a.events != nil {
		event := map[string]any{"card_id": cardID, "summary": summary}
		if err := a.events.Publish(ctx, "ledger.card.summary", event); err != nil {
			a.logger.Error("publish summary event failed", "card_id", cardID, "error", err)
		}
	}

	return &summary, nil
}

// Summarize computes the balance summary for a set of entries belonging to
// one card. Deleted entries are excluded from every balance bucket and only
// tracked under the deleted counters. Balance overrides count as funding
// alongside deposits. Reversed and rejected amounts are reported but do not
// enter available:
//
//	available = deposited + refunded - posted - pending - withdrawn
func Summarize(entries []domain.LedgerEntry) domain.CardBalanceSummary {
	var s domain.CardBalanceSummary
	s.TotalAllEntries = len(entries)

	for _, e := range entries {
		if e.IsDeleted {
			s.TotalDeletedEntries++
			s.DeletedAmount += e.AmountMinor
			continue
		}

		switch e.Operation {
		case domain.OperationDeposit, domain.OperationBalanceOverride:
			s.TotalDeposited += e.AmountMinor
		case domain.OperationRefund:
			s.TotalRefunded += e.AmountMinor
		case domain.OperationApproved:
			s.TotalPosted += e.AmountMinor
		case domain.OperationReversed:
			s.TotalReversed += e.AmountMinor
		case domain.OperationRejected:
			s.TotalRejected += e.AmountMinor
		case domain.OperationPending:
			s.TotalPending += e.AmountMinor
		case domain.OperationWithdrawal:
			s.TotalWithdrawn += e.AmountMinor
		case domain.OperationCancelled, domain.OperationBlocked:
			// Counted in TotalAllEntries only.
		}
	}

	s.Available = s.TotalDeposited + s.TotalRefunded - s.TotalPosted - s.TotalPending - s.TotalWithdrawn
	return s
}
