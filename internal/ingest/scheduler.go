package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/domain"
	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/provider"
)

type schedulerCardRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Card, error)
	Upsert(ctx context.Context, card *domain.Card) error
	GetByProvider(ctx context.Context, p domain.Provider) ([]domain.Card, error)
	TouchSyncedAt(ctx context.Context, cardID string, at time.Time) error
}

type importRunner interface {
	ImportCardMovements(ctx context.Context, client provider.Client, cardID string, window provider.Window) (Result, error)
}

// Scheduler periodically pulls a trailing window of movements from every
// configured provider. Card discovery refreshes name/status only; cards the
// provider reports but we have never mapped to a user are left alone until
// an operator assigns them.
type Scheduler struct {
	clients  []provider.Client
	importer importRunner
	cards    schedulerCardRepo
	interval time.Duration
	window   time.Duration
	logger   *slog.Logger
}

func NewScheduler(clients []provider.Client, importer importRunner, cards schedulerCardRepo, interval, window time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		clients:  clients,
		importer: importer,
		cards:    cards,
		interval: interval,
		window:   window,
		logger:   logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("sync scheduler started", "interval", s.interval, "window", s.window)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sync scheduler stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	window := provider.Window{Start: now.Add(-s.window), End: now}

	for _, client := range s.clients {
		if ctx.Err() != nil {
			return
		}
		s.syncProvider(ctx, client, window)
	}
}

func (s *Scheduler) syncProvider(ctx context.Context, client provider.Client, window provider.Window) {
	p := client.Provider()

	discovered, err := client.ListCards(ctx)
	if err != nil {
		s.logger.Error("card discovery failed", "provider", p, "error", err)
	} else {
		for _, card := range discovered {
			known, err := s.cards.GetByID(ctx, card.ID)
			if err != nil {
				continue
			}
			known.Name = card.Name
			known.Status = card.Status
			if err := s.cards.Upsert(ctx, known); err != nil {
				s.logger.Error("card refresh failed", "provider", p, "card_id", card.ID, "error", err)
			}
		}
	}

	cards, err := s.cards.GetByProvider(ctx, p)
	if err != nil {
		s.logger.Error("failed to list cards for sync", "provider", p, "error", err)
		return
	}

	for _, card := range cards {
		if ctx.Err() != nil {
			return
		}

		res, err := s.importer.ImportCardMovements(ctx, client, card.ID, window)
		if err != nil {
			s.logger.Error("card sync failed",
				"provider", p,
				"card_id", card.ID,
				"imported", res.Imported,
				"updated", res.Updated,
				"error", err,
			)
			continue
		}

		s.logger.Info("card synced",
			"provider", p,
			"card_id", card.ID,
			"imported", res.Imported,
			"updated", res.Updated,
			"unchanged", res.Unchanged,
			"skipped", res.Skipped,
			"failed", res.Failed,
		)

		if err := s.cards.TouchSyncedAt(ctx, card.ID, window.End); err != nil {
			s.logger.Error("failed to record sync time", "card_id", card.ID, "error", err)
		}
	}
}
