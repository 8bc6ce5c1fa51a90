package ingest

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/domain"
	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/provider"
)

type fakeCardRepo struct {
	known    map[string]*domain.Card
	upserted []string
	synced   []string
}

func (f *fakeCardRepo) GetByID(_ context.Context, id string) (*domain.Card, error) {
	c, ok := f.known[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCardRepo) Upsert(_ context.Context, card *domain.Card) error {
	f.upserted = append(f.upserted, card.ID)
	f.known[card.ID] = card
	return nil
}

func (f *fakeCardRepo) GetByProvider(_ context.Context, p domain.Provider) ([]domain.Card, error) {
	var out []domain.Card
	for _, c := range f.known {
		if c.Provider == p {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCardRepo) TouchSyncedAt(_ context.Context, cardID string, _ time.Time) error {
	f.synced = append(f.synced, cardID)
	return nil
}

type fakeRunner struct {
	cards   []string
	windows []provider.Window
	err     error
}

func (f *fakeRunner) ImportCardMovements(_ context.Context, _ provider.Client, cardID string, window provider.Window) (Result, error) {
	f.cards = append(f.cards, cardID)
	f.windows = append(f.windows, window)
	return Result{Imported: 1}, f.err
}

type discoveryClient struct {
	cards []domain.Card
}

func (c *discoveryClient) Provider() domain.Provider { return domain.ProviderMercury }

func (c *discoveryClient) ListCards(context.Context) ([]domain.Card, error) { return c.cards, nil }

func (c *discoveryClient) ListMovements(context.Context, string, provider.Window) ([]domain.Movement, error) {
	return nil, nil
}

func TestScheduler_RunOnceSyncsKnownCards(t *testing.T) {
	repo := &fakeCardRepo{known: map[string]*domain.Card{
		"card-1": {ID: "card-1", UserID: uuid.New(), Name: "Team Card", Provider: domain.ProviderMercury, Status: domain.CardStatusActive},
	}}
	runner := &fakeRunner{}
	client := &discoveryClient{cards: []domain.Card{
		{ID: "card-1", Name: "Team Card Renamed", Provider: domain.ProviderMercury, Status: domain.CardStatusActive},
		// Reported by the provider but never assigned to a user here.
		{ID: "card-new", Name: "Unmapped", Provider: domain.ProviderMercury, Status: domain.CardStatusActive},
	}}

	s := NewScheduler([]provider.Client{client}, runner, repo, time.Minute, 24*time.Hour, slog.New(slog.DiscardHandler))
	s.runOnce(context.Background())

	assert.Equal(t, []string{"card-1"}, runner.cards)
	assert.Equal(t, []string{"card-1"}, repo.synced)

	// Discovery refreshes known cards only.
	assert.Equal(t, []string{"card-1"}, repo.upserted)
	assert.Equal(t, "Team Card Renamed", repo.known["card-1"].Name)
	_, hasNew := repo.known["card-new"]
	assert.False(t, hasNew, "unmapped provider cards must wait for operator assignment")

	require.Len(t, runner.windows, 1)
	w := runner.windows[0]
	assert.Equal(t, 24*time.Hour, w.End.Sub(w.Start))
}

func TestScheduler_ImportFailureSkipsSyncStamp(t *testing.T) {
	repo := &fakeCardRepo{known: map[string]*domain.Card{
		"card-1": {ID: "card-1", UserID: uuid.New(), Provider: domain.ProviderMercury, Status: domain.CardStatusActive},
	}}
	runner := &fakeRunner{err: domain.ErrProviderFetch}
	client := &discoveryClient{}

	s := NewScheduler([]provider.Client{client}, runner, repo, time.Minute, time.Hour, slog.New(slog.DiscardHandler))
	s.runOnce(context.Background())

	assert.Equal(t, []string{"card-1"}, runner.cards)
	assert.Empty(t, repo.synced, "a failed sync must not advance last_synced_at")
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	repo := &fakeCardRepo{known: map[string]*domain.Card{}}
	runner := &fakeRunner{}
	s := NewScheduler(nil, runner, repo, 10*time.Millisecond, time.Hour, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
}
