package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/domain"
	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/logging"
)

// Window is the inclusive time range a movement fetch covers.
type Window struct {
	Start time.Time
	End   time.Time
}

// Client is the capability the ledger core consumes from an external
// card-issuing provider.
type Client interface {
	Provider() domain.Provider
	ListCards(ctx context.Context) ([]domain.Card, error)
	ListMovements(ctx context.Context, cardID string, window Window) ([]domain.Movement, error)
}

// Options tunes the HTTP behavior shared by both provider clients. The
// per-call timeout and retry budget are deliberately separate from any
// outer sync-run deadline.
type Options struct {
	Timeout    time.Duration
	MaxRetries int
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	return o
}

// doJSON performs a GET with bounded retries on transport errors and 5xx
// responses. Non-retryable failures and exhausted budgets come back wrapped
// as ErrProviderFetch.
func doJSON(ctx context.Context, client *http.Client, name string, req *http.Request, maxRetries int) ([]byte, error) {
	log := logging.FromContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		start := time.Now()
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			log.Warn("provider request failed",
				"provider", name, "attempt", attempt, "error", err)
		} else {
			body, readErr := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
			resp.Body.Close()

			log.Info("provider response received",
				"provider", name,
				"status", resp.StatusCode,
				"attempt", attempt,
				"duration_ms", time.Since(start).Milliseconds(),
			)

			switch {
			case readErr != nil:
				lastErr = readErr
			case resp.StatusCode == http.StatusOK:
				return body, nil
			case resp.StatusCode >= 500:
				lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 256))
			default:
				return nil, fmt.Errorf("%s: status %d: %s: %w",
					name, resp.StatusCode, truncate(body, 256), domain.ErrProviderFetch)
			}
		}

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%s: %w: %w", name, ctx.Err(), domain.ErrProviderFetch)
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
	}
	return nil, fmt.Errorf("%s: gave up after %d attempts: %v: %w",
		name, maxRetries, lastErr, domain.ErrProviderFetch)
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
