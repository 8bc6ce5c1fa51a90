package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/logging"
)

// Serves canned Mercury and CryptoMate responses so the api binary can be
// exercised locally without real provider credentials. Point
// MERCURY_BASE_URL at :8081/mercury and CRYPTOMATE_BASE_URL at
// :8081/cryptomate.
func main() {
	logging.Init("mock-provider", "info", os.Getenv("APP_ENV"))

	now := time.Now().UTC()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /mercury/api/v1/cards", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"cards": []map[string]any{
				{"id": "mc-card-001", "nickname": "Team Card", "status": "active", "createdAt": now},
			},
		})
	})

	mux.HandleFunc("GET /mercury/api/v1/cards/{cardID}/transactions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"transactions": []map[string]any{
				{"id": "mtx-1001", "amount": "-42.50", "status": "sent", "kind": "externalTransfer",
					"counterpartyName": "AWS", "postedAt": now.Add(-3 * time.Hour)},
				{"id": "mtx-1002", "amount": "-12.00", "status": "pending", "kind": "externalTransfer",
					"counterpartyName": "Figma", "postedAt": now.Add(-2 * time.Hour)},
				{"id": "mtx-1003", "amount": "500.00", "status": "sent", "kind": "deposit",
					"counterpartyName": "Funding", "postedAt": now.Add(-26 * time.Hour)},
			},
		})
	})

	mux.HandleFunc("GET /cryptomate/cards", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"cards": []map[string]any{
				{"id": "cm-card-900", "card_name": "Nano Virtual", "status": "ACTIVE"},
			},
		})
	})

	mux.HandleFunc("GET /cryptomate/cards/{cardID}/movements", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"movements": []map[string]any{
				{"id": "cmv-7001", "card_id": "cm-card-900", "amount": "-30.00",
					"status": "TRANSACTION_APPROVED", "merchant_name": "Spotify",
					"created_at": now.Add(-4 * time.Hour)},
				// Fee child: no card_id, resolves through its parent.
				{"id": "cmv-7002", "parent_movement_id": "cmv-7001", "amount": "-0.90",
					"status": "TRANSACTION_APPROVED", "merchant_name": "Network fee",
					"created_at": now.Add(-4 * time.Hour)},
				{"id": "cmv-7003", "card_id": "cm-card-900", "amount": "100.00",
					"operation": "DEPOSIT", "status": "TRANSACTION_APPROVED",
					"merchant_name": "Top up", "created_at": now.Add(-30 * time.Hour)},
			},
		})
	})

	slog.Info("mock provider started", "addr", ":8081")
	if err := http.ListenAndServe(":8081", mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
