package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/domain"
)

func SeedTestUser(t *testing.T, db *sql.DB, email, name string) *domain.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Role:         "operator",
		Status:       domain.UserStatusActive,
		CreatedAt:    time.Now().UTC(),
	}

	_, err = db.Exec(
		`INSERT INTO users (id, email, name, password_hash, role, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Role, u.Status, u.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed test user %s: %v", email, err)
	}
	return u
}

func SeedTestCard(t *testing.T, db *sql.DB, userID uuid.UUID, id, name string, provider domain.Provider) *domain.Card {
	t.Helper()

	c := &domain.Card{
		ID:        id,
		UserID:    userID,
		Name:      name,
		Provider:  provider,
		Status:    domain.CardStatusActive,
		CreatedAt: time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO cards (id, user_id, name, provider, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.UserID, c.Name, c.Provider, c.Status, c.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed test card %s: %v", id, err)
	}
	return c
}

func GetEntryVersion(t *testing.T, db *sql.DB, entryID string) int64 {
	t.Helper()
	var version int64
	err := db.QueryRow(`SELECT version FROM ledger_entries WHERE id = $1`, entryID).Scan(&version)
	if err != nil {
		t.Fatalf("get entry version %s: %v", entryID, err)
	}
	return version
}

func CountHistory(t *testing.T, db *sql.DB, entryID string) int {
	t.Helper()
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM ledger_entry_history WHERE entry_id = $1`, entryID).Scan(&count)
	if err != nil {
		t.Fatalf("count history %s: %v", entryID, err)
	}
	return count
}
