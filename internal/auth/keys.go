// Package auth manages API keys and per-tier request budgets.
// Keys are opaque bearer tokens; only their SHA-256 hash is stored.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"wallet-radar/internal/storage"
)

// Tier names. Unknown tiers are treated as free.
const (
	TierFree  = "free"
	TierPro   = "pro"
	TierElite = "elite"
)

const keyPrefix = "daas_"

// Key is one stored API key record
type Key struct {
	ID        int64
	KeyHash   string
	Tier      string
	CreatedAt int64
	ExpiresAt int64 // 0 = never
	IsActive  bool
}

// Store persists API keys and subscriptions
type Store struct {
	db *sql.DB
}

// NewStore opens the auth database
func NewStore(path string) (*Store, error) {
	db, err := storage.Open(path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS api_keys (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key_hash TEXT NOT NULL UNIQUE,
		tier TEXT NOT NULL DEFAULT 'free',
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS subscriptions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		api_key_id INTEGER,
		external_customer_id TEXT NOT NULL,
		external_subscription_id TEXT NOT NULL UNIQUE,
		tier TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// GenerateKey mints a fresh plaintext API key
func GenerateKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return keyPrefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

// HashKey returns the stored form of a key
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// CreateKey mints and stores a key for a tier. ttl of zero means the
// key never expires. Returns the plaintext key, shown exactly once.
func (s *Store) CreateKey(tier string, ttl time.Duration) (string, int64, error) {
	key, err := GenerateKey()
	if err != nil {
		return "", 0, err
	}

	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).Unix()
	}

	res, err := s.db.Exec(`
		INSERT INTO api_keys (key_hash, tier, created_at, expires_at, is_active)
		VALUES (?, ?, ?, ?, 1)`,
		HashKey(key), tier, time.Now().Unix(), expiresAt)
	if err != nil {
		return "", 0, fmt.Errorf("store key: %w", err)
	}
	id, _ := res.LastInsertId()

	log.Info().Int64("id", id).Str("tier", tier).Msg("api key created")
	return key, id, nil
}

// Validate resolves a plaintext key to its tier. Inactive, expired or
// unknown keys report ok=false.
func (s *Store) Validate(key string) (tier string, ok bool, err error) {
	var k Key
	var active int
	err = s.db.QueryRow(`
		SELECT id, tier, expires_at, is_active FROM api_keys WHERE key_hash = ?`,
		HashKey(key)).Scan(&k.ID, &k.Tier, &k.ExpiresAt, &active)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if active == 0 {
		return "", false, nil
	}
	if k.ExpiresAt > 0 && time.Now().Unix() > k.ExpiresAt {
		return "", false, nil
	}
	return k.Tier, true, nil
}

// SetKeyTier changes a key's tier
func (s *Store) SetKeyTier(keyID int64, tier string) error {
	_, err := s.db.Exec(`UPDATE api_keys SET tier = ? WHERE id = ?`, tier, keyID)
	return err
}

// DeactivateKey disables a key without deleting it
func (s *Store) DeactivateKey(keyID int64) error {
	_, err := s.db.Exec(`UPDATE api_keys SET is_active = 0 WHERE id = ?`, keyID)
	return err
}

// ListKeys returns every stored key record, newest first
func (s *Store) ListKeys() ([]Key, error) {
	rows, err := s.db.Query(`
		SELECT id, key_hash, tier, created_at, expires_at, is_active
		FROM api_keys ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Key
	for rows.Next() {
		var k Key
		var active int
		if err := rows.Scan(&k.ID, &k.KeyHash, &k.Tier, &k.CreatedAt, &k.ExpiresAt, &active); err != nil {
			return nil, err
		}
		k.IsActive = active == 1
		out = append(out, k)
	}
	return out, rows.Err()
}

// Subscription is one billing subscription record
type Subscription struct {
	ID             int64
	APIKeyID       sql.NullInt64
	CustomerID     string
	SubscriptionID string // external id, unique
	Tier           string
	Status         string
	CreatedAt      int64
	UpdatedAt      int64
}

// UpsertSubscription creates or updates a subscription by external id
func (s *Store) UpsertSubscription(subscriptionID, customerID, tier, status string, keyID int64) error {
	now := time.Now().Unix()
	_, err := s.db.Exec(`
		INSERT INTO subscriptions
			(api_key_id, external_customer_id, external_subscription_id, tier, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_subscription_id) DO UPDATE SET
			tier = excluded.tier,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		keyID, customerID, subscriptionID, tier, status, now, now)
	return err
}

// GetSubscription returns a subscription by external id, or nil
func (s *Store) GetSubscription(subscriptionID string) (*Subscription, error) {
	var sub Subscription
	err := s.db.QueryRow(`
		SELECT id, api_key_id, external_customer_id, external_subscription_id, tier, status, created_at, updated_at
		FROM subscriptions WHERE external_subscription_id = ?`, subscriptionID).Scan(
		&sub.ID, &sub.APIKeyID, &sub.CustomerID, &sub.SubscriptionID, &sub.Tier, &sub.Status, &sub.CreatedAt, &sub.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ActiveSubscriptionCounts returns active subscription totals per tier
func (s *Store) ActiveSubscriptionCounts() (map[string]int, error) {
	rows, err := s.db.Query(`
		SELECT tier, COUNT(*) FROM subscriptions WHERE status = 'active' GROUP BY tier`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var tier string
		var n int
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, err
		}
		out[tier] = n
	}
	return out, rows.Err()
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
