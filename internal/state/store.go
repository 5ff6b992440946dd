// Package state keeps the monitor's working memory: which signatures
// were already processed, the last signature seen per wallet, and the
// last alert time per wallet. Held in memory, persisted to sqlite.
package state

import (
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"wallet-radar/internal/metrics"
	"wallet-radar/internal/storage"
)

// Store is the sqlite-backed monitor state
type Store struct {
	db      *sql.DB
	ttl     time.Duration
	maxSeen int
	metrics *metrics.Metrics

	mu         sync.Mutex
	seen       map[string]int64 // signature -> unix ts
	lastSigs   map[string]string
	lastAlerts map[string]int64
}

// NewStore opens the state database and loads prior state. Seen
// signatures and alert marks past the TTL are not loaded; the seen cap
// applies newest-first.
func NewStore(path string, ttl time.Duration, maxSeen int, m *metrics.Metrics) (*Store, error) {
	db, err := storage.Open(path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS seen_signatures (
		signature TEXT PRIMARY KEY,
		timestamp INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS last_signatures (
		wallet TEXT PRIMARY KEY,
		signature TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS last_alerts (
		wallet TEXT PRIMARY KEY,
		timestamp INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}

	s := &Store{
		db:         db,
		ttl:        ttl,
		maxSeen:    maxSeen,
		metrics:    m,
		seen:       make(map[string]int64),
		lastSigs:   make(map[string]string),
		lastAlerts: make(map[string]int64),
	}

	if err := s.load(); err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	s.updateGauges()
	return s, nil
}

func (s *Store) load() error {
	cutoff := time.Now().Add(-s.ttl).Unix()

	rows, err := s.db.Query(`
		SELECT signature, timestamp FROM seen_signatures
		WHERE timestamp >= ? ORDER BY timestamp DESC LIMIT ?`, cutoff, s.maxSeen)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var sig string
		var ts int64
		if err := rows.Scan(&sig, &ts); err != nil {
			return err
		}
		s.seen[sig] = ts
	}
	if err := rows.Err(); err != nil {
		return err
	}

	sigRows, err := s.db.Query(`SELECT wallet, signature FROM last_signatures`)
	if err != nil {
		return err
	}
	defer sigRows.Close()
	for sigRows.Next() {
		var wallet, sig string
		if err := sigRows.Scan(&wallet, &sig); err != nil {
			return err
		}
		s.lastSigs[wallet] = sig
	}
	if err := sigRows.Err(); err != nil {
		return err
	}

	alertRows, err := s.db.Query(`SELECT wallet, timestamp FROM last_alerts WHERE timestamp >= ?`, cutoff)
	if err != nil {
		return err
	}
	defer alertRows.Close()
	for alertRows.Next() {
		var wallet string
		var ts int64
		if err := alertRows.Scan(&wallet, &ts); err != nil {
			return err
		}
		s.lastAlerts[wallet] = ts
	}
	if err := alertRows.Err(); err != nil {
		return err
	}

	log.Info().
		Int("seen", len(s.seen)).
		Int("lastSignatures", len(s.lastSigs)).
		Int("lastAlerts", len(s.lastAlerts)).
		Msg("state loaded")
	return nil
}

// MarkSeen records a processed signature
func (s *Store) MarkSeen(sig string) {
	s.mu.Lock()
	s.seen[sig] = time.Now().Unix()
	s.mu.Unlock()
}

// Seen reports whether a signature was already processed
func (s *Store) Seen(sig string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[sig]
	return ok
}

// AnySeen reports whether any of the signatures was already processed
func (s *Store) AnySeen(sigs []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sig := range sigs {
		if _, ok := s.seen[sig]; ok {
			return true
		}
	}
	return false
}

// SeenCount returns how many signatures are tracked
func (s *Store) SeenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// LastSignature returns the newest processed signature for a wallet
func (s *Store) LastSignature(wallet string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSigs[wallet]
}

// SetLastSignature records the newest processed signature for a wallet
func (s *Store) SetLastSignature(wallet, sig string) {
	s.mu.Lock()
	s.lastSigs[wallet] = sig
	s.mu.Unlock()
}

// LastAlert returns when a wallet last alerted (zero time when never)
func (s *Store) LastAlert(wallet string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.lastAlerts[wallet]
	if !ok {
		return time.Time{}
	}
	return time.Unix(ts, 0)
}

// SetLastAlert records an alert time for a wallet
func (s *Store) SetLastAlert(wallet string, at time.Time) {
	s.mu.Lock()
	s.lastAlerts[wallet] = at.Unix()
	s.mu.Unlock()
}

// LastAlerts snapshots the per-wallet alert times for reports
func (s *Store) LastAlerts() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.lastAlerts))
	for w, ts := range s.lastAlerts {
		out[w] = time.Unix(ts, 0)
	}
	return out
}

// GetValue reads a key from the generic state table
func (s *Store) GetValue(key string) (string, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM state WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return v, err
}

// SetValue writes a key to the generic state table
func (s *Store) SetValue(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO state (key, value) VALUES (?, ?)`, key, value)
	return err
}

// GC drops expired seen signatures and alert marks, evicts seen
// signatures oldest-first down to the cap, then refreshes the
// cache-size gauges.
func (s *Store) GC() (dropped int) {
	s.mu.Lock()

	cutoff := time.Now().Add(-s.ttl).Unix()
	for sig, ts := range s.seen {
		if ts < cutoff {
			delete(s.seen, sig)
			dropped++
		}
	}
	for wallet, ts := range s.lastAlerts {
		if ts < cutoff {
			delete(s.lastAlerts, wallet)
			dropped++
		}
	}

	if len(s.seen) > s.maxSeen {
		type entry struct {
			sig string
			ts  int64
		}
		entries := make([]entry, 0, len(s.seen))
		for sig, ts := range s.seen {
			entries = append(entries, entry{sig, ts})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].ts < entries[j].ts })
		for _, e := range entries[:len(s.seen)-s.maxSeen] {
			delete(s.seen, e.sig)
			dropped++
		}
	}
	s.mu.Unlock()

	s.updateGauges()
	if dropped > 0 {
		log.Debug().Int("dropped", dropped).Msg("state GC")
	}
	return dropped
}

func (s *Store) updateGauges() {
	if s.metrics == nil {
		return
	}
	s.mu.Lock()
	seen, sigs, alerts := len(s.seen), len(s.lastSigs), len(s.lastAlerts)
	s.mu.Unlock()
	s.metrics.CacheSize.WithLabelValues("seen_signatures").Set(float64(seen))
	s.metrics.CacheSize.WithLabelValues("last_signatures").Set(float64(sigs))
	s.metrics.CacheSize.WithLabelValues("last_alerts").Set(float64(alerts))
}

// Save persists the in-memory state, replacing the stored copy in one
// transaction.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"seen_signatures", "last_signatures", "last_alerts"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return err
		}
	}

	for sig, ts := range s.seen {
		if _, err := tx.Exec(`INSERT INTO seen_signatures (signature, timestamp) VALUES (?, ?)`, sig, ts); err != nil {
			return err
		}
	}
	for wallet, sig := range s.lastSigs {
		if _, err := tx.Exec(`INSERT INTO last_signatures (wallet, signature) VALUES (?, ?)`, wallet, sig); err != nil {
			return err
		}
	}
	for wallet, ts := range s.lastAlerts {
		if _, err := tx.Exec(`INSERT INTO last_alerts (wallet, timestamp) VALUES (?, ?)`, wallet, ts); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Debug().Int("seen", len(s.seen)).Msg("state saved")
	return nil
}

// Close saves and closes the database
func (s *Store) Close() error {
	if err := s.Save(); err != nil {
		log.Error().Err(err).Msg("failed to save state on close")
	}
	return s.db.Close()
}
