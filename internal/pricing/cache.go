package pricing

import (
	"database/sql"
	"time"

	"wallet-radar/internal/storage"
)

// CachedPrice is one row of the token price cache
type CachedPrice struct {
	Mint     string
	PriceSol float64
	LastSeen int64
}

// Cache persists token prices (in SOL) with a freshness TTL
type Cache struct {
	db  *sql.DB
	ttl time.Duration
}

// NewCache opens (creating if needed) the price cache database
func NewCache(path string, ttl time.Duration) (*Cache, error) {
	db, err := storage.Open(path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS token_prices (
		mint TEXT PRIMARY KEY,
		price_sol REAL NOT NULL,
		last_seen INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}

	return &Cache{db: db, ttl: ttl}, nil
}

// Get returns a cached price, or nil when absent
func (c *Cache) Get(mint string) (*CachedPrice, error) {
	var p CachedPrice
	err := c.db.QueryRow(`
		SELECT mint, price_sol, last_seen FROM token_prices WHERE mint = ?`, mint).Scan(
		&p.Mint, &p.PriceSol, &p.LastSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetFresh returns a cached price only if it is within the TTL
func (c *Cache) GetFresh(mint string) (*CachedPrice, error) {
	p, err := c.Get(mint)
	if err != nil || p == nil {
		return nil, err
	}
	if time.Since(time.Unix(p.LastSeen, 0)) > c.ttl {
		return nil, nil
	}
	return p, nil
}

// Put inserts or refreshes a price
func (c *Cache) Put(mint string, priceSol float64) error {
	_, err := c.db.Exec(`
		INSERT OR REPLACE INTO token_prices (mint, price_sol, last_seen)
		VALUES (?, ?, ?)`, mint, priceSol, time.Now().Unix())
	return err
}

// Size returns the number of cached prices
func (c *Cache) Size() (int, error) {
	var n int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM token_prices`).Scan(&n)
	return n, err
}

// PruneExpired drops entries older than the TTL and returns how many
func (c *Cache) PruneExpired() (int64, error) {
	cutoff := time.Now().Add(-c.ttl).Unix()
	res, err := c.db.Exec(`DELETE FROM token_prices WHERE last_seen < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close closes the database
func (c *Cache) Close() error {
	return c.db.Close()
}
