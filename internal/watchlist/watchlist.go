// Package watchlist tracks the bounded set of wallets under watch.
// When the cap is reached the least recently active wallet is evicted,
// so auto-promoted wallets can displace quiet baseline ones.
package watchlist

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"wallet-radar/internal/metrics"
)

// Wallet is one watched wallet with its baseline analytics
type Wallet struct {
	Address       string  `json:"address"`
	NetTotal      float64 `json:"net_total"`
	WinRate       float64 `json:"win_rate"`
	Profitability float64 `json:"profitability"`
	Consistency   float64 `json:"consistency"`
	Venue         string  `json:"venue"`
	Promoted      bool    `json:"promoted"`
	AddedAt       time.Time
}

// Watchlist is a fixed-capacity LRU set of wallets
type Watchlist struct {
	mu      sync.Mutex
	max     int
	order   []string // front = least recently active
	wallets map[string]*Wallet
	metrics *metrics.Metrics
}

// New creates a watchlist with the given capacity. metrics may be nil.
func New(max int, m *metrics.Metrics) *Watchlist {
	return &Watchlist{
		max:     max,
		wallets: make(map[string]*Wallet),
		metrics: m,
	}
}

// Add inserts or refreshes a wallet. When the cap is exceeded the least
// recently active wallet is evicted and its address returned.
func (w *Watchlist) Add(wallet *Wallet) (evicted string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if wallet.AddedAt.IsZero() {
		wallet.AddedAt = time.Now()
	}

	if _, ok := w.wallets[wallet.Address]; ok {
		w.wallets[wallet.Address] = wallet
		w.bump(wallet.Address)
		return ""
	}

	w.wallets[wallet.Address] = wallet
	w.order = append(w.order, wallet.Address)

	if len(w.wallets) > w.max {
		evicted = w.order[0]
		w.order = w.order[1:]
		delete(w.wallets, evicted)
		log.Info().Str("evicted", evicted).Str("added", wallet.Address).Msg("watchlist at capacity")
	}

	w.updateGauge()
	return evicted
}

// Touch marks a wallet as recently active
func (w *Watchlist) Touch(address string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.wallets[address]; ok {
		w.bump(address)
	}
}

// bump moves an address to the most-recently-active end. Caller holds the lock.
func (w *Watchlist) bump(address string) {
	for i, a := range w.order {
		if a == address {
			w.order = append(append(w.order[:i:i], w.order[i+1:]...), address)
			return
		}
	}
	w.order = append(w.order, address)
}

// Contains reports whether an address is watched
func (w *Watchlist) Contains(address string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.wallets[address]
	return ok
}

// Get returns a watched wallet, or nil
func (w *Watchlist) Get(address string) *Wallet {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.wallets[address]
}

// Addresses snapshots the watched addresses, least recently active first
func (w *Watchlist) Addresses() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.order))
	copy(out, w.order)
	return out
}

// Wallets snapshots all watched wallets
func (w *Watchlist) Wallets() []*Wallet {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*Wallet, 0, len(w.order))
	for _, a := range w.order {
		out = append(out, w.wallets[a])
	}
	return out
}

// Len returns the number of watched wallets
func (w *Watchlist) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.wallets)
}

func (w *Watchlist) updateGauge() {
	if w.metrics != nil {
		w.metrics.WatchlistSize.Set(float64(len(w.wallets)))
	}
}
