package monitor

import (
	"math"
	"sort"
	"sync"
	"time"

	"wallet-radar/internal/profit"
)

// Disclaimer accompanies every externally visible signal
const Disclaimer = "⚠️ Data feed only, not financial advice"

// Alert is one emitted signal. Never mutated after creation.
type Alert struct {
	Wallet         string            `json:"wallet"`
	Profit         float64           `json:"profit"`
	Venue          string            `json:"dex"`
	WinRate        float64           `json:"win_rate"`
	Timestamp      time.Time         `json:"timestamp"`
	Counterparties []string          `json:"counterparties"`
	SignalType     string            `json:"signal_type"`
	ZScore         float64           `json:"zscore"`
	Signature      string            `json:"signature"`
	DetectMs       float64           `json:"detect_ms"`
	Confidence     profit.Confidence `json:"pnl_confidence"`
	SubMetrics     profit.SubMetrics `json:"confidence_reasons"`
	DryRun         bool              `json:"dry_run"`
	Tier           string            `json:"tier"`
}

// Ring is a bounded FIFO of alerts shared between the scan loop and
// the API service.
type Ring struct {
	mu     sync.RWMutex
	alerts []Alert
	max    int
}

// NewRing creates a ring holding at most max alerts
func NewRing(max int) *Ring {
	return &Ring{max: max}
}

// Append adds an alert, evicting the oldest past capacity
func (r *Ring) Append(a Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	if len(r.alerts) > r.max {
		r.alerts = r.alerts[len(r.alerts)-r.max:]
	}
}

// Last returns up to n newest alerts, oldest first
func (r *Ring) Last(n int) []Alert {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n > len(r.alerts) {
		n = len(r.alerts)
	}
	out := make([]Alert, n)
	copy(out, r.alerts[len(r.alerts)-n:])
	return out
}

// Len returns the current ring size
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.alerts)
}

// LastProfit returns the profit of the newest alert, zero when empty
func (r *Ring) LastProfit() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.alerts) == 0 {
		return 0
	}
	return r.alerts[len(r.alerts)-1].Profit
}

// Blocked alert reasons, in filter-chain order
const (
	ReasonWalletFiltered   = "wallet_filtered"
	ReasonProfitBelow      = "profit_below_threshold"
	ReasonConfidenceTooLow = "confidence_too_low"
	ReasonIdempotence      = "idempotence"
	ReasonCooldown         = "cooldown"
)

// BlockedAlert records a signal the filter chain rejected
type BlockedAlert struct {
	Wallet    string         `json:"wallet"`
	Profit    float64        `json:"profit"`
	Reason    string         `json:"reason"`
	Details   map[string]any `json:"details"`
	Timestamp time.Time      `json:"timestamp"`
}

// BlockedLedger keeps recent blocked alerts for the detailed report
type BlockedLedger struct {
	mu      sync.Mutex
	entries []BlockedAlert
}

// NewBlockedLedger creates an empty ledger
func NewBlockedLedger() *BlockedLedger {
	return &BlockedLedger{}
}

// Record appends one blocked alert
func (l *BlockedLedger) Record(wallet string, profitSol float64, reason string, details map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, BlockedAlert{
		Wallet:    wallet,
		Profit:    profitSol,
		Reason:    reason,
		Details:   details,
		Timestamp: time.Now(),
	})
}

// Prune drops entries older than the retention window
func (l *BlockedLedger) Prune(retention time.Duration) {
	cutoff := time.Now().Add(-retention)
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.entries[:0]
	for _, e := range l.entries {
		if e.Timestamp.After(cutoff) {
			kept = append(kept, e)
		}
	}
	l.entries = kept
}

// Last returns up to n newest entries, oldest first
func (l *BlockedLedger) Last(n int) []BlockedAlert {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]BlockedAlert, n)
	copy(out, l.entries[len(l.entries)-n:])
	return out
}

// RecentCount counts entries newer than the window
func (l *BlockedLedger) RecentCount(window time.Duration) int {
	cutoff := time.Now().Add(-window)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.Timestamp.After(cutoff) {
			n++
		}
	}
	return n
}

// Len returns the ledger size
func (l *BlockedLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

const zHistoryCap = 50

// zTracker keeps a bounded per-wallet profit history for z-scoring
type zTracker struct {
	mu      sync.Mutex
	history map[string][]float64
}

func newZTracker() *zTracker {
	return &zTracker{history: make(map[string][]float64)}
}

// Observe computes the z-score of a profit against the wallet's prior
// history, then appends it. Fewer than two priors yield zero, as does
// a zero standard deviation.
func (z *zTracker) Observe(wallet string, profitSol float64) float64 {
	z.mu.Lock()
	defer z.mu.Unlock()

	history := z.history[wallet]
	var score float64
	if len(history) >= 2 {
		var mean float64
		for _, v := range history {
			mean += v
		}
		mean /= float64(len(history))

		var sum float64
		for _, v := range history {
			d := v - mean
			sum += d * d
		}
		std := math.Sqrt(sum / float64(len(history)))
		if std != 0 {
			score = (profitSol - mean) / std
		}
	}

	history = append(history, profitSol)
	if len(history) > zHistoryCap {
		history = history[len(history)-zHistoryCap:]
	}
	z.history[wallet] = history
	return score
}

// Size returns how many wallets have profit history
func (z *zTracker) Size() int {
	z.mu.Lock()
	defer z.mu.Unlock()
	return len(z.history)
}

// ClusterCounter tallies counterparty co-occurrence across alerts
type ClusterCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewClusterCounter creates an empty counter
func NewClusterCounter() *ClusterCounter {
	return &ClusterCounter{counts: make(map[string]int)}
}

// Update adds one occurrence per address
func (c *ClusterCounter) Update(addresses []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range addresses {
		c.counts[a]++
	}
}

// Top returns the n most frequent counterparties
func (c *ClusterCounter) Top(n int) []RankedCounterparty {
	c.mu.Lock()
	out := make([]RankedCounterparty, 0, len(c.counts))
	for addr, count := range c.counts {
		out = append(out, RankedCounterparty{Address: addr, Count: count})
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Address < out[j].Address
	})
	if n < len(out) {
		out = out[:n]
	}
	return out
}

// RankedCounterparty pairs an address with its alert co-occurrences
type RankedCounterparty struct {
	Address string `json:"address"`
	Count   int    `json:"count"`
}
