package monitor

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// seedFile is the on-disk seed layout produced by the offline analyzer
type seedFile struct {
	Wallets []seedWallet `json:"wallets"`
}

type seedWallet struct {
	Wallet            string             `json:"wallet"`
	NetTotal          float64            `json:"net_total"`
	WinRate           float64            `json:"win_rate"`
	TotalProfit       float64            `json:"total_profit"`
	TotalLoss         float64            `json:"total_loss"`
	TotalTransactions int                `json:"total_transactions"`
	DailyNet          map[string]float64 `json:"daily_net"`
	DexCounter        map[string]int     `json:"dex_counter"`
	TopCounterparties []rankedEntry      `json:"top_counterparties"`
	TopPrograms       []rankedEntry      `json:"top_programs"`
	BestTransaction   map[string]any     `json:"best_transaction"`
	WorstTransaction  map[string]any     `json:"worst_transaction"`
	Transactions      []seedTransaction  `json:"transactions"`
}

type seedTransaction struct {
	Date string `json:"date"`
}

// rankedEntry decodes the seed's ["address", count] pairs
type rankedEntry struct {
	Address string
	Count   float64
}

func (r *rankedEntry) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) > 0 {
		if err := json.Unmarshal(pair[0], &r.Address); err != nil {
			return err
		}
	}
	if len(pair) > 1 {
		if err := json.Unmarshal(pair[1], &r.Count); err != nil {
			return err
		}
	}
	return nil
}

// Baseline is the per-wallet profile derived from the seed file. The
// net-total and win-rate fields act as opaque alert filters; promoted
// wallets start with zeroed baselines.
type Baseline struct {
	Wallet            string
	NetTotal          float64
	WinRate           float64
	TotalTransactions int
	Venue             string
	DurationHours     float64
	Profitability     float64
	ConsistencyIndex  float64
	TopCounterparties []string
	TopPrograms       []string
	BestTxNet         float64
	WorstTxNet        float64
	HasBestTx         bool
	HasWorstTx        bool
	Promoted          bool
}

// Baselines is the concurrent baseline registry
type Baselines struct {
	mu sync.RWMutex
	m  map[string]Baseline
}

// NewBaselines wraps a baseline set
func NewBaselines(list []Baseline) *Baselines {
	m := make(map[string]Baseline, len(list))
	for _, b := range list {
		m[b.Wallet] = b
	}
	return &Baselines{m: m}
}

// Get returns a wallet's baseline and whether one exists
func (b *Baselines) Get(wallet string) (Baseline, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bl, ok := b.m[wallet]
	return bl, ok
}

// AddPromoted registers a zeroed baseline for an auto-promoted wallet
func (b *Baselines) AddPromoted(wallet, venue string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.m[wallet]; ok {
		return
	}
	b.m[wallet] = Baseline{Wallet: wallet, Venue: venue, Promoted: true}
}

// All snapshots the baselines for reporting
func (b *Baselines) All() []Baseline {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Baseline, 0, len(b.m))
	for _, bl := range b.m {
		out = append(out, bl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NetTotal > out[j].NetTotal })
	return out
}

// Len returns how many baselines are known
func (b *Baselines) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.m)
}

var seedDateFormats = []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05Z"}

func parseSeedDate(s string) (time.Time, bool) {
	if s == "" || s == "Unknown" {
		return time.Time{}, false
	}
	for _, format := range seedDateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// LoadSeed reads the seed file and derives baselines plus the initial
// watchlist: wallets passing the gain and win-rate filters, ordered by
// net total descending, truncated to maxSize.
func LoadSeed(path string, gainFilter, winRateFilter float64, maxSize int) ([]Baseline, []string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("path", path).Msg("seed file missing, starting empty")
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("read seed: %w", err)
	}

	var seed seedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, nil, fmt.Errorf("parse seed: %w", err)
	}

	baselines := make([]Baseline, 0, len(seed.Wallets))
	for _, w := range seed.Wallets {
		if w.Wallet == "" {
			continue
		}

		var first, last time.Time
		for _, tx := range w.Transactions {
			t, ok := parseSeedDate(tx.Date)
			if !ok {
				continue
			}
			if first.IsZero() || t.Before(first) {
				first = t
			}
			if last.IsZero() || t.After(last) {
				last = t
			}
		}
		var duration float64
		if !first.IsZero() {
			duration = last.Sub(first).Hours()
		}

		denom := w.TotalProfit + w.TotalLoss
		var profitability float64
		if denom != 0 {
			profitability = w.NetTotal / denom
		}

		// day-to-day net ratios feed the consistency index
		ratios := make([]float64, 0, len(w.DailyNet))
		for _, v := range w.DailyNet {
			switch {
			case denom != 0:
				ratios = append(ratios, v/denom)
			case w.NetTotal != 0:
				ratios = append(ratios, v/math.Abs(w.NetTotal))
			default:
				ratios = append(ratios, 0)
			}
		}
		var variance float64
		if len(ratios) >= 2 {
			variance = pvariance(ratios)
		}

		venue := "Unknown"
		bestCount := 0
		for dex, n := range w.DexCounter {
			if n > bestCount || (n == bestCount && venue != "Unknown" && dex < venue) {
				venue = dex
				bestCount = n
			}
		}

		best, hasBest := txNetResult(w.BestTransaction)
		worst, hasWorst := txNetResult(w.WorstTransaction)

		baselines = append(baselines, Baseline{
			Wallet:            w.Wallet,
			NetTotal:          w.NetTotal,
			WinRate:           w.WinRate,
			TotalTransactions: w.TotalTransactions,
			Venue:             venue,
			DurationHours:     duration,
			Profitability:     profitability,
			ConsistencyIndex:  w.WinRate * (1 - variance),
			TopCounterparties: rankedAddresses(w.TopCounterparties, 5),
			TopPrograms:       rankedAddresses(w.TopPrograms, 5),
			BestTxNet:         best,
			WorstTxNet:        worst,
			HasBestTx:         hasBest,
			HasWorstTx:        hasWorst,
		})
	}

	candidates := make([]Baseline, len(baselines))
	copy(candidates, baselines)
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].NetTotal > candidates[j].NetTotal })

	watchlist := make([]string, 0, maxSize)
	for _, c := range candidates {
		if c.NetTotal < gainFilter || c.WinRate < winRateFilter {
			continue
		}
		watchlist = append(watchlist, c.Wallet)
		if len(watchlist) >= maxSize {
			break
		}
	}

	log.Info().
		Int("wallets", len(baselines)).
		Int("watchlist", len(watchlist)).
		Msg("seed loaded")
	return baselines, watchlist, nil
}

func rankedAddresses(entries []rankedEntry, limit int) []string {
	out := make([]string, 0, limit)
	for _, e := range entries {
		if e.Address == "" {
			continue
		}
		out = append(out, e.Address)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// txNetResult extracts the net_result of a seed transaction record
func txNetResult(tx map[string]any) (float64, bool) {
	v, ok := tx["net_result"]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// pvariance is the population variance
func pvariance(vals []float64) float64 {
	var mean float64
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))

	var sum float64
	for _, v := range vals {
		d := v - mean
		sum += d * d
	}
	return sum / float64(len(vals))
}
