// Package report renders the operator-facing artifacts of the scan
// loop: the CSV dashboard, the Markdown summary, and the timestamped
// detailed JSON reports.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"wallet-radar/internal/blockchain"
	"wallet-radar/internal/config"
	"wallet-radar/internal/monitor"
	"wallet-radar/internal/state"
	"wallet-radar/internal/watchlist"
)

const (
	// blockedWindow bounds blocked alerts included in detailed reports
	blockedWindow = 10 * time.Minute
	// keepReports caps the detailed report files kept on disk
	keepReports = 10
)

// Writer renders reports from the live monitor components
type Writer struct {
	cfg       *config.Manager
	state     *state.Store
	watch     *watchlist.Watchlist
	baselines *monitor.Baselines
	ring      *monitor.Ring
	blocked   *monitor.BlockedLedger
	clusters  *monitor.ClusterCounter
	stats     *monitor.ScanStats

	// health snapshots the RPC fabric, nil when running on fixtures
	health func() []blockchain.EndpointHealth
	// priceCacheSize counts cached token prices, nil when unavailable
	priceCacheSize func() int

	startedAt time.Time
	now       func() time.Time
}

// NewWriter wires a report writer. health and priceCacheSize may be nil.
func NewWriter(
	cfg *config.Manager,
	st *state.Store,
	watch *watchlist.Watchlist,
	baselines *monitor.Baselines,
	e *monitor.Engine,
	health func() []blockchain.EndpointHealth,
	priceCacheSize func() int,
) *Writer {
	return &Writer{
		cfg:            cfg,
		state:          st,
		watch:          watch,
		baselines:      baselines,
		ring:           e.Ring,
		blocked:        e.Blocked,
		clusters:       e.Clusters,
		stats:          e.Stats,
		health:         health,
		priceCacheSize: priceCacheSize,
		startedAt:      time.Now(),
		now:            time.Now,
	}
}

// Refresh writes the dashboard and the Markdown report. Fits the
// scheduler's report hook.
func (w *Writer) Refresh() {
	if err := w.WriteDashboard(); err != nil {
		log.Error().Err(err).Msg("dashboard write failed")
	}
	if err := w.WriteReport(); err != nil {
		log.Error().Err(err).Msg("report write failed")
	}
}

// RefreshDetailed builds and saves one detailed JSON report. Fits the
// scheduler's detailed report hook.
func (w *Writer) RefreshDetailed() {
	if _, err := w.WriteDetailed(); err != nil {
		log.Error().Err(err).Msg("detailed report write failed")
	}
}

// latestAlerts maps each wallet to its newest alert
func (w *Writer) latestAlerts() map[string]monitor.Alert {
	latest := make(map[string]monitor.Alert)
	for _, a := range w.ring.Last(w.ring.Len()) {
		latest[a.Wallet] = a
	}
	return latest
}

// WriteDashboard renders the CSV dashboard: one row per known wallet,
// baseline columns plus the latest alert activity, net total descending.
func (w *Writer) WriteDashboard() error {
	path := w.cfg.Get().Storage.DashboardCSV
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("dashboard dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("dashboard create: %w", err)
	}
	defer f.Close()

	latest := w.latestAlerts()

	cw := csv.NewWriter(f)
	header := []string{
		"wallet", "net_total", "win_rate", "total_transactions", "dex",
		"duration_hours", "profitability", "consistency_index",
		"last_alert_profit", "last_activity", "alert_active",
		"last_signal_type", "last_zscore", "last_detect_ms",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, b := range w.baselines.All() {
		row := []string{
			b.Wallet,
			formatFloat(b.NetTotal),
			formatFloat(b.WinRate),
			strconv.Itoa(b.TotalTransactions),
			b.Venue,
			formatFloat(b.DurationHours),
			formatFloat(b.Profitability),
			formatFloat(b.ConsistencyIndex),
			"", "", "false", "", "", "",
		}
		if a, ok := latest[b.Wallet]; ok {
			row[8] = formatFloat(a.Profit)
			row[9] = a.Timestamp.UTC().Format(time.RFC3339)
			row[10] = "true"
			row[11] = a.SignalType
			row[12] = formatFloat(a.ZScore)
			row[13] = formatFloat(a.DetectMs)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteReport renders the Markdown summary: wallet roster, the last
// ten alerts with explorer links, and the top counterparty clusters.
func (w *Writer) WriteReport() error {
	path := w.cfg.Get().Storage.ReportMD
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("report dir: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("# Solana Wallet Surveillance\n\n")
	fmt.Fprintf(&sb, "_Last updated: %s_\n\n", w.now().UTC().Format(time.RFC3339))

	sb.WriteString("## Summary\n\n")
	for _, b := range w.baselines.All() {
		fmt.Fprintf(&sb, "- **%s…** (%s): net %+.2f SOL | win rate %.1f%% | active %.1f h",
			truncate(b.Wallet, 12), b.Venue, b.NetTotal, b.WinRate, b.DurationHours)
		if b.HasBestTx {
			fmt.Fprintf(&sb, " | best tx %+.2f", b.BestTxNet)
		}
		if b.HasWorstTx {
			fmt.Fprintf(&sb, " | worst tx %+.2f", b.WorstTxNet)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\n## Last 10 Alerts\n\n")
	alerts := w.ring.Last(10)
	if len(alerts) == 0 {
		sb.WriteString("No alerts yet.\n")
	}
	// newest first
	for i := len(alerts) - 1; i >= 0; i-- {
		a := alerts[i]
		fmt.Fprintf(&sb,
			"- ⚡ **%s…**: %+.2f SOL at %s (%s | %s | Z %+.2f | conf %s | price_cov=%.0f%%, route=%.1f, fee_ok=%s, bal_align=%.0f%%)\n",
			truncate(a.Wallet, 12), a.Profit, a.Timestamp.UTC().Format(time.RFC3339),
			a.Venue, a.SignalType, a.ZScore, a.Confidence,
			a.SubMetrics.PriceCoverage*100, a.SubMetrics.RouteComplexity,
			yesNo(a.SubMetrics.FeeCompleteness > 0.9), a.SubMetrics.BalanceAlignment*100)
		if a.Signature != "" {
			fmt.Fprintf(&sb, "  - [Solscan](https://solscan.io/tx/%s)\n", a.Signature)
		}
	}

	sb.WriteString("\n## Suspicious Clusters\n\n")
	top := w.clusters.Top(10)
	if len(top) == 0 {
		sb.WriteString("No coordinated behavior detected recently.\n")
	}
	for _, c := range top {
		fmt.Fprintf(&sb, "- %s seen %d times across fresh activity\n", c.Address, c.Count)
	}

	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

// DetailedReport is the JSON report shape
type DetailedReport struct {
	Timestamp     string                 `json:"timestamp"`
	UptimeSeconds float64                `json:"uptime_seconds"`
	Configuration ReportConfiguration    `json:"configuration"`
	Statistics    ReportStatistics       `json:"statistics"`
	Wallets       []WalletStatus         `json:"wallets"`
	RecentAlerts  []AlertSummary         `json:"recent_alerts"`
	BlockedAlerts []monitor.BlockedAlert `json:"blocked_alerts"`
	RPCHealth     RPCHealth              `json:"rpc_health"`
	Clusters      ClusterReport          `json:"clusters"`
	Caches        CacheReport            `json:"caches"`
}

type ReportConfiguration struct {
	ProfitAlertThreshold float64 `json:"profit_alert_threshold"`
	GainFilter           float64 `json:"gain_filter"`
	WinRateFilter        float64 `json:"win_rate_filter"`
	AlertCooldownSec     int     `json:"alert_cooldown_sec"`
	TxRefreshSeconds     int     `json:"tx_refresh_seconds"`
	MaxConcurrency       int     `json:"max_concurrency"`
	DryRun               bool    `json:"dry_run"`
	RPCEndpointsCount    int     `json:"rpc_endpoints_count"`
}

type ReportStatistics struct {
	monitor.StatsSnapshot
	SuccessRate         float64 `json:"success_rate"`
	WatchlistSize       int     `json:"watchlist_size"`
	TotalWalletsInData  int     `json:"total_wallets_in_data"`
	AlertsGenerated     int     `json:"alerts_generated"`
	AlertsBlocked       int     `json:"alerts_blocked"`
	SeenSignaturesCount int     `json:"seen_signatures_count"`
}

type WalletStatus struct {
	Wallet              string  `json:"wallet"`
	NetTotal            float64 `json:"net_total"`
	WinRate             float64 `json:"win_rate"`
	Venue               string  `json:"dex"`
	DurationHours       float64 `json:"duration_hours"`
	LastAlertTimestamp  float64 `json:"last_alert_timestamp"`
	CooldownRemaining   float64 `json:"cooldown_remaining_seconds"`
	PassesGainFilter    bool    `json:"passes_gain_filter"`
	PassesWinRateFilter bool    `json:"passes_win_rate_filter"`
}

type AlertSummary struct {
	Wallet     string  `json:"wallet"`
	Profit     float64 `json:"profit"`
	Timestamp  string  `json:"timestamp"`
	Venue      string  `json:"dex"`
	SignalType string  `json:"signal_type"`
	ZScore     float64 `json:"zscore"`
	Confidence string  `json:"confidence"`
	Signature  string  `json:"signature,omitempty"`
}

type RPCHealth struct {
	Endpoints            []string       `json:"endpoints"`
	ErrorCounts          map[string]int `json:"error_counts"`
	CircuitBreakerActive bool           `json:"circuit_breaker_active"`
}

type ClusterReport struct {
	TopAddresses []monitor.RankedCounterparty `json:"top_addresses"`
}

type CacheReport struct {
	SeenSignatures      int `json:"seen_signatures"`
	LastAlertTimestamps int `json:"last_alert_timestamps"`
	TokenPrices         int `json:"token_prices"`
}

// BuildDetailed assembles the detailed report from live components
func (w *Writer) BuildDetailed() *DetailedReport {
	cfg := w.cfg.Get()
	now := w.now()

	snap := w.stats.Snapshot()
	var successRate float64
	if snap.TotalScans > 0 {
		successRate = float64(snap.SuccessfulScans) / float64(snap.TotalScans) * 100
	}

	lastAlerts := w.state.LastAlerts()
	wallets := make([]WalletStatus, 0, w.watch.Len())
	for _, addr := range w.watch.Addresses() {
		b, ok := w.baselines.Get(addr)
		if !ok {
			continue
		}
		var lastTS, remaining float64
		if at, found := lastAlerts[addr]; found {
			lastTS = float64(at.Unix())
			cooldown := float64(cfg.Alerting.CooldownSec)
			if since := now.Sub(at).Seconds(); since < cooldown {
				remaining = cooldown - since
			}
		}
		wallets = append(wallets, WalletStatus{
			Wallet:              addr,
			NetTotal:            b.NetTotal,
			WinRate:             b.WinRate,
			Venue:               b.Venue,
			DurationHours:       b.DurationHours,
			LastAlertTimestamp:  lastTS,
			CooldownRemaining:   remaining,
			PassesGainFilter:    b.NetTotal >= cfg.Alerting.GainFilter,
			PassesWinRateFilter: b.WinRate >= cfg.Alerting.WinRateFilter,
		})
	}

	recent := w.ring.Last(20)
	alerts := make([]AlertSummary, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		a := recent[i]
		alerts = append(alerts, AlertSummary{
			Wallet:     a.Wallet,
			Profit:     a.Profit,
			Timestamp:  a.Timestamp.UTC().Format(time.RFC3339),
			Venue:      a.Venue,
			SignalType: a.SignalType,
			ZScore:     a.ZScore,
			Confidence: string(a.Confidence),
			Signature:  a.Signature,
		})
	}

	blocked := make([]monitor.BlockedAlert, 0, 50)
	cutoff := now.Add(-blockedWindow)
	for _, b := range w.blocked.Last(50) {
		if b.Timestamp.After(cutoff) {
			blocked = append(blocked, b)
		}
	}

	var tokenPrices int
	if w.priceCacheSize != nil {
		tokenPrices = w.priceCacheSize()
	}

	rpc := RPCHealth{
		Endpoints:   cfg.RPC.Endpoints,
		ErrorCounts: make(map[string]int),
	}
	if w.health != nil {
		for _, e := range w.health() {
			rpc.ErrorCounts[e.URL] = e.Failures
			if e.State == "open" {
				rpc.CircuitBreakerActive = true
			}
		}
	}

	return &DetailedReport{
		Timestamp:     now.UTC().Format(time.RFC3339),
		UptimeSeconds: now.Sub(w.startedAt).Seconds(),
		Configuration: ReportConfiguration{
			ProfitAlertThreshold: cfg.Alerting.ProfitThreshold,
			GainFilter:           cfg.Alerting.GainFilter,
			WinRateFilter:        cfg.Alerting.WinRateFilter,
			AlertCooldownSec:     cfg.Alerting.CooldownSec,
			TxRefreshSeconds:     cfg.Loop.TxRefreshSeconds,
			MaxConcurrency:       cfg.Loop.MaxConcurrency,
			DryRun:               cfg.Modes.DryRun,
			RPCEndpointsCount:    len(cfg.RPC.Endpoints),
		},
		Statistics: ReportStatistics{
			StatsSnapshot:       snap,
			SuccessRate:         successRate,
			WatchlistSize:       w.watch.Len(),
			TotalWalletsInData:  w.baselines.Len(),
			AlertsGenerated:     w.ring.Len(),
			AlertsBlocked:       w.blocked.RecentCount(blockedWindow),
			SeenSignaturesCount: w.state.SeenCount(),
		},
		Wallets:       wallets,
		RecentAlerts:  alerts,
		BlockedAlerts: blocked,
		RPCHealth:     rpc,
		Clusters:      ClusterReport{TopAddresses: w.clusters.Top(10)},
		Caches: CacheReport{
			SeenSignatures:      w.state.SeenCount(),
			LastAlertTimestamps: len(lastAlerts),
			TokenPrices:         tokenPrices,
		},
	}
}

// WriteDetailed saves a timestamped detailed report into the report
// directory, keeping only the ten newest files.
func (w *Writer) WriteDetailed() (*DetailedReport, error) {
	report := w.BuildDetailed()

	dir := w.cfg.Get().Storage.ReportDir
	if dir == "" {
		return report, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("report dir: %w", err)
	}

	name := fmt.Sprintf("detailed_report_%s.json", w.now().UTC().Format("20060102_150405"))
	path := filepath.Join(dir, name)

	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("report marshal: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return nil, fmt.Errorf("report write: %w", err)
	}

	w.rotate(dir)

	log.Info().Str("file", path).Int("report_size", len(body)).Msg("detailed report saved")
	return report, nil
}

// rotate drops all but the newest detailed report files
func (w *Writer) rotate(dir string) {
	matches, err := filepath.Glob(filepath.Join(dir, "detailed_report_*.json"))
	if err != nil {
		return
	}
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	for _, old := range matches[min(keepReports, len(matches)):] {
		if err := os.Remove(old); err != nil {
			log.Warn().Err(err).Str("file", old).Msg("stale report removal failed")
		}
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}
