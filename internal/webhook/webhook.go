// Package webhook delivers alerts and system notices to a chat webhook
// target. Deliveries are best-effort: failures are logged and counted,
// never surfaced to the scan loop.
package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"wallet-radar/internal/monitor"
)

const (
	username = "WalletRadar"

	// dedupWindow suppresses identical alert content
	dedupWindow = 30 * time.Second
	// dedupRetention bounds the dedup cache
	dedupRetention = 5 * time.Minute
	// circuitPause skips sends for a key after a failure
	circuitPause = 30 * time.Second
	// systemDedupBucket coarsely dedups system notices
	systemDedupBucket = 5 * time.Second

	alertTimeout  = 2 * time.Second
	systemTimeout = 5 * time.Second
)

// Payload is the webhook body
type Payload struct {
	Username string  `json:"username"`
	Embeds   []Embed `json:"embeds"`
}

// Embed is one rich message block
type Embed struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Fields      []Field `json:"fields"`
	Color       int     `json:"color,omitempty"`
	Timestamp   string  `json:"timestamp"`
}

// Field is one embed field
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Sender posts alerts to a single webhook URL. An empty URL disables
// all sends. Implements the alert sink contract of the scan engine.
type Sender struct {
	url            string
	includeUpgrade bool
	client         *http.Client

	// overridable for tests
	now        func() time.Time
	retryDelay func(attempt int) time.Duration

	mu          sync.Mutex
	sent        map[string]time.Time
	lastFailure map[string]time.Time
	sysSent     map[string]bool
}

// NewSender creates a webhook sender
func NewSender(url string, includeUpgrade bool) *Sender {
	return &Sender{
		url:            url,
		includeUpgrade: includeUpgrade,
		client:         &http.Client{Timeout: alertTimeout},
		now:            time.Now,
		retryDelay: func(attempt int) time.Duration {
			base := 500 * time.Millisecond << attempt
			return base + time.Duration(rand.Int63n(int64(200*time.Millisecond)))
		},
		sent:        make(map[string]time.Time),
		lastFailure: make(map[string]time.Time),
		sysSent:     make(map[string]bool),
	}
}

// Deliver sends one alert, honoring content dedup and the per-wallet
// circuit. Failures open the circuit for 30 seconds.
func (s *Sender) Deliver(alert monitor.Alert) {
	if s.url == "" {
		return
	}

	sig := alert.Signature
	if sig == "" {
		sig = "no_sig"
	}
	dedupKey := fmt.Sprintf("%s_%s_%d", alert.Wallet, sig, int(alert.Profit*100))

	now := s.now()
	s.mu.Lock()
	if last, ok := s.sent[dedupKey]; ok && now.Sub(last) < dedupWindow {
		s.mu.Unlock()
		log.Debug().Str("wallet", alert.Wallet).Msg("webhook alert deduplicated")
		return
	}
	s.sent[dedupKey] = now
	for k, v := range s.sent {
		if now.Sub(v) > dedupRetention {
			delete(s.sent, k)
		}
	}

	if last, ok := s.lastFailure[alert.Wallet]; ok && now.Sub(last) < circuitPause {
		s.mu.Unlock()
		log.Warn().Str("wallet", alert.Wallet).Msg("webhook circuit open, alert dropped")
		return
	}
	s.mu.Unlock()

	payload := Payload{
		Username: username,
		Embeds: []Embed{{
			Title:     fmt.Sprintf("⚡ Wallet %s… %+.2f SOL", truncate(alert.Wallet, 8), alert.Profit),
			Fields:    s.alertFields(alert),
			Timestamp: now.UTC().Format(time.RFC3339),
		}},
	}

	if s.post(payload, 2) {
		s.mu.Lock()
		delete(s.lastFailure, alert.Wallet)
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.lastFailure[alert.Wallet] = s.now()
	s.mu.Unlock()
}

// alertFields shapes embed fields by tier: free gets the minimal set
// plus an optional upgrade prompt; pro and elite add scoring detail.
func (s *Sender) alertFields(alert monitor.Alert) []Field {
	fields := []Field{
		{Name: "Wallet", Value: alert.Wallet, Inline: true},
		{Name: "Profit (SOL)", Value: fmt.Sprintf("%.2f", alert.Profit), Inline: true},
		{Name: "Venue", Value: orUnknown(alert.Venue), Inline: true},
		{Name: "Type", Value: alert.SignalType, Inline: true},
	}

	switch alert.Tier {
	case "pro", "elite":
		fields = append(fields,
			Field{Name: "Win rate", Value: fmt.Sprintf("%.1f%%", alert.WinRate), Inline: true},
			Field{Name: "Z-score", Value: fmt.Sprintf("%+.2f", alert.ZScore), Inline: true},
			Field{Name: "Confidence", Value: string(alert.Confidence), Inline: true},
			Field{Name: "Latency (ms)", Value: fmt.Sprintf("%.0f", alert.DetectMs), Inline: true},
			Field{Name: "Confidence Reasons", Value: fmt.Sprintf(
				"Price coverage: %.0f%%\nRoute complexity: %.1f\nFee complete: %s\nBalance alignment: %.0f%%",
				alert.SubMetrics.PriceCoverage*100,
				alert.SubMetrics.RouteComplexity,
				yesNo(alert.SubMetrics.FeeCompleteness > 0.9),
				alert.SubMetrics.BalanceAlignment*100,
			), Inline: false},
		)
	default:
		if s.includeUpgrade {
			fields = append(fields, Field{
				Name:   "Upgrade",
				Value:  "[Upgrade to Pro](https://example.com/pricing) for enriched alerts",
				Inline: false,
			})
		}
	}

	fields = append(fields, Field{Name: "Disclaimer", Value: monitor.Disclaimer, Inline: false})
	if alert.Signature != "" {
		fields = append(fields, Field{
			Name:   "Explorer",
			Value:  fmt.Sprintf("[Solscan](https://solscan.io/tx/%s)", alert.Signature),
			Inline: false,
		})
	}
	return fields
}

// SystemNotification announces process lifecycle events. Duplicate
// notices inside the same 5-second bucket are sent once.
func (s *Sender) SystemNotification(status, message string, details map[string]string) {
	if s.url == "" {
		return
	}

	now := s.now()
	key := fmt.Sprintf("system_%s_%d", status, now.Unix()/int64(systemDedupBucket.Seconds()))
	s.mu.Lock()
	if s.sysSent[key] {
		s.mu.Unlock()
		return
	}
	s.sysSent[key] = true
	if len(s.sysSent) > 10 {
		s.sysSent = map[string]bool{key: true}
	}
	s.mu.Unlock()

	color, emoji := 0xFFA500, "🟡"
	switch status {
	case "started":
		color, emoji = 0x00FF00, "🟢"
	case "stopped":
		color, emoji = 0xFF0000, "🔴"
	}

	fields := []Field{
		{Name: "Status", Value: status, Inline: true},
		{Name: "Time", Value: now.UTC().Format("2006-01-02 15:04:05 UTC"), Inline: true},
	}
	for k, v := range details {
		fields = append(fields, Field{Name: k, Value: v, Inline: true})
	}

	payload := Payload{
		Username: username,
		Embeds: []Embed{{
			Title:       fmt.Sprintf("%s Wallet Radar - %s", emoji, status),
			Description: message,
			Fields:      fields,
			Color:       color,
			Timestamp:   now.UTC().Format(time.RFC3339),
		}},
	}

	client := &http.Client{Timeout: systemTimeout}
	if ok := s.postWith(client, payload, 1); !ok {
		log.Warn().Str("status", status).Msg("system notification failed")
	}
}

// Heartbeat sends a periodic liveness summary
func (s *Sender) Heartbeat(watchlistSize int, alertsSent int64, lastProfit float64) {
	s.SystemNotification("heartbeat", "monitor alive", map[string]string{
		"Watchlist":   fmt.Sprintf("%d", watchlistSize),
		"Alerts":      fmt.Sprintf("%d", alertsSent),
		"Last profit": fmt.Sprintf("%.2f SOL", lastProfit),
	})
}

// ReportSummary announces a fresh detailed report
func (s *Sender) ReportSummary(stats monitor.StatsSnapshot, watchlistSize int) {
	s.SystemNotification("report", "detailed report refreshed", map[string]string{
		"Scans":        fmt.Sprintf("%d (%d failed)", stats.TotalScans, stats.FailedScans),
		"Transactions": fmt.Sprintf("%d", stats.TransactionsDetected),
		"Alerts":       fmt.Sprintf("%d", stats.AlertsSent),
		"Watchlist":    fmt.Sprintf("%d", watchlistSize),
	})
}

func (s *Sender) post(payload Payload, attempts int) bool {
	return s.postWith(s.client, payload, attempts)
}

func (s *Sender) postWith(client *http.Client, payload Payload, attempts int) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("webhook payload marshal failed")
		return false
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(s.retryDelay(attempt - 1))
		}
		resp, err := client.Post(s.url, "application/json", bytes.NewReader(body))
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("webhook send failed")
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent {
			return true
		}
		log.Warn().Int("status", resp.StatusCode).Int("attempt", attempt).Msg("webhook http error")
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
