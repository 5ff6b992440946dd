package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// nudgeCooldown throttles per-wallet scan nudges so a busy wallet
// does not storm the scan loop between polling cycles
const nudgeCooldown = 5 * time.Second

// ActivityNotice reports on-chain activity touching a watched wallet
type ActivityNotice struct {
	Wallet    string
	Signature string
	Slot      uint64
	HasError  bool
}

// HotWallets subscribes to transaction logs mentioning watched
// wallets and nudges the scan loop ahead of the next polling cycle.
type HotWallets struct {
	client *Client

	// onActivity receives one notice per fresh wallet mention
	onActivity func(ActivityNotice)

	mu        sync.Mutex
	subs      map[string]uint64
	lastNudge map[string]time.Time

	now func() time.Time
}

// NewHotWallets creates the hot-wallet watcher
func NewHotWallets(client *Client, onActivity func(ActivityNotice)) *HotWallets {
	return &HotWallets{
		client:     client,
		onActivity: onActivity,
		subs:       make(map[string]uint64),
		lastNudge:  make(map[string]time.Time),
		now:        time.Now,
	}
}

// Watch subscribes to log mentions of a wallet. Watching an already
// watched wallet is a no-op. The subscription survives reconnects.
func (h *HotWallets) Watch(wallet string) error {
	h.mu.Lock()
	if _, ok := h.subs[wallet]; ok {
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	subID, err := h.client.LogsSubscribe(wallet, func(data json.RawMessage) {
		h.handleLogs(wallet, data)
	})
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.subs[wallet] = subID
	h.mu.Unlock()

	h.client.addResubscribe(func() {
		id, err := h.client.LogsSubscribe(wallet, func(data json.RawMessage) {
			h.handleLogs(wallet, data)
		})
		if err != nil {
			log.Warn().Err(err).Str("wallet", wallet).Msg("log resubscribe failed")
			return
		}
		h.mu.Lock()
		h.subs[wallet] = id
		h.mu.Unlock()
	})

	log.Info().Str("wallet", truncateStr(wallet, 8)).Uint64("subID", subID).Msg("watching wallet logs")
	return nil
}

// Unwatch drops the log subscription for a wallet
func (h *HotWallets) Unwatch(wallet string) {
	h.mu.Lock()
	subID, ok := h.subs[wallet]
	delete(h.subs, wallet)
	delete(h.lastNudge, wallet)
	h.mu.Unlock()
	if ok {
		h.client.Unsubscribe("logsUnsubscribe", subID)
	}
}

// handleLogs parses one logs notification and forwards a throttled
// activity notice
func (h *HotWallets) handleLogs(wallet string, data json.RawMessage) {
	var update struct {
		Context struct {
			Slot uint64 `json:"slot"`
		} `json:"context"`
		Value struct {
			Signature string `json:"signature"`
			Err       any    `json:"err"`
		} `json:"value"`
	}
	if err := json.Unmarshal(data, &update); err != nil {
		log.Warn().Err(err).Msg("logs notification parse failed")
		return
	}

	now := h.now()
	h.mu.Lock()
	if last, ok := h.lastNudge[wallet]; ok && now.Sub(last) < nudgeCooldown {
		h.mu.Unlock()
		return
	}
	h.lastNudge[wallet] = now
	h.mu.Unlock()

	log.Debug().
		Str("wallet", truncateStr(wallet, 8)).
		Str("signature", truncateStr(update.Value.Signature, 12)).
		Uint64("slot", update.Context.Slot).
		Msg("wallet activity")

	if h.onActivity != nil {
		go h.onActivity(ActivityNotice{
			Wallet:    wallet,
			Signature: update.Value.Signature,
			Slot:      update.Context.Slot,
			HasError:  update.Value.Err != nil,
		})
	}
}

// WatchedCount returns how many wallets carry a live subscription
func (h *HotWallets) WatchedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Stop drops every subscription
func (h *HotWallets) Stop() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]uint64)
	h.lastNudge = make(map[string]time.Time)
	h.mu.Unlock()

	for _, subID := range subs {
		h.client.Unsubscribe("logsUnsubscribe", subID)
	}
}

// truncateStr safely truncates a string for logging
func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
