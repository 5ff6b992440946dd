package monitor

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"wallet-radar/internal/blockchain"
	"wallet-radar/internal/config"
	"wallet-radar/internal/metrics"
	"wallet-radar/internal/profit"
	"wallet-radar/internal/state"
	"wallet-radar/internal/watchlist"
)

// alertRingCap bounds the in-memory alert queue read by the API
const alertRingCap = 1000

// AlertSink receives accepted alerts. Sinks must not block for long;
// failures are the sink's own problem and never abort a scan.
type AlertSink interface {
	Deliver(Alert)
}

// Engine drives per-wallet scans: signature selection, estimation, the
// alert filter chain, emission, and counterparty auto-promotion.
type Engine struct {
	cfg       *config.Manager
	client    blockchain.Client
	estimator *profit.Estimator
	state     *state.Store
	watch     *watchlist.Watchlist
	baselines *Baselines
	metrics   *metrics.Metrics

	Stats    *ScanStats
	Ring     *Ring
	Blocked  *BlockedLedger
	Clusters *ClusterCounter
	zscores  *zTracker

	// OnEstimate observes every estimated batch before the filter
	// chain runs, so trade followers see losses that never alert.
	OnEstimate func(wallet string, profitSol float64, signature, venue, signalType string)

	sinks []AlertSink
	sem   chan struct{}
}

// NewEngine wires the scan engine. metrics may be nil.
func NewEngine(
	cfg *config.Manager,
	client blockchain.Client,
	estimator *profit.Estimator,
	st *state.Store,
	watch *watchlist.Watchlist,
	baselines *Baselines,
	m *metrics.Metrics,
) *Engine {
	concurrency := cfg.Get().Loop.MaxConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Engine{
		cfg:       cfg,
		client:    client,
		estimator: estimator,
		state:     st,
		watch:     watch,
		baselines: baselines,
		metrics:   m,
		Stats:     &ScanStats{},
		Ring:      NewRing(alertRingCap),
		Blocked:   NewBlockedLedger(),
		Clusters:  NewClusterCounter(),
		zscores:   newZTracker(),
		sem:       make(chan struct{}, concurrency),
	}
}

// AddSink registers an alert observer
func (e *Engine) AddSink(s AlertSink) {
	e.sinks = append(e.sinks, s)
}

// ScanWallet runs one scan for a wallet under the global semaphore.
// All failure paths are terminal for this wallet only.
func (e *Engine) ScanWallet(ctx context.Context, wallet string) {
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-e.sem }()

	scanStart := time.Now()
	if e.metrics != nil {
		defer func() {
			e.metrics.TxScanSeconds.Observe(time.Since(scanStart).Seconds())
		}()
	}

	e.Stats.TotalScans.Add(1)
	e.watch.Touch(wallet)

	if !blockchain.IsValidPubkey(wallet) {
		e.Stats.FailedScans.Add(1)
		log.Warn().Str("wallet", wallet).Msg("invalid wallet format")
		return
	}

	cfg := e.cfg.Get()
	e.Stats.RPCCalls.Add(1)
	sigs, err := e.client.GetSignaturesForAddress(ctx, wallet, cfg.Loop.TxLookback)
	if err != nil {
		e.Stats.FailedScans.Add(1)
		e.Stats.RPCErrors.Add(1)
		log.Warn().Err(err).
			Str("wallet", wallet).
			Str("kind", string(blockchain.ClassifyFailure(err))).
			Msg("signatures fetch failed")
		return
	}

	increment := e.selectNewSignatures(wallet, sigs)
	if len(increment) == 0 {
		e.Stats.SuccessfulScans.Add(1)
		return
	}
	e.Stats.TransactionsDetected.Add(int64(len(increment)))

	baseline, hasBaseline := e.baselines.Get(wallet)
	for _, batch := range batchBySlot(increment, cfg.Alerting.AlertBatchSize) {
		e.processBatch(ctx, wallet, batch, baseline, hasBaseline, cfg, scanStart)
	}
}

// selectNewSignatures returns the unprocessed prefix of the signature
// list. A wallet never scanned yields its first five; otherwise the
// prefix strictly newer than the stored head. The head is stored
// regardless, so a stable head is never rescanned.
func (e *Engine) selectNewSignatures(wallet string, sigs []blockchain.SignatureInfo) []blockchain.SignatureInfo {
	if len(sigs) == 0 {
		return nil
	}

	last := e.state.LastSignature(wallet)
	var subset []blockchain.SignatureInfo
	if last == "" {
		subset = sigs
		if len(subset) > 5 {
			subset = subset[:5]
		}
	} else {
		for _, s := range sigs {
			if s.Signature == "" {
				continue
			}
			if s.Signature == last {
				break
			}
			subset = append(subset, s)
		}
	}

	if head := sigs[0].Signature; head != "" {
		e.state.SetLastSignature(wallet, head)
	}
	return subset
}

// batchBySlot groups signatures by slot, orders groups newest-slot
// first, and chunks each group to the batch size.
func batchBySlot(sigs []blockchain.SignatureInfo, batchSize int) [][]blockchain.SignatureInfo {
	if batchSize < 1 {
		batchSize = 1
	}

	grouped := make(map[uint64][]blockchain.SignatureInfo)
	slots := make([]uint64, 0)
	for _, s := range sigs {
		if _, ok := grouped[s.Slot]; !ok {
			slots = append(slots, s.Slot)
		}
		grouped[s.Slot] = append(grouped[s.Slot], s)
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i] > slots[j] })

	var batches [][]blockchain.SignatureInfo
	for _, slot := range slots {
		items := grouped[slot]
		for i := 0; i < len(items); i += batchSize {
			end := i + batchSize
			if end > len(items) {
				end = len(items)
			}
			batches = append(batches, items[i:end])
		}
	}
	return batches
}

func (e *Engine) processBatch(
	ctx context.Context,
	wallet string,
	batch []blockchain.SignatureInfo,
	baseline Baseline,
	hasBaseline bool,
	cfg *config.Config,
	scanStart time.Time,
) {
	newSigs := make([]string, 0, len(batch))
	for _, s := range batch {
		if s.Signature != "" {
			newSigs = append(newSigs, s.Signature)
		}
	}
	if len(newSigs) == 0 {
		return
	}

	e.Stats.RPCCalls.Add(int64(len(newSigs)))
	est := e.estimator.Estimate(ctx, wallet, newSigs)

	venue := LabelFromPrograms(est.Programs)
	if venue == "Unknown" && hasBaseline && baseline.Venue != "" {
		venue = baseline.Venue
	}

	if e.OnEstimate != nil {
		e.OnEstimate(wallet, est.ProfitSol, newSigs[0], venue, ClassifySignal(venue))
	}

	al := cfg.Alerting
	if baseline.NetTotal < al.GainFilter || baseline.WinRate < al.WinRateFilter {
		e.block(wallet, est.ProfitSol, ReasonWalletFiltered, map[string]any{
			"net_total":       baseline.NetTotal,
			"win_rate":        baseline.WinRate,
			"gain_filter":     al.GainFilter,
			"win_rate_filter": al.WinRateFilter,
		})
		return
	}

	if est.ProfitSol < al.ProfitThreshold {
		e.block(wallet, est.ProfitSol, ReasonProfitBelow, map[string]any{
			"profit":    est.ProfitSol,
			"threshold": al.ProfitThreshold,
		})
		return
	}

	if est.Confidence != profit.ConfidenceMed && est.Confidence != profit.ConfidenceHigh {
		e.block(wallet, est.ProfitSol, ReasonConfidenceTooLow, map[string]any{
			"confidence": string(est.Confidence),
		})
		return
	}

	if e.state.AnySeen(newSigs) {
		e.block(wallet, est.ProfitSol, ReasonIdempotence, map[string]any{
			"signature": newSigs[0],
		})
		return
	}

	cooldown := time.Duration(al.CooldownSec) * time.Second
	if lastAlert := e.state.LastAlert(wallet); !lastAlert.IsZero() {
		if since := time.Since(lastAlert); since < cooldown {
			e.block(wallet, est.ProfitSol, ReasonCooldown, map[string]any{
				"cooldown_remaining":   (cooldown - since).Seconds(),
				"last_alert_timestamp": lastAlert.Unix(),
			})
			return
		}
	}

	zscore := e.zscores.Observe(wallet, est.ProfitSol)
	counterparties := est.Counterparties
	if len(counterparties) > 10 {
		counterparties = counterparties[:10]
	}

	alert := Alert{
		Wallet:         wallet,
		Profit:         est.ProfitSol,
		Venue:          venue,
		WinRate:        baseline.WinRate,
		Timestamp:      time.Now().UTC(),
		Counterparties: counterparties,
		SignalType:     ClassifySignal(venue),
		ZScore:         zscore,
		Signature:      newSigs[0],
		DetectMs:       float64(time.Since(scanStart).Microseconds()) / 1000.0,
		Confidence:     est.Confidence,
		SubMetrics:     est.SubMetrics,
		DryRun:         cfg.Modes.DryRun,
		Tier:           "free",
	}
	e.emit(alert, newSigs, scanStart)

	e.Clusters.Update(est.Counterparties)

	if est.ProfitSol >= al.NewWalletGain {
		e.promoteCounterparties(ctx, est.Counterparties, est.Programs, al.NewWalletMinTrx)
	}
}

func (e *Engine) block(wallet string, profitSol float64, reason string, details map[string]any) {
	e.Blocked.Record(wallet, profitSol, reason, details)
	if e.metrics != nil {
		e.metrics.AlertsTotal.WithLabelValues(reason).Inc()
	}
	log.Debug().
		Str("wallet", wallet).
		Float64("profit", profitSol).
		Str("reason", reason).
		Msg("alert blocked")
}

func (e *Engine) emit(alert Alert, sigs []string, scanStart time.Time) {
	e.Ring.Append(alert)
	e.Stats.SuccessfulScans.Add(1)
	e.Stats.AlertsSent.Add(1)

	for _, sig := range sigs {
		e.state.MarkSeen(sig)
	}
	e.state.SetLastAlert(alert.Wallet, alert.Timestamp)

	if e.metrics != nil {
		e.metrics.AlertsTotal.WithLabelValues("sent").Inc()
		e.metrics.LastProfitSol.Set(alert.Profit)
		e.metrics.LastAlertTimestamp.Set(float64(alert.Timestamp.Unix()))
		e.metrics.AlertDuration.Observe(time.Since(scanStart).Seconds())
		e.metrics.SignalsSent.WithLabelValues(alert.Tier).Inc()
	}

	log.Info().
		Str("wallet", alert.Wallet).
		Float64("profit", alert.Profit).
		Str("venue", alert.Venue).
		Str("signal_type", alert.SignalType).
		Float64("zscore", alert.ZScore).
		Str("signature", alert.Signature).
		Str("confidence", string(alert.Confidence)).
		Bool("dry_run", alert.DryRun).
		Msg("alert emitted")

	for _, sink := range e.sinks {
		// sink failures stay inside the sink
		sink.Deliver(alert)
	}
}

// promoteCounterparties probes each unseen counterparty for activity
// and adds sufficiently active wallets to the watchlist with a zeroed
// baseline.
func (e *Engine) promoteCounterparties(ctx context.Context, counterparties, programs []string, minTrx int) {
	for _, addr := range counterparties {
		if e.watch.Contains(addr) {
			continue
		}
		if !blockchain.IsCandidateWallet(addr) {
			continue
		}

		e.Stats.RPCCalls.Add(1)
		probe, err := e.client.GetSignaturesForAddress(ctx, addr, minTrx)
		if err != nil {
			e.Stats.RPCErrors.Add(1)
			continue
		}
		if len(probe) < minTrx {
			continue
		}

		venue := LabelFromPrograms(programs)
		evicted := e.watch.Add(&watchlist.Wallet{
			Address:  addr,
			Venue:    venue,
			Promoted: true,
			AddedAt:  time.Now(),
		})
		e.baselines.AddPromoted(addr, venue)
		log.Info().Str("wallet", addr).Str("venue", venue).Msg("watchlist auto add")
		if evicted != "" {
			log.Info().Str("wallet", evicted).Msg("watchlist eviction")
		}
	}
}
