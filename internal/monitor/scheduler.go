package monitor

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// minSleep is the floor between scan cycles regardless of cadence
	minSleep = 5 * time.Second
	// blockedRetention bounds the blocked-alerts ledger
	blockedRetention = 2 * time.Hour
	// reportFloor is the minimum spacing between dashboard refreshes
	reportFloor = 600 * time.Second
	// saveEvery persists state every N iterations
	saveEvery = 10
)

// Scheduler runs the scan loop: GC, fan-out, reports, heartbeat, and
// periodic state snapshots.
type Scheduler struct {
	engine *Engine

	// OnReport refreshes the CSV dashboard and Markdown report
	OnReport func()
	// OnDetailedReport writes the detailed JSON report
	OnDetailedReport func()
	// Heartbeat sends the periodic liveness webhook
	Heartbeat func()
	// Notify sends a system notification (started, stopped, error)
	Notify func(status string)

	lastLoop      atomic.Int64
	iteration     int
	lastReport    time.Time
	lastDetailed  time.Time
	lastHeartbeat time.Time
}

// NewScheduler wires the loop around an engine
func NewScheduler(engine *Engine) *Scheduler {
	return &Scheduler{engine: engine}
}

// LastLoop returns when the last scan cycle completed (zero if never)
func (s *Scheduler) LastLoop() time.Time {
	ts := s.lastLoop.Load()
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0)
}

// Run executes scan cycles until the context is cancelled, then saves
// state and announces shutdown.
func (s *Scheduler) Run(ctx context.Context) {
	s.notify("started")

	if s.engine.cfg.GetAlerting().DebugForceAlert {
		s.injectDebugAlert()
	}

	for {
		start := time.Now()
		s.runIteration(ctx)

		sleep := s.engine.cfg.TxRefresh() - time.Since(start)
		if sleep < minSleep {
			sleep = minSleep
		}
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case <-time.After(sleep):
		}
	}
}

func (s *Scheduler) runIteration(ctx context.Context) {
	now := time.Now()
	s.lastLoop.Store(now.Unix())
	if m := s.engine.metrics; m != nil {
		m.MainloopTimestamp.Set(float64(now.Unix()))
	}
	if err := s.engine.state.SetValue("last_loop_ts", strconv.FormatInt(now.Unix(), 10)); err != nil {
		log.Warn().Err(err).Msg("failed to persist loop timestamp")
	}

	s.engine.state.GC()
	s.engine.Blocked.Prune(blockedRetention)

	wallets := s.engine.watch.Addresses()
	var wg sync.WaitGroup
	for _, wallet := range wallets {
		wg.Add(1)
		go func(w string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().Str("wallet", w).Interface("panic", r).Msg("scan task failed")
				}
			}()
			s.engine.ScanWallet(ctx, w)
		}(wallet)
	}
	wg.Wait()

	s.maybeReport(now)
	s.maybeHeartbeat(now)

	s.iteration++
	if s.iteration%saveEvery == 0 {
		if err := s.engine.state.Save(); err != nil {
			log.Error().Err(err).Msg("periodic state save failed")
		}
	}

	log.Debug().
		Int("wallets", len(wallets)).
		Int("iteration", s.iteration).
		Msg("scan cycle done")
}

func (s *Scheduler) maybeReport(now time.Time) {
	cfg := s.engine.cfg.Get().Loop

	interval := time.Duration(cfg.ReportRefreshSeconds) * time.Second
	if interval < reportFloor {
		interval = reportFloor
	}
	if s.OnReport != nil && now.Sub(s.lastReport) >= interval {
		s.lastReport = now
		s.OnReport()
	}

	minInterval := time.Duration(cfg.ReportMinIntervalSeconds) * time.Second
	if s.OnDetailedReport != nil && now.Sub(s.lastDetailed) >= minInterval {
		s.lastDetailed = now
		s.OnDetailedReport()
	}
}

func (s *Scheduler) maybeHeartbeat(now time.Time) {
	interval := time.Duration(s.engine.cfg.Get().Loop.HeartbeatIntervalSeconds) * time.Second
	if s.Heartbeat == nil || interval <= 0 {
		return
	}
	if now.Sub(s.lastHeartbeat) >= interval {
		s.lastHeartbeat = now
		s.Heartbeat()
	}
}

func (s *Scheduler) shutdown() {
	if err := s.engine.state.Save(); err != nil {
		log.Error().Err(err).Msg("state save on shutdown failed")
	}
	s.notify("stopped")
	log.Info().Msg("scan loop stopped")
}

func (s *Scheduler) notify(status string) {
	if s.Notify != nil {
		s.Notify(status)
	}
}

// injectDebugAlert emits one synthetic alert at startup so the whole
// delivery chain can be exercised without waiting for real activity.
func (s *Scheduler) injectDebugAlert() {
	now := time.Now().UTC()
	alert := Alert{
		Wallet:     "TEST_WALLET_FORCED",
		Profit:     0.7,
		Venue:      "Debug",
		WinRate:    100.0,
		Timestamp:  now,
		SignalType: "Debug",
		DryRun:     s.engine.cfg.Get().Modes.DryRun,
		Tier:       "free",
	}
	s.engine.emit(alert, []string{fmt.Sprintf("debug-%d", now.UnixNano())}, now)
	log.Info().Msg("debug alert injected")
}
