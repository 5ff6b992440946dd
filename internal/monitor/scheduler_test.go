package monitor

import (
	"context"
	"testing"

	"wallet-radar/internal/blockchain"
)

func TestSchedulerIteration(t *testing.T) {
	rpc := newFakeRPC()
	rpc.setSigs(testWallet, blockchain.SignatureInfo{Signature: "s1", Slot: 100})
	rpc.txs["s1"] = nativeTx(testWallet, 1_000_000_000, 4_000_000_000, 5000)

	e := newTestEngine(t, rpc, strongBaseline())
	s := NewScheduler(e)

	reports := 0
	detailed := 0
	s.OnReport = func() { reports++ }
	s.OnDetailedReport = func() { detailed++ }

	s.runIteration(context.Background())

	if s.LastLoop().IsZero() {
		t.Error("loop timestamp should be set")
	}
	if e.Ring.Len() != 1 {
		t.Errorf("iteration should scan the watchlist, ring=%d", e.Ring.Len())
	}
	if reports != 1 || detailed != 1 {
		t.Errorf("first iteration should write reports, got %d/%d", reports, detailed)
	}
	v, err := e.state.GetValue("last_loop_ts")
	if err != nil || v == "" {
		t.Errorf("loop timestamp should persist, got %q (%v)", v, err)
	}

	// a second immediate iteration stays inside the report interval
	s.runIteration(context.Background())
	if reports != 1 || detailed != 1 {
		t.Errorf("report cadence should hold, got %d/%d", reports, detailed)
	}
}

func TestSchedulerNotify(t *testing.T) {
	e := newTestEngine(t, newFakeRPC(), nil)
	s := NewScheduler(e)

	var statuses []string
	s.Notify = func(status string) { statuses = append(statuses, status) }

	s.notify("started")
	s.shutdown()

	if len(statuses) != 2 || statuses[0] != "started" || statuses[1] != "stopped" {
		t.Errorf("unexpected notifications: %v", statuses)
	}
}

func TestDebugAlertInjection(t *testing.T) {
	e := newTestEngine(t, newFakeRPC(), nil)
	s := NewScheduler(e)

	s.injectDebugAlert()

	alerts := e.Ring.Last(1)
	if len(alerts) != 1 || alerts[0].Wallet != "TEST_WALLET_FORCED" {
		t.Fatalf("expected injected debug alert, got %+v", alerts)
	}
	if alerts[0].Profit != 0.7 || alerts[0].SignalType != "Debug" {
		t.Errorf("unexpected debug alert: %+v", alerts[0])
	}
}
