package monitor

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"wallet-radar/internal/blockchain"
	"wallet-radar/internal/config"
	"wallet-radar/internal/pricing"
	"wallet-radar/internal/profit"
	"wallet-radar/internal/state"
	"wallet-radar/internal/watchlist"
)

// real 32-byte base58 ids, reused as test addresses
const (
	testWallet       = "9xQeWvG816bUx9EPfDdC1WJ4VqV6g5Gz5X5H5Q5tLCH"
	testProgram      = "JUP4Fb2cqiRUcaTHdrPC8h2gK4G8cCxfXk8XQf2Zx1i"
	testCounterparty = "MEisE1HzehtrDpAAT8PnLHjpSSkRYakotTuJRPjTpo8"
)

type fakeRPC struct {
	mu   sync.Mutex
	sigs map[string][]blockchain.SignatureInfo
	txs  map[string]*blockchain.TransactionDetail
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{
		sigs: make(map[string][]blockchain.SignatureInfo),
		txs:  make(map[string]*blockchain.TransactionDetail),
	}
}

func (f *fakeRPC) GetSignaturesForAddress(_ context.Context, address string, limit int) ([]blockchain.SignatureInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sigs := f.sigs[address]
	if limit > 0 && len(sigs) > limit {
		sigs = sigs[:limit]
	}
	return sigs, nil
}

func (f *fakeRPC) GetTransaction(_ context.Context, sig string) (*blockchain.TransactionDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txs[sig], nil
}

func (f *fakeRPC) setSigs(address string, sigs ...blockchain.SignatureInfo) {
	f.mu.Lock()
	f.sigs[address] = sigs
	f.mu.Unlock()
}

func nativeTx(wallet string, preLamports, postLamports, fee uint64) *blockchain.TransactionDetail {
	return &blockchain.TransactionDetail{
		Slot: 100,
		Meta: &blockchain.TxMeta{
			Fee:          fee,
			PreBalances:  []uint64{preLamports, 0, 0},
			PostBalances: []uint64{postLamports, 0, 0},
		},
		Transaction: blockchain.TxPayload{
			Message: blockchain.TxMessage{
				AccountKeys: []string{wallet, testCounterparty, testProgram},
				Instructions: []blockchain.Instruction{
					{ProgramIDIndex: 2, Accounts: []int{0, 1}},
				},
			},
		},
	}
}

func newTestEngine(t *testing.T, client blockchain.Client, baselines []Baseline) *Engine {
	t.Helper()
	dir := t.TempDir()

	cfg, err := config.NewManager("")
	if err != nil {
		t.Fatal(err)
	}
	st, err := state.NewStore(filepath.Join(dir, "state.db"), time.Hour, 1000, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	cache, err := pricing.NewCache(filepath.Join(dir, "prices.db"), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cache.Close() })

	est := profit.NewEstimator(client, pricing.NewResolver(cache), 10.0)
	est.RetryDelay = func(int) time.Duration { return time.Millisecond }

	watch := watchlist.New(100, nil)
	for _, b := range baselines {
		watch.Add(&watchlist.Wallet{Address: b.Wallet, NetTotal: b.NetTotal, WinRate: b.WinRate})
	}

	return NewEngine(cfg, client, est, st, watch, NewBaselines(baselines), nil)
}

func strongBaseline() []Baseline {
	return []Baseline{{Wallet: testWallet, NetTotal: 10, WinRate: 90, Venue: "Raydium"}}
}

func TestScanEmitsAlert(t *testing.T) {
	rpc := newFakeRPC()
	rpc.setSigs(testWallet, blockchain.SignatureInfo{Signature: "s1", Slot: 100})
	rpc.txs["s1"] = nativeTx(testWallet, 1_000_000_000, 4_000_000_000, 5000)

	e := newTestEngine(t, rpc, strongBaseline())
	e.ScanWallet(context.Background(), testWallet)

	alerts := e.Ring.Last(10)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	a := alerts[0]
	if a.Wallet != testWallet || a.Signature != "s1" {
		t.Errorf("unexpected alert identity: %+v", a)
	}
	wantProfit := 3.0 - 0.000005
	if math.Abs(a.Profit-wantProfit) > 1e-9 {
		t.Errorf("expected profit %.9f, got %.9f", wantProfit, a.Profit)
	}
	if a.Venue != "Jupiter" || a.SignalType != "AMM / Aggregator" {
		t.Errorf("unexpected classification: venue=%s type=%s", a.Venue, a.SignalType)
	}
	if a.WinRate != 90 || a.Tier != "free" || !a.DryRun {
		t.Errorf("unexpected alert metadata: %+v", a)
	}
	if a.Confidence != profit.ConfidenceHigh {
		t.Errorf("clean native flow should grade high, got %s", a.Confidence)
	}

	if got := e.Stats.AlertsSent.Load(); got != 1 {
		t.Errorf("expected 1 alert sent, got %d", got)
	}
	if !e.state.Seen("s1") {
		t.Error("batch signatures should be marked seen")
	}
	if e.state.LastAlert(testWallet).IsZero() {
		t.Error("last alert should be recorded")
	}
	if e.state.LastSignature(testWallet) != "s1" {
		t.Error("signature head should be stored")
	}
}

func TestScanStableHeadIsQuiet(t *testing.T) {
	rpc := newFakeRPC()
	rpc.setSigs(testWallet, blockchain.SignatureInfo{Signature: "s1", Slot: 100})
	rpc.txs["s1"] = nativeTx(testWallet, 1_000_000_000, 4_000_000_000, 5000)

	e := newTestEngine(t, rpc, strongBaseline())
	e.ScanWallet(context.Background(), testWallet)
	e.ScanWallet(context.Background(), testWallet)

	if e.Ring.Len() != 1 {
		t.Errorf("a stable head should not re-alert, ring=%d", e.Ring.Len())
	}
	if got := e.Stats.SuccessfulScans.Load(); got != 2 {
		t.Errorf("expected 2 successful scans, got %d", got)
	}
}

func TestCooldownBlocksSecondAlert(t *testing.T) {
	rpc := newFakeRPC()
	rpc.setSigs(testWallet, blockchain.SignatureInfo{Signature: "s1", Slot: 100})
	rpc.txs["s1"] = nativeTx(testWallet, 1_000_000_000, 4_000_000_000, 5000)
	rpc.txs["s2"] = nativeTx(testWallet, 1_000_000_000, 4_000_000_000, 5000)

	e := newTestEngine(t, rpc, strongBaseline())
	e.ScanWallet(context.Background(), testWallet)

	rpc.setSigs(testWallet,
		blockchain.SignatureInfo{Signature: "s2", Slot: 101},
		blockchain.SignatureInfo{Signature: "s1", Slot: 100},
	)
	e.ScanWallet(context.Background(), testWallet)

	if e.Ring.Len() != 1 {
		t.Fatalf("cooldown should suppress the second alert, ring=%d", e.Ring.Len())
	}
	blocked := e.Blocked.Last(1)
	if len(blocked) != 1 || blocked[0].Reason != ReasonCooldown {
		t.Errorf("expected cooldown block, got %+v", blocked)
	}
	if _, ok := blocked[0].Details["cooldown_remaining"]; !ok {
		t.Error("cooldown block should carry the remaining time")
	}
}

func TestIdempotenceBlocksSeenSignature(t *testing.T) {
	rpc := newFakeRPC()
	rpc.setSigs(testWallet, blockchain.SignatureInfo{Signature: "s1", Slot: 100})
	rpc.txs["s1"] = nativeTx(testWallet, 1_000_000_000, 4_000_000_000, 5000)
	rpc.txs["s2"] = nativeTx(testWallet, 1_000_000_000, 4_000_000_000, 5000)

	e := newTestEngine(t, rpc, strongBaseline())
	e.ScanWallet(context.Background(), testWallet)

	// cooldown long expired, but s2 already processed
	e.state.SetLastAlert(testWallet, time.Now().Add(-time.Hour))
	e.state.MarkSeen("s2")
	rpc.setSigs(testWallet,
		blockchain.SignatureInfo{Signature: "s2", Slot: 101},
		blockchain.SignatureInfo{Signature: "s1", Slot: 100},
	)
	e.ScanWallet(context.Background(), testWallet)

	if e.Ring.Len() != 1 {
		t.Fatalf("seen signature should not re-alert, ring=%d", e.Ring.Len())
	}
	blocked := e.Blocked.Last(1)
	if len(blocked) != 1 || blocked[0].Reason != ReasonIdempotence {
		t.Errorf("expected idempotence block, got %+v", blocked)
	}
}

func TestWeakBaselineBlocked(t *testing.T) {
	rpc := newFakeRPC()
	rpc.setSigs(testWallet, blockchain.SignatureInfo{Signature: "s1", Slot: 100})
	rpc.txs["s1"] = nativeTx(testWallet, 1_000_000_000, 4_000_000_000, 5000)

	e := newTestEngine(t, rpc, []Baseline{{Wallet: testWallet, NetTotal: 1, WinRate: 90}})
	e.ScanWallet(context.Background(), testWallet)

	if e.Ring.Len() != 0 {
		t.Fatal("weak baseline should never alert")
	}
	blocked := e.Blocked.Last(1)
	if len(blocked) != 1 || blocked[0].Reason != ReasonWalletFiltered {
		t.Errorf("expected wallet_filtered block, got %+v", blocked)
	}
}

func TestSmallProfitBlocked(t *testing.T) {
	rpc := newFakeRPC()
	rpc.setSigs(testWallet, blockchain.SignatureInfo{Signature: "s1", Slot: 100})
	// +1 SOL, below the 2.0 default threshold
	rpc.txs["s1"] = nativeTx(testWallet, 1_000_000_000, 2_000_000_000, 5000)

	e := newTestEngine(t, rpc, strongBaseline())
	e.ScanWallet(context.Background(), testWallet)

	if e.Ring.Len() != 0 {
		t.Fatal("sub-threshold profit should not alert")
	}
	blocked := e.Blocked.Last(1)
	if len(blocked) != 1 || blocked[0].Reason != ReasonProfitBelow {
		t.Errorf("expected profit block, got %+v", blocked)
	}
}

func TestInvalidWalletFailsScan(t *testing.T) {
	e := newTestEngine(t, newFakeRPC(), nil)
	e.ScanWallet(context.Background(), "not-a-pubkey!")

	if got := e.Stats.FailedScans.Load(); got != 1 {
		t.Errorf("expected 1 failed scan, got %d", got)
	}
}

func TestCounterpartyPromotion(t *testing.T) {
	rpc := newFakeRPC()
	rpc.setSigs(testWallet, blockchain.SignatureInfo{Signature: "s1", Slot: 100})
	// +8 SOL clears the promotion gain
	rpc.txs["s1"] = nativeTx(testWallet, 1_000_000_000, 9_000_000_000, 5000)

	probe := make([]blockchain.SignatureInfo, 12)
	for i := range probe {
		probe[i] = blockchain.SignatureInfo{Signature: fmt.Sprintf("p%d", i), Slot: uint64(i)}
	}
	rpc.setSigs(testCounterparty, probe...)

	e := newTestEngine(t, rpc, strongBaseline())
	e.ScanWallet(context.Background(), testWallet)

	if e.Ring.Len() != 1 {
		t.Fatal("expected the triggering alert")
	}
	if !e.watch.Contains(testCounterparty) {
		t.Fatal("active counterparty should be promoted")
	}
	b, ok := e.baselines.Get(testCounterparty)
	if !ok || !b.Promoted || b.NetTotal != 0 {
		t.Errorf("promoted wallet should carry a zeroed baseline, got %+v", b)
	}
}

func TestInactiveCounterpartyNotPromoted(t *testing.T) {
	rpc := newFakeRPC()
	rpc.setSigs(testWallet, blockchain.SignatureInfo{Signature: "s1", Slot: 100})
	rpc.txs["s1"] = nativeTx(testWallet, 1_000_000_000, 9_000_000_000, 5000)
	// probe finds too little activity
	rpc.setSigs(testCounterparty, blockchain.SignatureInfo{Signature: "p0", Slot: 1})

	e := newTestEngine(t, rpc, strongBaseline())
	e.ScanWallet(context.Background(), testWallet)

	if e.watch.Contains(testCounterparty) {
		t.Error("inactive counterparty should not be promoted")
	}
}

type recordingSink struct {
	mu     sync.Mutex
	alerts []Alert
}

func (r *recordingSink) Deliver(a Alert) {
	r.mu.Lock()
	r.alerts = append(r.alerts, a)
	r.mu.Unlock()
}

func TestSinksReceiveAlerts(t *testing.T) {
	rpc := newFakeRPC()
	rpc.setSigs(testWallet, blockchain.SignatureInfo{Signature: "s1", Slot: 100})
	rpc.txs["s1"] = nativeTx(testWallet, 1_000_000_000, 4_000_000_000, 5000)

	e := newTestEngine(t, rpc, strongBaseline())
	sink := &recordingSink{}
	e.AddSink(sink)
	e.ScanWallet(context.Background(), testWallet)

	if len(sink.alerts) != 1 || sink.alerts[0].Wallet != testWallet {
		t.Errorf("sink should receive the alert, got %+v", sink.alerts)
	}
}

func TestBatchBySlot(t *testing.T) {
	sigs := []blockchain.SignatureInfo{
		{Signature: "a", Slot: 100},
		{Signature: "b", Slot: 102},
		{Signature: "c", Slot: 102},
		{Signature: "d", Slot: 101},
	}
	batches := batchBySlot(sigs, 10)
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	if batches[0][0].Slot != 102 || len(batches[0]) != 2 {
		t.Errorf("newest slot should batch first: %+v", batches[0])
	}
	if batches[2][0].Signature != "a" {
		t.Errorf("oldest slot should batch last: %+v", batches[2])
	}

	// chunking within a slot group
	chunked := batchBySlot(sigs, 1)
	if len(chunked) != 4 {
		t.Errorf("expected 4 single-item batches, got %d", len(chunked))
	}
}
