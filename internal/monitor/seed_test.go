package monitor

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

const seedJSON = `{
  "wallets": [
    {
      "wallet": "WalletA",
      "net_total": 12.0,
      "win_rate": 90.0,
      "total_profit": 20.0,
      "total_loss": 4.0,
      "total_transactions": 40,
      "daily_net": {"2026-08-01": 6.0, "2026-08-02": 6.0},
      "dex_counter": {"Jupiter": 7, "Raydium": 2},
      "top_counterparties": [["Cp1", 9], ["Cp2", 4]],
      "top_programs": [["Prog1", 12]],
      "transactions": [
        {"date": "2026-08-01 10:00:00"},
        {"date": "2026-08-02 10:00:00"},
        {"date": "Unknown"}
      ]
    },
    {
      "wallet": "WalletB",
      "net_total": 50.0,
      "win_rate": 95.0,
      "total_profit": 60.0,
      "total_loss": 10.0,
      "daily_net": {},
      "dex_counter": {}
    },
    {
      "wallet": "WalletC",
      "net_total": 3.0,
      "win_rate": 99.0
    },
    {
      "wallet": "WalletD",
      "net_total": 30.0,
      "win_rate": 50.0
    }
  ]
}`

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wallets_seed.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSeed(t *testing.T) {
	baselines, watch, err := LoadSeed(writeSeed(t, seedJSON), 5.0, 80.0, 100)
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	if len(baselines) != 4 {
		t.Fatalf("expected 4 baselines, got %d", len(baselines))
	}

	// WalletC fails the gain filter, WalletD the win-rate filter;
	// WalletB sorts first on net total
	if len(watch) != 2 || watch[0] != "WalletB" || watch[1] != "WalletA" {
		t.Fatalf("unexpected watchlist: %v", watch)
	}

	reg := NewBaselines(baselines)
	a, ok := reg.Get("WalletA")
	if !ok {
		t.Fatal("WalletA baseline missing")
	}
	if a.Venue != "Jupiter" {
		t.Errorf("expected principal venue Jupiter, got %s", a.Venue)
	}
	// profitability = 12 / (20 + 4)
	if math.Abs(a.Profitability-0.5) > 1e-9 {
		t.Errorf("expected profitability 0.5, got %f", a.Profitability)
	}
	// both daily ratios are 0.25, so variance is 0 and the index
	// equals the win rate
	if math.Abs(a.ConsistencyIndex-90.0) > 1e-9 {
		t.Errorf("expected consistency 90, got %f", a.ConsistencyIndex)
	}
	if a.DurationHours != 24 {
		t.Errorf("expected 24h duration, got %f", a.DurationHours)
	}
	if len(a.TopCounterparties) != 2 || a.TopCounterparties[0] != "Cp1" {
		t.Errorf("unexpected counterparties: %v", a.TopCounterparties)
	}

	b, _ := reg.Get("WalletB")
	if b.Venue != "Unknown" {
		t.Errorf("empty dex counter should yield Unknown, got %s", b.Venue)
	}
}

func TestLoadSeedWatchlistCap(t *testing.T) {
	_, watch, err := LoadSeed(writeSeed(t, seedJSON), 5.0, 80.0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(watch) != 1 || watch[0] != "WalletB" {
		t.Errorf("expected only the top wallet, got %v", watch)
	}
}

func TestLoadSeedMissingFile(t *testing.T) {
	baselines, watch, err := LoadSeed(filepath.Join(t.TempDir(), "nope.json"), 5.0, 80.0, 100)
	if err != nil {
		t.Fatalf("missing seed should not error: %v", err)
	}
	if len(baselines) != 0 || len(watch) != 0 {
		t.Error("missing seed should yield empty results")
	}
}

func TestLoadSeedMalformed(t *testing.T) {
	if _, _, err := LoadSeed(writeSeed(t, "{not json"), 5.0, 80.0, 100); err == nil {
		t.Error("malformed seed should error")
	}
}

func TestBaselinesAddPromoted(t *testing.T) {
	reg := NewBaselines([]Baseline{{Wallet: "WalletA", NetTotal: 10}})

	reg.AddPromoted("WalletNew", "Jupiter")
	b, ok := reg.Get("WalletNew")
	if !ok || !b.Promoted || b.NetTotal != 0 || b.Venue != "Jupiter" {
		t.Errorf("unexpected promoted baseline: %+v", b)
	}

	// re-promotion never clobbers an existing baseline
	reg.AddPromoted("WalletA", "Raydium")
	a, _ := reg.Get("WalletA")
	if a.NetTotal != 10 || a.Promoted {
		t.Errorf("existing baseline overwritten: %+v", a)
	}

	if reg.Len() != 2 {
		t.Errorf("expected 2 baselines, got %d", reg.Len())
	}
}
