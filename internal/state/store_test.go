package state

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T, path string, ttl time.Duration, maxSeen int) *Store {
	t.Helper()
	s, err := NewStore(path, ttl, maxSeen, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestSeenSignatures(t *testing.T) {
	s := testStore(t, filepath.Join(t.TempDir(), "state.db"), time.Hour, 100)
	defer s.Close()

	if s.Seen("s1") {
		t.Error("fresh store should not know s1")
	}
	s.MarkSeen("s1")
	if !s.Seen("s1") {
		t.Error("expected s1 to be seen")
	}
	if !s.AnySeen([]string{"s2", "s1"}) {
		t.Error("AnySeen should find s1")
	}
	if s.AnySeen([]string{"s2", "s3"}) {
		t.Error("AnySeen should not find unknown signatures")
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s := testStore(t, path, time.Hour, 100)
	s.MarkSeen("s1")
	s.SetLastSignature("WalletA", "s1")
	s.SetLastAlert("WalletA", time.Now())
	if err := s.SetValue("last_loop_ts", "12345"); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2 := testStore(t, path, time.Hour, 100)
	defer s2.Close()

	if !s2.Seen("s1") {
		t.Error("seen signature lost across restart")
	}
	if got := s2.LastSignature("WalletA"); got != "s1" {
		t.Errorf("expected last signature s1, got %q", got)
	}
	if s2.LastAlert("WalletA").IsZero() {
		t.Error("last alert lost across restart")
	}
	v, err := s2.GetValue("last_loop_ts")
	if err != nil || v != "12345" {
		t.Errorf("expected kv value 12345, got %q (%v)", v, err)
	}
}

func TestGCExpiryAndCap(t *testing.T) {
	s := testStore(t, filepath.Join(t.TempDir(), "state.db"), time.Hour, 5)
	defer s.Close()

	// expired entry
	s.mu.Lock()
	s.seen["old"] = time.Now().Add(-2 * time.Hour).Unix()
	// over-cap entries with increasing timestamps
	for i := 0; i < 8; i++ {
		s.seen[fmt.Sprintf("s%d", i)] = time.Now().Add(time.Duration(i) * time.Second).Unix()
	}
	s.mu.Unlock()

	dropped := s.GC()
	if dropped != 4 { // 1 expired + 3 over cap
		t.Errorf("expected 4 dropped, got %d", dropped)
	}
	if got := s.SeenCount(); got != 5 {
		t.Errorf("expected 5 remaining, got %d", got)
	}
	if s.Seen("old") {
		t.Error("expired signature should be gone")
	}
	if s.Seen("s0") {
		t.Error("oldest over-cap signature should be evicted")
	}
	if !s.Seen("s7") {
		t.Error("newest signature should survive")
	}
}

func TestGCExpiresAlertMarks(t *testing.T) {
	s := testStore(t, filepath.Join(t.TempDir(), "state.db"), time.Hour, 100)
	defer s.Close()

	s.SetLastAlert("Fresh", time.Now())
	s.SetLastAlert("Stale", time.Now().Add(-2*time.Hour))

	if dropped := s.GC(); dropped != 1 {
		t.Errorf("expected 1 dropped alert mark, got %d", dropped)
	}
	if s.LastAlert("Fresh").IsZero() {
		t.Error("fresh alert mark should survive")
	}
	if !s.LastAlert("Stale").IsZero() {
		t.Error("stale alert mark should be gone")
	}
}

func TestLoadHonorsTTL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s := testStore(t, path, time.Hour, 100)
	s.mu.Lock()
	s.seen["fresh"] = time.Now().Unix()
	s.seen["stale"] = time.Now().Add(-2 * time.Hour).Unix()
	s.lastAlerts["StaleWallet"] = time.Now().Add(-2 * time.Hour).Unix()
	s.mu.Unlock()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2 := testStore(t, path, time.Hour, 100)
	defer s2.Close()

	if !s2.Seen("fresh") {
		t.Error("fresh signature should load")
	}
	if s2.Seen("stale") {
		t.Error("stale signature should not load")
	}
	if !s2.LastAlert("StaleWallet").IsZero() {
		t.Error("stale alert mark should not load")
	}
}

func TestLastAlertsSnapshot(t *testing.T) {
	s := testStore(t, filepath.Join(t.TempDir(), "state.db"), time.Hour, 100)
	defer s.Close()

	now := time.Now()
	s.SetLastAlert("WalletA", now)
	s.SetLastAlert("WalletB", now.Add(-time.Minute))

	snap := s.LastAlerts()
	if len(snap) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(snap))
	}
	if snap["WalletA"].Unix() != now.Unix() {
		t.Errorf("unexpected WalletA time: %v", snap["WalletA"])
	}
}
