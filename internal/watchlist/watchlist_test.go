package watchlist

import (
	"fmt"
	"testing"
)

func TestAddAndContains(t *testing.T) {
	w := New(10, nil)

	w.Add(&Wallet{Address: "A", NetTotal: 12.5, WinRate: 85})
	if !w.Contains("A") {
		t.Error("expected A to be watched")
	}
	if w.Contains("B") {
		t.Error("B should not be watched")
	}
	if got := w.Get("A"); got == nil || got.NetTotal != 12.5 {
		t.Errorf("unexpected wallet: %+v", got)
	}
	if w.Len() != 1 {
		t.Errorf("expected len 1, got %d", w.Len())
	}
}

func TestEvictsLeastRecentlyActive(t *testing.T) {
	w := New(3, nil)
	for _, a := range []string{"A", "B", "C"} {
		w.Add(&Wallet{Address: a})
	}

	// A becomes recently active, B is now the coldest
	w.Touch("A")

	evicted := w.Add(&Wallet{Address: "D", Promoted: true})
	if evicted != "B" {
		t.Errorf("expected B evicted, got %q", evicted)
	}
	if w.Contains("B") {
		t.Error("B should be gone")
	}
	for _, a := range []string{"A", "C", "D"} {
		if !w.Contains(a) {
			t.Errorf("expected %s to remain", a)
		}
	}
}

func TestReAddRefreshesWithoutEviction(t *testing.T) {
	w := New(2, nil)
	w.Add(&Wallet{Address: "A", NetTotal: 1})
	w.Add(&Wallet{Address: "B"})

	evicted := w.Add(&Wallet{Address: "A", NetTotal: 9})
	if evicted != "" {
		t.Errorf("re-add should not evict, got %q", evicted)
	}
	if got := w.Get("A"); got.NetTotal != 9 {
		t.Errorf("expected refreshed net total 9, got %f", got.NetTotal)
	}
	if w.Len() != 2 {
		t.Errorf("expected len 2, got %d", w.Len())
	}
}

func TestAddressesOrder(t *testing.T) {
	w := New(5, nil)
	for i := 0; i < 3; i++ {
		w.Add(&Wallet{Address: fmt.Sprintf("W%d", i)})
	}
	w.Touch("W0")

	addrs := w.Addresses()
	if len(addrs) != 3 {
		t.Fatalf("expected 3 addresses, got %d", len(addrs))
	}
	if addrs[0] != "W1" || addrs[2] != "W0" {
		t.Errorf("unexpected order: %v", addrs)
	}
}
