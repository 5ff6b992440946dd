package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"wallet-radar/internal/monitor"
	"wallet-radar/internal/profit"
)

type capture struct {
	mu       sync.Mutex
	payloads []Payload
	status   int
}

func newCaptureServer(t *testing.T) (*capture, *httptest.Server) {
	t.Helper()
	c := &capture{status: http.StatusNoContent}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		c.mu.Lock()
		c.payloads = append(c.payloads, p)
		status := c.status
		c.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return c, srv
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func (c *capture) setStatus(s int) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

func testSender(url string) *Sender {
	s := NewSender(url, true)
	s.retryDelay = func(int) time.Duration { return 0 }
	return s
}

func testAlert(wallet, sig string, p float64) monitor.Alert {
	return monitor.Alert{
		Wallet:     wallet,
		Profit:     p,
		Venue:      "Jupiter",
		SignalType: "AMM / Aggregator",
		Signature:  sig,
		Confidence: profit.ConfidenceHigh,
		Tier:       "free",
	}
}

func TestDeliverSendsPayload(t *testing.T) {
	c, srv := newCaptureServer(t)
	s := testSender(srv.URL)

	s.Deliver(testAlert("WalletA", "s1", 3.5))

	if c.count() != 1 {
		t.Fatalf("expected 1 send, got %d", c.count())
	}
	p := c.payloads[0]
	if p.Username != "WalletRadar" || len(p.Embeds) != 1 {
		t.Fatalf("unexpected payload: %+v", p)
	}

	var hasDisclaimer, hasUpgrade, hasExplorer bool
	for _, f := range p.Embeds[0].Fields {
		switch f.Name {
		case "Disclaimer":
			hasDisclaimer = true
		case "Upgrade":
			hasUpgrade = true
		case "Explorer":
			hasExplorer = true
		}
	}
	if !hasDisclaimer {
		t.Error("every alert embed must carry the disclaimer")
	}
	if !hasUpgrade {
		t.Error("free tier should carry the upgrade prompt")
	}
	if !hasExplorer {
		t.Error("alert with signature should link the explorer")
	}
}

func TestEliteFieldsIncludeScoring(t *testing.T) {
	c, srv := newCaptureServer(t)
	s := testSender(srv.URL)

	a := testAlert("WalletA", "s1", 3.5)
	a.Tier = "elite"
	a.ZScore = 1.25
	s.Deliver(a)

	var hasZ, hasUpgrade bool
	for _, f := range c.payloads[0].Embeds[0].Fields {
		if f.Name == "Z-score" {
			hasZ = true
		}
		if f.Name == "Upgrade" {
			hasUpgrade = true
		}
	}
	if !hasZ {
		t.Error("elite tier should include the z-score")
	}
	if hasUpgrade {
		t.Error("paid tiers should not see the upgrade prompt")
	}
}

func TestDeliverDeduplicatesContent(t *testing.T) {
	c, srv := newCaptureServer(t)
	s := testSender(srv.URL)

	a := testAlert("WalletA", "s1", 3.5)
	s.Deliver(a)
	s.Deliver(a)

	if c.count() != 1 {
		t.Errorf("identical content within the window should send once, got %d", c.count())
	}

	// different profit bucket is new content
	b := testAlert("WalletA", "s1", 3.6)
	s.Deliver(b)
	if c.count() != 2 {
		t.Errorf("changed content should send, got %d", c.count())
	}
}

func TestDeliverCircuitBreaker(t *testing.T) {
	c, srv := newCaptureServer(t)
	s := testSender(srv.URL)
	c.setStatus(http.StatusInternalServerError)

	s.Deliver(testAlert("WalletA", "s1", 3.5))
	if c.count() != 2 {
		t.Fatalf("expected initial attempt plus one retry, got %d", c.count())
	}

	// circuit open: a fresh alert for the same wallet is dropped
	c.setStatus(http.StatusNoContent)
	s.Deliver(testAlert("WalletA", "s2", 4.5))
	if c.count() != 2 {
		t.Fatalf("open circuit should drop sends, got %d", c.count())
	}

	// after the pause the circuit lets traffic through again
	s.now = func() time.Time { return time.Now().Add(time.Minute) }
	s.Deliver(testAlert("WalletA", "s3", 5.5))
	if c.count() != 3 {
		t.Errorf("expired circuit should send, got %d", c.count())
	}
}

func TestSystemNotificationDedup(t *testing.T) {
	c, srv := newCaptureServer(t)
	s := testSender(srv.URL)

	fixed := time.Now()
	s.now = func() time.Time { return fixed }

	s.SystemNotification("started", "up", nil)
	s.SystemNotification("started", "up", nil)
	if c.count() != 1 {
		t.Errorf("same bucket should send once, got %d", c.count())
	}

	s.now = func() time.Time { return fixed.Add(10 * time.Second) }
	s.SystemNotification("started", "up", nil)
	if c.count() != 2 {
		t.Errorf("new bucket should send, got %d", c.count())
	}
}

func TestEmptyURLDisablesSends(t *testing.T) {
	s := testSender("")
	s.Deliver(testAlert("WalletA", "s1", 3.5))
	s.SystemNotification("started", "up", nil)
	// nothing to assert beyond not panicking
}
