package pricing

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"wallet-radar/internal/blockchain"
)

func testCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	c, err := NewCache(filepath.Join(t.TempDir(), "prices.db"), ttl)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCachePutGet(t *testing.T) {
	c := testCache(t, time.Minute)

	if err := c.Put("MintA", 0.5); err != nil {
		t.Fatalf("Put: %v", err)
	}

	p, err := c.GetFresh("MintA")
	if err != nil {
		t.Fatalf("GetFresh: %v", err)
	}
	if p == nil || p.PriceSol != 0.5 {
		t.Errorf("expected fresh price 0.5, got %+v", p)
	}

	missing, err := c.GetFresh("MintB")
	if err != nil {
		t.Fatalf("GetFresh missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing mint, got %+v", missing)
	}

	n, err := c.Size()
	if err != nil || n != 1 {
		t.Errorf("expected size 1, got %d (%v)", n, err)
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	c := testCache(t, 10*time.Millisecond)

	if err := c.Put("MintA", 0.5); err != nil {
		t.Fatalf("Put: %v", err)
	}
	time.Sleep(1100 * time.Millisecond) // last_seen has second resolution

	p, err := c.GetFresh("MintA")
	if err != nil {
		t.Fatalf("GetFresh: %v", err)
	}
	if p != nil {
		t.Errorf("expected expired entry to be hidden, got %+v", p)
	}

	// stale entry is still visible to Get
	stale, err := c.Get("MintA")
	if err != nil || stale == nil {
		t.Fatalf("expected stale entry via Get, got %+v (%v)", stale, err)
	}

	dropped, err := c.PruneExpired()
	if err != nil {
		t.Fatalf("PruneExpired: %v", err)
	}
	if dropped != 1 {
		t.Errorf("expected 1 pruned, got %d", dropped)
	}
}

func TestJupiterSource(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":{"MintA":{"id":"MintA","price":3.0},"%s":{"id":"sol","price":150.0}}}`,
			blockchain.WrappedSolMint)
	}))
	defer ts.Close()

	src := NewJupiterSource(NewHTTPClientPool(1, 2*time.Second))
	src.baseURL = ts.URL

	price, err := src.PriceInSol(context.Background(), "MintA")
	if err != nil {
		t.Fatalf("PriceInSol: %v", err)
	}
	if price != 0.02 {
		t.Errorf("expected 3/150 = 0.02 SOL, got %f", price)
	}
}

func TestBirdeyeSource(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-API-KEY"); got != "test-key" {
			t.Errorf("expected API key header, got %q", got)
		}
		fmt.Fprint(w, `{"success":true,"data":{"value":15.0}}`)
	}))
	defer ts.Close()

	src := NewBirdeyeSource("test-key", 150.0, NewHTTPClientPool(1, 2*time.Second))
	src.baseURL = ts.URL

	price, err := src.PriceInSol(context.Background(), "MintA")
	if err != nil {
		t.Fatalf("PriceInSol: %v", err)
	}
	if price != 0.1 {
		t.Errorf("expected 15/150 = 0.1 SOL, got %f", price)
	}
}

type stubSource struct {
	name  string
	price float64
	err   error
	calls int
}

func (s *stubSource) Name() string { return s.name }
func (s *stubSource) PriceInSol(context.Context, string) (float64, error) {
	s.calls++
	return s.price, s.err
}

func TestResolverOrderAndCaching(t *testing.T) {
	cache := testCache(t, time.Minute)
	first := &stubSource{name: "first", err: fmt.Errorf("down")}
	second := &stubSource{name: "second", price: 0.25}
	r := NewResolver(cache, first, second)

	price, ok := r.PriceInSol(context.Background(), "MintA")
	if !ok || price != 0.25 {
		t.Fatalf("expected fallback price 0.25, got %f ok=%v", price, ok)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Errorf("expected each source tried once, got %d/%d", first.calls, second.calls)
	}

	// second lookup served from cache
	price, ok = r.PriceInSol(context.Background(), "MintA")
	if !ok || price != 0.25 {
		t.Fatalf("expected cached price, got %f ok=%v", price, ok)
	}
	if second.calls != 1 {
		t.Errorf("expected cache hit, source called %d times", second.calls)
	}
}

func TestResolverWrappedSol(t *testing.T) {
	r := NewResolver(testCache(t, time.Minute))
	price, ok := r.PriceInSol(context.Background(), blockchain.WrappedSolMint)
	if !ok || price != 1.0 {
		t.Errorf("wrapped SOL should price at 1.0, got %f ok=%v", price, ok)
	}
}

func TestResolverUnpriced(t *testing.T) {
	r := NewResolver(testCache(t, time.Minute), &stubSource{name: "down", err: fmt.Errorf("down")})
	if _, ok := r.PriceInSol(context.Background(), "MintX"); ok {
		t.Error("expected unpriced mint to report ok=false")
	}
}
