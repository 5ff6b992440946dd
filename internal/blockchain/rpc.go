package blockchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"wallet-radar/internal/metrics"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// endpoint is one RPC URL with its circuit breaker state
type endpoint struct {
	url string

	mu       sync.Mutex
	state    breakerState
	failures int
	openedAt time.Time
}

// available reports whether the endpoint may receive a request now.
// An open breaker transitions to half-open once the pause has elapsed.
func (e *endpoint) available(pause time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == breakerOpen {
		if time.Since(e.openedAt) < pause {
			return false
		}
		e.state = breakerHalfOpen
		log.Debug().Str("endpoint", e.url).Msg("circuit breaker half-open, probing")
	}
	return true
}

func (e *endpoint) recordFailure(threshold int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.failures++
	if e.state == breakerHalfOpen || e.failures >= threshold {
		e.state = breakerOpen
		e.openedAt = time.Now()
		log.Warn().Str("endpoint", e.url).Int("failures", e.failures).Msg("circuit breaker opened")
	}
}

func (e *endpoint) recordSuccess() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != breakerClosed {
		log.Info().Str("endpoint", e.url).Msg("circuit breaker closed")
	}
	e.state = breakerClosed
	e.failures = 0
}

// EndpointHealth is a snapshot of one endpoint for reporting
type EndpointHealth struct {
	URL      string `json:"url"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
}

// FabricConfig tunes the RPC fabric
type FabricConfig struct {
	Endpoints        []string
	Timeout          time.Duration
	MaxRetries       int
	BreakerFailures  int
	BreakerPause     time.Duration
	RetryJitterBase  float64
	RetryJitterMax   float64
}

// Fabric is a multi-endpoint Solana RPC client with per-endpoint
// circuit breakers, rotation and jittered retry backoff.
type Fabric struct {
	endpoints  []*endpoint
	httpClient *http.Client
	cfg        FabricConfig
	metrics    *metrics.Metrics

	mu      sync.Mutex
	current int

	calls  atomic.Int64
	errors atomic.Int64
}

// NewFabric creates the RPC fabric. metrics may be nil.
func NewFabric(cfg FabricConfig, m *metrics.Metrics) *Fabric {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}

	eps := make([]*endpoint, 0, len(cfg.Endpoints))
	for _, url := range cfg.Endpoints {
		eps = append(eps, &endpoint{url: url})
	}

	return &Fabric{
		endpoints: eps,
		cfg:       cfg,
		metrics:   m,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}
}

// GetSignaturesForAddress fetches the newest signatures touching an address
func (f *Fabric) GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]SignatureInfo, error) {
	req := RPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getSignaturesForAddress",
		Params: []interface{}{
			address,
			map[string]interface{}{"limit": limit, "commitment": "confirmed"},
		},
	}

	var result []SignatureInfo
	if err := f.call(ctx, req, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetTransaction fetches a confirmed transaction with full meta
func (f *Fabric) GetTransaction(ctx context.Context, signature string) (*TransactionDetail, error) {
	req := RPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getTransaction",
		Params: []interface{}{
			signature,
			map[string]interface{}{
				"encoding":                       "json",
				"commitment":                     "confirmed",
				"maxSupportedTransactionVersion": 0,
			},
		},
	}

	var result *TransactionDetail
	if err := f.call(ctx, req, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Health snapshots every endpoint's breaker state for reports
func (f *Fabric) Health() []EndpointHealth {
	out := make([]EndpointHealth, 0, len(f.endpoints))
	for _, e := range f.endpoints {
		e.mu.Lock()
		out = append(out, EndpointHealth{URL: e.url, State: e.state.String(), Failures: e.failures})
		e.mu.Unlock()
	}
	return out
}

// Stats returns cumulative call and error counts
func (f *Fabric) Stats() (calls, errors int64) {
	return f.calls.Load(), f.errors.Load()
}

// RetryDelay computes the jittered exponential backoff for an attempt,
// capped at the per-call timeout.
func (f *Fabric) RetryDelay(attempt int) time.Duration {
	d := f.cfg.RetryJitterBase*math.Pow(2, float64(attempt)) + rand.Float64()*f.cfg.RetryJitterMax
	if ceil := f.cfg.Timeout.Seconds(); d > ceil {
		d = ceil
	}
	return time.Duration(d * float64(time.Second))
}

func (f *Fabric) call(ctx context.Context, req RPCRequest, result interface{}) error {
	var lastErr error
	attempts := f.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(f.RetryDelay(attempt - 1)):
			}
		}

		ep := f.pickEndpoint()
		if ep == nil {
			lastErr = fmt.Errorf("all %d endpoints have open circuit breakers", len(f.endpoints))
			continue
		}

		start := time.Now()
		err := f.callURL(ctx, ep.url, req, result)
		f.calls.Add(1)
		if f.metrics != nil {
			f.metrics.RPCLatency.Observe(time.Since(start).Seconds())
		}

		if err == nil {
			ep.recordSuccess()
			return nil
		}

		f.errors.Add(1)
		if f.metrics != nil {
			f.metrics.RPCErrors.WithLabelValues(ep.url).Inc()
		}
		ep.recordFailure(f.cfg.BreakerFailures)
		f.rotate()
		log.Warn().Err(err).Str("endpoint", ep.url).Int("attempt", attempt+1).Msg("RPC call failed")
		lastErr = err
	}

	return fmt.Errorf("rpc call %s: %w", req.Method, lastErr)
}

// pickEndpoint returns the first available endpoint starting from the
// current rotation position, or nil when every breaker is open.
func (f *Fabric) pickEndpoint() *endpoint {
	f.mu.Lock()
	start := f.current
	f.mu.Unlock()

	for i := 0; i < len(f.endpoints); i++ {
		ep := f.endpoints[(start+i)%len(f.endpoints)]
		if ep.available(f.cfg.BreakerPause) {
			return ep
		}
	}
	return nil
}

func (f *Fabric) rotate() {
	f.mu.Lock()
	f.current = (f.current + 1) % len(f.endpoints)
	f.mu.Unlock()
}

func (f *Fabric) callURL(ctx context.Context, url string, rpcReq RPCRequest, result interface{}) error {
	body, err := json.Marshal(rpcReq)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("http status %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if rpcResp.Error != nil {
		return rpcResp.Error
	}

	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	return nil
}
