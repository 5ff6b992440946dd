package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"wallet-radar/internal/blockchain"
)

// Source resolves a token mint to a price denominated in SOL
type Source interface {
	Name() string
	PriceInSol(ctx context.Context, mint string) (float64, error)
}

// JupiterSource prices tokens through the Jupiter price API by quoting
// both the token and wrapped SOL in USD and taking the ratio.
type JupiterSource struct {
	baseURL string
	pool    *HTTPClientPool
}

// NewJupiterSource creates the Jupiter price source
func NewJupiterSource(pool *HTTPClientPool) *JupiterSource {
	return &JupiterSource{
		baseURL: "https://price.jup.ag/v6/price",
		pool:    pool,
	}
}

func (s *JupiterSource) Name() string { return "jupiter" }

type jupiterPriceResponse struct {
	Data map[string]struct {
		ID    string  `json:"id"`
		Price float64 `json:"price"`
	} `json:"data"`
}

func (s *JupiterSource) PriceInSol(ctx context.Context, mint string) (float64, error) {
	url := fmt.Sprintf("%s?ids=%s,%s", s.baseURL, mint, blockchain.WrappedSolMint)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.pool.Get().Do(req)
	if err != nil {
		return 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("price failed (%d): %s", resp.StatusCode, string(body))
	}

	var out jupiterPriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode price: %w", err)
	}

	token, ok := out.Data[mint]
	if !ok || token.Price <= 0 {
		return 0, fmt.Errorf("no price for %s", mint)
	}
	sol, ok := out.Data[blockchain.WrappedSolMint]
	if !ok || sol.Price <= 0 {
		return 0, fmt.Errorf("no SOL reference price")
	}
	return token.Price / sol.Price, nil
}

// BirdeyeSource prices tokens through the Birdeye public API. Birdeye
// returns USD, converted with a configured SOL/USD fallback rate.
type BirdeyeSource struct {
	baseURL        string
	apiKey         string
	solUsdFallback float64
	pool           *HTTPClientPool
}

// NewBirdeyeSource creates the Birdeye price source
func NewBirdeyeSource(apiKey string, solUsdFallback float64, pool *HTTPClientPool) *BirdeyeSource {
	return &BirdeyeSource{
		baseURL:        "https://public-api.birdeye.so/v1/price",
		apiKey:         apiKey,
		solUsdFallback: solUsdFallback,
		pool:           pool,
	}
}

func (s *BirdeyeSource) Name() string { return "birdeye" }

type birdeyePriceResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Value float64 `json:"value"`
	} `json:"data"`
}

func (s *BirdeyeSource) PriceInSol(ctx context.Context, mint string) (float64, error) {
	url := fmt.Sprintf("%s?address=%s", s.baseURL, mint)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-KEY", s.apiKey)

	resp, err := s.pool.Get().Do(req)
	if err != nil {
		return 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("price failed (%d): %s", resp.StatusCode, string(body))
	}

	var out birdeyePriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode price: %w", err)
	}

	if !out.Success || out.Data.Value <= 0 {
		return 0, fmt.Errorf("no price for %s", mint)
	}
	return out.Data.Value / s.solUsdFallback, nil
}
