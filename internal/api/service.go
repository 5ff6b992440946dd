// Package api serves the tiered signal API: health, recent signals,
// wallet scores, and the billing endpoints.
package api

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"wallet-radar/internal/auth"
	"wallet-radar/internal/billing"
	"wallet-radar/internal/config"
	"wallet-radar/internal/health"
	"wallet-radar/internal/metrics"
	"wallet-radar/internal/monitor"
)

// maxSignals caps the alerts returned by the signals endpoint
const maxSignals = 100

// Service is the signal API server
type Service struct {
	app       *fiber.App
	cfg       *config.Manager
	keys      *auth.Store
	limiter   *auth.RateLimiter
	billing   *billing.Service
	ring      *monitor.Ring
	baselines *monitor.Baselines
	probe     *health.Probe
	metrics   *metrics.Metrics
}

// NewService wires the API server. metrics may be nil.
func NewService(
	cfg *config.Manager,
	keys *auth.Store,
	limiter *auth.RateLimiter,
	billingSvc *billing.Service,
	ring *monitor.Ring,
	baselines *monitor.Baselines,
	probe *health.Probe,
	m *metrics.Metrics,
) *Service {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          5 * time.Second,
	})

	s := &Service{
		app:       app,
		cfg:       cfg,
		keys:      keys,
		limiter:   limiter,
		billing:   billingSvc,
		ring:      ring,
		baselines: baselines,
		probe:     probe,
		metrics:   m,
	}

	s.setupRoutes()
	return s
}

func (s *Service) setupRoutes() {
	s.app.Get("/healthz", s.handleHealthz)
	s.app.Get("/api/v1/signals", s.handleSignals)
	s.app.Get("/api/v1/wallet/:address/score", s.handleWalletScore)
	s.app.Post("/api/v1/billing/webhook", s.handleBillingWebhook)
	s.app.Post("/api/v1/billing/fake-checkout", s.handleFakeCheckout)
}

func (s *Service) countCall(endpoint string, status int) {
	if s.metrics != nil {
		s.metrics.APICalls.WithLabelValues(endpoint, fmt.Sprintf("%d", status)).Inc()
	}
}

func (s *Service) handleHealthz(c *fiber.Ctx) error {
	healthy, payload := s.probe.Evaluate()
	status := fiber.StatusOK
	if !healthy {
		status = fiber.StatusInternalServerError
	}
	s.countCall("/healthz", status)
	return c.Status(status).JSON(payload)
}

// authenticate validates the API key header and applies the tier rate
// limit. On failure the response has already been written.
func (s *Service) authenticate(c *fiber.Ctx, endpoint string) (tier string, ok bool) {
	key := c.Get("x-api-key")
	if key == "" {
		s.countCall(endpoint, fiber.StatusUnauthorized)
		c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
		return "", false
	}

	tier, valid, err := s.keys.Validate(key)
	if err != nil {
		log.Error().Err(err).Msg("key validation failed")
		s.countCall(endpoint, fiber.StatusInternalServerError)
		c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		return "", false
	}
	if !valid {
		s.countCall(endpoint, fiber.StatusUnauthorized)
		c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
		return "", false
	}

	allowed, remaining, limit := s.limiter.Allow(auth.HashKey(key), tier)
	c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
	if !allowed {
		c.Set("X-RateLimit-Remaining", "0")
		s.countCall(endpoint, fiber.StatusTooManyRequests)
		c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Rate limit exceeded"})
		return "", false
	}
	c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
	return tier, true
}

func (s *Service) handleSignals(c *fiber.Ctx) error {
	const endpoint = "/api/v1/signals"
	tier, ok := s.authenticate(c, endpoint)
	if !ok {
		return nil
	}

	alerts := s.ring.Last(maxSignals)
	signals := make([]fiber.Map, 0, len(alerts))
	for _, a := range alerts {
		signals = append(signals, shapeAlertForTier(a, tier))
	}

	payload := fiber.Map{
		"signals":    signals,
		"count":      len(signals),
		"disclaimer": monitor.Disclaimer,
	}
	if tier == auth.TierFree {
		payload["upgrade"] = "Upgrade to pro or elite for enriched signals"
	}

	s.countCall(endpoint, fiber.StatusOK)
	return c.JSON(payload)
}

// shapeAlertForTier is the single place alert payloads are composed:
// free gets the minimal fields, pro adds the scoring detail, elite
// adds the full counterparty list.
func shapeAlertForTier(a monitor.Alert, tier string) fiber.Map {
	payload := fiber.Map{
		"wallet":      a.Wallet,
		"profit":      a.Profit,
		"dex":         a.Venue,
		"signal_type": a.SignalType,
		"timestamp":   a.Timestamp.UTC().Format(time.RFC3339),
		"signature":   a.Signature,
	}
	if tier == auth.TierPro || tier == auth.TierElite {
		payload["win_rate"] = a.WinRate
		payload["zscore"] = a.ZScore
		payload["pnl_confidence"] = a.Confidence
		payload["confidence_reasons"] = a.SubMetrics
		payload["detect_ms"] = a.DetectMs
	}
	if tier == auth.TierElite {
		payload["counterparties"] = a.Counterparties
	}
	return payload
}

// handleWalletScore serves the per-wallet score. Wallets unknown to
// the monitor score zero across the board.
func (s *Service) handleWalletScore(c *fiber.Ctx) error {
	const endpoint = "/api/v1/wallet/{address}/score"
	tier, ok := s.authenticate(c, endpoint)
	if !ok {
		return nil
	}

	address := c.Params("address")

	var winRate, netTotal, zscore float64
	if b, known := s.baselines.Get(address); known {
		winRate = b.WinRate
		netTotal = b.NetTotal
	}
	alerts := s.ring.Last(maxSignals)
	for i := len(alerts) - 1; i >= 0; i-- {
		if alerts[i].Wallet == address {
			zscore = alerts[i].ZScore
			break
		}
	}

	s.countCall(endpoint, fiber.StatusOK)
	return c.JSON(fiber.Map{
		"wallet": address,
		"tier":   tier,
		"score": fiber.Map{
			"z_score":   zscore,
			"win_rate":  winRate,
			"net_total": netTotal,
		},
	})
}

func (s *Service) handleBillingWebhook(c *fiber.Ctx) error {
	const endpoint = "/api/v1/billing/webhook"

	var ev billing.Event
	if err := c.BodyParser(&ev); err != nil {
		s.countCall(endpoint, fiber.StatusBadRequest)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
	}

	result, err := s.billing.HandleEvent(ev)
	if err != nil {
		log.Error().Err(err).Str("event", ev.Type).Msg("billing webhook failed")
		s.countCall(endpoint, fiber.StatusInternalServerError)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	s.countCall(endpoint, fiber.StatusOK)
	return c.JSON(fiber.Map{"status": "ok", "result": result})
}

func (s *Service) handleFakeCheckout(c *fiber.Ctx) error {
	const endpoint = "/api/v1/billing/fake-checkout"

	if !s.cfg.Get().Billing.FakeCheckoutEnabled {
		s.countCall(endpoint, fiber.StatusForbidden)
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Fake checkout disabled"})
	}

	var req struct {
		Tier  string `json:"tier"`
		Email string `json:"email"`
	}
	if err := c.BodyParser(&req); err != nil {
		s.countCall(endpoint, fiber.StatusBadRequest)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
	}
	if req.Tier == "" {
		req.Tier = auth.TierFree
	}

	result, err := s.billing.FakeCheckout(req.Email, req.Tier)
	if err != nil {
		log.Error().Err(err).Msg("fake checkout failed")
		s.countCall(endpoint, fiber.StatusInternalServerError)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	s.countCall(endpoint, fiber.StatusOK)
	return c.JSON(result)
}

// App exposes the fiber app for tests
func (s *Service) App() *fiber.App {
	return s.app
}

// Start serves the API until the listener fails or Shutdown is called
func (s *Service) Start() error {
	apiCfg := s.cfg.Get().API
	addr := fmt.Sprintf("%s:%d", apiCfg.Host, apiCfg.Port)
	log.Info().Str("addr", addr).Msg("api server started")
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server
func (s *Service) Shutdown() error {
	return s.app.Shutdown()
}
