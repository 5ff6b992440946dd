// Package health exposes the liveness probe shared by the signal API
// and the standalone health listener.
package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/rs/zerolog/log"
)

// staleAfter fails the probe when no scan cycle completed in time
const staleAfter = 180 * time.Second

// Probe evaluates process liveness from live monitor components
type Probe struct {
	LastLoop      func() time.Time
	WatchlistSize func() int
	LastProfit    func() float64
	DryRun        bool
	DaasMode      bool

	now func() time.Time
}

// NewProbe wires a liveness probe
func NewProbe(lastLoop func() time.Time, watchlistSize func() int, lastProfit func() float64, dryRun, daasMode bool) *Probe {
	return &Probe{
		LastLoop:      lastLoop,
		WatchlistSize: watchlistSize,
		LastProfit:    lastProfit,
		DryRun:        dryRun,
		DaasMode:      daasMode,
		now:           time.Now,
	}
}

// Evaluate returns whether the loop is live plus the probe payload.
// A zero loop timestamp means the loop has not completed a cycle yet
// and is treated as live during startup.
func (p *Probe) Evaluate() (bool, map[string]any) {
	loopTS := p.LastLoop()
	healthy := loopTS.IsZero() || p.now().Sub(loopTS) < staleAfter

	status := "OK"
	if !healthy {
		status = "STALE"
	}

	var unix int64
	if !loopTS.IsZero() {
		unix = loopTS.Unix()
	}

	return healthy, map[string]any{
		"status":         status,
		"loop_ts":        unix,
		"watchlist_size": p.WatchlistSize(),
		"last_profit":    p.LastProfit(),
		"dry_run":        p.DryRun,
		"daas_mode":      p.DaasMode,
	}
}

// Server is the standalone liveness listener. It carries the probe
// and the metrics handler on a port separate from the signal API.
type Server struct {
	app   *fiber.App
	probe *Probe
	addr  string
}

// NewServer builds the health listener. metrics may be nil.
func NewServer(host string, port int, probe *Probe, metrics http.Handler) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          5 * time.Second,
	})

	s := &Server{
		app:   app,
		probe: probe,
		addr:  fmt.Sprintf("%s:%d", host, port),
	}

	app.Get("/healthz", s.handleHealthz)
	if metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics))
	}
	return s
}

func (s *Server) handleHealthz(c *fiber.Ctx) error {
	healthy, payload := s.probe.Evaluate()
	status := fiber.StatusOK
	if !healthy {
		status = fiber.StatusInternalServerError
	}
	return c.Status(status).JSON(payload)
}

// App exposes the fiber app for tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Start serves until the listener fails or Shutdown is called
func (s *Server) Start() error {
	log.Info().Str("addr", s.addr).Msg("health listener started")
	return s.app.Listen(s.addr)
}

// Shutdown stops the listener
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
