package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"wallet-radar/internal/api"
	"wallet-radar/internal/auth"
	"wallet-radar/internal/billing"
	"wallet-radar/internal/blockchain"
	"wallet-radar/internal/config"
	"wallet-radar/internal/copytrader"
	"wallet-radar/internal/health"
	"wallet-radar/internal/metrics"
	"wallet-radar/internal/monitor"
	"wallet-radar/internal/pricing"
	"wallet-radar/internal/profit"
	"wallet-radar/internal/report"
	"wallet-radar/internal/state"
	"wallet-radar/internal/watchlist"
	"wallet-radar/internal/webhook"
	"wallet-radar/internal/websocket"
)

func main() {
	setupLogger()
	log.Info().Msg("wallet radar starting")

	cfg, err := config.NewManager(configPath())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	conf := cfg.Get()

	m := metrics.New()
	m.AppUp.Set(1)

	st, err := state.NewStore(
		conf.Storage.StateDBPath,
		time.Duration(conf.Alerting.StateTTLSeconds)*time.Second,
		conf.Alerting.MaxSeenSignatures,
		m,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open state store")
	}
	defer st.Close()

	priceCache, err := pricing.NewCache(
		conf.Storage.PriceCacheDBPath,
		time.Duration(conf.Pricing.PriceTTLSeconds)*time.Second,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open price cache")
	}
	defer priceCache.Close()

	pool := pricing.NewHTTPClientPool(conf.Loop.MaxConcurrency, cfg.RPCTimeout())
	sources := []pricing.Source{pricing.NewJupiterSource(pool)}
	if conf.Pricing.BirdeyeAPIKey != "" {
		sources = append(sources, pricing.NewBirdeyeSource(
			conf.Pricing.BirdeyeAPIKey, conf.Pricing.SolUsdFallback, pool))
	}
	resolver := pricing.NewResolver(priceCache, sources...)

	var client blockchain.Client
	var fabric *blockchain.Fabric
	if conf.Modes.RPCMode == "fixtures" {
		client = blockchain.NewFixtureClient(conf.RPC.FixturesDir)
		log.Warn().Str("dir", conf.RPC.FixturesDir).Msg("running on fixture transactions")
	} else {
		fabric = blockchain.NewFabric(blockchain.FabricConfig{
			Endpoints:       conf.RPC.Endpoints,
			Timeout:         cfg.RPCTimeout(),
			MaxRetries:      conf.RPC.MaxRetries,
			BreakerFailures: conf.RPC.CircuitBreakerFailures,
			BreakerPause:    time.Duration(conf.RPC.CircuitBreakerPauseSec * float64(time.Second)),
			RetryJitterBase: conf.RPC.RetryJitterBase,
			RetryJitterMax:  conf.RPC.RetryJitterMax,
		}, m)
		client = fabric
	}

	estimator := profit.NewEstimator(client, resolver, conf.Pricing.BalanceTolerancePct)

	watch := watchlist.New(conf.Alerting.WatchlistMaxSize, m)
	baselineList, seedWatch, err := monitor.LoadSeed(
		conf.Storage.SeedFile,
		conf.Alerting.GainFilter,
		conf.Alerting.WinRateFilter,
		conf.Alerting.WatchlistMaxSize,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load seed file")
	}
	baselines := monitor.NewBaselines(baselineList)
	for _, addr := range seedWatch {
		b, _ := baselines.Get(addr)
		watch.Add(&watchlist.Wallet{
			Address:       addr,
			NetTotal:      b.NetTotal,
			WinRate:       b.WinRate,
			Profitability: b.Profitability,
			Consistency:   b.ConsistencyIndex,
			Venue:         b.Venue,
			AddedAt:       time.Now(),
		})
	}

	engine := monitor.NewEngine(cfg, client, estimator, st, watch, baselines, m)

	sender := webhook.NewSender(conf.Webhook.URL, conf.Modes.IncludePaywallPrompt)
	engine.AddSink(sender)

	var trader *copytrader.Trader
	if conf.Modes.CopyTraderEnabled && !conf.Modes.DryRun {
		trader, err = copytrader.NewTrader(conf.Storage.CopyTraderDBPath, conf.Alerting.ProfitThreshold)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open copy trader book")
		}
		defer trader.Close()
		engine.OnEstimate = trader.OnEstimate
		log.Warn().Msg("copy trader enabled, simulation only")
	}

	var healthFn func() []blockchain.EndpointHealth
	if fabric != nil {
		healthFn = fabric.Health
	}
	reporter := report.NewWriter(cfg, st, watch, baselines, engine, healthFn, resolver.CacheSize)

	sched := monitor.NewScheduler(engine)
	sched.OnReport = reporter.Refresh
	sched.OnDetailedReport = func() {
		reporter.RefreshDetailed()
		sender.ReportSummary(engine.Stats.Snapshot(), watch.Len())
	}
	sched.Heartbeat = func() {
		sender.Heartbeat(watch.Len(), engine.Stats.AlertsSent.Load(), engine.Ring.LastProfit())
	}
	sched.Notify = func(status string) {
		sender.SystemNotification(status, "wallet radar "+status, map[string]string{
			"Watchlist": strconv.Itoa(watch.Len()),
			"Dry run":   strconv.FormatBool(conf.Modes.DryRun),
		})
	}

	keys, err := auth.NewStore(conf.Storage.APIKeysDBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open api key store")
	}
	defer keys.Close()

	limiter := auth.NewRateLimiter(auth.Limits{
		Free:  conf.API.RateLimitFree,
		Pro:   conf.API.RateLimitPro,
		Elite: conf.API.RateLimitElite,
	})
	billingSvc := billing.NewService(keys, m)

	probe := health.NewProbe(
		sched.LastLoop,
		watch.Len,
		engine.Ring.LastProfit,
		conf.Modes.DryRun,
		conf.Modes.DaasMode,
	)

	apiSvc := api.NewService(cfg, keys, limiter, billingSvc, engine.Ring, baselines, probe, m)
	go func() {
		if err := apiSvc.Start(); err != nil {
			log.Fatal().Err(err).Msg("api server failed")
		}
	}()

	healthSrv := health.NewServer(conf.API.Host, conf.API.HealthPort, probe, m.Handler())
	go func() {
		if err := healthSrv.Start(); err != nil {
			log.Fatal().Err(err).Msg("health listener failed")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if conf.WebSocket.Enabled && conf.WebSocket.URL != "" {
		wsClient := websocket.NewClient(
			conf.WebSocket.URL,
			time.Duration(conf.WebSocket.ReconnectDelayMs)*time.Millisecond,
			time.Duration(conf.WebSocket.PingIntervalMs)*time.Millisecond,
		)
		if err := wsClient.Connect(ctx); err != nil {
			log.Warn().Err(err).Msg("websocket connect failed, polling only")
		} else {
			defer wsClient.Close()
			hot := websocket.NewHotWallets(wsClient, func(n websocket.ActivityNotice) {
				engine.ScanWallet(ctx, n.Wallet)
			})
			for _, addr := range watch.Addresses() {
				if err := hot.Watch(addr); err != nil {
					log.Warn().Err(err).Str("wallet", addr).Msg("wallet log watch failed")
				}
			}
			defer hot.Stop()
		}
	}

	go sched.Run(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	cancel()
	// let the scheduler save state and announce shutdown
	time.Sleep(time.Second)
	apiSvc.Shutdown()
	healthSrv.Shutdown(context.Background())
	log.Info().Msg("goodbye")
}

// configPath resolves the optional YAML config file
func configPath() string {
	if p := os.Getenv("CONFIG_FILE"); p != "" {
		return p
	}
	if _, err := os.Stat("config/config.yaml"); err == nil {
		return "config/config.yaml"
	}
	return ""
}

// setupLogger emits JSON when running as a daemon; a terminal or
// LOG_PRETTY=1 switches to the console writer.
func setupLogger() {
	var w io.Writer = os.Stderr
	if os.Getenv("LOG_PRETTY") == "1" || isatty.IsTerminal(os.Stderr.Fd()) {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "1" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}
