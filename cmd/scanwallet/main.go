// Command scanwallet runs a one-shot profit estimate for a single
// wallet and prints the verdict. Useful for eyeballing a candidate
// before seeding it into the watchlist.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"wallet-radar/internal/blockchain"
	"wallet-radar/internal/config"
	"wallet-radar/internal/monitor"
	"wallet-radar/internal/pricing"
	"wallet-radar/internal/profit"
)

func main() {
	wallet := flag.String("wallet", "", "wallet address to scan")
	limit := flag.Int("limit", 10, "how many recent signatures to fetch")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if os.Getenv("DEBUG") == "1" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if *wallet == "" {
		fmt.Fprintln(os.Stderr, "usage: scanwallet -wallet <address> [-limit N]")
		os.Exit(2)
	}

	cfg, err := config.NewManager(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	conf := cfg.Get()

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
	if conf.Modes.RPCMode == "fixtures" {
		client = blockchain.NewFixtureClient(conf.RPC.FixturesDir)
	} else {
		client = blockchain.NewFabric(blockchain.FabricConfig{
			Endpoints:       conf.RPC.Endpoints,
			Timeout:         cfg.RPCTimeout(),
			MaxRetries:      conf.RPC.MaxRetries,
			BreakerFailures: conf.RPC.CircuitBreakerFailures,
			BreakerPause:    time.Duration(conf.RPC.CircuitBreakerPauseSec * float64(time.Second)),
			RetryJitterBase: conf.RPC.RetryJitterBase,
			RetryJitterMax:  conf.RPC.RetryJitterMax,
		}, nil)
	}

	estimator := profit.NewEstimator(client, resolver, conf.Pricing.BalanceTolerancePct)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	started := time.Now()
	sigs, err := client.GetSignaturesForAddress(ctx, *wallet, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("signature fetch failed")
	}
	if len(sigs) == 0 {
		color.Yellow("no recent transactions for %s", *wallet)
		return
	}

	batch := make([]string, 0, len(sigs))
	for _, s := range sigs {
		batch = append(batch, s.Signature)
	}

	est := estimator.Estimate(ctx, *wallet, batch)
	elapsed := time.Since(started)

	venue := monitor.LabelFromPrograms(est.Programs)
	printResult(*wallet, venue, est, len(sigs), elapsed)
}

func printResult(wallet, venue string, est *profit.Estimate, sigCount int, elapsed time.Duration) {
	bold := color.New(color.Bold)

	bold.Printf("wallet      %s\n", wallet)
	fmt.Printf("venue       %s (%s)\n", venue, monitor.ClassifySignal(venue))
	fmt.Printf("signatures  %d fetched, %d valorized\n", sigCount, est.TxCount)

	profitLine := fmt.Sprintf("profit      %+.4f SOL (fees %.6f SOL)", est.ProfitSol, est.FeeSol)
	switch {
	case est.ProfitSol > 0:
		color.Green(profitLine)
	case est.ProfitSol < 0:
		color.Red(profitLine)
	default:
		fmt.Println(profitLine)
	}

	confLine := fmt.Sprintf("confidence  %s (cov %.2f, route %.2f, fees %.2f, align %.2f)",
		est.Confidence,
		est.SubMetrics.PriceCoverage,
		est.SubMetrics.RouteComplexity,
		est.SubMetrics.FeeCompleteness,
		est.SubMetrics.BalanceAlignment)
	switch est.Confidence {
	case profit.ConfidenceHigh:
		color.Green(confLine)
	case profit.ConfidenceLow:
		color.Red(confLine)
	default:
		color.Yellow(confLine)
	}

	if len(est.Counterparties) > 0 {
		fmt.Printf("counterpts  %v\n", est.Counterparties)
	}
	fmt.Printf("elapsed     %s\n", elapsed.Round(time.Millisecond))
}
