// Package profit turns raw transaction meta into a profit figure with
// a confidence grade describing how trustworthy that figure is.
package profit

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"wallet-radar/internal/blockchain"
	"wallet-radar/internal/pricing"
)

const lamportsPerSol = 1e9

// Confidence grades an estimate
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMed    Confidence = "med"
	ConfidenceHigh   Confidence = "high"
)

// SubMetrics are the four inputs to the confidence model
type SubMetrics struct {
	PriceCoverage    float64 `json:"price_coverage"`
	RouteComplexity  float64 `json:"route_complexity"`
	FeeCompleteness  float64 `json:"fee_completeness"`
	BalanceAlignment float64 `json:"balance_alignment"`
}

// Estimate is the outcome of valorizing a batch of transactions
type Estimate struct {
	ProfitSol      float64    `json:"profit_sol"`
	FeeSol         float64    `json:"fee_sol"`
	TxCount        int        `json:"tx_count"`
	Programs       []string   `json:"programs"`
	Counterparties []string   `json:"counterparties"`
	SubMetrics     SubMetrics `json:"sub_metrics"`
	Confidence     Confidence `json:"confidence"`
}

// Estimator fetches and valorizes transactions for a wallet
type Estimator struct {
	client       blockchain.Client
	resolver     *pricing.Resolver
	tolerancePct float64
	// RetryDelay computes backoff between per-signature fetch attempts
	RetryDelay func(attempt int) time.Duration
}

// NewEstimator creates an estimator over an RPC client and price resolver
func NewEstimator(client blockchain.Client, resolver *pricing.Resolver, tolerancePct float64) *Estimator {
	return &Estimator{
		client:       client,
		resolver:     resolver,
		tolerancePct: tolerancePct,
		RetryDelay: func(attempt int) time.Duration {
			return time.Duration(200*(attempt+1)) * time.Millisecond
		},
	}
}

// fetchTx fetches one transaction, allowing two extra attempts for
// failures worth retrying. Malformed or permanent failures return
// immediately.
func (e *Estimator) fetchTx(ctx context.Context, sig string) (*blockchain.TransactionDetail, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.RetryDelay(attempt - 1)):
			}
		}
		tx, err := e.client.GetTransaction(ctx, sig)
		if err == nil {
			return tx, nil
		}
		lastErr = err
		if !blockchain.Retryable(blockchain.ClassifyFailure(err)) {
			break
		}
	}
	return nil, lastErr
}

// Estimate valorizes the given signatures for a wallet. A batch where
// every fetch fails yields a zeroed estimate with low confidence rather
// than an error, so one bad wallet never aborts a scan loop.
func (e *Estimator) Estimate(ctx context.Context, wallet string, sigs []string) *Estimate {
	var (
		profit        float64
		feeTotal      float64
		solDeltaSum   float64
		tokenDeltaSum float64
		totalInner    int
		totalTokens   int
		pricedTokens  int
		feeKnown      = true
		fetched       int
	)
	programs := make(map[string]bool)
	counterparties := make(map[string]bool)

	for _, sig := range sigs {
		tx, err := e.fetchTx(ctx, sig)
		if err != nil {
			log.Warn().Err(err).Str("signature", sig).Msg("transaction fetch failed")
			continue
		}
		if tx == nil || tx.Meta == nil {
			continue
		}
		fetched++

		keys := tx.Transaction.Message.AccountKeys

		// native SOL delta at the wallet's own account index
		for i, key := range keys {
			if key != wallet {
				continue
			}
			if i < len(tx.Meta.PreBalances) && i < len(tx.Meta.PostBalances) {
				delta := (float64(tx.Meta.PostBalances[i]) - float64(tx.Meta.PreBalances[i])) / lamportsPerSol
				profit += delta
				solDeltaSum += math.Abs(delta)
			}
			break
		}

		// SPL token deltas owned by the wallet. A mint counts as priced
		// when resolution succeeds, whether the price came from the
		// cache or a live oracle call.
		deltas := tokenDeltas(tx.Meta, wallet)
		for mint, delta := range deltas {
			if delta == 0 {
				continue
			}
			if mint == blockchain.WrappedSolMint {
				profit += delta
				solDeltaSum += math.Abs(delta)
				continue
			}

			totalTokens++
			price, ok := e.resolver.PriceInSol(ctx, mint)
			if !ok {
				continue
			}
			pricedTokens++
			valorized := delta * price
			profit += valorized
			tokenDeltaSum += math.Abs(valorized)
		}

		fee := float64(tx.Meta.Fee) / lamportsPerSol
		if tx.Meta.Fee == 0 {
			feeKnown = false
		}
		profit -= fee
		feeTotal += fee

		totalInner += tx.InnerInstructionCount()
		for _, p := range tx.Programs() {
			programs[p] = true
		}
		for _, cp := range tx.Counterparties(wallet) {
			counterparties[cp] = true
		}
	}

	if fetched == 0 {
		return &Estimate{
			SubMetrics: SubMetrics{},
			Confidence: ConfidenceLow,
		}
	}

	sub := SubMetrics{
		PriceCoverage:    1,
		RouteComplexity:  math.Min(float64(totalInner)/math.Max(float64(fetched), 1), 10),
		FeeCompleteness:  1,
		BalanceAlignment: 0.5,
	}
	if totalTokens > 0 {
		sub.PriceCoverage = float64(pricedTokens) / float64(totalTokens)
	}
	if !feeKnown {
		sub.FeeCompleteness = 0
	}

	totalValorized := solDeltaSum + tokenDeltaSum
	totalObserved := math.Abs(profit) + feeTotal
	if totalValorized > 0 {
		rel := math.Abs(totalValorized-totalObserved) / math.Max(totalValorized, 1e-9)
		if rel <= e.tolerancePct/100 {
			sub.BalanceAlignment = 1
		}
	}

	return &Estimate{
		ProfitSol:      profit,
		FeeSol:         feeTotal,
		TxCount:        fetched,
		Programs:       sortedKeys(programs),
		Counterparties: sortedKeys(counterparties),
		SubMetrics:     sub,
		Confidence:     Grade(sub),
	}
}

// Grade maps sub-metrics to a confidence band. The score starts at 2
// and loses a point per degraded dimension pair.
func Grade(sub SubMetrics) Confidence {
	score := 2
	if sub.PriceCoverage < 0.7 || sub.RouteComplexity > 5 {
		score--
	}
	if sub.FeeCompleteness < 1 || sub.BalanceAlignment < 0.8 {
		score--
	}
	if score < 0 {
		score = 0
	}
	switch score {
	case 2:
		return ConfidenceHigh
	case 1:
		return ConfidenceMed
	default:
		return ConfidenceLow
	}
}

// tokenDeltas nets post-pre token balances per mint for a wallet
func tokenDeltas(meta *blockchain.TxMeta, wallet string) map[string]float64 {
	deltas := make(map[string]float64)
	for _, b := range meta.PreTokenBalances {
		if b.Owner != wallet || b.UITokenAmount.UIAmount == nil {
			continue
		}
		deltas[b.Mint] -= *b.UITokenAmount.UIAmount
	}
	for _, b := range meta.PostTokenBalances {
		if b.Owner != wallet || b.UITokenAmount.UIAmount == nil {
			continue
		}
		deltas[b.Mint] += *b.UITokenAmount.UIAmount
	}
	return deltas
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	// deterministic output keeps alerts and tests stable
	sort.Strings(out)
	return out
}
