package pricing

import (
	"context"

	"github.com/rs/zerolog/log"

	"wallet-radar/internal/blockchain"
)

// Resolver answers "how many SOL is one unit of this mint worth" by
// consulting the cache first, then each source in order. A mint no
// source can price is reported as unpriced, never as an error.
type Resolver struct {
	cache   *Cache
	sources []Source
}

// NewResolver creates a resolver over an ordered source chain
func NewResolver(cache *Cache, sources ...Source) *Resolver {
	return &Resolver{cache: cache, sources: sources}
}

// PriceInSol resolves a mint price. ok is false when no source has one.
func (r *Resolver) PriceInSol(ctx context.Context, mint string) (price float64, ok bool) {
	if mint == blockchain.WrappedSolMint {
		return 1.0, true
	}

	if cached, err := r.cache.GetFresh(mint); err == nil && cached != nil {
		return cached.PriceSol, true
	}

	for _, src := range r.sources {
		p, err := src.PriceInSol(ctx, mint)
		if err != nil {
			log.Debug().Err(err).Str("source", src.Name()).Str("mint", mint).Msg("price lookup failed")
			continue
		}
		if err := r.cache.Put(mint, p); err != nil {
			log.Warn().Err(err).Str("mint", mint).Msg("failed to cache price")
		}
		return p, true
	}

	return 0, false
}

// CacheSize exposes the cache entry count for reports
func (r *Resolver) CacheSize() int {
	n, err := r.cache.Size()
	if err != nil {
		return 0
	}
	return n
}
