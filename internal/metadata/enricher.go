package metadata

import (
	"context"

	"github.com/dericksozo/telegram-whale-tracker/internal/logger"
	"github.com/dericksozo/telegram-whale-tracker/pkg/models"
)

// Lookup is the provider surface the enricher consumes.
type Lookup interface {
	TokenInfo(ctx context.Context, tokenAddress string, chainID int64) (*models.TokenMetadata, error)
}

// Enricher resolves token metadata with a read-through cache and an
// ordered multi-chain fallback for when the primary chain guess is wrong.
type Enricher struct {
	cache    *Cache
	provider Lookup
	log      logger.Logger
}

// NewEnricher creates a metadata enricher.
func NewEnricher(cache *Cache, provider Lookup, log logger.Logger) *Enricher {
	return &Enricher{
		cache:    cache,
		provider: provider,
		log:      log.With(logger.F("component", "enricher")),
	}
}

// Resolve returns metadata for (tokenAddress, chainIDHint), trying the
// fallback chain ids in order when the primary lookup fails or is invalid.
// A cache hit skips the network entirely; only the first valid result is
// cached, keyed by the lookup target. (nil, nil) means not-found — callers
// degrade to an unknown-token alert rather than dropping the event.
func (e *Enricher) Resolve(ctx context.Context, tokenAddress string, chainIDHint int64, fallbackChainIDs []int64) (*models.TokenMetadata, error) {
	cached, err := e.cache.Get(ctx, tokenAddress, chainIDHint)
	if err != nil {
		// Cache trouble degrades to a provider call, it never blocks
		// enrichment.
		e.log.Warn("metadata cache read failed",
			logger.F("error", err),
			logger.F("token", tokenAddress),
		)
	}
	if cached != nil {
		e.log.Debug("metadata cache hit",
			logger.F("token", tokenAddress),
			logger.F("chain_id", chainIDHint),
			logger.F("symbol", cached.Symbol),
		)
		return cached, nil
	}

	candidates := make([]int64, 0, 1+len(fallbackChainIDs))
	candidates = append(candidates, chainIDHint)
	for _, id := range fallbackChainIDs {
		if id != chainIDHint {
			candidates = append(candidates, id)
		}
	}

	for i, chainID := range candidates {
		meta, err := e.provider.TokenInfo(ctx, tokenAddress, chainID)
		if err != nil {
			e.log.Warn("metadata lookup failed",
				logger.F("error", err),
				logger.F("token", tokenAddress),
				logger.F("chain_id", chainID),
			)
			continue
		}
		if !meta.IsValid() {
			e.log.Debug("metadata lookup returned invalid result",
				logger.F("token", tokenAddress),
				logger.F("chain_id", chainID),
			)
			continue
		}

		if i > 0 {
			e.log.Info("token resolved on fallback chain",
				logger.F("token", tokenAddress),
				logger.F("hint_chain_id", chainIDHint),
				logger.F("resolved_chain_id", meta.ChainID),
			)
		}

		if err := e.cache.Set(ctx, tokenAddress, chainIDHint, meta); err != nil {
			e.log.Warn("failed to cache metadata",
				logger.F("error", err),
				logger.F("token", tokenAddress),
			)
		}

		return meta, nil
	}

	e.log.Debug("token metadata not found on any chain",
		logger.F("token", tokenAddress),
		logger.F("chains_tried", len(candidates)),
	)
	return nil, nil
}
