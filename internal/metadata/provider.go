package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/dericksozo/telegram-whale-tracker/internal/logger"
	"github.com/dericksozo/telegram-whale-tracker/pkg/models"
)

// ProviderConfig holds metadata provider configuration.
type ProviderConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// MinCallInterval throttles successive provider calls to stay under
	// the published rate ceiling. Mostly matters for the bulk refresh job.
	MinCallInterval time.Duration
}

// Provider is the HTTP client for the external token metadata API.
type Provider struct {
	config     ProviderConfig
	httpClient *http.Client
	log        logger.Logger

	mu       sync.Mutex
	lastCall time.Time
}

// tokenInfoResponse is the provider's token-info wire shape. Only the
// first array element is trusted.
type tokenInfoResponse struct {
	Tokens []tokenInfoEntry `json:"tokens"`
}

type tokenInfoEntry struct {
	Symbol   string   `json:"symbol"`
	Name     string   `json:"name"`
	Decimals int      `json:"decimals"`
	PriceUSD *float64 `json:"price_usd"`
	Price    *float64 `json:"price"`
	ChainID  int64    `json:"chain_id"`
}

// NewProvider creates a metadata provider client.
func NewProvider(cfg ProviderConfig, log logger.Logger) *Provider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &Provider{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log.With(logger.F("component", "metadata-provider")),
	}
}

// throttle enforces the minimum inter-call delay.
func (p *Provider) throttle(ctx context.Context) error {
	if p.config.MinCallInterval == 0 {
		return nil
	}

	p.mu.Lock()
	wait := p.config.MinCallInterval - time.Since(p.lastCall)
	p.lastCall = time.Now().Add(wait)
	p.mu.Unlock()

	if wait <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// TokenInfo looks up metadata for (tokenAddress, chainID). A response with
// no usable first element returns (nil, nil); HTTP errors including 429 are
// returned as failures with no retry inside this call.
func (p *Provider) TokenInfo(ctx context.Context, tokenAddress string, chainID int64) (*models.TokenMetadata, error) {
	if err := p.throttle(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/token-info/%s", p.config.BaseURL, url.PathEscape(tokenAddress))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	q := req.URL.Query()
	q.Set("chain_ids", strconv.FormatInt(chainID, 10))
	req.URL.RawQuery = q.Encode()

	if p.config.APIKey != "" {
		req.Header.Set("X-Sim-Api-Key", p.config.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		p.log.Warn("metadata provider returned error",
			logger.F("status", resp.StatusCode),
			logger.F("token", tokenAddress),
			logger.F("chain_id", chainID),
		)
		return nil, fmt.Errorf("metadata provider error: status %d", resp.StatusCode)
	}

	var parsed tokenInfoResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(parsed.Tokens) == 0 {
		return nil, nil
	}

	first := parsed.Tokens[0]
	meta := &models.TokenMetadata{
		Symbol:   first.Symbol,
		Name:     first.Name,
		Decimals: first.Decimals,
		ChainID:  first.ChainID,
	}
	if meta.ChainID == 0 {
		meta.ChainID = chainID
	}

	// Some provider responses carry price_usd, older ones plain price.
	switch {
	case first.PriceUSD != nil:
		meta.PriceUSD = first.PriceUSD
	case first.Price != nil:
		meta.PriceUSD = first.Price
	}

	return meta, nil
}
