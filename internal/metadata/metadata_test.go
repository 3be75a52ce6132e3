package metadata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dericksozo/telegram-whale-tracker/internal/logger"
	"github.com/dericksozo/telegram-whale-tracker/pkg/models"
)

// mockLogger implements logger.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(msg string, fields ...logger.Field) {}
func (m *mockLogger) Info(msg string, fields ...logger.Field)  {}
func (m *mockLogger) Warn(msg string, fields ...logger.Field)  {}
func (m *mockLogger) Error(msg string, fields ...logger.Field) {}
func (m *mockLogger) Fatal(msg string, fields ...logger.Field) {}
func (m *mockLogger) With(fields ...logger.Field) logger.Logger {
	return m
}

// memStore is an in-memory CacheStore
type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (s *memStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// fakeProvider records lookups and serves canned results per chain id
type fakeProvider struct {
	mu      sync.Mutex
	calls   []int64
	results map[int64]*models.TokenMetadata
	errs    map[int64]error
}

func (f *fakeProvider) TokenInfo(ctx context.Context, token string, chainID int64) (*models.TokenMetadata, error) {
	f.mu.Lock()
	f.calls = append(f.calls, chainID)
	f.mu.Unlock()
	if err := f.errs[chainID]; err != nil {
		return nil, err
	}
	return f.results[chainID], nil
}

func validMeta(chainID int64) *models.TokenMetadata {
	price := 2.5
	return &models.TokenMetadata{
		Symbol:   "FOO",
		Name:     "Foo Token",
		Decimals: 18,
		PriceUSD: &price,
		ChainID:  chainID,
	}
}

func TestResolve_CacheHitSkipsProvider(t *testing.T) {
	cache := NewCache(newMemStore(), &mockLogger{})
	provider := &fakeProvider{results: map[int64]*models.TokenMetadata{1: validMeta(1)}}
	enricher := NewEnricher(cache, provider, &mockLogger{})
	ctx := context.Background()

	first, err := enricher.Resolve(ctx, "0xToken", 1, nil)
	if err != nil || first == nil {
		t.Fatalf("first resolve failed: meta=%v err=%v", first, err)
	}

	second, err := enricher.Resolve(ctx, "0xToken", 1, nil)
	if err != nil || second == nil {
		t.Fatalf("second resolve failed: meta=%v err=%v", second, err)
	}

	if len(provider.calls) != 1 {
		t.Errorf("expected exactly 1 provider call within TTL, got %d", len(provider.calls))
	}
	if second.Symbol != "FOO" {
		t.Errorf("cached symbol = %q, want FOO", second.Symbol)
	}
}

func TestResolve_FallbackOrderStopsAtFirstValid(t *testing.T) {
	cache := NewCache(newMemStore(), &mockLogger{})
	provider := &fakeProvider{
		results: map[int64]*models.TokenMetadata{
			8453: validMeta(8453),
		},
		errs: map[int64]error{1: errors.New("not on this chain")},
	}
	enricher := NewEnricher(cache, provider, &mockLogger{})

	meta, err := enricher.Resolve(context.Background(), "0xToken", 1, []int64{56, 8453, 137})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta == nil || meta.ChainID != 8453 {
		t.Fatalf("expected result from chain 8453, got %+v", meta)
	}

	want := []int64{1, 56, 8453}
	if len(provider.calls) != len(want) {
		t.Fatalf("call sequence %v, want %v", provider.calls, want)
	}
	for i := range want {
		if provider.calls[i] != want[i] {
			t.Errorf("call %d was chain %d, want %d", i, provider.calls[i], want[i])
		}
	}
}

func TestResolve_InvalidResultTreatedAsNotFound(t *testing.T) {
	cache := NewCache(newMemStore(), &mockLogger{})
	provider := &fakeProvider{
		results: map[int64]*models.TokenMetadata{
			// Symbol present but name missing: must not be used or cached.
			1: {Symbol: "FOO", Decimals: 18, ChainID: 1},
		},
	}
	enricher := NewEnricher(cache, provider, &mockLogger{})
	ctx := context.Background()

	meta, err := enricher.Resolve(ctx, "0xToken", 1, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta != nil {
		t.Fatalf("invalid result should resolve as not-found, got %+v", meta)
	}

	// Nothing cached: a second resolve calls the provider again.
	if _, err := enricher.Resolve(ctx, "0xToken", 1, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(provider.calls) != 2 {
		t.Errorf("invalid result must not be cached, got %d calls", len(provider.calls))
	}
}

func TestResolve_NotFoundAfterAllCandidates(t *testing.T) {
	cache := NewCache(newMemStore(), &mockLogger{})
	provider := &fakeProvider{}
	enricher := NewEnricher(cache, provider, &mockLogger{})

	meta, err := enricher.Resolve(context.Background(), "0xNobody", 1, []int64{56})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta != nil {
		t.Errorf("expected not-found, got %+v", meta)
	}
	if len(provider.calls) != 2 {
		t.Errorf("expected 2 lookups, got %d", len(provider.calls))
	}
}

func TestResolve_HintDeduplicatedFromFallbacks(t *testing.T) {
	cache := NewCache(newMemStore(), &mockLogger{})
	provider := &fakeProvider{}
	enricher := NewEnricher(cache, provider, &mockLogger{})

	_, err := enricher.Resolve(context.Background(), "0xNobody", 1, []int64{1, 56})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int64{1, 56}
	if len(provider.calls) != len(want) {
		t.Errorf("hint chain should not be retried from the fallback list: %v", provider.calls)
	}
}

func TestCache_ExpiredEntryMisses(t *testing.T) {
	cache := NewCache(newMemStore(), &mockLogger{})
	cache.SetTTL(10 * time.Millisecond)
	ctx := context.Background()

	if err := cache.Set(ctx, "0xToken", 1, validMeta(1)); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	meta, err := cache.Get(ctx, "0xToken", 1)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if meta != nil {
		t.Errorf("expired entry should miss, got %+v", meta)
	}
}

func TestCache_RefusesInvalidMetadata(t *testing.T) {
	cache := NewCache(newMemStore(), &mockLogger{})
	if err := cache.Set(context.Background(), "0xToken", 1, &models.TokenMetadata{Symbol: "FOO"}); err == nil {
		t.Error("expected error caching invalid metadata")
	}
}

func TestParseKey(t *testing.T) {
	token, chainID, err := ParseKey(Key("0xToken", 56))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "0xToken" || chainID != 56 {
		t.Errorf("ParseKey round trip = (%q, %d), want (0xToken, 56)", token, chainID)
	}

	for _, bad := range []string{"subs:chat:1", "token:meta:", "token:meta:abc:0xToken", "token:meta:56:"} {
		if _, _, err := ParseKey(bad); err == nil {
			t.Errorf("ParseKey(%q) should fail", bad)
		}
	}
}

func TestProvider_TokenInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("chain_ids") != "1" {
			t.Errorf("missing chain_ids query: %s", r.URL.RawQuery)
		}
		if r.Header.Get("X-Sim-Api-Key") != "test-key" {
			t.Errorf("missing api key header")
		}
		fmt.Fprint(w, `{"tokens":[{"symbol":"FOO","name":"Foo Token","decimals":6,"price_usd":1.25,"chain_id":1}]}`)
	}))
	defer srv.Close()

	provider := NewProvider(ProviderConfig{BaseURL: srv.URL, APIKey: "test-key"}, &mockLogger{})

	meta, err := provider.TokenInfo(context.Background(), "0xToken", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta.Symbol != "FOO" || meta.Name != "Foo Token" || meta.Decimals != 6 {
		t.Errorf("unexpected metadata: %+v", meta)
	}
	if meta.PriceUSD == nil || *meta.PriceUSD != 1.25 {
		t.Errorf("unexpected price: %v", meta.PriceUSD)
	}
}

func TestProvider_LegacyPriceField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"tokens":[{"symbol":"BAR","name":"Bar","decimals":18,"price":0.5}]}`)
	}))
	defer srv.Close()

	provider := NewProvider(ProviderConfig{BaseURL: srv.URL}, &mockLogger{})

	meta, err := provider.TokenInfo(context.Background(), "0xBar", 56)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta.PriceUSD == nil || *meta.PriceUSD != 0.5 {
		t.Errorf("legacy price field not picked up: %v", meta.PriceUSD)
	}
	if meta.ChainID != 56 {
		t.Errorf("missing chain_id should default to the query chain, got %d", meta.ChainID)
	}
}

func TestProvider_EmptyTokensIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"tokens":[]}`)
	}))
	defer srv.Close()

	provider := NewProvider(ProviderConfig{BaseURL: srv.URL}, &mockLogger{})

	meta, err := provider.TokenInfo(context.Background(), "0xToken", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta != nil {
		t.Errorf("expected nil for empty tokens array, got %+v", meta)
	}
}

func TestProvider_RateLimitedIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	provider := NewProvider(ProviderConfig{BaseURL: srv.URL}, &mockLogger{})

	if _, err := provider.TokenInfo(context.Background(), "0xToken", 1); err == nil {
		t.Error("expected error for 429 response")
	}
}

func TestProvider_ThrottleSpacesCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"tokens":[]}`)
	}))
	defer srv.Close()

	provider := NewProvider(ProviderConfig{
		BaseURL:         srv.URL,
		MinCallInterval: 50 * time.Millisecond,
	}, &mockLogger{})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := provider.TokenInfo(ctx, "0xToken", 1); err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}

	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("3 throttled calls finished in %v, want >= 100ms", elapsed)
	}
}
