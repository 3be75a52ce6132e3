package recorder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dericksozo/telegram-whale-tracker/internal/logger"
)

const rawKeyPrefix = "raw:"

// deliveryIDHeaders are the provider header variants carrying a stable
// delivery identifier, checked in order.
var deliveryIDHeaders = []string{
	"x-webhook-id",
	"webhook-id",
	"x-delivery-id",
	"x-sim-delivery-id",
	"x-request-id",
}

// Store is the slice of the idempotency store the recorder needs.
type Store interface {
	PutIfAbsent(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
}

// RawDelivery is the durable audit record of one inbound webhook call.
// It is created once per idempotency key and never mutated or deleted.
type RawDelivery struct {
	ReceivedAt time.Time         `json:"received_at"`
	Path       string            `json:"path"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

// Recorder persists every inbound webhook payload exactly once per logical
// delivery. Recording is best-effort: storage failures are logged and never
// surface to the webhook handler.
type Recorder struct {
	store Store
	log   logger.Logger
}

// New creates a raw delivery recorder.
func New(store Store, log logger.Logger) *Recorder {
	return &Recorder{
		store: store,
		log:   log.With(logger.F("component", "recorder")),
	}
}

// IdempotencyKey derives the dedup key for a delivery: a provider
// delivery-id header when present, else the SHA-256 hex digest of the body,
// else a random UUID (accepted duplicate risk for empty bodies).
func IdempotencyKey(headers map[string]string, body []byte) string {
	for _, name := range deliveryIDHeaders {
		for k, v := range headers {
			if strings.EqualFold(k, name) && v != "" {
				return v
			}
		}
	}

	if len(body) > 0 {
		sum := sha256.Sum256(body)
		return hex.EncodeToString(sum[:])
	}

	return uuid.New().String()
}

// Record stores the delivery under raw:<kind>:<idempotency_key> with an
// atomic create-if-absent, so a retried delivery with the same key is
// silently ignored and never overwritten.
func (r *Recorder) Record(ctx context.Context, kind, path string, headers map[string]string, body []byte) {
	key := IdempotencyKey(headers, body)

	delivery := RawDelivery{
		ReceivedAt: time.Now().UTC(),
		Path:       path,
		Headers:    headers,
		Body:       string(body),
	}

	data, err := json.Marshal(delivery)
	if err != nil {
		r.log.Error("failed to marshal raw delivery",
			logger.F("error", err),
			logger.F("kind", kind),
		)
		return
	}

	inserted, err := r.store.PutIfAbsent(ctx, rawKeyPrefix+kind+":"+key, string(data), 0)
	if err != nil {
		r.log.Error("failed to store raw delivery",
			logger.F("error", err),
			logger.F("kind", kind),
			logger.F("idempotency_key", key),
		)
		return
	}

	if !inserted {
		r.log.Debug("duplicate delivery skipped",
			logger.F("kind", kind),
			logger.F("idempotency_key", key),
		)
		return
	}

	r.log.Debug("raw delivery stored",
		logger.F("kind", kind),
		logger.F("idempotency_key", key),
		logger.F("bytes", len(body)),
	)
}
