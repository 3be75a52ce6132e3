package handler

import (
	"context"

	"github.com/dericksozo/telegram-whale-tracker/internal/broadcast"
	"github.com/dericksozo/telegram-whale-tracker/internal/classifier"
	"github.com/dericksozo/telegram-whale-tracker/internal/logger"
	"github.com/dericksozo/telegram-whale-tracker/pkg/models"
)

// Recorder persists raw deliveries, best-effort.
type Recorder interface {
	Record(ctx context.Context, kind, path string, headers map[string]string, body []byte)
}

// Resolver looks up token metadata with caching and chain fallback.
type Resolver interface {
	Resolve(ctx context.Context, tokenAddress string, chainIDHint int64, fallbackChainIDs []int64) (*models.TokenMetadata, error)
}

// MessageFormatter renders enriched events into alert text.
type MessageFormatter interface {
	FormatActivityMessage(act models.Activity, meta *models.TokenMetadata) string
	FormatBalanceChangeMessage(ch models.BalanceChange, meta *models.TokenMetadata) string
}

// Broadcaster fans a message out to every subscriber.
type Broadcaster interface {
	Broadcast(ctx context.Context, message string) (broadcast.Result, error)
}

// Summary is the acknowledgment returned to the webhook caller.
type Summary struct {
	Received int            `json:"received"`
	Counts   map[string]int `json:"counts"`
}

// Service runs the intake pipeline for one webhook delivery: record the
// raw payload, parse, classify, then enrich/format/broadcast each
// surviving event in payload order. Once the payload is structurally
// valid the caller always gets a success summary; downstream enrichment
// and delivery failures never bubble back to the webhook response.
type Service struct {
	recorder       Recorder
	resolver       Resolver
	formatter      MessageFormatter
	broadcaster    Broadcaster
	fallbackChains []int64
	log            logger.Logger
}

// New creates a pipeline service.
func New(recorder Recorder, resolver Resolver, formatter MessageFormatter, broadcaster Broadcaster, fallbackChains []int64, log logger.Logger) *Service {
	return &Service{
		recorder:       recorder,
		resolver:       resolver,
		formatter:      formatter,
		broadcaster:    broadcaster,
		fallbackChains: fallbackChains,
		log:            log.With(logger.F("component", "handler")),
	}
}

// HandleActivities processes one activities webhook delivery.
func (s *Service) HandleActivities(ctx context.Context, path string, headers map[string]string, body []byte) (*Summary, error) {
	s.recorder.Record(ctx, "activities", path, headers, body)

	payload, err := models.ParseActivities(body)
	if err != nil {
		return nil, err
	}

	res := classifier.ClassifyActivities(payload.Activities)
	s.log.Info("activities classified",
		logger.F("received", len(payload.Activities)),
		logger.F("eligible", len(res.Eligible)),
	)

	for _, act := range res.Eligible {
		meta := s.resolve(ctx, act.TokenAddress, act.ChainID)
		s.send(ctx, s.formatter.FormatActivityMessage(act, meta))
	}

	return &Summary{Received: len(payload.Activities), Counts: res.Counts}, nil
}

// HandleTransactions processes one transactions webhook delivery. These
// are recorded and counted; they do not drive alerts.
func (s *Service) HandleTransactions(ctx context.Context, path string, headers map[string]string, body []byte) (*Summary, error) {
	s.recorder.Record(ctx, "transactions", path, headers, body)

	payload, err := models.ParseTransactions(body)
	if err != nil {
		return nil, err
	}

	counts := classifier.CountTransactions(payload.Transactions)
	s.log.Info("transactions recorded",
		logger.F("received", len(payload.Transactions)),
	)

	return &Summary{Received: len(payload.Transactions), Counts: counts}, nil
}

// HandleBalanceChanges processes one balance-changes webhook delivery.
func (s *Service) HandleBalanceChanges(ctx context.Context, path string, headers map[string]string, body []byte) (*Summary, error) {
	s.recorder.Record(ctx, "balances", path, headers, body)

	payload, err := models.ParseBalanceChanges(body)
	if err != nil {
		return nil, err
	}

	res := classifier.ClassifyBalanceChanges(payload.BalanceChanges)
	s.log.Info("balance changes classified",
		logger.F("received", len(payload.BalanceChanges)),
		logger.F("eligible", len(res.Eligible)),
	)

	for _, ch := range res.Eligible {
		meta := s.resolve(ctx, ch.TokenAddress, ch.ChainID)
		s.send(ctx, s.formatter.FormatBalanceChangeMessage(ch, meta))
	}

	return &Summary{Received: len(payload.BalanceChanges), Counts: res.Counts}, nil
}

// resolve looks up token metadata, degrading to nil (unknown token) on
// any failure so the event still alerts.
func (s *Service) resolve(ctx context.Context, tokenAddress string, chainID int64) *models.TokenMetadata {
	meta, err := s.resolver.Resolve(ctx, tokenAddress, chainID, s.fallbackChains)
	if err != nil {
		s.log.Warn("metadata resolution failed, alerting with unknown token",
			logger.F("token", tokenAddress),
			logger.F("chain_id", chainID),
			logger.F("error", err),
		)
		return nil
	}
	return meta
}

// send broadcasts one alert. Delivery trouble is logged, never escalated
// to the webhook caller.
func (s *Service) send(ctx context.Context, message string) {
	result, err := s.broadcaster.Broadcast(ctx, message)
	if err != nil {
		s.log.Error("broadcast failed", logger.F("error", err))
		return
	}
	if result.Failed > 0 {
		s.log.Warn("broadcast partially delivered",
			logger.F("sent", result.Sent),
			logger.F("failed", result.Failed),
		)
	}
}
