package broadcast

import (
	"context"
	"strings"

	"github.com/dericksozo/telegram-whale-tracker/internal/logger"
	"github.com/dericksozo/telegram-whale-tracker/internal/redis"
)

// Sender delivers one message to one chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string, markdown bool) error
}

// Lister enumerates the subscribed chat ids.
type Lister interface {
	ListAll(ctx context.Context) ([]string, error)
}

// Limiter paces outbound sends. Satisfied by redis.RateLimiter.
type Limiter interface {
	WaitForSlot(ctx context.Context, cfg redis.RateLimitConfig) error
}

// Result accounts one broadcast run.
type Result struct {
	Subscribers int
	Sent        int
	Failed      int
}

// Broadcaster fans one formatted message out to every subscriber,
// sequentially, with per-recipient failure isolation.
type Broadcaster struct {
	sender   Sender
	lister   Lister
	limiter  Limiter
	limitCfg redis.RateLimitConfig
	log      logger.Logger
}

// NewBroadcaster creates a broadcaster. limiter may be nil to disable
// send pacing.
func NewBroadcaster(sender Sender, lister Lister, limiter Limiter, limitCfg redis.RateLimitConfig, log logger.Logger) *Broadcaster {
	return &Broadcaster{
		sender:   sender,
		lister:   lister,
		limiter:  limiter,
		limitCfg: limitCfg,
		log:      log.With(logger.F("component", "broadcast")),
	}
}

// Broadcast sends message to every subscriber in turn. A failed recipient
// is logged and counted, never escalated; the remaining recipients still
// get the message. The error return covers only the subscriber listing.
func (b *Broadcaster) Broadcast(ctx context.Context, message string) (Result, error) {
	chatIDs, err := b.lister.ListAll(ctx)
	if err != nil {
		return Result{}, err
	}

	result := Result{Subscribers: len(chatIDs)}
	for _, chatID := range chatIDs {
		if err := b.deliver(ctx, chatID, message); err != nil {
			result.Failed++
			b.log.Error("delivery failed",
				logger.F("chat_id", chatID),
				logger.F("error", err),
			)
			continue
		}
		result.Sent++
	}

	b.log.Info("broadcast complete",
		logger.F("subscribers", result.Subscribers),
		logger.F("sent", result.Sent),
		logger.F("failed", result.Failed),
	)
	return result, nil
}

// deliver sends with Markdown first; a formatting rejection gets one
// plain-text retry for the same recipient.
func (b *Broadcaster) deliver(ctx context.Context, chatID, message string) error {
	if err := b.waitForSlot(ctx); err != nil {
		return err
	}

	err := b.sender.SendMessage(ctx, chatID, message, true)
	if err == nil {
		return nil
	}
	if !isFormattingError(err) {
		return err
	}

	b.log.Warn("formatting rejected, retrying as plain text",
		logger.F("chat_id", chatID),
		logger.F("error", err),
	)

	if err := b.waitForSlot(ctx); err != nil {
		return err
	}
	return b.sender.SendMessage(ctx, chatID, message, false)
}

func (b *Broadcaster) waitForSlot(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	return b.limiter.WaitForSlot(ctx, b.limitCfg)
}

// formattingErrorMarkers are substrings Telegram uses when it rejects a
// message over its parse mode. Best-effort heuristic: there is no stable
// error code for this, so the description text is all there is to go on.
var formattingErrorMarkers = []string{
	"can't parse",
	"parse entities",
	"unsupported start tag",
	"markdown",
	"entity",
}

// isFormattingError reports whether a send failure looks like a
// formatting rejection worth retrying without markup.
func isFormattingError(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	for _, marker := range formattingErrorMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
