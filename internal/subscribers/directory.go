package subscribers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dericksozo/telegram-whale-tracker/internal/logger"
)

const subscriberKeyPrefix = "subs:chat:"

// Store is the slice of the idempotency store the directory needs.
type Store interface {
	Put(ctx context.Context, key string, value string, ttl time.Duration) error
	ScanPrefix(ctx context.Context, prefix string, fn func(key, value string) error) error
}

// Subscriber is one chat that opted in to whale alerts.
type Subscriber struct {
	ChatID       string    `json:"chat_id"`
	SubscribedAt time.Time `json:"subscribed_at"`
}

// Directory tracks the chat ids that opted in to alerts. Chat ids are
// unique by construction (one key per chat); re-subscribing refreshes the
// timestamp only. There is no unsubscribe flow.
type Directory struct {
	store Store
	log   logger.Logger
}

// NewDirectory creates a subscriber directory.
func NewDirectory(store Store, log logger.Logger) *Directory {
	return &Directory{
		store: store,
		log:   log.With(logger.F("component", "subscribers")),
	}
}

// Add registers a chat id, refreshing the subscription timestamp if the
// chat already opted in.
func (d *Directory) Add(ctx context.Context, chatID string) error {
	if chatID == "" {
		return fmt.Errorf("chat id is required")
	}

	sub := Subscriber{
		ChatID:       chatID,
		SubscribedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal subscriber: %w", err)
	}

	if err := d.store.Put(ctx, subscriberKeyPrefix+chatID, string(data), 0); err != nil {
		return fmt.Errorf("failed to store subscriber: %w", err)
	}

	d.log.Info("subscriber registered", logger.F("chat_id", chatID))
	return nil
}

// ListAll returns every subscribed chat id. The walk reflects the store's
// contents at call time; adds racing the scan may or may not appear.
func (d *Directory) ListAll(ctx context.Context) ([]string, error) {
	var chatIDs []string

	err := d.store.ScanPrefix(ctx, subscriberKeyPrefix, func(key, value string) error {
		var sub Subscriber
		if err := json.Unmarshal([]byte(value), &sub); err != nil {
			d.log.Warn("skipping unreadable subscriber record",
				logger.F("key", key),
				logger.F("error", err),
			)
			return nil
		}
		chatIDs = append(chatIDs, sub.ChatID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}

	return chatIDs, nil
}

// Count returns the number of subscribed chats.
func (d *Directory) Count(ctx context.Context) (int, error) {
	ids, err := d.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
