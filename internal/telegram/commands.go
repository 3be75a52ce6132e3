package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dericksozo/telegram-whale-tracker/internal/logger"
	"github.com/dericksozo/telegram-whale-tracker/internal/subscribers"
)

const (
	pollTimeoutSeconds = 30

	welcomeMessage = `🐋 *Whale Tracker*

You are subscribed to whale alerts. Large token transfers, mints, burns and swaps will show up here as they happen.

Commands:
/status - subscription status`
)

// Update is one entry from getUpdates.
type Update struct {
	UpdateID int64            `json:"update_id"`
	Message  *IncomingMessage `json:"message"`
}

// IncomingMessage is the slice of a Telegram message the poller needs.
type IncomingMessage struct {
	Text string `json:"text"`
	Chat struct {
		ID int64 `json:"id"`
	} `json:"chat"`
}

// CommandPoller long-polls the Bot API for chat commands and maps them to
// directory operations. It runs until the context is cancelled.
type CommandPoller struct {
	notifier  *Notifier
	directory *subscribers.Directory
	log       logger.Logger
	offset    int64
}

// NewCommandPoller creates a command poller.
func NewCommandPoller(notifier *Notifier, directory *subscribers.Directory, log logger.Logger) *CommandPoller {
	return &CommandPoller{
		notifier:  notifier,
		directory: directory,
		log:       log.With(logger.F("component", "commands")),
	}
}

// Run polls for updates until ctx is cancelled. Poll failures back off
// briefly and the loop continues.
func (p *CommandPoller) Run(ctx context.Context) {
	if !p.notifier.IsEnabled() {
		p.log.Warn("command poller disabled: notifier has no bot token")
		return
	}

	p.log.Info("command poller started")
	for {
		select {
		case <-ctx.Done():
			p.log.Info("command poller stopped")
			return
		default:
		}

		updates, err := p.fetchUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				p.log.Info("command poller stopped")
				return
			}
			p.log.Warn("failed to fetch updates", logger.F("error", err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= p.offset {
				p.offset = update.UpdateID + 1
			}
			p.handleUpdate(ctx, update)
		}
	}
}

// fetchUpdates long-polls getUpdates starting at the current offset.
func (p *CommandPoller) fetchUpdates(ctx context.Context) ([]Update, error) {
	payload := map[string]interface{}{
		"offset":          p.offset,
		"timeout":         pollTimeoutSeconds,
		"allowed_updates": []string{"message"},
	}

	resp, err := p.notifier.call(ctx, "getUpdates", payload)
	if err != nil {
		return nil, err
	}

	var updates []Update
	if err := json.Unmarshal(resp.Result, &updates); err != nil {
		return nil, fmt.Errorf("failed to parse updates: %w", err)
	}
	return updates, nil
}

func (p *CommandPoller) handleUpdate(ctx context.Context, update Update) {
	if update.Message == nil {
		return
	}

	chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
	command := strings.ToLower(strings.TrimSpace(update.Message.Text))
	if i := strings.Index(command, "@"); i > 0 {
		command = command[:i]
	}

	switch command {
	case "/start":
		if err := p.directory.Add(ctx, chatID); err != nil {
			p.log.Error("failed to register subscriber",
				logger.F("chat_id", chatID),
				logger.F("error", err),
			)
			return
		}
		if err := p.notifier.SendMessage(ctx, chatID, welcomeMessage, true); err != nil {
			p.log.Warn("failed to send welcome message",
				logger.F("chat_id", chatID),
				logger.F("error", err),
			)
		}

	case "/status":
		count, err := p.directory.Count(ctx)
		if err != nil {
			p.log.Error("failed to count subscribers", logger.F("error", err))
			return
		}
		status := fmt.Sprintf("✅ Subscribed. %d chats receive whale alerts.", count)
		if err := p.notifier.SendMessage(ctx, chatID, status, false); err != nil {
			p.log.Warn("failed to send status message",
				logger.F("chat_id", chatID),
				logger.F("error", err),
			)
		}

	default:
		p.log.Debug("ignoring message",
			logger.F("chat_id", chatID),
			logger.F("text", update.Message.Text),
		)
	}
}
