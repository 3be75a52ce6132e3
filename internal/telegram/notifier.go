package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dericksozo/telegram-whale-tracker/internal/logger"
)

var (
	ErrSendFailed = errors.New("failed to send telegram message")
)

const (
	telegramAPIURL = "https://api.telegram.org/bot%s/%s"
)

// Config holds Telegram notifier configuration
type Config struct {
	BotToken   string
	Timeout    time.Duration
	RetryCount int
	// APIBaseURL overrides the Telegram endpoint (tests only).
	APIBaseURL string
}

// Message represents a Telegram sendMessage request
type Message struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

// Response represents the Telegram API response envelope
type Response struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

// APIError is a rejection from the Telegram API. The broadcaster inspects
// the description to decide whether a plain-text retry is worth it.
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram API error %d: %s", e.Code, e.Description)
}

// Notifier sends messages to arbitrary chats through the Bot API.
type Notifier struct {
	config     Config
	httpClient *http.Client
	log        logger.Logger
	enabled    bool
}

// NewNotifier creates a new Telegram notifier
func NewNotifier(cfg Config, log logger.Logger) *Notifier {
	enabled := cfg.BotToken != ""
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	n := &Notifier{
		config:     cfg,
		log:        log.With(logger.F("component", "telegram")),
		enabled:    enabled,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}

	if enabled {
		n.log.Info("telegram notifier enabled")
	} else {
		n.log.Warn("telegram notifier disabled: missing bot token")
	}

	return n
}

// IsEnabled returns true if Telegram notifications are enabled
func (n *Notifier) IsEnabled() bool {
	return n.enabled
}

// SendMessage delivers text to one chat. markdown selects Markdown parse
// mode; plain text otherwise. API rejections come back as *APIError with
// no retry, so callers can degrade formatting; transport errors are
// retried with backoff.
func (n *Notifier) SendMessage(ctx context.Context, chatID, text string, markdown bool) error {
	if !n.enabled {
		n.log.Debug("telegram send skipped: notifier disabled")
		return nil
	}

	msg := Message{
		ChatID:                chatID,
		Text:                  text,
		DisableWebPagePreview: true,
	}
	if markdown {
		msg.ParseMode = "Markdown"
	}

	var lastErr error
	for i := 0; i <= n.config.RetryCount; i++ {
		if i > 0 {
			backoff := time.Duration(i*i) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := n.send(ctx, msg)
		if err == nil {
			return nil
		}

		// API said no: retrying the same payload will not help.
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return err
		}

		lastErr = err
		n.log.Warn("telegram send failed, retrying",
			logger.F("attempt", i+1),
			logger.F("max_retries", n.config.RetryCount),
			logger.F("error", err),
		)
	}

	return fmt.Errorf("%w: %v", ErrSendFailed, lastErr)
}

// apiURL builds the endpoint for a Bot API method.
func (n *Notifier) apiURL(method string) string {
	if n.config.APIBaseURL != "" {
		return fmt.Sprintf("%s/bot%s/%s", n.config.APIBaseURL, n.config.BotToken, method)
	}
	return fmt.Sprintf(telegramAPIURL, n.config.BotToken, method)
}

// send performs the actual HTTP request to Telegram
func (n *Notifier) send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.apiURL("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var tgResp Response
	if err := json.Unmarshal(respBody, &tgResp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if !tgResp.OK {
		n.log.Error("telegram API error",
			logger.F("error_code", tgResp.ErrorCode),
			logger.F("description", tgResp.Description),
			logger.F("chat_id", msg.ChatID),
		)
		return &APIError{Code: tgResp.ErrorCode, Description: tgResp.Description}
	}

	n.log.Debug("message sent", logger.F("chat_id", msg.ChatID))
	return nil
}

// call performs a generic Bot API request (used by the command poller).
func (n *Notifier) call(ctx context.Context, method string, payload interface{}) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.apiURL(method), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var tgResp Response
	if err := json.Unmarshal(respBody, &tgResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if !tgResp.OK {
		return nil, &APIError{Code: tgResp.ErrorCode, Description: tgResp.Description}
	}

	return &tgResp, nil
}
