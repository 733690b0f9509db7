package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"solana-trade-engine/internal/domain"
)

// Telegram's global limit is about 30 messages per second per bot.
const (
	DefaultRatePerSec = 25
	DefaultBurst      = 5
)

// TelegramConfig holds sender settings.
type TelegramConfig struct {
	Token      string
	Endpoint   string // tgbotapi endpoint format, defaults to tgbotapi.APIEndpoint
	RatePerSec float64
	Burst      int
	HTTPClient *http.Client
}

// TelegramSender delivers notifications through the Bot API behind a client-side token bucket.
type TelegramSender struct {
	api     *tgbotapi.BotAPI
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewTelegramSender authenticates the bot and creates a sender.
func NewTelegramSender(cfg TelegramConfig, logger *slog.Logger) (*TelegramSender, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = tgbotapi.APIEndpoint
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = DefaultRatePerSec
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.Endpoint, cfg.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("telegram: authenticate bot: %w", err)
	}
	return &TelegramSender{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		logger:  logger.With(slog.String("component", "notify")),
	}, nil
}

// Send sends n as a new message, or edits EditTargetID in place. Pinning is best effort.
func (s *TelegramSender) Send(ctx context.Context, n domain.Notification) (int, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	var c tgbotapi.Chattable
	if n.EditTargetID != nil {
		edit := tgbotapi.NewEditMessageText(n.ChatID, *n.EditTargetID, n.Text)
		edit.ParseMode = n.ParseMode
		edit.DisableWebPagePreview = true
		if kb := keyboard(n.Keyboard); kb != nil {
			edit.ReplyMarkup = kb
		}
		c = edit
	} else {
		msg := tgbotapi.NewMessage(n.ChatID, n.Text)
		msg.ParseMode = n.ParseMode
		msg.DisableWebPagePreview = true
		if kb := keyboard(n.Keyboard); kb != nil {
			msg.ReplyMarkup = *kb
		}
		c = msg
	}

	sent, err := s.api.Send(c)
	if err != nil {
		return 0, classify(err)
	}

	id := sent.MessageID
	if n.EditTargetID != nil && id == 0 {
		id = *n.EditTargetID
	}

	if n.Pin && n.EditTargetID == nil {
		pin := tgbotapi.PinChatMessageConfig{ChatID: n.ChatID, MessageID: id, DisableNotification: true}
		if _, err := s.api.Request(pin); err != nil {
			s.logger.Warn("pin message failed",
				slog.Int64("chat_id", n.ChatID),
				slog.Int("message_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return id, nil
}

// classify maps a Bot API 429 to RateLimitError.
func classify(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return &RateLimitError{RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second, Err: err}
	}
	return fmt.Errorf("telegram: %w", err)
}

func keyboard(rows [][]domain.Button) *tgbotapi.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		out = append(out, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(out...)
	return &kb
}
