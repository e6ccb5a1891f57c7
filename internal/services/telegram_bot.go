package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// MessageGateway is the outbound half of the bot: plain text and text with a
// one-time "share contact" keyboard.
type MessageGateway interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendContactRequest(ctx context.Context, chatID int64, text string) error
}

// UpdateSource returns updates with update_id >= cursor.
type UpdateSource interface {
	FetchUpdates(ctx context.Context, cursor int, timeout time.Duration, limit int) ([]tgbotapi.Update, error)
}

type TelegramOptions struct {
	Token    string
	Username string
	// APIEndpoint overrides tgbotapi.APIEndpoint, e.g. for a local Bot API server.
	APIEndpoint string
	HTTPTimeout time.Duration
	PollTimeout time.Duration
}

type TelegramService struct {
	bot      *tgbotapi.BotAPI
	poller   *tgbotapi.BotAPI
	username string
	logger   *zap.Logger
}

// NewTelegramService checks the credential with getMe; a bad token fails here.
func NewTelegramService(opts TelegramOptions, logger *zap.Logger) (*TelegramService, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, fmt.Errorf("telegram: bot token is required")
	}
	username := strings.TrimPrefix(strings.TrimSpace(opts.Username), "@")
	if username == "" {
		return nil, fmt.Errorf("telegram: bot username is required")
	}
	endpoint := opts.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	httpTimeout := opts.HTTPTimeout
	if httpTimeout <= 0 {
		httpTimeout = 10 * time.Second
	}

	bot, err := tgbotapi.NewBotAPIWithClient(opts.Token, endpoint, &http.Client{Timeout: httpTimeout})
	if err != nil {
		return nil, fmt.Errorf("telegram getMe: %w", err)
	}
	// long polls hold the connection for the whole poll window
	poller, err := tgbotapi.NewBotAPIWithClient(opts.Token, endpoint, &http.Client{Timeout: opts.PollTimeout + httpTimeout})
	if err != nil {
		return nil, fmt.Errorf("telegram getMe: %w", err)
	}

	if bot.Self.UserName != "" && !strings.EqualFold(bot.Self.UserName, username) {
		logger.Warn("[tg][init] configured username differs from getMe",
			zap.String("configured", username), zap.String("actual", bot.Self.UserName))
	}
	logger.Info("[tg][init] authorized", zap.String("bot", bot.Self.UserName))

	return &TelegramService{bot: bot, poller: poller, username: username, logger: logger}, nil
}

// DeepLink builds the t.me link that opens the bot with /start link_<token>.
func (t *TelegramService) DeepLink(linkToken string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s%s", t.username, linkCommandPrefix, linkToken)
}

func (t *TelegramService) SendText(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	return t.send(ctx, "send", msg)
}

func (t *TelegramService) SendContactRequest(ctx context.Context, chatID int64, text string) error {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonContact("Share phone number")),
	)
	kb.OneTimeKeyboard = true
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = kb
	return t.send(ctx, "send+kb", msg)
}

func (t *TelegramService) send(ctx context.Context, op string, msg tgbotapi.MessageConfig) error {
	if msg.ChatID == 0 {
		return fmt.Errorf("telegram %s: empty chat id", op)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Warn("[tg]["+op+"] failed", zap.Int64("chat_id", msg.ChatID), zap.Error(err))
		return fmt.Errorf("telegram %s: %w", op, err)
	}
	t.logger.Debug("[tg]["+op+"] ok", zap.Int64("chat_id", msg.ChatID))
	return nil
}

func (t *TelegramService) FetchUpdates(ctx context.Context, cursor int, timeout time.Duration, limit int) ([]tgbotapi.Update, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := tgbotapi.NewUpdate(cursor)
	cfg.Timeout = int(timeout.Round(time.Second) / time.Second)
	if cfg.Timeout > 50 {
		cfg.Timeout = 50
	}
	if limit > 0 && limit <= 100 {
		cfg.Limit = limit
	}
	cfg.AllowedUpdates = []string{"message"}
	updates, err := t.poller.GetUpdates(cfg)
	if err != nil {
		return nil, fmt.Errorf("telegram getUpdates: %w", err)
	}
	return updates, nil
}

// SetWebhook registers url with Telegram. secret is echoed back by Telegram in
// the X-Telegram-Bot-Api-Secret-Token header.
func (t *TelegramService) SetWebhook(url, secret string) error {
	params := tgbotapi.Params{
		"url":             url,
		"allowed_updates": `["message"]`,
	}
	if secret != "" {
		params["secret_token"] = secret
	}
	if _, err := t.bot.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("telegram setWebhook: %w", err)
	}
	t.logger.Info("[tg][setWebhook] registered", zap.String("url", url))
	return nil
}

// DeleteWebhook is required before getUpdates works again.
func (t *TelegramService) DeleteWebhook() error {
	if _, err := t.bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("telegram deleteWebhook: %w", err)
	}
	return nil
}
