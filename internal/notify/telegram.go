package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DefaultTelegramURL is the Telegram Bot API base URL.
const DefaultTelegramURL = "https://api.telegram.org"

// Telegram sends texts through the Bot API sendMessage method.
type Telegram struct {
	ChatID string

	token  string
	client *resty.Client
	log    *zap.Logger
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// NewTelegram creates a Telegram recipient. An empty baseURL uses
// DefaultTelegramURL.
func NewTelegram(baseURL, token, chatID string, log *zap.Logger) *Telegram {
	if baseURL == "" {
		baseURL = DefaultTelegramURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetHeader("Accept", "application/json")

	return &Telegram{ChatID: chatID, token: token, client: client, log: log}
}

// Notify posts text to the chat.
func (t *Telegram) Notify(ctx context.Context, text string) error {
	t.log.Info("sending telegram message", zap.String("chat_id", t.ChatID), zap.String("text", text))

	var response telegramResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"chat_id": t.ChatID,
			"text":    text,
		}).
		SetResult(&response).
		SetError(&response).
		Post("/bot" + t.token + "/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram to %s: %w", t.ChatID, err)
	}
	if resp.IsError() || !response.OK {
		return fmt.Errorf("telegram to %s: status %d: %s", t.ChatID, resp.StatusCode(), response.Description)
	}
	return nil
}

func (t *Telegram) String() string {
	return "telegram:" + t.ChatID
}
