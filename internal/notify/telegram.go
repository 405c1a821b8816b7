package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ChatResolver maps an employee ID to their personal chat ID. Backed by the
// employee directory; second return is false when no chat is bound.
type ChatResolver func(ctx context.Context, employeeID string) (string, bool)

// TelegramClient talks to the Telegram Bot API. Requests carry a short
// timeout: a slow notification must never hold up a break operation.
type TelegramClient struct {
	baseURL     string
	botToken    string
	adminChatID string
	resolveChat ChatResolver
	httpClient  *http.Client
}

func NewTelegramClient(baseURL, botToken, adminChatID string, resolver ChatResolver, timeout time.Duration) *TelegramClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &TelegramClient{
		baseURL:     baseURL,
		botToken:    botToken,
		adminChatID: adminChatID,
		resolveChat: resolver,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// SendPersonal delivers a direct message to the employee's bound chat.
func (c *TelegramClient) SendPersonal(ctx context.Context, employeeID, text string) error {
	chatID, ok := c.resolveChat(ctx, employeeID)
	if !ok {
		return fmt.Errorf("no chat bound for employee %s", employeeID)
	}
	return c.sendMessage(ctx, chatID, text)
}

// SendGroup posts to the admin group chat.
func (c *TelegramClient) SendGroup(ctx context.Context, text string) error {
	if c.adminChatID == "" {
		return fmt.Errorf("admin group chat not configured")
	}
	return c.sendMessage(ctx, c.adminChatID, text)
}

func (c *TelegramClient) sendMessage(ctx context.Context, chatID, text string) error {
	data, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.botToken)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("api error %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
