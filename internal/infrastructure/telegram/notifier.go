package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const apiBaseURL = "https://api.telegram.org"

// Notifier posts classification digests to a Telegram chat through the bot
// API.
type Notifier struct {
	baseURL    string
	botToken   string
	chatID     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewNotifier(botToken, chatID string, client *http.Client, logger *slog.Logger) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Notifier{
		baseURL:    apiBaseURL,
		botToken:   botToken,
		chatID:     chatID,
		httpClient: client,
		logger:     logger,
	}
}

// PublishDigest sends one Markdown-formatted message.
func (n *Notifier) PublishDigest(ctx context.Context, digest string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id":    n.chatID,
		"text":       digest,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram returned %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	n.logger.Debug("digest published")
	return nil
}
