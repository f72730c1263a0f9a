package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"netgraph-guard/internal/model"

	"github.com/sirupsen/logrus"
)

// TelegramNotifier pushes alerts to a Telegram chat through the bot API.
type TelegramNotifier struct {
	botToken  string
	chatID    string
	parseMode string
	client    *http.Client
	logger    *logrus.Logger
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// NewTelegramNotifier creates a Telegram alert notifier.
func NewTelegramNotifier(botToken, chatID, parseMode string, logger *logrus.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		botToken:  botToken,
		chatID:    chatID,
		parseMode: parseMode,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// SendAlert implements Notifier. Transient API failures are retried with a
// short backoff before giving up on the alert.
func (tn *TelegramNotifier) SendAlert(alert model.Alert) error {
	text := fmt.Sprintf("[%s] %s\n%s\nTarget: %s\nScore: %.2f\nTime: %s",
		alert.Severity, alert.Type, alert.Message, alert.TargetID, alert.Score,
		alert.Timestamp.Format("2006-01-02 15:04:05"))

	const maxRetries = 3
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if lastErr = tn.sendMessage(text); lastErr == nil {
			return nil
		}
		tn.logger.Warnf("Telegram delivery failed (attempt %d/%d): %v", i+1, maxRetries, lastErr)
		if i < maxRetries-1 {
			time.Sleep(time.Duration(i+1) * time.Second)
		}
	}
	return fmt.Errorf("telegram delivery failed after %d attempts: %w", maxRetries, lastErr)
}

func (tn *TelegramNotifier) sendMessage(text string) error {
	payload, err := json.Marshal(telegramMessage{
		ChatID:    tn.chatID,
		Text:      text,
		ParseMode: tn.parseMode,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", tn.botToken)
	resp, err := tn.client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	defer resp.Body.Close()

	var result telegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("telegram API error: %s", result.Description)
	}
	return nil
}
