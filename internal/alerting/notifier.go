package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ratewatcher/internal/market"
)

// Notification carries one alert trigger event to the sink.
type Notification struct {
	UserID      string
	Code        string
	Alert       market.Alert
	Rate        market.RateTick
	TriggeredAt time.Time
}

// Notifier delivers trigger notifications. Delivery is fire-and-forget from
// the evaluator's perspective.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes trigger messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notification sink.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls the sendMessage API with a rendered trigger message.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().
		Str("code", note.Code).
		Str("user_id", note.UserID).
		Str("alert_id", note.Alert.ID).
		Msg("alert notification sent (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[Rate Alert]\n")
	builder.WriteString(fmt.Sprintf("Currency: %s\n", note.Code))
	builder.WriteString(fmt.Sprintf("User: %s\n", note.UserID))
	builder.WriteString(fmt.Sprintf("Condition: %s %s\n", note.Alert.Direction, note.Alert.TargetRate.StringFixed(4)))
	builder.WriteString(fmt.Sprintf("Rate: %s\n", note.Rate.Rate.StringFixed(4)))
	builder.WriteString(fmt.Sprintf("At: %s UTC\n", note.TriggeredAt.UTC().Format(time.RFC3339)))
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
