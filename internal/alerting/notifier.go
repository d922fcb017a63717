package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fed-monitor/internal/config"
)

// MessageSender pushes a rendered text message to an external channel.
type MessageSender interface {
	SendMessage(ctx context.Context, text string) error
}

// TelegramNotifier delivers alert messages via the Telegram Bot API.
type TelegramNotifier struct {
	cfg      *config.Config
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(cfg *config.Config, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := cfg.Alerting.Telegram.APIBase
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		cfg:      cfg,
		botToken: cfg.Alerting.Telegram.BotToken,
		chatID:   cfg.Alerting.Telegram.ChatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify renders and sends one alert result.
func (n *TelegramNotifier) Notify(ctx context.Context, result Result) error {
	if err := n.SendMessage(ctx, FormatAlertMessage(n.cfg, result)); err != nil {
		return err
	}
	n.logger.Info().
		Str("alert_id", result.Identity).
		Str("severity", result.Severity).
		Msg("alert sent")
	return nil
}

// SendMessage posts a markdown message through the sendMessage API.
func (n *TelegramNotifier) SendMessage(ctx context.Context, text string) error {
	payload := map[string]string{
		"chat_id":    n.chatID,
		"text":       text,
		"parse_mode": "Markdown",
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

	var apiResult struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResult); err == nil {
		if !apiResult.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}
	return nil
}

func severityEmoji(severity string) string {
	switch severity {
	case config.SeverityCritical:
		return "\U0001F6A8"
	case config.SeverityWarning:
		return "⚠️"
	case config.SeverityInfo:
		return "ℹ️"
	}
	return "\U0001F4CA"
}

func formatValue(value float64, unit string) string {
	if math.IsNaN(value) {
		return "N/A"
	}
	switch unit {
	case "percent", "bps":
		return fmt.Sprintf("%.2f", value)
	case "usd_millions":
		return fmt.Sprintf("$%.0fM", value)
	case "usd_billions":
		return fmt.Sprintf("$%.1fB", value)
	}
	return fmt.Sprintf("%.2f", value)
}

func formatChange(change float64, unit string) string {
	sign := ""
	if change > 0 {
		sign = "+"
	}
	switch unit {
	case "percent", "bps":
		return fmt.Sprintf("%s%.2f", sign, change)
	}
	return fmt.Sprintf("%s%.0f", sign, change)
}

// FormatAlertMessage renders one alert result as a markdown message.
func FormatAlertMessage(cfg *config.Config, result Result) string {
	label := cfg.LabelFor(result.Key)
	unit := cfg.UnitFor(result.Key)

	lines := []string{
		fmt.Sprintf("%s *%s*: %s", severityEmoji(result.Severity), strings.ToUpper(result.Severity), label),
		"",
		fmt.Sprintf("*Current:* %s", formatValue(result.Value, unit)),
	}

	if d1, ok := result.Context["d1"]; ok {
		lines = append(lines, fmt.Sprintf("*1D Change:* %s", formatChange(d1, unit)))
	}
	if d5, ok := result.Context["d5"]; ok {
		lines = append(lines, fmt.Sprintf("*5D Change:* %s", formatChange(d5, unit)))
	}

	if result.Note != "" {
		lines = append(lines, "", fmt.Sprintf("_%s_", result.Note))
	}

	lines = append(lines, "", fmt.Sprintf("`%s UTC`", time.Now().UTC().Format("2006-01-02 15:04")))
	return strings.Join(lines, "\n")
}

var _ Notifier = (*TelegramNotifier)(nil)
var _ MessageSender = (*TelegramNotifier)(nil)
