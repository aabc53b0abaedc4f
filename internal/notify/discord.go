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

// Embed colors per event type, matching Discord's decimal color field.
var eventColors = map[string]int{
	EventTrade:   0x2ecc71,
	EventExit:    0x3498db,
	EventError:   0xe74c3c,
	EventRisk:    0xf39c12,
	EventSummary: 0x9b59b6,
}

const defaultColor = 0x3498db

// DiscordSender posts notifications to a Discord webhook as embeds.
type DiscordSender struct {
	webhookURL string
	footer     string
	client     *http.Client
}

// NewDiscordSender creates a sender for the given webhook URL. The footer
// text is appended to every embed, typically the run mode.
func NewDiscordSender(webhookURL, footer string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		footer:     footer,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts one embed. Discord returns 204 No Content on success.
func (d *DiscordSender) Send(ctx context.Context, event, title, message string) error {
	color, ok := eventColors[event]
	if !ok {
		color = defaultColor
	}

	embed := map[string]any{
		"title":       title,
		"description": message,
		"color":       color,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}
	if d.footer != "" {
		embed["footer"] = map[string]string{"text": d.footer}
	}
	payload := map[string]any{"embeds": []any{embed}}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
