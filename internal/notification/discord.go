package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

type DiscordMessage struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

type DiscordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

const (
	colorRed    = 16711680
	colorGreen  = 65280
	colorOrange = 16753920
)

// Discord posts run reports to webhooks. An empty URL disables that kind of
// notification.
type Discord struct {
	SuccessURL string
	WarnURL    string
	ErrorURL   string
	Client     *http.Client
}

func (d *Discord) Enabled() bool {
	return d != nil && (d.SuccessURL != "" || d.WarnURL != "" || d.ErrorURL != "")
}

func (d *Discord) SendError(ctx context.Context, errorMessage string) error {
	if d == nil {
		return nil
	}
	return d.send(ctx, d.ErrorURL, DiscordEmbed{
		Title:       "🚨 Extraction failed",
		Description: fmt.Sprintf("An error occurred: %s", errorMessage),
		Color:       colorRed,
	})
}

func (d *Discord) SendWarn(ctx context.Context, warnMessage string) error {
	if d == nil {
		return nil
	}
	return d.send(ctx, d.WarnURL, DiscordEmbed{
		Title:       "⚠️ Extraction finished with warnings",
		Description: warnMessage,
		Color:       colorOrange,
	})
}

func (d *Discord) SendSuccess(ctx context.Context, successMessage string) error {
	if d == nil {
		return nil
	}
	return d.send(ctx, d.SuccessURL, DiscordEmbed{
		Title:       "✅ Extraction finished",
		Description: successMessage,
		Color:       colorGreen,
	})
}

func (d *Discord) send(ctx context.Context, url string, embed DiscordEmbed) error {
	if url == "" {
		return nil
	}

	payload, err := json.Marshal(DiscordMessage{Embeds: []DiscordEmbed{embed}})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to send Discord notification, status code: %d", resp.StatusCode)
	}

	return nil
}
