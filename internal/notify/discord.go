// Package notify delivers post notifications to a Discord webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/JoyBoy1995/cfc-transfer-bot/internal/feed"
)

const (
	webhookTimeout = 10 * time.Second

	colorPrimaryTier   = 0x00FF00
	colorSecondaryTier = 0xFFFF00

	thumbnailURL = "https://logos-world.net/wp-content/uploads/2020/06/Chelsea-Logo.png"
)

// DiscordNotifier posts one embed per accepted submission. Each Notify call
// is a single delivery attempt; retry policy belongs to the caller.
type DiscordNotifier struct {
	webhookURL   string
	subreddit    string
	primaryFlair string
	client       *http.Client
}

// New validates the webhook URL and builds a notifier. primaryFlair selects
// the green embed color; every other accepted flair renders yellow.
func New(webhookURL, subreddit, primaryFlair string) (*DiscordNotifier, error) {
	u, err := url.Parse(webhookURL)
	if err != nil || u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("notify: invalid webhook url %q", webhookURL)
	}
	if subreddit == "" {
		return nil, errors.New("notify: subreddit is required")
	}
	return &DiscordNotifier{
		webhookURL:   webhookURL,
		subreddit:    subreddit,
		primaryFlair: primaryFlair,
		client:       &http.Client{Timeout: webhookTimeout},
	}, nil
}

// Notify delivers a single embed for the post. Any non-2xx response is an
// error; Discord answers 204 on success.
func (n *DiscordNotifier) Notify(ctx context.Context, p feed.Post) error {
	body, err := json.Marshal(n.buildPayload(p))
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook: status %d", resp.StatusCode)
	}
	return nil
}

func (n *DiscordNotifier) buildPayload(p feed.Post) webhookPayload {
	color := colorSecondaryTier
	if p.Flair == n.primaryFlair {
		color = colorPrimaryTier
	}

	author := p.Author
	if author == "" {
		author = "[deleted]"
	}

	return webhookPayload{
		Embeds: []embed{{
			Title:       fmt.Sprintf("%s Transfer News", p.Flair),
			Description: p.Title,
			Color:       color,
			Fields: []embedField{
				{Name: "Source", Value: fmt.Sprintf("[View Article](%s)", p.URL), Inline: true},
				{Name: "Reddit Post", Value: fmt.Sprintf("[View Discussion](%s)", p.Permalink), Inline: true},
				{Name: "Posted by", Value: "u/" + author, Inline: true},
				{Name: "Tier", Value: p.Flair, Inline: true},
			},
			Timestamp: p.CreatedAt.UTC().Format(time.RFC3339),
			Footer:    embedFooter{Text: fmt.Sprintf("r/%s transfer notifications", n.subreddit)},
			Thumbnail: embedThumbnail{URL: thumbnailURL},
		}},
	}
}

type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

type embed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Fields      []embedField   `json:"fields"`
	Timestamp   string         `json:"timestamp"`
	Footer      embedFooter    `json:"footer"`
	Thumbnail   embedThumbnail `json:"thumbnail"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type embedThumbnail struct {
	URL string `json:"url"`
}
