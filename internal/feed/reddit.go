package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

const (
	redditBaseURL = "https://www.reddit.com"
	redditAPIURL  = "https://oauth.reddit.com"

	redditTimeout = 30 * time.Second
	pollLimit     = 100
	tokenSkew     = 1 * time.Minute

	// emptyPollLimit bounds how many consecutive empty cursor reads are
	// trusted. Reddit answers an empty listing when the before anchor has
	// been deleted, which looks identical to a quiet subreddit; after this
	// many empty reads the cursor is dropped so the next poll re-reads the
	// full page. The caller's seen set absorbs the duplicates.
	emptyPollLimit = 3
)

// RedditSource reads a subreddit's new-submissions listing through reddit's
// OAuth API using application-only (client credentials) auth.
type RedditSource struct {
	clientID     string
	clientSecret string
	userAgent    string
	subreddit    string

	client  *http.Client
	authURL string
	apiURL  string

	token       string
	tokenExpiry time.Time

	// Fullname of the newest submission returned by the last successful
	// fetch. Advances only on success, so a failed poll repeats the same
	// read when retried.
	cursor     string
	emptyPolls int
}

// NewReddit creates a poller for one subreddit. Credentials and a descriptive
// user agent are required; reddit rejects anonymous or default-agent clients.
func NewReddit(clientID, clientSecret, userAgent, subreddit string) (*RedditSource, error) {
	if strings.TrimSpace(clientID) == "" || strings.TrimSpace(clientSecret) == "" {
		return nil, errors.New("reddit: client id and secret are required")
	}
	if strings.TrimSpace(subreddit) == "" {
		return nil, errors.New("reddit: subreddit is required")
	}
	if strings.TrimSpace(userAgent) == "" {
		return nil, errors.New("reddit: user agent is required")
	}
	return &RedditSource{
		clientID:     clientID,
		clientSecret: clientSecret,
		userAgent:    userAgent,
		subreddit:    subreddit,
		client:       &http.Client{Timeout: redditTimeout},
		authURL:      redditBaseURL,
		apiURL:       redditAPIURL,
	}, nil
}

// Recent returns the most recent submissions up to limit, oldest first. Used
// once at startup to cover the gap since the last run.
func (rs *RedditSource) Recent(ctx context.Context, limit int) ([]Post, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("reddit: recent limit %d must be positive", limit)
	}
	return rs.fetchListing(ctx, limit, "")
}

// Poll returns submissions newer than the cursor, oldest first. Before the
// first successful fetch establishes a cursor it behaves like a full page
// read.
func (rs *RedditSource) Poll(ctx context.Context) ([]Post, error) {
	return rs.fetchListing(ctx, pollLimit, rs.cursor)
}

func (rs *RedditSource) fetchListing(ctx context.Context, limit int, before string) ([]Post, error) {
	if err := rs.ensureToken(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("raw_json", "1")
	if before != "" {
		q.Set("before", before)
	}

	reqURL := fmt.Sprintf("%s/r/%s/new?%s", rs.apiURL, rs.subreddit, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", rs.userAgent)
	req.Header.Set("Authorization", "bearer "+rs.token)

	resp, err := rs.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch r/%s: %w", rs.subreddit, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("r/%s: status %d", rs.subreddit, resp.StatusCode)
	}

	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode r/%s: %w", rs.subreddit, err)
	}

	if len(listing.Data.Children) > 0 {
		// Children arrive newest first.
		rs.cursor = listing.Data.Children[0].Data.Name
		rs.emptyPolls = 0
	} else if before != "" {
		rs.emptyPolls++
		if rs.emptyPolls >= emptyPollLimit {
			rs.cursor = ""
			rs.emptyPolls = 0
		}
	}

	return postsFromListing(listing), nil
}

// ensureToken fetches an app-only access token when none is cached or the
// cached one is about to expire.
func (rs *RedditSource) ensureToken(ctx context.Context) error {
	if rs.token != "" && time.Now().Before(rs.tokenExpiry.Add(-tokenSkew)) {
		return nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		rs.authURL+"/api/v1/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create token request: %w", err)
	}
	req.SetBasicAuth(rs.clientID, rs.clientSecret)
	req.Header.Set("User-Agent", rs.userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := rs.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token: status %d", resp.StatusCode)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return fmt.Errorf("decode token: %w", err)
	}
	if tok.AccessToken == "" {
		return errors.New("token: empty access_token in response")
	}

	rs.token = tok.AccessToken
	rs.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return nil
}

func postsFromListing(listing redditListing) []Post {
	posts := lo.Map(listing.Data.Children, func(child redditChild, _ int) Post {
		p := child.Data
		return Post{
			ID:        p.ID,
			Fullname:  p.Name,
			Title:     p.Title,
			Flair:     p.LinkFlairText,
			Author:    p.Author,
			URL:       p.URL,
			Permalink: redditBaseURL + p.Permalink,
			CreatedAt: time.Unix(int64(p.CreatedUTC), 0).UTC(),
		}
	})

	// Oldest first, so notifications follow submission order.
	return lo.Reverse(posts)
}

type redditListing struct {
	Data struct {
		Children []redditChild `json:"children"`
	} `json:"data"`
}

type redditChild struct {
	Data redditPost `json:"data"`
}

type redditPost struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Title         string  `json:"title"`
	LinkFlairText string  `json:"link_flair_text"`
	Author        string  `json:"author"`
	URL           string  `json:"url"`
	Permalink     string  `json:"permalink"`
	CreatedUTC    float64 `json:"created_utc"`
}
