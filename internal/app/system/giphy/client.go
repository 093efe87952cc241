// internal/app/system/giphy/client.go

// Package giphy is the media-search collaborator: an opaque external
// GIF lookup. This application only ever stores the returned URLs as
// strings on messages and never interprets them.
package giphy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the Giphy search endpoint.
const DefaultBaseURL = "https://api.giphy.com/v1/gifs/search"

// Gif is one search result: the preview shown in a picker and the URL
// stored on the message when chosen.
type Gif struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	PreviewURL string `json:"preview_url"`
}

// Client searches Giphy. A client with an empty API key is disabled and
// returns empty results, matching the behavior of running without a
// configured key.
type Client struct {
	apiKey  string
	baseURL string
	limit   int
	http    *http.Client
	log     *zap.Logger
}

// New creates a Client. limit bounds results per search; zero selects
// the default of 20.
func New(apiKey, baseURL string, limit int, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if limit <= 0 {
		limit = 20
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		limit:   limit,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     logger,
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// searchResponse mirrors the slice of the Giphy payload we read.
type searchResponse struct {
	Data []struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Images struct {
			FixedHeight struct {
				URL string `json:"url"`
			} `json:"fixed_height"`
			FixedHeightSmall struct {
				URL string `json:"url"`
			} `json:"fixed_height_small"`
		} `json:"images"`
	} `json:"data"`
}

// Search returns GIFs matching query. A blank query searches
// "trending". Without an API key it returns an empty slice and no
// error.
func (c *Client) Search(ctx context.Context, query string) ([]Gif, error) {
	if !c.Enabled() {
		return nil, nil
	}

	q := strings.TrimSpace(query)
	if q == "" {
		q = "trending"
	}

	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("q", q)
	params.Set("limit", strconv.Itoa(c.limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("giphy search: unexpected status %d", resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	gifs := make([]Gif, 0, len(body.Data))
	for _, d := range body.Data {
		gifs = append(gifs, Gif{
			ID:         d.ID,
			Title:      d.Title,
			URL:        d.Images.FixedHeight.URL,
			PreviewURL: d.Images.FixedHeightSmall.URL,
		})
	}

	c.log.Debug("giphy search",
		zap.String("query", q),
		zap.Int("results", len(gifs)))
	return gifs, nil
}
