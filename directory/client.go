package directory

import (
	"context"
	"io"
	"net/http"
	"time"

	"ringracers-battle-alert/metrics"

	"github.com/rs/zerolog/log"
)

const (
	DefaultURL     = "https://ms.kartkrew.org/list.json"
	DefaultTimeout = 15 * time.Second

	maxBodyBytes = 8 << 20
)

// Client fetches the master server directory.
type Client struct {
	url  string
	http *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{url: url, http: &http.Client{Timeout: timeout}}
}

// Fetch performs one GET of the directory. Any transport, status or parse
// failure is logged and reported as absent (ok == false); callers retry on
// their own schedule.
func (c *Client) Fetch(ctx context.Context) ([]Entry, bool) {
	start := time.Now()
	entries, ok := c.fetch(ctx)
	result := "ok"
	if !ok {
		result = "absent"
	}
	metrics.DirectoryFetchesTotal.WithLabelValues(result).Inc()
	if ok {
		log.Debug().Str("url", c.url).Int("servers", len(entries)).Dur("duration", time.Since(start)).Msg("directory: fetched")
	}
	return entries, ok
}

func (c *Client) fetch(ctx context.Context) ([]Entry, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		log.Error().Err(err).Str("url", c.url).Msg("directory: failed to build request")
		return nil, false
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("url", c.url).Msg("directory: request failed")
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		log.Warn().Int("status", resp.StatusCode).Str("url", c.url).Msg("directory: unexpected status")
		return nil, false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		log.Warn().Err(err).Str("url", c.url).Msg("directory: failed to read body")
		return nil, false
	}

	entries, err := Parse(body)
	if err != nil {
		log.Warn().Err(err).Str("url", c.url).Int("size", len(body)).Msg("directory: failed to parse document")
		return nil, false
	}
	return entries, true
}
