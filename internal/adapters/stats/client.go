// Package stats talks to the media server REST API for broadcast
// statistics.
package stats

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dkeye/confclient/internal/core"
	"github.com/dkeye/confclient/internal/domain"
	"github.com/goccy/go-json"
)

var (
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrEmptyStreamID    = errors.New("stream id is empty")
)

const maxBody = 1 << 20

type broadcastStatistics struct {
	TotalRTMPWatchersCount   int `json:"totalRTMPWatchersCount"`
	TotalHLSWatchersCount    int `json:"totalHLSWatchersCount"`
	TotalWebRTCWatchersCount int `json:"totalWebRTCWatchersCount"`
}

// Client fetches watcher counts from
// {base}/rest/v2/broadcasts/{id}/broadcast-statistics.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ core.StatsFetcher = (*Client)(nil)

func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// BaseURLFromSignaling derives the REST base from a signaling endpoint such
// as wss://host:5443/App/websocket -> https://host:5443/App.
func BaseURLFromSignaling(signalingURL string) (string, error) {
	u, err := url.Parse(signalingURL)
	if err != nil {
		return "", fmt.Errorf("parse signaling url: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("parse signaling url: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(strings.TrimRight(u.Path, "/"), "/websocket")
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/"), nil
}

func (c *Client) ListenerCount(ctx context.Context, streamID domain.StreamID) (int, error) {
	if streamID == "" {
		return 0, ErrEmptyStreamID
	}
	endpoint := c.baseURL + "/rest/v2/broadcasts/" + url.PathEscape(string(streamID)) + "/broadcast-statistics"
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := c.http.Do(request)
	if err != nil {
		return 0, fmt.Errorf("perform request: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxBody))
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return 0, fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, response.StatusCode, strings.TrimSpace(string(body)))
	}

	var stats broadcastStatistics
	if err := json.Unmarshal(body, &stats); err != nil {
		return 0, fmt.Errorf("decode statistics: %w", err)
	}
	return stats.TotalWebRTCWatchersCount, nil
}
