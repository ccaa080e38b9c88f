package oracle

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"
)

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPFeed fetches rate observations from a JSON endpoint exposing
// {"value": "<decimal integer>", "decimals": <n>, "timestamp": <unix>}.
type HTTPFeed struct {
	client   HTTPDoer
	endpoint string
	apiKey   string
}

// NewHTTPFeed constructs an HTTP feed adapter. When the client is nil
// http.DefaultClient is used. The API key is optional and only added to the
// request headers when supplied.
func NewHTTPFeed(client HTTPDoer, endpoint, apiKey string) *HTTPFeed {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFeed{client: client, endpoint: strings.TrimSpace(endpoint), apiKey: strings.TrimSpace(apiKey)}
}

// FetchRate performs a single blocking fetch against the configured
// endpoint.
func (f *HTTPFeed) FetchRate() (*big.Int, uint8, time.Time, error) {
	if f == nil || f.endpoint == "" {
		return nil, 0, time.Time{}, fmt.Errorf("http feed not configured")
	}
	req, err := http.NewRequest(http.MethodGet, f.endpoint, nil)
	if err != nil {
		return nil, 0, time.Time{}, err
	}
	if f.apiKey != "" {
		req.Header.Set("x-api-key", f.apiKey)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, time.Time{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, 0, time.Time{}, fmt.Errorf("http feed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload struct {
		Value     string `json:"value"`
		Decimals  uint8  `json:"decimals"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, 0, time.Time{}, fmt.Errorf("http feed: decode: %w", err)
	}
	trimmed := strings.TrimSpace(payload.Value)
	if trimmed == "" {
		return nil, 0, time.Time{}, fmt.Errorf("http feed: empty value")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || value.Sign() <= 0 {
		return nil, 0, time.Time{}, fmt.Errorf("http feed: invalid value %q", payload.Value)
	}
	var observedAt time.Time
	if payload.Timestamp > 0 {
		observedAt = time.Unix(payload.Timestamp, 0).UTC()
	} else {
		observedAt = time.Now().UTC()
	}
	return value, payload.Decimals, observedAt, nil
}
