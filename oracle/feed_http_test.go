package oracle

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

type stubDoer struct {
	status int
	body   string
	apiKey string
}

func (s *stubDoer) Do(req *http.Request) (*http.Response, error) {
	s.apiKey = req.Header.Get("x-api-key")
	return &http.Response{
		StatusCode: s.status,
		Body:       io.NopCloser(strings.NewReader(s.body)),
	}, nil
}

func TestHTTPFeedFetchesObservation(t *testing.T) {
	doer := &stubDoer{status: http.StatusOK, body: `{"value":"222825000000","decimals":8,"timestamp":1700000000}`}
	feed := NewHTTPFeed(doer, "https://feeds.example.com/base", "secret")

	value, decimals, observedAt, err := feed.FetchRate()
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if value.String() != "222825000000" {
		t.Fatalf("unexpected value %s", value)
	}
	if decimals != 8 {
		t.Fatalf("unexpected decimals %d", decimals)
	}
	if !observedAt.Equal(time.Unix(1_700_000_000, 0).UTC()) {
		t.Fatalf("unexpected timestamp %s", observedAt)
	}
	if doer.apiKey != "secret" {
		t.Fatalf("expected api key header, got %q", doer.apiKey)
	}
}

func TestHTTPFeedRejectsBadResponses(t *testing.T) {
	doer := &stubDoer{status: http.StatusServiceUnavailable, body: "down"}
	feed := NewHTTPFeed(doer, "https://feeds.example.com/base", "")
	if _, _, _, err := feed.FetchRate(); err == nil {
		t.Fatal("expected error on non-200 status")
	}

	doer = &stubDoer{status: http.StatusOK, body: `{"value":"-5","decimals":8}`}
	feed = NewHTTPFeed(doer, "https://feeds.example.com/base", "")
	if _, _, _, err := feed.FetchRate(); err == nil {
		t.Fatal("expected error on non-positive value")
	}

	doer = &stubDoer{status: http.StatusOK, body: `{"value":"","decimals":8}`}
	feed = NewHTTPFeed(doer, "https://feeds.example.com/base", "")
	if _, _, _, err := feed.FetchRate(); err == nil {
		t.Fatal("expected error on empty value")
	}
}
