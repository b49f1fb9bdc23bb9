package movie

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/cinequiz/internal/metrics"
)

type upstreamCall struct {
	status int
}

type recordingCollector struct {
	metrics.NopCollector
	mu    sync.Mutex
	calls []upstreamCall
}

func (c *recordingCollector) RecordUpstreamRequest(statusCode int, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, upstreamCall{status: statusCode})
}

// newTestClient はhandlerを応答に使うClientを生成する。
func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *recordingCollector) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	collector := &recordingCollector{}
	c := NewClient(Config{
		BaseURL: server.URL + "/3/",
		APIKey:  "test-key",
	}, server.Client(), collector)
	return c, collector
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(body))
}

func TestClient_Search(t *testing.T) {
	c, collector := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/3/search/movie" {
			t.Errorf("path = %q, want /3/search/movie", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("api_key") != "test-key" {
			t.Errorf("api_key = %q, want test-key", q.Get("api_key"))
		}
		if q.Get("query") != "the matrix & co" {
			t.Errorf("query = %q", q.Get("query"))
		}
		if q.Get("include_adult") != "false" {
			t.Errorf("include_adult = %q, want false", q.Get("include_adult"))
		}
		writeJSON(w, `{"page":1,"results":[{"id":603,"title":"The Matrix"}]}`)
	})

	got, err := c.Search(context.Background(), "the matrix & co")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	var results []map[string]any
	if err := json.Unmarshal(got, &results); err != nil {
		t.Fatalf("results are not an array: %v (%s)", err, got)
	}
	if len(results) != 1 || results[0]["title"] != "The Matrix" {
		t.Errorf("results = %v", results)
	}
	if len(collector.calls) != 1 || collector.calls[0].status != http.StatusOK {
		t.Errorf("upstream calls = %v", collector.calls)
	}
}

func TestClient_Category(t *testing.T) {
	var gotPath, gotPage string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotPage = r.URL.Query().Get("page")
		writeJSON(w, `{"page":2}`)
	})

	got, err := c.Category(context.Background(), "top_rated", 2)
	if err != nil {
		t.Fatalf("Category() error = %v", err)
	}
	if gotPath != "/3/movie/top_rated" || gotPage != "2" {
		t.Errorf("request = %s page=%s", gotPath, gotPage)
	}
	if string(got) != "[]" {
		t.Errorf("missing results = %s, want []", got)
	}
}

func TestClient_CategoryRejectsUnknown(t *testing.T) {
	c, collector := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called")
	})

	for _, category := range []string{"", "latest", "../account", "POPULAR"} {
		if _, err := c.Category(context.Background(), category, 1); !errors.Is(err, ErrInvalidCategory) {
			t.Errorf("Category(%q) error = %v, want ErrInvalidCategory", category, err)
		}
	}
	if len(collector.calls) != 0 {
		t.Errorf("upstream calls = %d, want 0", len(collector.calls))
	}
}

func TestClient_PopularUsesPopularCategory(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/3/movie/popular" {
			t.Errorf("path = %q, want /3/movie/popular", r.URL.Path)
		}
		writeJSON(w, `{"results":[{"id":1}]}`)
	})

	got, err := c.Popular(context.Background())
	if err != nil {
		t.Fatalf("Popular() error = %v", err)
	}
	if string(got) != `[{"id":1}]` {
		t.Errorf("results = %s", got)
	}
}

func TestClient_MovieNotFound(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, `{"status_code":34}`)
	})

	if _, err := c.Movie(context.Background(), "999999"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Movie() error = %v, want ErrNotFound", err)
	}
}

func TestClient_MovieReturnsBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/3/movie/603" {
			t.Errorf("path = %q", r.URL.Path)
		}
		writeJSON(w, `{"id":603,"title":"The Matrix"}`)
	})

	got, err := c.Movie(context.Background(), "603")
	if err != nil {
		t.Fatalf("Movie() error = %v", err)
	}
	if !strings.Contains(string(got), `"The Matrix"`) {
		t.Errorf("body = %s", got)
	}
}

func TestClient_InvalidID(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called")
	})

	for _, id := range []string{"", "0", "-1", "abc", "1/../../account", "12345678901234"} {
		if _, err := c.Movie(context.Background(), id); !errors.Is(err, ErrInvalidID) {
			t.Errorf("Movie(%q) error = %v, want ErrInvalidID", id, err)
		}
		if _, err := c.Videos(context.Background(), id); !errors.Is(err, ErrInvalidID) {
			t.Errorf("Videos(%q) error = %v, want ErrInvalidID", id, err)
		}
	}
}

func TestClient_VideosAndCast(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/3/movie/603/videos":
			writeJSON(w, `{"id":603,"results":[{"key":"abc","site":"YouTube"}]}`)
		case "/3/movie/603/credits":
			writeJSON(w, `{"id":603,"cast":null}`)
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	})

	videos, err := c.Videos(context.Background(), "603")
	if err != nil {
		t.Fatalf("Videos() error = %v", err)
	}
	if string(videos) != `[{"key":"abc","site":"YouTube"}]` {
		t.Errorf("videos = %s", videos)
	}

	cast, err := c.Cast(context.Background(), "603")
	if err != nil {
		t.Fatalf("Cast() error = %v", err)
	}
	if string(cast) != "[]" {
		t.Errorf("null cast = %s, want []", cast)
	}
}

func TestClient_WatchProviders(t *testing.T) {
	body := `{"id":603,"results":{"IL":{"link":"https://example.com/il"},"US":{"link":"https://example.com/us"}}}`

	tests := []struct {
		region string
		want   string
	}{
		{"", `{"link":"https://example.com/il"}`},
		{"US", `{"link":"https://example.com/us"}`},
		{"JP", "null"},
	}

	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/3/movie/603/watch/providers" {
				t.Errorf("path = %q", r.URL.Path)
			}
			writeJSON(w, body)
		}))
		c := NewClient(Config{BaseURL: server.URL + "/3", APIKey: "k", WatchRegion: tt.region}, server.Client(), nil)

		got, err := c.WatchProviders(context.Background(), "603")
		server.Close()
		if err != nil {
			t.Fatalf("WatchProviders() error = %v", err)
		}
		if string(got) != tt.want {
			t.Errorf("region %q: got %s, want %s", tt.region, got, tt.want)
		}
	}
}

func TestClient_UpstreamErrorStatus(t *testing.T) {
	c, collector := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.Search(context.Background(), "x")
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("error = %v, want ErrUpstream", err)
	}
	if len(collector.calls) != 1 || collector.calls[0].status != http.StatusInternalServerError {
		t.Errorf("upstream calls = %v", collector.calls)
	}
}

func TestClient_InvalidJSON(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `<html>oops</html>`)
	})

	if _, err := c.Movie(context.Background(), "1"); !errors.Is(err, ErrUpstream) {
		t.Errorf("error = %v, want ErrUpstream", err)
	}
}

func TestClient_ResponseTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"results":"`+strings.Repeat("x", 200)+`"}`)
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL, APIKey: "k", MaxResponseSize: 64}, server.Client(), nil)
	if _, err := c.Search(context.Background(), "x"); !errors.Is(err, ErrUpstream) {
		t.Errorf("error = %v, want ErrUpstream", err)
	}
}

func TestClient_NotConfigured(t *testing.T) {
	c := NewClient(Config{}, http.DefaultClient, nil)
	if c.Enabled() {
		t.Error("client without api key must be disabled")
	}
	if _, err := c.Popular(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("error = %v, want ErrNotConfigured", err)
	}
}

func TestClient_ConnectionErrorDoesNotLeakKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close()

	c := NewClient(Config{BaseURL: baseURL, APIKey: "super-secret"}, &http.Client{Timeout: time.Second}, nil)
	_, err := c.Popular(context.Background())
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("error = %v, want ErrUpstream", err)
	}
	if strings.Contains(err.Error(), "super-secret") {
		t.Errorf("error leaks api key: %v", err)
	}
}

func TestRedact(t *testing.T) {
	if got := redact("GET https://x/?api_key=abc: refused", "abc"); strings.Contains(got, "abc") {
		t.Errorf("redact() = %q", got)
	}
	if got := redact("no secret", ""); got != "no secret" {
		t.Errorf("redact() with empty secret = %q", got)
	}

	key := "a b+c/d"
	msg := "GET https://x/?" + url.Values{"api_key": {key}}.Encode() + ": refused"
	got := redact(msg, key)
	if strings.Contains(got, key) || strings.Contains(got, url.QueryEscape(key)) {
		t.Errorf("redact() with escaped key = %q", got)
	}
	if !strings.Contains(got, "api_key=REDACTED") {
		t.Errorf("redact() = %q, want api_key=REDACTED", got)
	}
}

func TestValidCategory(t *testing.T) {
	for _, c := range []string{"popular", "top_rated", "upcoming", "now_playing"} {
		if !ValidCategory(c) {
			t.Errorf("ValidCategory(%q) = false, want true", c)
		}
	}
	if ValidCategory("latest") {
		t.Error("ValidCategory(latest) = true, want false")
	}
}
