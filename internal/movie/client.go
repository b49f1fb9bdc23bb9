// Package movie は映画メタデータAPI（TMDB）への読み取り専用プロキシを提供する。
// 応答の変換は行わず、必要なフィールドを取り出して返すだけにとどめる。
package movie

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/cinequiz/internal/metrics"
)

const (
	// DefaultBaseURL はTMDB APIのベースURL。
	DefaultBaseURL = "https://api.themoviedb.org/3"
	// DefaultWatchRegion は配信サービス情報を取り出す地域コード。
	DefaultWatchRegion = "IL"
	// DefaultMaxResponseSize はアップストリーム応答の最大サイズ。
	DefaultMaxResponseSize = 5 * 1024 * 1024
	defaultLanguage        = "en-US"
	defaultRequestsPerSec  = 20
)

var (
	// ErrNotConfigured はAPIキーが設定されていないことを示す。
	ErrNotConfigured = errors.New("movie api key is not configured")
	// ErrNotFound はアップストリームが404を返したことを示す。
	ErrNotFound = errors.New("movie not found")
	// ErrInvalidCategory は許可されていないカテゴリが指定されたことを示す。
	ErrInvalidCategory = errors.New("invalid movie category")
	// ErrInvalidID は映画IDが正の整数でないことを示す。
	ErrInvalidID = errors.New("invalid movie id")
	// ErrUpstream はアップストリームの呼び出しに失敗したことを示す。
	ErrUpstream = errors.New("movie api request failed")
)

// categories はカテゴリ一覧で許可されるTMDBのリスト名。
var categories = map[string]bool{
	"popular":     true,
	"top_rated":   true,
	"upcoming":    true,
	"now_playing": true,
}

// ValidCategory はカテゴリが許可リストに含まれるかを返す。
func ValidCategory(category string) bool {
	return categories[category]
}

// Config はClientの設定。
type Config struct {
	BaseURL         string
	APIKey          string
	WatchRegion     string
	MaxResponseSize int64
	RequestsPerSec  rate.Limit
}

// Client はTMDB APIのクライアント。
// 全リクエストで1つのレートリミッターを共有する。
type Client struct {
	httpClient *http.Client
	metrics    metrics.MetricsCollector
	limiter    *rate.Limiter
	config     Config
}

// NewClient はClientを生成する。httpClientにはSSRF防止付きのクライアントを渡す。
func NewClient(config Config, httpClient *http.Client, collector metrics.MetricsCollector) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.WatchRegion == "" {
		config.WatchRegion = DefaultWatchRegion
	}
	if config.MaxResponseSize <= 0 {
		config.MaxResponseSize = DefaultMaxResponseSize
	}
	if config.RequestsPerSec <= 0 {
		config.RequestsPerSec = defaultRequestsPerSec
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Client{
		httpClient: httpClient,
		metrics:    collector,
		limiter:    rate.NewLimiter(config.RequestsPerSec, int(config.RequestsPerSec)+1),
		config:     config,
	}
}

// Enabled はAPIキーが設定されているかを返す。
func (c *Client) Enabled() bool {
	return c.config.APIKey != ""
}

// Search はタイトルで映画を検索し、results配列を返す。
func (c *Client) Search(ctx context.Context, query string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("language", defaultLanguage)
	params.Set("page", "1")
	params.Set("include_adult", "false")

	body, err := c.get(ctx, "/search/movie", params)
	if err != nil {
		return nil, err
	}
	return field(body, "results", "[]")
}

// Popular は人気の映画一覧を返す。
func (c *Client) Popular(ctx context.Context) (json.RawMessage, error) {
	return c.Category(ctx, "popular", 1)
}

// Category は指定カテゴリの映画一覧を返す。results が無い場合は空配列。
func (c *Client) Category(ctx context.Context, category string, page int) (json.RawMessage, error) {
	if !ValidCategory(category) {
		return nil, ErrInvalidCategory
	}
	if page < 1 {
		page = 1
	}
	params := url.Values{}
	params.Set("language", defaultLanguage)
	params.Set("page", strconv.Itoa(page))

	body, err := c.get(ctx, "/movie/"+category, params)
	if err != nil {
		return nil, err
	}
	return field(body, "results", "[]")
}

// Movie は映画の詳細をそのまま返す。
func (c *Client) Movie(ctx context.Context, id string) (json.RawMessage, error) {
	if !validID(id) {
		return nil, ErrInvalidID
	}
	params := url.Values{}
	params.Set("language", defaultLanguage)
	return c.get(ctx, "/movie/"+id, params)
}

// Videos は予告編などの動画一覧を返す。
func (c *Client) Videos(ctx context.Context, id string) (json.RawMessage, error) {
	if !validID(id) {
		return nil, ErrInvalidID
	}
	body, err := c.get(ctx, "/movie/"+id+"/videos", nil)
	if err != nil {
		return nil, err
	}
	return field(body, "results", "[]")
}

// Cast は出演者一覧を返す。
func (c *Client) Cast(ctx context.Context, id string) (json.RawMessage, error) {
	if !validID(id) {
		return nil, ErrInvalidID
	}
	body, err := c.get(ctx, "/movie/"+id+"/credits", nil)
	if err != nil {
		return nil, err
	}
	return field(body, "cast", "[]")
}

// WatchProviders は設定地域の配信サービス情報を返す。地域の情報が無い場合はnull。
func (c *Client) WatchProviders(ctx context.Context, id string) (json.RawMessage, error) {
	if !validID(id) {
		return nil, ErrInvalidID
	}
	body, err := c.get(ctx, "/movie/"+id+"/watch/providers", nil)
	if err != nil {
		return nil, err
	}
	results, err := field(body, "results", "{}")
	if err != nil {
		return nil, err
	}
	return field(results, c.config.WatchRegion, "null")
}

// get はAPIキーを付与してGETリクエストを送信し、応答ボディを返す。
func (c *Client) get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	reqURL, err := url.Parse(c.config.BaseURL + path)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid request url: %w", ErrUpstream, err)
	}
	q := reqURL.Query()
	for key, values := range params {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	q.Set("api_key", c.config.APIKey)
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Cinequiz/1.0")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordUpstreamRequest(0, time.Since(start))
		// エラーメッセージにはAPIキーを含むURLが入るため、パスのみを記録する
		slog.Error("movie api request failed",
			slog.String("path", path),
			slog.String("error", redact(err.Error(), c.config.APIKey)),
		)
		return nil, ErrUpstream
	}
	defer resp.Body.Close()
	c.metrics.RecordUpstreamRequest(resp.StatusCode, time.Since(start))

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		slog.Error("movie api returned error status",
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read body: %w", ErrUpstream, err)
	}
	if int64(len(body)) > c.config.MaxResponseSize {
		slog.Error("movie api response too large",
			slog.String("path", path),
			slog.Int64("max_bytes", c.config.MaxResponseSize),
		)
		return nil, fmt.Errorf("%w: response exceeds %d bytes", ErrUpstream, c.config.MaxResponseSize)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: invalid json", ErrUpstream)
	}
	return body, nil
}

// field はJSONオブジェクトから指定キーの値を取り出す。
// キーが無いかnullの場合はfallbackを返す。
func field(body json.RawMessage, key, fallback string) (json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("%w: unexpected response shape: %w", ErrUpstream, err)
	}
	v, ok := obj[key]
	if !ok || string(v) == "null" {
		return json.RawMessage(fallback), nil
	}
	return v, nil
}

// validID は映画IDが正の整数かどうかを返す。
func validID(id string) bool {
	if id == "" || len(id) > 12 {
		return false
	}
	n, err := strconv.ParseUint(id, 10, 64)
	return err == nil && n > 0
}

// redact はsecretをURLエンコード後の形も含めて伏せ字にする。
func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	s = strings.ReplaceAll(s, secret, "REDACTED")
	if escaped := url.QueryEscape(secret); escaped != secret {
		s = strings.ReplaceAll(s, escaped, "REDACTED")
	}
	return s
}
