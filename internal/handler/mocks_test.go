package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/cinequiz/internal/auth"
	"github.com/hitoshi/cinequiz/internal/gamification"
	"github.com/hitoshi/cinequiz/internal/middleware"
	"github.com/hitoshi/cinequiz/internal/model"
)

// --- AuthServiceInterface モック ---

type mockAuthService struct {
	registerFn func(ctx context.Context, name, email, password string) (*auth.Result, error)
	loginFn    func(ctx context.Context, email, password string) (*auth.Result, error)
	verifyFn   func(ctx context.Context, tokenString string) auth.VerifyResult
}

func (m *mockAuthService) Register(ctx context.Context, name, email, password string) (*auth.Result, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, name, email, password)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.Result, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthService) Verify(ctx context.Context, tokenString string) auth.VerifyResult {
	if m.verifyFn != nil {
		return m.verifyFn(ctx, tokenString)
	}
	return auth.VerifyResult{}
}

// --- GamificationServiceInterface モック ---

type mockGamificationService struct {
	profileFn     func(ctx context.Context, userID string) (*gamification.Profile, error)
	applyFn       func(ctx context.Context, userID string, result gamification.GameResult) (*gamification.Progress, error)
	setLevelFn    func(ctx context.Context, userID string, newLevel any) (model.Rank, error)
	leaderboardFn func(ctx context.Context, limit int) ([]model.LeaderboardEntry, error)
}

func (m *mockGamificationService) Profile(ctx context.Context, userID string) (*gamification.Profile, error) {
	if m.profileFn != nil {
		return m.profileFn(ctx, userID)
	}
	return nil, errors.New("not implemented")
}

func (m *mockGamificationService) ApplyGameResult(ctx context.Context, userID string, result gamification.GameResult) (*gamification.Progress, error) {
	if m.applyFn != nil {
		return m.applyFn(ctx, userID, result)
	}
	return nil, errors.New("not implemented")
}

func (m *mockGamificationService) SetLevelOverride(ctx context.Context, userID string, newLevel any) (model.Rank, error) {
	if m.setLevelFn != nil {
		return m.setLevelFn(ctx, userID, newLevel)
	}
	return 0, errors.New("not implemented")
}

func (m *mockGamificationService) Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	if m.leaderboardFn != nil {
		return m.leaderboardFn(ctx, limit)
	}
	return nil, errors.New("not implemented")
}

// --- MovieServiceInterface モック ---

type mockMovieService struct {
	searchFn   func(ctx context.Context, query string) (json.RawMessage, error)
	popularFn  func(ctx context.Context) (json.RawMessage, error)
	categoryFn func(ctx context.Context, category string, page int) (json.RawMessage, error)
	movieFn    func(ctx context.Context, id string) (json.RawMessage, error)
	videosFn   func(ctx context.Context, id string) (json.RawMessage, error)
	castFn     func(ctx context.Context, id string) (json.RawMessage, error)
	watchFn    func(ctx context.Context, id string) (json.RawMessage, error)
}

var errNotImplemented = errors.New("not implemented")

func (m *mockMovieService) Search(ctx context.Context, query string) (json.RawMessage, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query)
	}
	return nil, errNotImplemented
}

func (m *mockMovieService) Popular(ctx context.Context) (json.RawMessage, error) {
	if m.popularFn != nil {
		return m.popularFn(ctx)
	}
	return nil, errNotImplemented
}

func (m *mockMovieService) Category(ctx context.Context, category string, page int) (json.RawMessage, error) {
	if m.categoryFn != nil {
		return m.categoryFn(ctx, category, page)
	}
	return nil, errNotImplemented
}

func (m *mockMovieService) Movie(ctx context.Context, id string) (json.RawMessage, error) {
	if m.movieFn != nil {
		return m.movieFn(ctx, id)
	}
	return nil, errNotImplemented
}

func (m *mockMovieService) Videos(ctx context.Context, id string) (json.RawMessage, error) {
	if m.videosFn != nil {
		return m.videosFn(ctx, id)
	}
	return nil, errNotImplemented
}

func (m *mockMovieService) Cast(ctx context.Context, id string) (json.RawMessage, error) {
	if m.castFn != nil {
		return m.castFn(ctx, id)
	}
	return nil, errNotImplemented
}

func (m *mockMovieService) WatchProviders(ctx context.Context, id string) (json.RawMessage, error) {
	if m.watchFn != nil {
		return m.watchFn(ctx, id)
	}
	return nil, errNotImplemented
}

// --- ヘルパー ---

var testIdentity = &model.Identity{
	ID:    "user-1",
	Email: "alice@example.com",
	Name:  "Alice",
	Level: model.RankAwardWinner,
}

// newJSONRequest はJSONボディ付きのリクエストを生成する。
func newJSONRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// withIdentity は認証済みユーザーをコンテキストに設定したリクエストを返す。
func withIdentity(req *http.Request) *http.Request {
	return req.WithContext(middleware.ContextWithIdentity(req.Context(), testIdentity))
}

// decodeBody はレスポンスボディをmapにデコードする。
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

// assertErrorCode はエラーレスポンスのステータスとコードを検証する。
func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int, wantCode string) {
	t.Helper()
	if rec.Code != wantStatus {
		t.Errorf("status = %d, want %d", rec.Code, wantStatus)
	}
	body := decodeBody(t, rec)
	if body["success"] != false {
		t.Errorf("success = %v, want false", body["success"])
	}
	if body["code"] != wantCode {
		t.Errorf("code = %v, want %s", body["code"], wantCode)
	}
}
