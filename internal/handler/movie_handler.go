package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/cinequiz/internal/model"
	"github.com/hitoshi/cinequiz/internal/movie"
)

// MovieServiceInterface は映画ハンドラーが必要とするサービスインターフェース。
type MovieServiceInterface interface {
	Search(ctx context.Context, query string) (json.RawMessage, error)
	Popular(ctx context.Context) (json.RawMessage, error)
	Category(ctx context.Context, category string, page int) (json.RawMessage, error)
	Movie(ctx context.Context, id string) (json.RawMessage, error)
	Videos(ctx context.Context, id string) (json.RawMessage, error)
	Cast(ctx context.Context, id string) (json.RawMessage, error)
	WatchProviders(ctx context.Context, id string) (json.RawMessage, error)
}

// MovieHandler は映画メタデータのプロキシハンドラー。
type MovieHandler struct {
	service MovieServiceInterface
}

// NewMovieHandler はMovieHandlerを生成する。
func NewMovieHandler(service MovieServiceInterface) *MovieHandler {
	return &MovieHandler{service: service}
}

// Search はタイトルで映画を検索する。
// GET /api/movies/search?query=...
func (h *MovieHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("検索キーワードを指定してください"))
		return
	}

	body, err := h.service.Search(r.Context(), query)
	if err != nil {
		handleMovieError(w, err)
		return
	}
	writeRawJSON(w, body)
}

// Popular は人気の映画一覧を返す。
// GET /api/movies/popular
func (h *MovieHandler) Popular(w http.ResponseWriter, r *http.Request) {
	body, err := h.service.Popular(r.Context())
	if err != nil {
		handleMovieError(w, err)
		return
	}
	writeRawJSON(w, body)
}

// Category はカテゴリ別の映画一覧を返す。
// GET /api/movies/category/{category}?page=N
func (h *MovieHandler) Category(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	if !movie.ValidCategory(category) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("カテゴリが不正です"))
		return
	}

	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("pageは1以上の整数で指定してください"))
			return
		}
		page = n
	}

	body, err := h.service.Category(r.Context(), category, page)
	if err != nil {
		handleMovieError(w, err)
		return
	}
	writeRawJSON(w, body)
}

// Movie は映画の詳細を返す。
// GET /api/movies/{id}
func (h *MovieHandler) Movie(w http.ResponseWriter, r *http.Request) {
	body, err := h.service.Movie(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleMovieError(w, err)
		return
	}
	writeRawJSON(w, body)
}

// Videos は予告編一覧を返す。アップストリームの失敗時は空配列。
// GET /api/movies/{id}/videos
func (h *MovieHandler) Videos(w http.ResponseWriter, r *http.Request) {
	h.degrading(w, r, h.service.Videos, "[]")
}

// Cast は出演者一覧を返す。アップストリームの失敗時は空配列。
// GET /api/movies/{id}/cast
func (h *MovieHandler) Cast(w http.ResponseWriter, r *http.Request) {
	h.degrading(w, r, h.service.Cast, "[]")
}

// Watch は配信サービス情報を返す。アップストリームの失敗時はnull。
// GET /api/movies/{id}/watch
func (h *MovieHandler) Watch(w http.ResponseWriter, r *http.Request) {
	h.degrading(w, r, h.service.WatchProviders, "null")
}

// degrading は補助情報の取得に失敗した場合にfallbackを返す。
// 入力不正と未設定はそのままエラーにする。
func (h *MovieHandler) degrading(
	w http.ResponseWriter,
	r *http.Request,
	fetch func(ctx context.Context, id string) (json.RawMessage, error),
	fallback string,
) {
	id := chi.URLParam(r, "id")
	body, err := fetch(r.Context(), id)
	if err != nil {
		if errors.Is(err, movie.ErrInvalidID) || errors.Is(err, movie.ErrNotConfigured) {
			handleMovieError(w, err)
			return
		}
		slog.Warn("movie detail degraded",
			slog.String("movie_id", id),
			slog.String("error", err.Error()),
		)
		body = json.RawMessage(fallback)
	}
	writeRawJSON(w, body)
}

// handleMovieError は映画クライアントのエラーをAPIエラーに変換する。
func handleMovieError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, movie.ErrInvalidID):
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("映画IDが不正です"))
	case errors.Is(err, movie.ErrInvalidCategory):
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("カテゴリが不正です"))
	case errors.Is(err, movie.ErrNotConfigured):
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewMovieUnavailableError())
	case errors.Is(err, movie.ErrNotFound):
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewMovieNotFoundError(""))
	default:
		slog.Error("movie api request failed", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusBadGateway, model.NewUpstreamFailedError())
	}
}
