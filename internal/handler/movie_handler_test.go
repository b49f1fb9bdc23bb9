package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/cinequiz/internal/model"
	"github.com/hitoshi/cinequiz/internal/movie"
)

// newMovieRouter はURLパラメータを解決するためにMovieHandlerをchiにマウントする。
func newMovieRouter(svc MovieServiceInterface) http.Handler {
	h := NewMovieHandler(svc)
	r := chi.NewRouter()
	r.Get("/api/movies/search", h.Search)
	r.Get("/api/movies/popular", h.Popular)
	r.Get("/api/movies/category/{category}", h.Category)
	r.Get("/api/movies/{id}", h.Movie)
	r.Get("/api/movies/{id}/videos", h.Videos)
	r.Get("/api/movies/{id}/cast", h.Cast)
	r.Get("/api/movies/{id}/watch", h.Watch)
	return r
}

func serveMovie(svc MovieServiceInterface, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	newMovieRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestMovieHandler_Search(t *testing.T) {
	t.Run("forwards trimmed query", func(t *testing.T) {
		var gotQuery string
		svc := &mockMovieService{
			searchFn: func(_ context.Context, query string) (json.RawMessage, error) {
				gotQuery = query
				return json.RawMessage(`[{"id":1}]`), nil
			},
		}
		rec := serveMovie(svc, "/api/movies/search?query=%20Heat%20")

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		if gotQuery != "Heat" {
			t.Errorf("query = %q, want Heat", gotQuery)
		}
		if rec.Body.String() != `[{"id":1}]` {
			t.Errorf("body = %s", rec.Body.String())
		}
	})

	t.Run("blank query", func(t *testing.T) {
		rec := serveMovie(&mockMovieService{}, "/api/movies/search?query=%20%20")
		assertErrorCode(t, rec, http.StatusBadRequest, model.ErrCodeValidation)
	})
}

func TestMovieHandler_Category(t *testing.T) {
	t.Run("valid category with page", func(t *testing.T) {
		var gotCategory string
		var gotPage int
		svc := &mockMovieService{
			categoryFn: func(_ context.Context, category string, page int) (json.RawMessage, error) {
				gotCategory, gotPage = category, page
				return json.RawMessage(`[]`), nil
			},
		}
		rec := serveMovie(svc, "/api/movies/category/top_rated?page=3")

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		if gotCategory != "top_rated" || gotPage != 3 {
			t.Errorf("service received (%q, %d)", gotCategory, gotPage)
		}
	})

	t.Run("unknown category", func(t *testing.T) {
		rec := serveMovie(&mockMovieService{}, "/api/movies/category/latest")
		assertErrorCode(t, rec, http.StatusBadRequest, model.ErrCodeValidation)
	})

	t.Run("invalid page", func(t *testing.T) {
		rec := serveMovie(&mockMovieService{}, "/api/movies/category/popular?page=0")
		assertErrorCode(t, rec, http.StatusBadRequest, model.ErrCodeValidation)
	})
}

func TestMovieHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "not configured", err: movie.ErrNotConfigured, wantStatus: http.StatusServiceUnavailable, wantCode: model.ErrCodeMovieUnavailable},
		{name: "not found", err: movie.ErrNotFound, wantStatus: http.StatusNotFound, wantCode: model.ErrCodeMovieNotFound},
		{name: "invalid id", err: movie.ErrInvalidID, wantStatus: http.StatusBadRequest, wantCode: model.ErrCodeValidation},
		{name: "upstream failure", err: fmt.Errorf("%w: status 500", movie.ErrUpstream), wantStatus: http.StatusBadGateway, wantCode: model.ErrCodeUpstreamFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockMovieService{
				movieFn: func(context.Context, string) (json.RawMessage, error) {
					return nil, tt.err
				},
			}
			rec := serveMovie(svc, "/api/movies/550")
			assertErrorCode(t, rec, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestMovieHandler_Movie_PassesBody(t *testing.T) {
	var gotID string
	svc := &mockMovieService{
		movieFn: func(_ context.Context, id string) (json.RawMessage, error) {
			gotID = id
			return json.RawMessage(`{"id":550,"title":"Fight Club"}`), nil
		},
	}
	rec := serveMovie(svc, "/api/movies/550")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotID != "550" {
		t.Errorf("id = %q, want 550", gotID)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestMovieHandler_DetailsDegrade(t *testing.T) {
	failing := func(context.Context, string) (json.RawMessage, error) {
		return nil, fmt.Errorf("%w: status 500", movie.ErrUpstream)
	}
	svc := &mockMovieService{videosFn: failing, castFn: failing, watchFn: failing}

	tests := []struct {
		target   string
		wantBody string
	}{
		{target: "/api/movies/550/videos", wantBody: "[]"},
		{target: "/api/movies/550/cast", wantBody: "[]"},
		{target: "/api/movies/550/watch", wantBody: "null"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := serveMovie(svc, tt.target)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestMovieHandler_DetailsDoNotDegradeOnBadInput(t *testing.T) {
	svc := &mockMovieService{
		castFn: func(context.Context, string) (json.RawMessage, error) {
			return nil, movie.ErrInvalidID
		},
		watchFn: func(context.Context, string) (json.RawMessage, error) {
			return nil, movie.ErrNotConfigured
		},
	}

	assertErrorCode(t, serveMovie(svc, "/api/movies/abc/cast"), http.StatusBadRequest, model.ErrCodeValidation)
	assertErrorCode(t, serveMovie(svc, "/api/movies/550/watch"), http.StatusServiceUnavailable, model.ErrCodeMovieUnavailable)
}
