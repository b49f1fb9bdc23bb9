package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/cinequiz/internal/auth"
	"github.com/hitoshi/cinequiz/internal/middleware"
	"github.com/hitoshi/cinequiz/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, name, email, password string) (*auth.Result, error)
	Login(ctx context.Context, email, password string) (*auth.Result, error)
	Verify(ctx context.Context, tokenString string) auth.VerifyResult
}

// AuthHandler は登録・ログイン・トークン検証のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// userResponse はユーザー情報のAPIレスポンス。パスワードハッシュは含めない。
type userResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Level       int       `json:"level"`
	LevelName   string    `json:"level_name"`
	LevelNumber int       `json:"level_number"`
	Experience  int64     `json:"experience"`
	TotalScore  int64     `json:"total_score"`
	MemberSince time.Time `json:"member_since"`
}

type authResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	User    userResponse `json:"user"`
	Token   string       `json:"token"`
}

type identityResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Level     int    `json:"level"`
	LevelName string `json:"level_name"`
}

type verifyResponse struct {
	Success bool              `json:"success"`
	Valid   bool              `json:"valid"`
	User    *identityResponse `json:"user,omitempty"`
}

// Register はユーザー登録を処理する。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	result, err := h.service.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{
		Success: true,
		Message: "ユーザーを作成しました。",
		User:    toUserResponse(result.User),
		Token:   result.Token,
	})
}

// Login はログインを処理する。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Success: true,
		Message: "ログインしました。",
		User:    toUserResponse(result.User),
		Token:   result.Token,
	})
}

// Verify はAuthorizationヘッダーのトークンを検証する。
// トークンが無い・無効な場合も200でvalid=falseを返す。
// GET /auth/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	result := h.service.Verify(r.Context(), middleware.BearerToken(r))

	resp := verifyResponse{Success: true, Valid: result.Valid}
	if result.Valid && result.Identity != nil {
		resp.User = toIdentityResponse(result.Identity)
	}
	writeJSON(w, http.StatusOK, resp)
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Level:       int(u.Level),
		LevelName:   u.Level.Name(),
		LevelNumber: int(u.Level),
		Experience:  u.Experience,
		TotalScore:  u.TotalScore,
		MemberSince: u.CreatedAt,
	}
}

func toIdentityResponse(identity *model.Identity) *identityResponse {
	return &identityResponse{
		ID:        identity.ID,
		Email:     identity.Email,
		Name:      identity.Name,
		Level:     int(identity.Level),
		LevelName: identity.Level.Name(),
	}
}
