package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/cinequiz/internal/gamification"
	"github.com/hitoshi/cinequiz/internal/model"
)

// GamificationServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type GamificationServiceInterface interface {
	Profile(ctx context.Context, userID string) (*gamification.Profile, error)
	ApplyGameResult(ctx context.Context, userID string, result gamification.GameResult) (*gamification.Progress, error)
	SetLevelOverride(ctx context.Context, userID string, newLevel any) (model.Rank, error)
	Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error)
}

// UserHandler はプロフィール・スコア・ランク関連のHTTPハンドラー。
type UserHandler struct {
	service GamificationServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service GamificationServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

type profileUserResponse struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Email               string    `json:"email"`
	Level               int       `json:"level"`
	LevelName           string    `json:"level_name"`
	LevelNumber         int       `json:"level_number"`
	Experience          int64     `json:"experience"`
	TotalScore          int64     `json:"total_score"`
	MemberSince         time.Time `json:"member_since"`
	GamesPlayed         int64     `json:"games_played"`
	NextLevelExperience *int64    `json:"next_level_experience"`
}

type profileResponse struct {
	Success bool                `json:"success"`
	User    profileUserResponse `json:"user"`
}

type updateLevelRequest struct {
	NewLevel any `json:"newLevel"`
}

type updateLevelResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Level     int    `json:"level"`
	LevelName string `json:"level_name"`
}

type updateScoreRequest struct {
	Score            int64  `json:"score"`
	ExperienceGained int64  `json:"experience_gained"`
	GameType         string `json:"game_type"`
}

type progressResponse struct {
	Experience   int64  `json:"experience"`
	TotalScore   int64  `json:"total_score"`
	Level        int    `json:"level"`
	LevelName    string `json:"level_name"`
	LevelChanged bool   `json:"level_changed"`
}

type updateScoreResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	User    progressResponse `json:"user"`
}

type leaderboardEntryResponse struct {
	Position   int    `json:"position"`
	ID         string `json:"id"`
	Name       string `json:"name"`
	TotalScore int64  `json:"total_score"`
	Experience int64  `json:"experience"`
	Level      int    `json:"level"`
	LevelName  string `json:"level_name"`
}

type leaderboardResponse struct {
	Success     bool                       `json:"success"`
	Leaderboard []leaderboardEntryResponse `json:"leaderboard"`
}

// Profile は認証済みユーザーのプロフィールを返す。
// GET /user/profile
func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}

	profile, err := h.service.Profile(r.Context(), identity.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	u := profile.User
	writeJSON(w, http.StatusOK, profileResponse{
		Success: true,
		User: profileUserResponse{
			ID:                  u.ID,
			Name:                u.Name,
			Email:               u.Email,
			Level:               int(u.Level),
			LevelName:           u.Level.Name(),
			LevelNumber:         int(u.Level),
			Experience:          u.Experience,
			TotalScore:          u.TotalScore,
			MemberSince:         u.CreatedAt,
			GamesPlayed:         profile.GamesPlayed,
			NextLevelExperience: profile.NextLevelExperience,
		},
	})
}

// UpdateLevel はランクを直接上書きする。
// 数値・ランク名のどちらも受け付け、解釈できない値は最下位ランクに正規化される。
// POST /user/update-level
func (h *UserHandler) UpdateLevel(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req updateLevelRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	level, err := h.service.SetLevelOverride(r.Context(), identity.ID, req.NewLevel)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updateLevelResponse{
		Success:   true,
		Message:   "ランクを更新しました。",
		Level:     int(level),
		LevelName: level.Name(),
	})
}

// UpdateScore はゲーム結果を反映する。
// POST /user/update-score
func (h *UserHandler) UpdateScore(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req updateScoreRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	progress, err := h.service.ApplyGameResult(r.Context(), identity.ID, gamification.GameResult{
		Score:            req.Score,
		ExperienceGained: req.ExperienceGained,
		GameType:         req.GameType,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updateScoreResponse{
		Success: true,
		Message: "スコアを更新しました。",
		User: progressResponse{
			Experience:   progress.Experience,
			TotalScore:   progress.TotalScore,
			Level:        int(progress.Level),
			LevelName:    progress.Level.Name(),
			LevelChanged: progress.LevelChanged(),
		},
	})
}

// Leaderboard は累計スコア上位のユーザー一覧を返す。
// GET /user/leaderboard?limit=N
func (h *UserHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeAPIErrorResponse(w, http.StatusBadRequest,
				model.NewValidationError("limitは1以上の整数で指定してください"))
			return
		}
		limit = n
	}

	entries, err := h.service.Leaderboard(r.Context(), limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := leaderboardResponse{
		Success:     true,
		Leaderboard: make([]leaderboardEntryResponse, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Leaderboard = append(resp.Leaderboard, leaderboardEntryResponse{
			Position:   e.Position,
			ID:         e.UserID,
			Name:       e.Name,
			TotalScore: e.TotalScore,
			Experience: e.Experience,
			Level:      int(e.Level),
			LevelName:  e.Level.Name(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
