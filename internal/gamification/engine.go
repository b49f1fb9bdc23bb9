// Package gamification はゲーム結果から経験値・累計スコア・ランクを更新するドメインロジックを提供する。
//
// ランクは常に経験値から導出され、加算はストレージ層で1文のアトミックな更新として行う。
// 管理操作としてのランク上書き（SetLevelOverride）のみがこの不変条件の例外となる。
package gamification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/cinequiz/internal/metrics"
	"github.com/hitoshi/cinequiz/internal/model"
	"github.com/hitoshi/cinequiz/internal/repository"
)

const (
	// DefaultSessionLogTimeout はゲームプレイ記録の書き込みに使うタイムアウト。
	DefaultSessionLogTimeout = 5 * time.Second
	// MaxLeaderboardSize はリーダーボードの最大件数。
	MaxLeaderboardSize = 50
	// gamesPlayedScoreUnit はプレイ記録が取得できない場合にプレイ回数を推定する単位。
	gamesPlayedScoreUnit = 25
	maxGameTypeLength    = 64

	// MaxScorePerGame は1回のゲームで加算できるスコアの上限。
	MaxScorePerGame = 100000
	// MaxExperiencePerGame は1回のゲームで加算できる経験値の上限。
	MaxExperiencePerGame = 100000
)

// GameResult は1回のゲームの結果。
type GameResult struct {
	Score            int64
	ExperienceGained int64
	GameType         string
}

// Progress はゲーム結果を反映した後のユーザーの状態。
type Progress struct {
	Experience    int64
	TotalScore    int64
	Level         model.Rank
	PreviousLevel model.Rank
}

// LevelChanged はランクが変化したかどうかを返す。
func (p *Progress) LevelChanged() bool {
	return p.Level != p.PreviousLevel
}

// Profile はユーザーの公開プロフィール。
type Profile struct {
	User        *model.User
	GamesPlayed int64
	// NextLevelExperience は次のランクに必要な経験値。最上位ランクの場合はnil。
	NextLevelExperience *int64
}

// Config はEngineの設定。
type Config struct {
	SessionLogTimeout time.Duration
}

// Engine はゲーム結果の反映とランク管理を行う。
type Engine struct {
	users    repository.UserRepository
	sessions repository.GameSessionRepository
	metrics  metrics.MetricsCollector
	config   Config
	now      func() time.Time

	// pending はバックグラウンドで実行中のプレイ記録書き込み。
	pending sync.WaitGroup
}

// NewEngine はEngineを生成する。sessionsがnilの場合はプレイ記録を保存しない。
func NewEngine(
	users repository.UserRepository,
	sessions repository.GameSessionRepository,
	collector metrics.MetricsCollector,
	config Config,
) *Engine {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	if config.SessionLogTimeout <= 0 {
		config.SessionLogTimeout = DefaultSessionLogTimeout
	}
	return &Engine{
		users:    users,
		sessions: sessions,
		metrics:  collector,
		config:   config,
		now:      time.Now,
	}
}

// ApplyGameResult はゲーム結果をユーザーの経験値と累計スコアに加算し、ランクを再計算する。
// スコアと経験値は正の値でなければならない。
func (e *Engine) ApplyGameResult(ctx context.Context, userID string, result GameResult) (*Progress, error) {
	gameType := strings.TrimSpace(result.GameType)
	switch {
	case result.Score == 0 || result.ExperienceGained == 0 || gameType == "":
		return nil, model.NewValidationError("score、experience_gained、game_typeは必須です")
	case result.Score < 0 || result.ExperienceGained < 0:
		return nil, model.NewValidationError("scoreとexperience_gainedは正の値である必要があります")
	case result.Score > MaxScorePerGame || result.ExperienceGained > MaxExperiencePerGame:
		return nil, model.NewValidationError(fmt.Sprintf("scoreとexperience_gainedは%d以下である必要があります", MaxScorePerGame))
	case len(gameType) > maxGameTypeLength:
		return nil, model.NewValidationError("game_typeが長すぎます")
	case !utf8.ValidString(gameType):
		return nil, model.NewValidationError("game_typeが不正です")
	}

	counters, err := e.users.IncrementExperienceAndScore(ctx, userID, result.ExperienceGained, result.Score)
	if err != nil {
		return nil, storageError("failed to apply game result", err)
	}
	if counters == nil {
		return nil, model.NewUserNotFoundError()
	}

	// ストレージが書き込んだランクと経験値から導出したランクが食い違う場合のみ補正する。
	if expected := model.RankForExperience(counters.Experience); counters.Level != expected {
		slog.Warn("stored level inconsistent with experience",
			slog.String("user_id", userID),
			slog.Int64("experience", counters.Experience),
			slog.Int("stored_level", int(counters.Level)),
			slog.Int("expected_level", int(expected)),
		)
		if _, err := e.users.UpdateLevel(ctx, userID, expected); err != nil {
			return nil, storageError("failed to correct level", err)
		}
		counters.Level = expected
	}

	progress := &Progress{
		Experience:    counters.Experience,
		TotalScore:    counters.TotalScore,
		Level:         counters.Level,
		PreviousLevel: counters.PreviousLevel,
	}

	e.metrics.RecordGameResult(gameType, result.ExperienceGained, result.Score)
	if progress.LevelChanged() {
		e.metrics.RecordRankChange(int(progress.PreviousLevel), int(progress.Level))
		slog.Info("rank changed",
			slog.String("user_id", userID),
			slog.String("from", progress.PreviousLevel.Name()),
			slog.String("to", progress.Level.Name()),
			slog.Int64("experience", progress.Experience),
		)
	}

	e.appendSession(ctx, &model.GameSession{
		ID:              uuid.New().String(),
		UserID:          userID,
		GameType:        gameType,
		ScoreDelta:      result.Score,
		ExperienceDelta: result.ExperienceGained,
		PlayedAt:        e.now(),
	})

	return progress, nil
}

// appendSession はプレイ記録をバックグラウンドで保存する。
// 呼び出し元のリクエストがキャンセルされても書き込みは継続し、失敗は応答に影響しない。
func (e *Engine) appendSession(ctx context.Context, session *model.GameSession) {
	if e.sessions == nil {
		return
	}

	bgCtx := context.WithoutCancel(ctx)
	e.pending.Add(1)
	go func() {
		defer e.pending.Done()

		writeCtx, cancel := context.WithTimeout(bgCtx, e.config.SessionLogTimeout)
		defer cancel()

		if err := e.sessions.Append(writeCtx, session); err != nil {
			e.metrics.RecordSessionLogFailure()
			slog.Warn("failed to append game session",
				slog.String("user_id", session.UserID),
				slog.String("game_type", session.GameType),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Wait はバックグラウンドのプレイ記録書き込みが全て終わるまで待つ。
// シャットダウン時に使用する。
func (e *Engine) Wait() {
	e.pending.Wait()
}

// SetLevelOverride はランクを直接書き込む。経験値と累計スコアは変更しない。
// 解釈できない値はランク1に正規化される。
func (e *Engine) SetLevelOverride(ctx context.Context, userID string, newLevel any) (model.Rank, error) {
	if isAbsentLevel(newLevel) {
		return 0, model.NewValidationError("newLevelは必須です")
	}

	level := NormalizeLevel(newLevel)
	found, err := e.users.UpdateLevel(ctx, userID, level)
	if err != nil {
		return 0, storageError("failed to update level", err)
	}
	if !found {
		return 0, model.NewUserNotFoundError()
	}

	slog.Info("level overridden",
		slog.String("user_id", userID),
		slog.String("level", level.Name()),
	)
	return level, nil
}

// Profile はユーザーの公開プロフィールを返す。
func (e *Engine) Profile(ctx context.Context, userID string) (*Profile, error) {
	user, err := e.users.FindByID(ctx, userID)
	if err != nil {
		return nil, storageError("failed to find user", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	profile := &Profile{
		User:        user,
		GamesPlayed: e.gamesPlayed(ctx, user),
	}
	if next, ok := user.Level.Next(); ok {
		threshold := next.Threshold()
		profile.NextLevelExperience = &threshold
	}
	return profile, nil
}

// gamesPlayed はプレイ回数を返す。プレイ記録が利用できない場合は累計スコアから推定する。
func (e *Engine) gamesPlayed(ctx context.Context, user *model.User) int64 {
	if e.sessions != nil {
		count, err := e.sessions.CountByUserID(ctx, user.ID)
		if err == nil {
			return count
		}
		slog.Warn("failed to count game sessions",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	return user.TotalScore / gamesPlayedScoreUnit
}

// Leaderboard は累計スコアの上位ユーザーを返す。
// limitが0以下またはMaxLeaderboardSizeを超える場合はMaxLeaderboardSizeになる。
func (e *Engine) Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	if limit <= 0 || limit > MaxLeaderboardSize {
		limit = MaxLeaderboardSize
	}
	entries, err := e.users.ListTopByScore(ctx, limit)
	if err != nil {
		return nil, storageError("failed to list leaderboard", err)
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}
	return entries, nil
}

// storageError はリポジトリのエラーをログに記録し、クライアント向けのAPIErrorに変換する。
func storageError(msg string, err error) error {
	slog.Error(msg, slog.String("error", err.Error()))
	if errors.Is(err, repository.ErrStorageUnavailable) {
		return model.NewStorageUnavailableError()
	}
	return fmt.Errorf("%s: %w", msg, err)
}
