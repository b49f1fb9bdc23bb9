// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/cinequiz/internal/model"
)

// UserRepository はユーザーデータ（Credential Store）の永続化インターフェース。
// emailの一意性はストレージ側の制約で保証する。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail は指定メールアドレスのユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	// emailが既に存在する場合はmodel.ErrDuplicateEmailをラップしたエラーを返す。
	Create(ctx context.Context, user *model.User) error

	// IncrementExperienceAndScore は経験値と累計スコアを1文で加算し、
	// 加算後の経験値に対応するランクを同じ文で書き込む。
	// 読み取りと書き込みを分けないため、同一ユーザーへの同時加算でも更新が失われない。
	// ユーザーが存在しない場合はnilを返す。
	IncrementExperienceAndScore(ctx context.Context, id string, experienceDelta, scoreDelta int64) (*model.Counters, error)

	// UpdateLevel はランクを直接書き込む。経験値と累計スコアは変更しない。
	// ユーザーが存在しない場合はfalseを返す。
	UpdateLevel(ctx context.Context, id string, level model.Rank) (bool, error)

	// ListTopByScore は累計スコアの降順でユーザーを返す。
	ListTopByScore(ctx context.Context, limit int) ([]model.LeaderboardEntry, error)
}

// GameSessionRepository はゲームプレイ記録（Session Log）の永続化インターフェース。
// 追記専用で、記録の更新は行わない。
type GameSessionRepository interface {
	// Append はゲームプレイ記録を1件追加する。
	Append(ctx context.Context, session *model.GameSession) error

	// CountByUserID はユーザーのゲームプレイ回数を返す。
	CountByUserID(ctx context.Context, userID string) (int64, error)

	// DeleteOlderThan はbeforeより前にプレイされた記録を削除し、削除件数を返す。
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}
