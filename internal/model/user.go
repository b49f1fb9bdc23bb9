// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// PasswordHashは外部に公開してはならない。
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Level        Rank
	Experience   int64
	TotalScore   int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity はトークンから復元された認証済みユーザーの情報。
// Access Guardを通過したリクエストのコンテキストに格納される。
type Identity struct {
	ID    string
	Email string
	Name  string
	Level Rank
}

// Counters は経験値加算後のユーザーのカウンター値。
// PreviousLevelは加算前に保存されていたランク。
type Counters struct {
	Experience    int64
	TotalScore    int64
	Level         Rank
	PreviousLevel Rank
}

// GameSession は1回分のゲームプレイ記録。作成後に変更されない。
type GameSession struct {
	ID              string
	UserID          string
	GameType        string
	ScoreDelta      int64
	ExperienceDelta int64
	PlayedAt        time.Time
}

// LeaderboardEntry はリーダーボードの1行。
type LeaderboardEntry struct {
	Position   int
	UserID     string
	Name       string
	TotalScore int64
	Experience int64
	Level      Rank
}
