package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/cinequiz/internal/model"
)

// PostgresGameSessionRepo はPostgreSQLを使用したゲームプレイ記録リポジトリ。
type PostgresGameSessionRepo struct {
	db *sql.DB
}

// NewPostgresGameSessionRepo はPostgresGameSessionRepoを生成する。
func NewPostgresGameSessionRepo(db *sql.DB) *PostgresGameSessionRepo {
	return &PostgresGameSessionRepo{db: db}
}

// Append はゲームプレイ記録を1件追加する。
func (r *PostgresGameSessionRepo) Append(ctx context.Context, session *model.GameSession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO game_sessions (id, user_id, game_type, score, experience_gained, played_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		session.ID, session.UserID, session.GameType,
		session.ScoreDelta, session.ExperienceDelta, session.PlayedAt,
	)
	if err != nil {
		return wrapError("failed to append game session", err)
	}
	return nil
}

// CountByUserID はユーザーのゲームプレイ回数を返す。
func (r *PostgresGameSessionRepo) CountByUserID(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM game_sessions WHERE user_id = $1`,
		userID,
	).Scan(&count)
	if isInvalidText(err) {
		return 0, nil
	}
	if err != nil {
		return 0, wrapError("failed to count game sessions", err)
	}
	return count, nil
}

// DeleteOlderThan はbeforeより前にプレイされた記録を削除し、削除件数を返す。
func (r *PostgresGameSessionRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM game_sessions WHERE played_at < $1`,
		before,
	)
	if err != nil {
		return 0, wrapError("failed to delete old game sessions", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ GameSessionRepository = (*PostgresGameSessionRepo)(nil)
