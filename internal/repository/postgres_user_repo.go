package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/hitoshi/cinequiz/internal/model"
)

// usersEmailConstraint はusers.emailの一意制約名。
const usersEmailConstraint = "users_email_key"

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db         *sql.DB
	thresholds pq.Int64Array
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
// ランク表の閾値をSQLパラメータとして保持し、加算と同じ文でランクを算出する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	ranks := model.Ranks()
	thresholds := make(pq.Int64Array, len(ranks))
	for i, r := range ranks {
		thresholds[i] = r.Threshold()
	}
	return &PostgresUserRepo{db: db, thresholds: thresholds}
}

const selectUserColumns = `SELECT id, name, email, password_hash, level, experience, total_score, created_at, updated_at FROM users`

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := r.scanUser(r.db.QueryRowContext(ctx, selectUserColumns+` WHERE id = $1`, id))
	if err == sql.ErrNoRows || isInvalidText(err) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapError("failed to find user by ID", err)
	}
	return user, nil
}

// FindByEmail は指定メールアドレスのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := r.scanUser(r.db.QueryRowContext(ctx, selectUserColumns+` WHERE email = $1`, email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapError("failed to find user by email", err)
	}
	return user, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, level, experience, total_score, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID, user.Name, user.Email, user.PasswordHash,
		int(user.Level), user.Experience, user.TotalScore,
		user.CreatedAt, user.UpdatedAt,
	)
	if isUniqueViolation(err, usersEmailConstraint) {
		return fmt.Errorf("failed to insert user: %w", model.ErrDuplicateEmail)
	}
	if err != nil {
		return wrapError("failed to insert user", err)
	}
	return nil
}

// IncrementExperienceAndScore は経験値と累計スコアを加算し、新しいランクを同じ文で書き込む。
// ランクは閾値配列のうち加算後の経験値以下の要素数として求める（閾値0を含むため1始まり）。
// 先行するCTEで行ロックを取得し、加算前のランクを返す。
func (r *PostgresUserRepo) IncrementExperienceAndScore(ctx context.Context, id string, experienceDelta, scoreDelta int64) (*model.Counters, error) {
	var (
		counters  model.Counters
		level     int
		prevLevel string
	)
	err := r.db.QueryRowContext(ctx,
		`WITH prev AS (
			SELECT id, level FROM users WHERE id = $3 FOR UPDATE
		)
		UPDATE users AS u
		SET experience = u.experience + $1,
		    total_score = u.total_score + $2,
		    level = (
		        SELECT count(*) FROM unnest($4::bigint[]) AS t(threshold)
		        WHERE t.threshold <= u.experience + $1
		    ),
		    updated_at = now()
		FROM prev
		WHERE u.id = prev.id
		RETURNING u.experience, u.total_score, u.level, prev.level`,
		experienceDelta, scoreDelta, id, r.thresholds,
	).Scan(&counters.Experience, &counters.TotalScore, &level, &prevLevel)

	if err == sql.ErrNoRows || isInvalidText(err) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapError("failed to increment experience and score", err)
	}

	counters.Level = model.Rank(level)
	counters.PreviousLevel = normalizeStoredLevel(id, prevLevel)
	return &counters, nil
}

// UpdateLevel はランクを直接書き込む。
func (r *PostgresUserRepo) UpdateLevel(ctx context.Context, id string, level model.Rank) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET level = $1, updated_at = now() WHERE id = $2`,
		int(level), id,
	)
	if isInvalidText(err) {
		return false, nil
	}
	if err != nil {
		return false, wrapError("failed to update level", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// ListTopByScore は累計スコアの降順でユーザーを返す。同点は登録が早い順。
func (r *PostgresUserRepo) ListTopByScore(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, total_score, experience, level
		 FROM users
		 ORDER BY total_score DESC, created_at ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, wrapError("failed to list leaderboard", err)
	}
	defer rows.Close()

	var entries []model.LeaderboardEntry
	for rows.Next() {
		var (
			e     model.LeaderboardEntry
			level string
		)
		if err := rows.Scan(&e.UserID, &e.Name, &e.TotalScore, &e.Experience, &level); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		e.Level = normalizeStoredLevel(e.UserID, level)
		e.Position = len(entries) + 1
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("failed to iterate leaderboard rows", err)
	}
	return entries, nil
}

func (r *PostgresUserRepo) scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	var level string
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash,
		&level, &user.Experience, &user.TotalScore,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Level = normalizeStoredLevel(user.ID, level)
	return user, nil
}

// normalizeStoredLevel は保存済みのランク値（数値またはランク名）を正規化する。
// 旧スキーマではランク名を文字列で保存していたため両方を受け付ける。
// 解釈できない値はNomineeとして扱い、その事実をログに残す。
func normalizeStoredLevel(userID, raw string) model.Rank {
	if rank, ok := model.ParseRank(raw); ok {
		return rank
	}
	slog.Warn("level normalized to default",
		slog.String("user_id", userID),
		slog.String("raw_level", raw),
		slog.String("default_level", model.RankNominee.Name()),
	)
	return model.RankNominee
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
