// Package auth はメールアドレスとパスワードによる登録・ログインと、トークン検証を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/cinequiz/internal/metrics"
	"github.com/hitoshi/cinequiz/internal/model"
	"github.com/hitoshi/cinequiz/internal/repository"
	"github.com/hitoshi/cinequiz/internal/security"
)

// dummyPassword は存在しないメールアドレスでのログイン時に照合するダミー。
// アカウントの有無で応答時間が変わらないようにする。
const dummyPassword = "cinequiz-dummy-password"

// TokenService はトークンの発行と検証を行う。
type TokenService interface {
	Issue(identity model.Identity) (string, error)
	Verify(tokenString string) (*model.Identity, error)
}

// Result は登録・ログイン成功時の結果。
type Result struct {
	User  *model.User
	Token string
}

// VerifyResult はトークン検証の結果。Validがfalseの場合Identityはnil。
type VerifyResult struct {
	Valid    bool
	Identity *model.Identity
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo  repository.UserRepository
	hasher    PasswordHasher
	tokens    TokenService
	sanitizer security.NameSanitizer
	metrics   metrics.MetricsCollector
	now       func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewService はServiceを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewService(
	userRepo repository.UserRepository,
	hasher PasswordHasher,
	tokens TokenService,
	sanitizer security.NameSanitizer,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		userRepo:  userRepo,
		hasher:    hasher,
		tokens:    tokens,
		sanitizer: sanitizer,
		metrics:   collector,
		now:       time.Now,
	}
}

// Register は新規ユーザーを作成し、トークンを発行する。
// 新規ユーザーはランク1、経験値0、累計スコア0で開始する。
func (s *Service) Register(ctx context.Context, name, email, password string) (*Result, error) {
	name = s.sanitizer.Sanitize(name)
	email = normalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return nil, model.NewValidationError("名前、メールアドレス、パスワードは必須です")
	}

	hashed, err := s.hasher.Hash(password)
	if errors.Is(err, ErrPasswordTooLong) {
		return nil, model.NewValidationError("パスワードが長すぎます")
	}
	if err != nil {
		slog.Error("failed to hash password", slog.String("error", err.Error()))
		return nil, model.NewInternalError()
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: hashed,
		Level:        model.RankNominee,
		Experience:   0,
		TotalScore:   0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, model.ErrDuplicateEmail) {
			return nil, model.NewDuplicateEmailError()
		}
		return nil, storageError("failed to create user", err)
	}

	token, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordRegistration()
	slog.Info("user registered",
		slog.String("user_id", user.ID),
	)

	return &Result{User: user, Token: token}, nil
}

// Login はメールアドレスとパスワードを照合し、トークンを発行する。
// 未登録のメールアドレスとパスワード誤りは同一のエラーになる。
func (s *Service) Login(ctx context.Context, email, password string) (*Result, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, model.NewValidationError("メールアドレスとパスワードは必須です")
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, storageError("failed to find user", err)
	}

	if user == nil {
		_ = s.hasher.Compare(s.dummy(), password)
		s.metrics.RecordLogin(false)
		return nil, model.NewInvalidCredentialsError()
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		if !errors.Is(err, ErrPasswordMismatch) {
			slog.Warn("password comparison failed",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
		}
		s.metrics.RecordLogin(false)
		return nil, model.NewInvalidCredentialsError()
	}

	token, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordLogin(true)
	slog.Info("user logged in",
		slog.String("user_id", user.ID),
	)

	return &Result{User: user, Token: token}, nil
}

// Verify はトークンを検証する。トークンが空または無効な場合もエラーは返さない。
func (s *Service) Verify(_ context.Context, tokenString string) VerifyResult {
	if strings.TrimSpace(tokenString) == "" {
		return VerifyResult{Valid: false}
	}
	identity, err := s.tokens.Verify(tokenString)
	if err != nil {
		return VerifyResult{Valid: false}
	}
	return VerifyResult{Valid: true, Identity: identity}
}

func (s *Service) issue(user *model.User) (string, error) {
	token, err := s.tokens.Issue(model.Identity{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
		Level: user.Level,
	})
	if err != nil {
		slog.Error("failed to issue token",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return "", model.NewInternalError()
	}
	return token, nil
}

// dummy はダミーのハッシュを初回呼び出し時に一度だけ生成する。
func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		hashed, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			slog.Warn("failed to prepare dummy hash", slog.String("error", err.Error()))
			return
		}
		s.dummyHash = hashed
	})
	return s.dummyHash
}

// storageError はリポジトリのエラーをログに記録し、クライアント向けのAPIErrorに変換する。
func storageError(msg string, err error) error {
	slog.Error(msg, slog.String("error", err.Error()))
	if errors.Is(err, repository.ErrStorageUnavailable) {
		return model.NewStorageUnavailableError()
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
