// Package token は署名付きの有効期限付きIDトークン（JWT）の発行と検証を提供する。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/cinequiz/internal/model"
)

// DefaultTTL はトークンの有効期間（発行から7日）。
const DefaultTTL = 7 * 24 * time.Hour

// ErrInvalidToken はトークンが不正・改ざん・期限切れのいずれかであることを示す。
var ErrInvalidToken = errors.New("invalid token")

// ErrMissingSecret は署名鍵が設定されていないことを示す。
var ErrMissingSecret = errors.New("token signing secret is required")

// Claims はトークンに埋め込むユーザー情報。
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Level  int    `json:"level"`
}

// Config はトークンサービスの設定。
type Config struct {
	Secret []byte
	TTL    time.Duration    // ゼロの場合はDefaultTTL
	Now    func() time.Time // テスト用。nilの場合はtime.Now
}

// Service はHS256で署名したトークンを発行・検証する。
// 状態を持たないため、複数goroutineから同時に利用できる。
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewService はServiceを生成する。署名鍵が空の場合はエラーを返す。
func NewService(cfg Config) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrMissingSecret
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	return &Service{secret: secret, ttl: ttl, now: now}, nil
}

// Issue は認証済みユーザー情報を埋め込んだトークンを発行する。
func (s *Service) Issue(identity model.Identity) (string, error) {
	issuedAt := s.now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.ttl)),
		},
		UserID: identity.ID,
		Email:  identity.Email,
		Name:   identity.Name,
		Level:  int(identity.Level),
	})

	signed, err := t.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify はトークンを検証し、埋め込まれたユーザー情報を返す。
// 署名不一致、形式不正、期限切れ、HS256以外のアルゴリズムはすべてErrInvalidTokenになる。
func (s *Service) Verify(tokenString string) (*model.Identity, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	t, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !t.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	level, ok := model.RankFromNumber(claims.Level)
	if !ok {
		level = model.RankNominee
	}

	return &model.Identity{
		ID:    claims.UserID,
		Email: claims.Email,
		Name:  claims.Name,
		Level: level,
	}, nil
}

// TTL はトークンの有効期間を返す。
func (s *Service) TTL() time.Duration {
	return s.ttl
}
