// Package token はBearer認証トークン（HS256署名のJWT）の発行と検証を提供する。
//
// 発行したトークンの失効管理はこのパッケージでは行わない。
// 署名と有効期限の検証に通過したトークンでも、有効トークン一覧に
// 存在しなければ認証は失敗する（middleware.AuthMiddleware参照）。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken は署名不正・形式不正・クレーム欠落のトークンに対して返す。
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired は有効期限切れのトークンに対して返す。
	ErrTokenExpired = errors.New("token expired")
)

// Claims はトークンに埋め込むクレーム。
// sub にユーザーID、jti に発行ごとに一意なIDを持つ。
type Claims struct {
	jwt.RegisteredClaims
}

// Manager はトークンの発行と検証を行う。
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewManager はManagerを生成する。
func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL はトークンの有効期間を返す。
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue は指定ユーザーのトークンを発行し、トークン文字列と有効期限を返す。
// 同一ユーザー・同一秒内の発行でもjtiにより異なるトークンになる。
func (m *Manager) Issue(userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, fmt.Errorf("failed to issue token: empty user ID")
	}

	now := m.now()
	expiresAt := now.Add(m.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify はトークンの署名と有効期限を検証し、ユーザーIDを返す。
func (m *Manager) Verify(tokenString string) (string, error) {
	claims := &Claims{}

	parsed, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}

	return claims.Subject, nil
}
