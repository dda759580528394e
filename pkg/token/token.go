// Package token выпускает и проверяет access токены (HS256 JWT).
// Проверка не обращается к хранилищу: только подпись и срок действия.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	pkgerrors "SocialMeshPlatform/pkg/errors"
	"SocialMeshPlatform/pkg/identity"
)

// TypeAccess значение claim token_type для access токенов
const TypeAccess = "access"

// Claims содержимое access токена
type Claims struct {
	Username  string `json:"username"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Verifier проверяет access токен и возвращает идентичность
type Verifier interface {
	Verify(token string) (identity.Identity, error)
}

// Manager выпускает и проверяет access токены общим секретом
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewManager создает менеджер токенов
func NewManager(secret, issuer string, ttl time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is empty")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("access token ttl must be positive")
	}
	return &Manager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// TTL время жизни выпускаемых токенов
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue выпускает access токен для идентичности
func (m *Manager) Issue(id identity.Identity) (string, time.Time, error) {
	if id.IsZero() {
		return "", time.Time{}, fmt.Errorf("cannot issue token for empty subject")
	}

	now := m.now().UTC()
	expiresAt := now.Add(m.ttl)
	claims := &Claims{
		Username:  id.Username,
		TokenType: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify проверяет подпись и срок действия.
// Просроченный токен дает ErrExpired, любой другой дефект ErrInvalidToken.
func (m *Manager) Verify(tokenString string) (identity.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return identity.Identity{}, pkgerrors.Wrap(err, pkgerrors.ErrExpired, "Token expired")
		}
		return identity.Identity{}, pkgerrors.Wrap(err, pkgerrors.ErrInvalidToken, "Invalid token")
	}

	if claims.TokenType != TypeAccess {
		return identity.Identity{}, pkgerrors.New(pkgerrors.ErrInvalidToken, "Invalid token").
			WithDetails(fmt.Sprintf("unexpected token type %q", claims.TokenType))
	}
	if claims.Subject == "" {
		return identity.Identity{}, pkgerrors.New(pkgerrors.ErrInvalidToken, "Invalid token").
			WithDetails("missing subject")
	}

	return identity.Identity{UserID: claims.Subject, Username: claims.Username}, nil
}
