package hash

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
)

// SecretBytes длина случайной части refresh токена
const SecretBytes = 40

// TokenHasher генерирует refresh секреты и хеширует их SHA-256
type TokenHasher struct {
	random io.Reader
}

// NewTokenHasher создает TokenHasher поверх crypto/rand
func NewTokenHasher() *TokenHasher {
	return &TokenHasher{random: rand.Reader}
}

// NewTokenHasherWithSource создает TokenHasher с заданным источником случайности
func NewTokenHasherWithSource(random io.Reader) *TokenHasher {
	return &TokenHasher{random: random}
}

// Generate возвращает новый секрет: 40 случайных байт в hex
func (h *TokenHasher) Generate() (string, error) {
	buf := make([]byte, SecretBytes)
	if _, err := io.ReadFull(h.random, buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Hash хеширует токен с использованием SHA256
func (h *TokenHasher) Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Verify проверяет токен против хеша
func (h *TokenHasher) Verify(token, hash string) bool {
	return subtle.ConstantTimeCompare([]byte(h.Hash(token)), []byte(hash)) == 1
}
