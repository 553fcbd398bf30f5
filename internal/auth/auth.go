// Package auth issues and verifies the bearer credentials the API runs
// on: bcrypt password hashes, opaque user keys and signed JWTs.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 10

// Claims carries the authenticated user's identity through a token.
// UserID is the opaque user key, not the username.
type Claims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type Service struct {
	secret    []byte
	tokenTTL  time.Duration
	startedAt time.Time
}

func NewService(secret string, tokenTTL time.Duration) *Service {
	return &Service{
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		startedAt: time.Now(),
	}
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NewUserKey generates the opaque per-user credential used as the
// ownership anchor for projects.
func NewUserKey() string {
	buf := make([]byte, 32)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}

func (s *Service) IssueToken(userKey, username string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userKey,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *Service) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// IssuedBeforeStart reports whether a token predates this server
// process. The verify-token endpoint uses it to force a fresh login
// after a restart.
func (s *Service) IssuedBeforeStart(claims *Claims) bool {
	return claims.IssuedAt != nil && claims.IssuedAt.Time.Before(s.startedAt)
}
