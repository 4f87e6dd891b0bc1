// Package auth resolves the caller's user id from a bearer JWT, or from a
// plain header in development.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmhodges/clock"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrMissingToken     = errors.New("missing authentication token")
	ErrInvalidClaims    = errors.New("invalid token claims")
)

// DevUserHeader carries the user id when the dev fallback is enabled.
const DevUserHeader = "X-User-ID"

// TokenCookie is the cookie checked for websocket upgrades.
const TokenCookie = "auth_token"

// Claims represents the JWT claims. The user id is the subject.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTService signs and validates HS256 tokens.
type JWTService struct {
	secretKey []byte
	issuer    string
	ttl       time.Duration
	clock     clock.Clock
}

// NewJWTService creates a JWT service. An empty secret disables
// validation: every token is rejected.
func NewJWTService(secret, issuer string, ttl time.Duration, clk clock.Clock) *JWTService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTService{
		secretKey: []byte(secret),
		issuer:    issuer,
		ttl:       ttl,
		clock:     clk,
	}
}

// GenerateToken issues a token for userID.
func (s *JWTService) GenerateToken(userID, email string) (string, error) {
	if len(s.secretKey) == 0 {
		return "", errors.New("secret key required for HS256")
	}
	now := s.clock.Now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
}

// ValidateToken validates a token and returns its claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	if len(s.secretKey) == 0 {
		return nil, fmt.Errorf("%w: no signing key configured", ErrInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return s.secretKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrSignatureInvalid) {
			return nil, ErrInvalidSignature
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing user ID", ErrInvalidClaims)
	}
	return claims, nil
}

// Authenticator resolves the user of an HTTP request.
type Authenticator struct {
	jwt            *JWTService
	allowDevHeader bool
}

func NewAuthenticator(jwtService *JWTService, allowDevHeader bool) *Authenticator {
	return &Authenticator{jwt: jwtService, allowDevHeader: allowDevHeader}
}

// UserFromRequest checks, in order, the Authorization header, the token
// query parameter, the auth cookie and, when enabled, DevUserHeader.
func (a *Authenticator) UserFromRequest(r *http.Request) (string, error) {
	token := ""
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimPrefix(h, "Bearer ")
	}
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		if cookie, err := r.Cookie(TokenCookie); err == nil {
			token = cookie.Value
		}
	}

	if token != "" {
		claims, err := a.jwt.ValidateToken(token)
		if err != nil {
			return "", err
		}
		return claims.Subject, nil
	}

	if a.allowDevHeader {
		if userID := strings.TrimSpace(r.Header.Get(DevUserHeader)); userID != "" {
			return userID, nil
		}
	}
	return "", ErrMissingToken
}

type contextKey string

const userIDKey contextKey = "userID"

// WithUserID stores userID in ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext extracts the user id stored by WithUserID.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}
