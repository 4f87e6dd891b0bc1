package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(clk clock.Clock) *JWTService {
	return NewJWTService("test-secret", "memorymap", time.Hour, clk)
}

func TestJWTService_RoundTrip(t *testing.T) {
	clk := clock.NewFake()
	s := newTestService(clk)

	token, err := s.GenerateToken("user-1", "user@example.com")
	require.NoError(t, err)

	claims, err := s.ValidateToken("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "user@example.com", claims.Email)
}

func TestJWTService_ValidateToken_Errors(t *testing.T) {
	clk := clock.NewFake()
	s := newTestService(clk)
	valid, err := s.GenerateToken("user-1", "")
	require.NoError(t, err)

	other, err := NewJWTService("other-secret", "memorymap", time.Hour, clk).GenerateToken("user-1", "")
	require.NoError(t, err)
	wrongIssuer, err := NewJWTService("test-secret", "someone-else", time.Hour, clk).GenerateToken("user-1", "")
	require.NoError(t, err)
	noSubject, err := s.GenerateToken("", "")
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "user-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		advance time.Duration
		wantErr error
	}{
		{"empty", "", 0, ErrMissingToken},
		{"garbage", "not-a-jwt", 0, ErrInvalidToken},
		{"wrong key", other, 0, ErrInvalidSignature},
		{"wrong issuer", wrongIssuer, 0, ErrInvalidToken},
		{"none algorithm", none, 0, ErrInvalidToken},
		{"missing subject", noSubject, 0, ErrInvalidClaims},
		{"expired", valid, 2 * time.Hour, ErrExpiredToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := clock.NewFake()
			fc.Set(clk.Now().Add(tt.advance))
			svc := newTestService(fc)

			_, err := svc.ValidateToken(tt.token)

			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAuthenticator_UserFromRequest(t *testing.T) {
	clk := clock.NewFake()
	s := newTestService(clk)
	token, err := s.GenerateToken("user-1", "")
	require.NoError(t, err)

	tests := []struct {
		name      string
		devHeader bool
		prepare   func(r *http.Request)
		wantUser  string
		wantErr   error
	}{
		{
			name:     "bearer header",
			prepare:  func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) },
			wantUser: "user-1",
		},
		{
			name: "query parameter",
			prepare: func(r *http.Request) {
				q := r.URL.Query()
				q.Set("token", token)
				r.URL.RawQuery = q.Encode()
			},
			wantUser: "user-1",
		},
		{
			name:     "cookie",
			prepare:  func(r *http.Request) { r.AddCookie(&http.Cookie{Name: TokenCookie, Value: token}) },
			wantUser: "user-1",
		},
		{
			name:      "dev header allowed",
			devHeader: true,
			prepare:   func(r *http.Request) { r.Header.Set(DevUserHeader, "dev-user") },
			wantUser:  "dev-user",
		},
		{
			name:    "dev header rejected",
			prepare: func(r *http.Request) { r.Header.Set(DevUserHeader, "dev-user") },
			wantErr: ErrMissingToken,
		},
		{
			name:      "invalid token wins over dev header",
			devHeader: true,
			prepare: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer junk")
				r.Header.Set(DevUserHeader, "dev-user")
			},
			wantErr: ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			tt.prepare(r)

			userID, err := NewAuthenticator(s, tt.devHeader).UserFromRequest(r)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUser, userID)
		})
	}
}

func TestUserIDContext(t *testing.T) {
	_, ok := UserIDFromContext(context.Background())
	assert.False(t, ok)

	userID, ok := UserIDFromContext(WithUserID(context.Background(), "user-1"))
	assert.True(t, ok)
	assert.Equal(t, "user-1", userID)
}
