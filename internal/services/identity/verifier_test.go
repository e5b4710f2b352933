package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validClaims(subject string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "auth.chessrelay",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
}

func TestHeaderVerifier(t *testing.T) {
	v := NewHeaderVerifier("")

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := v.Verify(r)
	assert.ErrorIs(t, err, ErrNoIdentity)

	r.Header.Set(DefaultHeader, " alice ")
	username, err := v.Verify(r)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)
}

func TestHeaderVerifierCustomHeader(t *testing.T) {
	v := NewHeaderVerifier("X-Forwarded-User")
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-User", "bob")

	username, err := v.Verify(r)
	require.NoError(t, err)
	assert.Equal(t, "bob", username)
}

func TestJWTVerifier(t *testing.T) {
	v := NewJWTVerifier(testSecret, "auth.chessrelay")

	tests := []struct {
		name     string
		token    string
		wantUser string
		wantErr  error
	}{
		{
			name:     "valid token",
			token:    signToken(t, jwt.SigningMethodHS256, testSecret, validClaims("alice")),
			wantUser: "alice",
		},
		{
			name:    "wrong secret",
			token:   signToken(t, jwt.SigningMethodHS256, []byte("other"), validClaims("alice")),
			wantErr: ErrInvalidToken,
		},
		{
			name:    "wrong algorithm",
			token:   signToken(t, jwt.SigningMethodHS512, testSecret, validClaims("alice")),
			wantErr: ErrInvalidToken,
		},
		{
			name: "expired",
			token: signToken(t, jwt.SigningMethodHS256, testSecret, jwt.RegisteredClaims{
				Subject:   "alice",
				Issuer:    "auth.chessrelay",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			}),
			wantErr: ErrInvalidToken,
		},
		{
			name: "wrong issuer",
			token: signToken(t, jwt.SigningMethodHS256, testSecret, jwt.RegisteredClaims{
				Subject:   "alice",
				Issuer:    "someone-else",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			}),
			wantErr: ErrInvalidToken,
		},
		{
			name:    "missing subject",
			token:   signToken(t, jwt.SigningMethodHS256, testSecret, validClaims("")),
			wantErr: ErrInvalidToken,
		},
		{
			name:    "garbage",
			token:   "not-a-jwt",
			wantErr: ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("Authorization", "Bearer "+tt.token)

			username, err := v.Verify(r)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUser, username)
		})
	}
}

func TestJWTVerifierReadsQueryToken(t *testing.T) {
	v := NewJWTVerifier(testSecret, "")
	token := signToken(t, jwt.SigningMethodHS256, testSecret, validClaims("carol"))

	r := httptest.NewRequest(http.MethodGet, "/api/v1/ws?access_token="+token, nil)
	username, err := v.Verify(r)
	require.NoError(t, err)
	assert.Equal(t, "carol", username)
}

func TestJWTVerifierWithoutToken(t *testing.T) {
	v := NewJWTVerifier(testSecret, "")
	_, err := v.Verify(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestNew(t *testing.T) {
	v, err := New(Config{})
	require.NoError(t, err)
	assert.IsType(t, &HeaderVerifier{}, v)

	_, err = New(Config{Mode: ModeJWT})
	assert.Error(t, err)

	v, err = New(Config{Mode: ModeJWT, Secret: "s"})
	require.NoError(t, err)
	assert.IsType(t, &JWTVerifier{}, v)

	_, err = New(Config{Mode: "oauth"})
	assert.Error(t, err)
}
